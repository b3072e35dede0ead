package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/00-167cm/RAG-chatbot/internal/core/conversation"
	"github.com/00-167cm/RAG-chatbot/internal/shared/clock"
)

// ConversationStore はメモリ上の会話ストア
// DBを使わない開発モードで conversation.Repository を提供する
// タイムスタンプの採番規則はPostgres実装と同一（会話内で厳密に単調増加）
type ConversationStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*conversation.Conversation
	messages      map[uuid.UUID][]*conversation.Message
	clk           clock.Clock
}

var _ conversation.Repository = (*ConversationStore)(nil)

// NewConversationStore は空の会話ストアを作成する
// clk が nil の場合はJSTの実時計を使う
func NewConversationStore(clk clock.Clock) *ConversationStore {
	if clk == nil {
		clk = clock.NewJST()
	}
	return &ConversationStore{
		conversations: make(map[uuid.UUID]*conversation.Conversation),
		messages:      make(map[uuid.UUID][]*conversation.Message),
		clk:           clk,
	}
}

// CreateConversation は新しい会話を作成する
func (s *ConversationStore) CreateConversation(ctx context.Context, title string) (*conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	conv := &conversation.Conversation{
		ID:        uuid.New(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[conv.ID] = conv

	copied := *conv
	return &copied, nil
}

// GetConversation は会話を取得する
func (s *ConversationStore) GetConversation(ctx context.Context, id uuid.UUID) (mo.Option[*conversation.Conversation], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return mo.None[*conversation.Conversation](), nil
	}

	copied := *conv
	copied.MessageCount = len(s.messages[id])
	return mo.Some(&copied), nil
}

// ListConversations は会話一覧を更新日時の降順で返す
func (s *ConversationStore) ListConversations(ctx context.Context) ([]*conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conversations := make([]*conversation.Conversation, 0, len(s.conversations))
	for id, conv := range s.conversations {
		copied := *conv
		copied.MessageCount = len(s.messages[id])
		conversations = append(conversations, &copied)
	}

	sort.Slice(conversations, func(i, j int) bool {
		if !conversations[i].UpdatedAt.Equal(conversations[j].UpdatedAt) {
			return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
		}
		return conversations[i].ID.String() < conversations[j].ID.String()
	})
	return conversations, nil
}

// DeleteConversation は会話とそのメッセージを削除する
func (s *ConversationStore) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return fmt.Errorf("%w: %s", conversation.ErrNotFound, id)
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

// DeleteAllConversations は全会話を削除する
func (s *ConversationStore) DeleteAllConversations(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = make(map[uuid.UUID]*conversation.Conversation)
	s.messages = make(map[uuid.UUID][]*conversation.Message)
	return nil
}

// AppendMessage はメッセージを会話の末尾に追加する
// 追加はストア全体のロックで直列化され、保存時刻は会話内で厳密に単調増加する
func (s *ConversationStore) AppendMessage(ctx context.Context, conversationID uuid.UUID, input conversation.AppendInput) (*conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", conversation.ErrNotFound, conversationID)
	}

	createdAt := s.clk.Now()
	if msgs := s.messages[conversationID]; len(msgs) > 0 {
		createdAt = clock.NextAfter(s.clk, msgs[len(msgs)-1].CreatedAt)
	}

	msg := &conversation.Message{
		ID:        uuid.New(),
		Role:      input.Role,
		Content:   input.Content,
		CreatedAt: createdAt,
		IsRAG:     input.IsRAG,
		Chunks:    append([]conversation.ChunkRef(nil), input.Chunks...),
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	conv.UpdatedAt = createdAt

	copied := *msg
	return &copied, nil
}

// ListMessages は会話のメッセージを保存時刻の昇順で返す
// 存在しない会話は空のスライスになる
func (s *ConversationStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationID]
	copied := make([]*conversation.Message, 0, len(msgs))
	for _, msg := range msgs {
		m := *msg
		copied = append(copied, &m)
	}
	return copied, nil
}

// UpdateTitleIfPlaceholder はタイトルがプレースホルダのままの場合だけ更新する
func (s *ConversationStore) UpdateTitleIfPlaceholder(ctx context.Context, id uuid.UUID, title string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return false, nil
	}
	if !strings.HasPrefix(conv.Title, conversation.DefaultTitle) {
		return false, nil
	}
	conv.Title = title
	return true, nil
}
