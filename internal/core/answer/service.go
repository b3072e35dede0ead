package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/mo"

	"github.com/00-167cm/RAG-chatbot/internal/core/conversation"
	"github.com/00-167cm/RAG-chatbot/internal/core/search"
)

// ErrGeneration は回答生成に失敗した場合のエラー
var ErrGeneration = errors.New("answer generation failed")

// DefaultContextTokenBudget は参照資料に使えるトークン数のデフォルト上限
const DefaultContextTokenBudget = 3000

// Service は質問応答のユースケースを提供する
// モード判定、プロンプト組み立て、ストリーミング生成、履歴保存を1往復として扱う
type Service struct {
	searchService *search.Service
	conversations *conversation.Service
	chat          ChatClient
	tokenCounter  TokenCounter
	contextBudget int
	logger        *slog.Logger
}

type serviceOptions struct {
	contextBudget int
	logger        *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithAnswerLogger は Service にロガーを設定する
func WithAnswerLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithContextTokenBudget は参照資料のトークン上限を上書きする
func WithContextTokenBudget(budget int) ServiceOption {
	return func(o *serviceOptions) {
		o.contextBudget = budget
	}
}

// NewService は新しいServiceを作成する
func NewService(
	searchService *search.Service,
	conversations *conversation.Service,
	chat ChatClient,
	tokenCounter TokenCounter,
	opts ...ServiceOption,
) *Service {
	options := serviceOptions{
		contextBudget: DefaultContextTokenBudget,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.contextBudget <= 0 {
		options.contextBudget = DefaultContextTokenBudget
	}

	return &Service{
		searchService: searchService,
		conversations: conversations,
		chat:          chat,
		tokenCounter:  tokenCounter,
		contextBudget: options.contextBudget,
		logger:        options.logger,
	}
}

// Answer はユーザーの質問に回答を生成する
//
// 1往復の流れ:
//  1. ユーザーメッセージを履歴へ追加
//  2. モード判定（検索失敗時は通常モードへ縮退）
//  3. モードに応じてLLM入力を構築（RAGでは元の質問を参照資料付きプロンプトに差し替える）
//  4. ストリーミング生成（トークンごとに onToken を呼ぶ）
//  5. 回答を履歴へ追加し、必要ならタイトル生成を起動
//
// 生成に失敗またはキャンセルされた場合、途中までの本文は結果として返すが履歴には保存しない
func (s *Service) Answer(ctx context.Context, req Request, onToken func(token string) error) (*Result, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	// ユーザーメッセージを先に履歴へ追加する
	// 保存できない場合は回答を生成せずに打ち切る
	if _, err := s.conversations.AppendUserMessage(ctx, req.ConversationID, req.Query); err != nil {
		return nil, err
	}

	decision, degraded, err := s.route(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	history, err := s.conversations.History(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}

	var (
		messages   []ChatMessage
		provenance []conversation.ChunkRef
	)
	if decision.IsRAG() {
		hits := s.fitContextBudget(decision.Hits)
		ragPrompt := BuildRAGPrompt(req.Query, BuildContext(hits))
		messages = buildRAGMessages(history, ragPrompt)
		provenance = toChunkRefs(hits)
	} else {
		messages = buildPlainMessages(history)
	}

	s.logger.Info("回答を生成",
		"conversationID", req.ConversationID,
		"mode", decision.Mode,
		"bestDistance", decision.BestDistance.OrElse(-1),
		"references", len(provenance),
		"degraded", degraded,
	)

	result := &Result{
		IsRAG:        decision.IsRAG(),
		Provenance:   provenance,
		BestDistance: decision.BestDistance,
		Degraded:     degraded,
	}

	text, err := s.chat.StreamChat(ctx, messages, onToken)
	result.Text = text
	if err != nil {
		// 途中までの本文は返すが履歴には残さない
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return result, err
		}
		return result, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	// 回答の保存に失敗してもバックグラウンド再試行に任せ、回答自体は返す
	if _, err := s.conversations.AppendAssistantMessage(ctx, req.ConversationID, text, result.IsRAG, provenance); err != nil {
		s.logger.Error("回答の保存に失敗（バックグラウンドで再試行）",
			"conversationID", req.ConversationID,
			"error", err,
		)
	}

	// 最初の往復が揃ったらタイトル生成を起動する
	s.conversations.GenerateTitleAsync(ctx, req.ConversationID)

	return result, nil
}

// route はモード判定を実行する
// Embedding生成や検索の失敗は通常モードへの縮退として扱い、エラーにしない
func (s *Service) route(ctx context.Context, query string) (*search.Decision, bool, error) {
	decision, err := s.searchService.Route(ctx, query)
	if err == nil {
		return decision, false, nil
	}

	if errors.Is(err, search.ErrEmbedding) || errors.Is(err, search.ErrRetrieval) {
		s.logger.Warn("検索に失敗したため通常モードで回答", "error", err)
		return &search.Decision{
			Mode:         search.ModePlain,
			BestDistance: mo.None[float64](),
		}, true, nil
	}

	return nil, false, err
}

// fitContextBudget は参照資料がトークン上限に収まるよう末尾から間引く
// 上限を超えても最低1件は残す
func (s *Service) fitContextBudget(hits []*search.Hit) []*search.Hit {
	if s.tokenCounter == nil || len(hits) == 0 {
		return hits
	}

	used := 0
	kept := make([]*search.Hit, 0, len(hits))
	for _, hit := range hits {
		cost := s.tokenCounter.CountTokens(FormatContextEntry(len(kept)+1, hit))
		if len(kept) > 0 && used+cost > s.contextBudget {
			break
		}
		used += cost
		kept = append(kept, hit)
	}

	if len(kept) < len(hits) {
		s.logger.Debug("参照資料をトークン上限で間引き",
			"kept", len(kept),
			"dropped", len(hits)-len(kept),
			"budget", s.contextBudget,
		)
	}
	return kept
}

// buildPlainMessages は通常モードのLLM入力を構築する（履歴全体をそのまま使う）
func buildPlainMessages(history []*conversation.Message) []ChatMessage {
	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, ChatMessage{Role: ChatRoleSystem, Content: SystemPromptNormal})
	for _, msg := range history {
		messages = append(messages, toChatMessage(msg))
	}
	return messages
}

// buildRAGMessages はRAGモードのLLM入力を構築する
// 履歴の最後のユーザーメッセージを参照資料付きプロンプトに差し替える
// （履歴に保存されるのは元の質問文のまま）
func buildRAGMessages(history []*conversation.Message, ragPrompt string) []ChatMessage {
	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, ChatMessage{Role: ChatRoleSystem, Content: SystemPromptRAG})
	if len(history) > 0 {
		for _, msg := range history[:len(history)-1] {
			messages = append(messages, toChatMessage(msg))
		}
	}
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: ragPrompt})
	return messages
}

func toChatMessage(msg *conversation.Message) ChatMessage {
	role := ChatRoleUser
	if msg.Role == conversation.RoleAssistant {
		role = ChatRoleAssistant
	}
	return ChatMessage{Role: role, Content: msg.Content}
}

func toChunkRefs(hits []*search.Hit) []conversation.ChunkRef {
	if len(hits) == 0 {
		return nil
	}
	refs := make([]conversation.ChunkRef, 0, len(hits))
	for _, hit := range hits {
		refs = append(refs, conversation.ChunkRef{
			ChunkID:  hit.ChunkID,
			Distance: hit.Distance,
			Source:   hit.Source,
		})
	}
	return refs
}
