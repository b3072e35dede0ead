package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/mo"

	"github.com/00-167cm/RAG-chatbot/internal/core/conversation"
	"github.com/00-167cm/RAG-chatbot/internal/shared/clock"
)

// ConversationRepository は会話と履歴への PostgreSQL データアクセスを提供する
// メッセージ追加はアドバイザリロックで会話単位に直列化する
type ConversationRepository struct {
	pool *pgxpool.Pool
	clk  clock.Clock
}

// NewConversationRepository は新しい ConversationRepository を返す
func NewConversationRepository(pool *pgxpool.Pool, clk clock.Clock) *ConversationRepository {
	if clk == nil {
		clk = clock.NewJST()
	}
	return &ConversationRepository{pool: pool, clk: clk}
}

var _ conversation.Repository = (*ConversationRepository)(nil)

// CreateConversation は新しい会話を作成する
func (r *ConversationRepository) CreateConversation(ctx context.Context, title string) (*conversation.Conversation, error) {
	now := r.clk.Now()
	conv := &conversation.Conversation{
		ID:        uuid.New(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := r.pool.Exec(ctx, `
		INSERT INTO conversations (id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, UUIDToPgtype(conv.ID), conv.Title, TimeToPgtype(conv.CreatedAt), TimeToPgtype(conv.UpdatedAt)); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return conv, nil
}

const conversationSelect = `
	SELECT c.id, c.title, c.created_at, c.updated_at, COUNT(m.id) AS message_count
	FROM conversations c
	LEFT JOIN messages m ON m.conversation_id = c.id
`

// GetConversation は会話を取得する
// 存在しない場合は None を返す
func (r *ConversationRepository) GetConversation(ctx context.Context, id uuid.UUID) (mo.Option[*conversation.Conversation], error) {
	row := r.pool.QueryRow(ctx, conversationSelect+`
		WHERE c.id = $1
		GROUP BY c.id
	`, UUIDToPgtype(id))

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*conversation.Conversation](), nil
		}
		return mo.None[*conversation.Conversation](), fmt.Errorf("failed to get conversation: %w", err)
	}

	return mo.Some(conv), nil
}

// ListConversations は会話一覧を更新日時の降順で返す
func (r *ConversationRepository) ListConversations(ctx context.Context) ([]*conversation.Conversation, error) {
	rows, err := r.pool.Query(ctx, conversationSelect+`
		GROUP BY c.id
		ORDER BY c.updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*conversation.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	return conversations, nil
}

// DeleteConversation は会話とそのメッセージを削除する
// メッセージは外部キーのカスケードで一緒に消える
func (r *ConversationRepository) DeleteConversation(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, UUIDToPgtype(id))
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", conversation.ErrNotFound, id)
	}
	return nil
}

// DeleteAllConversations は全会話を削除する
func (r *ConversationRepository) DeleteAllConversations(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM conversations`); err != nil {
		return fmt.Errorf("failed to delete all conversations: %w", err)
	}
	return nil
}

// AppendMessage はメッセージを会話の末尾に追加する
// 会話単位のアドバイザリロックで追加を直列化し、保存時刻は直前のメッセージより
// 厳密に後の時刻を採番する
func (r *ConversationRepository) AppendMessage(ctx context.Context, conversationID uuid.UUID, input conversation.AppendInput) (*conversation.Message, error) {
	chunksJSON, err := JSONBFromChunkRefs(input.Chunks)
	if err != nil {
		return nil, err
	}

	return transact(ctx, r.pool, func(tx pgx.Tx) (*conversation.Message, error) {
		if err := acquireAdvisoryLock(ctx, tx, generateLockID("conversation", conversationID.String())); err != nil {
			return nil, err
		}

		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`,
			UUIDToPgtype(conversationID)).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check conversation: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", conversation.ErrNotFound, conversationID)
		}

		var last pgtype.Timestamptz
		err := tx.QueryRow(ctx, `
			SELECT created_at FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT 1
		`, UUIDToPgtype(conversationID)).Scan(&last)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to get last message time: %w", err)
		}

		createdAt := r.clk.Now()
		if last.Valid {
			createdAt = clock.NextAfter(r.clk, PgtypeToTime(last))
		}

		msg := &conversation.Message{
			ID:        uuid.New(),
			Role:      input.Role,
			Content:   input.Content,
			CreatedAt: createdAt,
			IsRAG:     input.IsRAG,
			Chunks:    input.Chunks,
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, role, content, created_at, is_rag, chunks)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, UUIDToPgtype(msg.ID), UUIDToPgtype(conversationID), string(msg.Role), msg.Content,
			TimeToPgtype(msg.CreatedAt), msg.IsRAG, chunksJSON); err != nil {
			return nil, fmt.Errorf("failed to insert message: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`,
			UUIDToPgtype(conversationID), TimeToPgtype(msg.CreatedAt)); err != nil {
			return nil, fmt.Errorf("failed to update conversation: %w", err)
		}

		return msg, nil
	})
}

// ListMessages は会話のメッセージを保存時刻の昇順で返す
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*conversation.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, role, content, created_at, is_rag, chunks
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`, UUIDToPgtype(conversationID))
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*conversation.Message
	for rows.Next() {
		var (
			id         pgtype.UUID
			role       string
			createdAt  pgtype.Timestamptz
			chunksJSON []byte
			msg        conversation.Message
		)
		if err := rows.Scan(&id, &role, &msg.Content, &createdAt, &msg.IsRAG, &chunksJSON); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}

		chunks, err := ChunkRefsFromJSONB(chunksJSON)
		if err != nil {
			return nil, err
		}

		msg.ID = PgtypeToUUID(id)
		msg.Role = conversation.Role(role)
		msg.CreatedAt = PgtypeToTime(createdAt)
		msg.Chunks = chunks
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}

// UpdateTitleIfPlaceholder はタイトルがプレースホルダのままの場合だけ更新する
func (r *ConversationRepository) UpdateTitleIfPlaceholder(ctx context.Context, id uuid.UUID, title string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET title = $2
		WHERE id = $1 AND title LIKE $3
	`, UUIDToPgtype(id), title, conversation.DefaultTitle+"%")
	if err != nil {
		return false, fmt.Errorf("failed to update title: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// scanConversation は会話1行を読み取る
func scanConversation(row pgx.Row) (*conversation.Conversation, error) {
	var (
		id        pgtype.UUID
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
		conv      conversation.Conversation
	)
	if err := row.Scan(&id, &conv.Title, &createdAt, &updatedAt, &conv.MessageCount); err != nil {
		return nil, err
	}

	conv.ID = PgtypeToUUID(id)
	conv.CreatedAt = PgtypeToTime(createdAt)
	conv.UpdatedAt = PgtypeToTime(updatedAt)
	return &conv, nil
}
