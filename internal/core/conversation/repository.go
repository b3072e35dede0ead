package conversation

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// AppendInput はメッセージ追加の入力を表す
// 保存時刻は追加の直列化と合わせてリポジトリ側で採番する
type AppendInput struct {
	Role    Role
	Content string
	IsRAG   bool
	Chunks  []ChunkRef
}

// Repository は会話ストアへのデータアクセスを統合するインターフェース
// テスト時のモック用に消費者側で定義
type Repository interface {
	// CreateConversation は新しい会話を作成する
	CreateConversation(ctx context.Context, title string) (*Conversation, error)

	// GetConversation は会話を取得する
	GetConversation(ctx context.Context, id uuid.UUID) (mo.Option[*Conversation], error)

	// ListConversations は会話一覧を更新日時の降順で返す
	ListConversations(ctx context.Context) ([]*Conversation, error)

	// DeleteConversation は会話とそのメッセージを削除する
	DeleteConversation(ctx context.Context, id uuid.UUID) error

	// DeleteAllConversations は全会話を削除する
	DeleteAllConversations(ctx context.Context) error

	// AppendMessage はメッセージを会話の末尾に追加する
	// 同一会話への追加は直列化され、保存時刻は会話内で厳密に単調増加する
	AppendMessage(ctx context.Context, conversationID uuid.UUID, input AppendInput) (*Message, error)

	// ListMessages は会話のメッセージを保存時刻の昇順で返す
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error)

	// UpdateTitleIfPlaceholder はタイトルがプレースホルダのままの場合だけ更新する
	// 更新できた場合に true を返す（タイトル生成の一度きり保証に使う）
	UpdateTitleIfPlaceholder(ctx context.Context, id uuid.UUID, title string) (bool, error)
}
