package answer

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/00-167cm/RAG-chatbot/internal/core/conversation"
)

// ChatRole はLLMに渡すメッセージの役割を表す
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage はLLMに渡す1メッセージを表す
type ChatMessage struct {
	Role    ChatRole
	Content string
}

// ChatClient はLLM通信インターフェース
type ChatClient interface {
	// StreamChat はメッセージ列から回答をストリーミング生成する
	// トークンが届くたびに onToken を呼び出し、完了時に全文を返す
	// エラー時は途中まで生成できた本文を返す
	StreamChat(ctx context.Context, messages []ChatMessage, onToken func(token string) error) (string, error)
}

// TokenCounter はテキストのトークン数をカウントするインターフェース
type TokenCounter interface {
	CountTokens(text string) int
}

// Request は回答生成のリクエストを表す
type Request struct {
	ConversationID uuid.UUID
	Query          string
}

// Result は回答生成の結果を表す
type Result struct {
	Text         string                  // 回答全文（エラー時は途中まで）
	IsRAG        bool                    // RAGモードで回答したかどうか
	Provenance   []conversation.ChunkRef // 回答の根拠チャンク（RAGのみ）
	BestDistance mo.Option[float64]      // 判定に使った最良距離
	Degraded     bool                    // 検索失敗により通常モードへ縮退した場合 true
}
