package conversation

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTitle は新規会話のプレースホルダタイトル
const DefaultTitle = "新規チャット"

// Role はメッセージの発話者を表す
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChunkRef は回答の根拠となったチャンク参照を表す
// JSONキーは保存形式（chunk_id / distance / source）に合わせる
type ChunkRef struct {
	ChunkID  string  `json:"chunk_id"`
	Distance float64 `json:"distance"`
	Source   string  `json:"source"`
}

// Message は会話内の1メッセージを表す
type Message struct {
	ID        uuid.UUID  `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"` // JSTで単調増加
	IsRAG     bool       `json:"isRAG"`
	Chunks    []ChunkRef `json:"chunks,omitempty"` // RAG回答のみ
}

// Conversation は1つの会話スレッドを表す
type Conversation struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasPlaceholderTitle はタイトルが未生成のままかどうかを返す
func (c *Conversation) HasPlaceholderTitle() bool {
	return hasPlaceholderTitle(c.Title)
}
