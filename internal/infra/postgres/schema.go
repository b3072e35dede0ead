package postgres

import (
	"context"
	"fmt"
)

// EnsureSchema は必要なテーブルとインデックスを冪等に作成する
// dimension はEmbeddingベクトルの次元数
//
// 類似度検索は近似インデックスを使わず全件走査で行う
// 対象が社内ドキュメント規模のため、順位の正確さを優先する
func EnsureSchema(ctx context.Context, db DBTX, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid embedding dimension: %d", dimension)
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id           TEXT PRIMARY KEY,
			source       TEXT NOT NULL,
			page         INTEGER NOT NULL,
			ordinal      INTEGER NOT NULL,
			content      TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			token_count  INTEGER NOT NULL DEFAULT 0,
			embedding    vector(%d) NOT NULL,
			indexed_at   TIMESTAMPTZ NOT NULL
		)`, dimension),
		`CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks (source)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id         UUID PRIMARY KEY,
			title      TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id              UUID PRIMARY KEY,
			conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL,
			is_rag          BOOLEAN NOT NULL DEFAULT FALSE,
			chunks          JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created ON messages (conversation_id, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	return nil
}
