package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion"
	"github.com/00-167cm/RAG-chatbot/internal/core/search"
)

// ChunkRepository はチャンクインデックスへの PostgreSQL データアクセスを提供する
// 取り込み側の書き込みと検索側の類似度検索の両方を実装する
type ChunkRepository struct {
	db DBTX
}

// NewChunkRepository は新しい ChunkRepository を返す
func NewChunkRepository(db DBTX) *ChunkRepository {
	return &ChunkRepository{db: db}
}

var (
	_ ingestion.Repository = (*ChunkRepository)(nil)
	_ search.Repository    = (*ChunkRepository)(nil)
)

// UpsertChunks はチャンクを一括で書き込む
// 同一IDの行は内容・ベクトル・メタデータを置き換える
func (r *ChunkRepository) UpsertChunks(ctx context.Context, chunks []*ingestion.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(`
			INSERT INTO chunks (id, source, page, ordinal, content, content_hash, token_count, embedding, indexed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				source       = EXCLUDED.source,
				page         = EXCLUDED.page,
				ordinal      = EXCLUDED.ordinal,
				content      = EXCLUDED.content,
				content_hash = EXCLUDED.content_hash,
				token_count  = EXCLUDED.token_count,
				embedding    = EXCLUDED.embedding,
				indexed_at   = EXCLUDED.indexed_at
		`,
			chunk.ID,
			chunk.Source,
			chunk.Page,
			chunk.Ordinal,
			chunk.Content,
			chunk.ContentHash,
			chunk.TokenCount,
			pgvector.NewVector(chunk.Embedding),
			TimeToPgtype(chunk.IndexedAt),
		)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert chunks: %w", err)
		}
	}

	return nil
}

// DeleteChunksBySource は指定ソースのチャンクをすべて削除する
func (r *ChunkRepository) DeleteChunksBySource(ctx context.Context, source string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE source = $1`, source); err != nil {
		return fmt.Errorf("failed to delete chunks by source: %w", err)
	}
	return nil
}

// DeleteAllChunks はインデックスを空にする
func (r *ChunkRepository) DeleteAllChunks(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("failed to delete all chunks: %w", err)
	}
	return nil
}

// CountChunks はインデックス内のチャンク総数を返す
func (r *ChunkRepository) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// ListSources はインデックスに含まれるソース名の一覧を返す
func (r *ChunkRepository) ListSources(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT source FROM chunks ORDER BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sources: %w", err)
	}

	return sources, nil
}

// SearchSimilar はL2距離の近い順に類似チャンクを検索する
// 同距離の場合はチャンクIDの昇順で順位を安定させる
func (r *ChunkRepository) SearchSimilar(ctx context.Context, queryVector []float32, limit int) ([]*search.Hit, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, source, page, content, embedding <-> $1 AS distance
		FROM chunks
		ORDER BY embedding <-> $1 ASC, id ASC
		LIMIT $2
	`, pgvector.NewVector(queryVector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar chunks: %w", err)
	}
	defer rows.Close()

	var hits []*search.Hit
	for rows.Next() {
		var hit search.Hit
		if err := rows.Scan(&hit.ChunkID, &hit.Source, &hit.Page, &hit.Content, &hit.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan search hit: %w", err)
		}
		hits = append(hits, &hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search hits: %w", err)
	}

	return hits, nil
}
