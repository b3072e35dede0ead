package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion"
	"github.com/00-167cm/RAG-chatbot/internal/core/search"
)

// Index はメモリ上のチャンクインデックス
// DBを使わない開発モード（--store memory）とテストで利用する
// 検索の並び順の契約はPostgres実装と同一（距離の昇順、同距離はチャンクIDの昇順）
type Index struct {
	mu     sync.RWMutex
	chunks map[string]ingestion.Chunk
}

var (
	_ ingestion.Repository = (*Index)(nil)
	_ search.Repository    = (*Index)(nil)
)

// NewIndex は空のインメモリインデックスを作成する
func NewIndex() *Index {
	return &Index{
		chunks: make(map[string]ingestion.Chunk),
	}
}

// UpsertChunks はチャンクを一括で書き込む
// 同一IDのチャンクが既に存在する場合は内容・ベクトルを置き換える
func (idx *Index) UpsertChunks(ctx context.Context, chunks []*ingestion.Chunk) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, chunk := range chunks {
		if chunk == nil || chunk.ID == "" {
			return fmt.Errorf("invalid chunk: empty ID")
		}
		idx.chunks[chunk.ID] = *chunk
	}
	return nil
}

// DeleteChunksBySource は指定ソースのチャンクをすべて削除する
func (idx *Index) DeleteChunksBySource(ctx context.Context, source string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for id, chunk := range idx.chunks {
		if chunk.Source == source {
			delete(idx.chunks, id)
		}
	}
	return nil
}

// DeleteAllChunks はインデックスを空にする
func (idx *Index) DeleteAllChunks(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.chunks = make(map[string]ingestion.Chunk)
	return nil
}

// CountChunks はインデックスに含まれるチャンク数を返す
func (idx *Index) CountChunks(ctx context.Context) (int64, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return int64(len(idx.chunks)), nil
}

// ListSources はインデックスに含まれるソース名の一覧を昇順で返す
func (idx *Index) ListSources(ctx context.Context) ([]string, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, chunk := range idx.chunks {
		seen[chunk.Source] = struct{}{}
	}

	sources := make([]string, 0, len(seen))
	for source := range seen {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources, nil
}

// SearchSimilar はクエリベクトルに近い順にチャンクを全件走査で検索する
// 結果は距離の昇順、同距離の場合はチャンクIDの昇順で返す
func (idx *Index) SearchSimilar(ctx context.Context, queryVector []float32, limit int) ([]*search.Hit, error) {
	if limit <= 0 {
		return []*search.Hit{}, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make([]*search.Hit, 0, len(idx.chunks))
	for _, chunk := range idx.chunks {
		if len(chunk.Embedding) != len(queryVector) {
			return nil, fmt.Errorf("embedding dimension mismatch: chunk %s has %d, query has %d",
				chunk.ID, len(chunk.Embedding), len(queryVector))
		}
		hits = append(hits, &search.Hit{
			ChunkID:  chunk.ID,
			Source:   chunk.Source,
			Page:     chunk.Page,
			Content:  chunk.Content,
			Distance: l2Distance(queryVector, chunk.Embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

// l2Distance は2つのベクトル間のユークリッド距離を返す
func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
