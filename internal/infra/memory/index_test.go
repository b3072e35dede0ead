package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion"
)

func chunkFixture(id, source string, page int, embedding []float32) *ingestion.Chunk {
	return &ingestion.Chunk{
		ID:          id,
		Source:      source,
		Page:        page,
		Ordinal:     1,
		Content:     "content of " + id,
		ContentHash: "hash-" + id,
		TokenCount:  3,
		Embedding:   embedding,
		IndexedAt:   time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestIndex_SearchOrdersByDistanceThenChunkID(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()

	err := idx.UpsertChunks(ctx, []*ingestion.Chunk{
		chunkFixture("c.pdf_1_1", "c.pdf", 1, []float32{1, 0, 0}),
		chunkFixture("b.txt_1_1", "b.txt", 1, []float32{0, 0, 1}),
		chunkFixture("a.pdf_1_2", "a.pdf", 1, []float32{0, 1, 0}),
	})
	require.NoError(t, err)

	hits, err := idx.SearchSimilar(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	// 完全一致が先頭、残り2件は同距離（√2）なのでチャンクIDの昇順
	assert.Equal(t, "c.pdf_1_1", hits[0].ChunkID)
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-9)
	assert.Equal(t, "a.pdf_1_2", hits[1].ChunkID)
	assert.Equal(t, "b.txt_1_1", hits[2].ChunkID)
	assert.Equal(t, hits[1].Distance, hits[2].Distance)
}

func TestIndex_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()

	first := chunkFixture("doc.pdf_1_1", "doc.pdf", 1, []float32{1, 0, 0})
	first.Content = "古い内容"
	require.NoError(t, idx.UpsertChunks(ctx, []*ingestion.Chunk{first}))

	second := chunkFixture("doc.pdf_1_1", "doc.pdf", 1, []float32{0, 1, 0})
	second.Content = "新しい内容"
	require.NoError(t, idx.UpsertChunks(ctx, []*ingestion.Chunk{second}))

	count, err := idx.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	hits, err := idx.SearchSimilar(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "新しい内容", hits[0].Content)
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-9)
}

func TestIndex_UpsertRejectsEmptyID(t *testing.T) {
	idx := NewIndex()

	err := idx.UpsertChunks(context.Background(), []*ingestion.Chunk{
		chunkFixture("", "doc.pdf", 1, []float32{1, 0, 0}),
	})
	assert.Error(t, err)
}

func TestIndex_SearchLimitsResults(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()

	require.NoError(t, idx.UpsertChunks(ctx, []*ingestion.Chunk{
		chunkFixture("a.pdf_1_1", "a.pdf", 1, []float32{1, 0, 0}),
		chunkFixture("a.pdf_1_2", "a.pdf", 1, []float32{0, 1, 0}),
		chunkFixture("a.pdf_1_3", "a.pdf", 1, []float32{0, 0, 1}),
	}))

	hits, err := idx.SearchSimilar(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = idx.SearchSimilar(ctx, []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_SearchEmptyIndexReturnsNoHits(t *testing.T) {
	idx := NewIndex()

	hits, err := idx.SearchSimilar(context.Background(), []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_SearchRejectsDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()

	require.NoError(t, idx.UpsertChunks(ctx, []*ingestion.Chunk{
		chunkFixture("a.pdf_1_1", "a.pdf", 1, []float32{1, 0, 0}),
	}))

	_, err := idx.SearchSimilar(ctx, []float32{1, 0}, 3)
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestIndex_DeleteBySourceAndListSources(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex()

	require.NoError(t, idx.UpsertChunks(ctx, []*ingestion.Chunk{
		chunkFixture("b.txt_1_1", "b.txt", 1, []float32{1, 0, 0}),
		chunkFixture("a.pdf_1_1", "a.pdf", 1, []float32{0, 1, 0}),
		chunkFixture("a.pdf_2_1", "a.pdf", 2, []float32{0, 0, 1}),
	}))

	sources, err := idx.ListSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.txt"}, sources)

	require.NoError(t, idx.DeleteChunksBySource(ctx, "a.pdf"))

	count, err := idx.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	sources, err = idx.ListSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt"}, sources)

	require.NoError(t, idx.DeleteAllChunks(ctx))

	count, err = idx.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
