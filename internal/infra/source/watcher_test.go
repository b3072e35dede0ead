package source

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion"
	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion/chunk"
	"github.com/00-167cm/RAG-chatbot/internal/infra/extract"
	"github.com/00-167cm/RAG-chatbot/internal/infra/memory"
)

type stubEmbedder struct{}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (e *stubEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (e *stubEmbedder) ModelName() string { return "stub-embedding" }

func (e *stubEmbedder) MaxBatchSize() int { return 100 }

type runeTokenCounter struct{}

func (runeTokenCounter) CountTokens(text string) int { return len([]rune(text)) }

func newWatcherFixture(t *testing.T) (*Watcher, *memory.Index) {
	t.Helper()

	idx := memory.NewIndex()
	chunker, err := chunk.NewTextChunker(100, 20)
	require.NoError(t, err)

	provider := NewDirProvider(extract.NewExtractor(), WithDirLogger(silentLogger()))
	svc := ingestion.NewIngestService(
		idx,
		provider,
		&stubEmbedder{},
		chunker,
		runeTokenCounter{},
		ingestion.WithIngestLogger(silentLogger()),
	)

	return NewWatcher(svc, WithWatcherLogger(silentLogger())), idx
}

func TestWatcher_ReingestsOnCreateAndDeletesOnRemove(t *testing.T) {
	dir := t.TempDir()
	w, idx := newWatcherFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, dir)
	}()

	// 監視の開始を待つ
	time.Sleep(200 * time.Millisecond)

	path := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(path, []byte("監視対象のテキストです。"), 0o644))

	require.Eventually(t, func() bool {
		sources, err := idx.ListSources(ctx)
		return err == nil && slices.Contains(sources, "b.txt")
	}, 5*time.Second, 50*time.Millisecond, "作成されたファイルが取り込まれていない")

	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		sources, err := idx.ListSources(ctx)
		return err == nil && !slices.Contains(sources, "b.txt")
	}, 5*time.Second, 50*time.Millisecond, "削除されたファイルのチャンクが残っている")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("コンテキストのキャンセル後も監視が終了しない")
	}
}

func TestWatcher_IgnoresUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	w, idx := newWatcherFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, dir)
	}()

	time.Sleep(200 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte("\x89PNG"), 0o644))

	// 対応していない拡張子は取り込まれないことを確認する
	time.Sleep(500 * time.Millisecond)
	count, err := idx.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	cancel()
	<-done
}
