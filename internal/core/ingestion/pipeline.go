package ingestion

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion/chunk"
)

const (
	// DefaultChunkWorkerCount はデフォルトのチャンク分割ワーカー数（CPU バウンド）
	DefaultChunkWorkerCount = 4
	// DefaultEmbeddingWorkerCount はデフォルトのEmbeddingワーカー数（I/O バウンド）
	DefaultEmbeddingWorkerCount = 8
	// DefaultEmbeddingBatchSize はEmbedding APIのデフォルトバッチサイズ
	DefaultEmbeddingBatchSize = 100
	// DefaultFailOnEmbeddingError はEmbeddingエラー時にパイプラインを停止するかのデフォルト値
	DefaultFailOnEmbeddingError = false
	// MinBatchSize は最小バッチサイズ（MaxBatchSize()が0を返した場合のフォールバック）
	MinBatchSize = 1
)

// PipelineConfig はパイプライン処理の設定
type PipelineConfig struct {
	// ChunkWorkerCount はチャンク分割ワーカー数（CPU バウンド処理用）
	ChunkWorkerCount int
	// EmbeddingWorkerCount はEmbedding生成ワーカー数（I/O バウンド処理用）
	EmbeddingWorkerCount int
	// EmbeddingBatchSize はEmbeddingバッチサイズ（Embedder.MaxBatchSize()でクリップされる）
	EmbeddingBatchSize int
	// FailOnEmbeddingError はEmbeddingエラー時にパイプラインを停止するかどうか
	FailOnEmbeddingError bool
}

// DefaultPipelineConfig はデフォルトのパイプライン設定を返す
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		ChunkWorkerCount:     DefaultChunkWorkerCount,
		EmbeddingWorkerCount: DefaultEmbeddingWorkerCount,
		EmbeddingBatchSize:   DefaultEmbeddingBatchSize,
		FailOnEmbeddingError: DefaultFailOnEmbeddingError,
	}
}

// PipelineStats はパイプライン処理の統計情報
type PipelineStats struct {
	ProcessedDocuments  int // 処理したドキュメント数
	TotalChunks         int // チャンク化で生成されたチャンク数
	StoredChunks        int // インデックスへ保存されたチャンク数
	FailedEmbeddings    int // Embedding生成/保存失敗したチャンク数
	EmbeddingMismatches int // ベクトル数不一致の回数
}

// documentResult はドキュメント処理の結果
type documentResult struct {
	Source     string
	ChunkCount int
}

// IngestPipeline はパイプライン処理を実行する
type IngestPipeline struct {
	repository   Repository
	embedder     Embedder
	chunker      *chunk.TextChunker
	tokenCounter TokenCounter
	config       *PipelineConfig
	logger       *slog.Logger

	// 実際に使用するバッチサイズ（Embedder.MaxBatchSize()でクリップ済み）
	effectiveBatchSize int
}

// NewIngestPipeline は新しいIngestPipelineを作成する
func NewIngestPipeline(
	repository Repository,
	embedder Embedder,
	chunker *chunk.TextChunker,
	tokenCounter TokenCounter,
	config *PipelineConfig,
	logger *slog.Logger,
) *IngestPipeline {
	if config == nil {
		config = DefaultPipelineConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	// バッチサイズをEmbedderの最大値でクリップ
	effectiveBatchSize := config.EmbeddingBatchSize
	maxBatchSize := embedder.MaxBatchSize()

	// MaxBatchSize が0以下の場合はフォールバック
	if maxBatchSize <= 0 {
		logger.Warn("Embedder.MaxBatchSize()が無効な値を返しました。フォールバック値を使用します",
			"returned", maxBatchSize,
			"fallback", MinBatchSize,
		)
		maxBatchSize = MinBatchSize
	}

	if effectiveBatchSize > maxBatchSize {
		logger.Info("EmbeddingBatchSizeをEmbedderの最大値でクリップ",
			"configured", effectiveBatchSize,
			"max", maxBatchSize,
		)
		effectiveBatchSize = maxBatchSize
	}

	// effectiveBatchSizeも0以下の場合はフォールバック
	if effectiveBatchSize <= 0 {
		effectiveBatchSize = MinBatchSize
	}

	return &IngestPipeline{
		repository:         repository,
		embedder:           embedder,
		chunker:            chunker,
		tokenCounter:       tokenCounter,
		config:             config,
		logger:             logger,
		effectiveBatchSize: effectiveBatchSize,
	}
}

// ProcessDocuments はドキュメントをパイプライン処理でインデックスに取り込む
func (p *IngestPipeline) ProcessDocuments(
	ctx context.Context,
	documents []*Document,
	shouldIgnore func(*Document) bool,
) (*PipelineStats, error) {
	// Stage 1: ドキュメントチャネル（入力）
	docChan := make(chan *Document, len(documents))

	// Stage 2: チャンクチャネル（Embedding生成用）
	chunkChan := make(chan *Chunk, p.config.EmbeddingWorkerCount*p.effectiveBatchSize)

	// 結果チャネル
	resultChan := make(chan *documentResult, len(documents))

	// エラー追跡用
	var pipelineErr atomic.Value
	var storedChunks atomic.Int64
	var failedEmbeddings atomic.Int64
	var embeddingMismatches atomic.Int64

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Stage 1: ドキュメントをチャネルに投入
	go func() {
		defer close(docChan)
		for _, doc := range documents {
			if shouldIgnore(doc) {
				p.logger.Debug("ドキュメントを除外", "source", doc.Source, "path", doc.Path)
				continue
			}
			select {
			case docChan <- doc:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Stage 2: チャンク分割ワーカー（ドキュメント→チャンク）
	var chunkWg sync.WaitGroup
	chunkWg.Add(p.config.ChunkWorkerCount)
	for i := 0; i < p.config.ChunkWorkerCount; i++ {
		go func() {
			defer chunkWg.Done()
			p.chunkWorker(ctx, docChan, chunkChan, resultChan)
		}()
	}

	// チャンク分割完了を待ってチャンクチャネルを閉じる
	go func() {
		chunkWg.Wait()
		close(chunkChan)
	}()

	// Stage 3: Embedding生成・保存ワーカー
	var embeddingWg sync.WaitGroup
	embeddingWg.Add(p.config.EmbeddingWorkerCount)
	for i := 0; i < p.config.EmbeddingWorkerCount; i++ {
		go func() {
			defer embeddingWg.Done()
			p.embeddingWorker(ctx, cancel, chunkChan, &pipelineErr, &storedChunks, &failedEmbeddings, &embeddingMismatches)
		}()
	}

	// Embedding完了を待って結果チャネルを閉じる
	go func() {
		embeddingWg.Wait()
		close(resultChan)
	}()

	// 結果集計
	stats := &PipelineStats{}
	for result := range resultChan {
		stats.ProcessedDocuments++
		stats.TotalChunks += result.ChunkCount
	}

	stats.StoredChunks = int(storedChunks.Load())
	stats.FailedEmbeddings = int(failedEmbeddings.Load())
	stats.EmbeddingMismatches = int(embeddingMismatches.Load())

	// 致命的エラーがあった場合
	if errVal := pipelineErr.Load(); errVal != nil {
		if pipeErr, ok := errVal.(error); ok {
			return stats, fmt.Errorf("パイプライン処理中に致命的エラー: %w", pipeErr)
		}
	}

	// 統計情報をログ出力
	if stats.FailedEmbeddings > 0 || stats.EmbeddingMismatches > 0 {
		p.logger.Warn("パイプライン処理完了（一部失敗あり）",
			"processedDocuments", stats.ProcessedDocuments,
			"totalChunks", stats.TotalChunks,
			"storedChunks", stats.StoredChunks,
			"failedEmbeddings", stats.FailedEmbeddings,
			"embeddingMismatches", stats.EmbeddingMismatches,
		)
	}

	return stats, nil
}

// chunkWorker はドキュメントを区画ごとにチャンク分割して送信するワーカー
func (p *IngestPipeline) chunkWorker(
	ctx context.Context,
	docChan <-chan *Document,
	chunkChan chan<- *Chunk,
	resultChan chan<- *documentResult,
) {
	for doc := range docChan {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now()
		docChunkCount := 0

		for _, section := range doc.Sections {
			pieces := p.chunker.Split(section.Text)
			for i, content := range pieces {
				ch := &Chunk{
					ID:          generateChunkID(doc.Source, section.Page, i+1),
					Source:      doc.Source,
					Page:        section.Page,
					Ordinal:     i + 1,
					Content:     content,
					ContentHash: computeContentHash(content),
					TokenCount:  p.tokenCounter.CountTokens(content),
					IndexedAt:   now,
				}
				select {
				case chunkChan <- ch:
				case <-ctx.Done():
					return
				}
				docChunkCount++
			}
		}

		// ドキュメント処理完了を通知
		select {
		case resultChan <- &documentResult{Source: doc.Source, ChunkCount: docChunkCount}:
		case <-ctx.Done():
			return
		}
	}
}

// embeddingWorker はバッチのEmbeddingを生成してインデックスに保存するワーカー
func (p *IngestPipeline) embeddingWorker(
	ctx context.Context,
	cancel context.CancelFunc,
	chunkChan <-chan *Chunk,
	pipelineErr *atomic.Value,
	storedChunks *atomic.Int64,
	failedEmbeddings *atomic.Int64,
	embeddingMismatches *atomic.Int64,
) {
	pendingItems := make([]*Chunk, 0, p.effectiveBatchSize)

	processBatch := func() bool {
		if len(pendingItems) == 0 {
			return true
		}

		texts := make([]string, 0, len(pendingItems))
		for _, it := range pendingItems {
			texts = append(texts, it.Content)
		}

		vectors, err := p.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			p.logger.Error("バッチEmbedding生成に失敗",
				"batchSize", len(texts),
				"error", err,
			)
			failedEmbeddings.Add(int64(len(pendingItems)))

			if p.config.FailOnEmbeddingError {
				pipelineErr.Store(fmt.Errorf("embedding生成失敗: %w", err))
				cancel()
				return false
			}
			pendingItems = pendingItems[:0]
			return true
		}

		if len(vectors) != len(pendingItems) {
			p.logger.Error("Embeddingベクトル数が不一致",
				"expected", len(pendingItems),
				"actual", len(vectors),
			)
			embeddingMismatches.Add(1)

			diff := len(vectors) - len(pendingItems)
			if diff < 0 {
				diff = -diff
			}
			failedEmbeddings.Add(int64(diff))

			if p.config.FailOnEmbeddingError {
				pipelineErr.Store(errors.New("Embeddingベクトル数が入力と一致しません"))
				cancel()
				return false
			}
		}

		limit := min(len(vectors), len(pendingItems))
		batch := make([]*Chunk, 0, limit)
		for i := range limit {
			pendingItems[i].Embedding = vectors[i]
			batch = append(batch, pendingItems[i])
		}

		if err := p.repository.UpsertChunks(ctx, batch); err != nil {
			p.logger.Error("チャンクのバッチ保存に失敗",
				"count", len(batch),
				"error", err,
			)
			failedEmbeddings.Add(int64(len(batch)))

			if p.config.FailOnEmbeddingError {
				pipelineErr.Store(fmt.Errorf("チャンク保存失敗: %w", err))
				cancel()
				return false
			}
		} else {
			storedChunks.Add(int64(len(batch)))
		}

		pendingItems = pendingItems[:0]
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-chunkChan:
			if !ok {
				processBatch()
				return
			}

			pendingItems = append(pendingItems, item)

			if len(pendingItems) >= p.effectiveBatchSize {
				if !processBatch() {
					return
				}
			}
		}
	}
}

// computeContentHash はコンテンツのSHA256ハッシュを計算する
func computeContentHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", hash)
}
