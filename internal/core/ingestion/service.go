package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion/chunk"
)

// IndexStat はインデックスの現在の状態を表す
type IndexStat struct {
	TotalChunks int64
	Sources     []string
}

// IngestService は取り込みのユースケースを提供する
type IngestService struct {
	repository     Repository
	sourceProvider SourceProvider
	embedder       Embedder
	chunker        *chunk.TextChunker
	tokenCounter   TokenCounter
	pipelineConfig *PipelineConfig
	logger         *slog.Logger
}

type ingestServiceOptions struct {
	pipelineConfig *PipelineConfig
	logger         *slog.Logger
}

// IngestServiceOption は IngestService のオプション設定
type IngestServiceOption func(*ingestServiceOptions)

// WithIngestLogger は IngestService にロガーを設定する
func WithIngestLogger(logger *slog.Logger) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.logger = logger
	}
}

// WithIngestPipelineConfig はパイプライン設定を上書きする
func WithIngestPipelineConfig(cfg *PipelineConfig) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.pipelineConfig = cfg
	}
}

// NewIngestService は新しいIngestServiceを作成する
func NewIngestService(
	repo Repository,
	sourceProvider SourceProvider,
	embedder Embedder,
	chunker *chunk.TextChunker,
	tokenCounter TokenCounter,
	opts ...IngestServiceOption,
) *IngestService {
	options := ingestServiceOptions{
		pipelineConfig: DefaultPipelineConfig(),
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.pipelineConfig == nil {
		options.pipelineConfig = DefaultPipelineConfig()
	}

	return &IngestService{
		repository:     repo,
		sourceProvider: sourceProvider,
		embedder:       embedder,
		chunker:        chunker,
		tokenCounter:   tokenCounter,
		pipelineConfig: options.pipelineConfig,
		logger:         options.logger,
	}
}

// Ingest はソースのドキュメントをチャンク化してインデックスに取り込む
func (s *IngestService) Ingest(ctx context.Context, params IngestParams) (*IngestResult, error) {
	startTime := time.Now()

	s.logger.Info("取り込みを開始",
		"sourceType", s.sourceProvider.GetSourceType(),
		"identifier", params.Identifier,
		"replace", params.Replace,
	)

	// パラメータのバリデーション
	if err := s.validateParams(params); err != nil {
		return nil, fmt.Errorf("パラメータのバリデーションエラー: %w", err)
	}

	// ソースからドキュメントを取得
	documents, err := s.sourceProvider.FetchDocuments(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの取得に失敗: %w", err)
	}

	s.logger.Info("ドキュメントを取得", "count", len(documents))

	// 再取り込み時は同名ソースの既存チャンクを先に削除する
	// 短くなったドキュメントの残骸チャンクを残さないため
	if params.Replace {
		seen := make(map[string]struct{}, len(documents))
		for _, doc := range documents {
			if s.sourceProvider.ShouldIgnore(doc) {
				continue
			}
			if _, ok := seen[doc.Source]; ok {
				continue
			}
			seen[doc.Source] = struct{}{}
			if err := s.repository.DeleteChunksBySource(ctx, doc.Source); err != nil {
				return nil, fmt.Errorf("既存チャンクの削除に失敗: %w", err)
			}
		}
	}

	// パイプライン処理でドキュメントを取り込む
	pipeline := NewIngestPipeline(
		s.repository,
		s.embedder,
		s.chunker,
		s.tokenCounter,
		s.pipelineConfig,
		s.logger,
	)

	stats, err := pipeline.ProcessDocuments(ctx, documents, s.sourceProvider.ShouldIgnore)
	if err != nil {
		return nil, fmt.Errorf("パイプライン処理に失敗: %w", err)
	}

	duration := time.Since(startTime)

	s.logger.Info("取り込みが完了",
		"processedDocuments", stats.ProcessedDocuments,
		"totalChunks", stats.TotalChunks,
		"storedChunks", stats.StoredChunks,
		"duration", duration,
	)

	return &IngestResult{
		ProcessedDocuments: stats.ProcessedDocuments,
		TotalChunks:        stats.StoredChunks,
		Duration:           duration,
	}, nil
}

// Reload はインデックスを空にしてからソースを取り込み直す
func (s *IngestService) Reload(ctx context.Context, params IngestParams) (*IngestResult, error) {
	if err := s.Clear(ctx); err != nil {
		return nil, err
	}
	// 全削除済みなので既存チャンクの個別削除は不要
	params.Replace = false
	return s.Ingest(ctx, params)
}

// RemoveSource は指定ソースのチャンクをインデックスから削除する
func (s *IngestService) RemoveSource(ctx context.Context, source string) error {
	if err := s.repository.DeleteChunksBySource(ctx, source); err != nil {
		return fmt.Errorf("ソースのチャンク削除に失敗: %w", err)
	}
	s.logger.Info("ソースのチャンクを削除", "source", source)
	return nil
}

// Clear はインデックスを空にする
func (s *IngestService) Clear(ctx context.Context) error {
	if err := s.repository.DeleteAllChunks(ctx); err != nil {
		return fmt.Errorf("インデックスの削除に失敗: %w", err)
	}
	s.logger.Info("インデックスを削除しました")
	return nil
}

// Stat はインデックスの統計情報を返す
func (s *IngestService) Stat(ctx context.Context) (*IndexStat, error) {
	count, err := s.repository.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("チャンク数の取得に失敗: %w", err)
	}
	sources, err := s.repository.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("ソース一覧の取得に失敗: %w", err)
	}
	return &IndexStat{TotalChunks: count, Sources: sources}, nil
}

// validateParams は取り込みパラメータをバリデートする
func (s *IngestService) validateParams(params IngestParams) error {
	if params.Identifier == "" {
		return fmt.Errorf("identifier は必須です")
	}
	return nil
}

// generateChunkID はチャンクのユニークIDを生成する
// 形式: {source}_{page}_{ordinal}（例: doc.pdf_1_1）
func generateChunkID(source string, page, ordinal int) string {
	return fmt.Sprintf("%s_%d_%d", source, page, ordinal)
}
