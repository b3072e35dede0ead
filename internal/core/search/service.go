package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/mo"
)

var (
	// ErrEmbedding はクエリのEmbedding生成に失敗した場合のエラー
	ErrEmbedding = errors.New("query embedding failed")
	// ErrRetrieval はベクトル検索に失敗した場合のエラー
	ErrRetrieval = errors.New("vector search failed")
)

// DefaultTopK はデフォルトの検索件数
const DefaultTopK = 3

// Service はモード判定と関連チャンク検索のビジネスロジックを提供する
type Service struct {
	repo      Repository
	embedder  Embedder
	threshold float64
	topK      int
	logger    *slog.Logger
}

type serviceOptions struct {
	topK   int
	logger *slog.Logger
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*serviceOptions)

// WithSearchLogger は Service にロガーを設定する
func WithSearchLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithSearchTopK は検索件数を上書きする
func WithSearchTopK(k int) ServiceOption {
	return func(o *serviceOptions) {
		o.topK = k
	}
}

// NewService は新しいServiceを作成する
func NewService(repo Repository, embedder Embedder, threshold float64, opts ...ServiceOption) *Service {
	options := serviceOptions{
		topK:   DefaultTopK,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.topK <= 0 {
		options.topK = DefaultTopK
	}

	return &Service{
		repo:      repo,
		embedder:  embedder,
		threshold: threshold,
		topK:      options.topK,
		logger:    options.logger,
	}
}

// Route はクエリをEmbeddingし、ベクトル検索の最良距離からモードを判定する
// RAGモードのときは判定に使った検索結果をそのまま上位K件として返す
// （クエリのEmbeddingは判定と検索で1回だけ生成する）
func (s *Service) Route(ctx context.Context, query string) (*Decision, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	hits, err := s.repo.SearchSimilar(ctx, queryVector, s.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}

	best := mo.None[float64]()
	if len(hits) > 0 {
		best = mo.Some(hits[0].Distance)
	}

	mode := Route(best, s.threshold)

	decision := &Decision{
		Mode:         mode,
		BestDistance: best,
		Threshold:    s.threshold,
		QueryVector:  queryVector,
	}
	if mode == ModeRAG {
		decision.Hits = hits
	}

	s.logger.Debug("モード判定",
		"mode", mode,
		"bestDistance", best.OrElse(-1),
		"threshold", s.threshold,
		"hits", len(hits),
	)

	return decision, nil
}
