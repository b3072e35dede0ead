package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/00-167cm/RAG-chatbot/internal/core/answer"
	"github.com/00-167cm/RAG-chatbot/internal/core/conversation"
	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion"
	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion/chunk"
	"github.com/00-167cm/RAG-chatbot/internal/core/search"
	"github.com/00-167cm/RAG-chatbot/internal/infra/extract"
	"github.com/00-167cm/RAG-chatbot/internal/infra/memory"
	"github.com/00-167cm/RAG-chatbot/internal/infra/openai"
	"github.com/00-167cm/RAG-chatbot/internal/infra/postgres"
	"github.com/00-167cm/RAG-chatbot/internal/infra/source"
	"github.com/00-167cm/RAG-chatbot/internal/infra/tokenizer"
	"github.com/00-167cm/RAG-chatbot/internal/platform/config"
	"github.com/00-167cm/RAG-chatbot/internal/shared/clock"
)

// ChunkStore はチャンクの取り込みと類似度検索の両方を満たすリポジトリ
type ChunkStore interface {
	ingestion.Repository
	search.Repository
}

// ServiceContainer はアプリケーション全体の依存関係を保持する
type ServiceContainer struct {
	LocalIngestService  *ingestion.IngestService
	GitIngestService    *ingestion.IngestService
	SearchService       *search.Service
	ConversationService *conversation.Service
	AnswerService       *answer.Service

	logger *slog.Logger
	pool   *pgxpool.Pool
}

type containerOptions struct {
	logger           *slog.Logger
	clk              clock.Clock
	embedder         ingestion.Embedder
	chatClient       answer.ChatClient
	titleClient      conversation.TitleClient
	tokenCounter     ingestion.TokenCounter
	chunkStore       ChunkStore
	conversationRepo conversation.Repository
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerClock は時刻取得を差し替える
func WithContainerClock(clk clock.Clock) ContainerOption {
	return func(opts *containerOptions) {
		opts.clk = clk
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder ingestion.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerChatClient はLLMチャットクライアントを差し替える
func WithContainerChatClient(client answer.ChatClient) ContainerOption {
	return func(opts *containerOptions) {
		opts.chatClient = client
	}
}

// WithContainerTitleClient はタイトル生成クライアントを差し替える
func WithContainerTitleClient(client conversation.TitleClient) ContainerOption {
	return func(opts *containerOptions) {
		opts.titleClient = client
	}
}

// WithContainerTokenCounter は TokenCounter を差し替える
func WithContainerTokenCounter(counter ingestion.TokenCounter) ContainerOption {
	return func(opts *containerOptions) {
		opts.tokenCounter = counter
	}
}

// WithContainerChunkStore はチャンクリポジトリを差し替える
func WithContainerChunkStore(store ChunkStore) ContainerOption {
	return func(opts *containerOptions) {
		opts.chunkStore = store
	}
}

// WithContainerConversationRepository は会話リポジトリを差し替える
func WithContainerConversationRepository(repo conversation.Repository) ContainerOption {
	return func(opts *containerOptions) {
		opts.conversationRepo = repo
	}
}

// NewContainer はPostgreSQLをストアとしてコンテナを生成する
// 接続後にスキーマを検証し、不足するテーブルは作成する
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	pool, err := postgres.Connect(ctx, postgres.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
	}

	if err := postgres.EnsureSchema(ctx, pool, cfg.OpenAI.EmbeddingDimension); err != nil {
		pool.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗しました: %w", err)
	}

	return NewContainerWithPool(cfg, pool, opts...)
}

// NewContainerWithPool は既存の接続プールを受け取りコンテナを生成する
func NewContainerWithPool(cfg *config.Config, pool *pgxpool.Pool, opts ...ContainerOption) (*ServiceContainer, error) {
	options := applyContainerOptions(opts)

	if options.chunkStore == nil {
		options.chunkStore = postgres.NewChunkRepository(pool)
	}
	if options.conversationRepo == nil {
		options.conversationRepo = postgres.NewConversationRepository(pool, options.clk)
	}

	c, err := assemble(cfg, options)
	if err != nil {
		return nil, err
	}
	c.pool = pool
	return c, nil
}

// NewMemoryContainer はインメモリストアでコンテナを生成する
// PostgreSQLへは接続せず、データはプロセス終了とともに失われる
func NewMemoryContainer(cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	options := applyContainerOptions(opts)

	if options.chunkStore == nil {
		options.chunkStore = memory.NewIndex()
	}
	if options.conversationRepo == nil {
		options.conversationRepo = memory.NewConversationStore(options.clk)
	}

	return assemble(cfg, options)
}

func applyContainerOptions(opts []ContainerOption) containerOptions {
	options := containerOptions{
		logger: slog.Default(),
		clk:    clock.NewJST(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.clk == nil {
		options.clk = clock.NewJST()
	}
	return options
}

// assemble はストア以外の依存関係を構築してコンテナを組み立てる
func assemble(cfg *config.Config, options containerOptions) (*ServiceContainer, error) {
	// Embedder (OpenAI)
	embedder := options.embedder
	if embedder == nil {
		embedder = openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
		)
	}

	// ChatClient / TitleClient (OpenAI)
	// どちらも未注入の場合は同一クライアントを共有する
	chatClient := options.chatClient
	titleClient := options.titleClient
	if chatClient == nil || titleClient == nil {
		client, err := openai.NewClient(
			cfg.OpenAI.APIKey,
			openai.WithChatModel(cfg.OpenAI.ChatModel),
			openai.WithTemperature(cfg.OpenAI.Temperature),
		)
		if err != nil {
			return nil, fmt.Errorf("OpenAIクライアント初期化に失敗しました: %w", err)
		}
		if chatClient == nil {
			chatClient = client
		}
		if titleClient == nil {
			titleClient = client
		}
	}

	// TokenCounter (tiktoken)
	tokenCounter := options.tokenCounter
	if tokenCounter == nil {
		tc, err := tokenizer.NewTokenCounter()
		if err != nil {
			return nil, fmt.Errorf("TokenCounter初期化に失敗しました: %w", err)
		}
		tokenCounter = tc
	}

	// Chunker
	chunker, err := chunk.NewTextChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("Chunker初期化に失敗しました: %w", err)
	}

	// テキスト抽出（unidocのライセンスはプロセス全体で一度だけ適用される）
	if err := extract.ApplyPDFLicense(cfg.Ingest.UnidocLicenseKey); err != nil {
		return nil, fmt.Errorf("unidocライセンス設定に失敗しました: %w", err)
	}
	extractor := extract.NewExtractor()

	// SourceProvider（ローカルディレクトリ / Git）
	localProvider := source.NewDirProvider(extractor, source.WithDirLogger(options.logger))

	gitOpts := []source.GitProviderOption{source.WithGitLogger(options.logger)}
	if cfg.Ingest.SSHKeyPath != "" {
		gitOpts = append(gitOpts, source.WithGitSSHKey(cfg.Ingest.SSHKeyPath, cfg.Ingest.SSHKeyPassword))
	}
	gitProvider := source.NewGitProvider(extractor, cfg.Ingest.CloneDir, gitOpts...)

	// IngestService（ソース種別ごと）
	localIngest := ingestion.NewIngestService(
		options.chunkStore,
		localProvider,
		embedder,
		chunker,
		tokenCounter,
		ingestion.WithIngestLogger(options.logger),
	)
	gitIngest := ingestion.NewIngestService(
		options.chunkStore,
		gitProvider,
		embedder,
		chunker,
		tokenCounter,
		ingestion.WithIngestLogger(options.logger),
	)

	// SearchService
	searchService := search.NewService(
		options.chunkStore,
		embedder,
		cfg.RAG.Threshold,
		search.WithSearchLogger(options.logger),
		search.WithSearchTopK(cfg.RAG.TopK),
	)

	// ConversationService
	conversationService := conversation.NewService(
		options.conversationRepo,
		titleClient,
		conversation.WithConversationLogger(options.logger),
		conversation.WithTitleMaxLength(cfg.Chat.TitleMaxLength),
	)

	// AnswerService
	answerService := answer.NewService(
		searchService,
		conversationService,
		chatClient,
		tokenCounter,
		answer.WithAnswerLogger(options.logger),
		answer.WithContextTokenBudget(cfg.RAG.ContextTokenBudget),
	)

	return &ServiceContainer{
		LocalIngestService:  localIngest,
		GitIngestService:    gitIngest,
		SearchService:       searchService,
		ConversationService: conversationService,
		AnswerService:       answerService,
		logger:              options.logger,
	}, nil
}

// IngestServiceFor は識別子の種類に応じた取り込みサービスを返す
// Git URLなら GitIngestService、それ以外は LocalIngestService
func (c *ServiceContainer) IngestServiceFor(identifier string) *ingestion.IngestService {
	if source.IsGitURL(identifier) {
		return c.GitIngestService
	}
	return c.LocalIngestService
}

// Close は内部リソースを解放する
func (c *ServiceContainer) Close() {
	if c != nil && c.pool != nil {
		c.pool.Close()
	}
}

// Logger はロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Pool はデータベース接続プールを返す
// インメモリストアの場合は nil
func (c *ServiceContainer) Pool() *pgxpool.Pool {
	if c == nil {
		return nil
	}
	return c.pool
}
