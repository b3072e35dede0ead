package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/00-167cm/RAG-chatbot/internal/platform/config"
	"github.com/00-167cm/RAG-chatbot/internal/platform/container"
	"github.com/00-167cm/RAG-chatbot/internal/platform/logger"
)

// AppContext はコマンド実行に必要な共通コンテキストを保持する
type AppContext struct {
	Config    *config.Config
	Container *container.ServiceContainer
}

// NewAppContext は設定を読み込み、ストアに応じたコンテナを組み立てて AppContext を作成する
// store は "pg"（デフォルト）または "memory"
func NewAppContext(ctx context.Context, envFile, store string) (*AppContext, error) {
	// 設定の読み込み（platform層を使用）
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}

	// ロガーの初期化（platform層を使用）
	appLogger := logger.New(logger.FromStrings(cfg.Log.Level, cfg.Log.Format))

	// コンテナの初期化（platform層を使用）
	cont, err := newContainer(ctx, cfg, appLogger, store)
	if err != nil {
		return nil, fmt.Errorf("コンテナの初期化に失敗: %w", err)
	}

	return &AppContext{
		Config:    cfg,
		Container: cont,
	}, nil
}

func newContainer(ctx context.Context, cfg *config.Config, appLogger *slog.Logger, store string) (*container.ServiceContainer, error) {
	switch store {
	case "", "pg":
		return container.NewContainer(ctx, cfg, container.WithContainerLogger(appLogger))
	case "memory":
		return container.NewMemoryContainer(cfg, container.WithContainerLogger(appLogger))
	default:
		return nil, fmt.Errorf("不正なストア指定です: %s（pg または memory を指定してください）", store)
	}
}

// Close はAppContextが保持するリソースをクリーンアップする
func (ac *AppContext) Close() {
	if ac.Container != nil {
		ac.Container.Close()
	}
}

// Logger はAppContextのロガーを返す
func (ac *AppContext) Logger() *slog.Logger {
	if ac.Container != nil {
		return ac.Container.Logger()
	}
	return slog.Default()
}
