package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion"
	"github.com/00-167cm/RAG-chatbot/internal/infra/source"
)

// IngestAction はドキュメント取り込みコマンドのアクション
// --source が省略された場合は設定の DOCUMENTS_DIR を取り込む
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	src := cmd.String("source")
	watch := cmd.Bool("watch")
	envFile := cmd.String("env")
	store := cmd.String("store")

	appCtx, err := NewAppContext(ctx, envFile, store)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if src == "" {
		src = appCtx.Config.Ingest.DocumentsDir
	}

	if watch {
		if source.IsGitURL(src) {
			return fmt.Errorf("--watch はローカルディレクトリのみ対応しています")
		}
		info, err := os.Stat(src)
		if err != nil {
			return fmt.Errorf("監視対象を確認できません: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("--watch の対象はディレクトリを指定してください: %s", src)
		}
	}

	svc := appCtx.Container.IngestServiceFor(src)

	result, err := svc.Ingest(ctx, ingestion.IngestParams{
		Identifier: src,
		Replace:    true,
	})
	if err != nil {
		slog.Error("取り込みに失敗しました", "source", src, "error", err)
		return err
	}

	fmt.Printf("取り込み完了: %dドキュメント / %dチャンク (%.1fs)\n",
		result.ProcessedDocuments,
		result.TotalChunks,
		result.Duration.Seconds(),
	)

	if watch {
		watcher := source.NewWatcher(svc, source.WithWatcherLogger(appCtx.Logger()))
		fmt.Println("ファイルの変更を監視しています... (Ctrl+C で終了)")
		return watcher.Watch(ctx, src)
	}
	return nil
}

// ReloadAction はインデックス再構築コマンドのアクション
// インデックスを空にしてからソース全体を取り込み直す
func ReloadAction(ctx context.Context, cmd *cli.Command) error {
	src := cmd.String("source")
	envFile := cmd.String("env")
	store := cmd.String("store")

	appCtx, err := NewAppContext(ctx, envFile, store)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if src == "" {
		src = appCtx.Config.Ingest.DocumentsDir
	}

	svc := appCtx.Container.IngestServiceFor(src)

	result, err := svc.Reload(ctx, ingestion.IngestParams{Identifier: src})
	if err != nil {
		slog.Error("インデックスの再構築に失敗しました", "source", src, "error", err)
		return err
	}

	fmt.Printf("再構築完了: %dドキュメント / %dチャンク (%.1fs)\n",
		result.ProcessedDocuments,
		result.TotalChunks,
		result.Duration.Seconds(),
	)
	return nil
}
