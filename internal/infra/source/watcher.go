package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion"
	"github.com/00-167cm/RAG-chatbot/internal/infra/extract"
)

// Watcher はローカルディレクトリの変更を監視して増分取り込みを行う
// ファイルの作成・更新は該当ファイルの再取り込み、削除・リネームは該当ソースのチャンク削除になる
type Watcher struct {
	ingest *ingestion.IngestService
	logger *slog.Logger
}

type watcherOptions struct {
	logger *slog.Logger
}

// WatcherOption は Watcher のオプション設定
type WatcherOption func(*watcherOptions)

// WithWatcherLogger は Watcher にロガーを設定する
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(o *watcherOptions) {
		o.logger = logger
	}
}

// NewWatcher は新しい Watcher を作成する
// ingestService はローカルディレクトリの SourceProvider で構成されていること
func NewWatcher(ingestService *ingestion.IngestService, opts ...WatcherOption) *Watcher {
	options := watcherOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Watcher{
		ingest: ingestService,
		logger: options.logger,
	}
}

// Watch は dir 配下のファイル変更を監視する
// ctx がキャンセルされるまでブロックし、キャンセルによる終了では nil を返す
func (w *Watcher) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := addWatchRecursive(watcher, dir); err != nil {
		return err
	}

	w.logger.Info("ファイル監視を開始", "dir", dir)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("ファイル監視を終了", "dir", dir)
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, watcher, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("ファイル監視でエラー", "error", err)
		}
	}
}

// handleEvent は1件のファイルシステムイベントを処理する
func (w *Watcher) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// 新しいサブディレクトリも監視対象に加える
			if err := addWatchRecursive(watcher, event.Name); err != nil {
				w.logger.Warn("監視対象の追加に失敗", "path", event.Name, "error", err)
			}
			return
		}
		w.reingestFile(ctx, event.Name)
	case event.Op.Has(fsnotify.Write):
		w.reingestFile(ctx, event.Name)
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		w.removeSource(ctx, event.Name)
	}
}

// reingestFile は変更されたファイルを再取り込みする
func (w *Watcher) reingestFile(ctx context.Context, path string) {
	if _, ok := extract.FormatForPath(path); !ok {
		return
	}

	result, err := w.ingest.Ingest(ctx, ingestion.IngestParams{
		Identifier: path,
		Replace:    true,
	})
	if err != nil {
		w.logger.Error("ファイルの再取り込みに失敗", "path", path, "error", err)
		return
	}
	w.logger.Info("ファイルを再取り込み", "path", path, "chunks", result.TotalChunks)
}

// removeSource は削除されたファイルのチャンクをインデックスから取り除く
func (w *Watcher) removeSource(ctx context.Context, path string) {
	if _, ok := extract.FormatForPath(path); !ok {
		return
	}

	source := filepath.Base(path)
	if err := w.ingest.RemoveSource(ctx, source); err != nil {
		w.logger.Error("ソースのチャンク削除に失敗", "source", source, "error", err)
	}
}

// addWatchRecursive は dir 以下のすべてのディレクトリを監視対象に追加する
// 隠しディレクトリは対象外
func addWatchRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
