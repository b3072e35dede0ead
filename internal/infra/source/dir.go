package source

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion"
	"github.com/00-167cm/RAG-chatbot/internal/infra/extract"
)

// DirProvider はローカルディレクトリ・ファイル用の ingestion.SourceProvider 実装
// ソース名はファイルのベース名になる（例: /data/docs/manual.pdf -> manual.pdf）
type DirProvider struct {
	extractor *extract.Extractor
	logger    *slog.Logger
}

var _ ingestion.SourceProvider = (*DirProvider)(nil)

type dirProviderOptions struct {
	logger *slog.Logger
}

// DirProviderOption は DirProvider のオプション設定
type DirProviderOption func(*dirProviderOptions)

// WithDirLogger は DirProvider にロガーを設定する
func WithDirLogger(logger *slog.Logger) DirProviderOption {
	return func(o *dirProviderOptions) {
		o.logger = logger
	}
}

// NewDirProvider は新しい DirProvider を作成する
func NewDirProvider(extractor *extract.Extractor, opts ...DirProviderOption) *DirProvider {
	options := dirProviderOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &DirProvider{
		extractor: extractor,
		logger:    options.logger,
	}
}

// GetSourceType は ingestion.SourceTypeLocal を返す
func (p *DirProvider) GetSourceType() ingestion.SourceType {
	return ingestion.SourceTypeLocal
}

// FetchDocuments は指定パス配下のドキュメント一覧を取得する
// Identifier はディレクトリまたは単一ファイルのパス
// 対応していない拡張子のファイルはスキップされる（エラーにはしない）
func (p *DirProvider) FetchDocuments(ctx context.Context, params ingestion.IngestParams) ([]*ingestion.Document, error) {
	info, err := os.Stat(params.Identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source path: %w", err)
	}

	if !info.IsDir() {
		if _, ok := extract.FormatForPath(params.Identifier); !ok {
			p.logger.Warn("対応していない拡張子のためスキップ", "path", params.Identifier)
			return []*ingestion.Document{}, nil
		}
		doc, err := loadDocument(p.extractor, params.Identifier, filepath.Base(params.Identifier))
		if err != nil {
			return nil, fmt.Errorf("failed to load document: %w", err)
		}
		return []*ingestion.Document{doc}, nil
	}

	var documents []*ingestion.Document
	skipped := 0

	err = filepath.WalkDir(params.Identifier, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			// 隠しディレクトリは走査しない（起点ディレクトリ自体は除く）
			if path != params.Identifier && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if _, ok := extract.FormatForPath(path); !ok {
			skipped++
			p.logger.Debug("対応していない拡張子のためスキップ", "path", path)
			return nil
		}

		doc, err := loadDocument(p.extractor, path, d.Name())
		if err != nil {
			// 読み込めないファイルはスキップして走査を続ける
			p.logger.Warn("ドキュメントの読み込みに失敗", "path", path, "error", err)
			return nil
		}
		documents = append(documents, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	if skipped > 0 {
		p.logger.Info("対応していない拡張子のファイルをスキップ", "count", skipped)
	}
	return documents, nil
}

// ShouldIgnore はドキュメントを除外すべきかを判定する
// ローカルディレクトリの除外判定は走査時に適用済みのため常に false
func (p *DirProvider) ShouldIgnore(doc *ingestion.Document) bool {
	return false
}

// loadDocument はファイルからテキスト区画を抽出して Document を組み立てる
func loadDocument(extractor *extract.Extractor, path, label string) (*ingestion.Document, error) {
	sections, err := extractor.Extract(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return &ingestion.Document{
		Source:      label,
		Path:        path,
		Sections:    sections,
		Size:        info.Size(),
		ContentHash: fmt.Sprintf("%x", sha256.Sum256(content)),
		UpdatedAt:   info.ModTime(),
	}, nil
}
