package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	giturls "github.com/whilp/git-urls"

	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion"
	"github.com/00-167cm/RAG-chatbot/internal/infra/extract"
)

// GitProvider はGitリポジトリ用の ingestion.SourceProvider 実装
// リポジトリを浅くクローンし、ワークツリー上のドキュメントファイルを取得する
// ソース名はリポジトリルートからの相対パスになる（例: docs/setup.md）
type GitProvider struct {
	extractor    *extract.Extractor
	cloneBaseDir string
	sshKeyPath   string
	sshPassword  string
	logger       *slog.Logger
	ignore       *ignoreFilter
}

var _ ingestion.SourceProvider = (*GitProvider)(nil)

type gitProviderOptions struct {
	sshKeyPath  string
	sshPassword string
	logger      *slog.Logger
}

// GitProviderOption は GitProvider のオプション設定
type GitProviderOption func(*gitProviderOptions)

// WithGitSSHKey はSSH認証用の秘密鍵を設定する
func WithGitSSHKey(keyPath, password string) GitProviderOption {
	return func(o *gitProviderOptions) {
		o.sshKeyPath = keyPath
		o.sshPassword = password
	}
}

// WithGitLogger は GitProvider にロガーを設定する
func WithGitLogger(logger *slog.Logger) GitProviderOption {
	return func(o *gitProviderOptions) {
		o.logger = logger
	}
}

// NewGitProvider は新しい GitProvider を作成する
// cloneBaseDir はリポジトリのクローン先ベースディレクトリ
func NewGitProvider(extractor *extract.Extractor, cloneBaseDir string, opts ...GitProviderOption) *GitProvider {
	options := gitProviderOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &GitProvider{
		extractor:    extractor,
		cloneBaseDir: cloneBaseDir,
		sshKeyPath:   options.sshKeyPath,
		sshPassword:  options.sshPassword,
		logger:       options.logger,
	}
}

// GetSourceType は ingestion.SourceTypeGit を返す
func (p *GitProvider) GetSourceType() ingestion.SourceType {
	return ingestion.SourceTypeGit
}

// FetchDocuments はGitリポジトリからドキュメント一覧を取得する
// Identifier はGit URL（https / ssh / scp形式）
func (p *GitProvider) FetchDocuments(ctx context.Context, params ingestion.IngestParams) ([]*ingestion.Document, error) {
	repoPath, err := p.syncRepository(ctx, params.Identifier)
	if err != nil {
		return nil, err
	}

	ignore, err := newIgnoreFilter(repoPath)
	if err != nil {
		return nil, err
	}
	p.ignore = ignore

	var documents []*ingestion.Document
	skipped := 0

	err = filepath.WalkDir(repoPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if path != repoPath && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		rel, err := filepath.Rel(repoPath, path)
		if err != nil {
			return fmt.Errorf("failed to resolve relative path: %w", err)
		}
		rel = filepath.ToSlash(rel)

		if ignore.ShouldIgnore(rel) || enry.IsVendor(rel) {
			return nil
		}

		format, ok := extract.FormatForPath(path)
		if !ok {
			skipped++
			return nil
		}

		// テキスト系の拡張子でも実体がバイナリのファイルは除外する
		if format != extract.FormatPDF {
			content, err := os.ReadFile(path)
			if err != nil {
				p.logger.Warn("ファイルの読み込みに失敗", "path", rel, "error", err)
				return nil
			}
			if enry.IsBinary(content) {
				return nil
			}
		}

		doc, err := loadDocument(p.extractor, path, rel)
		if err != nil {
			p.logger.Warn("ドキュメントの読み込みに失敗", "path", rel, "error", err)
			return nil
		}
		doc.Path = rel
		documents = append(documents, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk repository: %w", err)
	}

	if skipped > 0 {
		p.logger.Info("対応していない拡張子のファイルをスキップ", "count", skipped)
	}
	return documents, nil
}

// ShouldIgnore はドキュメントを除外すべきかを判定する
func (p *GitProvider) ShouldIgnore(doc *ingestion.Document) bool {
	if p.ignore == nil {
		return false
	}
	return p.ignore.ShouldIgnore(doc.Path)
}

// syncRepository はリポジトリを浅くクローンしてワークツリーのパスを返す
// 既存のクローンは破棄して毎回取り直す
func (p *GitProvider) syncRepository(ctx context.Context, url string) (string, error) {
	dirName, err := repoDirName(url)
	if err != nil {
		return "", err
	}
	repoPath := filepath.Join(p.cloneBaseDir, dirName)

	if _, err := os.Stat(repoPath); err == nil {
		if err := os.RemoveAll(repoPath); err != nil {
			return "", fmt.Errorf("failed to remove existing clone: %w", err)
		}
	}

	auth, err := p.sshAuth()
	if err != nil {
		return "", fmt.Errorf("failed to setup SSH auth: %w", err)
	}

	p.logger.Info("リポジトリをクローン", "url", url, "path", repoPath)

	_, err = git.PlainCloneContext(ctx, repoPath, false, &git.CloneOptions{
		URL:   url,
		Auth:  auth,
		Depth: 1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to clone repository: %w", err)
	}

	return repoPath, nil
}

// IsGitURL は識別子がGitリポジトリのURLかどうかを判定する
// https / ssh / git スキームおよびSCP形式（git@host:path）を認識する
func IsGitURL(identifier string) bool {
	if strings.Contains(identifier, "://") {
		u, err := giturls.Parse(identifier)
		if err != nil {
			return false
		}
		switch u.Scheme {
		case "http", "https", "ssh", "git":
			return u.Hostname() != ""
		}
		return false
	}
	// SCP形式（git@github.com:user/repo.git）
	return strings.Contains(identifier, "@") && strings.Contains(identifier, ":")
}

// repoDirName はGit URLをクローン先のディレクトリ名に変換する
// 例: git@github.com:user/repo.git -> github.com/user/repo
func repoDirName(gitURL string) (string, error) {
	u, err := giturls.Parse(gitURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse git URL: %w", err)
	}

	hostname := u.Hostname()
	if hostname == "" {
		hostname = u.Host
	}

	path := strings.TrimPrefix(u.Path, "/")
	path = strings.TrimSuffix(path, ".git")
	if hostname == "" || path == "" {
		return "", fmt.Errorf("invalid git URL: %s", gitURL)
	}

	return filepath.Join(hostname, path), nil
}

// sshAuth はSSH鍵が設定されている場合に認証情報を返す
// 未設定または鍵ファイルが存在しない場合は nil（匿名アクセス）
// 具象型で返すと nil が CloneOptions.Auth 上で非nilインターフェースになるため戻り値はインターフェース型
func (p *GitProvider) sshAuth() (transport.AuthMethod, error) {
	if p.sshKeyPath == "" {
		return nil, nil
	}
	if _, err := os.Stat(p.sshKeyPath); os.IsNotExist(err) {
		return nil, nil
	}

	auth, err := ssh.NewPublicKeysFromFile("git", p.sshKeyPath, p.sshPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH key: %w", err)
	}
	return auth, nil
}
