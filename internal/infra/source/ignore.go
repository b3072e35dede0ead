package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// ignoreFilter は .gitignore パターンとデフォルト除外パターンのマッチングを提供する
type ignoreFilter struct {
	matcher *gitignore.GitIgnore
}

// newIgnoreFilter は repoPath 直下の .gitignore とデフォルトパターンからフィルタを作成する
// .gitignore が存在しない場合はデフォルトパターンのみを使う
func newIgnoreFilter(repoPath string) (*ignoreFilter, error) {
	var patterns []string

	gitignorePath := filepath.Join(repoPath, ".gitignore")
	if _, err := os.Stat(gitignorePath); err == nil {
		loaded, err := readIgnorePatterns(gitignorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read .gitignore: %w", err)
		}
		patterns = append(patterns, loaded...)
	}

	patterns = append(patterns, defaultIgnorePatterns...)

	return &ignoreFilter{
		matcher: gitignore.CompileIgnoreLines(patterns...),
	}, nil
}

// ShouldIgnore はパスが除外対象かどうかを判定する
func (f *ignoreFilter) ShouldIgnore(path string) bool {
	if f == nil || f.matcher == nil {
		return false
	}
	return f.matcher.MatchesPath(path)
}

// readIgnorePatterns は ignore ファイルからパターン行を読み込む
// 空行とコメント行は除外される
func readIgnorePatterns(path string) ([]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var patterns []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, nil
}

// defaultIgnorePatterns は .gitignore の有無に依らず常に除外するパターン
// ドキュメント以外の生成物・依存関係・機密情報が対象
var defaultIgnorePatterns = []string{
	// Git関連
	".git",
	".github",
	".gitignore",
	".gitattributes",

	// 依存関係・ビルド成果物
	"node_modules",
	"vendor",
	"dist",
	"build",
	"target",
	"out",

	// IDE/エディタ関連
	".vscode",
	".idea",
	".DS_Store",

	// ログ・一時ファイル
	"*.log",
	"*.tmp",
	"tmp",

	// 環境変数・機密情報
	".env",
	".env.*",
	"*.pem",
	"*.key",

	// キャッシュ
	"__pycache__",
	".cache",
}
