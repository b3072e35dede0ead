package extract

import (
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"

	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion"
)

// HTMLタグ除去用の正規表現（パッケージ初期化時にコンパイル）
var (
	scriptTagRe   = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTagRe    = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	headTagRe     = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	htmlCommentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockCloseRe  = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	lineBreakRe   = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	anyTagRe      = regexp.MustCompile(`<[^>]+>`)
	multiSpaceRe  = regexp.MustCompile(`[ \t]+`)
)

// extractHTMLSections はHTMLからタグを除去したテキストの単一区画を返す
func extractHTMLSections(path string) ([]ingestion.Section, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read HTML file: %w", err)
	}
	return []ingestion.Section{{Page: 1, Text: stripHTML(string(content))}}, nil
}

// stripHTML はHTML文字列からタグを除去してプレーンテキストにする
func stripHTML(content string) string {
	// script/style/headは中身ごと除去
	content = scriptTagRe.ReplaceAllString(content, "")
	content = styleTagRe.ReplaceAllString(content, "")
	content = headTagRe.ReplaceAllString(content, "")
	content = htmlCommentRe.ReplaceAllString(content, "")

	// ブロック要素の終端と<br>/<hr>は改行に変換して段落構造を残す
	content = blockCloseRe.ReplaceAllString(content, "\n")
	content = lineBreakRe.ReplaceAllString(content, "\n")

	// 残りのタグをすべて除去してHTMLエンティティを復元
	content = anyTagRe.ReplaceAllString(content, "")
	content = html.UnescapeString(content)

	// 連続する空白を圧縮し、空行を取り除く
	content = multiSpaceRe.ReplaceAllString(content, " ")
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
