package conversation

import (
	"context"
	"strings"
)

// SystemPromptTitle はタイトル生成用プロンプト
const SystemPromptTitle = `以下の会話内容を要約して、15文字以内の短いタイトルを生成してください。

ルール:
- 15文字以内で簡潔に
- 会話の主要なテーマを捉える
- 「〜について」などの余計な言葉は省く
- タイトルのみを出力(説明文は不要)

例:
会話: Pythonの基本文法について教えて → タイトル: Python文法
会話: おすすめのカフェを教えて → タイトル: おすすめカフェ
会話: ストレス解消法について → タイトル: ストレス解消`

// DefaultTitleMaxLength はタイトルの最大文字数のデフォルト値
const DefaultTitleMaxLength = 15

// titleSourceCount はタイトル生成に使う冒頭メッセージ数（ユーザー + AI）
const titleSourceCount = 2

// TitleClient はタイトル生成のLLM通信インターフェース
type TitleClient interface {
	// GenerateTitle は会話の冒頭メッセージからタイトルを生成する
	GenerateTitle(ctx context.Context, messages []*Message) (string, error)
}

func hasPlaceholderTitle(title string) bool {
	return strings.HasPrefix(title, DefaultTitle)
}

// NormalizeTitle は生成されたタイトルを整形する
// 前後の空白を除去し、最大文字数を超える場合はルーン単位で切り詰める
func NormalizeTitle(title string, maxLength int) string {
	title = strings.TrimSpace(title)
	if maxLength <= 0 {
		return title
	}
	runes := []rune(title)
	if len(runes) > maxLength {
		return string(runes[:maxLength])
	}
	return title
}
