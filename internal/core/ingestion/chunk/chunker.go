package chunk

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidChunkConfig は分割設定がドメイン外の場合に返されます
	ErrInvalidChunkConfig = errors.New("invalid chunk config")
)

// separators はウィンドウ境界として優先する区切り文字
// 日本語文書向けに句読点を含む
var separators = map[rune]bool{
	'\n': true,
	'。': true,
	'、': true,
	' ': true,
	'　': true,
}

// TextChunker はテキストを固定長の重なり付きウィンドウへ分割します
// 日本語文書を扱うため、長さは全てrune単位で数える
type TextChunker struct {
	size    int
	overlap int
}

// NewTextChunker は新しいTextChunkerを作成します
// overlap >= size は前進幅が0以下となり無限ループするため設定エラーとする
func NewTextChunker(size, overlap int) (*TextChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive (size=%d)", ErrInvalidChunkConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative (overlap=%d)", ErrInvalidChunkConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be smaller than size (size=%d, overlap=%d)", ErrInvalidChunkConfig, size, overlap)
	}

	return &TextChunker{
		size:    size,
		overlap: overlap,
	}, nil
}

// Size は1チャンクの最大文字数を返します
func (c *TextChunker) Size() int {
	return c.size
}

// Overlap はチャンク間の重複文字数を返します
func (c *TextChunker) Overlap() int {
	return c.overlap
}

// Split はテキストを重なり付きウィンドウへ分割します
//
// 開始位置は size - overlap ずつ前進し、末尾に残った短いウィンドウも
// 破棄しない（入力の全ての文字がいずれかのチャンクに含まれる）。
// 空または空白のみのテキストは0チャンクとなる。
func (c *TextChunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	stride := c.size - c.overlap

	var chunks []string
	for start := 0; start < len(runes); start += stride {
		end := start + c.size
		if end >= len(runes) {
			// 最後のウィンドウは残り全てを含める
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, c.cutWindow(runes[start:end]))
	}

	return chunks
}

// cutWindow はウィンドウ末尾のオーバーラップ域に区切り文字があれば
// そこで切り詰めます
//
// 切り詰めはオーバーラップ域に限定する。次のウィンドウは stride 位置から
// 同じ領域を再カバーするため、ここを削っても文字の欠落は起きない。
func (c *TextChunker) cutWindow(window []rune) string {
	if c.overlap == 0 {
		return string(window)
	}

	tailStart := len(window) - c.overlap
	for i := len(window) - 1; i >= tailStart; i-- {
		if separators[window[i]] {
			return string(window[:i+1])
		}
	}
	return string(window)
}
