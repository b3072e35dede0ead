package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion"
)

// Format はテキスト抽出に対応するファイル形式を表す
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
	FormatText Format = "text"
)

// ErrUnsupportedFormat は対応していないファイル形式を表すエラー
var ErrUnsupportedFormat = errors.New("unsupported file format")

// FormatForPath は拡張子からファイル形式を判定する
// 対応している拡張子は .pdf .txt .md .csv .html
func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return FormatPDF, true
	case ".html":
		return FormatHTML, true
	case ".txt", ".md", ".csv":
		return FormatText, true
	default:
		return "", false
	}
}

// Extractor はファイルからテキスト区画を抽出する
// PDFはページごとの区画、それ以外はPage=1の単一区画になる
type Extractor struct{}

// NewExtractor は新しいExtractorを作成する
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract はファイル形式を判定してテキスト区画を抽出する
// 対応していない拡張子の場合は ErrUnsupportedFormat を返す
func (e *Extractor) Extract(path string) ([]ingestion.Section, error) {
	format, ok := FormatForPath(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	switch format {
	case FormatPDF:
		return extractPDFSections(path)
	case FormatHTML:
		return extractHTMLSections(path)
	default:
		return extractTextSections(path)
	}
}
