package extract

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion"
)

var (
	pdfLicenseOnce sync.Once
	pdfLicenseErr  error
)

// ApplyPDFLicense はUniDocのメータードライセンスキーをプロセス全体に適用する
// キーが空の場合は何もしない（その場合PDF抽出はライセンスエラーになる）
func ApplyPDFLicense(key string) error {
	pdfLicenseOnce.Do(func() {
		if key == "" {
			return
		}
		if err := license.SetMeteredKey(key); err != nil {
			pdfLicenseErr = fmt.Errorf("failed to set unidoc license key: %w", err)
		}
	})
	return pdfLicenseErr
}

// extractPDFSections はPDFをページ単位のテキスト区画に変換する
// テキストを持たないページはスキップする（ページ番号は元のPDFのまま）
func extractPDFSections(path string) ([]ingestion.Section, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer f.Close()

	reader, err := model.NewPdfReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}

	numPages, err := reader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}

	sections := make([]ingestion.Section, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			return nil, fmt.Errorf("failed to get page %d: %w", i, err)
		}

		ex, err := extractor.New(page)
		if err != nil {
			return nil, fmt.Errorf("failed to create extractor for page %d: %w", i, err)
		}

		text, err := ex.ExtractText()
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}

		if strings.TrimSpace(text) == "" {
			continue
		}
		sections = append(sections, ingestion.Section{Page: i, Text: text})
	}

	return sections, nil
}
