package extract

import (
	"fmt"
	"os"

	"github.com/00-167cm/RAG-chatbot/internal/core/ingestion"
)

// extractTextSections はテキスト系ファイル（.txt .md .csv）をそのまま単一区画として返す
func extractTextSections(path string) ([]ingestion.Section, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return []ingestion.Section{{Page: 1, Text: string(content)}}, nil
}
