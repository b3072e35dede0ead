package ingestion

import (
	"time"
)

// === Document ===

// Document はソースから取得した1ドキュメントを表す
type Document struct {
	Source      string    `json:"source"`      // 表示名（例: doc.pdf）
	Path        string    `json:"path"`        // 取得元のパス
	Sections    []Section `json:"sections"`    // 区画一覧（PDFはページ単位、それ以外は単一区画）
	Size        int64     `json:"size"`        // ドキュメントのサイズ（バイト）
	ContentHash string    `json:"contentHash"` // ドキュメント内容のハッシュ
	UpdatedAt   time.Time `json:"updatedAt"`   // ファイル最終更新日時
}

// Section はドキュメント内の1区画を表す
// ページ概念を持たないソース（テキスト、HTML等）では Page=1 の単一区画になる
type Section struct {
	Page int    `json:"page"` // 1始まりのページ番号
	Text string `json:"text"`
}

// === Chunk ===

// Chunk はインデックスに書き込む1チャンクを表す
type Chunk struct {
	ID          string    `json:"id"` // 決定的な識別子: {source}_{page}_{ordinal}
	Source      string    `json:"source"`
	Page        int       `json:"page"`    // 1始まり
	Ordinal     int       `json:"ordinal"` // 区画内の通し番号（1始まり）
	Content     string    `json:"content"`
	ContentHash string    `json:"contentHash"`
	TokenCount  int       `json:"tokenCount"`
	Embedding   []float32 `json:"-"`
	IndexedAt   time.Time `json:"indexedAt"`
}

// === Params / Result ===

// IngestParams は取り込み処理の共通パラメータ
type IngestParams struct {
	Identifier string         // ソース識別子（ディレクトリ・ファイルパス、GitならURL等）
	Options    map[string]any // ソースタイプ固有のオプション
	Replace    bool           // 同名ソースの既存チャンクを削除してから取り込む
}

// IngestResult は取り込み処理の結果を表す
type IngestResult struct {
	ProcessedDocuments int
	TotalChunks        int
	Duration           time.Duration
}
