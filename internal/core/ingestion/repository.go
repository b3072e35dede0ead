package ingestion

import (
	"context"
)

// Repository はチャンクインデックスへの書き込み側データアクセスを表すインターフェース
// テスト時のモック用に消費者側で定義
type Repository interface {
	// UpsertChunks はチャンクを一括で書き込む
	// 同一IDのチャンクが既に存在する場合は内容・ベクトルを置き換える
	UpsertChunks(ctx context.Context, chunks []*Chunk) error

	// DeleteChunksBySource は指定ソースのチャンクをすべて削除する
	DeleteChunksBySource(ctx context.Context, source string) error

	// DeleteAllChunks はインデックスを空にする
	DeleteAllChunks(ctx context.Context) error

	// CountChunks はインデックス内のチャンク総数を返す
	CountChunks(ctx context.Context) (int64, error)

	// ListSources はインデックスに含まれるソース名の一覧を返す
	ListSources(ctx context.Context) ([]string, error)
}

// Embedder はテキストをベクトル表現に変換するインターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)

	// BatchEmbed はバッチでEmbeddingを生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName はモデル名を返す
	ModelName() string

	// MaxBatchSize はバッチ処理の最大サイズを返す
	MaxBatchSize() int
}

// TokenCounter はテキストのトークン数をカウントするインターフェース
type TokenCounter interface {
	CountTokens(text string) int
}
