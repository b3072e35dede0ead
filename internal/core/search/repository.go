package search

import (
	"context"
)

// Repository はチャンクインデックスへの読み取り側データアクセスを表すインターフェース
// テスト時のモック用に消費者側で定義
type Repository interface {
	// SearchSimilar はクエリベクトルに近い順にチャンクを検索する
	// 結果は距離の昇順、同距離の場合はチャンクIDの昇順で返す
	SearchSimilar(ctx context.Context, queryVector []float32, limit int) ([]*Hit, error)
}

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}
