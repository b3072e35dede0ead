package ingestion

import (
	"context"
)

// SourceType はソースの種別を表す
type SourceType string

const (
	SourceTypeLocal SourceType = "local"
	SourceTypeGit   SourceType = "git"
)

// SourceProvider はソースタイプごとの具体的な実装を提供するインターフェース
// ローカルディレクトリ、Gitリポジトリなど複数のソースタイプに対応するための拡張ポイント
type SourceProvider interface {
	// GetSourceType はソースタイプを返す
	GetSourceType() SourceType

	// FetchDocuments はソースからドキュメント一覧を取得する
	// 各ドキュメントは抽出済みのテキスト区画を持つ
	FetchDocuments(ctx context.Context, params IngestParams) ([]*Document, error)

	// ShouldIgnore はドキュメントを除外すべきかを判定する
	ShouldIgnore(doc *Document) bool
}
