package search

import (
	"github.com/samber/mo"
)

// Hit はベクトル検索の1件の結果を表す
type Hit struct {
	ChunkID  string  `json:"chunkID"`
	Source   string  `json:"source"`
	Page     int     `json:"page"`
	Content  string  `json:"content"`
	Distance float64 `json:"distance"` // L2距離（小さいほど近い）
}

// Mode は回答モードを表す
type Mode string

const (
	// ModeRAG は参照資料に基づく回答モード
	ModeRAG Mode = "rag"
	// ModePlain は通常の会話による回答モード
	ModePlain Mode = "plain"
)

// Decision は1クエリに対するモード判定の結果を表す
// 判定はクエリごとに再計算され、過去の判定状態を持たない
type Decision struct {
	Mode         Mode
	BestDistance mo.Option[float64] // 空インデックスのときは None
	Threshold    float64
	Hits         []*Hit // ModeRAG のときのみ上位K件（距離の昇順）
	QueryVector  []float32
}

// IsRAG はRAGモードかどうかを返す
func (d *Decision) IsRAG() bool {
	return d.Mode == ModeRAG
}
