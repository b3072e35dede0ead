package search

import (
	"github.com/samber/mo"
)

// Route は最良距離としきい値から回答モードを決定する
// 最良距離がしきい値以下（境界値を含む）のときだけRAGを選択する
// 空インデックスで最良距離が存在しない場合は常にPLAIN
func Route(bestDistance mo.Option[float64], threshold float64) Mode {
	best, ok := bestDistance.Get()
	if !ok {
		return ModePlain
	}
	if best <= threshold {
		return ModeRAG
	}
	return ModePlain
}
