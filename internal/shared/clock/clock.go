package clock

import "time"

// JST は日本標準時 (UTC+9)
// 会話履歴のタイムスタンプは全てJSTで統一する
var JST = time.FixedZone("JST", 9*60*60)

// Clock は現在時刻の取得を抽象化します
type Clock interface {
	Now() time.Time
}

type jstClock struct{}

func (jstClock) Now() time.Time {
	return time.Now().In(JST)
}

// NewJST はJSTの実時計を返します
func NewJST() Clock {
	return jstClock{}
}

// NextAfter は last より厳密に後のタイムスタンプを返します
// 同一クロックティック内で複数回呼ばれても単調増加が保たれる
func NextAfter(c Clock, last time.Time) time.Time {
	now := c.Now()
	if now.After(last) {
		return now
	}
	return last.Add(time.Microsecond).In(JST)
}
