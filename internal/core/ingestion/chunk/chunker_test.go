package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// alphaRunes は区切り文字を含まないL文字のテキストを生成します
func alphaRunes(l int) string {
	runes := make([]rune, l)
	for i := range runes {
		runes[i] = rune('a' + i%26)
	}
	return string(runes)
}

// TestNewTextChunker は分割設定の検証をテストします
func TestNewTextChunker(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"デフォルト設定は有効", 500, 100, false},
		{"オーバーラップ0は有効", 500, 0, false},
		{"サイズ0は無効", 0, 0, true},
		{"サイズが負は無効", -1, 0, true},
		{"オーバーラップが負は無効", 500, -1, true},
		{"オーバーラップ == サイズは無効", 500, 500, true},
		{"オーバーラップ > サイズは無効", 500, 501, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewTextChunker(tt.size, tt.overlap)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidChunkConfig)
				assert.Nil(t, c)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.size, c.Size())
				assert.Equal(t, tt.overlap, c.Overlap())
			}
		})
	}
}

// TestSplitEmptyText は空テキストが0チャンクになることを確認します
func TestSplitEmptyText(t *testing.T) {
	c, err := NewTextChunker(500, 100)
	require.NoError(t, err)

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\t  "))
	assert.Empty(t, c.Split("　　"))
}

// TestSplitShortText はサイズ以下のテキストが1チャンクになることを確認します
func TestSplitShortText(t *testing.T) {
	c, err := NewTextChunker(500, 100)
	require.NoError(t, err)

	t.Run("サイズ未満", func(t *testing.T) {
		chunks := c.Split("短いテキスト")
		require.Len(t, chunks, 1)
		assert.Equal(t, "短いテキスト", chunks[0])
	})

	t.Run("ちょうどサイズ", func(t *testing.T) {
		text := alphaRunes(500)
		chunks := c.Split(text)
		require.Len(t, chunks, 1)
		assert.Equal(t, text, chunks[0])
	})
}

// ceilDiv は正の整数の切り上げ除算
func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// TestSplitChunkCountFormula はチャンク数が ceil((L-o)/(s-o)) に
// 一致することを確認します（区切り文字を含まないテキスト）
func TestSplitChunkCountFormula(t *testing.T) {
	tests := []struct {
		l, size, overlap int
	}{
		{1200, 500, 100},
		{1000, 500, 100},
		{501, 500, 100},
		{900, 500, 100},
		{5000, 500, 100},
		{1200, 500, 0},
		{1000, 300, 150},
		{777, 100, 99},
	}

	for _, tt := range tests {
		c, err := NewTextChunker(tt.size, tt.overlap)
		require.NoError(t, err)

		chunks := c.Split(alphaRunes(tt.l))
		want := ceilDiv(tt.l-tt.overlap, tt.size-tt.overlap)
		assert.Len(t, chunks, want, "L=%d size=%d overlap=%d", tt.l, tt.size, tt.overlap)
	}
}

// TestSplitStrideWindows はウィンドウの開始位置と内容を確認します
// 1000文字・サイズ500・オーバーラップ100では 500/500/200 の3チャンク
func TestSplitStrideWindows(t *testing.T) {
	c, err := NewTextChunker(500, 100)
	require.NoError(t, err)

	t.Run("1000文字は500/500/200", func(t *testing.T) {
		text := alphaRunes(1000)
		runes := []rune(text)

		chunks := c.Split(text)
		require.Len(t, chunks, 3)

		assert.Equal(t, string(runes[0:500]), chunks[0])
		assert.Equal(t, string(runes[400:900]), chunks[1])
		assert.Equal(t, string(runes[800:1000]), chunks[2])
		assert.Len(t, []rune(chunks[2]), 200)
	})

	t.Run("1200文字は500/500/400", func(t *testing.T) {
		text := alphaRunes(1200)
		runes := []rune(text)

		chunks := c.Split(text)
		require.Len(t, chunks, 3)

		assert.Equal(t, string(runes[0:500]), chunks[0])
		assert.Equal(t, string(runes[400:900]), chunks[1])
		assert.Equal(t, string(runes[800:1200]), chunks[2])
	})
}

// TestSplitOverlapContent は隣接チャンクの重複内容を確認します
func TestSplitOverlapContent(t *testing.T) {
	c, err := NewTextChunker(500, 100)
	require.NoError(t, err)

	text := alphaRunes(1200)
	chunks := c.Split(text)
	require.Len(t, chunks, 3)

	for i := 0; i < len(chunks)-1; i++ {
		cur := []rune(chunks[i])
		next := []rune(chunks[i+1])

		// 現在チャンクの末尾100文字は次チャンクの先頭に再出現する
		tail := string(cur[len(cur)-100:])
		head := string(next[:100])
		assert.Equal(t, tail, head, "chunk %d -> %d", i, i+1)
	}
}

// TestSplitNoDataLoss は全ての文字がいずれかのチャンクに含まれることを
// 確認します（区切り文字で切り詰めた場合を含む）
func TestSplitNoDataLoss(t *testing.T) {
	c, err := NewTextChunker(50, 10)
	require.NoError(t, err)

	// 句読点を含む日本語テキスト
	text := strings.Repeat("これは審査ルールの説明文です。対象となる書類を確認してください。", 20)
	runes := []rune(text)

	chunks := c.Split(text)
	require.NotEmpty(t, chunks)

	stride := 50 - 10
	covered := make([]bool, len(runes))
	for i, chunk := range chunks {
		start := i * stride
		for j := range []rune(chunk) {
			require.Less(t, start+j, len(runes))
			covered[start+j] = true
		}
	}

	for i, ok := range covered {
		assert.True(t, ok, "position %d not covered", i)
	}
}

// TestSplitPrefersSeparator はオーバーラップ域の区切り文字で
// ウィンドウが切り詰められることを確認します
func TestSplitPrefersSeparator(t *testing.T) {
	c, err := NewTextChunker(50, 10)
	require.NoError(t, err)

	// 45文字目に句点が来るように組み立てる（末尾10文字の域内）
	head := alphaRunes(44)
	text := head + "。" + alphaRunes(100)

	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0], "。"), "chunk should end at the separator: %q", chunks[0])
	assert.Len(t, []rune(chunks[0]), 45)
}

// TestSplitChunkNeverExceedsSize は全チャンクがサイズ以下であることを確認します
func TestSplitChunkNeverExceedsSize(t *testing.T) {
	c, err := NewTextChunker(120, 30)
	require.NoError(t, err)

	text := strings.Repeat("ローカルルールの適用範囲について。", 100)
	for _, chunk := range c.Split(text) {
		assert.LessOrEqual(t, len([]rune(chunk)), 120)
	}
}
