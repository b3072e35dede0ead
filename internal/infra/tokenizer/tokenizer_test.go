package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenCounter(t *testing.T) {
	counter, err := NewTokenCounter()
	require.NoError(t, err)
	require.NotNil(t, counter)
	require.NotNil(t, counter.encoding)
}

func TestTokenCounter_CountTokens(t *testing.T) {
	counter, err := NewTokenCounter()
	require.NoError(t, err)

	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{
			name:     "empty string",
			text:     "",
			expected: 0,
		},
		{
			name:     "simple english",
			text:     "Hello, World!",
			expected: 4,
		},
		{
			name:     "japanese text",
			text:     "これはテストです",
			expected: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count := counter.CountTokens(tt.text)
			assert.Equal(t, tt.expected, count, "token count mismatch for: %s", tt.text)
		})
	}
}

func TestTokenCounter_CountTokensGrowsWithText(t *testing.T) {
	counter, err := NewTokenCounter()
	require.NoError(t, err)

	short := counter.CountTokens("有給休暇の申請")
	long := counter.CountTokens("有給休暇の申請は前日までに上長へ提出してください。承認後に勤怠システムへ反映されます。")
	assert.Greater(t, long, short)
}

func TestTokenCounter_NilEncoding(t *testing.T) {
	counter := &TokenCounter{encoding: nil}
	count := counter.CountTokens("test")
	assert.Equal(t, 0, count, "should return 0 when encoding is nil")
}
