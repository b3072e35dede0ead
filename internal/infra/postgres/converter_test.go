package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/00-167cm/RAG-chatbot/internal/core/conversation"
	"github.com/00-167cm/RAG-chatbot/internal/shared/clock"
)

func TestChunkRefsJSONBRoundTrip(t *testing.T) {
	refs := []conversation.ChunkRef{
		{ChunkID: "doc.pdf_1_1", Distance: 0.3, Source: "doc.pdf"},
		{ChunkID: "doc.pdf_2_1", Distance: 0.8, Source: "doc.pdf"},
	}

	b, err := JSONBFromChunkRefs(refs)
	require.NoError(t, err)
	// 保存形式はsnake_caseのキーを維持する
	assert.Contains(t, string(b), `"chunk_id":"doc.pdf_1_1"`)

	got, err := ChunkRefsFromJSONB(b)
	require.NoError(t, err)
	assert.Equal(t, refs, got)
}

func TestChunkRefsJSONBEmpty(t *testing.T) {
	b, err := JSONBFromChunkRefs(nil)
	require.NoError(t, err)
	assert.Nil(t, b)

	refs, err := ChunkRefsFromJSONB(nil)
	require.NoError(t, err)
	assert.Nil(t, refs)
}

func TestTimeConversionKeepsInstantInJST(t *testing.T) {
	utc := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	back := PgtypeToTime(TimeToPgtype(utc))
	assert.True(t, back.Equal(utc))
	assert.Equal(t, clock.JST.String(), back.Location().String())
	assert.Equal(t, 9, back.Hour()) // UTC 0時 = JST 9時
}

func TestGenerateLockID(t *testing.T) {
	a := generateLockID("conversation", "id-1")
	b := generateLockID("conversation", "id-1")
	c := generateLockID("conversation", "id-2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
