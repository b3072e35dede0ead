package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/00-167cm/RAG-chatbot/internal/core/conversation"
	"github.com/00-167cm/RAG-chatbot/internal/shared/clock"
)

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time { return c.t }

func TestConversationStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewConversationStore(nil)

	conv, err := store.CreateConversation(ctx, conversation.DefaultTitle)
	require.NoError(t, err)
	assert.Equal(t, conversation.DefaultTitle, conv.Title)

	got, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.True(t, got.IsPresent())
	assert.Equal(t, 0, got.MustGet().MessageCount)

	refs := []conversation.ChunkRef{{ChunkID: "doc.pdf_1_1", Distance: 0.3, Source: "doc.pdf"}}
	_, err = store.AppendMessage(ctx, conv.ID, conversation.AppendInput{
		Role:    conversation.RoleUser,
		Content: "経費精算の締め日は?",
	})
	require.NoError(t, err)
	_, err = store.AppendMessage(ctx, conv.ID, conversation.AppendInput{
		Role:    conversation.RoleAssistant,
		Content: "毎月末です。",
		IsRAG:   true,
		Chunks:  refs,
	})
	require.NoError(t, err)

	got, err = store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.MustGet().MessageCount)

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.RoleUser, msgs[0].Role)
	assert.Equal(t, conversation.RoleAssistant, msgs[1].Role)
	assert.True(t, msgs[1].IsRAG)
	assert.Equal(t, refs, msgs[1].Chunks)

	updated, err := store.UpdateTitleIfPlaceholder(ctx, conv.ID, "経費精算")
	require.NoError(t, err)
	assert.True(t, updated)

	updated, err = store.UpdateTitleIfPlaceholder(ctx, conv.ID, "別のタイトル")
	require.NoError(t, err)
	assert.False(t, updated)

	got, err = store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "経費精算", got.MustGet().Title)

	require.NoError(t, store.DeleteConversation(ctx, conv.ID))

	got, err = store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAbsent())

	err = store.DeleteConversation(ctx, conv.ID)
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestConversationStore_AppendAssignsMonotonicTimestamps(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 4, 1, 9, 0, 0, 0, clock.JST)
	store := NewConversationStore(fixedClock{t: base})

	conv, err := store.CreateConversation(ctx, conversation.DefaultTitle)
	require.NoError(t, err)

	for i := range 3 {
		_, err := store.AppendMessage(ctx, conv.ID, conversation.AppendInput{
			Role:    conversation.RoleUser,
			Content: "メッセージ",
		})
		require.NoError(t, err, "append %d", i)
	}

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	// 時計が止まっていても保存時刻は1マイクロ秒ずつ進む
	assert.True(t, msgs[0].CreatedAt.Equal(base))
	assert.True(t, msgs[1].CreatedAt.Equal(base.Add(time.Microsecond)))
	assert.True(t, msgs[2].CreatedAt.Equal(base.Add(2*time.Microsecond)))
}

func TestConversationStore_ConcurrentAppendsKeepStrictOrder(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 4, 1, 9, 0, 0, 0, clock.JST)
	store := NewConversationStore(fixedClock{t: base})

	conv, err := store.CreateConversation(ctx, conversation.DefaultTitle)
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AppendMessage(ctx, conv.ID, conversation.AppendInput{
				Role:    conversation.RoleUser,
				Content: "並行追加",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := store.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, writers)

	// どの順で完了しても保存時刻は厳密に単調増加する
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i].CreatedAt.After(msgs[i-1].CreatedAt))
	}

	got, err := store.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, writers, got.MustGet().MessageCount)
}

func TestConversationStore_AppendToMissingConversation(t *testing.T) {
	store := NewConversationStore(nil)

	_, err := store.AppendMessage(context.Background(), uuid.New(), conversation.AppendInput{
		Role:    conversation.RoleUser,
		Content: "宛先なし",
	})
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestConversationStore_ListConversationsOrdersByUpdatedAt(t *testing.T) {
	ctx := context.Background()
	store := NewConversationStore(nil)

	first, err := store.CreateConversation(ctx, conversation.DefaultTitle)
	require.NoError(t, err)
	second, err := store.CreateConversation(ctx, conversation.DefaultTitle)
	require.NoError(t, err)

	// first への追加で first が最新になる
	_, err = store.AppendMessage(ctx, first.ID, conversation.AppendInput{
		Role:    conversation.RoleUser,
		Content: "更新",
	})
	require.NoError(t, err)

	list, err := store.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)
	assert.Equal(t, 1, list[0].MessageCount)
}

func TestConversationStore_MissingConversationQueries(t *testing.T) {
	ctx := context.Background()
	store := NewConversationStore(nil)

	msgs, err := store.ListMessages(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, msgs)

	updated, err := store.UpdateTitleIfPlaceholder(ctx, uuid.New(), "タイトル")
	require.NoError(t, err)
	assert.False(t, updated)
}
