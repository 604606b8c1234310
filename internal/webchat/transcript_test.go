package webchat

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTranscript(t *testing.T) (*TranscriptStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTranscriptStore(client), mr
}

func TestTranscriptAppendAndList(t *testing.T) {
	store, mr := newTestTranscript(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "s1", Message{Role: RoleCustomer, Text: "Xin chào"}))
	require.NoError(t, store.Append(ctx, "s1", Message{Role: RoleAssistant, Text: "Chào bạn"}))

	msgs, err := store.List(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Xin chào", msgs[0].Text)
	assert.NotEmpty(t, msgs[0].ID)
	assert.False(t, msgs[0].Timestamp.IsZero())
	assert.Equal(t, RoleAssistant, msgs[1].Role)

	assert.Equal(t, transcriptTTL, mr.TTL(transcriptKey("s1")))
}

func TestTranscriptListLimitReturnsNewest(t *testing.T) {
	store, _ := newTestTranscript(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, "s1", Message{Role: RoleCustomer, Text: fmt.Sprintf("m%d", i)}))
	}

	msgs, err := store.List(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m3", msgs[0].Text)
	assert.Equal(t, "m4", msgs[1].Text)
}

func TestTranscriptTrimsToMax(t *testing.T) {
	store, mr := newTestTranscript(t)
	store.maxMessages = 3
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, "s1", Message{Role: RoleCustomer, Text: fmt.Sprintf("m%d", i), Timestamp: time.Now()}))
	}

	items, err := mr.List(transcriptKey("s1"))
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestTranscriptEmptyAndInvalid(t *testing.T) {
	store, mr := newTestTranscript(t)
	ctx := context.Background()

	msgs, err := store.List(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.Error(t, store.Append(ctx, "", Message{Text: "x"}))

	_, err = mr.Lpush(transcriptKey("s2"), "not json")
	require.NoError(t, err)
	msgs, err = store.List(ctx, "s2", 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
