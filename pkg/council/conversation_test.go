package council

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationStore_SaveAndLoad(t *testing.T) {
	store := NewConversationStore(t.TempDir())

	id, err := store.Save("what is go", map[string]any{"answer": 42})
	require.NoError(t, err)
	assert.Regexp(t, `^\d{8}_\d{6}$`, id)

	conv, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, id, conv.ID)
	assert.Equal(t, "what is go", conv.Question)
	_, err = time.Parse(time.RFC3339, conv.CreatedAt)
	assert.NoError(t, err)

	result, ok := conv.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(42), result["answer"])
}

func TestConversationStore_CollisionSuffix(t *testing.T) {
	store := NewConversationStore(t.TempDir())
	fixed := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	first, err := store.Save("q1", nil)
	require.NoError(t, err)
	second, err := store.Save("q2", nil)
	require.NoError(t, err)
	third, err := store.Save("q3", nil)
	require.NoError(t, err)

	assert.Equal(t, "20260825_120000", first)
	assert.Equal(t, "20260825_120000_2", second)
	assert.Equal(t, "20260825_120000_3", third)

	conv, err := store.Load(second)
	require.NoError(t, err)
	assert.Equal(t, "q2", conv.Question)
}

func TestConversationStore_LoadMissing(t *testing.T) {
	store := NewConversationStore(t.TempDir())

	_, err := store.Load("20990101_000000")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.Equal(t, "Conversation 20990101_000000 not found", err.Error())
}

func TestConversationStore_List(t *testing.T) {
	store := NewConversationStore(t.TempDir())
	times := []time.Time{
		time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}
	for i, at := range times {
		at := at
		store.now = func() time.Time { return at }
		_, err := store.Save(fmt.Sprintf("question %d", i+1), nil)
		require.NoError(t, err)
	}

	all, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "20260825_120000", all[0].ID)
	assert.Equal(t, "question 3", all[0].Question)
	assert.Equal(t, "20260825_100000", all[2].ID)

	top, err := store.List(2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "20260825_120000", top[0].ID)
	assert.Equal(t, "20260825_110000", top[1].ID)
}

func TestConversationStore_ListEmpty(t *testing.T) {
	store := NewConversationStore(t.TempDir())

	all, err := store.List(10)

	require.NoError(t, err)
	assert.Empty(t, all)
}
