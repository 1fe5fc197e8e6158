package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkingMemoryService_Add(t *testing.T) {
	client := newMemoryClient(t)
	service := NewWorkingMemoryService(client)
	ctx := context.Background()

	t.Run("applies defaults", func(t *testing.T) {
		receipt, err := service.Add(ctx, AddWorkingItemInput{
			ContextKey: "session-1",
			Content:    "current task context",
		})
		require.NoError(t, err)
		assert.NotZero(t, receipt.ID)
		assert.Equal(t, int64(60), receipt.TTLMinutes)
		assert.WithinDuration(t, time.Now().UTC().Add(60*time.Minute), receipt.ExpiresAt, 5*time.Second)

		var priority int64
		err = client.GetContext(ctx, &priority,
			`SELECT priority FROM working_memory WHERE id = ?`, receipt.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(5), priority)
	})

	t.Run("validates inputs", func(t *testing.T) {
		_, err := service.Add(ctx, AddWorkingItemInput{Content: "x"})
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = service.Add(ctx, AddWorkingItemInput{ContextKey: "k"})
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = service.Add(ctx, AddWorkingItemInput{ContextKey: "k", Content: "x", Priority: 11})
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = service.Add(ctx, AddWorkingItemInput{ContextKey: "k", Content: "x", TTLMinutes: -5})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestWorkingMemoryService_Get(t *testing.T) {
	client := newMemoryClient(t)
	service := NewWorkingMemoryService(client)
	ctx := context.Background()

	_, err := service.Add(ctx, AddWorkingItemInput{ContextKey: "alpha", Content: "low", Priority: 2})
	require.NoError(t, err)
	_, err = service.Add(ctx, AddWorkingItemInput{ContextKey: "alpha", Content: "high", Priority: 9})
	require.NoError(t, err)
	_, err = service.Add(ctx, AddWorkingItemInput{ContextKey: "beta", Content: "other", Priority: 5})
	require.NoError(t, err)

	t.Run("orders by priority and filters by key", func(t *testing.T) {
		items, err := service.Get(ctx, "alpha", 10)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "high", items[0].Content)
		assert.Equal(t, "low", items[1].Content)

		all, err := service.Get(ctx, "", 10)
		require.NoError(t, err)
		assert.Len(t, all, 3)
		assert.Equal(t, "high", all[0].Content)
	})

	t.Run("increments access count per read", func(t *testing.T) {
		first, err := service.Get(ctx, "beta", 10)
		require.NoError(t, err)
		require.Len(t, first, 1)

		second, err := service.Get(ctx, "beta", 10)
		require.NoError(t, err)
		require.Len(t, second, 1)
		assert.Equal(t, first[0].AccessCount+1, second[0].AccessCount)
	})

	t.Run("purges expired items on read", func(t *testing.T) {
		receipt, err := service.Add(ctx, AddWorkingItemInput{ContextKey: "stale", Content: "old"})
		require.NoError(t, err)

		_, err = client.ExecContext(ctx,
			`UPDATE working_memory SET expires_at = ? WHERE id = ?`,
			time.Now().UTC().Add(-time.Minute), receipt.ID)
		require.NoError(t, err)

		items, err := service.Get(ctx, "stale", 10)
		require.NoError(t, err)
		assert.Empty(t, items)

		var count int
		err = client.GetContext(ctx, &count,
			`SELECT COUNT(*) FROM working_memory WHERE id = ?`, receipt.ID)
		require.NoError(t, err)
		assert.Zero(t, count, "expired row should be deleted, not just hidden")
	})
}
