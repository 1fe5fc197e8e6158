package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfleet/substrate/pkg/models"
)

func TestBreakerService_Lifecycle(t *testing.T) {
	client := newRuntimeClient(t)
	service := NewBreakerService(client)
	ctx := context.Background()

	// tripBreaker drives a fresh breaker to open via consecutive failures.
	tripBreaker := func(t *testing.T, agentID string) {
		t.Helper()
		for i := 0; i < 5; i++ {
			_, err := service.RecordFailure(ctx, agentID, nil, nil)
			require.NoError(t, err)
		}
	}

	// elapseCooldown backdates opened_at so the 300s cooldown has passed.
	elapseCooldown := func(t *testing.T, agentID string) {
		t.Helper()
		_, err := client.ExecContext(ctx,
			`UPDATE circuit_breakers SET opened_at = ? WHERE agent_id = ?`,
			nowUTC().Add(-301*time.Second), agentID)
		require.NoError(t, err)
	}

	t.Run("creates a breaker on first status read", func(t *testing.T) {
		snapshot, err := service.BreakerStatus(ctx, "worker-1")
		require.NoError(t, err)
		assert.Equal(t, models.BreakerClosed, snapshot.State)
		assert.Equal(t, int64(0), snapshot.FailureCount)
		assert.Equal(t, "New circuit breaker created", snapshot.Message)

		snapshot, err = service.BreakerStatus(ctx, "worker-1")
		require.NoError(t, err)
		assert.Empty(t, snapshot.Message, "second read finds the existing row")
		assert.Equal(t, int64(5), snapshot.FailureThreshold)
		assert.Equal(t, "generalist", snapshot.FallbackAgent)
	})

	t.Run("opens when consecutive failures reach the threshold", func(t *testing.T) {
		for i := 1; i <= 4; i++ {
			record, err := service.RecordFailure(ctx, "worker-2", nil, nil)
			require.NoError(t, err)
			assert.Equal(t, models.BreakerClosed, record.State)
			assert.Equal(t, int64(i), record.FailureCount)
			assert.False(t, record.Tripped)
		}

		record, err := service.RecordFailure(ctx, "worker-2", ptr("timeout"), ptr("agent hung"))
		require.NoError(t, err)
		assert.Equal(t, models.BreakerOpen, record.State)
		assert.Equal(t, int64(5), record.FailureCount)
		assert.True(t, record.Tripped, "fifth consecutive failure trips the breaker")

		snapshot, err := service.BreakerStatus(ctx, "worker-2")
		require.NoError(t, err)
		assert.Equal(t, models.BreakerOpen, snapshot.State)
		assert.NotNil(t, snapshot.LastFailureAt)
	})

	t.Run("success resets the count while closed", func(t *testing.T) {
		_, err := service.RecordFailure(ctx, "worker-3", nil, nil)
		require.NoError(t, err)
		_, err = service.RecordFailure(ctx, "worker-3", nil, nil)
		require.NoError(t, err)

		record, err := service.RecordSuccess(ctx, "worker-3")
		require.NoError(t, err)
		assert.Equal(t, models.BreakerClosed, record.State)
		assert.Equal(t, int64(0), record.FailureCount)

		// The streak starts over, so the next failure counts from one.
		failure, err := service.RecordFailure(ctx, "worker-3", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), failure.FailureCount)
		assert.False(t, failure.Tripped)
	})

	t.Run("cooldown moves an open breaker to half open", func(t *testing.T) {
		tripBreaker(t, "worker-4")

		snapshot, err := service.BreakerStatus(ctx, "worker-4")
		require.NoError(t, err)
		assert.Equal(t, models.BreakerOpen, snapshot.State, "cooldown has not elapsed yet")

		elapseCooldown(t, "worker-4")

		snapshot, err = service.BreakerStatus(ctx, "worker-4")
		require.NoError(t, err)
		assert.Equal(t, models.BreakerHalfOpen, snapshot.State)

		snapshot, err = service.BreakerStatus(ctx, "worker-4")
		require.NoError(t, err)
		assert.Equal(t, models.BreakerHalfOpen, snapshot.State, "transition is persisted")
	})

	t.Run("failure while half open reopens", func(t *testing.T) {
		tripBreaker(t, "worker-5")
		elapseCooldown(t, "worker-5")
		_, err := service.BreakerStatus(ctx, "worker-5")
		require.NoError(t, err)

		record, err := service.RecordFailure(ctx, "worker-5", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, models.BreakerOpen, record.State)
		assert.True(t, record.Tripped)
		assert.Equal(t, int64(6), record.FailureCount)
	})

	t.Run("success while half open closes", func(t *testing.T) {
		tripBreaker(t, "worker-6")
		elapseCooldown(t, "worker-6")
		_, err := service.BreakerStatus(ctx, "worker-6")
		require.NoError(t, err)

		record, err := service.RecordSuccess(ctx, "worker-6")
		require.NoError(t, err)
		assert.Equal(t, models.BreakerClosed, record.State)
		assert.Equal(t, int64(0), record.FailureCount)

		snapshot, err := service.BreakerStatus(ctx, "worker-6")
		require.NoError(t, err)
		assert.Equal(t, models.BreakerClosed, snapshot.State)
	})

	t.Run("success while open does not close the breaker", func(t *testing.T) {
		tripBreaker(t, "worker-7")

		record, err := service.RecordSuccess(ctx, "worker-7")
		require.NoError(t, err)
		assert.Equal(t, models.BreakerOpen, record.State, "open breakers wait out the cooldown")
		assert.Equal(t, int64(5), record.FailureCount)
	})

	t.Run("reset forces closed", func(t *testing.T) {
		tripBreaker(t, "worker-8")

		snapshot, err := service.ResetBreaker(ctx, "worker-8")
		require.NoError(t, err)
		assert.Equal(t, models.BreakerClosed, snapshot.State)
		assert.Equal(t, int64(0), snapshot.FailureCount)
		assert.Equal(t, "Circuit breaker reset", snapshot.Message)

		failure, err := service.RecordFailure(ctx, "worker-8", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), failure.FailureCount)
		assert.Equal(t, models.BreakerClosed, failure.State)
	})

	t.Run("requires an agent id", func(t *testing.T) {
		_, err := service.BreakerStatus(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = service.RecordFailure(ctx, "", nil, nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = service.RecordSuccess(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = service.ResetBreaker(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}
