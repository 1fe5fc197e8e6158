package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfleet/substrate/pkg/models"
)

func TestRelayService_CreateRelayPipeline(t *testing.T) {
	client := newRuntimeClient(t)
	service := NewRelayService(client)
	ctx := context.Background()

	t.Run("creates pipeline with one step per agent", func(t *testing.T) {
		receipt, err := service.CreateRelayPipeline(ctx, "research run", "answer the question",
			[]string{"researcher", "analyzer", "synthesizer"}, nil, 0)
		require.NoError(t, err)
		assert.Len(t, receipt.PipelineID, 8)
		assert.Equal(t, 3, receipt.Steps)
		assert.Equal(t, int64(100000), receipt.TokenBudget, "zero budget takes the default")
		assert.Equal(t, "Pipeline 'research run' created with 3 agents", receipt.Message)

		status, err := service.GetRelayStatus(ctx, receipt.PipelineID)
		require.NoError(t, err)
		assert.Equal(t, models.PipelineStatusPending, status.Status)
		assert.Equal(t, int64(0), status.CurrentStep)
		require.Len(t, status.Steps, 3)
		for i, step := range status.Steps {
			assert.Equal(t, int64(i), step.StepIndex)
			assert.Equal(t, models.StepStatusPending, step.Status)
		}
		assert.Equal(t, "researcher", status.Steps[0].AgentType)
	})

	t.Run("validates inputs", func(t *testing.T) {
		_, err := service.CreateRelayPipeline(ctx, "", "goal", []string{"a"}, nil, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = service.CreateRelayPipeline(ctx, "name", "goal", nil, nil, 0)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestRelayService_AdvanceRelay(t *testing.T) {
	client := newRuntimeClient(t)
	service := NewRelayService(client)
	ctx := context.Background()

	newPipeline := func(t *testing.T, budget int64) string {
		t.Helper()
		receipt, err := service.CreateRelayPipeline(ctx, "relay", "goal",
			[]string{"r", "a", "s"}, nil, budget)
		require.NoError(t, err)
		return receipt.PipelineID
	}

	t.Run("hands the baton to the next agent", func(t *testing.T) {
		id := newPipeline(t, 1000)

		result, err := service.AdvanceRelay(ctx, id, AdvanceInput{
			QualityScore:   ptr(0.8),
			LScore:         ptr(0.9),
			OutputEntityID: ptr(int64(42)),
			TokensUsed:     100,
			OutputSummary:  ptr("ok"),
		})
		require.NoError(t, err)
		assert.Equal(t, models.PipelineStatusInProgress, result.Status)
		require.NotNil(t, result.CurrentStep)
		assert.Equal(t, int64(1), *result.CurrentStep)
		require.NotNil(t, result.NextAgent)
		assert.Equal(t, "a", *result.NextAgent)
		require.NotNil(t, result.TokensRemaining)
		assert.Equal(t, int64(900), *result.TokensRemaining)
		assert.GreaterOrEqual(t, result.HandoffTimeMS, 0.0)

		baton, err := service.GetRelayBaton(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "goal", baton.Goal)
		assert.Equal(t, int64(1), baton.CurrentStep)
		require.NotNil(t, baton.CurrentAgent)
		assert.Equal(t, "a", *baton.CurrentAgent)
		assert.Equal(t, int64(900), baton.TokensRemaining)
		assert.Equal(t, float64(0), baton.BatonData["previous_step"])
		assert.Equal(t, float64(42), baton.BatonData["output_entity_id"])
		assert.Equal(t, "ok", baton.BatonData["summary"])

		status, err := service.GetRelayStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.PipelineStatusInProgress, status.Status)
		assert.Equal(t, models.StepStatusCompleted, status.Steps[0].Status)
		assert.NotNil(t, status.Steps[0].CompletedAt)
		assert.Equal(t, models.StepStatusInProgress, status.Steps[1].Status)
		assert.NotNil(t, status.Steps[1].StartedAt)
	})

	t.Run("completes on the final step", func(t *testing.T) {
		id := newPipeline(t, 1000)

		for i := 0; i < 2; i++ {
			_, err := service.AdvanceRelay(ctx, id, AdvanceInput{TokensUsed: 10})
			require.NoError(t, err)
		}

		result, err := service.AdvanceRelay(ctx, id, AdvanceInput{TokensUsed: 10})
		require.NoError(t, err)
		assert.Equal(t, models.PipelineStatusCompleted, result.Status)
		require.NotNil(t, result.TotalTokens)
		assert.Equal(t, int64(30), *result.TotalTokens)
		assert.Nil(t, result.NextAgent)

		status, err := service.GetRelayStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.PipelineStatusCompleted, status.Status)
		assert.Equal(t, int64(3), status.CurrentStep)

		baton, err := service.GetRelayBaton(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, baton.CurrentAgent, "no current agent past the last step")
	})

	t.Run("rejects advancing a completed pipeline", func(t *testing.T) {
		id := newPipeline(t, 1000)
		for i := 0; i < 3; i++ {
			_, err := service.AdvanceRelay(ctx, id, AdvanceInput{})
			require.NoError(t, err)
		}

		_, err := service.AdvanceRelay(ctx, id, AdvanceInput{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStateConflict)
	})

	t.Run("enforces the token budget", func(t *testing.T) {
		id := newPipeline(t, 100)

		_, err := service.AdvanceRelay(ctx, id, AdvanceInput{TokensUsed: 90})
		require.NoError(t, err)

		_, err = service.AdvanceRelay(ctx, id, AdvanceInput{TokensUsed: 20})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStateConflict)

		// The rejected step is untouched and an exact fit still passes.
		result, err := service.AdvanceRelay(ctx, id, AdvanceInput{TokensUsed: 10})
		require.NoError(t, err)
		require.NotNil(t, result.TokensRemaining)
		assert.Equal(t, int64(0), *result.TokensRemaining)
	})

	t.Run("missing pipeline", func(t *testing.T) {
		_, err := service.AdvanceRelay(ctx, "nope1234", AdvanceInput{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, "Pipeline nope1234 not found", err.Error())
	})
}

func TestRelayService_FailRelayPipeline(t *testing.T) {
	client := newRuntimeClient(t)
	service := NewRelayService(client)
	ctx := context.Background()

	receipt, err := service.CreateRelayPipeline(ctx, "doomed", "goal", []string{"r", "a"}, nil, 0)
	require.NoError(t, err)

	_, err = service.AdvanceRelay(ctx, receipt.PipelineID, AdvanceInput{TokensUsed: 5})
	require.NoError(t, err)

	t.Run("marks the pipeline failed with a reason", func(t *testing.T) {
		failed, err := service.FailRelayPipeline(ctx, receipt.PipelineID, ptr("agent crashed"))
		require.NoError(t, err)
		assert.Equal(t, models.PipelineStatusFailed, failed.Status)

		status, err := service.GetRelayStatus(ctx, receipt.PipelineID)
		require.NoError(t, err)
		assert.Equal(t, models.PipelineStatusFailed, status.Status)

		baton, err := service.GetRelayBaton(ctx, receipt.PipelineID)
		require.NoError(t, err)
		assert.Equal(t, true, baton.BatonData["failed"])
		assert.Equal(t, "agent crashed", baton.BatonData["reason"])
	})

	t.Run("failed pipelines reject further transitions", func(t *testing.T) {
		_, err := service.FailRelayPipeline(ctx, receipt.PipelineID, nil)
		assert.ErrorIs(t, err, ErrStateConflict)

		_, err = service.AdvanceRelay(ctx, receipt.PipelineID, AdvanceInput{})
		assert.ErrorIs(t, err, ErrStateConflict)
	})
}

func TestRelayService_ListRelayPipelines(t *testing.T) {
	client := newRuntimeClient(t)
	service := NewRelayService(client)
	ctx := context.Background()

	first, err := service.CreateRelayPipeline(ctx, "one", "g", []string{"r", "a"}, nil, 0)
	require.NoError(t, err)
	_, err = service.CreateRelayPipeline(ctx, "two", "g", []string{"r"}, nil, 0)
	require.NoError(t, err)

	_, err = service.AdvanceRelay(ctx, first.PipelineID, AdvanceInput{TokensUsed: 7})
	require.NoError(t, err)

	t.Run("reports progress fraction", func(t *testing.T) {
		pipelines, err := service.ListRelayPipelines(ctx, "", 50)
		require.NoError(t, err)
		require.Len(t, pipelines, 2)

		byID := map[string]PipelineSummary{}
		for _, p := range pipelines {
			byID[p.ID] = p
		}
		assert.Equal(t, "1/2", byID[first.PipelineID].Progress)
		assert.Equal(t, int64(7), byID[first.PipelineID].TokensUsed)
	})

	t.Run("filters by status", func(t *testing.T) {
		pipelines, err := service.ListRelayPipelines(ctx, "in_progress", 50)
		require.NoError(t, err)
		require.Len(t, pipelines, 1)
		assert.Equal(t, first.PipelineID, pipelines[0].ID)
	})
}
