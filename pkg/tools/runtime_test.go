package tools

import (
	"fmt"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfleet/substrate/pkg/services"
	testdb "github.com/agentfleet/substrate/test/database"
)

// newRuntimeSession builds a runtime server on a fresh database and connects
// a client to it.
func newRuntimeSession(t *testing.T) *mcp.ClientSession {
	t.Helper()

	client := testdb.NewRuntimeClient(t)
	srv := NewRuntimeServer(RuntimeDeps{
		Goals:    services.NewGoalService(client),
		Tasks:    services.NewTaskService(client),
		Relay:    services.NewRelayService(client),
		Breakers: services.NewBreakerService(client),
	})
	return startSession(t, srv)
}

func TestNewRuntimeServer_MissingDeps(t *testing.T) {
	assert.Panics(t, func() {
		NewRuntimeServer(RuntimeDeps{})
	})
}

func TestRuntimeServer_ToolList(t *testing.T) {
	session := newRuntimeSession(t)

	names := toolNames(t, session)
	assert.Len(t, names, 19)

	for _, name := range []string{
		"create_goal", "get_goal", "list_goals", "decompose_goal",
		"create_task", "get_next_task", "update_task_status", "list_tasks", "get_task",
		"create_relay_pipeline", "advance_relay", "fail_relay_pipeline",
		"get_relay_baton", "get_relay_status", "list_relay_pipelines",
		"circuit_breaker_status", "circuit_breaker_record_failure",
		"circuit_breaker_record_success", "circuit_breaker_reset",
	} {
		assert.Contains(t, names, name)
	}
}

func TestRuntimeServer_GoalLifecycle(t *testing.T) {
	session := newRuntimeSession(t)

	var created CreateGoalResult
	callTool(t, session, "create_goal", map[string]any{
		"name":        "Ship search rework",
		"description": "Replace the legacy ranking path",
		"metadata":    map[string]any{"quarter": "Q3"},
	}, &created)
	require.Empty(t, created.Error)
	assert.Equal(t, "active", string(created.Status))
	assert.Contains(t, created.Message, "created successfully")

	var decomposed DecomposeGoalResult
	callTool(t, session, "decompose_goal", map[string]any{"goal_id": created.GoalID}, &decomposed)
	require.Empty(t, decomposed.Error)
	assert.Equal(t, "sequential", decomposed.Strategy)
	assert.Equal(t, 5, decomposed.TaskCount)
	assert.Len(t, decomposed.TaskIDs, 5)

	var goal GetGoalResult
	callTool(t, session, "get_goal", map[string]any{"goal_id": created.GoalID}, &goal)
	require.Empty(t, goal.Error)
	assert.Equal(t, "Ship search rework", goal.Name)
	assert.Equal(t, map[string]any{"quarter": "Q3"}, goal.Metadata)
	assert.Equal(t, 5, goal.TaskCount)
	require.Len(t, goal.Tasks, 5)

	// Sequential decomposition chains each task to the previous one
	byTitle := map[string]TaskItem{}
	for _, task := range goal.Tasks {
		byTitle[task.Title] = task
	}
	first := byTitle["Analyze requirements for: Ship search rework"]
	second := byTitle["Design solution for: Ship search rework"]
	require.NotZero(t, first.ID)
	require.NotZero(t, second.ID)
	assert.Empty(t, first.Dependencies)
	assert.Equal(t, []int64{first.ID}, second.Dependencies)

	var listed ListGoalsResult
	callTool(t, session, "list_goals", map[string]any{"status": "active"}, &listed)
	require.Len(t, listed.Goals, 1)
	assert.Equal(t, map[string]int64{"pending": 5}, listed.Goals[0].TaskStats)

	var missing GetGoalResult
	callTool(t, session, "get_goal", map[string]any{"goal_id": 999}, &missing)
	assert.Contains(t, missing.Error, "not found")
}

func TestRuntimeServer_TaskQueue(t *testing.T) {
	session := newRuntimeSession(t)

	// Empty queue dequeues nothing
	var idle GetNextTaskResult
	callTool(t, session, "get_next_task", map[string]any{}, &idle)
	assert.Empty(t, idle.Error)
	assert.Nil(t, idle.Task)

	var urgent CreateTaskResult
	callTool(t, session, "create_task", map[string]any{
		"title":    "Rotate leaked credentials",
		"priority": 9,
	}, &urgent)
	require.Empty(t, urgent.Error)
	assert.Equal(t, "pending", string(urgent.Status))

	var blocked CreateTaskResult
	callTool(t, session, "create_task", map[string]any{
		"title":        "Audit access logs",
		"dependencies": []int64{urgent.TaskID},
	}, &blocked)
	require.Empty(t, blocked.Error)

	// Highest-priority unblocked task wins; the dependent task is not eligible
	var next GetNextTaskResult
	callTool(t, session, "get_next_task", map[string]any{}, &next)
	require.NotNil(t, next.Task)
	assert.Equal(t, urgent.TaskID, next.Task.TaskID)
	assert.Equal(t, "Rotate leaked credentials", next.Task.Title)

	var blockedNext GetNextTaskResult
	callTool(t, session, "get_next_task", map[string]any{}, &blockedNext)
	assert.Nil(t, blockedNext.Task, "dependent task must wait for its dependency")

	var updated UpdateTaskStatusResult
	callTool(t, session, "update_task_status", map[string]any{
		"task_id": urgent.TaskID,
		"status":  "completed",
		"result":  "all keys rotated",
	}, &updated)
	require.Empty(t, updated.Error)
	assert.Equal(t, "completed", string(updated.Status))

	var unblocked GetNextTaskResult
	callTool(t, session, "get_next_task", map[string]any{}, &unblocked)
	require.NotNil(t, unblocked.Task)
	assert.Equal(t, blocked.TaskID, unblocked.Task.TaskID)

	var task GetTaskResult
	callTool(t, session, "get_task", map[string]any{"task_id": urgent.TaskID}, &task)
	require.Empty(t, task.Error)
	require.NotNil(t, task.Task)
	assert.Equal(t, "completed", string(task.Task.Status))
	require.NotNil(t, task.Task.Result)
	assert.Equal(t, "all keys rotated", *task.Task.Result)
	require.NotNil(t, task.Task.CompletedAt)
	_, err := time.Parse(time.RFC3339, *task.Task.CompletedAt)
	assert.NoError(t, err)

	var completed ListTasksResult
	callTool(t, session, "list_tasks", map[string]any{"status": "completed"}, &completed)
	require.Len(t, completed.Tasks, 1)
	assert.Equal(t, urgent.TaskID, completed.Tasks[0].ID)

	var badUpdate UpdateTaskStatusResult
	callTool(t, session, "update_task_status", map[string]any{
		"task_id": 999,
		"status":  "completed",
	}, &badUpdate)
	assert.Contains(t, badUpdate.Error, "not found")
}

func TestRuntimeServer_RelayLifecycle(t *testing.T) {
	session := newRuntimeSession(t)

	var created CreateRelayPipelineResult
	callTool(t, session, "create_relay_pipeline", map[string]any{
		"name":         "feature-relay",
		"goal":         "Implement rate limiting",
		"agent_types":  []string{"researcher", "builder", "reviewer"},
		"token_budget": 1000,
	}, &created)
	require.Empty(t, created.Error)
	require.NotEmpty(t, created.PipelineID)
	assert.Equal(t, 3, created.Steps)
	assert.Equal(t, int64(1000), created.TokenBudget)

	var baton RelayBatonResult
	callTool(t, session, "get_relay_baton", map[string]any{"pipeline_id": created.PipelineID}, &baton)
	require.Empty(t, baton.Error)
	assert.Equal(t, "Implement rate limiting", baton.Goal)
	assert.Equal(t, int64(0), baton.CurrentStep)
	require.NotNil(t, baton.CurrentAgent)
	assert.Equal(t, "researcher", *baton.CurrentAgent)
	assert.Equal(t, int64(1000), baton.TokensRemaining)
	assert.Empty(t, baton.BatonData)

	var advanced AdvanceRelayResult
	callTool(t, session, "advance_relay", map[string]any{
		"pipeline_id":    created.PipelineID,
		"quality_score":  0.85,
		"tokens_used":    300,
		"output_summary": "API survey finished",
	}, &advanced)
	require.Empty(t, advanced.Error)
	assert.Equal(t, "in_progress", string(advanced.Status))
	require.NotNil(t, advanced.CurrentStep)
	assert.Equal(t, int64(1), *advanced.CurrentStep)
	require.NotNil(t, advanced.NextAgent)
	assert.Equal(t, "builder", *advanced.NextAgent)
	require.NotNil(t, advanced.TokensRemaining)
	assert.Equal(t, int64(700), *advanced.TokensRemaining)

	// The second agent's baton carries the first step's output
	callTool(t, session, "get_relay_baton", map[string]any{"pipeline_id": created.PipelineID}, &baton)
	assert.Equal(t, "API survey finished", baton.BatonData["summary"])
	assert.Equal(t, 0.85, baton.BatonData["quality_score"])

	callTool(t, session, "advance_relay", map[string]any{
		"pipeline_id": created.PipelineID,
		"tokens_used": 400,
	}, &advanced)
	require.Empty(t, advanced.Error)

	callTool(t, session, "advance_relay", map[string]any{
		"pipeline_id": created.PipelineID,
		"tokens_used": 200,
	}, &advanced)
	require.Empty(t, advanced.Error)
	assert.Equal(t, "completed", string(advanced.Status))
	require.NotNil(t, advanced.TotalTokens)
	assert.Equal(t, int64(900), *advanced.TotalTokens)
	assert.Nil(t, advanced.NextAgent)

	var status RelayStatusResult
	callTool(t, session, "get_relay_status", map[string]any{"pipeline_id": created.PipelineID}, &status)
	require.Empty(t, status.Error)
	assert.Equal(t, "completed", string(status.Status))
	assert.Equal(t, int64(900), status.TokensUsed)
	require.Len(t, status.Steps, 3)
	for _, step := range status.Steps {
		assert.Equal(t, "completed", string(step.Status))
	}
	assert.Equal(t, "researcher", status.Steps[0].AgentType)
	require.NotNil(t, status.Steps[0].QualityScore)
	assert.Equal(t, 0.85, *status.Steps[0].QualityScore)

	var listed ListRelayPipelinesResult
	callTool(t, session, "list_relay_pipelines", map[string]any{}, &listed)
	require.Len(t, listed.Pipelines, 1)
	assert.Equal(t, "3/3", listed.Pipelines[0].Progress)

	// A finished pipeline cannot advance again
	var stale AdvanceRelayResult
	callTool(t, session, "advance_relay", map[string]any{"pipeline_id": created.PipelineID}, &stale)
	assert.Contains(t, stale.Error, "already completed")
}

func TestRuntimeServer_FailRelayPipeline(t *testing.T) {
	session := newRuntimeSession(t)

	var created CreateRelayPipelineResult
	callTool(t, session, "create_relay_pipeline", map[string]any{
		"name":        "doomed-relay",
		"goal":        "Migrate billing",
		"agent_types": []string{"planner", "executor"},
	}, &created)
	require.Empty(t, created.Error)

	var failed FailRelayPipelineResult
	callTool(t, session, "fail_relay_pipeline", map[string]any{
		"pipeline_id": created.PipelineID,
		"reason":      "executor crashed",
	}, &failed)
	require.Empty(t, failed.Error)
	assert.Equal(t, "failed", string(failed.Status))
	assert.Equal(t, fmt.Sprintf("Pipeline %s marked as failed", created.PipelineID), failed.Message)

	var listed ListRelayPipelinesResult
	callTool(t, session, "list_relay_pipelines", map[string]any{"status": "failed"}, &listed)
	require.Len(t, listed.Pipelines, 1)
	assert.Equal(t, created.PipelineID, listed.Pipelines[0].ID)
}

func TestRuntimeServer_CircuitBreaker(t *testing.T) {
	session := newRuntimeSession(t)

	var status BreakerStatusResult
	callTool(t, session, "circuit_breaker_status", map[string]any{"agent_id": "researcher"}, &status)
	require.Empty(t, status.Error)
	assert.Equal(t, "closed", string(status.State))
	assert.Equal(t, int64(0), status.FailureCount)
	assert.Equal(t, int64(5), status.FailureThreshold)

	var failure BreakerFailureResult
	for i := 0; i < 4; i++ {
		callTool(t, session, "circuit_breaker_record_failure", map[string]any{
			"agent_id":     "researcher",
			"failure_type": "timeout",
		}, &failure)
		require.Empty(t, failure.Error)
		assert.False(t, failure.Tripped)
		assert.Equal(t, "closed", string(failure.State))
	}

	// The fifth consecutive failure opens the breaker
	callTool(t, session, "circuit_breaker_record_failure", map[string]any{
		"agent_id": "researcher",
	}, &failure)
	assert.True(t, failure.Tripped)
	assert.Equal(t, "open", string(failure.State))
	assert.Equal(t, int64(5), failure.FailureCount)

	var reset BreakerStatusResult
	callTool(t, session, "circuit_breaker_reset", map[string]any{"agent_id": "researcher"}, &reset)
	require.Empty(t, reset.Error)
	assert.Equal(t, "closed", string(reset.State))
	assert.Equal(t, int64(0), reset.FailureCount)

	var success BreakerSuccessResult
	callTool(t, session, "circuit_breaker_record_success", map[string]any{"agent_id": "researcher"}, &success)
	require.Empty(t, success.Error)
	assert.Equal(t, "closed", string(success.State))
	assert.Equal(t, int64(0), success.FailureCount)
}
