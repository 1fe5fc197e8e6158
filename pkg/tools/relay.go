package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentfleet/substrate/pkg/models"
	"github.com/agentfleet/substrate/pkg/services"
)

// Relay and circuit-breaker tools of the runtime server.

func (t *runtimeToolset) registerRelay(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_relay_pipeline",
		Description: "Create a relay pipeline: an ordered chain of agent handoffs under a shared token budget",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Create Relay Pipeline",
			DestructiveHint: boolPtr(false),
			OpenWorldHint:   boolPtr(false),
		},
	}, t.handleCreateRelayPipeline)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "advance_relay",
		Description: "Complete the current step and hand the baton to the next agent",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Advance Relay",
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleAdvanceRelay)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "fail_relay_pipeline",
		Description: "Mark a pipeline as failed, abandoning its remaining steps",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Fail Relay Pipeline",
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleFailRelayPipeline)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_relay_baton",
		Description: "Get the baton for the current step: goal, previous outputs, and tokens remaining",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Get Relay Baton",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleGetRelayBaton)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_relay_status",
		Description: "Get pipeline status with per-step detail",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Get Relay Status",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleGetRelayStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_relay_pipelines",
		Description: "List relay pipelines, optionally filtered by status",
		Annotations: &mcp.ToolAnnotations{
			Title:         "List Relay Pipelines",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleListRelayPipelines)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "circuit_breaker_status",
		Description: "Get the circuit breaker state for an agent",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Circuit Breaker Status",
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleBreakerStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "circuit_breaker_record_failure",
		Description: "Record an agent failure, tripping the breaker open at the threshold",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Record Breaker Failure",
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleBreakerRecordFailure)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "circuit_breaker_record_success",
		Description: "Record an agent success, closing a half-open breaker",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Record Breaker Success",
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleBreakerRecordSuccess)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "circuit_breaker_reset",
		Description: "Force an agent's breaker back to closed with zero failures",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Reset Circuit Breaker",
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleBreakerReset)
}

type CreateRelayPipelineArgs struct {
	Name        string   `json:"name" jsonschema:"Pipeline name"`
	Goal        string   `json:"goal" jsonschema:"What the relay should accomplish"`
	AgentTypes  []string `json:"agent_types" jsonschema:"Ordered agent types, one per step"`
	Description *string  `json:"description,omitempty" jsonschema:"Optional description"`
	TokenBudget int64    `json:"token_budget,omitempty" jsonschema:"Shared token budget (default 100000)"`
}

type CreateRelayPipelineResult struct {
	PipelineID  string `json:"pipeline_id"`
	Name        string `json:"name"`
	Steps       int    `json:"steps"`
	TokenBudget int64  `json:"token_budget"`
	Message     string `json:"message"`
	Error       string `json:"error,omitempty"`
}

func (t *runtimeToolset) handleCreateRelayPipeline(ctx context.Context, req *mcp.CallToolRequest, args CreateRelayPipelineArgs) (*mcp.CallToolResult, CreateRelayPipelineResult, error) {
	receipt, err := t.deps.Relay.CreateRelayPipeline(ctx, args.Name, args.Goal, args.AgentTypes, args.Description, args.TokenBudget)
	if err != nil {
		return nil, CreateRelayPipelineResult{Error: err.Error()}, nil
	}
	return nil, CreateRelayPipelineResult{
		PipelineID:  receipt.PipelineID,
		Name:        receipt.Name,
		Steps:       receipt.Steps,
		TokenBudget: receipt.TokenBudget,
		Message:     receipt.Message,
	}, nil
}

type AdvanceRelayArgs struct {
	PipelineID     string   `json:"pipeline_id" jsonschema:"Pipeline ID"`
	QualityScore   *float64 `json:"quality_score,omitempty" jsonschema:"Quality score of the finished step, 0-1"`
	LScore         *float64 `json:"l_score,omitempty" jsonschema:"Legibility score of the finished step, 0-1"`
	OutputEntityID *int64   `json:"output_entity_id,omitempty" jsonschema:"Memory entity holding the step output"`
	TokensUsed     int64    `json:"tokens_used,omitempty" jsonschema:"Tokens consumed by the finished step"`
	OutputSummary  *string  `json:"output_summary,omitempty" jsonschema:"Summary passed to the next agent in the baton"`
}

type AdvanceRelayResult struct {
	PipelineID      string                `json:"pipeline_id,omitempty"`
	Status          models.PipelineStatus `json:"status,omitempty"`
	CurrentStep     *int64                `json:"current_step,omitempty"`
	NextAgent       *string               `json:"next_agent,omitempty"`
	TokensRemaining *int64                `json:"tokens_remaining,omitempty"`
	TotalTokens     *int64                `json:"total_tokens,omitempty"`
	HandoffTimeMS   float64               `json:"handoff_time_ms"`
	Error           string                `json:"error,omitempty"`
}

func (t *runtimeToolset) handleAdvanceRelay(ctx context.Context, req *mcp.CallToolRequest, args AdvanceRelayArgs) (*mcp.CallToolResult, AdvanceRelayResult, error) {
	result, err := t.deps.Relay.AdvanceRelay(ctx, args.PipelineID, services.AdvanceInput{
		QualityScore:   args.QualityScore,
		LScore:         args.LScore,
		OutputEntityID: args.OutputEntityID,
		TokensUsed:     args.TokensUsed,
		OutputSummary:  args.OutputSummary,
	})
	if err != nil {
		return nil, AdvanceRelayResult{Error: err.Error()}, nil
	}
	return nil, AdvanceRelayResult{
		PipelineID:      result.PipelineID,
		Status:          result.Status,
		CurrentStep:     result.CurrentStep,
		NextAgent:       result.NextAgent,
		TokensRemaining: result.TokensRemaining,
		TotalTokens:     result.TotalTokens,
		HandoffTimeMS:   result.HandoffTimeMS,
	}, nil
}

type FailRelayPipelineArgs struct {
	PipelineID string  `json:"pipeline_id" jsonschema:"Pipeline ID"`
	Reason     *string `json:"reason,omitempty" jsonschema:"Why the pipeline failed"`
}

type FailRelayPipelineResult struct {
	PipelineID string                `json:"pipeline_id,omitempty"`
	Status     models.PipelineStatus `json:"status,omitempty"`
	Message    string                `json:"message,omitempty"`
	Error      string                `json:"error,omitempty"`
}

func (t *runtimeToolset) handleFailRelayPipeline(ctx context.Context, req *mcp.CallToolRequest, args FailRelayPipelineArgs) (*mcp.CallToolResult, FailRelayPipelineResult, error) {
	receipt, err := t.deps.Relay.FailRelayPipeline(ctx, args.PipelineID, args.Reason)
	if err != nil {
		return nil, FailRelayPipelineResult{Error: err.Error()}, nil
	}
	return nil, FailRelayPipelineResult{
		PipelineID: receipt.PipelineID,
		Status:     receipt.Status,
		Message:    receipt.Message,
	}, nil
}

type PipelineIDArgs struct {
	PipelineID string `json:"pipeline_id" jsonschema:"Pipeline ID"`
}

type RelayBatonResult struct {
	PipelineID      string         `json:"pipeline_id,omitempty"`
	Goal            string         `json:"goal,omitempty"`
	CurrentStep     int64          `json:"current_step"`
	CurrentAgent    *string        `json:"current_agent,omitempty"`
	TokensRemaining int64          `json:"tokens_remaining"`
	BatonData       map[string]any `json:"baton_data,omitempty"`
	Error           string         `json:"error,omitempty"`
}

func (t *runtimeToolset) handleGetRelayBaton(ctx context.Context, req *mcp.CallToolRequest, args PipelineIDArgs) (*mcp.CallToolResult, RelayBatonResult, error) {
	baton, err := t.deps.Relay.GetRelayBaton(ctx, args.PipelineID)
	if err != nil {
		return nil, RelayBatonResult{Error: err.Error()}, nil
	}
	return nil, RelayBatonResult{
		PipelineID:      baton.PipelineID,
		Goal:            baton.Goal,
		CurrentStep:     baton.CurrentStep,
		CurrentAgent:    baton.CurrentAgent,
		TokensRemaining: baton.TokensRemaining,
		BatonData:       baton.BatonData,
	}, nil
}

// RelayStepItem is the wire form of one pipeline step.
type RelayStepItem struct {
	StepIndex      int64             `json:"step_index"`
	AgentType      string            `json:"agent_type"`
	Status         models.StepStatus `json:"status"`
	QualityScore   *float64          `json:"quality_score,omitempty"`
	LScore         *float64          `json:"l_score,omitempty"`
	OutputEntityID *int64            `json:"output_entity_id,omitempty"`
	TokensUsed     int64             `json:"tokens_used"`
	StartedAt      *string           `json:"started_at,omitempty"`
	CompletedAt    *string           `json:"completed_at,omitempty"`
}

type RelayStatusResult struct {
	PipelineID  string                `json:"pipeline_id,omitempty"`
	Name        string                `json:"name,omitempty"`
	Goal        string                `json:"goal,omitempty"`
	Status      models.PipelineStatus `json:"status,omitempty"`
	CurrentStep int64                 `json:"current_step"`
	TotalSteps  int                   `json:"total_steps"`
	TokensUsed  int64                 `json:"tokens_used"`
	TokenBudget int64                 `json:"token_budget"`
	Steps       []RelayStepItem       `json:"steps,omitempty"`
	Error       string                `json:"error,omitempty"`
}

func (t *runtimeToolset) handleGetRelayStatus(ctx context.Context, req *mcp.CallToolRequest, args PipelineIDArgs) (*mcp.CallToolResult, RelayStatusResult, error) {
	view, err := t.deps.Relay.GetRelayStatus(ctx, args.PipelineID)
	if err != nil {
		return nil, RelayStatusResult{Error: err.Error()}, nil
	}

	steps := make([]RelayStepItem, len(view.Steps))
	for i, step := range view.Steps {
		steps[i] = RelayStepItem{
			StepIndex:      step.StepIndex,
			AgentType:      step.AgentType,
			Status:         step.Status,
			QualityScore:   step.QualityScore,
			LScore:         step.LScore,
			OutputEntityID: step.OutputEntityID,
			TokensUsed:     step.TokensUsed,
			StartedAt:      rfc3339Ptr(step.StartedAt),
			CompletedAt:    rfc3339Ptr(step.CompletedAt),
		}
	}

	return nil, RelayStatusResult{
		PipelineID:  view.PipelineID,
		Name:        view.Name,
		Goal:        view.Goal,
		Status:      view.Status,
		CurrentStep: view.CurrentStep,
		TotalSteps:  view.TotalSteps,
		TokensUsed:  view.TokensUsed,
		TokenBudget: view.TokenBudget,
		Steps:       steps,
	}, nil
}

type ListRelayPipelinesArgs struct {
	Status string `json:"status,omitempty" jsonschema:"Optional status filter: in_progress, completed, or failed"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum pipelines (default 50)"`
}

// PipelineItem is the wire form of one pipeline summary.
type PipelineItem struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Status     models.PipelineStatus `json:"status"`
	Progress   string                `json:"progress"`
	TokensUsed int64                 `json:"tokens_used"`
	CreatedAt  string                `json:"created_at"`
}

type ListRelayPipelinesResult struct {
	Pipelines []PipelineItem `json:"pipelines"`
	Error     string         `json:"error,omitempty"`
}

func (t *runtimeToolset) handleListRelayPipelines(ctx context.Context, req *mcp.CallToolRequest, args ListRelayPipelinesArgs) (*mcp.CallToolResult, ListRelayPipelinesResult, error) {
	summaries, err := t.deps.Relay.ListRelayPipelines(ctx, args.Status, args.Limit)
	if err != nil {
		return nil, ListRelayPipelinesResult{Error: err.Error()}, nil
	}

	pipelines := make([]PipelineItem, len(summaries))
	for i, s := range summaries {
		pipelines[i] = PipelineItem{
			ID:         s.ID,
			Name:       s.Name,
			Status:     s.Status,
			Progress:   s.Progress,
			TokensUsed: s.TokensUsed,
			CreatedAt:  rfc3339(s.CreatedAt),
		}
	}
	return nil, ListRelayPipelinesResult{Pipelines: pipelines}, nil
}

type BreakerStatusArgs struct {
	AgentID string `json:"agent_id" jsonschema:"Agent identifier"`
}

type BreakerStatusResult struct {
	AgentID          string              `json:"agent_id,omitempty"`
	State            models.BreakerState `json:"state,omitempty"`
	FailureCount     int64               `json:"failure_count"`
	FailureThreshold int64               `json:"failure_threshold,omitempty"`
	LastFailureAt    *string             `json:"last_failure_at,omitempty"`
	FallbackAgent    string              `json:"fallback_agent,omitempty"`
	Message          string              `json:"message,omitempty"`
	Error            string              `json:"error,omitempty"`
}

func breakerStatusResult(snapshot *services.BreakerSnapshot) BreakerStatusResult {
	return BreakerStatusResult{
		AgentID:          snapshot.AgentID,
		State:            snapshot.State,
		FailureCount:     snapshot.FailureCount,
		FailureThreshold: snapshot.FailureThreshold,
		LastFailureAt:    rfc3339Ptr(snapshot.LastFailureAt),
		FallbackAgent:    snapshot.FallbackAgent,
		Message:          snapshot.Message,
	}
}

func (t *runtimeToolset) handleBreakerStatus(ctx context.Context, req *mcp.CallToolRequest, args BreakerStatusArgs) (*mcp.CallToolResult, BreakerStatusResult, error) {
	snapshot, err := t.deps.Breakers.BreakerStatus(ctx, args.AgentID)
	if err != nil {
		return nil, BreakerStatusResult{Error: err.Error()}, nil
	}
	return nil, breakerStatusResult(snapshot), nil
}

type BreakerFailureArgs struct {
	AgentID      string  `json:"agent_id" jsonschema:"Agent identifier"`
	FailureType  *string `json:"failure_type,omitempty" jsonschema:"Failure category, e.g. timeout or bad_output"`
	ErrorMessage *string `json:"error_message,omitempty" jsonschema:"Failure detail"`
}

type BreakerFailureResult struct {
	AgentID      string              `json:"agent_id,omitempty"`
	State        models.BreakerState `json:"state,omitempty"`
	FailureCount int64               `json:"failure_count"`
	Tripped      bool                `json:"tripped"`
	Error        string              `json:"error,omitempty"`
}

func (t *runtimeToolset) handleBreakerRecordFailure(ctx context.Context, req *mcp.CallToolRequest, args BreakerFailureArgs) (*mcp.CallToolResult, BreakerFailureResult, error) {
	record, err := t.deps.Breakers.RecordFailure(ctx, args.AgentID, args.FailureType, args.ErrorMessage)
	if err != nil {
		return nil, BreakerFailureResult{Error: err.Error()}, nil
	}
	return nil, BreakerFailureResult{
		AgentID:      record.AgentID,
		State:        record.State,
		FailureCount: record.FailureCount,
		Tripped:      record.Tripped,
	}, nil
}

type BreakerSuccessResult struct {
	AgentID      string              `json:"agent_id,omitempty"`
	State        models.BreakerState `json:"state,omitempty"`
	FailureCount int64               `json:"failure_count"`
	Error        string              `json:"error,omitempty"`
}

func (t *runtimeToolset) handleBreakerRecordSuccess(ctx context.Context, req *mcp.CallToolRequest, args BreakerStatusArgs) (*mcp.CallToolResult, BreakerSuccessResult, error) {
	record, err := t.deps.Breakers.RecordSuccess(ctx, args.AgentID)
	if err != nil {
		return nil, BreakerSuccessResult{Error: err.Error()}, nil
	}
	return nil, BreakerSuccessResult{
		AgentID:      record.AgentID,
		State:        record.State,
		FailureCount: record.FailureCount,
	}, nil
}

func (t *runtimeToolset) handleBreakerReset(ctx context.Context, req *mcp.CallToolRequest, args BreakerStatusArgs) (*mcp.CallToolResult, BreakerStatusResult, error) {
	snapshot, err := t.deps.Breakers.ResetBreaker(ctx, args.AgentID)
	if err != nil {
		return nil, BreakerStatusResult{Error: err.Error()}, nil
	}
	return nil, breakerStatusResult(snapshot), nil
}
