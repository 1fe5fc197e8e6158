package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/agentfleet/substrate/pkg/database"
	"github.com/agentfleet/substrate/pkg/models"
)

// PipelineReceipt summarizes a created relay pipeline.
type PipelineReceipt struct {
	PipelineID  string `json:"pipeline_id"`
	Name        string `json:"name"`
	Steps       int    `json:"steps"`
	TokenBudget int64  `json:"token_budget"`
	Message     string `json:"message"`
}

// AdvanceInput carries the outputs of the step being handed off.
type AdvanceInput struct {
	QualityScore   *float64
	LScore         *float64
	OutputEntityID *int64
	TokensUsed     int64
	OutputSummary  *string
}

// AdvanceResult reports the handoff outcome. NextAgent and TokensRemaining
// are only set while the pipeline is still in progress; TotalTokens only on
// completion.
type AdvanceResult struct {
	PipelineID      string                `json:"pipeline_id"`
	Status          models.PipelineStatus `json:"status"`
	CurrentStep     *int64                `json:"current_step,omitempty"`
	NextAgent       *string               `json:"next_agent,omitempty"`
	TokensRemaining *int64                `json:"tokens_remaining,omitempty"`
	TotalTokens     *int64                `json:"total_tokens,omitempty"`
	HandoffTimeMS   float64               `json:"handoff_time_ms"`
}

// BatonView is the context package for the agent about to run.
type BatonView struct {
	PipelineID      string         `json:"pipeline_id"`
	Goal            string         `json:"goal"`
	CurrentStep     int64          `json:"current_step"`
	CurrentAgent    *string        `json:"current_agent"`
	TokensRemaining int64          `json:"tokens_remaining"`
	BatonData       map[string]any `json:"baton_data"`
}

// RelayStatusView is a pipeline with its ordered steps.
type RelayStatusView struct {
	PipelineID  string                `json:"pipeline_id"`
	Name        string                `json:"name"`
	Goal        string                `json:"goal"`
	Status      models.PipelineStatus `json:"status"`
	CurrentStep int64                 `json:"current_step"`
	TotalSteps  int                   `json:"total_steps"`
	TokensUsed  int64                 `json:"tokens_used"`
	TokenBudget int64                 `json:"token_budget"`
	Steps       []models.RelayStep    `json:"steps"`
}

// PipelineSummary is one ListRelayPipelines row.
type PipelineSummary struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Status     models.PipelineStatus `json:"status"`
	Progress   string                `json:"progress"`
	TokensUsed int64                 `json:"tokens_used"`
	CreatedAt  time.Time             `json:"created_at"`
}

// FailReceipt confirms a pipeline was marked failed.
type FailReceipt struct {
	PipelineID string                `json:"pipeline_id"`
	Status     models.PipelineStatus `json:"status"`
	Message    string                `json:"message"`
}

// RelayService manages relay pipelines: sequential agent handoffs carrying a
// baton under a shared token budget.
type RelayService struct {
	client *database.Client
}

// NewRelayService creates a new RelayService.
func NewRelayService(client *database.Client) *RelayService {
	if client == nil {
		panic("NewRelayService: client must not be nil")
	}
	return &RelayService{client: client}
}

// CreateRelayPipeline creates a pipeline with one pending step per agent
// type, in execution order. A zero tokenBudget defaults to 100000.
func (s *RelayService) CreateRelayPipeline(ctx context.Context, name, goal string, agentTypes []string, description *string, tokenBudget int64) (*PipelineReceipt, error) {
	if name == "" {
		return nil, NewValidationError("name", "pipeline name is required")
	}
	if goal == "" {
		return nil, NewValidationError("goal", "pipeline goal is required")
	}
	if len(agentTypes) == 0 {
		return nil, NewValidationError("agent_types", "at least one agent type is required")
	}
	if tokenBudget == 0 {
		tokenBudget = 100000
	}
	if tokenBudget < 0 {
		return nil, NewValidationError("token_budget", "token budget must be positive")
	}

	pipelineID := uuid.New().String()[:8]

	agentsJSON, err := json.Marshal(agentTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal agent types: %w", err)
	}

	tx, err := s.client.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO relay_pipelines (id, name, goal, description, agent_types, token_budget)
		VALUES (?, ?, ?, ?, ?, ?)`,
		pipelineID, name, goal, description, string(agentsJSON), tokenBudget); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	for i, agentType := range agentTypes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO relay_steps (pipeline_id, step_index, agent_type)
			VALUES (?, ?, ?)`,
			pipelineID, i, agentType); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &PipelineReceipt{
		PipelineID:  pipelineID,
		Name:        name,
		Steps:       len(agentTypes),
		TokenBudget: tokenBudget,
		Message:     fmt.Sprintf("Pipeline '%s' created with %d agents", name, len(agentTypes)),
	}, nil
}

// AdvanceRelay completes the current step and passes the baton. The handoff
// is rejected when the pipeline is terminal or the step would push
// tokens_used past the budget.
func (s *RelayService) AdvanceRelay(ctx context.Context, pipelineID string, in AdvanceInput) (*AdvanceResult, error) {
	start := time.Now()

	tx, err := s.client.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	pipeline, err := loadPipeline(ctx, tx, pipelineID)
	if err != nil {
		return nil, err
	}
	if pipeline.Status == models.PipelineStatusCompleted || pipeline.Status == models.PipelineStatusFailed {
		return nil, StateConflictError("Pipeline %s is already %s", pipelineID, pipeline.Status)
	}

	agents, err := pipeline.AgentList()
	if err != nil {
		return nil, err
	}

	newTokens := pipeline.TokensUsed + in.TokensUsed
	if newTokens > pipeline.TokenBudget {
		return nil, StateConflictError("Pipeline %s token budget exceeded (%d + %d > %d)",
			pipelineID, pipeline.TokensUsed, in.TokensUsed, pipeline.TokenBudget)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE relay_steps
		SET status = 'completed', quality_score = ?, l_score = ?,
		    output_entity_id = ?, tokens_used = ?, completed_at = ?
		WHERE pipeline_id = ? AND step_index = ? AND status != 'completed'`,
		in.QualityScore, in.LScore, in.OutputEntityID, in.TokensUsed, nowUTC(),
		pipelineID, pipeline.CurrentStep)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if affected == 0 {
		return nil, StateConflictError("Step %d of pipeline %s is already completed",
			pipeline.CurrentStep, pipelineID)
	}

	newStep := pipeline.CurrentStep + 1

	if newStep >= int64(len(agents)) {
		if _, err := tx.ExecContext(ctx, `
			UPDATE relay_pipelines
			SET status = 'completed', current_step = ?, tokens_used = ?,
			    completed_at = ?, updated_at = ?
			WHERE id = ?`,
			newStep, newTokens, nowUTC(), nowUTC(), pipelineID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}

		return &AdvanceResult{
			PipelineID:    pipelineID,
			Status:        models.PipelineStatusCompleted,
			TotalTokens:   &newTokens,
			HandoffTimeMS: roundMillis(time.Since(start)),
		}, nil
	}

	baton, err := json.Marshal(models.Baton{
		PreviousStep:   pipeline.CurrentStep,
		QualityScore:   in.QualityScore,
		LScore:         in.LScore,
		OutputEntityID: in.OutputEntityID,
		Summary:        in.OutputSummary,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal baton: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE relay_pipelines
		SET status = 'in_progress', current_step = ?, tokens_used = ?,
		    baton_data = ?, updated_at = ?
		WHERE id = ?`,
		newStep, newTokens, string(baton), nowUTC(), pipelineID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE relay_steps
		SET status = 'in_progress', started_at = ?
		WHERE pipeline_id = ? AND step_index = ?`,
		nowUTC(), pipelineID, newStep); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	nextAgent := agents[newStep]
	remaining := pipeline.TokenBudget - newTokens

	return &AdvanceResult{
		PipelineID:      pipelineID,
		Status:          models.PipelineStatusInProgress,
		CurrentStep:     &newStep,
		NextAgent:       &nextAgent,
		TokensRemaining: &remaining,
		HandoffTimeMS:   roundMillis(time.Since(start)),
	}, nil
}

// FailRelayPipeline marks a pending or in-progress pipeline failed, storing
// the reason on the baton.
func (s *RelayService) FailRelayPipeline(ctx context.Context, pipelineID string, reason *string) (*FailReceipt, error) {
	tx, err := s.client.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	pipeline, err := loadPipeline(ctx, tx, pipelineID)
	if err != nil {
		return nil, err
	}
	if pipeline.Status == models.PipelineStatusCompleted || pipeline.Status == models.PipelineStatusFailed {
		return nil, StateConflictError("Pipeline %s is already %s", pipelineID, pipeline.Status)
	}

	baton, err := json.Marshal(map[string]any{
		"failed": true,
		"reason": reason,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal baton: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE relay_pipelines
		SET status = 'failed', baton_data = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		string(baton), nowUTC(), nowUTC(), pipelineID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &FailReceipt{
		PipelineID: pipelineID,
		Status:     models.PipelineStatusFailed,
		Message:    fmt.Sprintf("Pipeline %s marked as failed", pipelineID),
	}, nil
}

// GetRelayBaton returns the context the next agent needs: the goal, the
// current agent, remaining tokens, and the previous step's baton.
func (s *RelayService) GetRelayBaton(ctx context.Context, pipelineID string) (*BatonView, error) {
	var pipeline models.RelayPipeline
	err := s.client.GetContext(ctx, &pipeline, `
		SELECT id, name, goal, description, agent_types, status, current_step,
		       token_budget, tokens_used, baton_data, created_at, updated_at, completed_at
		FROM relay_pipelines WHERE id = ?`, pipelineID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundError("Pipeline %s not found", pipelineID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	agents, err := pipeline.AgentList()
	if err != nil {
		return nil, err
	}

	batonData := map[string]any{}
	if pipeline.BatonData != nil && *pipeline.BatonData != "" {
		if err := json.Unmarshal([]byte(*pipeline.BatonData), &batonData); err != nil {
			return nil, fmt.Errorf("invalid baton for pipeline %s: %w", pipelineID, err)
		}
	}

	var currentAgent *string
	if pipeline.CurrentStep < int64(len(agents)) {
		currentAgent = &agents[pipeline.CurrentStep]
	}

	return &BatonView{
		PipelineID:      pipelineID,
		Goal:            pipeline.Goal,
		CurrentStep:     pipeline.CurrentStep,
		CurrentAgent:    currentAgent,
		TokensRemaining: pipeline.TokenBudget - pipeline.TokensUsed,
		BatonData:       batonData,
	}, nil
}

// GetRelayStatus returns the pipeline with its steps in execution order.
func (s *RelayService) GetRelayStatus(ctx context.Context, pipelineID string) (*RelayStatusView, error) {
	var pipeline models.RelayPipeline
	err := s.client.GetContext(ctx, &pipeline, `
		SELECT id, name, goal, description, agent_types, status, current_step,
		       token_budget, tokens_used, baton_data, created_at, updated_at, completed_at
		FROM relay_pipelines WHERE id = ?`, pipelineID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundError("Pipeline %s not found", pipelineID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var steps []models.RelayStep
	if err := s.client.SelectContext(ctx, &steps, `
		SELECT id, pipeline_id, step_index, agent_type, status, quality_score,
		       l_score, output_entity_id, tokens_used, started_at, completed_at
		FROM relay_steps WHERE pipeline_id = ?
		ORDER BY step_index`, pipelineID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if steps == nil {
		steps = []models.RelayStep{}
	}

	return &RelayStatusView{
		PipelineID:  pipelineID,
		Name:        pipeline.Name,
		Goal:        pipeline.Goal,
		Status:      pipeline.Status,
		CurrentStep: pipeline.CurrentStep,
		TotalSteps:  len(steps),
		TokensUsed:  pipeline.TokensUsed,
		TokenBudget: pipeline.TokenBudget,
		Steps:       steps,
	}, nil
}

// ListRelayPipelines returns pipelines newest first, optionally filtered by
// status, each with a "current/total" progress string.
func (s *RelayService) ListRelayPipelines(ctx context.Context, status string, limit int) ([]PipelineSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []models.RelayPipeline
	var err error
	if status != "" {
		err = s.client.SelectContext(ctx, &rows, `
			SELECT id, name, goal, description, agent_types, status, current_step,
			       token_budget, tokens_used, baton_data, created_at, updated_at, completed_at
			FROM relay_pipelines WHERE status = ?
			ORDER BY created_at DESC LIMIT ?`, status, limit)
	} else {
		err = s.client.SelectContext(ctx, &rows, `
			SELECT id, name, goal, description, agent_types, status, current_step,
			       token_budget, tokens_used, baton_data, created_at, updated_at, completed_at
			FROM relay_pipelines
			ORDER BY created_at DESC LIMIT ?`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	summaries := make([]PipelineSummary, 0, len(rows))
	for _, p := range rows {
		agents, err := p.AgentList()
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, PipelineSummary{
			ID:         p.ID,
			Name:       p.Name,
			Status:     p.Status,
			Progress:   fmt.Sprintf("%d/%d", p.CurrentStep, len(agents)),
			TokensUsed: p.TokensUsed,
			CreatedAt:  p.CreatedAt,
		})
	}

	return summaries, nil
}

func loadPipeline(ctx context.Context, tx *sqlx.Tx, pipelineID string) (*models.RelayPipeline, error) {
	var pipeline models.RelayPipeline
	err := tx.GetContext(ctx, &pipeline, `
		SELECT id, name, goal, description, agent_types, status, current_step,
		       token_budget, tokens_used, baton_data, created_at, updated_at, completed_at
		FROM relay_pipelines WHERE id = ?`, pipelineID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundError("Pipeline %s not found", pipelineID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return &pipeline, nil
}
