package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Goal is a long-lived objective that tasks hang off.
type Goal struct {
	ID          int64      `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Description *string    `db:"description" json:"description,omitempty"`
	Status      GoalStatus `db:"status" json:"status"`
	Metadata    *string    `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Task is one unit of work, optionally goal-scoped, with dependency gating.
// Dependencies is a JSON array of task ids stored as TEXT.
type Task struct {
	ID           int64      `db:"id" json:"id"`
	GoalID       *int64     `db:"goal_id" json:"goal_id,omitempty"`
	Title        string     `db:"title" json:"title"`
	Description  *string    `db:"description" json:"description,omitempty"`
	Status       TaskStatus `db:"status" json:"status"`
	Priority     int64      `db:"priority" json:"priority"`
	Result       *string    `db:"result" json:"result,omitempty"`
	Error        *string    `db:"error" json:"error,omitempty"`
	Dependencies *string    `db:"dependencies" json:"dependencies,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
	StartedAt    *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// DependencyIDs decodes the Dependencies column. A missing or empty column
// means no dependencies.
func (t *Task) DependencyIDs() ([]int64, error) {
	if t.Dependencies == nil || *t.Dependencies == "" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(*t.Dependencies), &ids); err != nil {
		return nil, fmt.Errorf("invalid dependencies for task %d: %w", t.ID, err)
	}
	return ids, nil
}

// RelayPipeline is a sequential multi-agent run with baton handoffs and a
// shared token budget. AgentTypes is a JSON array stored as TEXT.
type RelayPipeline struct {
	ID          string         `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Goal        string         `db:"goal" json:"goal"`
	Description *string        `db:"description" json:"description,omitempty"`
	AgentTypes  string         `db:"agent_types" json:"agent_types"`
	Status      PipelineStatus `db:"status" json:"status"`
	CurrentStep int64          `db:"current_step" json:"current_step"`
	TokenBudget int64          `db:"token_budget" json:"token_budget"`
	TokensUsed  int64          `db:"tokens_used" json:"tokens_used"`
	BatonData   *string        `db:"baton_data" json:"baton_data,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
	CompletedAt *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

// AgentList decodes the AgentTypes column.
func (p *RelayPipeline) AgentList() ([]string, error) {
	var agents []string
	if err := json.Unmarshal([]byte(p.AgentTypes), &agents); err != nil {
		return nil, fmt.Errorf("invalid agent_types for pipeline %s: %w", p.ID, err)
	}
	return agents, nil
}

// RelayStep is one agent's leg of a pipeline.
type RelayStep struct {
	ID             int64      `db:"id" json:"id"`
	PipelineID     string     `db:"pipeline_id" json:"pipeline_id"`
	StepIndex      int64      `db:"step_index" json:"step_index"`
	AgentType      string     `db:"agent_type" json:"agent_type"`
	Status         StepStatus `db:"status" json:"status"`
	QualityScore   *float64   `db:"quality_score" json:"quality_score,omitempty"`
	LScore         *float64   `db:"l_score" json:"l_score,omitempty"`
	OutputEntityID *int64     `db:"output_entity_id" json:"output_entity_id,omitempty"`
	TokensUsed     int64      `db:"tokens_used" json:"tokens_used"`
	StartedAt      *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

// Baton is the context object handed from a completed step to the next one.
type Baton struct {
	PreviousStep   int64    `json:"previous_step"`
	QualityScore   *float64 `json:"quality_score"`
	LScore         *float64 `json:"l_score"`
	OutputEntityID *int64   `json:"output_entity_id"`
	Summary        *string  `json:"summary"`
}

// CircuitBreaker tracks per-agent failure state.
type CircuitBreaker struct {
	AgentID          string       `db:"agent_id" json:"agent_id"`
	State            BreakerState `db:"state" json:"state"`
	FailureCount     int64        `db:"failure_count" json:"failure_count"`
	LastFailureAt    *time.Time   `db:"last_failure_at" json:"last_failure_at,omitempty"`
	LastSuccessAt    *time.Time   `db:"last_success_at" json:"last_success_at,omitempty"`
	OpenedAt         *time.Time   `db:"opened_at" json:"opened_at,omitempty"`
	FailureThreshold int64        `db:"failure_threshold" json:"failure_threshold"`
	WindowSeconds    int64        `db:"window_seconds" json:"window_seconds"`
	CooldownSeconds  int64        `db:"cooldown_seconds" json:"cooldown_seconds"`
	FallbackAgent    string       `db:"fallback_agent" json:"fallback_agent"`
}
