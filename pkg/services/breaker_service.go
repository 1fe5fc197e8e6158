package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/agentfleet/substrate/pkg/database"
	"github.com/agentfleet/substrate/pkg/models"
)

// BreakerSnapshot is the reported state of one agent's breaker. Message is
// only set when the row was created by this call.
type BreakerSnapshot struct {
	AgentID          string              `json:"agent_id"`
	State            models.BreakerState `json:"state"`
	FailureCount     int64               `json:"failure_count"`
	FailureThreshold int64               `json:"failure_threshold,omitempty"`
	LastFailureAt    *time.Time          `json:"last_failure_at,omitempty"`
	FallbackAgent    string              `json:"fallback_agent,omitempty"`
	Message          string              `json:"message,omitempty"`
}

// FailureRecord reports the breaker state after a recorded failure.
type FailureRecord struct {
	AgentID      string              `json:"agent_id"`
	State        models.BreakerState `json:"state"`
	FailureCount int64               `json:"failure_count"`
	Tripped      bool                `json:"tripped"`
}

// SuccessRecord reports the breaker state after a recorded success.
type SuccessRecord struct {
	AgentID      string              `json:"agent_id"`
	State        models.BreakerState `json:"state"`
	FailureCount int64               `json:"failure_count"`
}

// BreakerService tracks per-agent failure state. Breakers are created lazily
// on first reference; the open to half_open transition is evaluated lazily
// at read time, never by a background timer. failure_count is the number of
// consecutive failures since the last success or reset.
type BreakerService struct {
	client *database.Client
}

// NewBreakerService creates a new BreakerService.
func NewBreakerService(client *database.Client) *BreakerService {
	if client == nil {
		panic("NewBreakerService: client must not be nil")
	}
	return &BreakerService{client: client}
}

// BreakerStatus reports an agent's breaker, creating it when first seen. An
// open breaker past its cooldown transitions to half_open before reporting.
func (s *BreakerService) BreakerStatus(ctx context.Context, agentID string) (*BreakerSnapshot, error) {
	if agentID == "" {
		return nil, NewValidationError("agent_id", "agent id is required")
	}

	tx, err := s.client.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	cb, created, err := loadOrCreateBreaker(ctx, tx, agentID)
	if err != nil {
		return nil, err
	}
	if created {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		return &BreakerSnapshot{
			AgentID:      agentID,
			State:        models.BreakerClosed,
			FailureCount: 0,
			Message:      "New circuit breaker created",
		}, nil
	}

	if cb.State == models.BreakerOpen && cb.OpenedAt != nil &&
		nowUTC().Sub(*cb.OpenedAt) >= time.Duration(cb.CooldownSeconds)*time.Second {
		if _, err := tx.ExecContext(ctx,
			`UPDATE circuit_breakers SET state = 'half_open' WHERE agent_id = ?`,
			agentID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		cb.State = models.BreakerHalfOpen
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &BreakerSnapshot{
		AgentID:          cb.AgentID,
		State:            cb.State,
		FailureCount:     cb.FailureCount,
		FailureThreshold: cb.FailureThreshold,
		LastFailureAt:    cb.LastFailureAt,
		FallbackAgent:    cb.FallbackAgent,
	}, nil
}

// RecordFailure increments the consecutive-failure count and applies the
// state machine: a closed breaker opens at the threshold, a half_open
// breaker opens on any failure. failureType and errorMessage are logged,
// not stored.
func (s *BreakerService) RecordFailure(ctx context.Context, agentID string, failureType, errorMessage *string) (*FailureRecord, error) {
	if agentID == "" {
		return nil, NewValidationError("agent_id", "agent id is required")
	}

	tx, err := s.client.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	cb, _, err := loadOrCreateBreaker(ctx, tx, agentID)
	if err != nil {
		return nil, err
	}

	newCount := cb.FailureCount + 1
	newState := cb.State
	openedAt := cb.OpenedAt

	switch {
	case cb.State == models.BreakerHalfOpen:
		newState = models.BreakerOpen
		now := nowUTC()
		openedAt = &now
	case cb.State == models.BreakerClosed && newCount >= cb.FailureThreshold:
		newState = models.BreakerOpen
		now := nowUTC()
		openedAt = &now
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE circuit_breakers
		SET failure_count = ?, state = ?, last_failure_at = ?, opened_at = ?
		WHERE agent_id = ?`,
		newCount, newState, nowUTC(), openedAt, agentID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	attrs := []any{"agent_id", agentID, "failure_count", newCount, "state", newState}
	if failureType != nil {
		attrs = append(attrs, "failure_type", *failureType)
	}
	if errorMessage != nil {
		attrs = append(attrs, "error_message", *errorMessage)
	}
	slog.Warn("Agent failure recorded", attrs...)

	return &FailureRecord{
		AgentID:      agentID,
		State:        newState,
		FailureCount: newCount,
		Tripped:      newState == models.BreakerOpen,
	}, nil
}

// RecordSuccess clears the consecutive-failure count. A half_open breaker
// closes; an open breaker stays open until its cooldown elapses.
func (s *BreakerService) RecordSuccess(ctx context.Context, agentID string) (*SuccessRecord, error) {
	if agentID == "" {
		return nil, NewValidationError("agent_id", "agent id is required")
	}

	tx, err := s.client.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	cb, _, err := loadOrCreateBreaker(ctx, tx, agentID)
	if err != nil {
		return nil, err
	}

	newState := cb.State
	newCount := int64(0)
	switch cb.State {
	case models.BreakerHalfOpen:
		newState = models.BreakerClosed
	case models.BreakerOpen:
		newCount = cb.FailureCount
	}

	if newState == models.BreakerClosed {
		if _, err := tx.ExecContext(ctx, `
			UPDATE circuit_breakers
			SET state = 'closed', failure_count = 0, last_success_at = ?, opened_at = NULL
			WHERE agent_id = ?`,
			nowUTC(), agentID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `
			UPDATE circuit_breakers SET last_success_at = ? WHERE agent_id = ?`,
			nowUTC(), agentID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &SuccessRecord{
		AgentID:      agentID,
		State:        newState,
		FailureCount: newCount,
	}, nil
}

// ResetBreaker forces a breaker closed with a zero failure count.
func (s *BreakerService) ResetBreaker(ctx context.Context, agentID string) (*BreakerSnapshot, error) {
	if agentID == "" {
		return nil, NewValidationError("agent_id", "agent id is required")
	}

	tx, err := s.client.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, _, err := loadOrCreateBreaker(ctx, tx, agentID); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE circuit_breakers
		SET state = 'closed', failure_count = 0, last_success_at = ?, opened_at = NULL
		WHERE agent_id = ?`,
		nowUTC(), agentID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &BreakerSnapshot{
		AgentID:      agentID,
		State:        models.BreakerClosed,
		FailureCount: 0,
		Message:      "Circuit breaker reset",
	}, nil
}

// loadOrCreateBreaker returns the agent's breaker row, inserting a default
// one when absent. The second return is true when the row was created.
func loadOrCreateBreaker(ctx context.Context, tx *sqlx.Tx, agentID string) (*models.CircuitBreaker, bool, error) {
	var cb models.CircuitBreaker
	err := tx.GetContext(ctx, &cb, `
		SELECT agent_id, state, failure_count, last_failure_at, last_success_at,
		       opened_at, failure_threshold, window_seconds, cooldown_seconds, fallback_agent
		FROM circuit_breakers WHERE agent_id = ?`, agentID)
	if err == nil {
		return &cb, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO circuit_breakers (agent_id) VALUES (?)`, agentID); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := tx.GetContext(ctx, &cb, `
		SELECT agent_id, state, failure_count, last_failure_at, last_success_at,
		       opened_at, failure_threshold, window_seconds, cooldown_seconds, fallback_agent
		FROM circuit_breakers WHERE agent_id = ?`, agentID); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return &cb, true, nil
}
