package services

import (
	"context"
	"fmt"
	"time"

	"github.com/agentfleet/substrate/pkg/database"
	"github.com/agentfleet/substrate/pkg/models"
)

// AddWorkingItemInput describes one working-memory write. Zero Priority and
// TTLMinutes take the defaults (5 and 60).
type AddWorkingItemInput struct {
	ContextKey string
	Content    string
	Priority   int64
	TTLMinutes int64
	EntityID   *int64
}

// WorkingItemReceipt confirms a working-memory write.
type WorkingItemReceipt struct {
	ID         int64     `json:"id"`
	ContextKey string    `json:"context_key"`
	ExpiresAt  time.Time `json:"expires_at"`
	TTLMinutes int64     `json:"ttl_minutes"`
}

// WorkingItemView is one working-memory read result.
type WorkingItemView struct {
	ID          int64      `json:"id"`
	ContextKey  string     `json:"context_key"`
	Content     string     `json:"content"`
	Priority    int64      `json:"priority"`
	ExpiresAt   *time.Time `json:"expires_at"`
	AccessCount int64      `json:"access_count"`
}

// WorkingMemoryService handles the TTL-bound working tier.
type WorkingMemoryService struct {
	client *database.Client
}

// NewWorkingMemoryService creates a new WorkingMemoryService.
func NewWorkingMemoryService(client *database.Client) *WorkingMemoryService {
	if client == nil {
		panic("NewWorkingMemoryService: client must not be nil")
	}
	return &WorkingMemoryService{client: client}
}

// Add stores a context fragment with expires_at = now + TTL.
func (s *WorkingMemoryService) Add(ctx context.Context, in AddWorkingItemInput) (*WorkingItemReceipt, error) {
	if in.ContextKey == "" {
		return nil, NewValidationError("context_key", "context key is required")
	}
	if in.Content == "" {
		return nil, NewValidationError("content", "content is required")
	}
	if in.Priority == 0 {
		in.Priority = 5
	}
	if in.Priority < 1 || in.Priority > 10 {
		return nil, NewValidationError("priority", "priority must be between 1 and 10")
	}
	if in.TTLMinutes == 0 {
		in.TTLMinutes = 60
	}
	if in.TTLMinutes < 0 {
		return nil, NewValidationError("ttl_minutes", "ttl_minutes must be positive")
	}

	expiresAt := nowUTC().Add(time.Duration(in.TTLMinutes) * time.Minute)

	res, err := s.client.ExecContext(ctx, `
		INSERT INTO working_memory (context_key, content, priority, ttl_minutes, expires_at, entity_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		in.ContextKey, in.Content, in.Priority, in.TTLMinutes, expiresAt, in.EntityID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &WorkingItemReceipt{
		ID:         id,
		ContextKey: in.ContextKey,
		ExpiresAt:  expiresAt,
		TTLMinutes: in.TTLMinutes,
	}, nil
}

// Get purges expired items, then lists live ones ordered by priority and
// recency, incrementing each returned item's access_count. An empty
// contextKey lists across all keys.
func (s *WorkingMemoryService) Get(ctx context.Context, contextKey string, limit int) ([]WorkingItemView, error) {
	if limit <= 0 {
		limit = 50
	}

	tx, err := s.client.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM working_memory WHERE expires_at < ?`, nowUTC()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var rows []models.WorkingMemoryItem
	if contextKey != "" {
		err = tx.SelectContext(ctx, &rows, `
			SELECT id, context_key, content, priority, ttl_minutes, created_at,
			       expires_at, access_count, entity_id
			FROM working_memory WHERE context_key = ?
			ORDER BY priority DESC, created_at DESC LIMIT ?`,
			contextKey, limit)
	} else {
		err = tx.SelectContext(ctx, &rows, `
			SELECT id, context_key, content, priority, ttl_minutes, created_at,
			       expires_at, access_count, entity_id
			FROM working_memory
			ORDER BY priority DESC, created_at DESC LIMIT ?`,
			limit)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	views := make([]WorkingItemView, 0, len(rows))
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx,
			`UPDATE working_memory SET access_count = access_count + 1 WHERE id = ?`,
			row.ID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		views = append(views, WorkingItemView{
			ID:          row.ID,
			ContextKey:  row.ContextKey,
			Content:     row.Content,
			Priority:    row.Priority,
			ExpiresAt:   row.ExpiresAt,
			AccessCount: row.AccessCount + 1,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return views, nil
}
