package services

import (
	"context"
	"fmt"

	"github.com/agentfleet/substrate/pkg/database"
)

// RuntimeStatus is the diagnostics snapshot served by the runtime daemon's
// ops surface.
type RuntimeStatus struct {
	TotalGoals      int64            `json:"total_goals"`
	TotalTasks      int64            `json:"total_tasks"`
	TasksByStatus   map[string]int64 `json:"tasks_by_status"`
	ActivePipelines int64            `json:"active_pipelines"`
	OpenBreakers    int64            `json:"open_breakers"`
	DatabasePath    string           `json:"database_path"`
	Status          string           `json:"status"`
}

// RuntimeStatusService aggregates counts across the runtime tables.
type RuntimeStatusService struct {
	client *database.Client
}

// NewRuntimeStatusService creates a new RuntimeStatusService.
func NewRuntimeStatusService(client *database.Client) *RuntimeStatusService {
	if client == nil {
		panic("NewRuntimeStatusService: client must not be nil")
	}
	return &RuntimeStatusService{client: client}
}

// Status reports store-wide counts and the database path.
func (s *RuntimeStatusService) Status(ctx context.Context) (*RuntimeStatus, error) {
	status := &RuntimeStatus{
		TasksByStatus: map[string]int64{},
		DatabasePath:  s.client.Path(),
		Status:        "healthy",
	}

	type statusCount struct {
		Status string `db:"status"`
		Count  int64  `db:"count"`
	}
	var tasks []statusCount
	if err := s.client.SelectContext(ctx, &tasks,
		`SELECT status, COUNT(*) as count FROM tasks GROUP BY status`); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	for _, tc := range tasks {
		status.TasksByStatus[tc.Status] = tc.Count
		status.TotalTasks += tc.Count
	}

	counts := []struct {
		query string
		dest  *int64
	}{
		{`SELECT COUNT(*) FROM goals`, &status.TotalGoals},
		{`SELECT COUNT(*) FROM relay_pipelines WHERE status = 'in_progress'`, &status.ActivePipelines},
		{`SELECT COUNT(*) FROM circuit_breakers WHERE state = 'open'`, &status.OpenBreakers},
	}
	for _, c := range counts {
		if err := s.client.GetContext(ctx, c.dest, c.query); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
	}

	return status, nil
}
