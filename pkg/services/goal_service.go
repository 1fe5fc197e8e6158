package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agentfleet/substrate/pkg/database"
	"github.com/agentfleet/substrate/pkg/models"
)

// Decomposition templates keyed by strategy. Sequential tasks are chained by
// dependency; the other strategies produce independent tasks. Priority is
// 10 - index so earlier tasks dequeue first.
var decompositionTemplates = map[string]struct {
	titles  []string
	chained bool
}{
	"sequential": {
		titles: []string{
			"Analyze requirements for: %s",
			"Design solution for: %s",
			"Implement: %s",
			"Test: %s",
			"Document: %s",
		},
		chained: true,
	},
	"parallel": {
		titles: []string{
			"Research: %s",
			"Prototype: %s",
			"Review: %s",
		},
	},
	"hierarchical": {
		titles: []string{
			"Plan: %s",
			"Execute Phase 1: %s",
			"Execute Phase 2: %s",
			"Integrate: %s",
			"Validate: %s",
		},
	},
}

// GoalReceipt summarizes a created goal.
type GoalReceipt struct {
	GoalID  int64             `json:"goal_id"`
	Name    string            `json:"name"`
	Status  models.GoalStatus `json:"status"`
	Message string            `json:"message"`
}

// GoalDetail is a goal with its tasks loaded.
type GoalDetail struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Description *string           `json:"description"`
	Status      models.GoalStatus `json:"status"`
	Metadata    *string           `json:"metadata"`
	Tasks       []models.Task     `json:"tasks"`
	TaskCount   int               `json:"task_count"`
	CreatedAt   time.Time         `json:"created_at"`
}

// GoalSummary is one ListGoals row with its per-status task histogram.
type GoalSummary struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Description *string           `json:"description"`
	Status      models.GoalStatus `json:"status"`
	TaskStats   map[string]int64  `json:"task_stats"`
	CreatedAt   time.Time         `json:"created_at"`
}

// DecompositionResult reports the tasks created by DecomposeGoal.
type DecompositionResult struct {
	GoalID              int64   `json:"goal_id"`
	Strategy            string  `json:"strategy"`
	TaskIDs             []int64 `json:"task_ids"`
	TaskCount           int     `json:"task_count"`
	DecompositionTimeMS float64 `json:"decomposition_time_ms"`
	Message             string  `json:"message"`
}

// GoalService manages goals and their decomposition into tasks.
type GoalService struct {
	client *database.Client
}

// NewGoalService creates a new GoalService.
func NewGoalService(client *database.Client) *GoalService {
	if client == nil {
		panic("NewGoalService: client must not be nil")
	}
	return &GoalService{client: client}
}

// CreateGoal inserts a new active goal.
func (s *GoalService) CreateGoal(ctx context.Context, name string, description *string, metadata map[string]any) (*GoalReceipt, error) {
	if name == "" {
		return nil, NewValidationError("name", "goal name is required")
	}

	var metadataJSON *string
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		str := string(raw)
		metadataJSON = &str
	}

	res, err := s.client.ExecContext(ctx, `
		INSERT INTO goals (name, description, status, metadata)
		VALUES (?, ?, 'active', ?)`,
		name, description, metadataJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	goalID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &GoalReceipt{
		GoalID:  goalID,
		Name:    name,
		Status:  models.GoalStatusActive,
		Message: fmt.Sprintf("Goal '%s' created successfully", name),
	}, nil
}

// GetGoal returns a goal with its tasks, highest priority first.
func (s *GoalService) GetGoal(ctx context.Context, goalID int64) (*GoalDetail, error) {
	var goal models.Goal
	err := s.client.GetContext(ctx, &goal, `
		SELECT id, name, description, status, metadata, created_at, updated_at, completed_at
		FROM goals WHERE id = ?`, goalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundError("Goal %d not found", goalID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var tasks []models.Task
	if err := s.client.SelectContext(ctx, &tasks, `
		SELECT id, goal_id, title, description, status, priority, result, error,
		       dependencies, created_at, updated_at, started_at, completed_at
		FROM tasks WHERE goal_id = ?
		ORDER BY priority DESC`, goalID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if tasks == nil {
		tasks = []models.Task{}
	}

	return &GoalDetail{
		ID:          goal.ID,
		Name:        goal.Name,
		Description: goal.Description,
		Status:      goal.Status,
		Metadata:    goal.Metadata,
		Tasks:       tasks,
		TaskCount:   len(tasks),
		CreatedAt:   goal.CreatedAt,
	}, nil
}

// ListGoals returns goals newest first, optionally filtered by status, each
// with a task-status histogram.
func (s *GoalService) ListGoals(ctx context.Context, status string) ([]GoalSummary, error) {
	var goals []models.Goal
	var err error
	if status != "" {
		err = s.client.SelectContext(ctx, &goals, `
			SELECT id, name, description, status, metadata, created_at, updated_at, completed_at
			FROM goals WHERE status = ?
			ORDER BY created_at DESC`, status)
	} else {
		err = s.client.SelectContext(ctx, &goals, `
			SELECT id, name, description, status, metadata, created_at, updated_at, completed_at
			FROM goals
			ORDER BY created_at DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	summaries := make([]GoalSummary, 0, len(goals))
	for _, g := range goals {
		type statusCount struct {
			Status string `db:"status"`
			Count  int64  `db:"count"`
		}
		var counts []statusCount
		if err := s.client.SelectContext(ctx, &counts, `
			SELECT status, COUNT(*) as count FROM tasks
			WHERE goal_id = ? GROUP BY status`, g.ID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		stats := map[string]int64{}
		for _, c := range counts {
			stats[c.Status] = c.Count
		}

		summaries = append(summaries, GoalSummary{
			ID:          g.ID,
			Name:        g.Name,
			Description: g.Description,
			Status:      g.Status,
			TaskStats:   stats,
			CreatedAt:   g.CreatedAt,
		})
	}

	return summaries, nil
}

// DecomposeGoal expands a goal into template tasks for the given strategy.
// Sequential tasks each depend on the previous task; parallel and
// hierarchical tasks carry no dependencies.
func (s *GoalService) DecomposeGoal(ctx context.Context, goalID int64, strategy string) (*DecompositionResult, error) {
	start := time.Now()

	if strategy == "" {
		strategy = "sequential"
	}
	template, ok := decompositionTemplates[strategy]
	if !ok {
		return nil, InvalidArgumentError("Unknown strategy: %s", strategy)
	}

	var goal models.Goal
	err := s.client.GetContext(ctx, &goal,
		`SELECT id, name, status, created_at, updated_at FROM goals WHERE id = ?`, goalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundError("Goal %d not found", goalID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	tx, err := s.client.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	taskIDs := make([]int64, 0, len(template.titles))
	for i, titleFmt := range template.titles {
		title := fmt.Sprintf(titleFmt, goal.Name)
		priority := 10 - i

		deps := []int64{}
		if template.chained && len(taskIDs) > 0 {
			deps = append(deps, taskIDs[len(taskIDs)-1])
		}
		depsJSON, err := json.Marshal(deps)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal dependencies: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (goal_id, title, status, priority, dependencies)
			VALUES (?, ?, 'pending', ?, ?)`,
			goalID, title, priority, string(depsJSON))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		taskID, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		taskIDs = append(taskIDs, taskID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &DecompositionResult{
		GoalID:              goalID,
		Strategy:            strategy,
		TaskIDs:             taskIDs,
		TaskCount:           len(taskIDs),
		DecompositionTimeMS: roundMillis(time.Since(start)),
		Message:             fmt.Sprintf("Created %d tasks for goal '%s'", len(taskIDs), goal.Name),
	}, nil
}
