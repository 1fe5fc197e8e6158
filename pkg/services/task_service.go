package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/agentfleet/substrate/pkg/database"
	"github.com/agentfleet/substrate/pkg/models"
)

// CreateTaskInput carries the fields of a manual task creation. A zero
// Priority defaults to 5.
type CreateTaskInput struct {
	Title        string
	Description  *string
	GoalID       *int64
	Priority     int64
	Dependencies []int64
}

// TaskReceipt summarizes a created task.
type TaskReceipt struct {
	TaskID   int64             `json:"task_id"`
	Title    string            `json:"title"`
	Priority int64             `json:"priority"`
	Status   models.TaskStatus `json:"status"`
	Message  string            `json:"message"`
}

// NextTask is the slice of a task handed to the agent that dequeued it.
type NextTask struct {
	TaskID      int64   `json:"task_id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	GoalID      *int64  `json:"goal_id"`
	Priority    int64   `json:"priority"`
}

// TaskUpdateReceipt confirms a status transition.
type TaskUpdateReceipt struct {
	TaskID  int64             `json:"task_id"`
	Status  models.TaskStatus `json:"status"`
	Message string            `json:"message"`
}

// TaskListItem is one ListTasks row.
type TaskListItem struct {
	ID           int64             `json:"id"`
	Title        string            `json:"title"`
	Description  *string           `json:"description"`
	GoalID       *int64            `json:"goal_id"`
	Status       models.TaskStatus `json:"status"`
	Priority     int64             `json:"priority"`
	Dependencies []int64           `json:"dependencies"`
	CreatedAt    time.Time         `json:"created_at"`
}

// TaskView is the full detail of one task.
type TaskView struct {
	ID           int64             `json:"id"`
	Title        string            `json:"title"`
	Description  *string           `json:"description"`
	GoalID       *int64            `json:"goal_id"`
	Status       models.TaskStatus `json:"status"`
	Priority     int64             `json:"priority"`
	Result       *string           `json:"result"`
	Error        *string           `json:"error"`
	Dependencies []int64           `json:"dependencies"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at"`
	CompletedAt  *time.Time        `json:"completed_at"`
}

// TaskService manages the persistent task queue: creation, dependency-aware
// dequeue, and the task state machine.
type TaskService struct {
	client *database.Client
}

// NewTaskService creates a new TaskService.
func NewTaskService(client *database.Client) *TaskService {
	if client == nil {
		panic("NewTaskService: client must not be nil")
	}
	return &TaskService{client: client}
}

// CreateTask inserts a new pending task. A referenced goal must exist.
func (s *TaskService) CreateTask(ctx context.Context, in CreateTaskInput) (*TaskReceipt, error) {
	if in.Title == "" {
		return nil, NewValidationError("title", "task title is required")
	}
	priority := in.Priority
	if priority == 0 {
		priority = 5
	}
	if priority < 1 || priority > 10 {
		return nil, NewValidationError("priority", "priority must be between 1 and 10")
	}

	if in.GoalID != nil {
		var exists int
		err := s.client.GetContext(ctx, &exists,
			`SELECT COUNT(*) FROM goals WHERE id = ?`, *in.GoalID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		if exists == 0 {
			return nil, NotFoundError("Goal %d not found", *in.GoalID)
		}
	}

	deps := in.Dependencies
	if deps == nil {
		deps = []int64{}
	}
	depsJSON, err := json.Marshal(deps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dependencies: %w", err)
	}

	res, err := s.client.ExecContext(ctx, `
		INSERT INTO tasks (title, description, goal_id, priority, dependencies)
		VALUES (?, ?, ?, ?, ?)`,
		in.Title, in.Description, in.GoalID, priority, string(depsJSON))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	taskID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &TaskReceipt{
		TaskID:   taskID,
		Title:    in.Title,
		Priority: priority,
		Status:   models.TaskStatusPending,
		Message:  fmt.Sprintf("Task '%s' created successfully", in.Title),
	}, nil
}

// GetNextTask dequeues the highest-priority pending task whose dependencies
// are all completed, marking it in_progress. Returns nil when no task is
// eligible.
func (s *TaskService) GetNextTask(ctx context.Context) (*NextTask, error) {
	tx, err := s.client.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	var pending []models.Task
	if err := tx.SelectContext(ctx, &pending, `
		SELECT id, goal_id, title, description, status, priority, result, error,
		       dependencies, created_at, updated_at, started_at, completed_at
		FROM tasks WHERE status = 'pending'
		ORDER BY priority DESC, created_at ASC`); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	for _, task := range pending {
		met, err := dependenciesMet(ctx, tx, &task)
		if err != nil {
			return nil, err
		}
		if !met {
			continue
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE tasks
			SET status = 'in_progress', started_at = COALESCE(started_at, ?), updated_at = ?
			WHERE id = ?`,
			nowUTC(), nowUTC(), task.ID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}

		return &NextTask{
			TaskID:      task.ID,
			Title:       task.Title,
			Description: task.Description,
			GoalID:      task.GoalID,
			Priority:    task.Priority,
		}, nil
	}

	return nil, nil
}

// UpdateTaskStatus transitions a task. Completed and cancelled tasks accept
// no further transitions; entering in_progress requires every dependency
// completed. result and errMsg are only written when provided.
func (s *TaskService) UpdateTaskStatus(ctx context.Context, taskID int64, status models.TaskStatus, result, errMsg *string) (*TaskUpdateReceipt, error) {
	if !status.IsValid() {
		return nil, NewValidationError("status", fmt.Sprintf("invalid status '%s'", status))
	}

	tx, err := s.client.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	var task models.Task
	if err := tx.GetContext(ctx, &task, `
		SELECT id, goal_id, title, description, status, priority, result, error,
		       dependencies, created_at, updated_at, started_at, completed_at
		FROM tasks WHERE id = ?`, taskID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundError("Task %d not found", taskID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if task.Status.IsTerminal() {
		return nil, StateConflictError("Task %d is already %s", taskID, task.Status)
	}
	if status == models.TaskStatusInProgress {
		met, err := dependenciesMet(ctx, tx, &task)
		if err != nil {
			return nil, err
		}
		if !met {
			return nil, StateConflictError("Task %d has incomplete dependencies", taskID)
		}
	}

	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{status, nowUTC()}
	if status == models.TaskStatusInProgress && task.StartedAt == nil {
		sets = append(sets, "started_at = ?")
		args = append(args, nowUTC())
	}
	if status == models.TaskStatusCompleted {
		sets = append(sets, "completed_at = ?")
		args = append(args, nowUTC())
	}
	if result != nil {
		sets = append(sets, "result = ?")
		args = append(args, *result)
	}
	if errMsg != nil {
		sets = append(sets, "error = ?")
		args = append(args, *errMsg)
	}
	args = append(args, taskID)

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = ?", strings.Join(sets, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return &TaskUpdateReceipt{
		TaskID:  taskID,
		Status:  status,
		Message: fmt.Sprintf("Task %d updated to %s", taskID, status),
	}, nil
}

// ListTasks returns tasks filtered by goal and status, highest priority
// first, oldest first within a priority.
func (s *TaskService) ListTasks(ctx context.Context, goalID *int64, status string, limit int) ([]TaskListItem, error) {
	if limit <= 0 {
		limit = 50
	}

	conditions := []string{}
	args := []any{}
	if goalID != nil {
		conditions = append(conditions, "goal_id = ?")
		args = append(args, *goalID)
	}
	if status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, status)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)

	var rows []models.Task
	query := fmt.Sprintf(`
		SELECT id, goal_id, title, description, status, priority, result, error,
		       dependencies, created_at, updated_at, started_at, completed_at
		FROM tasks %s
		ORDER BY priority DESC, created_at ASC
		LIMIT ?`, where)
	if err := s.client.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	items := make([]TaskListItem, 0, len(rows))
	for _, t := range rows {
		deps, err := t.DependencyIDs()
		if err != nil {
			return nil, err
		}
		if deps == nil {
			deps = []int64{}
		}
		items = append(items, TaskListItem{
			ID:           t.ID,
			Title:        t.Title,
			Description:  t.Description,
			GoalID:       t.GoalID,
			Status:       t.Status,
			Priority:     t.Priority,
			Dependencies: deps,
			CreatedAt:    t.CreatedAt,
		})
	}

	return items, nil
}

// GetTask returns the full detail of one task.
func (s *TaskService) GetTask(ctx context.Context, taskID int64) (*TaskView, error) {
	var task models.Task
	err := s.client.GetContext(ctx, &task, `
		SELECT id, goal_id, title, description, status, priority, result, error,
		       dependencies, created_at, updated_at, started_at, completed_at
		FROM tasks WHERE id = ?`, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFoundError("Task %d not found", taskID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	deps, err := task.DependencyIDs()
	if err != nil {
		return nil, err
	}
	if deps == nil {
		deps = []int64{}
	}

	return &TaskView{
		ID:           task.ID,
		Title:        task.Title,
		Description:  task.Description,
		GoalID:       task.GoalID,
		Status:       task.Status,
		Priority:     task.Priority,
		Result:       task.Result,
		Error:        task.Error,
		Dependencies: deps,
		CreatedAt:    task.CreatedAt,
		StartedAt:    task.StartedAt,
		CompletedAt:  task.CompletedAt,
	}, nil
}

// dependenciesMet reports whether every dependency of task is completed.
// A dependency pointing at a missing task counts as unmet.
func dependenciesMet(ctx context.Context, tx *sqlx.Tx, task *models.Task) (bool, error) {
	deps, err := task.DependencyIDs()
	if err != nil {
		return false, err
	}
	for _, depID := range deps {
		var depStatus string
		err := tx.GetContext(ctx, &depStatus,
			`SELECT status FROM tasks WHERE id = ?`, depID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, nil
			}
			return false, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		if depStatus != string(models.TaskStatusCompleted) {
			return false, nil
		}
	}
	return true, nil
}
