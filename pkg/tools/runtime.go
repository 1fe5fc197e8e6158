package tools

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentfleet/substrate/pkg/models"
	"github.com/agentfleet/substrate/pkg/services"
	"github.com/agentfleet/substrate/pkg/version"
)

// RuntimeDeps bundles the services behind the runtime server's tools.
type RuntimeDeps struct {
	Goals    *services.GoalService
	Tasks    *services.TaskService
	Relay    *services.RelayService
	Breakers *services.BreakerService
}

type runtimeToolset struct {
	deps RuntimeDeps
}

// NewRuntimeServer builds the agent-runtime MCP server with every goal,
// task, relay, and circuit-breaker tool registered.
func NewRuntimeServer(deps RuntimeDeps) *mcp.Server {
	if deps.Goals == nil || deps.Tasks == nil || deps.Relay == nil || deps.Breakers == nil {
		panic("NewRuntimeServer: all dependencies are required")
	}

	t := &runtimeToolset{deps: deps}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "agentfleet-runtime",
		Version: version.GitCommit,
	}, nil)
	t.register(server)
	t.registerRelay(server)
	return server
}

func (t *runtimeToolset) register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_goal",
		Description: "Create a new goal. Goals persist across sessions",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Create Goal",
			DestructiveHint: boolPtr(false),
			OpenWorldHint:   boolPtr(false),
		},
	}, t.handleCreateGoal)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_goal",
		Description: "Get goal details by ID, including its tasks",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Get Goal",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleGetGoal)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_goals",
		Description: "List all goals, optionally filtered by status",
		Annotations: &mcp.ToolAnnotations{
			Title:         "List Goals",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleListGoals)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "decompose_goal",
		Description: "Decompose a goal into tasks using a strategy template",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Decompose Goal",
			DestructiveHint: boolPtr(false),
			OpenWorldHint:   boolPtr(false),
		},
	}, t.handleDecomposeGoal)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_task",
		Description: "Create a task manually. Tasks persist in the queue across sessions",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Create Task",
			DestructiveHint: boolPtr(false),
			OpenWorldHint:   boolPtr(false),
		},
	}, t.handleCreateTask)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_next_task",
		Description: "Dequeue the next task (highest priority, dependencies met) and mark it in progress",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Get Next Task",
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleGetNextTask)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_task_status",
		Description: "Update task status (pending, in_progress, completed, failed, cancelled)",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Update Task Status",
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleUpdateTaskStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks, optionally filtered by goal or status",
		Annotations: &mcp.ToolAnnotations{
			Title:         "List Tasks",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleListTasks)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_task",
		Description: "Get full task details by ID",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Get Task",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleGetTask)
}

// TaskItem is the wire form of one task row.
type TaskItem struct {
	ID           int64             `json:"id"`
	GoalID       *int64            `json:"goal_id,omitempty"`
	Title        string            `json:"title"`
	Description  *string           `json:"description,omitempty"`
	Status       models.TaskStatus `json:"status"`
	Priority     int64             `json:"priority"`
	Result       *string           `json:"result,omitempty"`
	Error        *string           `json:"error,omitempty"`
	Dependencies []int64           `json:"dependencies"`
	CreatedAt    string            `json:"created_at"`
	StartedAt    *string           `json:"started_at,omitempty"`
	CompletedAt  *string           `json:"completed_at,omitempty"`
}

func taskItemFromModel(task models.Task) TaskItem {
	deps, _ := task.DependencyIDs()
	if deps == nil {
		deps = []int64{}
	}
	return TaskItem{
		ID:           task.ID,
		GoalID:       task.GoalID,
		Title:        task.Title,
		Description:  task.Description,
		Status:       task.Status,
		Priority:     task.Priority,
		Result:       task.Result,
		Error:        task.Error,
		Dependencies: deps,
		CreatedAt:    rfc3339(task.CreatedAt),
		StartedAt:    rfc3339Ptr(task.StartedAt),
		CompletedAt:  rfc3339Ptr(task.CompletedAt),
	}
}

func taskItemFromList(item services.TaskListItem) TaskItem {
	deps := item.Dependencies
	if deps == nil {
		deps = []int64{}
	}
	return TaskItem{
		ID:           item.ID,
		GoalID:       item.GoalID,
		Title:        item.Title,
		Description:  item.Description,
		Status:       item.Status,
		Priority:     item.Priority,
		Dependencies: deps,
		CreatedAt:    rfc3339(item.CreatedAt),
	}
}

func taskItemFromView(view services.TaskView) TaskItem {
	deps := view.Dependencies
	if deps == nil {
		deps = []int64{}
	}
	return TaskItem{
		ID:           view.ID,
		GoalID:       view.GoalID,
		Title:        view.Title,
		Description:  view.Description,
		Status:       view.Status,
		Priority:     view.Priority,
		Result:       view.Result,
		Error:        view.Error,
		Dependencies: deps,
		CreatedAt:    rfc3339(view.CreatedAt),
		StartedAt:    rfc3339Ptr(view.StartedAt),
		CompletedAt:  rfc3339Ptr(view.CompletedAt),
	}
}

type CreateGoalArgs struct {
	Name        string         `json:"name" jsonschema:"Goal name"`
	Description string         `json:"description,omitempty" jsonschema:"What achieving the goal means"`
	Metadata    map[string]any `json:"metadata,omitempty" jsonschema:"Optional metadata object"`
}

type CreateGoalResult struct {
	GoalID  int64             `json:"goal_id"`
	Name    string            `json:"name"`
	Status  models.GoalStatus `json:"status"`
	Message string            `json:"message"`
	Error   string            `json:"error,omitempty"`
}

func (t *runtimeToolset) handleCreateGoal(ctx context.Context, req *mcp.CallToolRequest, args CreateGoalArgs) (*mcp.CallToolResult, CreateGoalResult, error) {
	var description *string
	if args.Description != "" {
		description = &args.Description
	}

	receipt, err := t.deps.Goals.CreateGoal(ctx, args.Name, description, args.Metadata)
	if err != nil {
		return nil, CreateGoalResult{Error: err.Error()}, nil
	}
	return nil, CreateGoalResult{
		GoalID:  receipt.GoalID,
		Name:    receipt.Name,
		Status:  receipt.Status,
		Message: receipt.Message,
	}, nil
}

type GetGoalArgs struct {
	GoalID int64 `json:"goal_id" jsonschema:"Goal ID"`
}

type GetGoalResult struct {
	ID          int64             `json:"id,omitempty"`
	Name        string            `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Status      models.GoalStatus `json:"status,omitempty"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	Tasks       []TaskItem        `json:"tasks,omitempty"`
	TaskCount   int               `json:"task_count"`
	CreatedAt   string            `json:"created_at,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func (t *runtimeToolset) handleGetGoal(ctx context.Context, req *mcp.CallToolRequest, args GetGoalArgs) (*mcp.CallToolResult, GetGoalResult, error) {
	detail, err := t.deps.Goals.GetGoal(ctx, args.GoalID)
	if err != nil {
		return nil, GetGoalResult{Error: err.Error()}, nil
	}

	tasks := make([]TaskItem, len(detail.Tasks))
	for i, task := range detail.Tasks {
		tasks[i] = taskItemFromModel(task)
	}

	metadata := map[string]any{}
	if detail.Metadata != nil {
		_ = json.Unmarshal([]byte(*detail.Metadata), &metadata)
	}

	return nil, GetGoalResult{
		ID:          detail.ID,
		Name:        detail.Name,
		Description: detail.Description,
		Status:      detail.Status,
		Metadata:    metadata,
		Tasks:       tasks,
		TaskCount:   detail.TaskCount,
		CreatedAt:   rfc3339(detail.CreatedAt),
	}, nil
}

type ListGoalsArgs struct {
	Status string `json:"status,omitempty" jsonschema:"Optional status filter: active, completed, or cancelled"`
}

// GoalItem is the wire form of one goal summary.
type GoalItem struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Description *string           `json:"description,omitempty"`
	Status      models.GoalStatus `json:"status"`
	TaskStats   map[string]int64  `json:"task_stats"`
	CreatedAt   string            `json:"created_at"`
}

type ListGoalsResult struct {
	Goals []GoalItem `json:"goals"`
	Error string     `json:"error,omitempty"`
}

func (t *runtimeToolset) handleListGoals(ctx context.Context, req *mcp.CallToolRequest, args ListGoalsArgs) (*mcp.CallToolResult, ListGoalsResult, error) {
	summaries, err := t.deps.Goals.ListGoals(ctx, args.Status)
	if err != nil {
		return nil, ListGoalsResult{Error: err.Error()}, nil
	}

	goals := make([]GoalItem, len(summaries))
	for i, s := range summaries {
		goals[i] = GoalItem{
			ID:          s.ID,
			Name:        s.Name,
			Description: s.Description,
			Status:      s.Status,
			TaskStats:   s.TaskStats,
			CreatedAt:   rfc3339(s.CreatedAt),
		}
	}
	return nil, ListGoalsResult{Goals: goals}, nil
}

type DecomposeGoalArgs struct {
	GoalID   int64  `json:"goal_id" jsonschema:"ID of the goal to decompose"`
	Strategy string `json:"strategy,omitempty" jsonschema:"sequential, parallel, or hierarchical (default sequential)"`
}

type DecomposeGoalResult struct {
	GoalID              int64   `json:"goal_id"`
	Strategy            string  `json:"strategy,omitempty"`
	TaskIDs             []int64 `json:"task_ids"`
	TaskCount           int     `json:"task_count"`
	DecompositionTimeMS float64 `json:"decomposition_time_ms"`
	Message             string  `json:"message,omitempty"`
	Error               string  `json:"error,omitempty"`
}

func (t *runtimeToolset) handleDecomposeGoal(ctx context.Context, req *mcp.CallToolRequest, args DecomposeGoalArgs) (*mcp.CallToolResult, DecomposeGoalResult, error) {
	result, err := t.deps.Goals.DecomposeGoal(ctx, args.GoalID, args.Strategy)
	if err != nil {
		return nil, DecomposeGoalResult{Error: err.Error()}, nil
	}
	return nil, DecomposeGoalResult{
		GoalID:              result.GoalID,
		Strategy:            result.Strategy,
		TaskIDs:             result.TaskIDs,
		TaskCount:           result.TaskCount,
		DecompositionTimeMS: result.DecompositionTimeMS,
		Message:             result.Message,
	}, nil
}

type CreateTaskArgs struct {
	Title        string  `json:"title" jsonschema:"Task title"`
	Description  *string `json:"description,omitempty" jsonschema:"Task description"`
	GoalID       *int64  `json:"goal_id,omitempty" jsonschema:"Goal to attach the task to"`
	Priority     int64   `json:"priority,omitempty" jsonschema:"Priority 1-10 (default 5)"`
	Dependencies []int64 `json:"dependencies,omitempty" jsonschema:"Task IDs that must complete first"`
}

type CreateTaskResult struct {
	TaskID   int64             `json:"task_id"`
	Title    string            `json:"title"`
	Priority int64             `json:"priority"`
	Status   models.TaskStatus `json:"status"`
	Message  string            `json:"message"`
	Error    string            `json:"error,omitempty"`
}

func (t *runtimeToolset) handleCreateTask(ctx context.Context, req *mcp.CallToolRequest, args CreateTaskArgs) (*mcp.CallToolResult, CreateTaskResult, error) {
	receipt, err := t.deps.Tasks.CreateTask(ctx, services.CreateTaskInput{
		Title:        args.Title,
		Description:  args.Description,
		GoalID:       args.GoalID,
		Priority:     args.Priority,
		Dependencies: args.Dependencies,
	})
	if err != nil {
		return nil, CreateTaskResult{Error: err.Error()}, nil
	}
	return nil, CreateTaskResult{
		TaskID:   receipt.TaskID,
		Title:    receipt.Title,
		Priority: receipt.Priority,
		Status:   receipt.Status,
		Message:  receipt.Message,
	}, nil
}

type GetNextTaskResult struct {
	Task  *services.NextTask `json:"task,omitempty"`
	Error string             `json:"error,omitempty"`
}

func (t *runtimeToolset) handleGetNextTask(ctx context.Context, req *mcp.CallToolRequest, args EmptyArgs) (*mcp.CallToolResult, GetNextTaskResult, error) {
	next, err := t.deps.Tasks.GetNextTask(ctx)
	if err != nil {
		return nil, GetNextTaskResult{Error: err.Error()}, nil
	}
	return nil, GetNextTaskResult{Task: next}, nil
}

type UpdateTaskStatusArgs struct {
	TaskID int64   `json:"task_id" jsonschema:"Task ID"`
	Status string  `json:"status" jsonschema:"New status: pending, in_progress, completed, failed, or cancelled"`
	Result *string `json:"result,omitempty" jsonschema:"Task output to record"`
	Error  *string `json:"error,omitempty" jsonschema:"Failure detail to record"`
}

type UpdateTaskStatusResult struct {
	TaskID  int64             `json:"task_id"`
	Status  models.TaskStatus `json:"status"`
	Message string            `json:"message"`
	Error   string            `json:"error,omitempty"`
}

func (t *runtimeToolset) handleUpdateTaskStatus(ctx context.Context, req *mcp.CallToolRequest, args UpdateTaskStatusArgs) (*mcp.CallToolResult, UpdateTaskStatusResult, error) {
	receipt, err := t.deps.Tasks.UpdateTaskStatus(ctx, args.TaskID, models.TaskStatus(args.Status), args.Result, args.Error)
	if err != nil {
		return nil, UpdateTaskStatusResult{Error: err.Error()}, nil
	}
	return nil, UpdateTaskStatusResult{
		TaskID:  receipt.TaskID,
		Status:  receipt.Status,
		Message: receipt.Message,
	}, nil
}

type ListTasksArgs struct {
	GoalID *int64 `json:"goal_id,omitempty" jsonschema:"Optional goal filter"`
	Status string `json:"status,omitempty" jsonschema:"Optional status filter"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum tasks (default 50)"`
}

type ListTasksResult struct {
	Tasks []TaskItem `json:"tasks"`
	Error string     `json:"error,omitempty"`
}

func (t *runtimeToolset) handleListTasks(ctx context.Context, req *mcp.CallToolRequest, args ListTasksArgs) (*mcp.CallToolResult, ListTasksResult, error) {
	items, err := t.deps.Tasks.ListTasks(ctx, args.GoalID, args.Status, args.Limit)
	if err != nil {
		return nil, ListTasksResult{Error: err.Error()}, nil
	}

	tasks := make([]TaskItem, len(items))
	for i, item := range items {
		tasks[i] = taskItemFromList(item)
	}
	return nil, ListTasksResult{Tasks: tasks}, nil
}

type GetTaskArgs struct {
	TaskID int64 `json:"task_id" jsonschema:"Task ID"`
}

type GetTaskResult struct {
	Task  *TaskItem `json:"task,omitempty"`
	Error string    `json:"error,omitempty"`
}

func (t *runtimeToolset) handleGetTask(ctx context.Context, req *mcp.CallToolRequest, args GetTaskArgs) (*mcp.CallToolResult, GetTaskResult, error) {
	view, err := t.deps.Tasks.GetTask(ctx, args.TaskID)
	if err != nil {
		return nil, GetTaskResult{Error: err.Error()}, nil
	}

	task := taskItemFromView(*view)
	return nil, GetTaskResult{Task: &task}, nil
}
