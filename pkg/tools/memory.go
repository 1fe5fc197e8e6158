package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentfleet/substrate/pkg/embedding"
	"github.com/agentfleet/substrate/pkg/models"
	"github.com/agentfleet/substrate/pkg/services"
	"github.com/agentfleet/substrate/pkg/version"
)

// MemoryDeps bundles the services behind the memory server's tools.
type MemoryDeps struct {
	Entities *services.EntityService
	Working  *services.WorkingMemoryService
	Episodes *services.EpisodicService
	Concepts *services.SemanticService
	Skills   *services.ProceduralService
	Curation *services.CurationService
	Vectors  *embedding.Store
}

type memoryToolset struct {
	deps MemoryDeps
}

// NewMemoryServer builds the tiered-memory MCP server with every memory and
// vector tool registered.
func NewMemoryServer(deps MemoryDeps) *mcp.Server {
	if deps.Entities == nil || deps.Working == nil || deps.Episodes == nil ||
		deps.Concepts == nil || deps.Skills == nil || deps.Curation == nil || deps.Vectors == nil {
		panic("NewMemoryServer: all dependencies are required")
	}

	t := &memoryToolset{deps: deps}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "agentfleet-memory",
		Version: version.GitCommit,
	}, nil)
	t.register(server)
	t.registerVector(server)
	return server
}

func (t *memoryToolset) register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_entities",
		Description: "Create entities with automatic importance scoring and tier routing",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Create Entities",
			DestructiveHint: boolPtr(false),
			OpenWorldHint:   boolPtr(false),
		},
	}, t.handleCreateEntities)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_nodes",
		Description: "Search for entities by name or observation content",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Search Nodes",
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleSearchNodes)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_memory_status",
		Description: "Get overall memory system status and statistics",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Memory Status",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleMemoryStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_working_memory",
		Description: "Add an item to working memory (temporary, expires after TTL)",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Add Working Memory",
			DestructiveHint: boolPtr(false),
			OpenWorldHint:   boolPtr(false),
		},
	}, t.handleAddWorkingMemory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_working_memory",
		Description: "Get items from working memory, purging expired ones first",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Get Working Memory",
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleGetWorkingMemory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_episode",
		Description: "Add an episode to episodic memory (experiences and events)",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Add Episode",
			DestructiveHint: boolPtr(false),
			OpenWorldHint:   boolPtr(false),
		},
	}, t.handleAddEpisode)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_episodes",
		Description: "Get episodes from episodic memory sorted by significance",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Get Episodes",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleGetEpisodes)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_concept",
		Description: "Add or update a concept in semantic memory (timeless knowledge)",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Add Concept",
			DestructiveHint: boolPtr(false),
			OpenWorldHint:   boolPtr(false),
		},
	}, t.handleAddConcept)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_concepts",
		Description: "Get concepts from semantic memory sorted by confidence",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Get Concepts",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleGetConcepts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_skill",
		Description: "Add or update a skill in procedural memory (how-to knowledge)",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Add Skill",
			DestructiveHint: boolPtr(false),
			OpenWorldHint:   boolPtr(false),
		},
	}, t.handleAddSkill)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "record_skill_execution",
		Description: "Record a skill execution to update its success rate and timing",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Record Skill Execution",
			DestructiveHint: boolPtr(false),
			OpenWorldHint:   boolPtr(false),
		},
	}, t.handleRecordSkillExecution)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_skills",
		Description: "Get skills from procedural memory sorted by success rate",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Get Skills",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleGetSkills)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "autonomous_memory_curation",
		Description: "Run memory curation: clean expired items and promote across tiers",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Memory Curation",
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleCuration)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "memory_diff",
		Description: "Get the diff between two versions of an entity",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Memory Diff",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleMemoryDiff)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "save_entity_version",
		Description: "Snapshot an entity's current state as a new version",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Save Entity Version",
			DestructiveHint: boolPtr(false),
			OpenWorldHint:   boolPtr(false),
		},
	}, t.handleSaveEntityVersion)
}

// EntitySpec is one entity in a create_entities batch.
type EntitySpec struct {
	Name         string         `json:"name" jsonschema:"Unique entity name"`
	EntityType   string         `json:"entityType,omitempty" jsonschema:"Entity type (default general)"`
	Observations []string       `json:"observations,omitempty" jsonschema:"Observation texts to attach"`
	Metadata     map[string]any `json:"metadata,omitempty" jsonschema:"Optional metadata object"`
}

type CreateEntitiesArgs struct {
	Entities []EntitySpec `json:"entities" jsonschema:"Entities to create"`
}

type CreateEntitiesResult struct {
	Created       int                     `json:"created"`
	Errors        int                     `json:"errors"`
	Entities      []services.EntityRecord `json:"entities"`
	ErrorMessages []string                `json:"error_messages"`
	Error         string                  `json:"error,omitempty"`
}

func (t *memoryToolset) handleCreateEntities(ctx context.Context, req *mcp.CallToolRequest, args CreateEntitiesArgs) (*mcp.CallToolResult, CreateEntitiesResult, error) {
	inputs := make([]services.EntityInput, len(args.Entities))
	for i, e := range args.Entities {
		inputs[i] = services.EntityInput{
			Name:         e.Name,
			EntityType:   e.EntityType,
			Observations: e.Observations,
			Metadata:     e.Metadata,
		}
	}

	batch, err := t.deps.Entities.CreateEntities(ctx, inputs)
	if err != nil {
		return nil, CreateEntitiesResult{Error: err.Error()}, nil
	}
	return nil, CreateEntitiesResult{
		Created:       batch.Created,
		Errors:        batch.Errors,
		Entities:      batch.Entities,
		ErrorMessages: batch.ErrorMessages,
	}, nil
}

type SearchNodesArgs struct {
	Query string `json:"query" jsonschema:"Text to match against entity names and observations"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum results (default 10)"`
}

type SearchNodesResult struct {
	Entities []services.EntitySearchHit `json:"entities"`
	Error    string                     `json:"error,omitempty"`
}

func (t *memoryToolset) handleSearchNodes(ctx context.Context, req *mcp.CallToolRequest, args SearchNodesArgs) (*mcp.CallToolResult, SearchNodesResult, error) {
	hits, err := t.deps.Entities.SearchNodes(ctx, args.Query, args.Limit)
	if err != nil {
		return nil, SearchNodesResult{Error: err.Error()}, nil
	}
	return nil, SearchNodesResult{Entities: hits}, nil
}

type MemoryStatusResult struct {
	TotalEntities     int64                 `json:"total_entities"`
	TotalObservations int64                 `json:"total_observations"`
	TierDistribution  map[string]int64      `json:"tier_distribution"`
	FourTierMemory    models.FourTierCounts `json:"four_tier_memory"`
	VersionCount      int64                 `json:"version_count"`
	DatabasePath      string                `json:"database_path"`
	Status            string                `json:"status"`
	Error             string                `json:"error,omitempty"`
}

func (t *memoryToolset) handleMemoryStatus(ctx context.Context, req *mcp.CallToolRequest, args EmptyArgs) (*mcp.CallToolResult, MemoryStatusResult, error) {
	status, err := t.deps.Entities.Status(ctx)
	if err != nil {
		return nil, MemoryStatusResult{Error: err.Error()}, nil
	}
	return nil, MemoryStatusResult{
		TotalEntities:     status.TotalEntities,
		TotalObservations: status.TotalObservations,
		TierDistribution:  status.TierDistribution,
		FourTierMemory:    status.FourTierMemory,
		VersionCount:      status.VersionCount,
		DatabasePath:      status.DatabasePath,
		Status:            status.Status,
	}, nil
}

type AddWorkingMemoryArgs struct {
	ContextKey string `json:"context_key" jsonschema:"Context identifier, e.g. current_task"`
	Content    string `json:"content" jsonschema:"Content to store"`
	Priority   int64  `json:"priority,omitempty" jsonschema:"Priority 1-10 (default 5)"`
	TTLMinutes int64  `json:"ttl_minutes,omitempty" jsonschema:"Time to live in minutes (default 60)"`
	EntityID   *int64 `json:"entity_id,omitempty" jsonschema:"Optional entity to associate with"`
}

type AddWorkingMemoryResult struct {
	ID         int64  `json:"id"`
	ContextKey string `json:"context_key"`
	ExpiresAt  string `json:"expires_at"`
	TTLMinutes int64  `json:"ttl_minutes"`
	Error      string `json:"error,omitempty"`
}

func (t *memoryToolset) handleAddWorkingMemory(ctx context.Context, req *mcp.CallToolRequest, args AddWorkingMemoryArgs) (*mcp.CallToolResult, AddWorkingMemoryResult, error) {
	receipt, err := t.deps.Working.Add(ctx, services.AddWorkingItemInput{
		ContextKey: args.ContextKey,
		Content:    args.Content,
		Priority:   args.Priority,
		TTLMinutes: args.TTLMinutes,
		EntityID:   args.EntityID,
	})
	if err != nil {
		return nil, AddWorkingMemoryResult{Error: err.Error()}, nil
	}
	return nil, AddWorkingMemoryResult{
		ID:         receipt.ID,
		ContextKey: receipt.ContextKey,
		ExpiresAt:  rfc3339(receipt.ExpiresAt),
		TTLMinutes: receipt.TTLMinutes,
	}, nil
}

type GetWorkingMemoryArgs struct {
	ContextKey string `json:"context_key,omitempty" jsonschema:"Optional context filter"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum items (default 50)"`
}

// WorkingMemoryItem is the wire form of one working-memory row.
type WorkingMemoryItem struct {
	ID          int64   `json:"id"`
	ContextKey  string  `json:"context_key"`
	Content     string  `json:"content"`
	Priority    int64   `json:"priority"`
	ExpiresAt   *string `json:"expires_at"`
	AccessCount int64   `json:"access_count"`
}

type GetWorkingMemoryResult struct {
	Items []WorkingMemoryItem `json:"items"`
	Error string              `json:"error,omitempty"`
}

func (t *memoryToolset) handleGetWorkingMemory(ctx context.Context, req *mcp.CallToolRequest, args GetWorkingMemoryArgs) (*mcp.CallToolResult, GetWorkingMemoryResult, error) {
	views, err := t.deps.Working.Get(ctx, args.ContextKey, args.Limit)
	if err != nil {
		return nil, GetWorkingMemoryResult{Error: err.Error()}, nil
	}

	items := make([]WorkingMemoryItem, len(views))
	for i, v := range views {
		items[i] = WorkingMemoryItem{
			ID:          v.ID,
			ContextKey:  v.ContextKey,
			Content:     v.Content,
			Priority:    v.Priority,
			ExpiresAt:   rfc3339Ptr(v.ExpiresAt),
			AccessCount: v.AccessCount,
		}
	}
	return nil, GetWorkingMemoryResult{Items: items}, nil
}

type AddEpisodeArgs struct {
	EventType        string         `json:"event_type" jsonschema:"Type of event, e.g. task_completed"`
	EpisodeData      map[string]any `json:"episode_data,omitempty" jsonschema:"Event payload"`
	Significance     *float64       `json:"significance_score,omitempty" jsonschema:"Significance 0.0-1.0 (default 0.5)"`
	EmotionalValence *float64       `json:"emotional_valence,omitempty" jsonschema:"Valence -1.0 to 1.0"`
	Tags             []string       `json:"tags,omitempty" jsonschema:"Optional tags"`
	EntityID         *int64         `json:"entity_id,omitempty" jsonschema:"Optional entity to associate with"`
}

type AddEpisodeResult struct {
	ID           int64   `json:"id"`
	EventType    string  `json:"event_type"`
	Significance float64 `json:"significance"`
	Error        string  `json:"error,omitempty"`
}

func (t *memoryToolset) handleAddEpisode(ctx context.Context, req *mcp.CallToolRequest, args AddEpisodeArgs) (*mcp.CallToolResult, AddEpisodeResult, error) {
	receipt, err := t.deps.Episodes.AddEpisode(ctx, services.AddEpisodeInput{
		EventType:        args.EventType,
		EpisodeData:      args.EpisodeData,
		Significance:     args.Significance,
		EmotionalValence: args.EmotionalValence,
		Tags:             args.Tags,
		EntityID:         args.EntityID,
	})
	if err != nil {
		return nil, AddEpisodeResult{Error: err.Error()}, nil
	}
	return nil, AddEpisodeResult{
		ID:           receipt.ID,
		EventType:    receipt.EventType,
		Significance: receipt.Significance,
	}, nil
}

type GetEpisodesArgs struct {
	EventType       string  `json:"event_type,omitempty" jsonschema:"Optional event type filter"`
	MinSignificance float64 `json:"min_significance,omitempty" jsonschema:"Minimum significance (default 0.0)"`
	Limit           int     `json:"limit,omitempty" jsonschema:"Maximum episodes (default 50)"`
}

// EpisodeItem is the wire form of one episode.
type EpisodeItem struct {
	ID               int64          `json:"id"`
	EventType        string         `json:"event_type"`
	EpisodeData      map[string]any `json:"episode_data"`
	Significance     float64        `json:"significance"`
	EmotionalValence *float64       `json:"emotional_valence"`
	Tags             []string       `json:"tags"`
	CreatedAt        string         `json:"created_at"`
}

type GetEpisodesResult struct {
	Episodes []EpisodeItem `json:"episodes"`
	Error    string        `json:"error,omitempty"`
}

func (t *memoryToolset) handleGetEpisodes(ctx context.Context, req *mcp.CallToolRequest, args GetEpisodesArgs) (*mcp.CallToolResult, GetEpisodesResult, error) {
	views, err := t.deps.Episodes.GetEpisodes(ctx, args.EventType, args.MinSignificance, args.Limit)
	if err != nil {
		return nil, GetEpisodesResult{Error: err.Error()}, nil
	}

	episodes := make([]EpisodeItem, len(views))
	for i, v := range views {
		episodes[i] = EpisodeItem{
			ID:               v.ID,
			EventType:        v.EventType,
			EpisodeData:      v.EpisodeData,
			Significance:     v.Significance,
			EmotionalValence: v.EmotionalValence,
			Tags:             v.Tags,
			CreatedAt:        rfc3339(v.CreatedAt),
		}
	}
	return nil, GetEpisodesResult{Episodes: episodes}, nil
}

type AddConceptArgs struct {
	ConceptName     string   `json:"concept_name" jsonschema:"Unique concept name"`
	ConceptType     string   `json:"concept_type" jsonschema:"Concept category, e.g. principle or pattern"`
	Definition      string   `json:"definition" jsonschema:"Concept definition"`
	RelatedConcepts []string `json:"related_concepts,omitempty" jsonschema:"Names of related concepts"`
	Confidence      *float64 `json:"confidence_score,omitempty" jsonschema:"Confidence 0.0-1.0 (default 0.5)"`
}

type AddConceptResult struct {
	ID          int64   `json:"id"`
	ConceptName string  `json:"concept_name"`
	Action      string  `json:"action"`
	Confidence  float64 `json:"confidence"`
	Error       string  `json:"error,omitempty"`
}

func (t *memoryToolset) handleAddConcept(ctx context.Context, req *mcp.CallToolRequest, args AddConceptArgs) (*mcp.CallToolResult, AddConceptResult, error) {
	receipt, err := t.deps.Concepts.AddConcept(ctx, services.AddConceptInput{
		ConceptName:     args.ConceptName,
		ConceptType:     args.ConceptType,
		Definition:      args.Definition,
		RelatedConcepts: args.RelatedConcepts,
		Confidence:      args.Confidence,
	})
	if err != nil {
		return nil, AddConceptResult{Error: err.Error()}, nil
	}
	return nil, AddConceptResult{
		ID:          receipt.ID,
		ConceptName: receipt.ConceptName,
		Action:      receipt.Action,
		Confidence:  receipt.Confidence,
	}, nil
}

type GetConceptsArgs struct {
	ConceptType   string  `json:"concept_type,omitempty" jsonschema:"Optional concept type filter"`
	MinConfidence float64 `json:"min_confidence,omitempty" jsonschema:"Minimum confidence (default 0.0)"`
	Limit         int     `json:"limit,omitempty" jsonschema:"Maximum concepts (default 50)"`
}

type GetConceptsResult struct {
	Concepts []services.ConceptView `json:"concepts"`
	Error    string                 `json:"error,omitempty"`
}

func (t *memoryToolset) handleGetConcepts(ctx context.Context, req *mcp.CallToolRequest, args GetConceptsArgs) (*mcp.CallToolResult, GetConceptsResult, error) {
	views, err := t.deps.Concepts.GetConcepts(ctx, args.ConceptType, args.MinConfidence, args.Limit)
	if err != nil {
		return nil, GetConceptsResult{Error: err.Error()}, nil
	}
	return nil, GetConceptsResult{Concepts: views}, nil
}

type AddSkillArgs struct {
	SkillName       string   `json:"skill_name" jsonschema:"Unique skill name"`
	SkillCategory   string   `json:"skill_category" jsonschema:"Skill category, e.g. coding or analysis"`
	ProcedureSteps  []string `json:"procedure_steps" jsonschema:"Ordered steps to execute"`
	Preconditions   *string  `json:"preconditions,omitempty" jsonschema:"Preconditions for the skill"`
	SuccessCriteria *string  `json:"success_criteria,omitempty" jsonschema:"How to judge success"`
}

type AddSkillResult struct {
	ID        int64  `json:"id"`
	SkillName string `json:"skill_name"`
	Action    string `json:"action"`
	Error     string `json:"error,omitempty"`
}

func (t *memoryToolset) handleAddSkill(ctx context.Context, req *mcp.CallToolRequest, args AddSkillArgs) (*mcp.CallToolResult, AddSkillResult, error) {
	receipt, err := t.deps.Skills.AddSkill(ctx, services.AddSkillInput{
		SkillName:       args.SkillName,
		SkillCategory:   args.SkillCategory,
		ProcedureSteps:  args.ProcedureSteps,
		Preconditions:   args.Preconditions,
		SuccessCriteria: args.SuccessCriteria,
	})
	if err != nil {
		return nil, AddSkillResult{Error: err.Error()}, nil
	}
	return nil, AddSkillResult{
		ID:        receipt.ID,
		SkillName: receipt.SkillName,
		Action:    receipt.Action,
	}, nil
}

type RecordSkillExecutionArgs struct {
	SkillName       string  `json:"skill_name" jsonschema:"Name of the executed skill"`
	Success         bool    `json:"success" jsonschema:"Whether the execution succeeded"`
	ExecutionTimeMS float64 `json:"execution_time_ms" jsonschema:"Execution time in milliseconds"`
}

type RecordSkillExecutionResult struct {
	SkillName          string  `json:"skill_name"`
	Success            bool    `json:"success"`
	ExecutionCount     int64   `json:"execution_count"`
	SuccessRate        float64 `json:"success_rate"`
	AvgExecutionTimeMS float64 `json:"avg_execution_time_ms"`
	Message            string  `json:"message"`
	Error              string  `json:"error,omitempty"`
}

func (t *memoryToolset) handleRecordSkillExecution(ctx context.Context, req *mcp.CallToolRequest, args RecordSkillExecutionArgs) (*mcp.CallToolResult, RecordSkillExecutionResult, error) {
	receipt, err := t.deps.Skills.RecordExecution(ctx, args.SkillName, args.Success, args.ExecutionTimeMS)
	if err != nil {
		return nil, RecordSkillExecutionResult{Error: err.Error()}, nil
	}
	return nil, RecordSkillExecutionResult{
		SkillName:          receipt.SkillName,
		Success:            receipt.Success,
		ExecutionCount:     receipt.ExecutionCount,
		SuccessRate:        receipt.SuccessRate,
		AvgExecutionTimeMS: receipt.AvgExecutionTimeMs,
		Message:            receipt.Message,
	}, nil
}

type GetSkillsArgs struct {
	SkillCategory  string  `json:"skill_category,omitempty" jsonschema:"Optional category filter"`
	MinSuccessRate float64 `json:"min_success_rate,omitempty" jsonschema:"Minimum success rate (default 0.0)"`
	Limit          int     `json:"limit,omitempty" jsonschema:"Maximum skills (default 50)"`
}

type GetSkillsResult struct {
	Skills []services.SkillView `json:"skills"`
	Error  string               `json:"error,omitempty"`
}

func (t *memoryToolset) handleGetSkills(ctx context.Context, req *mcp.CallToolRequest, args GetSkillsArgs) (*mcp.CallToolResult, GetSkillsResult, error) {
	views, err := t.deps.Skills.GetSkills(ctx, args.SkillCategory, args.MinSuccessRate, args.Limit)
	if err != nil {
		return nil, GetSkillsResult{Error: err.Error()}, nil
	}
	return nil, GetSkillsResult{Skills: views}, nil
}

type CurationResult struct {
	Status     string                 `json:"status"`
	Promotions *models.CurationReport `json:"promotions,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

func (t *memoryToolset) handleCuration(ctx context.Context, req *mcp.CallToolRequest, args EmptyArgs) (*mcp.CallToolResult, CurationResult, error) {
	report, err := t.deps.Curation.Run(ctx)
	if err != nil {
		return nil, CurationResult{Error: err.Error()}, nil
	}
	return nil, CurationResult{Status: "completed", Promotions: report}, nil
}

type MemoryDiffArgs struct {
	EntityName string `json:"entity_name" jsonschema:"Name of the entity"`
	Version1   *int64 `json:"version1,omitempty" jsonschema:"First version number (default second latest)"`
	Version2   *int64 `json:"version2,omitempty" jsonschema:"Second version number (default latest)"`
}

type MemoryDiffResult struct {
	Entity   string                  `json:"entity,omitempty"`
	Version1 int64                   `json:"version1,omitempty"`
	Version2 int64                   `json:"version2,omitempty"`
	V1       *models.EntitySnapshot  `json:"v1,omitempty"`
	V2       *models.EntitySnapshot  `json:"v2,omitempty"`
	Changes  *models.ObservationDiff `json:"changes,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

func (t *memoryToolset) handleMemoryDiff(ctx context.Context, req *mcp.CallToolRequest, args MemoryDiffArgs) (*mcp.CallToolResult, MemoryDiffResult, error) {
	diff, err := t.deps.Entities.MemoryDiff(ctx, args.EntityName, args.Version1, args.Version2)
	if err != nil {
		return nil, MemoryDiffResult{Error: err.Error()}, nil
	}
	return nil, MemoryDiffResult{
		Entity:   diff.Entity,
		Version1: diff.Version1,
		Version2: diff.Version2,
		V1:       &diff.V1,
		V2:       &diff.V2,
		Changes:  &diff.Changes,
	}, nil
}

type SaveEntityVersionArgs struct {
	EntityName    string `json:"entity_name" jsonschema:"Name of the entity to snapshot"`
	CommitMessage string `json:"commit_message,omitempty" jsonschema:"Describes what changed"`
}

type SaveEntityVersionResult struct {
	EntityName string `json:"entity_name"`
	Version    int64  `json:"version"`
	Message    string `json:"message"`
	Error      string `json:"error,omitempty"`
}

func (t *memoryToolset) handleSaveEntityVersion(ctx context.Context, req *mcp.CallToolRequest, args SaveEntityVersionArgs) (*mcp.CallToolResult, SaveEntityVersionResult, error) {
	versionNum, err := t.deps.Entities.SaveEntityVersion(ctx, args.EntityName, args.CommitMessage)
	if err != nil {
		return nil, SaveEntityVersionResult{Error: err.Error()}, nil
	}
	return nil, SaveEntityVersionResult{
		EntityName: args.EntityName,
		Version:    versionNum,
		Message:    fmt.Sprintf("Version %d saved for entity '%s'", versionNum, args.EntityName),
	}, nil
}
