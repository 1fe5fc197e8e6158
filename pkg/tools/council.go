package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentfleet/substrate/pkg/config"
	"github.com/agentfleet/substrate/pkg/council"
	"github.com/agentfleet/substrate/pkg/version"
)

// CouncilDeps bundles the collaborators behind the council server's tools.
type CouncilDeps struct {
	Council       *council.Council
	Conversations *council.ConversationStore
	Config        config.CouncilConfig
}

type councilToolset struct {
	deps CouncilDeps
}

// NewCouncilServer builds the deliberation MCP server. Tools that talk to
// provider CLIs carry an open-world hint; the catalog tools stay local.
func NewCouncilServer(deps CouncilDeps) *mcp.Server {
	if deps.Council == nil || deps.Conversations == nil {
		panic("NewCouncilServer: all dependencies are required")
	}

	t := &councilToolset{deps: deps}
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "agentfleet-council",
		Version: version.GitCommit,
	}, nil)
	t.register(server)
	return server
}

func (t *councilToolset) register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "council_deliberate",
		Description: "Run a full three-stage deliberation: collect responses, rank anonymously, synthesize",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Council Deliberate",
			DestructiveHint: boolPtr(false),
			OpenWorldHint:   boolPtr(true),
		},
	}, t.handleDeliberate)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "council_quick_query",
		Description: "Query a single provider without the deliberation protocol",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Quick Query",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(true),
		},
	}, t.handleQuickQuery)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "council_get_providers",
		Description: "List installed provider CLIs and the active council configuration",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Get Providers",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleGetProviders)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "council_list_patterns",
		Description: "List the supported deliberation patterns",
		Annotations: &mcp.ToolAnnotations{
			Title:         "List Patterns",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleListPatterns)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "council_run_pattern",
		Description: "Run a named deliberation pattern: debate, socratic, red_team, tree_of_thought, and more",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Run Pattern",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(true),
		},
	}, t.handleRunPattern)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "council_compare_providers",
		Description: "Send one prompt to every installed provider and compare the answers",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Compare Providers",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(true),
		},
	}, t.handleCompareProviders)
}

// textResult serializes v as the unstructured text content of a tool result.
// Pattern results have per-pattern shapes, so they skip the output schema.
func textResult(v any) (*mcp.CallToolResult, any, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
	}, nil, nil
}

type DeliberateArgs struct {
	Question string `json:"question" jsonschema:"Question for the council"`
	Save     *bool  `json:"save,omitempty" jsonschema:"Persist the transcript (default true)"`
}

func (t *councilToolset) handleDeliberate(ctx context.Context, req *mcp.CallToolRequest, args DeliberateArgs) (*mcp.CallToolResult, council.Deliberation, error) {
	if args.Question == "" {
		return nil, council.Deliberation{Error: "No question provided"}, nil
	}

	slog.Info("Starting deliberation", "question", truncate(args.Question, 50))
	result := t.deps.Council.Deliberate(ctx, args.Question)

	save := args.Save == nil || *args.Save
	if save && result.Success {
		id, err := t.deps.Conversations.Save(args.Question, result)
		if err != nil {
			slog.Warn("Failed to save conversation", "error", err)
		} else {
			result.ConversationID = id
		}
	}
	return nil, *result, nil
}

type QuickQueryArgs struct {
	Provider string  `json:"provider,omitempty" jsonschema:"Provider to query (default claude)"`
	Prompt   string  `json:"prompt" jsonschema:"Prompt to send"`
	Timeout  float64 `json:"timeout,omitempty" jsonschema:"Timeout in seconds (default 60)"`
}

func (t *councilToolset) handleQuickQuery(ctx context.Context, req *mcp.CallToolRequest, args QuickQueryArgs) (*mcp.CallToolResult, council.QuickQueryResult, error) {
	provider := args.Provider
	if provider == "" {
		provider = "claude"
	}
	if args.Prompt == "" {
		return nil, council.QuickQueryResult{Provider: provider, Error: strPtr("No prompt provided")}, nil
	}

	timeout := time.Duration(args.Timeout * float64(time.Second))
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return nil, t.deps.Council.QuickQuery(ctx, provider, args.Prompt, timeout), nil
}

type GetProvidersResult struct {
	AvailableProviders []string        `json:"available_providers"`
	Config             config.Snapshot `json:"config"`
}

func (t *councilToolset) handleGetProviders(ctx context.Context, req *mcp.CallToolRequest, args EmptyArgs) (*mcp.CallToolResult, GetProvidersResult, error) {
	return nil, GetProvidersResult{
		AvailableProviders: t.deps.Council.AvailableProviders(),
		Config:             t.deps.Config.Snapshot(),
	}, nil
}

type ListPatternsResult struct {
	Patterns []council.PatternInfo `json:"patterns"`
}

func (t *councilToolset) handleListPatterns(ctx context.Context, req *mcp.CallToolRequest, args EmptyArgs) (*mcp.CallToolResult, ListPatternsResult, error) {
	return nil, ListPatternsResult{Patterns: council.ListPatterns()}, nil
}

type RunPatternArgs struct {
	Pattern  string   `json:"pattern,omitempty" jsonschema:"Pattern ID (default deliberation)"`
	Question string   `json:"question" jsonschema:"Question or topic for the council"`
	Models   []string `json:"models,omitempty" jsonschema:"Override the council membership"`
	Rounds   int      `json:"rounds,omitempty" jsonschema:"Rounds for iterative patterns (default 2)"`
	Branches int      `json:"branches,omitempty" jsonschema:"Branches for tree_of_thought (default 3)"`
}

func (t *councilToolset) handleRunPattern(ctx context.Context, req *mcp.CallToolRequest, args RunPatternArgs) (*mcp.CallToolResult, any, error) {
	pattern := args.Pattern
	if pattern == "" {
		pattern = "deliberation"
	}
	if args.Question == "" {
		return textResult(map[string]string{"error": "No question provided"})
	}

	result, err := t.deps.Council.RunPattern(ctx, pattern, args.Question, args.Models, args.Rounds, args.Branches)
	if err != nil {
		return textResult(map[string]string{"error": err.Error()})
	}
	return textResult(result)
}

type CompareProvidersArgs struct {
	Prompt string `json:"prompt" jsonschema:"Prompt sent to every installed provider"`
}

type CompareProvidersResult struct {
	Prompt           string                          `json:"prompt,omitempty"`
	ProvidersQueried []string                        `json:"providers_queried,omitempty"`
	Results          map[string]council.CompareEntry `json:"results,omitempty"`
	Error            string                          `json:"error,omitempty"`
}

func (t *councilToolset) handleCompareProviders(ctx context.Context, req *mcp.CallToolRequest, args CompareProvidersArgs) (*mcp.CallToolResult, CompareProvidersResult, error) {
	if args.Prompt == "" {
		return nil, CompareProvidersResult{Error: "No prompt provided"}, nil
	}

	comparison := t.deps.Council.CompareProviders(ctx, args.Prompt)
	return nil, CompareProvidersResult{
		Prompt:           comparison.Prompt,
		ProvidersQueried: comparison.ProvidersQueried,
		Results:          comparison.Results,
	}, nil
}
