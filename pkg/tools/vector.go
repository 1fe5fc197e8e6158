package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentfleet/substrate/pkg/embedding"
)

// Vector overlay tools. They operate on the JSON file store next to the
// sqlite database, not on the entity tables.

func (t *memoryToolset) registerVector(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_embeddings",
		Description: "Generate embedding vectors for a batch of texts",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Generate Embeddings",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleGenerateEmbeddings)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "store_memory",
		Description: "Store content with its embedding in the vector memory store",
		Annotations: &mcp.ToolAnnotations{
			Title:           "Store Vector Memory",
			DestructiveHint: boolPtr(false),
			OpenWorldHint:   boolPtr(false),
		},
	}, t.handleStoreMemory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "retrieve_memories",
		Description: "Search vector memory by cosine similarity to a query",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Retrieve Vector Memories",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleRetrieveMemories)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_performance",
		Description: "Get vector store statistics and embedding mode",
		Annotations: &mcp.ToolAnnotations{
			Title:         "Vector Store Status",
			ReadOnlyHint:  true,
			OpenWorldHint: boolPtr(false),
		},
	}, t.handleVectorStatus)
}

type GenerateEmbeddingsArgs struct {
	Texts []string `json:"texts" jsonschema:"Texts to embed"`
}

type GenerateEmbeddingsResult struct {
	Success    bool               `json:"success"`
	Embeddings []embedding.Vector `json:"embeddings,omitempty"`
	Count      int                `json:"count"`
	Dimensions int                `json:"dimensions"`
	Mode       string             `json:"mode,omitempty"`
	Error      string             `json:"error,omitempty"`
}

func (t *memoryToolset) handleGenerateEmbeddings(ctx context.Context, req *mcp.CallToolRequest, args GenerateEmbeddingsArgs) (*mcp.CallToolResult, GenerateEmbeddingsResult, error) {
	batch, err := embedding.Generate(args.Texts)
	if err != nil {
		return nil, GenerateEmbeddingsResult{Error: err.Error()}, nil
	}
	return nil, GenerateEmbeddingsResult{
		Success:    true,
		Embeddings: batch.Embeddings,
		Count:      batch.Count,
		Dimensions: batch.Dimensions,
		Mode:       batch.Mode,
	}, nil
}

type StoreMemoryArgs struct {
	Content    string `json:"content" jsonschema:"Content to store"`
	MemoryType string `json:"memory_type,omitempty" jsonschema:"episodic, semantic, or procedural (default episodic)"`
}

type StoreMemoryResult struct {
	Success    bool   `json:"success"`
	MemoryID   string `json:"memory_id,omitempty"`
	MemoryType string `json:"memory_type,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (t *memoryToolset) handleStoreMemory(ctx context.Context, req *mcp.CallToolRequest, args StoreMemoryArgs) (*mcp.CallToolResult, StoreMemoryResult, error) {
	receipt, err := t.deps.Vectors.StoreMemory(args.Content, args.MemoryType)
	if err != nil {
		return nil, StoreMemoryResult{Error: err.Error()}, nil
	}
	return nil, StoreMemoryResult{
		Success:    true,
		MemoryID:   receipt.MemoryID,
		MemoryType: receipt.MemoryType,
		Mode:       receipt.Mode,
	}, nil
}

type RetrieveMemoriesArgs struct {
	Query string `json:"query" jsonschema:"Search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum results (default 5)"`
}

type RetrieveMemoriesResult struct {
	Success bool                     `json:"success"`
	Results []embedding.SearchResult `json:"results,omitempty"`
	Count   int                      `json:"count"`
	Mode    string                   `json:"mode,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

func (t *memoryToolset) handleRetrieveMemories(ctx context.Context, req *mcp.CallToolRequest, args RetrieveMemoriesArgs) (*mcp.CallToolResult, RetrieveMemoriesResult, error) {
	results, err := t.deps.Vectors.RetrieveMemories(args.Query, args.Limit)
	if err != nil {
		return nil, RetrieveMemoriesResult{Error: err.Error()}, nil
	}
	return nil, RetrieveMemoriesResult{
		Success: true,
		Results: results,
		Count:   len(results),
		Mode:    "local",
	}, nil
}

type VectorStatusResult struct {
	Success         bool           `json:"success"`
	Mode            string         `json:"mode"`
	EmbeddingsModel string         `json:"embeddings_model"`
	TotalMemories   int            `json:"total_memories"`
	MemoryBreakdown map[string]int `json:"memory_breakdown"`
	StoragePath     string         `json:"storage_path"`
	Error           string         `json:"error,omitempty"`
}

func (t *memoryToolset) handleVectorStatus(ctx context.Context, req *mcp.CallToolRequest, args EmptyArgs) (*mcp.CallToolResult, VectorStatusResult, error) {
	status := t.deps.Vectors.VectorStatus()
	return nil, VectorStatusResult{
		Success:         true,
		Mode:            status.Mode,
		EmbeddingsModel: status.EmbeddingsModel,
		TotalMemories:   status.TotalMemories,
		MemoryBreakdown: status.MemoryBreakdown,
		StoragePath:     status.StoragePath,
	}, nil
}
