// Memory engine MCP server. Serves the tiered memory and vector tools over
// stdio, with an optional diagnostics HTTP surface.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/agentfleet/substrate/pkg/api"
	"github.com/agentfleet/substrate/pkg/config"
	"github.com/agentfleet/substrate/pkg/curation"
	"github.com/agentfleet/substrate/pkg/database"
	"github.com/agentfleet/substrate/pkg/embedding"
	"github.com/agentfleet/substrate/pkg/services"
	"github.com/agentfleet/substrate/pkg/tools"
	"github.com/agentfleet/substrate/pkg/version"
)

func main() {
	// stdout belongs to the MCP stdio transport, so all logging goes to stderr
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.LogLevel(),
	})))

	cfg := config.LoadMemory()
	slog.Info("Starting memory engine",
		"version", version.GitCommit,
		"data_dir", cfg.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 1. Open the database and apply migrations
	dbClient, err := database.NewClient(ctx, database.Config{
		Path:         cfg.DatabasePath(),
		MigrationSet: database.MigrationSetMemory,
	})
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database", "error", err)
		}
	}()
	slog.Info("Database ready", "path", dbClient.Path())

	// 2. Wire services
	entities := services.NewEntityService(dbClient)
	working := services.NewWorkingMemoryService(dbClient)
	episodes := services.NewEpisodicService(dbClient)
	concepts := services.NewSemanticService(dbClient)
	skills := services.NewProceduralService(dbClient)
	curationSvc := services.NewCurationService(dbClient)
	vectors := embedding.NewStore(cfg.DataDir)

	// 3. Background curation worker
	if cfg.CurationInterval > 0 {
		worker := curation.NewWorker(cfg.CurationInterval, curationSvc)
		worker.Start(ctx)
		defer worker.Stop()
	}

	// 4. Optional ops server
	if cfg.HTTPAddr != "" {
		ops := api.NewServer(dbClient, func(ctx context.Context) (any, error) {
			return entities.Status(ctx)
		})
		go func() {
			slog.Info("Ops server listening", "addr", cfg.HTTPAddr)
			if err := ops.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
				slog.Error("Ops server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ops.Shutdown(shutdownCtx); err != nil {
				slog.Error("Ops server shutdown error", "error", err)
			}
		}()
	}

	// 5. Serve MCP over stdio until the client disconnects or a signal arrives
	server := tools.NewMemoryServer(tools.MemoryDeps{
		Entities: entities,
		Working:  working,
		Episodes: episodes,
		Concepts: concepts,
		Skills:   skills,
		Curation: curationSvc,
		Vectors:  vectors,
	})
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		slog.Error("MCP server error", "error", err)
	}

	slog.Info("Shutdown complete")
}
