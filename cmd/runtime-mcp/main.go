// Agent runtime MCP server. Serves the goal, task, relay, and circuit
// breaker tools over stdio, with an optional diagnostics HTTP surface.
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
	"github.com/agentfleet/substrate/pkg/database"
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

	cfg := config.LoadRuntime()
	slog.Info("Starting agent runtime",
		"version", version.GitCommit,
		"data_dir", cfg.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 1. Open the database and apply migrations
	dbClient, err := database.NewClient(ctx, database.Config{
		Path:         cfg.DatabasePath(),
		MigrationSet: database.MigrationSetRuntime,
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
	goals := services.NewGoalService(dbClient)
	tasks := services.NewTaskService(dbClient)
	relay := services.NewRelayService(dbClient)
	breakers := services.NewBreakerService(dbClient)
	runtimeStatus := services.NewRuntimeStatusService(dbClient)

	// 3. Optional ops server
	if cfg.HTTPAddr != "" {
		ops := api.NewServer(dbClient, func(ctx context.Context) (any, error) {
			return runtimeStatus.Status(ctx)
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

	// 4. Serve MCP over stdio until the client disconnects or a signal arrives
	server := tools.NewRuntimeServer(tools.RuntimeDeps{
		Goals:    goals,
		Tasks:    tasks,
		Relay:    relay,
		Breakers: breakers,
	})
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		slog.Error("MCP server error", "error", err)
	}

	slog.Info("Shutdown complete")
}
