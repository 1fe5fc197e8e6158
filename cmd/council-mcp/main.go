// Deliberation council MCP server. Serves the multi-provider deliberation
// tools over stdio, with an optional diagnostics HTTP surface.
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
	"github.com/agentfleet/substrate/pkg/council"
	"github.com/agentfleet/substrate/pkg/tools"
	"github.com/agentfleet/substrate/pkg/version"
)

func main() {
	// stdout belongs to the MCP stdio transport, so all logging goes to stderr
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.LogLevel(),
	})))

	cfg := config.LoadCouncil()
	slog.Info("Starting deliberation council",
		"version", version.GitCommit,
		"models", cfg.Models,
		"chairman", cfg.Chairman)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// 1. Wire the provider layer and conversation store
	querier := council.NewCLIClient(cfg)
	conversations := council.NewConversationStore(cfg.ConversationsDir())
	deliberator := council.NewCouncil(querier, cfg)

	available := querier.AvailableProviders()
	if len(available) == 0 {
		slog.Warn("No provider CLIs found on PATH", "configured", cfg.Models)
	} else {
		slog.Info("Providers available", "providers", available)
	}

	// 2. Optional ops server
	if cfg.HTTPAddr != "" {
		ops := api.NewServer(nil, func(ctx context.Context) (any, error) {
			return map[string]any{
				"available_providers": querier.AvailableProviders(),
				"config":              cfg.Snapshot(),
			}, nil
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

	// 3. Serve MCP over stdio until the client disconnects or a signal arrives
	server := tools.NewCouncilServer(tools.CouncilDeps{
		Council:       deliberator,
		Conversations: conversations,
		Config:        cfg,
	})
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		slog.Error("MCP server error", "error", err)
	}

	slog.Info("Shutdown complete")
}
