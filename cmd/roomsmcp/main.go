// Command roomsmcp serves the room marketplace to MCP-compatible agents
// over stdio.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"

	rooms "github.com/BntM/market-for-rooms"
	"github.com/BntM/market-for-rooms/internal/config"
	"github.com/BntM/market-for-rooms/internal/mcp"
	"github.com/BntM/market-for-rooms/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("ROOMS_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	// Stdout carries the MCP protocol; logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("roomsmcp starting", "version", version, "market_url", cfg.MarketURL)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	client, err := rooms.NewClient(rooms.Config{
		BaseURL: cfg.MarketURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	slog.Info("marketplace client ready", "session_id", client.SessionID())

	srv := mcp.New(client, logger,
		rooms.WithPollInterval(cfg.PollInterval),
		rooms.WithPollDeadline(cfg.PollDeadline),
	)

	stdio := mcpserver.NewStdioServer(srv.MCPServer())
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp serve: %w", err)
	}

	slog.Info("roomsmcp shutting down")
	return nil
}
