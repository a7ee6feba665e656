package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/config"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/engine"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/logging"
)

const serverVersion = "v1.0.0"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.Setup(nil, "info", "json", "worksync-mcp")
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}
	// Stdout carries the protocol; logs go to stderr.
	logger := logging.Setup(nil, cfg.LogLevel, cfg.LogFormat, "worksync-mcp")
	logger.Info().
		Str("version", serverVersion).
		Str("tracking_repo", cfg.GitHubOwner+"/"+cfg.GitHubRepo).
		Msg("starting sync MCP server")

	eng, err := engine.New(cfg, engine.Options{Logger: &logger})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize sync engine")
	}
	defer eng.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "worksync-server",
		Version: serverVersion,
	}, nil)
	registerTools(server, newTools(eng, logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().Msg("serving on stdio transport")
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("server error")
		return
	}
	logger.Info().Msg("server stopped gracefully")
}
