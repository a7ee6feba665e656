package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/config"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/engine"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/logging"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/web"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/worker"
)

const serviceName = "worksync"

var (
	loadDotEnv         = godotenv.Load
	newEngine          = engine.New
	defaultListenServe = http.ListenAndServe
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, defaultListenServe); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(ctx context.Context, serve func(string, http.Handler) error) error {
	// Load .env file (ignore error if file doesn't exist)
	_ = loadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.Setup(nil, cfg.LogLevel, cfg.LogFormat, serviceName)
	logger.Info().
		Int("port", cfg.Port).
		Str("tracking_repo", cfg.GitHubOwner+"/"+cfg.GitHubRepo).
		Str("db", cfg.DBPath).
		Dur("min_delay", cfg.MinDelay).
		Dur("reconcile_interval", cfg.ReconcileInterval).
		Msg("starting sync server")

	eng, err := newEngine(cfg, engine.Options{Logger: &logger})
	if err != nil {
		return fmt.Errorf("failed to initialize sync engine: %w", err)
	}
	defer eng.Close()

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	go worker.NewReconcileCoordinator(eng, cfg.ReconcileInterval, logger).Run(workerCtx)

	r := mux.NewRouter()
	web.NewHandler(eng, serviceName, logger).RegisterRoutes(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info().Str("addr", addr).Msg("server listening")

	if err := serve(addr, r); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}
