package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/config"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/engine"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/logging"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/output"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{out: os.Stdout, newEngine: loadEngine}
	cmd := newRootCmd(a)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errFailures) {
			output.Error(os.Stderr, "%v", err)
		}
		stop()
		os.Exit(1)
	}
}

// loadEngine builds an engine from the environment. Logs go to stderr in
// console format unless LOG_FORMAT says otherwise.
func loadEngine() (*engine.Engine, error) {
	_ = godotenv.Load()
	if os.Getenv("LOG_FORMAT") == "" {
		os.Setenv("LOG_FORMAT", "console")
	}
	if os.Getenv("LOG_LEVEL") == "" {
		os.Setenv("LOG_LEVEL", "warn")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat, "worksync-cli")
	return engine.New(cfg, engine.Options{Logger: &logger})
}
