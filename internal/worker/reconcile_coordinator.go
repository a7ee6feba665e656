package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/HerrSensei/ai-lab-filled-sub001/internal/concurrency"
	"github.com/HerrSensei/ai-lab-filled-sub001/internal/runstore"
)

// TriggerSchedule marks runs started by the coordinator.
const TriggerSchedule = "schedule"

// FullSyncer runs one reconciliation pass. Implemented by engine.Engine.
type FullSyncer interface {
	FullSync(ctx context.Context, trigger string) (*runstore.Run, error)
}

// ReconcileCoordinator runs a full sync on a fixed interval.
type ReconcileCoordinator struct {
	syncer   FullSyncer
	interval time.Duration
	log      zerolog.Logger
}

// NewReconcileCoordinator creates a coordinator. An interval <= 0 makes Run
// return immediately.
func NewReconcileCoordinator(syncer FullSyncer, interval time.Duration, logger zerolog.Logger) *ReconcileCoordinator {
	return &ReconcileCoordinator{
		syncer:   syncer,
		interval: interval,
		log:      logger.With().Str("component", "worker").Str("worker", "reconcile-coordinator").Logger(),
	}
}

// Run starts the coordinator loop. Blocks until ctx is cancelled.
//
// The first pass happens after one interval, not at startup.
func (c *ReconcileCoordinator) Run(ctx context.Context) {
	if c.interval <= 0 {
		c.log.Info().Msg("reconcile coordinator disabled")
		return
	}
	c.log.Info().Dur("interval", c.interval).Msg("reconcile coordinator started")

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Str("reason", "context_cancelled").Msg("reconcile coordinator stopped")
			return
		case <-ticker.C:
			c.runOnce(ctx)
		}
	}
}

func (c *ReconcileCoordinator) runOnce(ctx context.Context) {
	run, err := c.syncer.FullSync(ctx, TriggerSchedule)
	if errors.Is(err, concurrency.ErrBusy) {
		c.log.Debug().Msg("full sync already running; skipping tick")
		return
	}
	if err != nil {
		c.log.Error().Err(err).Msg("scheduled full sync failed")
		return
	}
	if run == nil || run.Result == nil {
		return
	}
	event := c.log.Info()
	if run.Result.Failed() {
		event = c.log.Warn().Strs("failed", run.Result.FailedKeys())
	}
	event.
		Str("run_id", run.ID).
		Int("created", run.Result.Created).
		Int("updated", run.Result.Updated).
		Int("unchanged", run.Result.Unchanged).
		Int("errors", run.Result.Errors).
		Dur("duration", run.Duration()).
		Msg("scheduled full sync finished")
}
