package ingest

import (
	"context"
	"log/slog"
	"time"
)

// RunnerConfig holds configuration for the background drain loop.
type RunnerConfig struct {
	Pipeline *Pipeline

	// Interval between drains (default: 60s)
	Interval time.Duration

	// BatchSize is the number of responses per batch (default: 100)
	BatchSize int

	Logger *slog.Logger
}

// Runner periodically drains a pipeline's backlog.
type Runner struct {
	pipeline  *Pipeline
	interval  time.Duration
	batchSize int
	log       *slog.Logger
}

// NewRunner creates a new drain runner.
func NewRunner(cfg RunnerConfig) *Runner {
	interval := cfg.Interval
	if interval == 0 {
		interval = 60 * time.Second
	}
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = DefaultChunkSize
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		pipeline:  cfg.Pipeline,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}
}

// Start drains immediately and then on every tick until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	r.DrainOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.DrainOnce(ctx)
		}
	}
}

// DrainOnce processes the whole backlog once.
func (r *Runner) DrainOnce(ctx context.Context) (Stats, error) {
	stats, err := r.pipeline.ProcessResponsesAll(ctx, r.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			r.log.Warn("ingest drain failed", "client", r.pipeline.client, "error", err)
		}
		return stats, err
	}
	if stats.ProcessedResponses > 0 {
		r.log.Info("ingest drain complete",
			"client", r.pipeline.client,
			"responses", stats.ProcessedResponses,
			"batches", stats.BatchesProcessed,
			"inserted", stats.Inserted,
			"updated", stats.Updated,
			"skipped", stats.Skipped,
			"errors", stats.Errors,
		)
	}
	return stats, nil
}
