// Package janitor cleans up after crashed or long-finished invocations:
// stale workspace directories on disk and expired run log rows.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eduba/publishgw/internal/events"
)

type Config struct {
	// SweepInterval is the tick period; 0 runs one pass at Start only.
	SweepInterval time.Duration
	// StaleAfter is the minimum age of a workspace before it is swept.
	StaleAfter time.Duration
	// Retention is how long run log rows are kept; 0 keeps them forever.
	Retention time.Duration
}

// Janitor runs periodic maintenance.
type Janitor struct {
	cfg      Config
	sweeper  WorkspaceSweeper
	runs     RunLogService
	events   events.Publisher
	logger   *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Janitor. runs and hub may be nil.
func New(cfg Config, sweeper WorkspaceSweeper, runs RunLogService, hub events.Publisher, logger *slog.Logger) *Janitor {
	return &Janitor{
		cfg:     cfg,
		sweeper: sweeper,
		runs:    runs,
		events:  hub,
		logger:  logger.With("component", "janitor"),
		stopCh:  make(chan struct{}),
	}
}

// Start performs crash recovery and begins the sweep loop.
func (j *Janitor) Start(ctx context.Context) error {
	j.logger.Info("Starting janitor", "sweep_interval", j.cfg.SweepInterval, "stale_after", j.cfg.StaleAfter)

	if err := j.recoverAbandoned(ctx); err != nil {
		return fmt.Errorf("janitor crash recovery failed: %w", err)
	}

	if j.cfg.SweepInterval <= 0 {
		j.logger.Info("Sweep loop disabled, running a single startup pass")
		j.tick(ctx)
		return nil
	}
	j.wg.Add(1)
	go j.tickLoop(ctx)
	return nil
}

// Stop halts the loop and waits for an in-progress tick.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() {
		j.logger.Info("Stopping janitor")
		close(j.stopCh)
	})
	j.wg.Wait()
}

func (j *Janitor) tickLoop(ctx context.Context) {
	defer j.wg.Done()

	// Initial tick immediately
	j.tick(ctx)

	ticker := time.NewTicker(j.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.tick(ctx)
		case <-j.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick performs a single maintenance pass. Failures are logged and retried
// on the next tick.
func (j *Janitor) tick(ctx context.Context) {
	j.logger.Debug("Janitor tick")

	summary := sweptEvent{}
	if j.sweeper != nil && j.cfg.StaleAfter > 0 {
		report, err := j.sweeper.Sweep(ctx, j.cfg.StaleAfter)
		if err != nil {
			j.logger.Error("Workspace sweep failed", "error", err)
		}
		summary.Workspaces = report.DeletedDirs
		if report.DeletedDirs > 0 {
			j.logger.Warn("Removed stale workspaces", "count", report.DeletedDirs)
		}
	}

	if j.runs != nil && j.cfg.Retention > 0 {
		n, err := j.runs.Prune(ctx, j.cfg.Retention)
		if err != nil {
			j.logger.Error("Run log prune failed", "error", err)
		}
		summary.PrunedRuns = n
		if n > 0 {
			j.logger.Info("Pruned run log", "rows", n, "retention", j.cfg.Retention)
		}
	}

	if j.events != nil && (summary.Workspaces > 0 || summary.PrunedRuns > 0) {
		j.events.Publish(events.TypeJanitorSwept, summary)
	}
}

// recoverAbandoned closes out run log rows left running by a previous process.
func (j *Janitor) recoverAbandoned(ctx context.Context) error {
	if j.runs == nil {
		return nil
	}
	n, err := j.runs.MarkAbandoned(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark abandoned invocations: %w", err)
	}
	if n > 0 {
		j.logger.Warn("Marked abandoned invocations from a previous run", "count", n)
	}
	return nil
}

type sweptEvent struct {
	Workspaces int   `json:"workspaces"`
	PrunedRuns int64 `json:"pruned_runs"`
}
