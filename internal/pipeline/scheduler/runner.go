// Package scheduler drives the pipeline stages on fixed intervals. Each
// stage entry point runs in its own goroutine with an explicit ticker; a
// panicking tick is recovered and counted so one bad pass never takes the
// process down.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ledgerkit/txledger/internal/metrics"
)

// Stage is one schedulable pipeline entry point. A zero Timeout leaves the
// tick bounded only by the parent context.
type Stage struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Runner owns the stage tickers.
type Runner struct {
	stages []Stage
	logger *slog.Logger
}

func NewRunner(logger *slog.Logger, stages ...Stage) *Runner {
	return &Runner{
		stages: stages,
		logger: logger.With("component", "scheduler"),
	}
}

// Start launches one loop per stage on the supplied errgroup. Loops exit
// when ctx is cancelled; stage errors are logged and counted, never fatal.
func (r *Runner) Start(ctx context.Context, g *errgroup.Group) {
	for _, stage := range r.stages {
		stage := stage
		g.Go(func() error {
			r.loop(ctx, stage)
			return nil
		})
	}
}

func (r *Runner) loop(ctx context.Context, stage Stage) {
	ticker := time.NewTicker(stage.Interval)
	defer ticker.Stop()

	r.logger.Info("stage scheduled", "stage", stage.Name, "interval", stage.Interval)

	// First pass runs immediately; catch-up work should not wait a full
	// interval after startup.
	r.tick(ctx, stage)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stage stopped", "stage", stage.Name)
			return
		case <-ticker.C:
			r.tick(ctx, stage)
		}
	}
}

func (r *Runner) tick(ctx context.Context, stage Stage) {
	if stage.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stage.Timeout)
		defer cancel()
	}

	start := time.Now()
	metrics.SchedulerTicksTotal.WithLabelValues(stage.Name).Inc()

	err := r.runProtected(ctx, stage)

	metrics.SchedulerTickLatency.WithLabelValues(stage.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SchedulerTickErrors.WithLabelValues(stage.Name).Inc()
		r.logger.Error("stage tick failed", "stage", stage.Name, "error", err)
	}
}

func (r *Runner) runProtected(ctx context.Context, stage Stage) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()
	return stage.Run(ctx)
}
