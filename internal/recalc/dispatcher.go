// Package recalc consumes recalculation signals and hands them to the
// cost-basis engine through a fixed worker pool.
package recalc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ledgerkit/txledger/internal/alert"
	"github.com/ledgerkit/txledger/internal/domain/model"
	"github.com/ledgerkit/txledger/internal/metrics"
	"github.com/ledgerkit/txledger/internal/store/redis"
)

// Recalculator recomputes average cost for one wallet. Implementations must
// be idempotent: signals are delivered at least once.
type Recalculator interface {
	Recalculate(ctx context.Context, sig model.RecalcSignal) error
}

// SignalStream is the consumer-group surface of the recalc stream.
type SignalStream interface {
	EnsureGroup(ctx context.Context, group string) error
	Read(ctx context.Context, group, consumer string, count int64) ([]redis.Message, error)
	ReclaimPending(ctx context.Context, group, consumer string, minIdle time.Duration, count int64) ([]redis.Message, error)
	Ack(ctx context.Context, group, id string) error
}

// Config sizes the dispatcher.
type Config struct {
	Workers         int
	ConsumerGroup   string
	ConsumerName    string
	ReadCount       int64
	ReclaimInterval time.Duration
	ReclaimMinIdle  time.Duration
}

// Dispatcher reads the recalc stream and fans signals out to workers. At
// most one recalculation runs per wallet at a time; a signal for a wallet
// already in flight stays unacked and is redelivered.
type Dispatcher struct {
	stream  SignalStream
	engine  Recalculator
	alerter alert.Alerter
	cfg     Config
	logger  *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewDispatcher(stream SignalStream, engine Recalculator, alerter alert.Alerter, cfg Config, logger *slog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = 16
	}
	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = 30 * time.Second
	}
	if cfg.ReclaimMinIdle <= 0 {
		cfg.ReclaimMinIdle = time.Minute
	}
	return &Dispatcher{
		stream:   stream,
		engine:   engine,
		alerter:  alerter,
		cfg:      cfg,
		logger:   logger.With("component", "recalc_dispatcher"),
		inFlight: make(map[string]struct{}),
	}
}

// Run consumes the stream until ctx is cancelled. Signals are acknowledged
// only after the engine succeeds; a failed or interrupted signal stays in
// the pending entries list and is reclaimed on a later sweep, since reads
// on ">" never revisit it.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.stream.EnsureGroup(ctx, d.cfg.ConsumerGroup); err != nil {
		return err
	}

	jobs := make(chan redis.Message)
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case msg := <-jobs:
					d.handle(ctx, msg)
				}
			}
		})
	}

	g.Go(func() error {
		for {
			if ctx.Err() != nil {
				return nil
			}
			msgs, err := d.stream.Read(ctx, d.cfg.ConsumerGroup, d.cfg.ConsumerName, d.cfg.ReadCount)
			if err != nil {
				if errors.Is(err, context.Canceled) || ctx.Err() != nil {
					return nil
				}
				d.logger.Error("stream read failed", "error", err)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(time.Second):
				}
				continue
			}
			if !d.enqueue(ctx, jobs, msgs) {
				return nil
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(d.cfg.ReclaimInterval)
		defer ticker.Stop()
		for {
			// Sweep immediately on startup so signals orphaned by a crashed
			// consumer are picked up without waiting a full interval.
			msgs, err := d.stream.ReclaimPending(ctx, d.cfg.ConsumerGroup, d.cfg.ConsumerName, d.cfg.ReclaimMinIdle, d.cfg.ReadCount)
			if err != nil {
				if ctx.Err() == nil {
					d.logger.Error("pending reclaim failed", "error", err)
				}
			} else if !d.enqueue(ctx, jobs, msgs) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	return g.Wait()
}

func (d *Dispatcher) enqueue(ctx context.Context, jobs chan<- redis.Message, msgs []redis.Message) bool {
	for _, msg := range msgs {
		select {
		case jobs <- msg:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (d *Dispatcher) begin(wallet string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inFlight[wallet]; busy {
		return false
	}
	d.inFlight[wallet] = struct{}{}
	return true
}

func (d *Dispatcher) finish(wallet string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, wallet)
}

func (d *Dispatcher) handle(ctx context.Context, msg redis.Message) {
	if !d.begin(msg.Signal.WalletAddress) {
		metrics.RecalcJobsTotal.WithLabelValues("deferred").Inc()
		return
	}
	defer d.finish(msg.Signal.WalletAddress)

	start := time.Now()
	err := d.engine.Recalculate(ctx, msg.Signal)
	metrics.RecalcJobLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RecalcJobsTotal.WithLabelValues("failed").Inc()
		d.logger.Error("recalculation failed",
			"wallet", msg.Signal.WalletAddress,
			"error", err,
		)
		d.notifyFailure(ctx, msg.Signal, err)
		return
	}

	metrics.RecalcJobsTotal.WithLabelValues("completed").Inc()
	if err := d.stream.Ack(ctx, d.cfg.ConsumerGroup, msg.ID); err != nil {
		// Redelivery after a missed ack re-runs an idempotent job.
		d.logger.Warn("ack failed", "id", msg.ID, "error", err)
	}
}

func (d *Dispatcher) notifyFailure(ctx context.Context, sig model.RecalcSignal, cause error) {
	if d.alerter == nil {
		return
	}
	err := d.alerter.Send(ctx, alert.Alert{
		Type:    alert.AlertTypeRecalcFailed,
		Network: string(sig.NetworkID),
		Wallet:  sig.WalletAddress,
		Title:   "recalculation failed",
		Message: cause.Error(),
	})
	if err != nil {
		d.logger.Warn("recalc failure alert failed", "wallet", sig.WalletAddress, "error", err)
	}
}
