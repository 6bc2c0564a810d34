// Package progress tracks per wallet/network ingestion state and schedules
// retries with jittered exponential backoff.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/ledgerkit/txledger/internal/domain/model"
	"github.com/ledgerkit/txledger/internal/metrics"
	"github.com/ledgerkit/txledger/internal/store"
)

// Config bounds the retry backoff, in minutes.
type Config struct {
	RetryBaseMinutes int
	RetryMaxMinutes  int
}

// Tracker mutates the sync_status row for a wallet/network pair. Only the
// sync/backfill pipeline calls it; rows are never deleted here.
type Tracker struct {
	repo   store.SyncStatusRepository
	clock  store.Clock
	cfg    Config
	logger *slog.Logger
	randFn func() float64
}

func NewTracker(repo store.SyncStatusRepository, clock store.Clock, cfg Config, logger *slog.Logger) *Tracker {
	if cfg.RetryBaseMinutes <= 0 {
		cfg.RetryBaseMinutes = 10
	}
	if cfg.RetryMaxMinutes <= 0 {
		cfg.RetryMaxMinutes = 240
	}
	return &Tracker{
		repo:   repo,
		clock:  clock,
		cfg:    cfg,
		logger: logger.With("component", "progress"),
		randFn: rand.Float64,
	}
}

func (t *Tracker) load(ctx context.Context, wallet string, network model.Network) (*model.SyncStatus, error) {
	if err := t.repo.EnsureExists(ctx, wallet, network); err != nil {
		return nil, err
	}
	s, err := t.repo.Get(ctx, wallet, network)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("sync status missing for %s/%s", wallet, network)
	}
	return s, nil
}

// SetRunning marks the pair RUNNING with the given progress and banner.
// Idempotent: safe to call while already RUNNING.
func (t *Tracker) SetRunning(ctx context.Context, wallet string, network model.Network, progressPct int, banner string) error {
	s, err := t.load(ctx, wallet, network)
	if err != nil {
		return err
	}
	s.Status = model.SyncRunning
	s.ProgressPct = progressPct
	if banner != "" {
		s.SyncBannerMessage = &banner
	}
	metrics.SyncProgressPct.WithLabelValues(string(network), wallet).Set(float64(progressPct))
	return t.repo.Save(ctx, s)
}

// SetRawFetchComplete records phase-1 completion without changing the
// overall status.
func (t *Tracker) SetRawFetchComplete(ctx context.Context, wallet string, network model.Network, lastBlock *int64) error {
	s, err := t.load(ctx, wallet, network)
	if err != nil {
		return err
	}
	s.RawFetchComplete = true
	if lastBlock != nil {
		s.LastBlockSynced = lastBlock
	}
	return t.repo.Save(ctx, s)
}

// SetComplete marks the pair COMPLETE: progress 100, banner cleared,
// backfill completion mirrors raw-fetch completion, retry state reset.
func (t *Tracker) SetComplete(ctx context.Context, wallet string, network model.Network) error {
	s, err := t.load(ctx, wallet, network)
	if err != nil {
		return err
	}
	s.Status = model.SyncComplete
	s.ProgressPct = 100
	s.SyncBannerMessage = nil
	s.BackfillComplete = s.RawFetchComplete
	s.RetryCount = 0
	s.NextRetryAfter = nil
	metrics.SyncProgressPct.WithLabelValues(string(network), wallet).Set(100)
	t.logger.Info("sync complete", "wallet", wallet, "network", network)
	return t.repo.Save(ctx, s)
}

// SetFailed marks the pair FAILED, increments the retry count, and computes
// the next retry time with capped exponential backoff plus up to 25% jitter.
func (t *Tracker) SetFailed(ctx context.Context, wallet string, network model.Network, banner string) error {
	s, err := t.load(ctx, wallet, network)
	if err != nil {
		return err
	}
	s.Status = model.SyncFailed
	s.RetryCount++
	if banner != "" {
		s.SyncBannerMessage = &banner
	}
	next := t.clock.Now().Add(t.backoff(s.RetryCount))
	s.NextRetryAfter = &next

	metrics.SyncRetriesTotal.WithLabelValues(string(network)).Inc()
	t.logger.Warn("sync failed",
		"wallet", wallet,
		"network", network,
		"retry_count", s.RetryCount,
		"next_retry_after", next,
	)
	return t.repo.Save(ctx, s)
}

// backoff computes min(base × 2^(retryCount−1), max) minutes plus up to 25%
// jitter.
func (t *Tracker) backoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}
	minutes := float64(t.cfg.RetryBaseMinutes)
	for i := 1; i < retryCount; i++ {
		minutes *= 2
		if minutes >= float64(t.cfg.RetryMaxMinutes) {
			minutes = float64(t.cfg.RetryMaxMinutes)
			break
		}
	}
	if minutes > float64(t.cfg.RetryMaxMinutes) {
		minutes = float64(t.cfg.RetryMaxMinutes)
	}
	jitter := 1 + t.randFn()*0.25
	return time.Duration(minutes * jitter * float64(time.Minute))
}

// Due reports whether a FAILED pair is eligible for another attempt.
func (t *Tracker) Due(ctx context.Context, wallet string, network model.Network) (bool, error) {
	s, err := t.repo.Get(ctx, wallet, network)
	if err != nil {
		return false, err
	}
	if s == nil || s.Status != model.SyncFailed {
		return false, nil
	}
	if s.NextRetryAfter == nil {
		return true, nil
	}
	return !t.clock.Now().Before(*s.NextRetryAfter), nil
}
