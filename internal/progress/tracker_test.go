package progress

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/txledger/internal/domain/model"
	"github.com/ledgerkit/txledger/internal/store/memory"
)

const testWallet = "0xwallet"

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func newTestTracker(at time.Time) (*Tracker, *memory.SyncStatusStore) {
	repo := memory.NewSyncStatusStore()
	tr := NewTracker(repo, fixedClock{at: at}, Config{RetryBaseMinutes: 10, RetryMaxMinutes: 240}, slog.Default())
	tr.randFn = func() float64 { return 0 }
	return tr, repo
}

func TestTracker_SetRunning(t *testing.T) {
	tr, repo := newTestTracker(time.Now())

	require.NoError(t, tr.SetRunning(context.Background(), testWallet, model.NetworkEthereum, 40, "syncing history"))

	s, err := repo.Get(context.Background(), testWallet, model.NetworkEthereum)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, model.SyncRunning, s.Status)
	assert.Equal(t, 40, s.ProgressPct)
	require.NotNil(t, s.SyncBannerMessage)
	assert.Equal(t, "syncing history", *s.SyncBannerMessage)
}

func TestTracker_SetFailedBackoff(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	tr, repo := newTestTracker(now)

	require.NoError(t, tr.SetFailed(context.Background(), testWallet, model.NetworkEthereum, "rpc down"))

	s, err := repo.Get(context.Background(), testWallet, model.NetworkEthereum)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, model.SyncFailed, s.Status)
	assert.Equal(t, 1, s.RetryCount)
	require.NotNil(t, s.NextRetryAfter)
	assert.Equal(t, now.Add(10*time.Minute), *s.NextRetryAfter)

	require.NoError(t, tr.SetFailed(context.Background(), testWallet, model.NetworkEthereum, ""))
	s, err = repo.Get(context.Background(), testWallet, model.NetworkEthereum)
	require.NoError(t, err)
	assert.Equal(t, 2, s.RetryCount)
	assert.Equal(t, now.Add(20*time.Minute), *s.NextRetryAfter)
}

func TestTracker_BackoffCap(t *testing.T) {
	tr, _ := newTestTracker(time.Now())

	assert.Equal(t, 10*time.Minute, tr.backoff(1))
	assert.Equal(t, 80*time.Minute, tr.backoff(4))
	assert.Equal(t, 240*time.Minute, tr.backoff(6))
	assert.Equal(t, 240*time.Minute, tr.backoff(50))
}

func TestTracker_BackoffJitter(t *testing.T) {
	tr, _ := newTestTracker(time.Now())
	tr.randFn = func() float64 { return 1 }

	assert.Equal(t, time.Duration(12.5*float64(time.Minute)), tr.backoff(1))
}

func TestTracker_SetCompleteResetsRetryState(t *testing.T) {
	tr, repo := newTestTracker(time.Now())

	require.NoError(t, tr.SetFailed(context.Background(), testWallet, model.NetworkEthereum, "rpc down"))
	require.NoError(t, tr.SetRawFetchComplete(context.Background(), testWallet, model.NetworkEthereum, nil))
	require.NoError(t, tr.SetComplete(context.Background(), testWallet, model.NetworkEthereum))

	s, err := repo.Get(context.Background(), testWallet, model.NetworkEthereum)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, model.SyncComplete, s.Status)
	assert.Equal(t, 100, s.ProgressPct)
	assert.Nil(t, s.SyncBannerMessage)
	assert.True(t, s.BackfillComplete)
	assert.Equal(t, 0, s.RetryCount)
	assert.Nil(t, s.NextRetryAfter)
}

func TestTracker_SetRawFetchComplete(t *testing.T) {
	tr, repo := newTestTracker(time.Now())

	block := int64(19_500_000)
	require.NoError(t, tr.SetRawFetchComplete(context.Background(), testWallet, model.NetworkEthereum, &block))

	s, err := repo.Get(context.Background(), testWallet, model.NetworkEthereum)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.True(t, s.RawFetchComplete)
	require.NotNil(t, s.LastBlockSynced)
	assert.Equal(t, block, *s.LastBlockSynced)
}

func TestTracker_Due(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	repo := memory.NewSyncStatusStore()
	clock := &movableClock{at: now}
	tr := NewTracker(repo, clock, Config{RetryBaseMinutes: 10, RetryMaxMinutes: 240}, slog.Default())
	tr.randFn = func() float64 { return 0 }

	due, err := tr.Due(context.Background(), testWallet, model.NetworkEthereum)
	require.NoError(t, err)
	assert.False(t, due, "unknown pair is never due")

	require.NoError(t, tr.SetFailed(context.Background(), testWallet, model.NetworkEthereum, ""))

	due, err = tr.Due(context.Background(), testWallet, model.NetworkEthereum)
	require.NoError(t, err)
	assert.False(t, due, "backoff window still open")

	clock.at = now.Add(11 * time.Minute)
	due, err = tr.Due(context.Background(), testWallet, model.NetworkEthereum)
	require.NoError(t, err)
	assert.True(t, due)

	require.NoError(t, tr.SetComplete(context.Background(), testWallet, model.NetworkEthereum))
	due, err = tr.Due(context.Background(), testWallet, model.NetworkEthereum)
	require.NoError(t, err)
	assert.False(t, due, "completed pairs are not retried")
}

type movableClock struct{ at time.Time }

func (c *movableClock) Now() time.Time { return c.at }
