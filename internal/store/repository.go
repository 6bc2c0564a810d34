package store

import (
	"context"
	"time"

	"github.com/ledgerkit/txledger/internal/domain/model"
)

// UpsertOutcome describes what an idempotent upsert did.
type UpsertOutcome struct {
	Inserted bool // first insertion of this identity
	Merged   bool // existing record updated (false when the immutable set blocked the merge)
}

// RawTransactionRepository provides access to fetched raw transactions.
type RawTransactionRepository interface {
	Upsert(ctx context.Context, t *model.RawTransaction) error
	ListPending(ctx context.Context, wallet string, network model.Network, limit int) ([]*model.RawTransaction, error)
	SetClassificationStatus(ctx context.Context, txHash string, network model.Network, wallet string, status model.ClassificationStatus) error
}

// EconomicEventRepository is the idempotent event store. Upsert locates an
// existing record by natural identity (tx hash/network/wallet/asset, or
// client id for manual events), inserting when absent and merging mutable
// fields when present.
type EconomicEventRepository interface {
	Upsert(ctx context.Context, e *model.EconomicEvent) (UpsertOutcome, error)
	ListByTxHash(ctx context.Context, txHash string, network model.Network, wallet string) ([]*model.EconomicEvent, error)
}

// NormalizedTransactionRepository is the idempotent normalized-transaction
// store. Upsert merges by natural identity with the rank-monotonic status
// rule; records already in an immutable status are not rewritten.
type NormalizedTransactionRepository interface {
	Upsert(ctx context.Context, t *model.NormalizedTransaction) (UpsertOutcome, error)
	ListByStatus(ctx context.Context, status model.TxStatus, limit int) ([]*model.NormalizedTransaction, error)
	Update(ctx context.Context, t *model.NormalizedTransaction) error
}

// SyncStatusRepository provides access to per wallet/network sync state.
type SyncStatusRepository interface {
	Get(ctx context.Context, wallet string, network model.Network) (*model.SyncStatus, error)
	List(ctx context.Context) ([]*model.SyncStatus, error)
	EnsureExists(ctx context.Context, wallet string, network model.Network) error
	Save(ctx context.Context, s *model.SyncStatus) error
}

// RecalcPublisher emits at-least-once recalculation signals for the external
// cost-basis engine.
type RecalcPublisher interface {
	Publish(ctx context.Context, sig model.RecalcSignal) error
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock implementation.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
