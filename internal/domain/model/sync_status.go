package model

import (
	"time"

	"github.com/google/uuid"
)

// SyncStatus tracks ingestion progress for one wallet/network pair. Created
// when a wallet is registered for a network; never deleted by the pipeline.
type SyncStatus struct {
	ID               uuid.UUID `db:"id"`
	WalletAddress    string    `db:"wallet_address"`
	NetworkID        Network   `db:"network_id"`
	Status           SyncState `db:"status"`
	ProgressPct      int       `db:"progress_pct"`
	LastBlockSynced  *int64    `db:"last_block_synced"`
	RawFetchComplete bool      `db:"raw_fetch_complete"`
	// Deprecated: classification completion is derived from raw transaction
	// statuses; the column is retained for schema compatibility.
	ClassificationComplete bool       `db:"classification_complete"`
	BackfillComplete       bool       `db:"backfill_complete"`
	RetryCount             int        `db:"retry_count"`
	NextRetryAfter         *time.Time `db:"next_retry_after"`
	SyncBannerMessage      *string    `db:"sync_banner_message"`
	CreatedAt              time.Time  `db:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at"`
}
