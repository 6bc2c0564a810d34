package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ledgerkit/txledger/internal/domain/model"
)

type SyncStatusRepo struct {
	db *DB
}

func NewSyncStatusRepo(db *DB) *SyncStatusRepo {
	return &SyncStatusRepo{db: db}
}

func (r *SyncStatusRepo) Get(ctx context.Context, wallet string, network model.Network) (*model.SyncStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var s model.SyncStatus
	err := r.db.QueryRowContext(ctx, `
		SELECT id, wallet_address, network_id, status, progress_pct, last_block_synced,
		       raw_fetch_complete, classification_complete, backfill_complete,
		       retry_count, next_retry_after, sync_banner_message, created_at, updated_at
		FROM sync_status
		WHERE wallet_address = $1 AND network_id = $2
	`, wallet, network).Scan(&s.ID, &s.WalletAddress, &s.NetworkID, &s.Status, &s.ProgressPct,
		&s.LastBlockSynced, &s.RawFetchComplete, &s.ClassificationComplete, &s.BackfillComplete,
		&s.RetryCount, &s.NextRetryAfter, &s.SyncBannerMessage, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync status: %w", err)
	}
	return &s, nil
}

func (r *SyncStatusRepo) List(ctx context.Context) ([]*model.SyncStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, wallet_address, network_id, status, progress_pct, last_block_synced,
		       raw_fetch_complete, classification_complete, backfill_complete,
		       retry_count, next_retry_after, sync_banner_message, created_at, updated_at
		FROM sync_status
		ORDER BY wallet_address, network_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list sync status: %w", err)
	}
	defer rows.Close()

	var out []*model.SyncStatus
	for rows.Next() {
		var s model.SyncStatus
		if err := rows.Scan(&s.ID, &s.WalletAddress, &s.NetworkID, &s.Status, &s.ProgressPct,
			&s.LastBlockSynced, &s.RawFetchComplete, &s.ClassificationComplete, &s.BackfillComplete,
			&s.RetryCount, &s.NextRetryAfter, &s.SyncBannerMessage, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan sync status: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *SyncStatusRepo) EnsureExists(ctx context.Context, wallet string, network model.Network) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_status (wallet_address, network_id, status, progress_pct)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (wallet_address, network_id) DO NOTHING
	`, wallet, network, model.SyncPending)
	if err != nil {
		return fmt.Errorf("ensure sync status: %w", err)
	}
	return nil
}

func (r *SyncStatusRepo) Save(ctx context.Context, s *model.SyncStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_status SET
			status = $3,
			progress_pct = $4,
			last_block_synced = $5,
			raw_fetch_complete = $6,
			classification_complete = $7,
			backfill_complete = $8,
			retry_count = $9,
			next_retry_after = $10,
			sync_banner_message = $11,
			updated_at = now()
		WHERE wallet_address = $1 AND network_id = $2
	`, s.WalletAddress, s.NetworkID, s.Status, s.ProgressPct, s.LastBlockSynced,
		s.RawFetchComplete, s.ClassificationComplete, s.BackfillComplete,
		s.RetryCount, s.NextRetryAfter, s.SyncBannerMessage)
	if err != nil {
		return fmt.Errorf("save sync status: %w", err)
	}
	return nil
}
