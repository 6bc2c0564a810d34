package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ledgerkit/txledger/internal/domain/model"
	"github.com/ledgerkit/txledger/internal/store"
)

type NormalizedTransactionRepo struct {
	db    *DB
	clock store.Clock
}

func NewNormalizedTransactionRepo(db *DB, clock store.Clock) *NormalizedTransactionRepo {
	return &NormalizedTransactionRepo{db: db, clock: clock}
}

// Upsert merges an incoming normalized transaction into the store by natural
// identity. Records whose status is in the immutable set only get their
// updated_at touched; otherwise mutable fields are overwritten and the status
// is the rank-max of existing and incoming. Status rank never regresses.
func (r *NormalizedTransactionRepo) Upsert(ctx context.Context, t *model.NormalizedTransaction) (store.UpsertOutcome, error) {
	var outcome store.UpsertOutcome
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := r.findForUpdate(ctx, tx, t)
		if err != nil {
			return err
		}
		if existing == nil {
			if err := r.insert(ctx, tx, t); err != nil {
				return err
			}
			outcome.Inserted = true
			return nil
		}
		blocked := existing.Status.Immutable()
		existing.Merge(t, r.clock.Now())
		if err := r.update(ctx, tx, existing); err != nil {
			return err
		}
		outcome.Merged = !blocked
		return nil
	})
	return outcome, err
}

func (r *NormalizedTransactionRepo) findForUpdate(ctx context.Context, tx *sql.Tx, t *model.NormalizedTransaction) (*model.NormalizedTransaction, error) {
	const cols = `id, tx_hash, client_id, network_id, wallet_address, block_timestamp,
		type, legs, status, missing_data_reasons,
		clarification_attempts, pricing_attempts, stat_attempts,
		confirmed_at, created_at, updated_at`

	var row *sql.Row
	if t.ClientID != nil {
		row = tx.QueryRowContext(ctx,
			`SELECT `+cols+` FROM normalized_transactions WHERE client_id = $1 FOR UPDATE`,
			*t.ClientID)
	} else {
		row = tx.QueryRowContext(ctx,
			`SELECT `+cols+` FROM normalized_transactions
			 WHERE tx_hash = $1 AND network_id = $2 AND wallet_address = $3 FOR UPDATE`,
			t.TxHash, t.NetworkID, t.WalletAddress)
	}

	existing, err := scanNormalizedTx(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find normalized transaction: %w", err)
	}
	return existing, nil
}

func (r *NormalizedTransactionRepo) insert(ctx context.Context, tx *sql.Tx, t *model.NormalizedTransaction) error {
	legs, err := json.Marshal(t.Legs)
	if err != nil {
		return fmt.Errorf("marshal legs: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO normalized_transactions (
			tx_hash, client_id, network_id, wallet_address, block_timestamp,
			type, legs, status, missing_data_reasons,
			clarification_attempts, pricing_attempts, stat_attempts, confirmed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, t.TxHash, t.ClientID, t.NetworkID, t.WalletAddress, t.BlockTimestamp,
		t.Type, legs, t.Status, pq.Array(t.MissingDataReasons),
		t.ClarificationAttempts, t.PricingAttempts, t.StatAttempts, t.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("insert normalized transaction: %w", err)
	}
	return nil
}

func (r *NormalizedTransactionRepo) update(ctx context.Context, tx *sql.Tx, t *model.NormalizedTransaction) error {
	legs, err := json.Marshal(t.Legs)
	if err != nil {
		return fmt.Errorf("marshal legs: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE normalized_transactions SET
			block_timestamp = $2,
			type = $3,
			legs = $4,
			status = $5,
			missing_data_reasons = $6,
			clarification_attempts = $7,
			pricing_attempts = $8,
			stat_attempts = $9,
			confirmed_at = $10,
			updated_at = $11
		WHERE id = $1
	`, t.ID, t.BlockTimestamp, t.Type, legs, t.Status, pq.Array(t.MissingDataReasons),
		t.ClarificationAttempts, t.PricingAttempts, t.StatAttempts, t.ConfirmedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update normalized transaction: %w", err)
	}
	return nil
}

// Update persists job-side mutations (status advancement, attempt counters,
// reasons) outside of the merge path.
func (r *NormalizedTransactionRepo) Update(ctx context.Context, t *model.NormalizedTransaction) error {
	t.UpdatedAt = r.clock.Now()
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		return r.update(ctx, tx, t)
	})
}

// ListByStatus returns transactions in the given status, oldest first, so a
// scheduled pass observes deterministic per-key progression.
func (r *NormalizedTransactionRepo) ListByStatus(ctx context.Context, status model.TxStatus, limit int) ([]*model.NormalizedTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tx_hash, client_id, network_id, wallet_address, block_timestamp,
		       type, legs, status, missing_data_reasons,
		       clarification_attempts, pricing_attempts, stat_attempts,
		       confirmed_at, created_at, updated_at
		FROM normalized_transactions
		WHERE status = $1
		ORDER BY block_timestamp ASC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list normalized transactions: %w", err)
	}
	defer rows.Close()

	var out []*model.NormalizedTransaction
	for rows.Next() {
		t, err := scanNormalizedTx(rows)
		if err != nil {
			return nil, fmt.Errorf("scan normalized transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNormalizedTx(row rowScanner) (*model.NormalizedTransaction, error) {
	var (
		t        model.NormalizedTransaction
		legsJSON []byte
		reasons  pq.StringArray
	)
	if err := row.Scan(&t.ID, &t.TxHash, &t.ClientID, &t.NetworkID, &t.WalletAddress,
		&t.BlockTimestamp, &t.Type, &legsJSON, &t.Status, &reasons,
		&t.ClarificationAttempts, &t.PricingAttempts, &t.StatAttempts,
		&t.ConfirmedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if len(legsJSON) > 0 {
		if err := json.Unmarshal(legsJSON, &t.Legs); err != nil {
			return nil, fmt.Errorf("unmarshal legs: %w", err)
		}
	}
	t.MissingDataReasons = []string(reasons)
	if len(t.MissingDataReasons) == 0 {
		t.MissingDataReasons = nil
	}
	t.BlockTimestamp = t.BlockTimestamp.UTC()
	if t.ConfirmedAt != nil {
		utc := t.ConfirmedAt.UTC()
		t.ConfirmedAt = &utc
	}
	return &t, nil
}
