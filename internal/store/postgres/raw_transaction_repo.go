package postgres

import (
	"context"
	"fmt"

	"github.com/ledgerkit/txledger/internal/domain/model"
)

type RawTransactionRepo struct {
	db *DB
}

func NewRawTransactionRepo(db *DB) *RawTransactionRepo {
	return &RawTransactionRepo{db: db}
}

func (r *RawTransactionRepo) Upsert(ctx context.Context, t *model.RawTransaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO raw_transactions (
			tx_hash, wallet_address, network_id, block_number, raw_data, classification_status
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tx_hash, network_id, wallet_address) DO UPDATE SET
			block_number = EXCLUDED.block_number,
			raw_data = EXCLUDED.raw_data,
			updated_at = now()
	`, t.TxHash, t.WalletAddress, t.NetworkID, t.BlockNumber, t.RawData, t.ClassificationStatus)
	if err != nil {
		return fmt.Errorf("upsert raw transaction: %w", err)
	}
	return nil
}

func (r *RawTransactionRepo) ListPending(ctx context.Context, wallet string, network model.Network, limit int) ([]*model.RawTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tx_hash, wallet_address, network_id, block_number, raw_data,
		       classification_status, created_at, updated_at
		FROM raw_transactions
		WHERE wallet_address = $1 AND network_id = $2 AND classification_status = $3
		ORDER BY block_number NULLS LAST, tx_hash
		LIMIT $4
	`, wallet, network, model.ClassificationPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending raw transactions: %w", err)
	}
	defer rows.Close()

	var out []*model.RawTransaction
	for rows.Next() {
		var t model.RawTransaction
		if err := rows.Scan(&t.ID, &t.TxHash, &t.WalletAddress, &t.NetworkID, &t.BlockNumber,
			&t.RawData, &t.ClassificationStatus, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan raw transaction: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *RawTransactionRepo) SetClassificationStatus(ctx context.Context, txHash string, network model.Network, wallet string, status model.ClassificationStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE raw_transactions
		SET classification_status = $4, updated_at = now()
		WHERE tx_hash = $1 AND network_id = $2 AND wallet_address = $3
	`, txHash, network, wallet, status)
	if err != nil {
		return fmt.Errorf("set classification status: %w", err)
	}
	return nil
}
