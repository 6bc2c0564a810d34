package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerkit/txledger/internal/domain/model"
	"github.com/ledgerkit/txledger/internal/store"
)

type EconomicEventRepo struct {
	db *DB
}

func NewEconomicEventRepo(db *DB) *EconomicEventRepo {
	return &EconomicEventRepo{db: db}
}

// Upsert locates an existing event by natural identity and either inserts or
// merges mutable fields into it, preserving the stored id. Safe to repeat
// with the same or evolving input.
func (r *EconomicEventRepo) Upsert(ctx context.Context, e *model.EconomicEvent) (store.UpsertOutcome, error) {
	var outcome store.UpsertOutcome
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		existingID, err := findEventID(ctx, tx, e)
		if err != nil {
			return err
		}
		if existingID == uuid.Nil {
			if err := insertEvent(ctx, tx, e); err != nil {
				return err
			}
			outcome.Inserted = true
			return nil
		}
		if err := mergeEvent(ctx, tx, existingID, e); err != nil {
			return err
		}
		outcome.Merged = true
		return nil
	})
	return outcome, err
}

func findEventID(ctx context.Context, tx *sql.Tx, e *model.EconomicEvent) (uuid.UUID, error) {
	var (
		id  uuid.UUID
		err error
	)
	if e.ClientID != nil {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM economic_events WHERE client_id = $1 FOR UPDATE
		`, *e.ClientID).Scan(&id)
	} else {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM economic_events
			WHERE tx_hash = $1 AND network_id = $2 AND wallet_address = $3 AND asset_contract = $4
			FOR UPDATE
		`, e.TxHash, e.NetworkID, e.WalletAddress, e.AssetContract).Scan(&id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("find economic event: %w", err)
	}
	return id, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, e *model.EconomicEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO economic_events (
			tx_hash, client_id, network_id, wallet_address, block_timestamp,
			event_type, asset_symbol, asset_contract, quantity_delta,
			price_usd, price_source, total_value_usd,
			gas_cost_usd, gas_included_in_basis, flag_code, flag_resolved
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, e.TxHash, e.ClientID, e.NetworkID, e.WalletAddress, e.BlockTimestamp,
		e.EventType, e.AssetSymbol, e.AssetContract, e.QuantityDelta,
		nullDec(e.PriceUsd), e.PriceSource, nullDec(e.TotalValueUsd),
		e.GasCostUsd, e.GasIncludedInBasis, e.FlagCode, e.FlagResolved)
	if err != nil {
		return fmt.Errorf("insert economic event: %w", err)
	}
	return nil
}

func mergeEvent(ctx context.Context, tx *sql.Tx, id uuid.UUID, e *model.EconomicEvent) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE economic_events SET
			block_timestamp = $2,
			event_type = $3,
			asset_symbol = $4,
			quantity_delta = $5,
			price_usd = $6,
			price_source = $7,
			total_value_usd = $8,
			gas_cost_usd = $9,
			gas_included_in_basis = $10,
			flag_code = $11,
			flag_resolved = $12,
			updated_at = now()
		WHERE id = $1
	`, id, e.BlockTimestamp, e.EventType, e.AssetSymbol, e.QuantityDelta,
		nullDec(e.PriceUsd), e.PriceSource, nullDec(e.TotalValueUsd),
		e.GasCostUsd, e.GasIncludedInBasis, e.FlagCode, e.FlagResolved)
	if err != nil {
		return fmt.Errorf("merge economic event: %w", err)
	}
	return nil
}

func (r *EconomicEventRepo) ListByTxHash(ctx context.Context, txHash string, network model.Network, wallet string) ([]*model.EconomicEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tx_hash, client_id, network_id, wallet_address, block_timestamp,
		       event_type, asset_symbol, asset_contract, quantity_delta,
		       price_usd, price_source, total_value_usd,
		       gas_cost_usd, gas_included_in_basis, flag_code, flag_resolved,
		       created_at, updated_at
		FROM economic_events
		WHERE tx_hash = $1 AND network_id = $2 AND wallet_address = $3
		ORDER BY asset_contract
	`, txHash, network, wallet)
	if err != nil {
		return nil, fmt.Errorf("list economic events: %w", err)
	}
	defer rows.Close()

	var out []*model.EconomicEvent
	for rows.Next() {
		var (
			e          model.EconomicEvent
			price, tot decimal.NullDecimal
		)
		if err := rows.Scan(&e.ID, &e.TxHash, &e.ClientID, &e.NetworkID, &e.WalletAddress,
			&e.BlockTimestamp, &e.EventType, &e.AssetSymbol, &e.AssetContract, &e.QuantityDelta,
			&price, &e.PriceSource, &tot, &e.GasCostUsd, &e.GasIncludedInBasis,
			&e.FlagCode, &e.FlagResolved, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan economic event: %w", err)
		}
		e.PriceUsd = decPtr(price)
		e.TotalValueUsd = decPtr(tot)
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullDec(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
