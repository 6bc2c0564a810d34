package pricing

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ledgerkit/txledger/internal/domain/model"
	"github.com/ledgerkit/txledger/internal/metrics"
	"github.com/ledgerkit/txledger/internal/store"
	"github.com/ledgerkit/txledger/internal/tracing"
)

// Config bounds one pricing pass.
type Config struct {
	MaxRetries int
	BatchSize  int
}

// Job applies the resolver chain to every PENDING_PRICE transaction's
// unpriced legs. A transaction advances to PENDING_STAT when all legs carry
// a price, retries while attempts remain, and lands in NEEDS_REVIEW once the
// retry ceiling is exceeded.
type Job struct {
	txRepo store.NormalizedTransactionRepository
	chain  *Chain
	cfg    Config
	logger *slog.Logger
}

func NewJob(txRepo store.NormalizedTransactionRepository, chain *Chain, cfg Config, logger *slog.Logger) *Job {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Job{
		txRepo: txRepo,
		chain:  chain,
		cfg:    cfg,
		logger: logger.With("component", "pricing_job"),
	}
}

// RunOnce executes one scheduled pricing pass. Transactions are processed
// oldest first; a failure on one transaction never aborts the pass.
func (j *Job) RunOnce(ctx context.Context) error {
	start := time.Now()
	metrics.PricingPassesTotal.Inc()
	defer func() {
		metrics.PricingPassLatency.Observe(time.Since(start).Seconds())
	}()

	ctx, span := tracing.Tracer("pricing").Start(ctx, "pricing.pass")
	defer span.End()

	txs, err := j.txRepo.ListByStatus(ctx, model.TxStatusPendingPrice, j.cfg.BatchSize)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("tx_count", len(txs)))

	for _, tx := range txs {
		if err := j.processOne(ctx, tx); err != nil {
			// Isolated to this transaction; the pass continues.
			j.logger.Error("pricing failed",
				"tx_hash", tx.TxHash,
				"network", tx.NetworkID,
				"error", err,
			)
		}
	}
	return nil
}

func (j *Job) processOne(ctx context.Context, tx *model.NormalizedTransaction) error {
	tx.ClearReasons()
	allPriced := true

	for i := range tx.Legs {
		leg := &tx.Legs[i]
		if leg.Priced() {
			// Explicit unit price: value it directly.
			leg.SetPrice(*leg.UnitPriceUsd, leg.PriceSource)
			continue
		}
		if leg.QuantityDelta.IsZero() {
			tx.AddReason(model.ReasonMissingQuantity)
			allPriced = false
			continue
		}
		if leg.AssetContract == "" {
			tx.AddReason(model.ReasonMissingAssetContract)
			allPriced = false
			continue
		}

		req := model.PriceRequest{
			AssetContract: leg.AssetContract,
			NetworkID:     tx.NetworkID,
			Timestamp:     tx.BlockTimestamp,
			Counterpart:   counterpartFor(tx, leg),
		}
		res := j.chain.Resolve(ctx, req)
		if !res.Known {
			tx.AddReason(model.ReasonPriceUnresolvedPrefix + leg.AssetContract)
			allPriced = false
			continue
		}
		leg.SetPrice(res.Price, res.Source)
	}

	if allPriced {
		tx.Status = model.TxStatusPendingStat
		tx.ClearReasons()
		metrics.PricingTxAdvanced.Inc()
		return j.txRepo.Update(ctx, tx)
	}

	tx.PricingAttempts++
	if tx.PricingAttempts > j.cfg.MaxRetries {
		tx.Status = model.TxStatusNeedsReview
		metrics.PricingTxDemoted.Inc()
		j.logger.Warn("pricing retries exhausted",
			"tx_hash", tx.TxHash,
			"network", tx.NetworkID,
			"reasons", tx.MissingDataReasons,
		)
	}
	return j.txRepo.Update(ctx, tx)
}

// counterpartFor builds the swap counterpart for a leg when the transaction
// is a swap with exactly one distinct asset on the opposite side. Ambiguous
// multi-asset sides yield no counterpart.
func counterpartFor(tx *model.NormalizedTransaction, leg *model.Leg) *model.SwapCounterpart {
	if tx.Type != model.TxTypeSwap {
		return nil
	}
	sign := leg.QuantityDelta.Sign()
	if sign == 0 {
		return nil
	}

	cp := model.SwapCounterpart{OurAmount: leg.QuantityDelta.Abs()}
	for i := range tx.Legs {
		other := &tx.Legs[i]
		if other.QuantityDelta.Sign() == sign || other.QuantityDelta.Sign() == 0 {
			continue
		}
		if cp.AssetContract == "" {
			cp.AssetContract = other.AssetContract
		} else if cp.AssetContract != other.AssetContract {
			return nil
		}
		cp.Amount = cp.Amount.Add(other.QuantityDelta.Abs())
	}
	if cp.AssetContract == "" {
		return nil
	}
	return &cp
}
