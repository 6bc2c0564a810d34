// Package statcheck validates that priced transactions are internally
// consistent, promoting them to CONFIRMED or demoting to NEEDS_REVIEW, and
// signals downstream recalculation for confirmed wallets.
package statcheck

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ledgerkit/txledger/internal/alert"
	"github.com/ledgerkit/txledger/internal/domain/model"
	"github.com/ledgerkit/txledger/internal/metrics"
	"github.com/ledgerkit/txledger/internal/store"
	"github.com/ledgerkit/txledger/internal/tracing"
)

// Config bounds one consistency pass.
type Config struct {
	BatchSize int
}

// Job runs the statistical consistency stage over PENDING_STAT transactions.
type Job struct {
	txRepo  store.NormalizedTransactionRepository
	signals store.RecalcPublisher
	alerter alert.Alerter
	clock   store.Clock
	cfg     Config
	logger  *slog.Logger
}

func NewJob(txRepo store.NormalizedTransactionRepository, signals store.RecalcPublisher, alerter alert.Alerter, clock store.Clock, cfg Config, logger *slog.Logger) *Job {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Job{
		txRepo:  txRepo,
		signals: signals,
		alerter: alerter,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.With("component", "stat_job"),
	}
}

// RunOnce executes one consistency pass. Wallets with newly confirmed
// transactions are deduplicated and signalled once each after the batch, not
// once per transaction.
func (j *Job) RunOnce(ctx context.Context) error {
	start := time.Now()
	metrics.StatPassesTotal.Inc()
	defer func() {
		metrics.StatPassLatency.Observe(time.Since(start).Seconds())
	}()

	ctx, span := tracing.Tracer("statcheck").Start(ctx, "statcheck.pass")
	defer span.End()

	txs, err := j.txRepo.ListByStatus(ctx, model.TxStatusPendingStat, j.cfg.BatchSize)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("tx_count", len(txs)))

	confirmedWallets := make(map[string]struct{})
	for _, tx := range txs {
		confirmed, err := j.processOne(ctx, tx)
		if err != nil {
			j.logger.Error("consistency check failed",
				"tx_hash", tx.TxHash,
				"network", tx.NetworkID,
				"error", err,
			)
			continue
		}
		if confirmed {
			confirmedWallets[tx.WalletAddress] = struct{}{}
		}
	}

	for wallet := range confirmedWallets {
		if err := j.signals.Publish(ctx, model.RecalcSignal{WalletAddress: wallet}); err != nil {
			// At-least-once: the next confirmed transaction for this wallet
			// re-triggers the signal.
			j.logger.Error("recalc signal publish failed", "wallet", wallet, "error", err)
			continue
		}
		metrics.StatRecalcSignals.Inc()
	}
	return nil
}

func (j *Job) processOne(ctx context.Context, tx *model.NormalizedTransaction) (bool, error) {
	tx.StatAttempts++

	if reason, ok := validate(tx); !ok {
		tx.Status = model.TxStatusNeedsReview
		tx.ClearReasons()
		tx.AddReason(reason)
		metrics.StatTxNeedsReview.WithLabelValues(reason).Inc()
		j.notifyNeedsReview(ctx, tx, reason)
		return false, j.txRepo.Update(ctx, tx)
	}

	now := j.clock.Now()
	tx.Status = model.TxStatusConfirmed
	tx.ConfirmedAt = &now
	tx.ClearReasons()
	metrics.StatTxConfirmed.Inc()
	return true, j.txRepo.Update(ctx, tx)
}

// validate returns the first violated consistency rule, if any.
func validate(tx *model.NormalizedTransaction) (string, bool) {
	if len(tx.Legs) == 0 {
		return model.ReasonMissingLegs, false
	}

	for i := range tx.Legs {
		if tx.Legs[i].QuantityDelta.IsZero() {
			return model.ReasonMissingQuantity, false
		}
	}

	for i := range tx.Legs {
		leg := &tx.Legs[i]
		if priceRequired(tx.Type, leg) && !leg.Priced() {
			return model.ReasonPriceUnresolvedPrefix + leg.AssetContract, false
		}
	}

	if tx.Type == model.TxTypeSwap {
		var positive, negative bool
		for i := range tx.Legs {
			switch tx.Legs[i].QuantityDelta.Sign() {
			case 1:
				positive = true
			case -1:
				negative = true
			}
		}
		if !positive || !negative {
			return model.ReasonInconsistentSwapLegs, false
		}
	}

	return "", true
}

// priceRequired: always for swaps; for other types only inbound legs must
// carry a price, outbound legs may be valued later by the cost-basis engine.
func priceRequired(txType model.TxType, leg *model.Leg) bool {
	if txType == model.TxTypeSwap {
		return true
	}
	return leg.QuantityDelta.Sign() > 0
}

func (j *Job) notifyNeedsReview(ctx context.Context, tx *model.NormalizedTransaction, reason string) {
	if j.alerter == nil {
		return
	}
	err := j.alerter.Send(ctx, alert.Alert{
		Type:    alert.AlertTypeNeedsReview,
		Network: string(tx.NetworkID),
		Wallet:  tx.WalletAddress,
		Title:   "transaction needs review",
		Message: reason,
		Fields:  map[string]string{"tx_hash": tx.TxHash},
	})
	if err != nil {
		j.logger.Warn("needs-review alert failed", "tx_hash", tx.TxHash, "error", err)
	}
}
