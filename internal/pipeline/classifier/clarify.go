package classifier

import (
	"context"
	"log/slog"

	"github.com/ledgerkit/txledger/internal/domain/model"
	"github.com/ledgerkit/txledger/internal/store"
)

// ClarifyJob retries transactions parked in PENDING_CLARIFICATION. A swap
// missing its counterpart leg can become whole when a later classification
// pass decodes more of the transaction's events; until then the attempt
// counter ticks up, and once exhausted the transaction is routed to manual
// review.
type ClarifyJob struct {
	txRepo     store.NormalizedTransactionRepository
	eventRepo  store.EconomicEventRepository
	maxRetries int
	batchSize  int
	logger     *slog.Logger
}

func NewClarifyJob(txRepo store.NormalizedTransactionRepository, eventRepo store.EconomicEventRepository, maxRetries, batchSize int, logger *slog.Logger) *ClarifyJob {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	return &ClarifyJob{
		txRepo:     txRepo,
		eventRepo:  eventRepo,
		maxRetries: maxRetries,
		batchSize:  batchSize,
		logger:     logger.With("component", "clarify_job"),
	}
}

// RunOnce executes one clarification pass.
func (j *ClarifyJob) RunOnce(ctx context.Context) error {
	txs, err := j.txRepo.ListByStatus(ctx, model.TxStatusPendingClarification, j.batchSize)
	if err != nil {
		return err
	}

	for _, tx := range txs {
		if err := j.processOne(ctx, tx); err != nil {
			j.logger.Error("clarification failed",
				"tx_hash", tx.TxHash,
				"network", tx.NetworkID,
				"error", err,
			)
		}
	}
	return nil
}

func (j *ClarifyJob) processOne(ctx context.Context, tx *model.NormalizedTransaction) error {
	events, err := j.eventRepo.ListByTxHash(ctx, tx.TxHash, tx.NetworkID, tx.WalletAddress)
	if err != nil {
		return err
	}

	if tx.Type == model.TxTypeSwap && !missingSwapSide(events) && len(events) > 0 {
		// Counterpart arrived: rebuild legs from the stored events and hand
		// the transaction to the pricing stage.
		tx.Legs = tx.Legs[:0]
		for _, ev := range events {
			leg := model.Leg{
				Role:          legRoleFor(ev),
				AssetContract: ev.AssetContract,
				AssetSymbol:   ev.AssetSymbol,
				QuantityDelta: ev.QuantityDelta,
				PriceSource:   ev.PriceSource,
			}
			if ev.Priced() {
				leg.SetPrice(*ev.PriceUsd, ev.PriceSource)
			}
			tx.Legs = append(tx.Legs, leg)
		}
		tx.Status = model.TxStatusPendingPrice
		tx.ClearReasons()
		return j.txRepo.Update(ctx, tx)
	}

	tx.ClarificationAttempts++
	if tx.ClarificationAttempts > j.maxRetries {
		tx.Status = model.TxStatusNeedsReview
		tx.ClearReasons()
		tx.AddReason(model.ReasonClarificationUnresolved)
		j.logger.Warn("clarification retries exhausted",
			"tx_hash", tx.TxHash,
			"network", tx.NetworkID,
		)
	}
	return j.txRepo.Update(ctx, tx)
}
