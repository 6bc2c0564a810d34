package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerkit/txledger/internal/blocktime"
	"github.com/ledgerkit/txledger/internal/domain/model"
	"github.com/ledgerkit/txledger/internal/metrics"
	"github.com/ledgerkit/txledger/internal/pipeline/enrich"
	"github.com/ledgerkit/txledger/internal/store"
)

// weiPerNative converts wei-scale gas figures to whole native units.
var weiPerNative = decimal.New(1, 18)

// Processor is the classification and normalization stage. It reads pending
// raw transactions for one wallet/network pair, classifies them, computes
// gas cost, applies inline swap enrichment, and upserts the results
// idempotently. No RPC calls happen here; the stage operates only on
// already-fetched raw data.
type Processor struct {
	rawRepo    store.RawTransactionRepository
	eventRepo  store.EconomicEventRepository
	txRepo     store.NormalizedTransactionRepository
	classifier Classifier
	estimator  blocktime.Estimator
	native     *NativePricer
	pricer     *enrich.SwapPricer
	gasPolicy  model.GasBasisPolicy
	batchSize  int
	logger     *slog.Logger
}

func NewProcessor(
	rawRepo store.RawTransactionRepository,
	eventRepo store.EconomicEventRepository,
	txRepo store.NormalizedTransactionRepository,
	classifier Classifier,
	estimator blocktime.Estimator,
	native *NativePricer,
	pricer *enrich.SwapPricer,
	gasPolicy model.GasBasisPolicy,
	batchSize int,
	logger *slog.Logger,
) *Processor {
	if batchSize <= 0 {
		batchSize = 100
	}
	if gasPolicy == nil {
		gasPolicy = model.DefaultGasBasisPolicy()
	}
	return &Processor{
		rawRepo:    rawRepo,
		eventRepo:  eventRepo,
		txRepo:     txRepo,
		classifier: classifier,
		estimator:  estimator,
		native:     native,
		pricer:     pricer,
		gasPolicy:  gasPolicy,
		batchSize:  batchSize,
		logger:     logger.With("component", "classifier"),
	}
}

// ProcessBatch classifies the pending raw transactions of one wallet/network
// pair. trackedWallets is the set of wallets in the current session, used
// for internal-transfer detection. A failure on one transaction marks it
// FAILED and the loop continues; a single bad transaction never blocks the
// batch.
func (p *Processor) ProcessBatch(ctx context.Context, wallet string, network model.Network, trackedWallets map[string]struct{}) error {
	start := time.Now()
	defer func() {
		metrics.ClassifierBatchLatency.WithLabelValues(string(network)).Observe(time.Since(start).Seconds())
	}()

	batch, err := p.rawRepo.ListPending(ctx, wallet, network, p.batchSize)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	for _, raw := range batch {
		if err := p.processOne(ctx, raw, trackedWallets); err != nil {
			metrics.ClassifierTxFailed.WithLabelValues(string(network)).Inc()
			p.logger.Warn("classification failed",
				"tx_hash", raw.TxHash,
				"network", network,
				"error", err,
			)
			if serr := p.rawRepo.SetClassificationStatus(ctx, raw.TxHash, raw.NetworkID, raw.WalletAddress, model.ClassificationFailed); serr != nil {
				p.logger.Error("mark raw transaction failed", "tx_hash", raw.TxHash, "error", serr)
			}
			continue
		}
		if err := p.rawRepo.SetClassificationStatus(ctx, raw.TxHash, raw.NetworkID, raw.WalletAddress, model.ClassificationComplete); err != nil {
			p.logger.Error("mark raw transaction complete", "tx_hash", raw.TxHash, "error", err)
		}
	}

	metrics.ClassifierBatchesProcessed.WithLabelValues(string(network)).Inc()
	return nil
}

func (p *Processor) processOne(ctx context.Context, raw *model.RawTransaction, trackedWallets map[string]struct{}) error {
	classification, err := p.classifier.Classify(ctx, raw)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	blockTime, err := p.resolveBlockTime(raw, classification)
	if err != nil {
		return fmt.Errorf("resolve block time: %w", err)
	}

	nativePrice := p.native.PriceAt(ctx, raw.NetworkID, blockTime)
	gasCost := gasCostUsd(classification.GasUsed, classification.GasPriceWei, nativePrice)

	events := make([]*model.EconomicEvent, 0, len(classification.Events))
	for _, rawEvent := range classification.Events {
		ev, err := p.normalizeEvent(raw, rawEvent, blockTime, gasCost, trackedWallets)
		if err != nil {
			return err
		}
		events = append(events, ev)
	}

	// Inline enrichment runs across all of the transaction's events before
	// anything is persisted.
	p.pricer.Enrich(events)

	for _, ev := range events {
		if !ev.Priced() {
			flag := model.FlagPricePending
			ev.FlagCode = &flag
			ev.FlagResolved = false
		}
		if _, err := p.eventRepo.Upsert(ctx, ev); err != nil {
			return fmt.Errorf("upsert event: %w", err)
		}
		metrics.ClassifierEventsWritten.WithLabelValues(string(raw.NetworkID)).Inc()
	}

	if len(events) == 0 {
		return nil
	}

	tx := p.buildNormalizedTx(raw, events, blockTime)
	if _, err := p.txRepo.Upsert(ctx, tx); err != nil {
		return fmt.Errorf("upsert normalized transaction: %w", err)
	}
	return nil
}

// resolveBlockTime reads the embedded block time on networks that carry
// one, estimating from block number elsewhere.
func (p *Processor) resolveBlockTime(raw *model.RawTransaction, c *Classification) (time.Time, error) {
	if raw.NetworkID.UsesBlockTime() {
		if c.BlockTime != nil {
			return c.BlockTime.UTC(), nil
		}
		// Fall back to the raw payload for providers whose classifier does
		// not surface the field.
		var payload struct {
			BlockTime *int64 `json:"blockTime"`
		}
		if err := json.Unmarshal(raw.RawData, &payload); err == nil && payload.BlockTime != nil {
			return time.Unix(*payload.BlockTime, 0).UTC(), nil
		}
		return time.Time{}, fmt.Errorf("no embedded block time")
	}

	if raw.BlockNumber == nil {
		return time.Time{}, fmt.Errorf("no block number")
	}
	return p.estimator.Estimate(raw.NetworkID, *raw.BlockNumber)
}

func (p *Processor) normalizeEvent(raw *model.RawTransaction, rawEvent RawEvent, blockTime time.Time, gasCost decimal.Decimal, trackedWallets map[string]struct{}) (*model.EconomicEvent, error) {
	if rawEvent.QuantityDelta.IsZero() {
		return nil, fmt.Errorf("zero quantity delta for asset %s", rawEvent.AssetContract)
	}

	eventType := rawEvent.EventType
	if rawEvent.Counterparty != "" {
		if _, tracked := trackedWallets[rawEvent.Counterparty]; tracked {
			switch eventType {
			case model.EventExternalInbound, model.EventExternalTransferOut:
				eventType = model.EventInternalTransfer
			}
		}
	}

	ev := &model.EconomicEvent{
		TxHash:             raw.TxHash,
		NetworkID:          raw.NetworkID,
		WalletAddress:      raw.WalletAddress,
		BlockTimestamp:     blockTime,
		EventType:          eventType,
		AssetSymbol:        rawEvent.AssetSymbol,
		AssetContract:      rawEvent.AssetContract,
		QuantityDelta:      rawEvent.QuantityDelta,
		PriceSource:        model.PriceSourceUnknown,
		GasCostUsd:         gasCost,
		GasIncludedInBasis: p.gasPolicy.IncludeGas(eventType, rawEvent.QuantityDelta),
	}
	if rawEvent.UnitPriceUsd != nil {
		ev.SetPrice(*rawEvent.UnitPriceUsd, model.PriceSourceManual)
	}
	return ev, nil
}

// buildNormalizedTx folds the transaction's events into a multi-leg
// normalized view and picks the initial status.
func (p *Processor) buildNormalizedTx(raw *model.RawTransaction, events []*model.EconomicEvent, blockTime time.Time) *model.NormalizedTransaction {
	tx := &model.NormalizedTransaction{
		TxHash:         raw.TxHash,
		NetworkID:      raw.NetworkID,
		WalletAddress:  raw.WalletAddress,
		BlockTimestamp: blockTime,
		Type:           txTypeFor(events),
	}

	allPriced := true
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
		} else {
			allPriced = false
		}
		tx.Legs = append(tx.Legs, leg)
	}

	switch {
	case tx.Type == model.TxTypeSwap && missingSwapSide(events):
		tx.Status = model.TxStatusPendingClarification
		tx.AddReason(model.ReasonMissingSwapLeg)
	case allPriced:
		tx.Status = model.TxStatusPendingStat
	default:
		tx.Status = model.TxStatusPendingPrice
	}
	return tx
}

func txTypeFor(events []*model.EconomicEvent) model.TxType {
	var hasSwap, hasInternal, hasIn, hasOut bool
	for _, ev := range events {
		switch ev.EventType {
		case model.EventSwapBuy, model.EventSwapSell:
			hasSwap = true
		case model.EventInternalTransfer:
			hasInternal = true
		case model.EventExternalInbound:
			hasIn = true
		case model.EventExternalTransferOut:
			hasOut = true
		}
	}
	switch {
	case hasSwap:
		return model.TxTypeSwap
	case hasInternal:
		return model.TxTypeInternalTransfer
	case hasIn && !hasOut:
		return model.TxTypeExternalTransferIn
	case hasOut && !hasIn:
		return model.TxTypeExternalTransferOut
	default:
		return model.TxTypeManual
	}
}

func legRoleFor(ev *model.EconomicEvent) model.LegRole {
	switch ev.EventType {
	case model.EventSwapBuy:
		return model.LegRoleBuy
	case model.EventSwapSell:
		return model.LegRoleSell
	default:
		return model.LegRoleTransfer
	}
}

// missingSwapSide reports whether a swap transaction lacks one of its two
// sides, e.g. a sell with no decoded counterpart.
func missingSwapSide(events []*model.EconomicEvent) bool {
	var hasBuy, hasSell bool
	for _, ev := range events {
		switch ev.EventType {
		case model.EventSwapBuy:
			hasBuy = true
		case model.EventSwapSell:
			hasSell = true
		}
	}
	return hasBuy != hasSell
}

// gasCostUsd = gasUsed × gasPriceWei × nativePriceUsd / 1e18.
func gasCostUsd(gasUsed, gasPriceWei, nativePrice decimal.Decimal) decimal.Decimal {
	if nativePrice.IsZero() {
		return decimal.Zero
	}
	return gasUsed.Mul(gasPriceWei).Mul(nativePrice).DivRound(weiPerNative, model.ValueScale)
}
