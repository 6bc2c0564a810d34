package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/txledger/internal/blocktime"
	"github.com/ledgerkit/txledger/internal/config"
	"github.com/ledgerkit/txledger/internal/domain/model"
	"github.com/ledgerkit/txledger/internal/pipeline/enrich"
	"github.com/ledgerkit/txledger/internal/store/memory"
)

const (
	usdcContract = "0xusdc"
	wethContract = "0xweth"
	testWallet   = "0xwallet"
)

type fixture struct {
	rawStore   *memory.RawTransactionStore
	eventStore *memory.EconomicEventStore
	txStore    *memory.NormalizedTransactionStore
	api        *stubPriceAPI
	processor  *Processor
}

type stubPriceAPI struct {
	prices map[string]decimal.Decimal
	calls  int
}

func (s *stubPriceAPI) HistoricalPrice(_ context.Context, coinID string, _ time.Time) (decimal.Decimal, error) {
	s.calls++
	if p, ok := s.prices[coinID]; ok {
		return p, nil
	}
	return decimal.Zero, errors.New("coin not known")
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	registry := config.NewAssetRegistry(
		[]string{usdcContract},
		nil,
		map[model.Network]config.NativeAsset{
			model.NetworkEthereum: {Symbol: "ETH", Contract: wethContract, CoinID: "ethereum"},
		},
	)

	estimator := blocktime.NewAnchorEstimator()
	estimator.Calibrate(model.NetworkEthereum, blocktime.Anchor{
		BlockNumber:     1_000_000,
		Timestamp:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		AvgBlockSeconds: 12,
	})

	api := &stubPriceAPI{prices: map[string]decimal.Decimal{"ethereum": decimal.NewFromInt(4000)}}
	logger := slog.Default()

	f := &fixture{
		rawStore:   memory.NewRawTransactionStore(),
		eventStore: memory.NewEconomicEventStore(),
		txStore:    memory.NewNormalizedTransactionStore(fixedClock{at: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}),
		api:        api,
	}
	f.processor = NewProcessor(
		f.rawStore, f.eventStore, f.txStore,
		NewPayloadClassifier(),
		estimator,
		NewNativePricer(api, registry, logger),
		enrich.NewSwapPricer(registry),
		model.DefaultGasBasisPolicy(),
		10, logger,
	)
	return f
}

func rawTx(t *testing.T, txHash string, blockNumber int64, body map[string]any) *model.RawTransaction {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	bn := blockNumber
	return &model.RawTransaction{
		TxHash:               txHash,
		WalletAddress:        testWallet,
		NetworkID:            model.NetworkEthereum,
		BlockNumber:          &bn,
		RawData:              data,
		ClassificationStatus: model.ClassificationPending,
	}
}

func swapPayload() map[string]any {
	return map[string]any{
		"gas_used":      "21000",
		"gas_price_wei": "30000000000",
		"events": []map[string]any{
			{
				"type":           "SWAP_SELL",
				"asset_symbol":   "USDC",
				"asset_contract": usdcContract,
				"quantity_delta": "-16",
			},
			{
				"type":           "SWAP_BUY",
				"asset_symbol":   "WETH",
				"asset_contract": wethContract,
				"quantity_delta": "0.004",
			},
		},
	}
}

func TestProcessBatch_SwapEnrichedInline(t *testing.T) {
	f := newFixture(t)
	raw := rawTx(t, "0xswap", 1_000_100, swapPayload())
	require.NoError(t, f.rawStore.Upsert(context.Background(), raw))

	tracked := map[string]struct{}{testWallet: {}}
	require.NoError(t, f.processor.ProcessBatch(context.Background(), testWallet, model.NetworkEthereum, tracked))

	assert.Equal(t, model.ClassificationComplete,
		f.rawStore.Status("0xswap", model.NetworkEthereum, testWallet))

	events, err := f.eventStore.ListByTxHash(context.Background(), "0xswap", model.NetworkEthereum, testWallet)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// sorted by contract: 0xusdc, 0xweth
	usdc, weth := events[0], events[1]
	require.True(t, usdc.Priced())
	assert.True(t, usdc.PriceUsd.Equal(decimal.NewFromInt(1)))
	require.True(t, weth.Priced())
	assert.True(t, weth.PriceUsd.Equal(decimal.NewFromInt(4000)),
		"derived swap price, got %s", weth.PriceUsd)

	// gasCostUsd = 21000 * 30e9 * 4000 / 1e18 = 2.52
	assert.True(t, usdc.GasCostUsd.Equal(decimal.RequireFromString("2.52")),
		"gas cost, got %s", usdc.GasCostUsd)
	assert.False(t, usdc.GasIncludedInBasis, "sell side never capitalizes gas")
	assert.True(t, weth.GasIncludedInBasis, "buy side capitalizes gas")

	tx := f.txStore.Get("0xswap", model.NetworkEthereum, testWallet)
	require.NotNil(t, tx)
	assert.Equal(t, model.TxTypeSwap, tx.Type)
	assert.Equal(t, model.TxStatusPendingStat, tx.Status, "fully priced swaps skip the pricing stage")
	require.Len(t, tx.Legs, 2)

	// Estimated block time: anchor + 100 blocks * 12s.
	wantTs := time.Date(2025, 1, 1, 0, 20, 0, 0, time.UTC)
	assert.Equal(t, wantTs, tx.BlockTimestamp)
}

func TestProcessBatch_MissingSwapLeg(t *testing.T) {
	f := newFixture(t)
	payload := swapPayload()
	payload["events"] = payload["events"].([]map[string]any)[:1] // sell only
	raw := rawTx(t, "0xhalf", 1_000_100, payload)
	require.NoError(t, f.rawStore.Upsert(context.Background(), raw))

	require.NoError(t, f.processor.ProcessBatch(context.Background(), testWallet, model.NetworkEthereum, nil))

	tx := f.txStore.Get("0xhalf", model.NetworkEthereum, testWallet)
	require.NotNil(t, tx)
	assert.Equal(t, model.TxStatusPendingClarification, tx.Status)
	assert.Equal(t, []string{model.ReasonMissingSwapLeg}, tx.MissingDataReasons)
}

func TestProcessBatch_InternalTransferDetection(t *testing.T) {
	f := newFixture(t)
	raw := rawTx(t, "0xmove", 1_000_100, map[string]any{
		"gas_used":      "21000",
		"gas_price_wei": "30000000000",
		"events": []map[string]any{
			{
				"type":           "EXTERNAL_TRANSFER_OUT",
				"asset_symbol":   "WETH",
				"asset_contract": wethContract,
				"quantity_delta": "-1",
				"counterparty":   "0xsibling",
			},
		},
	})
	require.NoError(t, f.rawStore.Upsert(context.Background(), raw))

	tracked := map[string]struct{}{testWallet: {}, "0xsibling": {}}
	require.NoError(t, f.processor.ProcessBatch(context.Background(), testWallet, model.NetworkEthereum, tracked))

	events, err := f.eventStore.ListByTxHash(context.Background(), "0xmove", model.NetworkEthereum, testWallet)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventInternalTransfer, events[0].EventType)
	assert.False(t, events[0].GasIncludedInBasis, "outbound internal transfer does not capitalize gas")

	tx := f.txStore.Get("0xmove", model.NetworkEthereum, testWallet)
	require.NotNil(t, tx)
	assert.Equal(t, model.TxTypeInternalTransfer, tx.Type)
}

func TestProcessBatch_UnpricedEventFlagged(t *testing.T) {
	f := newFixture(t)
	raw := rawTx(t, "0xin", 1_000_100, map[string]any{
		"gas_used":      "0",
		"gas_price_wei": "0",
		"events": []map[string]any{
			{
				"type":           "EXTERNAL_INBOUND",
				"asset_symbol":   "WETH",
				"asset_contract": wethContract,
				"quantity_delta": "1",
			},
		},
	})
	require.NoError(t, f.rawStore.Upsert(context.Background(), raw))

	require.NoError(t, f.processor.ProcessBatch(context.Background(), testWallet, model.NetworkEthereum, nil))

	events, err := f.eventStore.ListByTxHash(context.Background(), "0xin", model.NetworkEthereum, testWallet)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.NotNil(t, events[0].FlagCode)
	assert.Equal(t, model.FlagPricePending, *events[0].FlagCode)
	assert.False(t, events[0].FlagResolved)

	tx := f.txStore.Get("0xin", model.NetworkEthereum, testWallet)
	require.NotNil(t, tx)
	assert.Equal(t, model.TxStatusPendingPrice, tx.Status)
	assert.Equal(t, model.TxTypeExternalTransferIn, tx.Type)
}

func TestProcessBatch_BadPayloadIsolated(t *testing.T) {
	f := newFixture(t)
	bad := &model.RawTransaction{
		TxHash:               "0xbad",
		WalletAddress:        testWallet,
		NetworkID:            model.NetworkEthereum,
		RawData:              json.RawMessage(`{not json`),
		ClassificationStatus: model.ClassificationPending,
	}
	require.NoError(t, f.rawStore.Upsert(context.Background(), bad))
	good := rawTx(t, "0xgood", 1_000_100, swapPayload())
	require.NoError(t, f.rawStore.Upsert(context.Background(), good))

	require.NoError(t, f.processor.ProcessBatch(context.Background(), testWallet, model.NetworkEthereum, nil))

	assert.Equal(t, model.ClassificationFailed,
		f.rawStore.Status("0xbad", model.NetworkEthereum, testWallet))
	assert.Equal(t, model.ClassificationComplete,
		f.rawStore.Status("0xgood", model.NetworkEthereum, testWallet))
}

func TestProcessBatch_MissingAnchorFails(t *testing.T) {
	f := newFixture(t)
	bn := int64(50_000_100)
	raw := &model.RawTransaction{
		TxHash:               "0xpoly",
		WalletAddress:        testWallet,
		NetworkID:            model.NetworkPolygon,
		BlockNumber:          &bn,
		ClassificationStatus: model.ClassificationPending,
	}
	data, err := json.Marshal(swapPayload())
	require.NoError(t, err)
	raw.RawData = data
	require.NoError(t, f.rawStore.Upsert(context.Background(), raw))

	require.NoError(t, f.processor.ProcessBatch(context.Background(), testWallet, model.NetworkPolygon, nil))

	assert.Equal(t, model.ClassificationFailed,
		f.rawStore.Status("0xpoly", model.NetworkPolygon, testWallet),
		"uncalibrated network fails the transaction instead of retrying")
	assert.Nil(t, f.txStore.Get("0xpoly", model.NetworkPolygon, testWallet))
}

func TestProcessBatch_ZeroDeltaFails(t *testing.T) {
	f := newFixture(t)
	raw := rawTx(t, "0xzero", 1_000_100, map[string]any{
		"gas_used":      "0",
		"gas_price_wei": "0",
		"events": []map[string]any{
			{
				"type":           "EXTERNAL_INBOUND",
				"asset_symbol":   "WETH",
				"asset_contract": wethContract,
				"quantity_delta": "0",
			},
		},
	})
	require.NoError(t, f.rawStore.Upsert(context.Background(), raw))

	require.NoError(t, f.processor.ProcessBatch(context.Background(), testWallet, model.NetworkEthereum, nil))

	assert.Equal(t, model.ClassificationFailed,
		f.rawStore.Status("0xzero", model.NetworkEthereum, testWallet))
}

func TestGasCostUsd(t *testing.T) {
	got := gasCostUsd(
		decimal.NewFromInt(21000),
		decimal.NewFromInt(30_000_000_000),
		decimal.NewFromInt(4000),
	)
	assert.True(t, got.Equal(decimal.RequireFromString("2.52")), "got %s", got)

	assert.True(t, gasCostUsd(decimal.NewFromInt(21000), decimal.NewFromInt(1), decimal.Zero).IsZero(),
		"unknown native price yields zero gas cost")
}
