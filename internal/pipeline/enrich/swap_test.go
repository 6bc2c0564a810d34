package enrich

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/txledger/internal/config"
	"github.com/ledgerkit/txledger/internal/domain/model"
)

const (
	usdcContract = "0xusdc"
	wethContract = "0xweth"
	wbtcContract = "0xwbtc"
)

func newPricer() *SwapPricer {
	registry := config.NewAssetRegistry([]string{usdcContract, "0xusdt"}, nil, nil)
	return NewSwapPricer(registry)
}

func sell(contract string, qty string) *model.EconomicEvent {
	return &model.EconomicEvent{
		EventType:     model.EventSwapSell,
		AssetContract: contract,
		QuantityDelta: decimal.RequireFromString(qty),
		PriceSource:   model.PriceSourceUnknown,
	}
}

func buy(contract string, qty string) *model.EconomicEvent {
	return &model.EconomicEvent{
		EventType:     model.EventSwapBuy,
		AssetContract: contract,
		QuantityDelta: decimal.RequireFromString(qty),
		PriceSource:   model.PriceSourceUnknown,
	}
}

func TestEnrich_StablecoinSellDerivesBuyPrice(t *testing.T) {
	p := newPricer()
	events := []*model.EconomicEvent{
		sell(usdcContract, "-16"),
		buy(wethContract, "0.004"),
	}

	p.Enrich(events)

	require.True(t, events[0].Priced())
	assert.Equal(t, model.PriceSourceStablecoin, events[0].PriceSource)
	assert.True(t, events[0].PriceUsd.Equal(decimal.NewFromInt(1)))

	require.True(t, events[1].Priced())
	assert.Equal(t, model.PriceSourceSwapDerived, events[1].PriceSource)
	assert.True(t, events[1].PriceUsd.Equal(decimal.NewFromInt(4000)),
		"16 / 0.004 = 4000, got %s", events[1].PriceUsd)
	assert.True(t, events[1].TotalValueUsd.Equal(decimal.NewFromInt(16)))
}

func TestEnrich_StablecoinBuySide(t *testing.T) {
	p := newPricer()
	events := []*model.EconomicEvent{
		sell(wethContract, "-0.5"),
		buy(usdcContract, "2000"),
	}

	p.Enrich(events)

	require.True(t, events[0].Priced())
	assert.Equal(t, model.PriceSourceSwapDerived, events[0].PriceSource)
	assert.True(t, events[0].PriceUsd.Equal(decimal.NewFromInt(4000)))
}

func TestEnrich_SumsMultipleEventsPerAsset(t *testing.T) {
	p := newPricer()
	events := []*model.EconomicEvent{
		sell(usdcContract, "-10"),
		sell(usdcContract, "-6"),
		buy(wethContract, "0.004"),
	}

	p.Enrich(events)

	require.True(t, events[2].Priced())
	assert.True(t, events[2].PriceUsd.Equal(decimal.NewFromInt(4000)))
}

func TestEnrich_BothSidesStable(t *testing.T) {
	p := newPricer()
	events := []*model.EconomicEvent{
		sell(usdcContract, "-100"),
		buy("0xusdt", "99.95"),
	}

	p.Enrich(events)

	for _, ev := range events {
		require.True(t, ev.Priced())
		assert.Equal(t, model.PriceSourceStablecoin, ev.PriceSource)
		assert.True(t, ev.PriceUsd.Equal(decimal.NewFromInt(1)))
	}
}

func TestEnrich_MultiHopLeftUntouched(t *testing.T) {
	p := newPricer()
	events := []*model.EconomicEvent{
		sell(usdcContract, "-16"),
		buy(wethContract, "0.002"),
		buy(wbtcContract, "0.0001"),
	}

	p.Enrich(events)

	for _, ev := range events {
		assert.False(t, ev.Priced(), "%s should stay unpriced", ev.AssetContract)
	}
}

func TestEnrich_NeitherSideStableNoOp(t *testing.T) {
	p := newPricer()
	events := []*model.EconomicEvent{
		sell(wbtcContract, "-0.01"),
		buy(wethContract, "0.15"),
	}

	p.Enrich(events)

	assert.False(t, events[0].Priced())
	assert.False(t, events[1].Priced())
}

func TestEnrich_ZeroQuantityGuard(t *testing.T) {
	p := newPricer()
	events := []*model.EconomicEvent{
		sell(usdcContract, "-16"),
		buy(wethContract, "0"),
	}

	p.Enrich(events)

	// Stablecoin side still priced, derived side skipped.
	assert.True(t, events[0].Priced())
	assert.False(t, events[1].Priced())
}

func TestEnrich_Idempotent(t *testing.T) {
	p := newPricer()
	events := []*model.EconomicEvent{
		sell(usdcContract, "-16"),
		buy(wethContract, "0.004"),
	}

	p.Enrich(events)
	first := *events[1].PriceUsd

	p.Enrich(events)

	assert.True(t, events[1].PriceUsd.Equal(first))
	assert.Equal(t, model.PriceSourceSwapDerived, events[1].PriceSource)
}

func TestEnrich_NonSwapEventsIgnored(t *testing.T) {
	p := newPricer()
	transfer := &model.EconomicEvent{
		EventType:     model.EventExternalInbound,
		AssetContract: wethContract,
		QuantityDelta: decimal.NewFromInt(1),
		PriceSource:   model.PriceSourceUnknown,
	}

	p.Enrich([]*model.EconomicEvent{transfer})

	assert.False(t, transfer.Priced())
}
