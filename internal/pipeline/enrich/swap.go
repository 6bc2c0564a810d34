// Package enrich derives USD prices for swap legs during classification,
// before persistence, when one side of the swap is a known stablecoin.
package enrich

import (
	"github.com/shopspring/decimal"

	"github.com/ledgerkit/txledger/internal/domain/model"
)

// StablecoinRegistry answers whether a contract is a known USD stablecoin.
type StablecoinRegistry interface {
	IsStablecoin(contract string) bool
}

// SwapPricer prices swap legs inline. Enrichment is idempotent: a second run
// over the same event set produces identical results.
type SwapPricer struct {
	registry StablecoinRegistry
}

func NewSwapPricer(registry StablecoinRegistry) *SwapPricer {
	return &SwapPricer{registry: registry}
}

// Enrich prices the swap events of one transaction in place. It applies only
// when the transaction has exactly one distinct sell asset and one distinct
// buy asset; multi-hop swaps with more assets per side are ambiguous and
// left untouched for the historical chain.
func (p *SwapPricer) Enrich(events []*model.EconomicEvent) {
	var sells, buys []*model.EconomicEvent
	for _, e := range events {
		switch e.EventType {
		case model.EventSwapSell:
			sells = append(sells, e)
		case model.EventSwapBuy:
			buys = append(buys, e)
		}
	}
	if len(sells) == 0 || len(buys) == 0 {
		return
	}

	sellAsset, ok := singleAsset(sells)
	if !ok {
		return
	}
	buyAsset, ok := singleAsset(buys)
	if !ok {
		return
	}

	sellStable := p.registry.IsStablecoin(sellAsset)
	buyStable := p.registry.IsStablecoin(buyAsset)

	switch {
	case sellStable && buyStable:
		priceAll(sells, decimal.NewFromInt(1), model.PriceSourceStablecoin)
		priceAll(buys, decimal.NewFromInt(1), model.PriceSourceStablecoin)
	case sellStable:
		deriveSide(sells, buys)
	case buyStable:
		deriveSide(buys, sells)
	}
}

// singleAsset returns the side's asset contract when all events share one.
func singleAsset(events []*model.EconomicEvent) (string, bool) {
	contract := events[0].AssetContract
	for _, e := range events[1:] {
		if e.AssetContract != contract {
			return "", false
		}
	}
	return contract, true
}

// deriveSide prices the stablecoin side at $1.00 and derives the other
// side's price as stableTotalAbsQty / otherTotalAbsQty. Absolute quantities
// are summed across events to support multiple log entries for one asset.
// Zero totals on either side leave the non-stablecoin side unpriced.
func deriveSide(stableSide, otherSide []*model.EconomicEvent) {
	priceAll(stableSide, decimal.NewFromInt(1), model.PriceSourceStablecoin)

	stableTotal := totalAbs(stableSide)
	otherTotal := totalAbs(otherSide)
	if stableTotal.IsZero() || otherTotal.IsZero() {
		return
	}
	price := stableTotal.DivRound(otherTotal, model.ValueScale)
	priceAll(otherSide, price, model.PriceSourceSwapDerived)
}

func totalAbs(events []*model.EconomicEvent) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range events {
		sum = sum.Add(e.QuantityDelta.Abs())
	}
	return sum
}

func priceAll(events []*model.EconomicEvent, price decimal.Decimal, source model.PriceSource) {
	for _, e := range events {
		e.SetPrice(price, source)
	}
}
