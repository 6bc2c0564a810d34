package classifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerkit/txledger/internal/cache"
	"github.com/ledgerkit/txledger/internal/config"
	"github.com/ledgerkit/txledger/internal/domain/model"
	"github.com/ledgerkit/txledger/internal/pipeline/pricing"
)

type nativePriceKey struct {
	Network model.Network
	Date    string // UTC calendar date, YYYY-MM-DD
}

// NativePricer resolves the USD price of a network's gas asset at a calendar
// date, cached per date. A missing price yields zero so gas cost never
// blocks classification.
type NativePricer struct {
	api      pricing.HistoricalPriceAPI
	registry *config.AssetRegistry
	cache    *cache.LRU[nativePriceKey, decimal.Decimal]
	logger   *slog.Logger
}

func NewNativePricer(api pricing.HistoricalPriceAPI, registry *config.AssetRegistry, logger *slog.Logger) *NativePricer {
	return &NativePricer{
		api:      api,
		registry: registry,
		cache:    cache.NewLRU[nativePriceKey, decimal.Decimal](4096, 24*time.Hour),
		logger:   logger.With("component", "native_pricer"),
	}
}

// PriceAt returns the native asset's USD price on the UTC date of ts, or
// zero when unknown.
func (p *NativePricer) PriceAt(ctx context.Context, network model.Network, ts time.Time) decimal.Decimal {
	key := nativePriceKey{Network: network, Date: ts.UTC().Format("2006-01-02")}
	if price, ok := p.cache.Get(key); ok {
		return price
	}

	native, ok := p.registry.Native(network)
	if !ok || native.CoinID == "" {
		return decimal.Zero
	}

	price, err := p.api.HistoricalPrice(ctx, native.CoinID, ts)
	if err != nil {
		p.logger.Warn("native price lookup failed",
			"network", network,
			"date", key.Date,
			"error", err,
		)
		return decimal.Zero
	}

	p.cache.Put(key, price)
	return price
}
