package pricing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerkit/txledger/internal/cache"
	"github.com/ledgerkit/txledger/internal/domain/model"
	"github.com/ledgerkit/txledger/internal/metrics"
	"github.com/ledgerkit/txledger/internal/priceapi"
)

// CoinIDMapper maps asset contracts to external API coin identifiers.
type CoinIDMapper interface {
	CoinID(contract string) (string, bool)
}

// HistoricalPriceAPI is the external price collaborator boundary.
type HistoricalPriceAPI interface {
	HistoricalPrice(ctx context.Context, coinID string, date time.Time) (decimal.Decimal, error)
}

type cacheKey struct {
	Contract string
	Date     string // UTC calendar date, YYYY-MM-DD
}

type cachedLookup struct {
	price decimal.Decimal
	found bool
}

// ExternalResolver looks up historical prices by (coin id, UTC calendar
// date). Positive and negative lookups are both cached so a contract the API
// does not know cannot burn the rate budget every pass.
type ExternalResolver struct {
	api    HistoricalPriceAPI
	mapper CoinIDMapper
	cache  *cache.LRU[cacheKey, cachedLookup]
	logger *slog.Logger
}

func NewExternalResolver(api HistoricalPriceAPI, mapper CoinIDMapper, cacheSize int, cacheTTL time.Duration, logger *slog.Logger) *ExternalResolver {
	return &ExternalResolver{
		api:    api,
		mapper: mapper,
		cache:  cache.NewLRU[cacheKey, cachedLookup](cacheSize, cacheTTL),
		logger: logger.With("component", "external_resolver"),
	}
}

func (r *ExternalResolver) Resolve(ctx context.Context, req model.PriceRequest) model.PriceResult {
	coinID, ok := r.mapper.CoinID(req.AssetContract)
	if !ok {
		return model.UnknownPrice()
	}

	key := cacheKey{Contract: req.AssetContract, Date: req.Timestamp.UTC().Format("2006-01-02")}
	if hit, ok := r.cache.Get(key); ok {
		metrics.PriceAPICacheHits.Inc()
		if !hit.found {
			return model.UnknownPrice()
		}
		return model.KnownPrice(hit.price, model.PriceSourceExternalAPI)
	}

	price, err := r.api.HistoricalPrice(ctx, coinID, req.Timestamp)
	if err != nil {
		if errors.Is(err, priceapi.ErrNotFound) {
			r.cache.Put(key, cachedLookup{})
		} else {
			// Transient API failure: do not cache, retry on a later pass.
			r.logger.Warn("historical price lookup failed",
				"contract", req.AssetContract,
				"coin_id", coinID,
				"error", err,
			)
		}
		return model.UnknownPrice()
	}

	r.cache.Put(key, cachedLookup{price: price, found: true})
	return model.KnownPrice(price, model.PriceSourceExternalAPI)
}
