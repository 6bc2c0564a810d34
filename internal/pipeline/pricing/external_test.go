package pricing

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/txledger/internal/config"
	"github.com/ledgerkit/txledger/internal/domain/model"
	"github.com/ledgerkit/txledger/internal/priceapi"
)

// fakeAPI serves canned historical prices and records call counts per coin.
type fakeAPI struct {
	prices map[string]decimal.Decimal
	errs   map[string]error
	calls  map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		prices: make(map[string]decimal.Decimal),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeAPI) HistoricalPrice(_ context.Context, coinID string, _ time.Time) (decimal.Decimal, error) {
	f.calls[coinID]++
	if err, ok := f.errs[coinID]; ok {
		return decimal.Zero, err
	}
	if p, ok := f.prices[coinID]; ok {
		return p, nil
	}
	return decimal.Zero, priceapi.ErrNotFound
}

func testLogger() *slog.Logger {
	return slog.Default()
}

func newExternal(api *fakeAPI) *ExternalResolver {
	registry := config.NewAssetRegistry(nil, map[string]string{"0xweth": "weth"}, nil)
	return NewExternalResolver(api, registry, 16, time.Hour, testLogger())
}

func TestExternalResolver_ResolvesAndCaches(t *testing.T) {
	api := newFakeAPI()
	api.prices["weth"] = decimal.NewFromInt(4000)
	r := newExternal(api)

	ts := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	req := model.PriceRequest{AssetContract: "0xweth", Timestamp: ts}

	res := r.Resolve(context.Background(), req)
	require.True(t, res.Known)
	assert.True(t, res.Price.Equal(decimal.NewFromInt(4000)))
	assert.Equal(t, model.PriceSourceExternalAPI, res.Source)

	// Same UTC date, different time of day: served from cache.
	req.Timestamp = ts.Add(5 * time.Hour)
	res = r.Resolve(context.Background(), req)
	require.True(t, res.Known)
	assert.Equal(t, 1, api.calls["weth"])

	// Different date misses the cache.
	req.Timestamp = ts.AddDate(0, 0, 1)
	r.Resolve(context.Background(), req)
	assert.Equal(t, 2, api.calls["weth"])
}

func TestExternalResolver_UnmappedContract(t *testing.T) {
	api := newFakeAPI()
	r := newExternal(api)

	res := r.Resolve(context.Background(), model.PriceRequest{AssetContract: "0xunknown", Timestamp: time.Now()})

	assert.False(t, res.Known)
	assert.Empty(t, api.calls)
}

func TestExternalResolver_CachesNegativeLookups(t *testing.T) {
	api := newFakeAPI()
	r := newExternal(api)

	req := model.PriceRequest{AssetContract: "0xweth", Timestamp: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)}

	res := r.Resolve(context.Background(), req)
	assert.False(t, res.Known)

	res = r.Resolve(context.Background(), req)
	assert.False(t, res.Known)
	assert.Equal(t, 1, api.calls["weth"], "not-found result must be cached")
}

func TestExternalResolver_TransientFailureNotCached(t *testing.T) {
	api := newFakeAPI()
	api.errs["weth"] = errors.New("price api http status 503")
	r := newExternal(api)

	req := model.PriceRequest{AssetContract: "0xweth", Timestamp: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)}

	res := r.Resolve(context.Background(), req)
	assert.False(t, res.Known)

	// Failure healed: the next pass should reach the API again.
	delete(api.errs, "weth")
	api.prices["weth"] = decimal.NewFromInt(4000)

	res = r.Resolve(context.Background(), req)
	require.True(t, res.Known)
	assert.Equal(t, 2, api.calls["weth"])
}
