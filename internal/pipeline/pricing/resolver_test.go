package pricing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerkit/txledger/internal/config"
	"github.com/ledgerkit/txledger/internal/domain/model"
)

type stubResolver struct {
	result model.PriceResult
	calls  int
}

func (s *stubResolver) Resolve(context.Context, model.PriceRequest) model.PriceResult {
	s.calls++
	return s.result
}

func TestChain_ShortCircuitsOnFirstKnown(t *testing.T) {
	first := &stubResolver{result: model.KnownPrice(decimal.NewFromInt(1), model.PriceSourceStablecoin)}
	second := &stubResolver{result: model.KnownPrice(decimal.NewFromInt(2), model.PriceSourceExternalAPI)}

	res := NewChain(first, second).Resolve(context.Background(), model.PriceRequest{})

	require.True(t, res.Known)
	assert.Equal(t, model.PriceSourceStablecoin, res.Source)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls, "later resolvers must not run")
}

func TestChain_AllUnknown(t *testing.T) {
	r := &stubResolver{result: model.UnknownPrice()}

	res := NewChain(r, r).Resolve(context.Background(), model.PriceRequest{})

	assert.False(t, res.Known)
	assert.Equal(t, model.PriceSourceUnknown, res.Source)
}

func TestStablecoinResolver(t *testing.T) {
	registry := config.NewAssetRegistry([]string{"0xUSDC"}, nil, nil)
	r := NewStablecoinResolver(registry)

	res := r.Resolve(context.Background(), model.PriceRequest{AssetContract: "0xusdc"})
	require.True(t, res.Known, "lookup is case-insensitive")
	assert.True(t, res.Price.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, model.PriceSourceStablecoin, res.Source)

	res = r.Resolve(context.Background(), model.PriceRequest{AssetContract: "0xweth"})
	assert.False(t, res.Known)
}

func TestSwapDerivedResolver(t *testing.T) {
	registry := config.NewAssetRegistry([]string{"0xusdc"}, nil, nil)
	inner := NewChain(NewStablecoinResolver(registry))
	r := NewSwapDerivedResolver(inner)

	testCases := []struct {
		name        string
		counterpart *model.SwapCounterpart
		wantKnown   bool
		wantPrice   string
	}{
		{
			name: "stable counterpart derives price",
			counterpart: &model.SwapCounterpart{
				AssetContract: "0xusdc",
				Amount:        decimal.NewFromInt(16),
				OurAmount:     decimal.RequireFromString("0.004"),
			},
			wantKnown: true,
			wantPrice: "4000",
		},
		{
			name:      "no counterpart",
			wantKnown: false,
		},
		{
			name: "zero our amount",
			counterpart: &model.SwapCounterpart{
				AssetContract: "0xusdc",
				Amount:        decimal.NewFromInt(16),
				OurAmount:     decimal.Zero,
			},
			wantKnown: false,
		},
		{
			name: "zero counterpart amount",
			counterpart: &model.SwapCounterpart{
				AssetContract: "0xusdc",
				Amount:        decimal.Zero,
				OurAmount:     decimal.NewFromInt(1),
			},
			wantKnown: false,
		},
		{
			name: "unpriceable counterpart",
			counterpart: &model.SwapCounterpart{
				AssetContract: "0xobscure",
				Amount:        decimal.NewFromInt(10),
				OurAmount:     decimal.NewFromInt(1),
			},
			wantKnown: false,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			res := r.Resolve(context.Background(), model.PriceRequest{
				AssetContract: "0xweth",
				Counterpart:   tc.counterpart,
			})
			require.Equal(t, tc.wantKnown, res.Known)
			if tc.wantKnown {
				assert.True(t, res.Price.Equal(decimal.RequireFromString(tc.wantPrice)),
					"want %s, got %s", tc.wantPrice, res.Price)
				assert.Equal(t, model.PriceSourceSwapDerived, res.Source)
			}
		})
	}
}
