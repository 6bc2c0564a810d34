package pricing

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/ledgerkit/txledger/internal/domain/model"
)

// StablecoinRegistry answers whether a contract is a known USD stablecoin.
type StablecoinRegistry interface {
	IsStablecoin(contract string) bool
}

// StablecoinResolver prices registry-known stablecoins at exactly 1.00,
// regardless of the request timestamp.
type StablecoinResolver struct {
	registry StablecoinRegistry
}

func NewStablecoinResolver(registry StablecoinRegistry) *StablecoinResolver {
	return &StablecoinResolver{registry: registry}
}

var one = decimal.NewFromInt(1)

func (r *StablecoinResolver) Resolve(_ context.Context, req model.PriceRequest) model.PriceResult {
	if r.registry.IsStablecoin(req.AssetContract) {
		return model.KnownPrice(one, model.PriceSourceStablecoin)
	}
	return model.UnknownPrice()
}
