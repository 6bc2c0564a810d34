package pricing

import (
	"context"

	"github.com/ledgerkit/txledger/internal/domain/model"
)

// SwapDerivedResolver derives a price from the swap counterpart leg when the
// counterpart itself resolves to a known price. The counterpart is priced
// through an inner chain (stablecoin, then external API) to avoid mutual
// recursion between two swap-derived lookups.
type SwapDerivedResolver struct {
	counterpart Resolver
}

func NewSwapDerivedResolver(counterpart Resolver) *SwapDerivedResolver {
	return &SwapDerivedResolver{counterpart: counterpart}
}

func (r *SwapDerivedResolver) Resolve(ctx context.Context, req model.PriceRequest) model.PriceResult {
	cp := req.Counterpart
	if cp == nil {
		return model.UnknownPrice()
	}
	// Zero on either side means the ratio is undefined. Return unknown
	// rather than dividing by zero.
	if cp.OurAmount.IsZero() || cp.Amount.IsZero() {
		return model.UnknownPrice()
	}

	cpRes := r.counterpart.Resolve(ctx, model.PriceRequest{
		AssetContract: cp.AssetContract,
		NetworkID:     req.NetworkID,
		Timestamp:     req.Timestamp,
	})
	if !cpRes.Known {
		return model.UnknownPrice()
	}

	price := cp.Amount.Mul(cpRes.Price).DivRound(cp.OurAmount, model.ValueScale)
	return model.KnownPrice(price, model.PriceSourceSwapDerived)
}
