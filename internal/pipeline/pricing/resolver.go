// Package pricing resolves historical USD prices for normalized transaction
// legs through an ordered resolver chain and advances transaction status.
package pricing

import (
	"context"

	"github.com/ledgerkit/txledger/internal/domain/model"
	"github.com/ledgerkit/txledger/internal/metrics"
)

// Resolver answers a historical price request. Resolvers never fail hard:
// any upstream failure is reported as an unknown result so the pipeline
// keeps moving and retries on a later pass.
type Resolver interface {
	Resolve(ctx context.Context, req model.PriceRequest) model.PriceResult
}

// Chain evaluates resolvers in fixed order, short-circuiting on the first
// known result.
type Chain struct {
	resolvers []Resolver
}

func NewChain(resolvers ...Resolver) *Chain {
	return &Chain{resolvers: resolvers}
}

func (c *Chain) Resolve(ctx context.Context, req model.PriceRequest) model.PriceResult {
	for _, r := range c.resolvers {
		if res := r.Resolve(ctx, req); res.Known {
			metrics.PricingResolutions.WithLabelValues(string(res.Source)).Inc()
			return res
		}
	}
	return model.UnknownPrice()
}
