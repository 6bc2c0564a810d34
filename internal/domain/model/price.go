package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SwapCounterpart describes the other leg of a swap, used to derive a price
// for our side from a priced counterpart.
type SwapCounterpart struct {
	AssetContract string
	Amount        decimal.Decimal // counterpart quantity, absolute
	OurAmount     decimal.Decimal // our quantity, absolute
}

// PriceRequest asks for the historical USD price of an asset at an instant.
type PriceRequest struct {
	AssetContract string
	NetworkID     Network
	Timestamp     time.Time
	Counterpart   *SwapCounterpart
}

// PriceResult is either a known (price, source) pair or unknown, never a
// partial answer.
type PriceResult struct {
	Known  bool
	Price  decimal.Decimal
	Source PriceSource
}

// UnknownPrice is the canonical negative result.
func UnknownPrice() PriceResult {
	return PriceResult{Source: PriceSourceUnknown}
}

// KnownPrice builds a positive result.
func KnownPrice(price decimal.Decimal, source PriceSource) PriceResult {
	return PriceResult{Known: true, Price: price, Source: source}
}

// RecalcSignal asks the external cost-basis engine to recompute average cost
// for a wallet, optionally scoped to one network/asset. Delivery is
// at-least-once; consumers must be idempotent.
type RecalcSignal struct {
	WalletAddress string  `json:"wallet_address"`
	NetworkID     Network `json:"network_id,omitempty"`
	AssetContract string  `json:"asset_contract,omitempty"`
}
