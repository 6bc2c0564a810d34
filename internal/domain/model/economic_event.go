package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType categorizes the economic effect of a transaction on one asset.
type EventType string

const (
	EventSwapBuy             EventType = "SWAP_BUY"
	EventSwapSell            EventType = "SWAP_SELL"
	EventExternalInbound     EventType = "EXTERNAL_INBOUND"
	EventExternalTransferOut EventType = "EXTERNAL_TRANSFER_OUT"
	EventInternalTransfer    EventType = "INTERNAL_TRANSFER"
	EventManualCompensating  EventType = "MANUAL_COMPENSATING"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventSwapBuy, EventSwapSell, EventExternalInbound,
		EventExternalTransferOut, EventInternalTransfer, EventManualCompensating:
		return true
	}
	return false
}

// PriceSource records where a USD price came from.
type PriceSource string

const (
	PriceSourceStablecoin  PriceSource = "STABLECOIN"
	PriceSourceSwapDerived PriceSource = "SWAP_DERIVED"
	PriceSourceExternalAPI PriceSource = "EXTERNAL_API"
	PriceSourceManual      PriceSource = "MANUAL"
	PriceSourceUnknown     PriceSource = "UNKNOWN"
)

// Flag codes for pending-price bookkeeping.
const (
	FlagPricePending = "PRICE_PENDING"
)

// GasBasisPolicy decides whether gas spent on a given event type is added to
// the asset's cost basis. Gas capitalizes on acquisition only; disposals
// deduct it as an expense downstream.
type GasBasisPolicy map[EventType]bool

// DefaultGasBasisPolicy returns the standard acquisition/disposal split.
// Inbound legs of internal transfers capitalize gas; outbound legs do not.
func DefaultGasBasisPolicy() GasBasisPolicy {
	return GasBasisPolicy{
		EventSwapBuy:             true,
		EventExternalInbound:     true,
		EventInternalTransfer:    true,
		EventSwapSell:            false,
		EventExternalTransferOut: false,
		EventManualCompensating:  false,
	}
}

// IncludeGas reports whether gas is included in basis for the event type.
// For internal transfers the sign of the quantity delta decides: only the
// receiving side capitalizes gas.
func (p GasBasisPolicy) IncludeGas(t EventType, quantityDelta decimal.Decimal) bool {
	if t == EventInternalTransfer {
		return quantityDelta.Sign() > 0
	}
	return p[t]
}

// EconomicEvent is one economic effect of a transaction on one asset for one
// wallet. On-chain events are unique per (tx hash, network, wallet, asset
// contract); manual events are unique per client id. QuantityDelta is signed
// (positive received, negative sent) and never zero for a stored event.
type EconomicEvent struct {
	ID                 uuid.UUID        `db:"id"`
	TxHash             string           `db:"tx_hash"`
	ClientID           *string          `db:"client_id"`
	NetworkID          Network          `db:"network_id"`
	WalletAddress      string           `db:"wallet_address"`
	BlockTimestamp     time.Time        `db:"block_timestamp"`
	EventType          EventType        `db:"event_type"`
	AssetSymbol        string           `db:"asset_symbol"`
	AssetContract      string           `db:"asset_contract"`
	QuantityDelta      decimal.Decimal  `db:"quantity_delta"`
	PriceUsd           *decimal.Decimal `db:"price_usd"`
	PriceSource        PriceSource      `db:"price_source"`
	TotalValueUsd      *decimal.Decimal `db:"total_value_usd"`
	GasCostUsd         decimal.Decimal  `db:"gas_cost_usd"`
	GasIncludedInBasis bool             `db:"gas_included_in_basis"`
	FlagCode           *string          `db:"flag_code"`
	FlagResolved       bool             `db:"flag_resolved"`
	CreatedAt          time.Time        `db:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at"`
}

// Priced reports whether the event carries a resolved USD price.
func (e *EconomicEvent) Priced() bool {
	return e.PriceUsd != nil && e.PriceSource != PriceSourceUnknown
}

// SetPrice assigns a unit price and recomputes the total value at scale 18,
// half-up.
func (e *EconomicEvent) SetPrice(price decimal.Decimal, source PriceSource) {
	p := price
	e.PriceUsd = &p
	e.PriceSource = source
	total := price.Mul(e.QuantityDelta.Abs()).Round(ValueScale)
	e.TotalValueUsd = &total
	e.FlagCode = nil
	e.FlagResolved = true
}

// ValueScale is the decimal scale used for persisted USD values.
const ValueScale = 18
