package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxType is the canonical shape of a normalized transaction.
type TxType string

const (
	TxTypeSwap                TxType = "SWAP"
	TxTypeExternalTransferIn  TxType = "EXTERNAL_TRANSFER_IN"
	TxTypeExternalTransferOut TxType = "EXTERNAL_TRANSFER_OUT"
	TxTypeInternalTransfer    TxType = "INTERNAL_TRANSFER"
	TxTypeManual              TxType = "MANUAL"
)

// LegRole is the direction of one leg within a transaction.
type LegRole string

const (
	LegRoleBuy      LegRole = "BUY"
	LegRoleSell     LegRole = "SELL"
	LegRoleTransfer LegRole = "TRANSFER"
)

// Missing-data reason codes accumulated while a transaction waits in a
// pending status.
const (
	ReasonMissingLegs             = "MISSING_LEGS"
	ReasonMissingQuantity         = "MISSING_QUANTITY"
	ReasonMissingAssetContract    = "MISSING_ASSET_CONTRACT"
	ReasonMissingSwapLeg          = "MISSING_SWAP_LEG"
	ReasonClarificationUnresolved = "CLARIFICATION_UNRESOLVED"
	ReasonInconsistentSwapLegs    = "INCONSISTENT_SWAP_LEGS"
	ReasonPriceUnresolvedPrefix   = "PRICE_UNRESOLVED:"
)

// Leg is one asset-quantity effect within a normalized transaction.
type Leg struct {
	Role             LegRole          `db:"role" json:"role"`
	AssetContract    string           `db:"asset_contract" json:"asset_contract"`
	AssetSymbol      string           `db:"asset_symbol" json:"asset_symbol"`
	QuantityDelta    decimal.Decimal  `db:"quantity_delta" json:"quantity_delta"`
	UnitPriceUsd     *decimal.Decimal `db:"unit_price_usd" json:"unit_price_usd,omitempty"`
	ValueUsd         *decimal.Decimal `db:"value_usd" json:"value_usd,omitempty"`
	PriceSource      PriceSource      `db:"price_source" json:"price_source"`
	RealisedPnlUsd   *decimal.Decimal `db:"realised_pnl_usd" json:"realised_pnl_usd,omitempty"`
	AvcoAtTimeOfSale *decimal.Decimal `db:"avco_at_time_of_sale" json:"avco_at_time_of_sale,omitempty"`
	Inferred         bool             `db:"inferred" json:"inferred"`
	InferredReason   string           `db:"inferred_reason" json:"inferred_reason,omitempty"`
	Confidence       float64          `db:"confidence" json:"confidence,omitempty"`
}

// Priced reports whether the leg carries a resolved unit price.
func (l *Leg) Priced() bool {
	return l.UnitPriceUsd != nil
}

// SetPrice assigns a unit price and recomputes the leg value at scale 18,
// half-up.
func (l *Leg) SetPrice(price decimal.Decimal, source PriceSource) {
	p := price
	l.UnitPriceUsd = &p
	l.PriceSource = source
	v := price.Mul(l.QuantityDelta.Abs()).Round(ValueScale)
	l.ValueUsd = &v
}

// NormalizedTransaction is the canonical multi-leg view of one transaction
// for one wallet. Unique per (tx hash, network, wallet) or per client id.
type NormalizedTransaction struct {
	ID                    uuid.UUID  `db:"id"`
	TxHash                string     `db:"tx_hash"`
	ClientID              *string    `db:"client_id"`
	NetworkID             Network    `db:"network_id"`
	WalletAddress         string     `db:"wallet_address"`
	BlockTimestamp        time.Time  `db:"block_timestamp"`
	Type                  TxType     `db:"type"`
	Legs                  []Leg      `db:"legs"`
	Status                TxStatus   `db:"status"`
	MissingDataReasons    []string   `db:"missing_data_reasons"`
	ClarificationAttempts int        `db:"clarification_attempts"`
	PricingAttempts       int        `db:"pricing_attempts"`
	StatAttempts          int        `db:"stat_attempts"`
	ConfirmedAt           *time.Time `db:"confirmed_at"`
	CreatedAt             time.Time  `db:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"`
}

// AddReason appends a reason code, preserving order and uniqueness.
func (t *NormalizedTransaction) AddReason(code string) {
	for _, r := range t.MissingDataReasons {
		if r == code {
			return
		}
	}
	t.MissingDataReasons = append(t.MissingDataReasons, code)
}

// ClearReasons drops all accumulated reason codes.
func (t *NormalizedTransaction) ClearReasons() {
	t.MissingDataReasons = nil
}

// Merge folds an incoming re-classification write into the receiver,
// preserving identity. If the existing status is immutable the merge only
// touches the update timestamp; otherwise all mutable fields are overwritten
// and the status is the rank-max of both sides.
func (t *NormalizedTransaction) Merge(incoming *NormalizedTransaction, now time.Time) {
	t.UpdatedAt = now
	if t.Status.Immutable() {
		return
	}
	t.BlockTimestamp = incoming.BlockTimestamp
	t.Type = incoming.Type
	t.Legs = incoming.Legs
	t.MissingDataReasons = incoming.MissingDataReasons
	t.ClarificationAttempts = incoming.ClarificationAttempts
	t.PricingAttempts = incoming.PricingAttempts
	t.StatAttempts = incoming.StatAttempts
	t.Status = MaxStatus(t.Status, incoming.Status)
}
