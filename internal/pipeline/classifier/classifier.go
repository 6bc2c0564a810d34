// Package classifier turns raw on-chain transactions into priced,
// sign-consistent economic events and multi-leg normalized transactions.
package classifier

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerkit/txledger/internal/domain/model"
)

// RawEvent is one economic effect decoded from a raw transaction by the
// network-aware classifier collaborator, before normalization.
type RawEvent struct {
	EventType     model.EventType
	AssetSymbol   string
	AssetContract string
	QuantityDelta decimal.Decimal
	// Counterparty is the other address involved, when known. Used to
	// detect transfers between wallets tracked in the same session.
	Counterparty string
	// UnitPriceUsd carries an explicit price when the classifier already
	// knows one (e.g. manual overrides embedded in provider data).
	UnitPriceUsd *decimal.Decimal
}

// Classification is the decoded view of one raw transaction.
type Classification struct {
	Events      []RawEvent
	GasUsed     decimal.Decimal
	GasPriceWei decimal.Decimal
	// BlockTime is set when the network embeds the timestamp in the raw
	// payload (Solana); otherwise zero and estimated from block number.
	BlockTime *time.Time
}

// Classifier is the network-aware decoding collaborator. Implementations
// parse provider-specific raw payloads; the processor stays transport and
// network agnostic.
type Classifier interface {
	Classify(ctx context.Context, raw *model.RawTransaction) (*Classification, error)
}
