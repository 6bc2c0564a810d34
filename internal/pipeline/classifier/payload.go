package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerkit/txledger/internal/domain/model"
)

// payloadEvent mirrors the decoded-event schema the ingestion sidecar embeds
// in raw_data. Quantities and prices travel as strings to survive JSON number
// precision limits.
type payloadEvent struct {
	Type          string  `json:"type"`
	AssetSymbol   string  `json:"asset_symbol"`
	AssetContract string  `json:"asset_contract"`
	QuantityDelta string  `json:"quantity_delta"`
	Counterparty  string  `json:"counterparty,omitempty"`
	UnitPriceUsd  *string `json:"unit_price_usd,omitempty"`
}

type payload struct {
	BlockTime   *int64         `json:"blockTime,omitempty"`
	GasUsed     string         `json:"gas_used"`
	GasPriceWei string         `json:"gas_price_wei"`
	Events      []payloadEvent `json:"events"`
}

// PayloadClassifier decodes raw transactions whose provider already embeds
// classified events in the stored payload. It performs no network calls.
type PayloadClassifier struct{}

func NewPayloadClassifier() *PayloadClassifier {
	return &PayloadClassifier{}
}

func (c *PayloadClassifier) Classify(_ context.Context, raw *model.RawTransaction) (*Classification, error) {
	var p payload
	if err := json.Unmarshal(raw.RawData, &p); err != nil {
		return nil, fmt.Errorf("decode raw payload: %w", err)
	}

	out := &Classification{}
	if p.BlockTime != nil {
		t := time.Unix(*p.BlockTime, 0).UTC()
		out.BlockTime = &t
	}

	var err error
	if out.GasUsed, err = parseDec(p.GasUsed); err != nil {
		return nil, fmt.Errorf("gas_used: %w", err)
	}
	if out.GasPriceWei, err = parseDec(p.GasPriceWei); err != nil {
		return nil, fmt.Errorf("gas_price_wei: %w", err)
	}

	for i, pe := range p.Events {
		ev := RawEvent{
			EventType:     model.EventType(pe.Type),
			AssetSymbol:   pe.AssetSymbol,
			AssetContract: pe.AssetContract,
			Counterparty:  pe.Counterparty,
		}
		if !ev.EventType.Valid() {
			return nil, fmt.Errorf("event %d: unknown type %q", i, pe.Type)
		}
		if ev.QuantityDelta, err = decimal.NewFromString(pe.QuantityDelta); err != nil {
			return nil, fmt.Errorf("event %d quantity_delta %q: %w", i, pe.QuantityDelta, err)
		}
		if pe.UnitPriceUsd != nil {
			price, err := decimal.NewFromString(*pe.UnitPriceUsd)
			if err != nil {
				return nil, fmt.Errorf("event %d unit_price_usd %q: %w", i, *pe.UnitPriceUsd, err)
			}
			ev.UnitPriceUsd = &price
		}
		out.Events = append(out.Events, ev)
	}
	return out, nil
}

func parseDec(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
