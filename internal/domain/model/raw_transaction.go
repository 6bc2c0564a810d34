package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type RawTransaction struct {
	ID                   uuid.UUID            `db:"id"`
	TxHash               string               `db:"tx_hash"`
	WalletAddress        string               `db:"wallet_address"`
	NetworkID            Network              `db:"network_id"`
	BlockNumber          *int64               `db:"block_number"` // nil on block-time networks (Solana)
	RawData              json.RawMessage      `db:"raw_data"`
	ClassificationStatus ClassificationStatus `db:"classification_status"`
	CreatedAt            time.Time            `db:"created_at"`
	UpdatedAt            time.Time            `db:"updated_at"`
}
