package models

import (
	"time"

	"github.com/google/uuid"
)

// Payout kinds
const (
	PayoutKindSellerAsset = "seller_asset"
	PayoutKindBuyerAsset  = "buyer_asset"
	PayoutKindDeskFund    = "desk_fund"
	PayoutKindAccount     = "account"
)

// Payout statuses
const (
	PayoutStatusPending = "pending"
	PayoutStatusSending = "sending"
	PayoutStatusSent    = "sent"
	PayoutStatusFailed  = "failed"
)

// Payout is a queued on-chain transfer from the hot wallet, picked up by
// the worker. A row is committed to sending before the wallet call and only
// returns to pending on a confirmed send failure, so a worker crash leaves
// it stuck in sending for an operator rather than re-sendable.
type Payout struct {
	ID          uuid.UUID  `json:"id"`
	DealID      *uuid.UUID `json:"deal_id,omitempty"`
	Address     string     `json:"address"`
	AmountNano  int64      `json:"amount_nano"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	TxHash      *string    `json:"tx_hash,omitempty"`
	Attempts    int        `json:"attempts"`
	LastError   *string    `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
