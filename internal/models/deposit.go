package models

import (
	"time"

	"github.com/google/uuid"
)

// Deposit kinds, derived from the transfer comment by the indexer.
const (
	DepositKindTopup        = "topup"        // credits the sender's account
	DepositKindContribution = "contribution" // comment "contribute", feeds the desk credit pool
)

// Deposit is an inbound hot-wallet transfer observed by the indexer. TxHash
// is unique so replayed blocks do not double-credit.
type Deposit struct {
	ID         uuid.UUID `json:"id"`
	TxHash     string    `json:"tx_hash"`
	TxLT       uint64    `json:"tx_lt"`
	Sender     string    `json:"sender"`
	AmountNano int64     `json:"amount_nano"`
	Comment    string    `json:"comment"`
	Kind       string    `json:"kind"`
	CreatedAt  time.Time `json:"created_at"`
}
