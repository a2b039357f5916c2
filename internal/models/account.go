package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is a custody-ledger account keyed by TON address. User accounts
// use the raw wallet address; two internal accounts exist per convention:
// "desk" for the singleton desk and "deal:<uuid>" for each escrow vault.
type Account struct {
	Address         string     `json:"address"`          // raw: 0:<hex>
	AddressFriendly string     `json:"address_friendly"` // EQ.../UQ...
	Network         string     `json:"network"`          // mainnet/testnet
	PublicKey       string     `json:"public_key"`       // hex
	Balance         int64      `json:"balance_nano"`
	Verified        bool       `json:"verified"`
	ConnectedAt     time.Time  `json:"connected_at"`
	DisconnectedAt  *time.Time `json:"disconnected_at,omitempty"`
	IsActive        bool       `json:"is_active"`
}

// EscrowAccountAddress returns the internal ledger address of a deal's
// escrow vault.
func EscrowAccountAddress(dealID uuid.UUID) string {
	return "deal:" + dealID.String()
}

// DeskAccountAddress is the internal ledger address of the desk.
const DeskAccountAddress = "desk"

type TonProofPayload struct {
	ID        uuid.UUID `json:"id"`
	Payload   string    `json:"payload"`
	Address   *string   `json:"-"`
	CreatedAt time.Time `json:"-"`
	ExpiresAt time.Time `json:"-"`
	Used      bool      `json:"-"`
}
