package dto

import "github.com/otcdesk/backend/internal/ton"

// Auth

type ConnectRequest struct {
	Address         string    `json:"address"`          // raw: "0:abc..."
	AddressFriendly string    `json:"address_friendly"` // "EQ..." / "UQ..."
	Network         string    `json:"network"`
	PublicKey       string    `json:"public_key"` // hex
	Proof           ton.Proof `json:"proof"`
}

// Deals. All amounts are decimal TON strings ("1.23456"); the server works
// in integer nanoTON internally.

type NewDealRequest struct {
	Buyer                string   `json:"buyer"`
	SellerPartner        string   `json:"seller_partner,omitempty"`
	BuyerPartner         string   `json:"buyer_partner,omitempty"`
	PriceTON             string   `json:"price_ton"`
	BuyerIsTaker         bool     `json:"buyer_is_taker"`
	AttachedTON          string   `json:"attached_ton"`
	PaymentWindowSeconds int      `json:"payment_window_seconds,omitempty"`
	DataHashes           []string `json:"data_hashes,omitempty"`
}

type ProlongRequest struct {
	WindowSeconds int    `json:"window_seconds"`
	Hash          string `json:"hash,omitempty"`
}

type CloseOutRequest struct {
	AmountTON string `json:"amount_ton"`
}

type EscalateRequest struct {
	ClaimHash string `json:"claim_hash,omitempty"`
}

type ResolveRequest struct {
	SellerAwardTON string `json:"seller_award_ton"`
	ResolutionHash string `json:"resolution_hash,omitempty"`
}

// Desk

type ContributeRequest struct {
	AmountTON string `json:"amount_ton"`
}

type DeskWithdrawRequest struct {
	AmountTON string `json:"amount_ton,omitempty"` // empty or "0" empties the fund
}

type SetAddressRequest struct {
	Address string `json:"address"`
}

type SetCloseoutCreditRequest struct {
	AmountTON string `json:"amount_ton"`
}

type AddArbitratorRequest struct {
	Address string `json:"address"`
}

type AssignArbitratorRequest struct {
	DealID     string `json:"deal_id"`
	Arbitrator string `json:"arbitrator"`
}

// Account

type BalanceWithdrawRequest struct {
	AmountTON string `json:"amount_ton"`
}
