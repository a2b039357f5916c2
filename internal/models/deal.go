package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Deal statuses
const (
	DealStatusRunning          = "running"
	DealStatusCloseoutProposed = "closeout_proposed"
	DealStatusClosedOut        = "closed_out"
	DealStatusTerminated       = "terminated"
	DealStatusArbitration      = "arbitration"
	DealStatusResolved         = "resolved"
)

// EscalationGrace is how long after the payment deadline a principal must
// wait before escalating to arbitration.
const EscalationGrace = 7200 * time.Second

// Valid state transitions: from -> []to. closed_out, terminated and
// resolved are terminal.
var ValidDealTransitions = map[string][]string{
	DealStatusRunning:          {DealStatusCloseoutProposed, DealStatusClosedOut, DealStatusTerminated, DealStatusArbitration},
	DealStatusCloseoutProposed: {DealStatusClosedOut, DealStatusTerminated, DealStatusArbitration},
	DealStatusClosedOut:        {},
	DealStatusTerminated:       {},
	DealStatusArbitration:      {DealStatusResolved},
	DealStatusResolved:         {},
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidDealTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func IsTerminalStatus(status string) bool {
	allowed, ok := ValidDealTransitions[status]
	return ok && len(allowed) == 0
}

type Deal struct {
	ID              uuid.UUID `json:"id"`
	Seller          string    `json:"seller"`
	Buyer           string    `json:"buyer"`
	SellerPartner   string    `json:"seller_partner,omitempty"`
	BuyerPartner    string    `json:"buyer_partner,omitempty"`
	Price           int64     `json:"price_nano"`
	DeskFee         int64     `json:"desk_fee_nano"`
	Escrow          int64     `json:"escrow_nano"`
	BuyerIsTaker    bool      `json:"buyer_is_taker"`
	PaymentDeadline time.Time `json:"payment_deadline"`
	DataHashes      []string  `json:"data_hashes"`
	Status          string    `json:"status"`
	StatusTime      time.Time `json:"status_time"`

	SellerAsset     int64 `json:"seller_asset_nano"`
	BuyerAsset      int64 `json:"buyer_asset_nano"`
	SellerAssetSent bool  `json:"seller_asset_sent"`
	BuyerAssetSent  bool  `json:"buyer_asset_sent"`

	RefundBySellerSet bool  `json:"refund_by_seller_set"`
	RefundBySeller    int64 `json:"refund_by_seller_nano"`
	RefundByBuyerSet  bool  `json:"refund_by_buyer_set"`
	RefundByBuyer     int64 `json:"refund_by_buyer_nano"`

	// Credit advanced to the buyer by the desk at creation, withheld from
	// the buyer's payout at settlement.
	CloseoutCredit int64 `json:"closeout_credit_nano"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (d *Deal) IsTerminal() bool {
	return IsTerminalStatus(d.Status)
}

// Settled reports whether a disposition has been recorded, i.e. whether the
// asset fields are claimable.
func (d *Deal) Settled() bool {
	return IsTerminalStatus(d.Status)
}

func (d *Deal) IsPrincipal(addr string) bool {
	return addr == d.Seller || addr == d.Buyer
}

// CanProlong checks the seller-only prolongation guard. The new deadline
// may never move backwards.
func (d *Deal) CanProlong(caller string, newDeadline time.Time) error {
	if caller != d.Seller {
		return fmt.Errorf("%w: only the seller can prolong", ErrUnauthorized)
	}
	if d.Status != DealStatusRunning && d.Status != DealStatusCloseoutProposed {
		return fmt.Errorf("%w: deal is %s", ErrBadState, d.Status)
	}
	if newDeadline.Before(d.PaymentDeadline) {
		return fmt.Errorf("%w: payment deadline can only move forward", ErrTimeWindow)
	}
	return nil
}

// CanTerminate checks the termination guard. The buyer may terminate at any
// time before a terminal state; the seller only while the deal is still
// running and the payment window has fully lapsed. A pending closeout
// proposal blocks the seller's default-termination but not the buyer's.
func (d *Deal) CanTerminate(caller string, now time.Time) error {
	switch caller {
	case d.Buyer:
		if d.Status != DealStatusRunning && d.Status != DealStatusCloseoutProposed {
			return fmt.Errorf("%w: deal is %s", ErrBadState, d.Status)
		}
		return nil
	case d.Seller:
		if d.Status != DealStatusRunning {
			return fmt.Errorf("%w: deal is %s", ErrBadState, d.Status)
		}
		if !now.After(d.PaymentDeadline) {
			return fmt.Errorf("%w: payment window has not lapsed", ErrTimeWindow)
		}
		return nil
	}
	return fmt.Errorf("%w: only a principal can terminate", ErrUnauthorized)
}

// CanEscalate checks the escalation guard: either principal, pre-terminal,
// at or after paymentDeadline + EscalationGrace.
func (d *Deal) CanEscalate(caller string, now time.Time) error {
	if !d.IsPrincipal(caller) {
		return fmt.Errorf("%w: only a principal can escalate", ErrUnauthorized)
	}
	if d.Status != DealStatusRunning && d.Status != DealStatusCloseoutProposed {
		return fmt.Errorf("%w: deal is %s", ErrBadState, d.Status)
	}
	if now.Before(d.PaymentDeadline.Add(EscalationGrace)) {
		return fmt.Errorf("%w: escalation opens %s after the payment deadline", ErrTimeWindow, EscalationGrace)
	}
	return nil
}

// ApplyCloseout records the caller's refund proposal (the seller's share of
// the escrow, bounded by price - deskFee) and reports whether the deal
// closes. The deal closes when the seller has an active proposal equal to
// the buyer's one, an unset buyer proposal counting as zero: the seller
// conceding everything closes unilaterally, while a buyer proposal alone
// never closes the deal.
func (d *Deal) ApplyCloseout(caller string, amount int64) (closed bool, err error) {
	if !d.IsPrincipal(caller) {
		return false, fmt.Errorf("%w: only a principal can propose a closeout", ErrUnauthorized)
	}
	if d.Status != DealStatusRunning && d.Status != DealStatusCloseoutProposed {
		return false, fmt.Errorf("%w: deal is %s", ErrBadState, d.Status)
	}
	if amount < 0 || amount > d.Price-d.DeskFee {
		return false, fmt.Errorf("%w: refund must be between 0 and %d", ErrBound, d.Price-d.DeskFee)
	}

	if caller == d.Seller {
		d.RefundBySeller = amount
		d.RefundBySellerSet = true
	} else {
		d.RefundByBuyer = amount
		d.RefundByBuyerSet = true
	}

	return d.RefundBySellerSet && d.RefundBySeller == d.RefundByBuyer, nil
}

// CanResolve checks the arbitration award bound.
func (d *Deal) CanResolve(sellerAward int64) error {
	if d.Status != DealStatusArbitration {
		return fmt.Errorf("%w: deal is %s", ErrBadState, d.Status)
	}
	if sellerAward < 0 || sellerAward > d.Price-d.DeskFee {
		return fmt.Errorf("%w: award must be between 0 and %d", ErrBound, d.Price-d.DeskFee)
	}
	return nil
}

// Settle records the terminal split of the escrow between the parties.
// sellerShare is the agreed refund or the arbitration award; the desk fee
// and the credit recovery come out of the buyer's side, so any truncation
// remainder of the fee lands with the buyer. Conservation holds exactly:
//
//	SellerAsset + BuyerAsset + DeskFee + recovery == Escrow
func (d *Deal) Settle(sellerShare int64) (recovery int64) {
	d.SellerAsset = sellerShare
	d.BuyerAsset = d.Escrow - d.DeskFee - sellerShare
	recovery = d.CloseoutCredit
	if recovery > d.BuyerAsset {
		recovery = d.BuyerAsset
	}
	d.BuyerAsset -= recovery
	return recovery
}

// SettleTermination releases the full escrow to the seller. No fee is taken
// and no credit is recovered on this path.
func (d *Deal) SettleTermination() {
	d.SellerAsset = d.Escrow
	d.BuyerAsset = 0
}

// AssetFor returns the recorded payout for addr together with whether it
// has already been sent. ok is false when addr is not a principal.
func (d *Deal) AssetFor(addr string) (amount int64, sent bool, ok bool) {
	switch addr {
	case d.Seller:
		return d.SellerAsset, d.SellerAssetSent, true
	case d.Buyer:
		return d.BuyerAsset, d.BuyerAssetSent, true
	}
	return 0, false, false
}
