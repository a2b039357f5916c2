package models

import (
	"errors"
	"testing"
	"time"
)

const (
	sellerAddr = "0:1111111111111111111111111111111111111111111111111111111111111111"
	buyerAddr  = "0:2222222222222222222222222222222222222222222222222222222222222222"
	otherAddr  = "0:3333333333333333333333333333333333333333333333333333333333333333"
)

func testDeal(status string, buyerIsTaker bool) *Deal {
	price := int64(1_234_560_000)
	fee := DeskFee(price)
	return &Deal{
		Seller:          sellerAddr,
		Buyer:           buyerAddr,
		Price:           price,
		DeskFee:         fee,
		Escrow:          RequiredEscrow(price, buyerIsTaker),
		BuyerIsTaker:    buyerIsTaker,
		PaymentDeadline: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Status:          status,
	}
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{DealStatusRunning, DealStatusCloseoutProposed, true},
		{DealStatusRunning, DealStatusClosedOut, true},
		{DealStatusRunning, DealStatusTerminated, true},
		{DealStatusRunning, DealStatusArbitration, true},
		{DealStatusCloseoutProposed, DealStatusClosedOut, true},
		{DealStatusCloseoutProposed, DealStatusTerminated, true},
		{DealStatusCloseoutProposed, DealStatusArbitration, true},
		{DealStatusArbitration, DealStatusResolved, true},

		// Invalid transitions
		{DealStatusCloseoutProposed, DealStatusRunning, false},
		{DealStatusArbitration, DealStatusClosedOut, false},
		{DealStatusArbitration, DealStatusTerminated, false},
		{DealStatusClosedOut, DealStatusResolved, false},
		{DealStatusTerminated, DealStatusRunning, false},
		{DealStatusResolved, DealStatusArbitration, false},
		{"nonexistent", DealStatusRunning, false},
		{DealStatusRunning, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	terminal := []string{DealStatusClosedOut, DealStatusTerminated, DealStatusResolved}
	for _, status := range terminal {
		if !IsTerminalStatus(status) {
			t.Errorf("status %q should be terminal", status)
		}
	}
	for _, status := range []string{DealStatusRunning, DealStatusCloseoutProposed, DealStatusArbitration} {
		if IsTerminalStatus(status) {
			t.Errorf("status %q should not be terminal", status)
		}
	}
}

func TestCanTerminate(t *testing.T) {
	deadline := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	before := deadline.Add(-time.Minute)
	after := deadline.Add(time.Minute)

	tests := []struct {
		name    string
		status  string
		caller  string
		now     time.Time
		wantErr error
	}{
		{"buyer running before deadline", DealStatusRunning, buyerAddr, before, nil},
		{"buyer during closeout proposal", DealStatusCloseoutProposed, buyerAddr, before, nil},
		{"buyer after arbitration", DealStatusArbitration, buyerAddr, after, ErrBadState},
		{"buyer after closeout", DealStatusClosedOut, buyerAddr, after, ErrBadState},
		{"seller before deadline", DealStatusRunning, sellerAddr, before, ErrTimeWindow},
		{"seller exactly at deadline", DealStatusRunning, sellerAddr, deadline, ErrTimeWindow},
		{"seller after deadline", DealStatusRunning, sellerAddr, after, nil},
		{"seller blocked by closeout proposal", DealStatusCloseoutProposed, sellerAddr, after, ErrBadState},
		{"stranger", DealStatusRunning, otherAddr, after, ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDeal(tt.status, false)
			err := d.CanTerminate(tt.caller, tt.now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CanTerminate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCanEscalate(t *testing.T) {
	deadline := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	open := deadline.Add(EscalationGrace)

	tests := []struct {
		name    string
		status  string
		caller  string
		now     time.Time
		wantErr error
	}{
		{"seller at grace boundary", DealStatusRunning, sellerAddr, open, nil},
		{"buyer after grace", DealStatusCloseoutProposed, buyerAddr, open.Add(time.Hour), nil},
		{"one second early", DealStatusRunning, sellerAddr, open.Add(-time.Second), ErrTimeWindow},
		{"already in arbitration", DealStatusArbitration, buyerAddr, open, ErrBadState},
		{"already terminated", DealStatusTerminated, sellerAddr, open, ErrBadState},
		{"stranger", DealStatusRunning, otherAddr, open, ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDeal(tt.status, false)
			err := d.CanEscalate(tt.caller, tt.now)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CanEscalate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCanProlong(t *testing.T) {
	d := testDeal(DealStatusRunning, false)

	if err := d.CanProlong(sellerAddr, d.PaymentDeadline.Add(time.Hour)); err != nil {
		t.Errorf("seller forward prolong: %v", err)
	}
	if err := d.CanProlong(sellerAddr, d.PaymentDeadline); err != nil {
		t.Errorf("same deadline should be allowed: %v", err)
	}
	if err := d.CanProlong(sellerAddr, d.PaymentDeadline.Add(-time.Second)); !errors.Is(err, ErrTimeWindow) {
		t.Errorf("shrinking deadline = %v, want ErrTimeWindow", err)
	}
	if err := d.CanProlong(buyerAddr, d.PaymentDeadline.Add(time.Hour)); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("buyer prolong = %v, want ErrUnauthorized", err)
	}

	closed := testDeal(DealStatusClosedOut, false)
	if err := closed.CanProlong(sellerAddr, closed.PaymentDeadline.Add(time.Hour)); !errors.Is(err, ErrBadState) {
		t.Errorf("prolong after close = %v, want ErrBadState", err)
	}
}

func TestApplyCloseout(t *testing.T) {
	t.Run("seller conceding everything closes unilaterally", func(t *testing.T) {
		d := testDeal(DealStatusRunning, false)
		closed, err := d.ApplyCloseout(sellerAddr, 0)
		if err != nil {
			t.Fatalf("ApplyCloseout: %v", err)
		}
		if !closed {
			t.Error("seller proposing 0 with no buyer proposal should close")
		}
	})

	t.Run("buyer proposal alone never closes", func(t *testing.T) {
		d := testDeal(DealStatusRunning, false)
		closed, err := d.ApplyCloseout(buyerAddr, 0)
		if err != nil {
			t.Fatalf("ApplyCloseout: %v", err)
		}
		if closed {
			t.Error("buyer proposal without a seller proposal must not close")
		}
	})

	t.Run("matching proposals close", func(t *testing.T) {
		d := testDeal(DealStatusRunning, false)
		if closed, _ := d.ApplyCloseout(sellerAddr, 500_000_000); closed {
			t.Fatal("nonzero seller proposal with unset buyer must not close")
		}
		d.Status = DealStatusCloseoutProposed
		closed, err := d.ApplyCloseout(buyerAddr, 500_000_000)
		if err != nil {
			t.Fatalf("ApplyCloseout: %v", err)
		}
		if !closed {
			t.Error("matching proposals should close the deal")
		}
	})

	t.Run("mismatched then revised", func(t *testing.T) {
		d := testDeal(DealStatusRunning, false)
		d.ApplyCloseout(buyerAddr, 300_000_000)
		d.Status = DealStatusCloseoutProposed
		if closed, _ := d.ApplyCloseout(sellerAddr, 500_000_000); closed {
			t.Fatal("mismatched proposals must not close")
		}
		closed, _ := d.ApplyCloseout(sellerAddr, 300_000_000)
		if !closed {
			t.Error("seller matching the buyer's standing proposal should close")
		}
	})

	t.Run("bound", func(t *testing.T) {
		d := testDeal(DealStatusRunning, false)
		max := d.Price - d.DeskFee
		if _, err := d.ApplyCloseout(sellerAddr, max+1); !errors.Is(err, ErrBound) {
			t.Errorf("amount above price-fee = %v, want ErrBound", err)
		}
		if _, err := d.ApplyCloseout(sellerAddr, -1); !errors.Is(err, ErrBound) {
			t.Errorf("negative amount = %v, want ErrBound", err)
		}
		if _, err := d.ApplyCloseout(sellerAddr, max); err != nil {
			t.Errorf("amount at bound: %v", err)
		}
	})

	t.Run("stranger", func(t *testing.T) {
		d := testDeal(DealStatusRunning, false)
		if _, err := d.ApplyCloseout(otherAddr, 0); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("stranger closeout = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("terminal state", func(t *testing.T) {
		d := testDeal(DealStatusArbitration, false)
		if _, err := d.ApplyCloseout(sellerAddr, 0); !errors.Is(err, ErrBadState) {
			t.Errorf("closeout during arbitration = %v, want ErrBadState", err)
		}
	})
}

func TestSettleConservation(t *testing.T) {
	tests := []struct {
		name         string
		buyerIsTaker bool
		credit       int64
		share        int64
	}{
		{"seller taker full concession", false, 0, 0},
		{"seller taker split", false, 0, 500_000_000},
		{"buyer taker split", true, 0, 617_280_000},
		{"with credit fully recovered", false, 1_700_000, 500_000_000},
		{"credit clamped by buyer payout", false, 1_700_000, 1_234_560_000 - 12_345_600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDeal(DealStatusRunning, tt.buyerIsTaker)
			d.CloseoutCredit = tt.credit

			recovery := d.Settle(tt.share)

			if d.SellerAsset != tt.share {
				t.Errorf("SellerAsset = %d, want %d", d.SellerAsset, tt.share)
			}
			if d.BuyerAsset < 0 {
				t.Errorf("BuyerAsset = %d, must not be negative", d.BuyerAsset)
			}
			if recovery > tt.credit {
				t.Errorf("recovery %d exceeds issued credit %d", recovery, tt.credit)
			}
			total := d.SellerAsset + d.BuyerAsset + d.DeskFee + recovery
			if total != d.Escrow {
				t.Errorf("conservation broken: %d distributed, escrow %d", total, d.Escrow)
			}
		})
	}
}

// Worked examples for a 1.23456 TON deal. The fee is 1% truncated:
// 12_345_600 nano, so the residue of the split always lands with the buyer.
func TestSettleScenarios(t *testing.T) {
	const price = int64(1_234_560_000)
	const fee = int64(12_345_600)

	t.Run("seller taker, agreed refund to seller", func(t *testing.T) {
		d := testDeal(DealStatusCloseoutProposed, false)
		d.Settle(1_000_000_000)
		if d.SellerAsset != 1_000_000_000 {
			t.Errorf("SellerAsset = %d", d.SellerAsset)
		}
		if want := price - fee - 1_000_000_000; d.BuyerAsset != want {
			t.Errorf("BuyerAsset = %d, want %d", d.BuyerAsset, want)
		}
	})

	t.Run("buyer taker, escrow carries the fee", func(t *testing.T) {
		d := testDeal(DealStatusCloseoutProposed, true)
		if d.Escrow != price+fee {
			t.Fatalf("Escrow = %d, want %d", d.Escrow, price+fee)
		}
		d.Settle(1_000_000_000)
		if want := price - 1_000_000_000; d.BuyerAsset != want {
			t.Errorf("BuyerAsset = %d, want %d", d.BuyerAsset, want)
		}
	})

	t.Run("termination releases everything without fee", func(t *testing.T) {
		d := testDeal(DealStatusRunning, true)
		d.CloseoutCredit = 1_700_000
		d.SettleTermination()
		if d.SellerAsset != d.Escrow {
			t.Errorf("SellerAsset = %d, want full escrow %d", d.SellerAsset, d.Escrow)
		}
		if d.BuyerAsset != 0 {
			t.Errorf("BuyerAsset = %d, want 0", d.BuyerAsset)
		}
	})

	t.Run("full award leaves buyer nothing but clears no credit", func(t *testing.T) {
		d := testDeal(DealStatusArbitration, false)
		d.CloseoutCredit = 1_700_000
		recovery := d.Settle(price - fee)
		if d.BuyerAsset != 0 {
			t.Errorf("BuyerAsset = %d, want 0", d.BuyerAsset)
		}
		if recovery != 0 {
			t.Errorf("recovery = %d, want 0 when buyer payout is empty", recovery)
		}
	})
}

func TestCanResolve(t *testing.T) {
	d := testDeal(DealStatusArbitration, false)
	max := d.Price - d.DeskFee

	if err := d.CanResolve(max); err != nil {
		t.Errorf("award at bound: %v", err)
	}
	if err := d.CanResolve(max + 1); !errors.Is(err, ErrBound) {
		t.Errorf("award above bound = %v, want ErrBound", err)
	}
	if err := d.CanResolve(-1); !errors.Is(err, ErrBound) {
		t.Errorf("negative award = %v, want ErrBound", err)
	}

	running := testDeal(DealStatusRunning, false)
	if err := running.CanResolve(0); !errors.Is(err, ErrBadState) {
		t.Errorf("resolve outside arbitration = %v, want ErrBadState", err)
	}
}

func TestSettledGatesClaims(t *testing.T) {
	for _, status := range []string{DealStatusRunning, DealStatusCloseoutProposed, DealStatusArbitration} {
		d := testDeal(status, false)
		if d.Settled() {
			t.Errorf("deal in %s reports settled", status)
		}
	}
	for _, status := range []string{DealStatusClosedOut, DealStatusTerminated, DealStatusResolved} {
		d := testDeal(status, false)
		if !d.Settled() {
			t.Errorf("deal in %s does not report settled", status)
		}
	}
}

// A claim is one-shot: the sent flag flips on the first withdrawal and every
// later look sees it. A zero asset is never claimable.
func TestAssetClaimedOnce(t *testing.T) {
	d := testDeal(DealStatusCloseoutProposed, false)
	full := d.Price - d.DeskFee
	d.Settle(full)
	d.Status = DealStatusClosedOut

	amount, sent, ok := d.AssetFor(sellerAddr)
	if !ok || sent || amount != full {
		t.Fatalf("first seller claim = (%d, %v, %v), want (%d, false, true)", amount, sent, ok, full)
	}

	d.SellerAssetSent = true
	if _, sent, _ := d.AssetFor(sellerAddr); !sent {
		t.Error("second seller claim does not see the sent flag")
	}

	if amount, _, _ := d.AssetFor(buyerAddr); amount != 0 {
		t.Errorf("buyer amount = %d, want 0 after a full seller award", amount)
	}
}

func TestAssetFor(t *testing.T) {
	d := testDeal(DealStatusClosedOut, false)
	d.SellerAsset = 100
	d.BuyerAsset = 200
	d.BuyerAssetSent = true

	if amount, sent, ok := d.AssetFor(sellerAddr); !ok || amount != 100 || sent {
		t.Errorf("seller asset = (%d, %v, %v)", amount, sent, ok)
	}
	if amount, sent, ok := d.AssetFor(buyerAddr); !ok || amount != 200 || !sent {
		t.Errorf("buyer asset = (%d, %v, %v)", amount, sent, ok)
	}
	if _, _, ok := d.AssetFor(otherAddr); ok {
		t.Error("stranger should have no asset")
	}
}
