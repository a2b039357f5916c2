package models

import (
	"errors"
	"testing"
)

func testDesk() *Desk {
	return &Desk{
		Owner:          otherAddr,
		Beneficiary:    otherAddr,
		CloseoutCredit: 1_700_000,
		CreditPool:     10_000_000,
	}
}

func TestRemoveArbitrator(t *testing.T) {
	dk := testDesk()
	dk.ArbitratorsPool = []string{"a", "b", "c"}

	removed, err := dk.RemoveArbitrator(0)
	if err != nil {
		t.Fatalf("RemoveArbitrator: %v", err)
	}
	if removed != "a" {
		t.Errorf("removed = %q, want %q", removed, "a")
	}
	// Swap-and-truncate: last element takes the vacated slot.
	if len(dk.ArbitratorsPool) != 2 || dk.ArbitratorsPool[0] != "c" || dk.ArbitratorsPool[1] != "b" {
		t.Errorf("pool after removal = %v, want [c b]", dk.ArbitratorsPool)
	}

	if _, err := dk.RemoveArbitrator(2); !errors.Is(err, ErrPool) {
		t.Errorf("out of range removal = %v, want ErrPool", err)
	}
	if _, err := dk.RemoveArbitrator(-1); !errors.Is(err, ErrPool) {
		t.Errorf("negative index = %v, want ErrPool", err)
	}

	empty := testDesk()
	if _, err := empty.RemoveArbitrator(0); !errors.Is(err, ErrPool) {
		t.Errorf("removal from empty pool = %v, want ErrPool", err)
	}
}

func TestNextArbitratorRoundRobin(t *testing.T) {
	dk := testDesk()
	dk.ArbitratorsPool = []string{"a", "b", "c"}

	var got []string
	for i := 0; i < 5; i++ {
		addr, ok := dk.NextArbitrator()
		if !ok {
			t.Fatal("NextArbitrator returned !ok on a populated pool")
		}
		got = append(got, addr)
	}
	want := []string{"a", "b", "c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("round-robin order = %v, want %v", got, want)
		}
	}

	empty := testDesk()
	if _, ok := empty.NextArbitrator(); ok {
		t.Error("empty pool should yield no arbitrator")
	}
}

func TestNextArbitratorCursorAfterShrink(t *testing.T) {
	dk := testDesk()
	dk.ArbitratorsPool = []string{"a", "b", "c"}
	dk.PoolCursor = 2

	if _, err := dk.RemoveArbitrator(2); err != nil {
		t.Fatalf("RemoveArbitrator: %v", err)
	}
	addr, ok := dk.NextArbitrator()
	if !ok {
		t.Fatal("NextArbitrator returned !ok")
	}
	if addr != "a" {
		t.Errorf("cursor should wrap after shrink, got %q", addr)
	}
}

func TestIssueCredit(t *testing.T) {
	tests := []struct {
		name         string
		buyerBalance int64
		creditPool   int64
		want         int64
	}{
		{"poor buyer gets full credit", 0, 10_000_000, 1_700_000},
		{"balance just below threshold", 1_699_999, 10_000_000, 1_700_000},
		{"balance at threshold gets nothing", 1_700_000, 10_000_000, 0},
		{"rich buyer gets nothing", 5_000_000, 10_000_000, 0},
		{"pool partially covers", 0, 1_000_000, 1_000_000},
		{"empty pool issues nothing", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dk := testDesk()
			dk.CreditPool = tt.creditPool
			got := dk.IssueCredit(tt.buyerBalance)
			if got != tt.want {
				t.Errorf("IssueCredit(%d) = %d, want %d", tt.buyerBalance, got, tt.want)
			}
			if dk.CreditPool != tt.creditPool-tt.want {
				t.Errorf("CreditPool = %d, want %d", dk.CreditPool, tt.creditPool-tt.want)
			}
		})
	}
}

func TestWithdrawFund(t *testing.T) {
	dk := testDesk()
	dk.Fund = 1_000

	if got, err := dk.WithdrawFund(300); err != nil || got != 300 {
		t.Errorf("WithdrawFund(300) = (%d, %v)", got, err)
	}
	if dk.Fund != 700 {
		t.Errorf("Fund = %d, want 700", dk.Fund)
	}

	// Zero means everything.
	if got, err := dk.WithdrawFund(0); err != nil || got != 700 {
		t.Errorf("WithdrawFund(0) = (%d, %v), want (700, nil)", got, err)
	}
	if dk.Fund != 0 {
		t.Errorf("Fund = %d, want 0", dk.Fund)
	}

	if _, err := dk.WithdrawFund(1); !errors.Is(err, ErrBound) {
		t.Errorf("overdraw = %v, want ErrBound", err)
	}
}

func TestAddArbitratorRejectsEmpty(t *testing.T) {
	dk := testDesk()
	if err := dk.AddArbitrator(""); !errors.Is(err, ErrBound) {
		t.Errorf("empty address = %v, want ErrBound", err)
	}
	if err := dk.AddArbitrator("a"); err != nil {
		t.Errorf("AddArbitrator: %v", err)
	}
}
