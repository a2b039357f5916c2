package models

import (
	"fmt"

	"github.com/xssnick/tonutils-go/tlb"
)

// All balances and amounts are kept in nanoTON. int64 covers the full TON
// supply with room to spare.

// DeskFee is the 1% service fee, integer-truncated. Computed once at deal
// creation and never recomputed afterwards.
func DeskFee(price int64) int64 {
	return price / 100
}

// RequiredEscrow is the exact value that must be attached to newDeal.
// The taker pays the fee premium up front when the buyer is the taker.
func RequiredEscrow(price int64, buyerIsTaker bool) int64 {
	if buyerIsTaker {
		return price + DeskFee(price)
	}
	return price
}

// ParseTON converts a decimal TON string ("1.23456") to nanoTON.
func ParseTON(s string) (int64, error) {
	coins, err := tlb.FromTON(s)
	if err != nil {
		return 0, fmt.Errorf("invalid TON amount %q: %w", s, err)
	}
	nano := coins.Nano()
	if !nano.IsInt64() {
		return 0, fmt.Errorf("TON amount %q out of range", s)
	}
	return nano.Int64(), nil
}

// FormatTON renders a nanoTON amount as a decimal TON string.
func FormatTON(nano int64) string {
	if nano < 0 {
		return "-" + tlb.FromNanoTONU(uint64(-nano)).String()
	}
	return tlb.FromNanoTONU(uint64(nano)).String()
}
