package models

import (
	"fmt"
	"time"
)

// Desk is the singleton desk state: collected fees, the closeout-credit
// pool, and the arbitrator roster. Fund and CreditPool are disjoint
// balances; fees never subsidize credits and vice versa.
type Desk struct {
	Owner              string    `json:"owner"`
	Beneficiary        string    `json:"beneficiary"`
	ArbitrationManager string    `json:"arbitration_manager"`
	Fund               int64     `json:"fund_nano"`
	CreditPool         int64     `json:"credit_pool_nano"`
	CloseoutCredit     int64     `json:"closeout_credit_nano"`
	ArbitratorsPool    []string  `json:"arbitrators_pool"`
	PoolCursor         int       `json:"pool_cursor"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// RequireOwner guards owner-only administration.
func (dk *Desk) RequireOwner(caller string) error {
	if caller != dk.Owner {
		return fmt.Errorf("%w: only the desk owner may do this", ErrUnauthorized)
	}
	return nil
}

// RequireArbitrationManager guards the arbitrator roster.
func (dk *Desk) RequireArbitrationManager(caller string) error {
	if caller != dk.ArbitrationManager {
		return fmt.Errorf("%w: only the arbitration manager may do this", ErrUnauthorized)
	}
	return nil
}

// AddArbitrator appends addr to the roster.
func (dk *Desk) AddArbitrator(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: arbitrator address must not be empty", ErrBound)
	}
	dk.ArbitratorsPool = append(dk.ArbitratorsPool, addr)
	return nil
}

// RemoveArbitrator removes the entry at index by swapping in the last
// element and truncating. Roster order is not preserved.
func (dk *Desk) RemoveArbitrator(index int) (removed string, err error) {
	if index < 0 || index >= len(dk.ArbitratorsPool) {
		return "", fmt.Errorf("%w: index %d, pool size %d", ErrPool, index, len(dk.ArbitratorsPool))
	}
	removed = dk.ArbitratorsPool[index]
	last := len(dk.ArbitratorsPool) - 1
	dk.ArbitratorsPool[index] = dk.ArbitratorsPool[last]
	dk.ArbitratorsPool = dk.ArbitratorsPool[:last]
	if dk.PoolCursor >= len(dk.ArbitratorsPool) {
		dk.PoolCursor = 0
	}
	return removed, nil
}

// NextArbitrator picks the next roster entry round-robin and advances the
// cursor. ok is false when the roster is empty; escalation then proceeds
// without an assignment.
func (dk *Desk) NextArbitrator() (addr string, ok bool) {
	if len(dk.ArbitratorsPool) == 0 {
		return "", false
	}
	if dk.PoolCursor >= len(dk.ArbitratorsPool) {
		dk.PoolCursor = 0
	}
	addr = dk.ArbitratorsPool[dk.PoolCursor]
	dk.PoolCursor = (dk.PoolCursor + 1) % len(dk.ArbitratorsPool)
	return addr, true
}

// IssueCredit decides the subsidy for a buyer entering a new deal: buyers
// already holding at least the configured credit get nothing, others get
// the configured amount capped by what the pool can still cover. Issuing
// never fails deal creation.
func (dk *Desk) IssueCredit(buyerBalance int64) int64 {
	if dk.CloseoutCredit <= 0 || buyerBalance >= dk.CloseoutCredit {
		return 0
	}
	credit := dk.CloseoutCredit
	if credit > dk.CreditPool {
		credit = dk.CreditPool
	}
	if credit <= 0 {
		return 0
	}
	dk.CreditPool -= credit
	return credit
}

// WithdrawFund takes amount from the collected fees, or everything when
// amount is zero.
func (dk *Desk) WithdrawFund(amount int64) (int64, error) {
	if amount < 0 || amount > dk.Fund {
		return 0, fmt.Errorf("%w: fund holds %d", ErrBound, dk.Fund)
	}
	if amount == 0 {
		amount = dk.Fund
	}
	dk.Fund -= amount
	return amount, nil
}
