package repositories

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/otcdesk/backend/internal/db"
	"github.com/otcdesk/backend/internal/models"
)

type AccountRepo struct {
	q db.Querier
}

func NewAccountRepo(q db.Querier) *AccountRepo {
	return &AccountRepo{q: q}
}

func (r *AccountRepo) WithTx(q db.Querier) *AccountRepo {
	return &AccountRepo{q: q}
}

// --- Proof Payloads (nonce) ---

func (r *AccountRepo) CreateProofPayload(ctx context.Context, address *string, ttl time.Duration) (*models.TonProofPayload, error) {
	payload := generateNonce(32)
	p := &models.TonProofPayload{
		Payload: payload,
		Address: address,
	}

	err := r.q.QueryRow(ctx, `
		INSERT INTO ton_proof_payloads (payload, address, expires_at)
		VALUES ($1, $2, now() + $3::interval)
		RETURNING id, created_at, expires_at
	`, payload, address, ttl.String()).Scan(&p.ID, &p.CreatedAt, &p.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *AccountRepo) ConsumeProofPayload(ctx context.Context, payload string) (*models.TonProofPayload, error) {
	var p models.TonProofPayload
	err := r.q.QueryRow(ctx, `
		UPDATE ton_proof_payloads
		SET used = true
		WHERE payload = $1 AND used = false AND expires_at > now()
		RETURNING id, payload, address, created_at, expires_at, used
	`, payload).Scan(&p.ID, &p.Payload, &p.Address, &p.CreatedAt, &p.ExpiresAt, &p.Used)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// --- Accounts ---

func (r *AccountRepo) Connect(ctx context.Context, a *models.Account) error {
	return r.q.QueryRow(ctx, `
		INSERT INTO accounts (address, address_friendly, network, public_key, verified, is_active)
		VALUES ($1, $2, $3, $4, $5, true)
		ON CONFLICT (address) DO UPDATE SET
			address_friendly = EXCLUDED.address_friendly,
			network = EXCLUDED.network,
			public_key = EXCLUDED.public_key,
			verified = EXCLUDED.verified,
			is_active = true,
			disconnected_at = NULL,
			connected_at = now()
		RETURNING connected_at
	`, a.Address, a.AddressFriendly, a.Network, a.PublicKey, a.Verified).Scan(&a.ConnectedAt)
}

func (r *AccountRepo) Disconnect(ctx context.Context, address string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE accounts SET is_active = false, disconnected_at = now()
		WHERE address = $1 AND is_active = true
	`, address)
	return err
}

func (r *AccountRepo) GetByAddress(ctx context.Context, address string) (*models.Account, error) {
	var a models.Account
	err := r.q.QueryRow(ctx, `
		SELECT address, address_friendly, network, public_key, balance_nano,
		       verified, connected_at, disconnected_at, is_active
		FROM accounts WHERE address = $1
	`, address).Scan(
		&a.Address, &a.AddressFriendly, &a.Network, &a.PublicKey, &a.Balance,
		&a.Verified, &a.ConnectedAt, &a.DisconnectedAt, &a.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// EnsureInternal creates a ledger-only account if it does not exist yet.
// Used for the desk and per-deal escrow vaults.
func (r *AccountRepo) EnsureInternal(ctx context.Context, address string) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO accounts (address, verified) VALUES ($1, true)
		ON CONFLICT (address) DO NOTHING
	`, address)
	return err
}

// GetBalanceForUpdate locks the account row and returns its balance.
func (r *AccountRepo) GetBalanceForUpdate(ctx context.Context, address string) (int64, error) {
	var balance int64
	err := r.q.QueryRow(ctx, `
		SELECT balance_nano FROM accounts WHERE address = $1 FOR UPDATE
	`, address).Scan(&balance)
	return balance, err
}

// Credit adds amount to the account balance.
func (r *AccountRepo) Credit(ctx context.Context, address string, amount int64) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE accounts SET balance_nano = balance_nano + $1 WHERE address = $2
	`, amount, address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s not found", address)
	}
	return nil
}

// Debit subtracts amount; the CHECK constraint on balance_nano turns an
// overdraft into an error instead of a negative balance.
func (r *AccountRepo) Debit(ctx context.Context, address string, amount int64) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE accounts SET balance_nano = balance_nano - $1 WHERE address = $2
	`, amount, address)
	if err != nil {
		return fmt.Errorf("debit %s: %w", address, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s not found", address)
	}
	return nil
}

// Transfer moves amount between two ledger accounts. Call inside a
// transaction; it is two statements, not one.
func (r *AccountRepo) Transfer(ctx context.Context, from, to string, amount int64) error {
	if amount == 0 {
		return nil
	}
	if err := r.Debit(ctx, from, amount); err != nil {
		return err
	}
	return r.Credit(ctx, to, amount)
}

func generateNonce(bytes int) string {
	b := make([]byte, bytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
