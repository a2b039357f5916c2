package services

import (
	"context"
	"fmt"
	"time"

	"github.com/otcdesk/backend/internal/auth"
	"github.com/otcdesk/backend/internal/config"
	"github.com/otcdesk/backend/internal/events"
	"github.com/otcdesk/backend/internal/models"
	"github.com/otcdesk/backend/internal/repositories"
	"github.com/otcdesk/backend/internal/ton"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// AccountService handles TON Connect authentication and the custody
// balance: deposits land here via the indexer, withdrawals leave via the
// payout queue.
type AccountService struct {
	pool        *pgxpool.Pool
	accountRepo *repositories.AccountRepo
	payoutRepo  *repositories.PayoutRepo
	depositRepo *repositories.DepositRepo
	auditRepo   *repositories.AuditRepo
	publisher   events.Publisher
	cfg         *config.Config
	log         *zap.Logger
}

func NewAccountService(
	pool *pgxpool.Pool,
	accountRepo *repositories.AccountRepo,
	payoutRepo *repositories.PayoutRepo,
	depositRepo *repositories.DepositRepo,
	auditRepo *repositories.AuditRepo,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *AccountService {
	return &AccountService{
		pool:        pool,
		accountRepo: accountRepo,
		payoutRepo:  payoutRepo,
		depositRepo: depositRepo,
		auditRepo:   auditRepo,
		publisher:   publisher,
		cfg:         cfg,
		log:         log,
	}
}

// GeneratePayload creates the TON Proof nonce the client signs.
func (s *AccountService) GeneratePayload(ctx context.Context) (string, error) {
	p, err := s.accountRepo.CreateProofPayload(ctx, nil, 5*time.Minute)
	if err != nil {
		return "", fmt.Errorf("failed to create proof payload: %w", err)
	}
	return p.Payload, nil
}

type ConnectRequest struct {
	Address         string    `json:"address"`          // raw: "0:abc..."
	AddressFriendly string    `json:"address_friendly"` // "EQA..." / "UQA..."
	Network         string    `json:"network"`          // "mainnet" / "testnet"
	PublicKey       string    `json:"public_key"`       // hex
	Proof           ton.Proof `json:"proof"`
}

// Connect verifies the TON Proof and issues a JWT carrying the caller's
// address. The address out of a verified proof is the identity everywhere
// else in the system.
func (s *AccountService) Connect(ctx context.Context, req ConnectRequest) (*models.Account, string, error) {
	// Consume the nonce first, replay protection before signature work.
	if _, err := s.accountRepo.ConsumeProofPayload(ctx, req.Proof.Payload); err != nil {
		return nil, "", fmt.Errorf("invalid or expired proof payload: %w", err)
	}

	workchain, addrHash, err := ton.ParseRawAddress(req.Address)
	if err != nil {
		return nil, "", fmt.Errorf("invalid TON address: %w", err)
	}

	if req.Network != "" && req.Network != s.cfg.TONNetwork {
		return nil, "", fmt.Errorf("network mismatch: expected %s, got %s", s.cfg.TONNetwork, req.Network)
	}

	if err := ton.VerifyProof(req.PublicKey, addrHash, workchain, req.Proof, s.cfg.TONProofAllowedDomains, s.cfg.ProofMaxAge); err != nil {
		return nil, "", fmt.Errorf("TON Proof verification failed: %w", err)
	}

	account := &models.Account{
		Address:         req.Address,
		AddressFriendly: req.AddressFriendly,
		Network:         req.Network,
		PublicKey:       req.PublicKey,
		Verified:        true,
		IsActive:        true,
	}
	if err := s.accountRepo.Connect(ctx, account); err != nil {
		return nil, "", fmt.Errorf("failed to save account: %w", err)
	}

	token, err := auth.GenerateToken(req.Address, s.cfg.JWTSecret, s.cfg.JWTExpiration)
	if err != nil {
		return nil, "", err
	}

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorAddress: &account.Address,
		ActorType:    "user",
		Action:       "account_connected",
		EntityType:   "account",
		Meta:         map[string]any{"address": req.AddressFriendly, "network": req.Network},
	})

	s.log.Info("account connected", zap.String("address", req.AddressFriendly))
	return account, token, nil
}

func (s *AccountService) Disconnect(ctx context.Context, address string) error {
	if err := s.accountRepo.Disconnect(ctx, address); err != nil {
		return err
	}
	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorAddress: &address,
		ActorType:    "user",
		Action:       "account_disconnected",
		EntityType:   "account",
	})
	return nil
}

func (s *AccountService) GetAccount(ctx context.Context, address string) (*models.Account, error) {
	return s.accountRepo.GetByAddress(ctx, address)
}

func (s *AccountService) ListDeposits(ctx context.Context, address string, limit int) ([]models.Deposit, error) {
	return s.depositRepo.ListBySender(ctx, address, limit)
}

// RecordDeposit credits an on-chain transfer to the sender's ledger
// account. Duplicate tx hashes are ignored, so the indexer can replay
// blocks safely. Returns the deposit kind, or "" when it was a duplicate.
func (s *AccountService) RecordDeposit(ctx context.Context, d *models.Deposit) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	accountRepo := s.accountRepo.WithTx(tx)

	fresh, err := s.depositRepo.WithTx(tx).Record(ctx, d)
	if err != nil {
		return "", err
	}
	if !fresh {
		return "", nil
	}

	// Contributions are credited to the desk; the desk service moves them
	// into the credit pool afterwards.
	target := d.Sender
	if d.Kind == models.DepositKindContribution {
		target = models.DeskAccountAddress
	}
	if err := accountRepo.EnsureInternal(ctx, target); err != nil {
		return "", err
	}
	if err := accountRepo.Credit(ctx, target, d.AmountNano); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}

	_ = s.publisher.Publish(ctx, events.StreamDeals, events.Event{
		Type: events.EventDepositReceived,
		Payload: map[string]any{
			"sender": d.Sender,
			"amount": d.AmountNano,
			"kind":   d.Kind,
		},
	})
	return d.Kind, nil
}

// WithdrawBalance sends part of the caller's ledger balance back on chain.
func (s *AccountService) WithdrawBalance(ctx context.Context, address string, amount int64) (*models.Payout, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", models.ErrBound)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	accountRepo := s.accountRepo.WithTx(tx)
	balance, err := accountRepo.GetBalanceForUpdate(ctx, address)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, fmt.Errorf("%w: balance %d", models.ErrBound, balance)
	}
	if err := accountRepo.Debit(ctx, address, amount); err != nil {
		return nil, err
	}

	payout := &models.Payout{
		Address:    address,
		AmountNano: amount,
		Kind:       models.PayoutKindAccount,
	}
	if err := s.payoutRepo.WithTx(tx).Enqueue(ctx, payout); err != nil {
		return nil, err
	}

	_ = s.auditRepo.WithTx(tx).Log(ctx, models.AuditLog{
		ActorAddress: &address,
		ActorType:    "user",
		Action:       "balance_withdrawn",
		EntityType:   "account",
		Meta:         map[string]any{"amount": amount},
	})

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return payout, nil
}
