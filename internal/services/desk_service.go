package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/otcdesk/backend/internal/config"
	"github.com/otcdesk/backend/internal/events"
	"github.com/otcdesk/backend/internal/models"
	"github.com/otcdesk/backend/internal/repositories"
	"go.uber.org/zap"
)

// DeskService owns the desk side of the protocol: deal intake with the
// escrow and credit plumbing, fee withdrawal, the arbitrator roster and
// desk administration.
type DeskService struct {
	pool        *pgxpool.Pool
	deskRepo    *repositories.DeskRepo
	dealRepo    *repositories.DealRepo
	accountRepo *repositories.AccountRepo
	payoutRepo  *repositories.PayoutRepo
	auditRepo   *repositories.AuditRepo
	publisher   events.Publisher
	cfg         *config.Config
	log         *zap.Logger
	now         func() time.Time
}

func NewDeskService(
	pool *pgxpool.Pool,
	deskRepo *repositories.DeskRepo,
	dealRepo *repositories.DealRepo,
	accountRepo *repositories.AccountRepo,
	payoutRepo *repositories.PayoutRepo,
	auditRepo *repositories.AuditRepo,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *DeskService {
	return &DeskService{
		pool:        pool,
		deskRepo:    deskRepo,
		dealRepo:    dealRepo,
		accountRepo: accountRepo,
		payoutRepo:  payoutRepo,
		auditRepo:   auditRepo,
		publisher:   publisher,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

func (s *DeskService) publish(eventType string, payload map[string]any) {
	err := s.publisher.Publish(context.Background(), events.StreamDeals, events.Event{
		Type:    eventType,
		Payload: payload,
	})
	if err != nil {
		s.log.Warn("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}

// Bootstrap creates the desk row and its ledger account on first boot.
func (s *DeskService) Bootstrap(ctx context.Context) error {
	credit, err := models.ParseTON(s.cfg.CloseoutCreditTON)
	if err != nil {
		return fmt.Errorf("bad CLOSEOUT_CREDIT_TON: %w", err)
	}
	if err := s.accountRepo.EnsureInternal(ctx, models.DeskAccountAddress); err != nil {
		return err
	}
	return s.deskRepo.Ensure(ctx, s.cfg.DeskOwnerAddress, s.cfg.DeskBeneficiaryAddress, s.cfg.ArbitrationManager, credit)
}

type NewDealInput struct {
	Buyer         string
	SellerPartner string
	BuyerPartner  string
	PriceNano     int64
	BuyerIsTaker  bool
	AttachedNano  int64 // must equal the required escrow exactly
	PaymentWindow time.Duration
	DataHashes    []string
}

// NewDeal opens an escrow vault funded from the seller's ledger balance.
// The attached value must match the required escrow to the nano: price for
// a seller-taker deal, price plus fee for a buyer-taker one. If the buyer
// looks short of gas money, the desk fronts the closeout credit from its
// pool; a dry pool just issues less, never blocks the deal.
func (s *DeskService) NewDeal(ctx context.Context, seller string, in NewDealInput) (*models.Deal, error) {
	if in.PriceNano <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", models.ErrBound)
	}
	if in.Buyer == "" || in.Buyer == seller {
		return nil, fmt.Errorf("%w: buyer must be a distinct address", models.ErrBound)
	}
	window := in.PaymentWindow
	if window <= 0 {
		window = s.cfg.DefaultPaymentWindow
	}

	required := models.RequiredEscrow(in.PriceNano, in.BuyerIsTaker)
	if in.AttachedNano != required {
		return nil, fmt.Errorf("%w: attached %d, required %d", models.ErrValueMismatch, in.AttachedNano, required)
	}

	now := s.now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	accountRepo := s.accountRepo.WithTx(tx)
	deskRepo := s.deskRepo.WithTx(tx)

	if err := accountRepo.EnsureInternal(ctx, in.Buyer); err != nil {
		return nil, err
	}

	deal := &models.Deal{
		Seller:          seller,
		Buyer:           in.Buyer,
		SellerPartner:   in.SellerPartner,
		BuyerPartner:    in.BuyerPartner,
		Price:           in.PriceNano,
		DeskFee:         models.DeskFee(in.PriceNano),
		Escrow:          required,
		BuyerIsTaker:    in.BuyerIsTaker,
		PaymentDeadline: now.Add(window),
		DataHashes:      in.DataHashes,
		Status:          models.DealStatusRunning,
		StatusTime:      now,
	}

	// Credit decision needs the desk and buyer rows locked before the
	// deal exists.
	desk, err := deskRepo.GetForUpdate(ctx)
	if err != nil {
		return nil, err
	}
	buyerBalance, err := accountRepo.GetBalanceForUpdate(ctx, in.Buyer)
	if err != nil {
		return nil, err
	}
	credit := desk.IssueCredit(buyerBalance)
	deal.CloseoutCredit = credit

	if err := s.dealRepo.WithTx(tx).Create(ctx, deal); err != nil {
		return nil, err
	}

	escrowAddr := models.EscrowAccountAddress(deal.ID)
	if err := accountRepo.EnsureInternal(ctx, escrowAddr); err != nil {
		return nil, err
	}
	if err := accountRepo.Transfer(ctx, seller, escrowAddr, required); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrValueMismatch, err)
	}

	if credit > 0 {
		if err := accountRepo.Transfer(ctx, models.DeskAccountAddress, in.Buyer, credit); err != nil {
			return nil, err
		}
		if err := deskRepo.Update(ctx, desk); err != nil {
			return nil, err
		}
	}

	_ = s.auditRepo.WithTx(tx).Log(ctx, models.AuditLog{
		ActorAddress: &seller,
		ActorType:    "user",
		Action:       "deal_created",
		EntityType:   "deal",
		EntityID:     &deal.ID,
		Meta: map[string]any{
			"buyer":          in.Buyer,
			"price":          in.PriceNano,
			"escrow":         required,
			"buyer_is_taker": in.BuyerIsTaker,
		},
	})

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.publish(events.EventDealCreation, map[string]any{
		"deal_id": deal.ID.String(),
		"seller":  seller,
		"buyer":   in.Buyer,
		"price":   in.PriceNano,
	})
	if credit > 0 {
		s.publish(events.EventCloseoutCreditIssuance, map[string]any{
			"deal_id": deal.ID.String(),
			"buyer":   in.Buyer,
			"amount":  credit,
		})
	}
	return deal, nil
}

// Contribute moves funds from the caller's ledger balance into the
// closeout-credit pool. Open to anyone.
func (s *DeskService) Contribute(ctx context.Context, caller string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: contribution must be positive", models.ErrBound)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	deskRepo := s.deskRepo.WithTx(tx)
	desk, err := deskRepo.GetForUpdate(ctx)
	if err != nil {
		return err
	}
	if err := s.accountRepo.WithTx(tx).Transfer(ctx, caller, models.DeskAccountAddress, amount); err != nil {
		return err
	}
	desk.CreditPool += amount
	if err := deskRepo.Update(ctx, desk); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.publish(events.EventCreditPoolContribution, map[string]any{
		"contributor": caller,
		"amount":      amount,
	})
	return nil
}

// ContributeDeposit feeds an on-chain contribution straight into the pool;
// the indexer already credited the desk account with the coins.
func (s *DeskService) ContributeDeposit(ctx context.Context, contributor string, amount int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	deskRepo := s.deskRepo.WithTx(tx)
	desk, err := deskRepo.GetForUpdate(ctx)
	if err != nil {
		return err
	}
	desk.CreditPool += amount
	if err := deskRepo.Update(ctx, desk); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.publish(events.EventCreditPoolContribution, map[string]any{
		"contributor": contributor,
		"amount":      amount,
	})
	return nil
}

// Withdraw pays collected fees out to the beneficiary. Beneficiary only.
// A zero amount empties the fund.
func (s *DeskService) Withdraw(ctx context.Context, caller string, amount int64) (*models.Payout, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	deskRepo := s.deskRepo.WithTx(tx)
	desk, err := deskRepo.GetForUpdate(ctx)
	if err != nil {
		return nil, err
	}
	if caller != desk.Beneficiary {
		return nil, fmt.Errorf("%w: only the beneficiary may withdraw", models.ErrUnauthorized)
	}

	taken, err := desk.WithdrawFund(amount)
	if err != nil {
		return nil, err
	}
	if taken == 0 {
		return nil, fmt.Errorf("%w: fund is empty", models.ErrBound)
	}
	if err := deskRepo.Update(ctx, desk); err != nil {
		return nil, err
	}
	if err := s.accountRepo.WithTx(tx).Debit(ctx, models.DeskAccountAddress, taken); err != nil {
		return nil, err
	}

	payout := &models.Payout{
		Address:    desk.Beneficiary,
		AmountNano: taken,
		Kind:       models.PayoutKindDeskFund,
	}
	if err := s.payoutRepo.WithTx(tx).Enqueue(ctx, payout); err != nil {
		return nil, err
	}

	_ = s.auditRepo.WithTx(tx).Log(ctx, models.AuditLog{
		ActorAddress: &caller,
		ActorType:    "user",
		Action:       "desk_fund_withdrawn",
		EntityType:   "desk",
		Meta:         map[string]any{"amount": taken, "beneficiary": desk.Beneficiary},
	})

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.publish(events.EventDeskWithdrawal, map[string]any{
		"amount":      taken,
		"beneficiary": desk.Beneficiary,
	})
	return payout, nil
}

// --- Administration ---

// mutateDesk runs fn on the locked desk row after the owner check.
func (s *DeskService) mutateDesk(ctx context.Context, caller string, action string, fn func(*models.Desk) error) error {
	return s.mutateDeskAs(ctx, caller, action, (*models.Desk).RequireOwner, fn)
}

// mutateDeskAs is mutateDesk with a caller-supplied role gate.
func (s *DeskService) mutateDeskAs(ctx context.Context, caller string, action string, gate func(*models.Desk, string) error, fn func(*models.Desk) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	deskRepo := s.deskRepo.WithTx(tx)
	desk, err := deskRepo.GetForUpdate(ctx)
	if err != nil {
		return err
	}
	if err := gate(desk, caller); err != nil {
		return err
	}
	if err := fn(desk); err != nil {
		return err
	}
	if err := deskRepo.Update(ctx, desk); err != nil {
		return err
	}

	_ = s.auditRepo.WithTx(tx).Log(ctx, models.AuditLog{
		ActorAddress: &caller,
		ActorType:    "user",
		Action:       action,
		EntityType:   "desk",
	})

	return tx.Commit(ctx)
}

func (s *DeskService) SetBeneficiary(ctx context.Context, caller, beneficiary string) error {
	if beneficiary == "" {
		return fmt.Errorf("%w: beneficiary must not be empty", models.ErrBound)
	}
	return s.mutateDesk(ctx, caller, "desk_beneficiary_set", func(dk *models.Desk) error {
		dk.Beneficiary = beneficiary
		return nil
	})
}

func (s *DeskService) SetArbitrationManager(ctx context.Context, caller, manager string) error {
	if manager == "" {
		return fmt.Errorf("%w: arbitration manager must not be empty", models.ErrBound)
	}
	return s.mutateDesk(ctx, caller, "desk_arbitration_manager_set", func(dk *models.Desk) error {
		dk.ArbitrationManager = manager
		return nil
	})
}

func (s *DeskService) SetCloseoutCredit(ctx context.Context, caller string, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: credit must not be negative", models.ErrBound)
	}
	return s.mutateDesk(ctx, caller, "desk_closeout_credit_set", func(dk *models.Desk) error {
		dk.CloseoutCredit = amount
		return nil
	})
}

func (s *DeskService) TransferOwnership(ctx context.Context, caller, newOwner string) error {
	if newOwner == "" {
		return fmt.Errorf("%w: new owner must not be empty", models.ErrBound)
	}
	return s.mutateDesk(ctx, caller, "desk_ownership_transferred", func(dk *models.Desk) error {
		dk.Owner = newOwner
		return nil
	})
}

func (s *DeskService) AddArbitrator(ctx context.Context, caller, arbitrator string) error {
	return s.mutateDeskAs(ctx, caller, "arbitrator_added", (*models.Desk).RequireArbitrationManager, func(dk *models.Desk) error {
		return dk.AddArbitrator(arbitrator)
	})
}

func (s *DeskService) RemoveArbitrator(ctx context.Context, caller string, index int) error {
	return s.mutateDeskAs(ctx, caller, "arbitrator_removed", (*models.Desk).RequireArbitrationManager, func(dk *models.Desk) error {
		_, err := dk.RemoveArbitrator(index)
		return err
	})
}

// AssignArbitrator lets the arbitration manager put a specific arbitrator
// on a disputed deal, overwriting any round-robin assignment.
func (s *DeskService) AssignArbitrator(ctx context.Context, caller string, dealID uuid.UUID, arbitrator string) error {
	if arbitrator == "" {
		return fmt.Errorf("%w: arbitrator must not be empty", models.ErrBound)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	deskRepo := s.deskRepo.WithTx(tx)
	desk, err := deskRepo.Get(ctx)
	if err != nil {
		return err
	}
	if err := desk.RequireArbitrationManager(caller); err != nil {
		return err
	}

	deal, err := s.dealRepo.WithTx(tx).GetByIDForUpdate(ctx, dealID)
	if err != nil {
		return err
	}
	if deal.Status != models.DealStatusArbitration {
		return fmt.Errorf("%w: deal is %s", models.ErrBadState, deal.Status)
	}
	if err := deskRepo.AssignArbitrator(ctx, dealID, arbitrator); err != nil {
		return err
	}

	_ = s.auditRepo.WithTx(tx).Log(ctx, models.AuditLog{
		ActorAddress: &caller,
		ActorType:    "user",
		Action:       "arbitrator_assigned",
		EntityType:   "deal",
		EntityID:     &dealID,
		Meta:         map[string]any{"arbitrator": arbitrator},
	})

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.publish(events.EventArbitratorAssignment, map[string]any{
		"deal_id":    dealID.String(),
		"arbitrator": arbitrator,
	})
	return nil
}

func (s *DeskService) GetDesk(ctx context.Context) (*models.Desk, error) {
	return s.deskRepo.Get(ctx)
}
