package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/otcdesk/backend/internal/config"
	"github.com/otcdesk/backend/internal/events"
	"github.com/otcdesk/backend/internal/models"
	"github.com/otcdesk/backend/internal/repositories"
	"go.uber.org/zap"
)

// DealService runs the deal lifecycle: prolongation, termination, closeout,
// escalation, resolution and the pull-payment withdrawals. Every mutating
// operation runs in one transaction with the deal row locked, so concurrent
// calls on the same deal serialize.
type DealService struct {
	pool        *pgxpool.Pool
	dealRepo    *repositories.DealRepo
	deskRepo    *repositories.DeskRepo
	accountRepo *repositories.AccountRepo
	payoutRepo  *repositories.PayoutRepo
	auditRepo   *repositories.AuditRepo
	publisher   events.Publisher
	cfg         *config.Config
	log         *zap.Logger
	now         func() time.Time
}

func NewDealService(
	pool *pgxpool.Pool,
	dealRepo *repositories.DealRepo,
	deskRepo *repositories.DeskRepo,
	accountRepo *repositories.AccountRepo,
	payoutRepo *repositories.PayoutRepo,
	auditRepo *repositories.AuditRepo,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *DealService {
	return &DealService{
		pool:        pool,
		dealRepo:    dealRepo,
		deskRepo:    deskRepo,
		accountRepo: accountRepo,
		payoutRepo:  payoutRepo,
		auditRepo:   auditRepo,
		publisher:   publisher,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// transition validates and performs a status transition with audit logging.
// StatusTime only moves on an actual transition, never on a proposal update
// that leaves the status alone.
func (s *DealService) transition(ctx context.Context, q *repositories.DealRepo, audit *repositories.AuditRepo, deal *models.Deal, newStatus string, actor string, at time.Time) error {
	if !models.IsValidTransition(deal.Status, newStatus) {
		return fmt.Errorf("%w: cannot go from %s to %s", models.ErrBadState, deal.Status, newStatus)
	}

	oldStatus := deal.Status
	if err := q.UpdateStatus(ctx, deal.ID, newStatus, at); err != nil {
		return err
	}
	deal.Status = newStatus
	deal.StatusTime = at

	_ = audit.Log(ctx, models.AuditLog{
		ActorAddress: &actor,
		ActorType:    "user",
		Action:       fmt.Sprintf("deal_status_%s_to_%s", oldStatus, newStatus),
		EntityType:   "deal",
		EntityID:     &deal.ID,
		Meta:         map[string]any{"old_status": oldStatus, "new_status": newStatus},
	})
	return nil
}

func (s *DealService) publish(eventType string, payload map[string]any) {
	err := s.publisher.Publish(context.Background(), events.StreamDeals, events.Event{
		Type:    eventType,
		Payload: payload,
	})
	if err != nil {
		s.log.Warn("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}

// Prolong pushes the payment deadline to now + window and appends the
// caller's hash. Seller only; the deadline never moves backwards.
func (s *DealService) Prolong(ctx context.Context, dealID uuid.UUID, caller string, window time.Duration, hash string) (*models.Deal, error) {
	now := s.now()
	newDeadline := now.Add(window)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	dealRepo := s.dealRepo.WithTx(tx)
	deal, err := dealRepo.GetByIDForUpdate(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if err := deal.CanProlong(caller, newDeadline); err != nil {
		return nil, err
	}

	if err := dealRepo.UpdateDeadline(ctx, dealID, newDeadline); err != nil {
		return nil, err
	}
	deal.PaymentDeadline = newDeadline
	if hash != "" {
		if err := dealRepo.AppendDataHash(ctx, dealID, hash); err != nil {
			return nil, err
		}
		deal.DataHashes = append(deal.DataHashes, hash)
	}

	_ = s.auditRepo.WithTx(tx).Log(ctx, models.AuditLog{
		ActorAddress: &caller,
		ActorType:    "user",
		Action:       "deal_prolonged",
		EntityType:   "deal",
		EntityID:     &dealID,
		Meta:         map[string]any{"payment_deadline": newDeadline},
	})

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.publish(events.EventDeadlineProlongation, map[string]any{
		"deal_id":          dealID.String(),
		"payment_deadline": newDeadline,
	})
	return deal, nil
}

// Terminate ends the deal in the seller's favor: the entire escrow becomes
// the seller's asset and no fee is taken.
func (s *DealService) Terminate(ctx context.Context, dealID uuid.UUID, caller string) (*models.Deal, error) {
	now := s.now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	dealRepo := s.dealRepo.WithTx(tx)
	deal, err := dealRepo.GetByIDForUpdate(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if err := deal.CanTerminate(caller, now); err != nil {
		return nil, err
	}

	deal.SettleTermination()
	if err := dealRepo.UpdateAssets(ctx, deal); err != nil {
		return nil, err
	}
	if err := s.transition(ctx, dealRepo, s.auditRepo.WithTx(tx), deal, models.DealStatusTerminated, caller, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.publish(events.EventTermination, map[string]any{
		"deal_id":      dealID.String(),
		"caller":       caller,
		"seller_asset": deal.SellerAsset,
	})
	return deal, nil
}

// CloseOut records the caller's proposal for the seller's share of the
// escrow and settles the deal once the proposals agree.
func (s *DealService) CloseOut(ctx context.Context, dealID uuid.UUID, caller string, amount int64) (*models.Deal, error) {
	now := s.now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	dealRepo := s.dealRepo.WithTx(tx)
	auditRepo := s.auditRepo.WithTx(tx)
	deal, err := dealRepo.GetByIDForUpdate(ctx, dealID)
	if err != nil {
		return nil, err
	}

	closed, err := deal.ApplyCloseout(caller, amount)
	if err != nil {
		return nil, err
	}
	if err := dealRepo.UpdateProposals(ctx, deal); err != nil {
		return nil, err
	}

	var recovery int64
	if closed {
		recovery, err = s.settle(ctx, tx, deal, deal.RefundBySeller)
		if err != nil {
			return nil, err
		}
		if err := s.transition(ctx, dealRepo, auditRepo, deal, models.DealStatusClosedOut, caller, now); err != nil {
			return nil, err
		}
	} else if deal.Status == models.DealStatusRunning {
		if err := s.transition(ctx, dealRepo, auditRepo, deal, models.DealStatusCloseoutProposed, caller, now); err != nil {
			return nil, err
		}
	} else {
		// Revised proposal while one is already pending: no transition,
		// just the audit trail.
		_ = auditRepo.Log(ctx, models.AuditLog{
			ActorAddress: &caller,
			ActorType:    "user",
			Action:       "closeout_proposal_updated",
			EntityType:   "deal",
			EntityID:     &dealID,
			Meta:         map[string]any{"amount": amount},
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if closed {
		s.publish(events.EventCloseout, map[string]any{
			"deal_id":      dealID.String(),
			"seller_asset": deal.SellerAsset,
			"buyer_asset":  deal.BuyerAsset,
		})
		if deal.DeskFee > 0 {
			s.publish(events.EventFeePayment, map[string]any{
				"deal_id": dealID.String(),
				"amount":  deal.DeskFee,
			})
		}
		if recovery > 0 {
			s.publish(events.EventCloseoutCreditCollected, map[string]any{
				"deal_id": dealID.String(),
				"amount":  recovery,
			})
		}
	} else {
		s.publish(events.EventCloseoutProposition, map[string]any{
			"deal_id": dealID.String(),
			"caller":  caller,
			"amount":  amount,
		})
	}
	return deal, nil
}

// Escalate hands a stuck deal to arbitration. Assignment from the roster is
// best effort; an empty roster leaves the deal unassigned for the
// arbitration manager to pick up.
func (s *DealService) Escalate(ctx context.Context, dealID uuid.UUID, caller string, claimHash string) (*models.Deal, error) {
	now := s.now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	dealRepo := s.dealRepo.WithTx(tx)
	deskRepo := s.deskRepo.WithTx(tx)
	deal, err := dealRepo.GetByIDForUpdate(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if err := deal.CanEscalate(caller, now); err != nil {
		return nil, err
	}
	if claimHash != "" {
		if err := dealRepo.AppendDataHash(ctx, dealID, claimHash); err != nil {
			return nil, err
		}
		deal.DataHashes = append(deal.DataHashes, claimHash)
	}

	desk, err := deskRepo.GetForUpdate(ctx)
	if err != nil {
		return nil, err
	}
	arbitrator, assigned := desk.NextArbitrator()
	if assigned {
		if err := deskRepo.AssignArbitrator(ctx, dealID, arbitrator); err != nil {
			return nil, err
		}
		if err := deskRepo.Update(ctx, desk); err != nil {
			return nil, err
		}
	}

	if err := s.transition(ctx, dealRepo, s.auditRepo.WithTx(tx), deal, models.DealStatusArbitration, caller, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.publish(events.EventArbitration, map[string]any{
		"deal_id": dealID.String(),
		"caller":  caller,
	})
	if assigned {
		s.publish(events.EventArbitratorAssignment, map[string]any{
			"deal_id":    dealID.String(),
			"arbitrator": arbitrator,
		})
	}
	return deal, nil
}

// Resolve settles a disputed deal with the arbitrator's award to the
// seller. Only the arbitrator assigned to the deal may call.
func (s *DealService) Resolve(ctx context.Context, dealID uuid.UUID, caller string, sellerAward int64, resolutionHash string) (*models.Deal, error) {
	now := s.now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	dealRepo := s.dealRepo.WithTx(tx)
	deskRepo := s.deskRepo.WithTx(tx)
	deal, err := dealRepo.GetByIDForUpdate(ctx, dealID)
	if err != nil {
		return nil, err
	}

	if err := deal.CanResolve(sellerAward); err != nil {
		return nil, err
	}

	assigned, _, assignErr := deskRepo.GetAssignedArbitrator(ctx, dealID)
	if assignErr != nil || caller != assigned {
		return nil, fmt.Errorf("%w: only the assigned arbitrator may resolve", models.ErrUnauthorized)
	}

	if resolutionHash != "" {
		if err := dealRepo.AppendDataHash(ctx, dealID, resolutionHash); err != nil {
			return nil, err
		}
		deal.DataHashes = append(deal.DataHashes, resolutionHash)
	}

	recovery, err := s.settle(ctx, tx, deal, sellerAward)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, dealRepo, s.auditRepo.WithTx(tx), deal, models.DealStatusResolved, caller, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.publish(events.EventDisputeResolution, map[string]any{
		"deal_id":      dealID.String(),
		"arbitrator":   caller,
		"seller_asset": deal.SellerAsset,
		"buyer_asset":  deal.BuyerAsset,
	})
	if deal.DeskFee > 0 {
		s.publish(events.EventFeePayment, map[string]any{
			"deal_id": dealID.String(),
			"amount":  deal.DeskFee,
		})
	}
	if recovery > 0 {
		s.publish(events.EventCloseoutCreditCollected, map[string]any{
			"deal_id": dealID.String(),
			"amount":  recovery,
		})
	}
	return deal, nil
}

// settle records the asset split and, in the same transaction, forwards the
// desk fee from the escrow vault to the desk and returns any recovered
// credit to the pool.
func (s *DealService) settle(ctx context.Context, tx pgx.Tx, deal *models.Deal, sellerShare int64) (int64, error) {
	dealRepo := s.dealRepo.WithTx(tx)
	deskRepo := s.deskRepo.WithTx(tx)
	accountRepo := s.accountRepo.WithTx(tx)

	recovery := deal.Settle(sellerShare)
	if err := dealRepo.UpdateAssets(ctx, deal); err != nil {
		return 0, err
	}

	// Lock order everywhere is deal row, desk row, account rows.
	desk, err := deskRepo.GetForUpdate(ctx)
	if err != nil {
		return 0, err
	}

	escrowAddr := models.EscrowAccountAddress(deal.ID)
	moved := deal.DeskFee + recovery
	if moved > 0 {
		if err := accountRepo.Transfer(ctx, escrowAddr, models.DeskAccountAddress, moved); err != nil {
			return 0, err
		}
	}

	desk.Fund += deal.DeskFee
	desk.CreditPool += recovery
	if err := deskRepo.Update(ctx, desk); err != nil {
		return 0, err
	}
	return recovery, nil
}

// WithdrawSellerAsset pays out the seller's recorded share. Callable by
// anyone once the deal has a terminal disposition; the sent flag flips
// before the funds move, so a double claim fails on the flag.
func (s *DealService) WithdrawSellerAsset(ctx context.Context, dealID uuid.UUID, caller string) (*models.Payout, error) {
	return s.withdrawAsset(ctx, dealID, caller, true)
}

// WithdrawBuyerAsset pays out the buyer's recorded share.
func (s *DealService) WithdrawBuyerAsset(ctx context.Context, dealID uuid.UUID, caller string) (*models.Payout, error) {
	return s.withdrawAsset(ctx, dealID, caller, false)
}

func (s *DealService) withdrawAsset(ctx context.Context, dealID uuid.UUID, caller string, seller bool) (*models.Payout, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	dealRepo := s.dealRepo.WithTx(tx)
	deal, err := dealRepo.GetByIDForUpdate(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if !deal.Settled() {
		return nil, fmt.Errorf("%w: no terminal disposition yet", models.ErrBadState)
	}

	recipient := deal.Buyer
	kind, eventType := models.PayoutKindBuyerAsset, events.EventBuyerAssetWithdrawal
	if seller {
		recipient = deal.Seller
		kind, eventType = models.PayoutKindSellerAsset, events.EventSellerAssetWithdrawal
	}
	amount, sent, _ := deal.AssetFor(recipient)
	if sent {
		return nil, fmt.Errorf("%w: asset already sent", models.ErrBadState)
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: nothing to withdraw", models.ErrBound)
	}

	// Flag first, then move funds.
	if err := dealRepo.MarkAssetSent(ctx, dealID, seller); err != nil {
		return nil, err
	}
	if err := s.accountRepo.WithTx(tx).Debit(ctx, models.EscrowAccountAddress(dealID), amount); err != nil {
		return nil, err
	}

	payout := &models.Payout{
		DealID:     &dealID,
		Address:    recipient,
		AmountNano: amount,
		Kind:       kind,
	}
	if err := s.payoutRepo.WithTx(tx).Enqueue(ctx, payout); err != nil {
		return nil, err
	}

	_ = s.auditRepo.WithTx(tx).Log(ctx, models.AuditLog{
		ActorAddress: &caller,
		ActorType:    "user",
		Action:       kind + "_withdrawn",
		EntityType:   "deal",
		EntityID:     &dealID,
		Meta:         map[string]any{"recipient": recipient, "amount": amount},
	})

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.publish(eventType, map[string]any{
		"deal_id":   dealID.String(),
		"recipient": recipient,
		"amount":    amount,
	})
	return payout, nil
}

func (s *DealService) GetDeal(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	return s.dealRepo.GetByID(ctx, id)
}

func (s *DealService) ListDeals(ctx context.Context, f repositories.DealFilter) ([]models.Deal, error) {
	return s.dealRepo.List(ctx, f)
}

func (s *DealService) GetDealEvents(ctx context.Context, dealID uuid.UUID) ([]models.AuditLog, error) {
	return s.auditRepo.GetByEntity(ctx, "deal", dealID, 100, 0)
}

func (s *DealService) GetAssignedArbitrator(ctx context.Context, dealID uuid.UUID) (string, time.Time, error) {
	return s.deskRepo.GetAssignedArbitrator(ctx, dealID)
}
