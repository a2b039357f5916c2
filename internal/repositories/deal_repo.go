package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/otcdesk/backend/internal/db"
	"github.com/otcdesk/backend/internal/models"
)

type DealRepo struct {
	q db.Querier
}

func NewDealRepo(q db.Querier) *DealRepo {
	return &DealRepo{q: q}
}

// WithTx returns a copy of the repo bound to the given transaction.
func (r *DealRepo) WithTx(q db.Querier) *DealRepo {
	return &DealRepo{q: q}
}

const dealColumns = `
	id, seller, buyer, seller_partner, buyer_partner,
	price_nano, desk_fee_nano, escrow_nano, buyer_is_taker,
	payment_deadline, data_hashes, status, status_time,
	seller_asset_nano, buyer_asset_nano, seller_asset_sent, buyer_asset_sent,
	refund_by_seller_set, refund_by_seller, refund_by_buyer_set, refund_by_buyer,
	closeout_credit_nano, created_at, updated_at`

func scanDeal(row interface{ Scan(...any) error }) (*models.Deal, error) {
	var d models.Deal
	err := row.Scan(&d.ID, &d.Seller, &d.Buyer, &d.SellerPartner, &d.BuyerPartner,
		&d.Price, &d.DeskFee, &d.Escrow, &d.BuyerIsTaker,
		&d.PaymentDeadline, &d.DataHashes, &d.Status, &d.StatusTime,
		&d.SellerAsset, &d.BuyerAsset, &d.SellerAssetSent, &d.BuyerAssetSent,
		&d.RefundBySellerSet, &d.RefundBySeller, &d.RefundByBuyerSet, &d.RefundByBuyer,
		&d.CloseoutCredit, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DealRepo) Create(ctx context.Context, d *models.Deal) error {
	return r.q.QueryRow(ctx, `
		INSERT INTO deals (seller, buyer, seller_partner, buyer_partner,
		                   price_nano, desk_fee_nano, escrow_nano, buyer_is_taker,
		                   payment_deadline, data_hashes, status, status_time, closeout_credit_nano)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`, d.Seller, d.Buyer, d.SellerPartner, d.BuyerPartner,
		d.Price, d.DeskFee, d.Escrow, d.BuyerIsTaker,
		d.PaymentDeadline, d.DataHashes, d.Status, d.StatusTime, d.CloseoutCredit,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

func (r *DealRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	return scanDeal(r.q.QueryRow(ctx, `SELECT`+dealColumns+` FROM deals WHERE id = $1`, id))
}

// GetByIDForUpdate locks the deal row for the duration of the transaction.
// Every mutating deal operation goes through this lock so concurrent calls
// serialize instead of clobbering each other.
func (r *DealRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	return scanDeal(r.q.QueryRow(ctx, `SELECT`+dealColumns+` FROM deals WHERE id = $1 FOR UPDATE`, id))
}

func (r *DealRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string, statusTime time.Time) error {
	_, err := r.q.Exec(ctx, `
		UPDATE deals SET status = $1, status_time = $2, updated_at = now() WHERE id = $3
	`, status, statusTime, id)
	return err
}

func (r *DealRepo) UpdateDeadline(ctx context.Context, id uuid.UUID, deadline time.Time) error {
	_, err := r.q.Exec(ctx, `
		UPDATE deals SET payment_deadline = $1, updated_at = now() WHERE id = $2
	`, deadline, id)
	return err
}

// AppendDataHash adds a content-commitment hash to the deal's append-only
// hash list.
func (r *DealRepo) AppendDataHash(ctx context.Context, id uuid.UUID, hash string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE deals SET data_hashes = array_append(data_hashes, $1), updated_at = now() WHERE id = $2
	`, hash, id)
	return err
}

func (r *DealRepo) UpdateProposals(ctx context.Context, d *models.Deal) error {
	_, err := r.q.Exec(ctx, `
		UPDATE deals SET refund_by_seller_set = $1, refund_by_seller = $2,
		                 refund_by_buyer_set = $3, refund_by_buyer = $4,
		                 updated_at = now()
		WHERE id = $5
	`, d.RefundBySellerSet, d.RefundBySeller, d.RefundByBuyerSet, d.RefundByBuyer, d.ID)
	return err
}

func (r *DealRepo) UpdateAssets(ctx context.Context, d *models.Deal) error {
	_, err := r.q.Exec(ctx, `
		UPDATE deals SET seller_asset_nano = $1, buyer_asset_nano = $2,
		                 seller_asset_sent = $3, buyer_asset_sent = $4,
		                 updated_at = now()
		WHERE id = $5
	`, d.SellerAsset, d.BuyerAsset, d.SellerAssetSent, d.BuyerAssetSent, d.ID)
	return err
}

func (r *DealRepo) MarkAssetSent(ctx context.Context, id uuid.UUID, seller bool) error {
	col := "buyer_asset_sent"
	if seller {
		col = "seller_asset_sent"
	}
	_, err := r.q.Exec(ctx, `UPDATE deals SET `+col+` = TRUE, updated_at = now() WHERE id = $1`, id)
	return err
}

type DealFilter struct {
	Participant *string // seller or buyer
	Status      *string
	Limit       int
	Offset      int
}

func (r *DealRepo) List(ctx context.Context, f DealFilter) ([]models.Deal, error) {
	query := `SELECT` + dealColumns + ` FROM deals`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.Participant != nil {
		where = append(where, fmt.Sprintf("(seller = $%d OR buyer = $%d)", argIdx, argIdx))
		args = append(args, *f.Participant)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *d)
	}
	return deals, nil
}

// ListEscalatable returns pre-terminal deals whose escalation window has
// opened, for the worker's reminder pass.
func (r *DealRepo) ListEscalatable(ctx context.Context, now time.Time) ([]models.Deal, error) {
	rows, err := r.q.Query(ctx, `
		SELECT`+dealColumns+`
		FROM deals
		WHERE status IN ($1, $2) AND payment_deadline + $3::interval <= $4
	`, models.DealStatusRunning, models.DealStatusCloseoutProposed,
		fmt.Sprintf("%d seconds", int(models.EscalationGrace.Seconds())), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *d)
	}
	return deals, nil
}
