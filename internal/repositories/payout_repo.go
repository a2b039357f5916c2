package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/otcdesk/backend/internal/db"
	"github.com/otcdesk/backend/internal/models"
)

type PayoutRepo struct {
	q db.Querier
}

func NewPayoutRepo(q db.Querier) *PayoutRepo {
	return &PayoutRepo{q: q}
}

func (r *PayoutRepo) WithTx(q db.Querier) *PayoutRepo {
	return &PayoutRepo{q: q}
}

func (r *PayoutRepo) Enqueue(ctx context.Context, p *models.Payout) error {
	return r.q.QueryRow(ctx, `
		INSERT INTO payouts (deal_id, address, amount_nano, kind, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, p.DealID, p.Address, p.AmountNano, p.Kind, models.PayoutStatusPending).Scan(&p.ID, &p.CreatedAt)
}

// ClaimForSending moves up to limit pending payouts to sending and counts
// the attempt, skipping rows another worker already holds. The move commits
// with this statement, so the rows are already out of pending when the
// wallet call happens.
func (r *PayoutRepo) ClaimForSending(ctx context.Context, limit int, maxAttempts int) ([]models.Payout, error) {
	rows, err := r.q.Query(ctx, `
		UPDATE payouts SET status = $1, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM payouts
			WHERE status = $2 AND attempts < $3
			ORDER BY created_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, deal_id, address, amount_nano, kind, status, tx_hash, attempts, last_error, created_at, processed_at
	`, models.PayoutStatusSending, models.PayoutStatusPending, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []models.Payout
	for rows.Next() {
		var p models.Payout
		if err := rows.Scan(&p.ID, &p.DealID, &p.Address, &p.AmountNano, &p.Kind, &p.Status,
			&p.TxHash, &p.Attempts, &p.LastError, &p.CreatedAt, &p.ProcessedAt); err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, nil
}

func (r *PayoutRepo) MarkSent(ctx context.Context, id uuid.UUID, txHash string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE payouts SET status = $1, tx_hash = $2, processed_at = now() WHERE id = $3
	`, models.PayoutStatusSent, txHash, id)
	return err
}

// ReturnFailed puts a payout back in the pending queue after a send that
// confirmably did not happen. The attempt was already counted at claim time.
func (r *PayoutRepo) ReturnFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.q.Exec(ctx, `
		UPDATE payouts SET status = $1, last_error = $2 WHERE id = $3
	`, models.PayoutStatusPending, reason, id)
	return err
}

// GiveUp parks payouts that exhausted their attempts so the claim query
// stops picking them over and over.
func (r *PayoutRepo) GiveUp(ctx context.Context, maxAttempts int) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE payouts SET status = $1, processed_at = now()
		WHERE status = $2 AND attempts >= $3
	`, models.PayoutStatusFailed, models.PayoutStatusPending, maxAttempts)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PayoutRepo) ListByDeal(ctx context.Context, dealID uuid.UUID) ([]models.Payout, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, deal_id, address, amount_nano, kind, status, tx_hash, attempts, last_error, created_at, processed_at
		FROM payouts WHERE deal_id = $1 ORDER BY created_at
	`, dealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []models.Payout
	for rows.Next() {
		var p models.Payout
		if err := rows.Scan(&p.ID, &p.DealID, &p.Address, &p.AmountNano, &p.Kind, &p.Status,
			&p.TxHash, &p.Attempts, &p.LastError, &p.CreatedAt, &p.ProcessedAt); err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, nil
}
