package repositories

import (
	"context"

	"github.com/otcdesk/backend/internal/db"
	"github.com/otcdesk/backend/internal/models"
)

type DepositRepo struct {
	q db.Querier
}

func NewDepositRepo(q db.Querier) *DepositRepo {
	return &DepositRepo{q: q}
}

func (r *DepositRepo) WithTx(q db.Querier) *DepositRepo {
	return &DepositRepo{q: q}
}

// Record inserts an observed deposit. Returns false without error when the
// tx hash was already recorded, so a replayed block is a no-op.
func (r *DepositRepo) Record(ctx context.Context, d *models.Deposit) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO deposits (tx_hash, tx_lt, sender, amount_nano, comment, kind)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tx_hash) DO NOTHING
	`, d.TxHash, d.TxLT, d.Sender, d.AmountNano, d.Comment, d.Kind)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *DepositRepo) ListBySender(ctx context.Context, sender string, limit int) ([]models.Deposit, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, tx_hash, tx_lt, sender, amount_nano, comment, kind, created_at
		FROM deposits WHERE sender = $1 ORDER BY created_at DESC LIMIT $2
	`, sender, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deposits []models.Deposit
	for rows.Next() {
		var d models.Deposit
		if err := rows.Scan(&d.ID, &d.TxHash, &d.TxLT, &d.Sender, &d.AmountNano, &d.Comment, &d.Kind, &d.CreatedAt); err != nil {
			return nil, err
		}
		deposits = append(deposits, d)
	}
	return deposits, nil
}
