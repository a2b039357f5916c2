package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/otcdesk/backend/internal/db"
	"github.com/otcdesk/backend/internal/models"
)

type DeskRepo struct {
	q db.Querier
}

func NewDeskRepo(q db.Querier) *DeskRepo {
	return &DeskRepo{q: q}
}

func (r *DeskRepo) WithTx(q db.Querier) *DeskRepo {
	return &DeskRepo{q: q}
}

const deskColumns = `
	owner_address, beneficiary, arbitration_manager,
	fund_nano, credit_pool_nano, closeout_credit_nano,
	arbitrators_pool, pool_cursor, updated_at`

func (r *DeskRepo) scan(row interface{ Scan(...any) error }) (*models.Desk, error) {
	var dk models.Desk
	err := row.Scan(&dk.Owner, &dk.Beneficiary, &dk.ArbitrationManager,
		&dk.Fund, &dk.CreditPool, &dk.CloseoutCredit,
		&dk.ArbitratorsPool, &dk.PoolCursor, &dk.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &dk, nil
}

// Ensure creates the singleton desk row on first boot with the configured
// owner, beneficiary and credit size. Subsequent boots leave it untouched.
func (r *DeskRepo) Ensure(ctx context.Context, owner, beneficiary, manager string, closeoutCredit int64) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO desk (id, owner_address, beneficiary, arbitration_manager, closeout_credit_nano)
		VALUES (TRUE, $1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, owner, beneficiary, manager, closeoutCredit)
	return err
}

func (r *DeskRepo) Get(ctx context.Context) (*models.Desk, error) {
	return r.scan(r.q.QueryRow(ctx, `SELECT`+deskColumns+` FROM desk WHERE id = TRUE`))
}

// GetForUpdate locks the desk row; every mutating desk operation and every
// deal settlement that touches fund or credit pool goes through this lock.
func (r *DeskRepo) GetForUpdate(ctx context.Context) (*models.Desk, error) {
	return r.scan(r.q.QueryRow(ctx, `SELECT`+deskColumns+` FROM desk WHERE id = TRUE FOR UPDATE`))
}

func (r *DeskRepo) Update(ctx context.Context, dk *models.Desk) error {
	_, err := r.q.Exec(ctx, `
		UPDATE desk SET owner_address = $1, beneficiary = $2, arbitration_manager = $3,
		                fund_nano = $4, credit_pool_nano = $5, closeout_credit_nano = $6,
		                arbitrators_pool = $7, pool_cursor = $8, updated_at = now()
		WHERE id = TRUE
	`, dk.Owner, dk.Beneficiary, dk.ArbitrationManager,
		dk.Fund, dk.CreditPool, dk.CloseoutCredit,
		dk.ArbitratorsPool, dk.PoolCursor)
	return err
}

// --- Arbitrator assignments ---

func (r *DeskRepo) AssignArbitrator(ctx context.Context, dealID uuid.UUID, arbitrator string) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO deal_arbitrators (deal_id, arbitrator)
		VALUES ($1, $2)
		ON CONFLICT (deal_id) DO UPDATE SET arbitrator = EXCLUDED.arbitrator, assigned_at = now()
	`, dealID, arbitrator)
	return err
}

func (r *DeskRepo) GetAssignedArbitrator(ctx context.Context, dealID uuid.UUID) (string, time.Time, error) {
	var arbitrator string
	var assignedAt time.Time
	err := r.q.QueryRow(ctx, `
		SELECT arbitrator, assigned_at FROM deal_arbitrators WHERE deal_id = $1
	`, dealID).Scan(&arbitrator, &assignedAt)
	return arbitrator, assignedAt, err
}
