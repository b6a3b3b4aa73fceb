package charge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"shopifyapp/pkg/db"
	"shopifyapp/pkg/shopify"
)

// Store is what billing needs from charge persistence.
type Store interface {
	GetByReference(ctx context.Context, chargeID, shopID int64) (*Charge, error)
	LatestForPlan(ctx context.Context, shopID, planID int64) (*Charge, error)
	LatestByType(ctx context.Context, shopID int64, t shopify.ChargeType) (*Charge, error)
	Create(ctx context.Context, c *Charge) error
	DeleteByReference(ctx context.Context, chargeID, shopID int64) error
	Cancel(ctx context.Context, id int64, cancelledOn, expiresOn time.Time) error
}

type Repository struct {
	db db.DBTX
}

var _ Store = (*Repository)(nil)

func NewRepository(db db.DBTX) *Repository {
	return &Repository{db: db}
}

const selectColumns = `
SELECT id, charge_id, shop_id, plan_id, reference_charge, type, status,
       COALESCE(name, ''), price::text, capped_amount::text, COALESCE(terms, ''),
       COALESCE(description, ''), test, trial_days,
       billing_on, activated_on, trial_ends_on, cancelled_on, expires_on,
       created_at, updated_at, deleted_at
FROM charges
`

func scanCharge(row pgx.Row) (*Charge, error) {
	c := &Charge{}
	var price string
	var capped *string
	if err := row.Scan(
		&c.ID, &c.ChargeID, &c.ShopID, &c.PlanID, &c.ReferenceCharge, &c.Type, &c.Status,
		&c.Name, &price, &capped, &c.Terms,
		&c.Description, &c.Test, &c.TrialDays,
		&c.BillingOn, &c.ActivatedOn, &c.TrialEndsOn, &c.CancelledOn, &c.ExpiresOn,
		&c.CreatedAt, &c.UpdatedAt, &c.DeletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var err error
	if c.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("charge %d price: %w", c.ID, err)
	}
	if capped != nil {
		v, err := decimal.NewFromString(*capped)
		if err != nil {
			return nil, fmt.Errorf("charge %d capped amount: %w", c.ID, err)
		}
		c.CappedAmount = &v
	}
	return c, nil
}

// GetByReference finds a live charge by the API's charge id.
func (r *Repository) GetByReference(ctx context.Context, chargeID, shopID int64) (*Charge, error) {
	q := selectColumns + `WHERE charge_id = $1 AND shop_id = $2 AND deleted_at IS NULL`
	return scanCharge(r.db.QueryRow(ctx, q, chargeID, shopID))
}

// LatestForPlan is the most recent charge a shop made for a plan.
func (r *Repository) LatestForPlan(ctx context.Context, shopID, planID int64) (*Charge, error) {
	q := selectColumns + `
WHERE shop_id = $1 AND plan_id = $2 AND deleted_at IS NULL
ORDER BY created_at DESC, id DESC
LIMIT 1`
	return scanCharge(r.db.QueryRow(ctx, q, shopID, planID))
}

func (r *Repository) LatestByType(ctx context.Context, shopID int64, t shopify.ChargeType) (*Charge, error) {
	q := selectColumns + `
WHERE shop_id = $1 AND type = $2 AND deleted_at IS NULL
ORDER BY created_at DESC, id DESC
LIMIT 1`
	return scanCharge(r.db.QueryRow(ctx, q, shopID, t))
}

func (r *Repository) Create(ctx context.Context, c *Charge) error {
	const q = `
INSERT INTO charges (
    charge_id, shop_id, plan_id, reference_charge, type, status, name, price,
    capped_amount, terms, description, test, trial_days,
    billing_on, activated_on, trial_ends_on, cancelled_on, expires_on
)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8::numeric,
        $9::numeric, NULLIF($10, ''), NULLIF($11, ''), $12, $13,
        $14, $15, $16, $17, $18)
RETURNING id, created_at, updated_at
`
	var capped *string
	if c.CappedAmount != nil {
		s := c.CappedAmount.StringFixed(2)
		capped = &s
	}
	if err := r.db.QueryRow(ctx, q,
		c.ChargeID, c.ShopID, c.PlanID, c.ReferenceCharge, c.Type, c.Status, c.Name, c.Price.StringFixed(2),
		capped, c.Terms, c.Description, c.Test, c.TrialDays,
		c.BillingOn, c.ActivatedOn, c.TrialEndsOn, c.CancelledOn, c.ExpiresOn,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return fmt.Errorf("create charge %d: %w", c.ChargeID, err)
	}
	return nil
}

// DeleteByReference soft deletes every live row for an API charge id. Missing
// rows are not an error.
func (r *Repository) DeleteByReference(ctx context.Context, chargeID, shopID int64) error {
	const q = `
UPDATE charges SET deleted_at = NOW(), updated_at = NOW()
WHERE charge_id = $1 AND shop_id = $2 AND deleted_at IS NULL
`
	if _, err := r.db.Exec(ctx, q, chargeID, shopID); err != nil {
		return fmt.Errorf("delete charge %d: %w", chargeID, err)
	}
	return nil
}

func (r *Repository) Cancel(ctx context.Context, id int64, cancelledOn, expiresOn time.Time) error {
	const q = `
UPDATE charges
SET status = 'cancelled', cancelled_on = $2, expires_on = $3, updated_at = NOW()
WHERE id = $1
`
	tag, err := r.db.Exec(ctx, q, id, Day(cancelledOn), Day(expiresOn))
	if err != nil {
		return fmt.Errorf("cancel charge %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
