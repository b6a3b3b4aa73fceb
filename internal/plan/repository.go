package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"shopifyapp/pkg/config"
	"shopifyapp/pkg/db"
)

// Store is the read/write surface billing needs from plans.
type Store interface {
	GetByID(ctx context.Context, id int64) (*Plan, error)
	GetDefault(ctx context.Context) (*Plan, error)
	Create(ctx context.Context, p *Plan) error
}

type Repository struct {
	db db.DBTX
}

var _ Store = (*Repository)(nil)

func NewRepository(db db.DBTX) *Repository {
	return &Repository{db: db}
}

const selectColumns = `
SELECT id, type, name, price::text, capped_amount::text, COALESCE(terms, ''),
       trial_days, test, on_install, created_at, updated_at
FROM plans
`

func scanPlan(row pgx.Row) (*Plan, error) {
	p := &Plan{}
	var price string
	var capped *string
	if err := row.Scan(
		&p.ID, &p.Type, &p.Name, &price, &capped, &p.Terms,
		&p.TrialDays, &p.Test, &p.OnInstall, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("plan %d price: %w", p.ID, err)
	}
	if capped != nil {
		c, err := decimal.NewFromString(*capped)
		if err != nil {
			return nil, fmt.Errorf("plan %d capped amount: %w", p.ID, err)
		}
		p.CappedAmount = &c
	}
	return p, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Plan, error) {
	return scanPlan(r.db.QueryRow(ctx, selectColumns+`WHERE id = $1`, id))
}

// GetDefault returns the plan offered on install.
func (r *Repository) GetDefault(ctx context.Context) (*Plan, error) {
	return scanPlan(r.db.QueryRow(ctx, selectColumns+`WHERE on_install ORDER BY id LIMIT 1`))
}

func (r *Repository) Create(ctx context.Context, p *Plan) error {
	const q = `
INSERT INTO plans (type, name, price, capped_amount, terms, trial_days, test, on_install)
VALUES ($1, $2, $3::numeric, $4::numeric, NULLIF($5, ''), $6, $7, $8)
RETURNING id, created_at, updated_at
`
	var capped *string
	if p.CappedAmount != nil {
		s := p.CappedAmount.StringFixed(2)
		capped = &s
	}
	if err := r.db.QueryRow(ctx, q,
		p.Type, p.Name, p.Price.StringFixed(2), capped, p.Terms, p.TrialDays, p.Test, p.OnInstall,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("create plan %q: %w", p.Name, err)
	}
	return nil
}

// EnsureOnInstall returns the on-install plan, creating it from defaults when
// none exists yet.
func EnsureOnInstall(ctx context.Context, s Store, d config.PlanDefaults) (*Plan, error) {
	p, err := s.GetDefault(ctx)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	p, err = FromDefaults(d)
	if err != nil {
		return nil, err
	}
	if err := s.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// FromDefaults builds the on-install plan described by configuration.
func FromDefaults(d config.PlanDefaults) (*Plan, error) {
	t, err := ParseType(d.Type)
	if err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return nil, fmt.Errorf("default plan price %q: %w", d.Price, err)
	}
	p := &Plan{
		Type:      t,
		Name:      d.Name,
		Price:     price,
		Terms:     d.Terms,
		TrialDays: d.TrialDays,
		Test:      d.Test,
		OnInstall: true,
	}
	if d.CappedAmount != "" {
		c, err := decimal.NewFromString(d.CappedAmount)
		if err != nil {
			return nil, fmt.Errorf("default plan capped amount %q: %w", d.CappedAmount, err)
		}
		p.CappedAmount = &c
	}
	return p, nil
}
