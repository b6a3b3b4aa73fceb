package shop

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"shopifyapp/pkg/db"
)

type Repository struct {
	db db.DBTX
}

func NewRepository(db db.DBTX) *Repository {
	return &Repository{db: db}
}

const selectColumns = `
SELECT id, shopify_domain, COALESCE(shopify_token, ''), COALESCE(namespace, ''),
       grandfathered, freemium, plan_id, created_at, updated_at, deleted_at
FROM shops
`

func scanShop(row pgx.Row) (*Shop, error) {
	s := &Shop{}
	if err := row.Scan(
		&s.ID, &s.Domain, &s.Token, &s.Namespace,
		&s.Grandfathered, &s.Freemium, &s.PlanID, &s.CreatedAt, &s.UpdatedAt, &s.DeletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *Repository) GetByID(ctx context.Context, id int64, withTrashed bool) (*Shop, error) {
	q := selectColumns + `WHERE id = $1 AND ($2 OR deleted_at IS NULL)`
	return scanShop(r.db.QueryRow(ctx, q, id, withTrashed))
}

// GetByDomain looks a shop up by its sanitized domain. Uninstalled shops are
// only returned when withTrashed is set.
func (r *Repository) GetByDomain(ctx context.Context, domain string, withTrashed bool) (*Shop, error) {
	q := selectColumns + `WHERE shopify_domain = $1 AND ($2 OR deleted_at IS NULL)`
	return scanShop(r.db.QueryRow(ctx, q, domain, withTrashed))
}

// Create inserts a shop. An empty token is stored as NULL.
func (r *Repository) Create(ctx context.Context, domain, token string) (*Shop, error) {
	const q = `
INSERT INTO shops (shopify_domain, shopify_token)
VALUES ($1, NULLIF($2, ''))
RETURNING id, shopify_domain, COALESCE(shopify_token, ''), COALESCE(namespace, ''),
          grandfathered, freemium, plan_id, created_at, updated_at, deleted_at
`
	s, err := scanShop(r.db.QueryRow(ctx, q, domain, token))
	if err != nil {
		return nil, fmt.Errorf("create shop %s: %w", domain, err)
	}
	return s, nil
}

func (r *Repository) SetAccessToken(ctx context.Context, id int64, token string) error {
	const q = `UPDATE shops SET shopify_token = NULLIF($2, ''), updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, "set access token", q, id, token)
}

// SetToPlan points the shop at planID. A paying shop is no longer freemium.
func (r *Repository) SetToPlan(ctx context.Context, id int64, planID int64) error {
	const q = `UPDATE shops SET plan_id = $2, freemium = FALSE, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, "set to plan", q, id, planID)
}

func (r *Repository) SetAsFreemium(ctx context.Context, id int64) error {
	const q = `UPDATE shops SET freemium = TRUE, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, "set freemium", q, id)
}

func (r *Repository) SetNamespace(ctx context.Context, id int64, namespace string) error {
	const q = `UPDATE shops SET namespace = NULLIF($2, ''), updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, "set namespace", q, id, namespace)
}

// Clean drops the access token and plan pointer, as after an uninstall.
func (r *Repository) Clean(ctx context.Context, id int64) error {
	const q = `UPDATE shops SET shopify_token = NULL, plan_id = NULL, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, "clean", q, id)
}

// SoftDelete trashes the shop and its live charges in one statement. Both get
// the same deleted_at so Restore can bring back exactly those charges.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	const q = `
WITH s AS (
  UPDATE shops SET deleted_at = NOW(), updated_at = NOW()
  WHERE id = $1 AND deleted_at IS NULL
  RETURNING id, deleted_at
)
UPDATE charges c SET deleted_at = s.deleted_at, updated_at = NOW()
FROM s
WHERE c.shop_id = s.id AND c.deleted_at IS NULL
`
	return r.exec(ctx, "soft delete", q, id)
}

// Restore un-trashes the shop and the charges trashed along with it.
func (r *Repository) Restore(ctx context.Context, id int64) error {
	const q = `
WITH prev AS (
  SELECT id, deleted_at FROM shops WHERE id = $1 AND deleted_at IS NOT NULL FOR UPDATE
), s AS (
  UPDATE shops SET deleted_at = NULL, updated_at = NOW()
  FROM prev WHERE shops.id = prev.id
  RETURNING shops.id
)
UPDATE charges c SET deleted_at = NULL, updated_at = NOW()
FROM prev
WHERE c.shop_id = prev.id AND c.deleted_at >= prev.deleted_at
`
	return r.exec(ctx, "restore", q, id)
}

func (r *Repository) exec(ctx context.Context, op, q string, args ...any) error {
	if _, err := r.db.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("shop %s: %w", op, err)
	}
	return nil
}
