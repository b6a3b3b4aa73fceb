package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"shopifyapp/internal/logging"
	"shopifyapp/pkg/db"
)

// Actions recorded against a shop.
const (
	ActionInstalled      = "APP_INSTALLED"
	ActionAuthenticated  = "SHOP_AUTHENTICATED"
	ActionUninstalled    = "APP_UNINSTALLED"
	ActionPlanActivated  = "PLAN_ACTIVATED"
	ActionChargeDeclined = "CHARGE_DECLINED"
	ActionPlanCancelled  = "PLAN_CANCELLED"
	ActionUsageCharged   = "USAGE_CHARGED"
)

// Recorder appends entries to a shop's audit trail.
type Recorder interface {
	Record(ctx context.Context, shopID int64, action, actor string, metadata any) error
}

type Repository struct {
	db db.DBTX
}

var _ Recorder = (*Repository)(nil)

func NewRepository(db db.DBTX) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Record(ctx context.Context, shopID int64, action, actor string, metadata any) error {
	return Insert(ctx, r.db, shopID, action, actor, metadata)
}

// Insert writes one entry through q, which may be a transaction.
func Insert(ctx context.Context, q db.DBTX, shopID int64, action, actor string, metadata any) error {
	var s *string
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("audit metadata: %w", err)
		}
		str := string(b)
		s = &str
	}
	const stmt = `
INSERT INTO audit_logs (shop_id, action, actor, metadata)
VALUES ($1, $2, $3, CAST($4 AS jsonb))
`
	_, err := q.Exec(ctx, stmt, shopID, action, actor, s)
	return err
}

// Log records through rec when it is set. Failures are logged, never
// returned: the audit trail must not undo a completed operation.
func Log(ctx context.Context, rec Recorder, shopID int64, action, actor string, metadata any) {
	if rec == nil {
		return
	}
	if err := rec.Record(ctx, shopID, action, actor, metadata); err != nil {
		logging.From(ctx).Warn().Err(err).Int64("shop_id", shopID).Str("action", action).Msg("audit record failed")
	}
}
