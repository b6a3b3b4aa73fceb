package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"shopifyapp/internal/audit"
	"shopifyapp/internal/charge"
	"shopifyapp/internal/metrics"
	"shopifyapp/internal/plan"
	"shopifyapp/internal/shop"
	"shopifyapp/pkg/config"
	"shopifyapp/pkg/db"
	"shopifyapp/pkg/shopify"
)

var (
	ErrChargeDeclined    = errors.New("billing charge was declined")
	ErrNoRecurringCharge = errors.New("shop has no active recurring charge")
)

// ShopStore is the shop persistence billing writes through.
type ShopStore interface {
	GetByID(ctx context.Context, id int64, withTrashed bool) (*shop.Shop, error)
	SetToPlan(ctx context.Context, id int64, planID int64) error
}

type Stores struct {
	Shops   ShopStore
	Plans   plan.Store
	Charges charge.Store
}

// Transactor runs fn with stores bound to one transaction that holds the
// shop's billing lock.
type Transactor interface {
	InShopTx(ctx context.Context, shopID int64, fn func(Stores) error) error
}

// PgTransactor serialises billing writes per shop with a transaction-scoped
// advisory lock. Plans are read through the shared store since they never
// change once charged.
type PgTransactor struct {
	Pool  *pgxpool.Pool
	Plans plan.Store
}

func (t PgTransactor) InShopTx(ctx context.Context, shopID int64, fn func(Stores) error) error {
	return db.WithTx(ctx, t.Pool, func(tx pgx.Tx) error {
		if err := db.LockShop(ctx, tx, shopID); err != nil {
			return err
		}
		return fn(Stores{
			Shops:   shop.NewRepository(tx),
			Plans:   t.Plans,
			Charges: charge.NewRepository(tx),
		})
	})
}

type Service struct {
	Tx        Transactor
	Stores    Stores
	NewClient shopify.ClientFactory
	Helper    charge.Helper
	Cfg       config.BillingConfig
	AppURL    string
	Log       zerolog.Logger
	// Audit is optional.
	Audit audit.Recorder
}

// ActivatePlan activates the charge the merchant approved and moves the shop
// onto the plan. The previous plan is cancelled and any earlier row for the
// same charge reference is replaced, so repeated confirmations are harmless.
// A declined charge is recorded and reported as ErrChargeDeclined without
// touching the shop's current plan.
func (s *Service) ActivatePlan(ctx context.Context, shopID, planID, chargeRef int64) (*charge.Charge, error) {
	if chargeRef == 0 {
		return nil, shopify.ErrActivateWithoutChargeID
	}

	var (
		created  *charge.Charge
		declined bool
	)
	err := s.Tx.InShopTx(ctx, shopID, func(st Stores) error {
		sh, err := st.Shops.GetByID(ctx, shopID, false)
		if err != nil {
			return fmt.Errorf("activate plan: %w", err)
		}
		p, err := st.Plans.GetByID(ctx, planID)
		if err != nil {
			return fmt.Errorf("activate plan: %w", err)
		}

		api := s.NewClient(sh.Domain, sh.Token)
		resp, err := api.ActivateCharge(ctx, p.ChargeType(), chargeRef)
		if err != nil {
			return err
		}
		status, err := charge.ParseStatus(resp.Status)
		if err != nil {
			return err
		}

		if status != charge.StatusDeclined {
			if _, err := s.cancelCurrent(ctx, st, api, sh, chargeRef); err != nil {
				return err
			}
		}
		if err := st.Charges.DeleteByReference(ctx, chargeRef, sh.ID); err != nil {
			return err
		}

		c := s.chargeFromActivation(sh, p, chargeRef, status, resp)
		if err := st.Charges.Create(ctx, c); err != nil {
			return err
		}
		created = c

		if status == charge.StatusDeclined {
			declined = true
			return nil
		}
		return st.Shops.SetToPlan(ctx, sh.ID, p.ID)
	})
	switch {
	case err != nil:
		metrics.IncBilling("activate", "error")
		return nil, err
	case declined:
		metrics.IncBilling("activate", "declined")
		audit.Log(ctx, s.Audit, shopID, audit.ActionChargeDeclined, "merchant", map[string]any{"planId": planID, "chargeId": chargeRef})
		return created, ErrChargeDeclined
	}
	metrics.IncBilling("activate", "ok")
	audit.Log(ctx, s.Audit, shopID, audit.ActionPlanActivated, "merchant", map[string]any{"planId": planID, "chargeId": chargeRef})
	s.Log.Info().Int64("shop_id", shopID).Int64("plan_id", planID).Int64("charge_id", chargeRef).
		Str("status", string(created.Status)).Msg("plan activated")
	return created, nil
}

func (s *Service) chargeFromActivation(sh *shop.Shop, p *plan.Plan, chargeRef int64, status charge.Status, resp *shopify.Charge) *charge.Charge {
	today := s.Helper.Today()
	planID := p.ID
	c := &charge.Charge{
		ChargeID:     chargeRef,
		ShopID:       sh.ID,
		PlanID:       &planID,
		Type:         p.ChargeType(),
		Status:       status,
		Name:         p.Name,
		Price:        p.Price,
		CappedAmount: p.CappedAmount,
		Terms:        p.Terms,
		Test:         p.Test,
		TrialDays:    p.TrialDays,
		ActivatedOn:  &today,
	}
	if resp.ActivatedOn != nil {
		c.ActivatedOn = dayPtr(resp.ActivatedOn.Time)
	}
	if status == charge.StatusDeclined {
		c.ActivatedOn = nil
		c.CancelledOn = &today
	}
	if p.IsRecurring() {
		if resp.BillingOn != nil {
			c.BillingOn = dayPtr(resp.BillingOn.Time)
		}
		if resp.TrialEndsOn != nil {
			c.TrialEndsOn = dayPtr(resp.TrialEndsOn.Time)
		}
	}
	return c
}

// CancelCurrentPlan cancels the shop's current plan charge with the API and
// locally. It reports false when there is nothing to cancel.
func (s *Service) CancelCurrentPlan(ctx context.Context, shopID int64) (bool, error) {
	return s.cancelInTx(ctx, shopID, true)
}

// CancelCurrentPlanLocally only records the cancellation. Used after an
// uninstall, when the platform has already dropped the app's charges and the
// token no longer works.
func (s *Service) CancelCurrentPlanLocally(ctx context.Context, shopID int64) (bool, error) {
	return s.cancelInTx(ctx, shopID, false)
}

func (s *Service) cancelInTx(ctx context.Context, shopID int64, remote bool) (bool, error) {
	var cancelled bool
	err := s.Tx.InShopTx(ctx, shopID, func(st Stores) error {
		sh, err := st.Shops.GetByID(ctx, shopID, true)
		if err != nil {
			return fmt.Errorf("cancel plan: %w", err)
		}
		var api shopify.API
		if remote {
			api = s.NewClient(sh.Domain, sh.Token)
		}
		cancelled, err = s.cancelCurrent(ctx, st, api, sh, 0)
		return err
	})
	if err != nil {
		metrics.IncBilling("cancel", "error")
		return false, err
	}
	if cancelled {
		metrics.IncBilling("cancel", "ok")
		audit.Log(ctx, s.Audit, shopID, audit.ActionPlanCancelled, cancelActor(remote), nil)
	} else {
		metrics.IncBilling("cancel", "noop")
	}
	return cancelled, nil
}

// cancelCurrent cancels the latest charge of the shop's plan unless it is the
// charge being confirmed (keepRef). A nil api skips the remote call.
func (s *Service) cancelCurrent(ctx context.Context, st Stores, api shopify.API, sh *shop.Shop, keepRef int64) (bool, error) {
	if !sh.HasPlan() {
		return false, nil
	}
	c, err := st.Charges.LatestForPlan(ctx, sh.ID, *sh.PlanID)
	if errors.Is(err, charge.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if c.IsDeclined() || c.IsCancelled() || (keepRef != 0 && c.ChargeID == keepRef) {
		return false, nil
	}

	if api != nil {
		if err := api.CancelCharge(ctx, c.Type, c.ChargeID); err != nil {
			return false, err
		}
	}
	if err := st.Charges.Cancel(ctx, c.ID, s.Helper.Today(), s.Helper.ExpiresOnCancel(c)); err != nil {
		return false, err
	}
	s.Log.Info().Int64("shop_id", sh.ID).Int64("charge_id", c.ChargeID).Msg("plan charge cancelled")
	return true, nil
}

// GetPlanURL creates a charge for planID, or the on-install plan when planID
// is nil, and returns the URL where the merchant confirms it.
func (s *Service) GetPlanURL(ctx context.Context, sh *shop.Shop, planID *int64) (string, error) {
	var (
		p   *plan.Plan
		err error
	)
	if planID == nil {
		p, err = s.Stores.Plans.GetDefault(ctx)
	} else {
		p, err = s.Stores.Plans.GetByID(ctx, *planID)
	}
	if err != nil {
		return "", fmt.Errorf("plan url: %w", err)
	}

	resp, err := s.NewClient(sh.Domain, sh.Token).CreateCharge(ctx, p.ChargeType(), s.PlanDetails(p))
	if err != nil {
		metrics.IncBilling("create_charge", "error")
		return "", err
	}
	if resp.ConfirmationURL == "" {
		metrics.IncBilling("create_charge", "error")
		return "", fmt.Errorf("plan url: charge %d has no confirmation url", resp.ID)
	}
	metrics.IncBilling("create_charge", "ok")
	return resp.ConfirmationURL, nil
}

// PlanDetails is the charge request for p. Usage terms are only sent for
// capped recurring plans.
func (s *Service) PlanDetails(p *plan.Plan) shopify.ChargeDetails {
	d := shopify.ChargeDetails{
		Name:      p.Name,
		Price:     p.Price,
		Test:      p.Test,
		ReturnURL: s.ReturnURL(p.ID),
	}
	if p.HasTrial() {
		d.TrialDays = p.TrialDays
	}
	if p.IsRecurring() && p.IsCapped() {
		d.CappedAmount = p.CappedAmount
		d.Terms = p.Terms
	}
	return d
}

func (s *Service) ReturnURL(planID int64) string {
	return strings.TrimRight(s.AppURL, "/") + s.Cfg.RedirectPath + "/" + strconv.FormatInt(planID, 10)
}

// UsageCharge describes a usage charge against the shop's recurring charge.
type UsageCharge struct {
	Price       decimal.Decimal
	Description string
}

// CreateUsageCharge bills usage against the shop's latest recurring charge
// and records it.
func (s *Service) CreateUsageCharge(ctx context.Context, sh *shop.Shop, uc UsageCharge) (*charge.Charge, error) {
	var created *charge.Charge
	err := s.Tx.InShopTx(ctx, sh.ID, func(st Stores) error {
		rc, err := st.Charges.LatestByType(ctx, sh.ID, shopify.ChargeRecurring)
		if errors.Is(err, charge.ErrNotFound) {
			return ErrNoRecurringCharge
		}
		if err != nil {
			return err
		}
		if !rc.IsActive() || rc.IsCancelled() {
			return ErrNoRecurringCharge
		}

		resp, err := s.NewClient(sh.Domain, sh.Token).CreateUsageCharge(ctx, rc.ChargeID, shopify.UsageChargeDetails{
			Price:       uc.Price,
			Description: uc.Description,
		})
		if err != nil {
			return err
		}

		status := charge.StatusAccepted
		if resp.Status != "" {
			if status, err = charge.ParseStatus(resp.Status); err != nil {
				return err
			}
		}
		ref := rc.ChargeID
		c := &charge.Charge{
			ChargeID:        resp.ID,
			ShopID:          sh.ID,
			PlanID:          rc.PlanID,
			ReferenceCharge: &ref,
			Type:            shopify.ChargeUsage,
			Status:          status,
			Price:           uc.Price,
			Description:     uc.Description,
			Test:            rc.Test,
		}
		if resp.BillingOn != nil {
			c.BillingOn = dayPtr(resp.BillingOn.Time)
		}
		if err := st.Charges.Create(ctx, c); err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		metrics.IncBilling("usage_charge", "error")
		return nil, err
	}
	metrics.IncBilling("usage_charge", "ok")
	audit.Log(ctx, s.Audit, sh.ID, audit.ActionUsageCharged, "app", map[string]any{
		"chargeId": created.ChargeID, "price": uc.Price.StringFixed(2), "description": uc.Description,
	})
	return created, nil
}

func cancelActor(remote bool) string {
	if remote {
		return "merchant"
	}
	return "webhook"
}

func dayPtr(t time.Time) *time.Time {
	d := charge.Day(t)
	return &d
}
