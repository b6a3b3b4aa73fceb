package billing

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"shopifyapp/internal/api"
	"shopifyapp/internal/charge"
	"shopifyapp/internal/logging"
	"shopifyapp/internal/plan"
	"shopifyapp/pkg/shopify"
)

type Handlers struct {
	Billing  *Service
	Secret   func(domain string) string
	Validate *validator.Validate
}

func NewHandlers(svc *Service, secret func(domain string) string) Handlers {
	return Handlers{Billing: svc, Secret: secret, Validate: validator.New()}
}

// planParam reads the optional {plan} URL segment.
func planParam(r *http.Request) (*int64, error) {
	raw := chi.URLParam(r, "plan")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, errors.New("invalid plan id")
	}
	return &id, nil
}

// Index sends the merchant to the confirmation page of a new charge.
func (h Handlers) Index(w http.ResponseWriter, r *http.Request) {
	sh := api.ShopFromContext(r.Context())
	planID, err := planParam(r)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	url, err := h.Billing.GetPlanURL(r.Context(), sh, planID)
	if errors.Is(err, plan.ErrNotFound) {
		api.WriteError(w, http.StatusNotFound, "NOT_FOUND", "plan not found")
		return
	}
	if err != nil {
		logging.From(r.Context()).Error().Err(err).Msg("create billing charge")
		api.WriteError(w, http.StatusBadGateway, "BILLING_UNAVAILABLE", "failed to create charge")
		return
	}
	api.FullPageRedirect(w, r, url)
}

// Process handles the merchant's return from the confirmation page.
func (h Handlers) Process(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sh := api.ShopFromContext(ctx)

	chargeRef, err := strconv.ParseInt(r.URL.Query().Get("charge_id"), 10, 64)
	if err != nil || chargeRef <= 0 {
		api.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", shopify.ErrActivateWithoutChargeID.Error())
		return
	}
	planID, err := planParam(r)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if planID == nil {
		p, err := h.Billing.Stores.Plans.GetDefault(ctx)
		if err != nil {
			api.WriteError(w, http.StatusNotFound, "NOT_FOUND", "plan not found")
			return
		}
		planID = &p.ID
	}

	_, err = h.Billing.ActivatePlan(ctx, sh.ID, *planID, chargeRef)
	switch {
	case errors.Is(err, ErrChargeDeclined):
		api.WriteError(w, http.StatusForbidden, "CHARGE_DECLINED", "It seems you have declined the billing charge for this application.")
		return
	case errors.Is(err, plan.ErrNotFound):
		api.WriteError(w, http.StatusNotFound, "NOT_FOUND", "plan not found")
		return
	case err != nil:
		logging.From(ctx).Error().Err(err).Int64("charge_id", chargeRef).Msg("activate plan")
		api.WriteError(w, http.StatusBadGateway, "BILLING_UNAVAILABLE", "failed to activate charge")
		return
	}
	http.Redirect(w, r, "/?shop="+sh.Domain, http.StatusFound)
}

type usageChargeRequest struct {
	Price       string `validate:"required,numeric"`
	Description string `validate:"required,max=255"`
	Redirect    string `validate:"omitempty,max=2048"`
	Signature   string `validate:"required,hexadecimal"`
}

// UsageCharge creates a usage charge from a link signed by the app itself.
func (h Handlers) UsageCharge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sh := api.ShopFromContext(ctx)
	params := api.InputParams(r)

	req := usageChargeRequest{}
	req.Price, _ = params.Get("price")
	req.Description, _ = params.Get("description")
	req.Redirect, _ = params.Get("redirect")
	req.Signature, _ = params.Get("signature")
	if err := h.Validate.Struct(req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	signed := shopify.Params{}
	signed.Set("price", req.Price)
	signed.Set("description", req.Description)
	if req.Redirect != "" {
		signed.Set("redirect", req.Redirect)
	}
	signed.Set("signature", req.Signature)
	if !shopify.VerifyProxySignature(signed, h.Secret(sh.Domain)) {
		api.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid usage charge signature.")
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || !price.IsPositive() {
		api.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "price must be positive")
		return
	}

	c, err := h.Billing.CreateUsageCharge(ctx, sh, UsageCharge{Price: price, Description: req.Description})
	if errors.Is(err, ErrNoRecurringCharge) {
		api.WriteError(w, http.StatusConflict, "NO_RECURRING_CHARGE", err.Error())
		return
	}
	if err != nil {
		logging.From(ctx).Error().Err(err).Msg("create usage charge")
		api.WriteError(w, http.StatusBadGateway, "BILLING_UNAVAILABLE", "failed to create usage charge")
		return
	}

	if req.Redirect != "" && strings.HasPrefix(req.Redirect, "/") && !strings.HasPrefix(req.Redirect, "//") {
		http.Redirect(w, r, req.Redirect, http.StatusFound)
		return
	}
	api.WriteJSON(w, http.StatusCreated, usageChargeResponse(c))
}

func usageChargeResponse(c *charge.Charge) map[string]any {
	return map[string]any{
		"charge_id":   c.ChargeID,
		"price":       c.Price.StringFixed(2),
		"description": c.Description,
		"status":      c.Status,
	}
}

// SignUsageCharge returns the signature a usage charge link must carry.
func SignUsageCharge(price, description, redirect, secret string) string {
	p := shopify.Params{}
	p.Set("price", price)
	p.Set("description", description)
	if redirect != "" {
		p.Set("redirect", redirect)
	}
	return shopify.SignHex([]byte(shopify.BuildQuery(p, false)), secret)
}
