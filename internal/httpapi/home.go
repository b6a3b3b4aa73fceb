package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"shopifyapp/internal/api"
	"shopifyapp/internal/charge"
	"shopifyapp/internal/logging"
	"shopifyapp/internal/shop"
)

// PlanCharges finds the charge behind a shop's current plan.
type PlanCharges interface {
	LatestForPlan(ctx context.Context, shopID, planID int64) (*charge.Charge, error)
}

type homeResponse struct {
	Shop          string          `json:"shop"`
	Plan          *int64          `json:"plan"`
	Freemium      bool            `json:"freemium"`
	Grandfathered bool            `json:"grandfathered"`
	Charge        *chargeResponse `json:"charge,omitempty"`
}

type chargeResponse struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Status  string          `json:"status"`
	Price   string          `json:"price"`
	Expired bool            `json:"expired"`
	Trial   *trialResponse  `json:"trial,omitempty"`
	Period  *periodResponse `json:"period,omitempty"`
}

type trialResponse struct {
	Active              bool `json:"active"`
	RemainingDays       int  `json:"remainingDays"`
	UsedDays            int  `json:"usedDays"`
	RemainingFromCancel int  `json:"remainingFromCancel"`
}

type periodResponse struct {
	Begin         string `json:"begin"`
	End           string `json:"end"`
	PastDays      *int   `json:"pastDays"`
	RemainingDays int    `json:"remainingDays"`
}

// Home describes the authenticated shop, and the charge behind its plan, to
// the embedded frontend.
type Home struct {
	Charges PlanCharges
	Helper  charge.Helper
}

func (h Home) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sh := api.ShopFromContext(r.Context())
	if sh == nil {
		api.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no shop")
		return
	}
	resp := homeResponse{
		Shop:          sh.Domain,
		Plan:          sh.PlanID,
		Freemium:      sh.Freemium,
		Grandfathered: sh.Grandfathered,
	}
	c, err := h.planCharge(r.Context(), sh)
	if err != nil {
		logging.From(r.Context()).Error().Err(err).Msg("load plan charge")
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load billing")
		return
	}
	if c != nil {
		resp.Charge = h.describe(c)
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

func (h Home) planCharge(ctx context.Context, sh *shop.Shop) (*charge.Charge, error) {
	if h.Charges == nil || sh.PlanID == nil {
		return nil, nil
	}
	c, err := h.Charges.LatestForPlan(ctx, sh.ID, *sh.PlanID)
	if errors.Is(err, charge.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

func (h Home) describe(c *charge.Charge) *chargeResponse {
	out := &chargeResponse{
		Name:    c.Name,
		Type:    c.Type.String(),
		Status:  string(c.Status),
		Price:   c.Price.StringFixed(2),
		Expired: h.Helper.HasExpired(c),
	}
	if c.IsTrial() {
		remaining, _ := h.Helper.RemainingTrialDays(c)
		used, _ := h.Helper.UsedTrialDays(c)
		fromCancel, _ := h.Helper.RemainingTrialDaysFromCancel(c)
		out.Trial = &trialResponse{
			Active:              h.Helper.IsActiveTrial(c),
			RemainingDays:       remaining,
			UsedDays:            used,
			RemainingFromCancel: fromCancel,
		}
	}
	if c.IsRecurring() {
		p := &periodResponse{
			Begin:         h.Helper.PeriodBeginDate(c).Format(time.DateOnly),
			End:           h.Helper.PeriodEndDate(c).Format(time.DateOnly),
			RemainingDays: h.Helper.RemainingDaysForPeriod(c),
		}
		if past, ok := h.Helper.PastDaysForPeriod(c); ok {
			p.PastDays = &past
		}
		out.Period = p
	}
	return out
}

// proxyHome answers storefront requests relayed through the app proxy.
func proxyHome(w http.ResponseWriter, r *http.Request) {
	sh := api.ShopFromContext(r.Context())
	resp := map[string]any{"installed": sh != nil}
	if sh != nil {
		resp["shop"] = sh.Domain
	}
	api.WriteJSON(w, http.StatusOK, resp)
}
