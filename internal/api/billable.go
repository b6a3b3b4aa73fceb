package api

import "net/http"

// BillingRoute is where shops without a plan are sent.
const BillingRoute = "/billing"

// Billable sends shops that must pay but have no plan to the billing screen.
// Grandfathered and freemium shops pass. Runs after a guard that sets the shop.
func (g Guards) Billable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sh := ShopFromContext(r.Context())
		if g.Cfg.Billing.Enabled && sh != nil && !sh.Grandfathered && !sh.Freemium && !sh.HasPlan() {
			redirectTo(BillingRoute, "no_plan").write(w, r, "billable")
			return
		}
		next.ServeHTTP(w, r)
	})
}
