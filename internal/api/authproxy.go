package api

import (
	"errors"
	"net/http"

	"shopifyapp/internal/logging"
	"shopifyapp/internal/session"
	"shopifyapp/internal/shop"
	"shopifyapp/pkg/shopify"
)

// AuthProxy verifies app proxy requests forwarded from the storefront. The
// shop is remembered in the session and, when installed, put in the context.
func (g Guards) AuthProxy(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := shopify.ParseQueryString(r.URL.RawQuery)
		raw, _ := params.Get("shop")
		domain := shopify.SanitizeShopDomain(raw)
		_, secret := g.Cfg.Shopify.CredentialsFor(domain)

		if domain == "" || !shopify.VerifyProxySignature(params, secret) {
			reject(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid proxy signature.").write(w, r, "proxy")
			return
		}

		session.FromContext(r.Context()).Put(session.KeyDomain, domain)
		ctx := logging.WithShop(r.Context(), domain)

		sh, err := g.Shops.GetByDomain(ctx, domain, false)
		switch {
		case err == nil:
			ctx = WithShop(ctx, sh)
		case !errors.Is(err, shop.ErrNotFound):
			logging.From(ctx).Error().Err(err).Msg("load proxy shop")
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load shop")
			return
		}
		allow().write(w, r, "proxy")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
