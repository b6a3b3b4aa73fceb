package api

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"shopifyapp/internal/logging"
	"shopifyapp/pkg/shopify"
)

const maxWebhookBody = 5 << 20

// AuthWebhook checks the body HMAC of an incoming webhook. Requests without
// a shop domain header are rejected too. The body is restored for the handler.
func (g Guards) AuthWebhook(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "failed to read body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		domain := shopify.SanitizeShopDomain(r.Header.Get("X-Shopify-Shop-Domain"))
		sig := strings.TrimSpace(r.Header.Get("X-Shopify-Hmac-Sha256"))
		_, secret := g.Cfg.Shopify.CredentialsFor(domain)

		if domain == "" || !shopify.VerifyWebhook(body, sig, secret) {
			logging.From(r.Context()).Info().Str("shop", domain).
				Str("hmac", logging.Redact(sig, g.Cfg.IsDev())).
				Msg("webhook signature rejected")
			reject(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid webhook signature.").write(w, r, "webhook")
			return
		}
		allow().write(w, r, "webhook")
		next.ServeHTTP(w, r.WithContext(logging.WithShop(r.Context(), domain)))
	})
}
