package api

import (
	"errors"
	"net/http"
	"strings"

	"shopifyapp/internal/logging"
	"shopifyapp/internal/metrics"
	"shopifyapp/internal/shop"
	"shopifyapp/pkg/shopify"
)

// AuthToken validates the embedded app session token sent as
// "Authorization: Bearer <JWT>" and logs the named shop in.
func (g Guards) AuthToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ss, r, err := g.shopSession(r)
		if err != nil {
			logging.From(r.Context()).Error().Err(err).Msg("resume shop session")
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load session")
			return
		}

		var token string
		authz := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
			token = strings.TrimSpace(authz[7:])
		}

		vs, err := g.Tokens.Validate(token)
		if err != nil {
			out := tokenFailure(err)
			metrics.IncSessionTokenFailure(out.Code)
			logging.From(r.Context()).Info().Err(err).
				Str("token", logging.Redact(token, g.Cfg.IsDev())).
				Msg("session token rejected")
			out.write(w, r, "token")
			return
		}

		if err := ss.Make(r.Context(), vs.ShopDomain); err != nil {
			if errors.Is(err, shop.ErrNotFound) {
				reject(http.StatusUnauthorized, "UNAUTHORIZED", "unknown shop").write(w, r, "token")
				return
			}
			logging.From(r.Context()).Error().Err(err).Msg("login shop from session token")
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load shop")
			return
		}
		ss.SetSessionToken(vs.SessionID)
		metrics.IncAuthOutcome("token", "allow")

		ctx := WithShop(r.Context(), ss.Shop())
		ctx = logging.WithShop(ctx, vs.ShopDomain)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tokenFailure(err error) AuthOutcome {
	switch {
	case errors.Is(err, shopify.ErrMissingToken):
		return reject(http.StatusUnauthorized, "MISSING_TOKEN", "Missing session token.")
	case errors.Is(err, shopify.ErrExpiredToken):
		return reject(http.StatusForbidden, "EXPIRED_TOKEN", "Session token has expired.")
	case errors.Is(err, shopify.ErrBadSignature):
		return reject(http.StatusBadRequest, "BAD_SIGNATURE", "Unable to verify session token signature.")
	case errors.Is(err, shopify.ErrMalformedToken):
		return reject(http.StatusBadRequest, "MALFORMED_TOKEN", "Malformed session token.")
	}
	return reject(http.StatusBadRequest, "INVALID_TOKEN", "Invalid session token.")
}
