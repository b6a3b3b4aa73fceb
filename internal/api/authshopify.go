package api

import (
	"errors"
	"net/http"
	"net/url"

	"shopifyapp/internal/logging"
	"shopifyapp/internal/metrics"
	"shopifyapp/internal/session"
	"shopifyapp/internal/shop"
	"shopifyapp/pkg/config"
	"shopifyapp/pkg/shopify"
)

// OAuthRoute is where failed verifications send the merchant.
const OAuthRoute = "/authenticate/oauth"

// Guards holds what the authentication middlewares share.
type Guards struct {
	Cfg    config.Config
	Shops  session.ShopStore
	Tokens shopify.SessionTokenValidator
}

func NewGuards(cfg config.Config, shops session.ShopStore) Guards {
	return Guards{
		Cfg:    cfg,
		Shops:  shops,
		Tokens: shopify.SessionTokenValidator{Credentials: cfg.Shopify.CredentialsFor},
	}
}

// shopSession returns the request's ShopSession, creating and resuming it on
// first use.
func (g Guards) shopSession(r *http.Request) (*session.ShopSession, *http.Request, error) {
	if ss := ShopSessionFromContext(r.Context()); ss != nil {
		return ss, r, nil
	}
	ss := session.New(session.FromContext(r.Context()), g.Shops, g.Cfg.Shopify)
	if err := ss.Resume(r.Context()); err != nil {
		return nil, r, err
	}
	return ss, r.WithContext(WithShopSession(r.Context(), ss)), nil
}

// AuthShopify lets a request through when it belongs to a logged in shop or
// carries a valid signature for one. Any other request is sent back through
// OAuth, or rejected when it does not even name a shop.
func (g Guards) AuthShopify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ss, r, err := g.shopSession(r)
		if err != nil {
			logging.From(r.Context()).Error().Err(err).Msg("resume shop session")
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to load session")
			return
		}

		out := g.CheckShopify(r, ss)
		if out.Kind != Allow {
			logging.From(r.Context()).Info().Str("reason", out.Reason).Str("outcome", out.Kind.String()).
				Msg("shopify auth failed")
			out.write(w, r, "shopify")
			return
		}
		metrics.IncAuthOutcome("shopify", "allow")

		sh := ss.Shop()
		ctx := WithShop(r.Context(), sh)
		ctx = logging.WithShop(ctx, sh.Domain)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CheckShopify runs the verification pipeline against ss and returns the
// decision without writing a response.
func (g Guards) CheckShopify(r *http.Request, ss *session.ShopSession) AuthOutcome {
	ctx := r.Context()
	input := InputParams(r)
	domain, _ := ShopDomain(r, input)

	source, data, signed := SignatureSource(r, input)
	if signed {
		_, secret := g.Cfg.Shopify.CredentialsFor(domain)
		if !shopify.VerifyRequest(data, secret) {
			hmac, _ := data.Get("hmac")
			logging.From(ctx).Info().Str("source", source).
				Str("hmac", logging.Redact(hmac, g.Cfg.IsDev())).
				Msg("request signature rejected")
			return reject(http.StatusUnauthorized, "SIGNATURE_INVALID", "Unable to verify signature.")
		}
		logging.From(ctx).Debug().Str("source", source).Msg("request signature verified")
	}

	if ss.Guest() {
		if !signed {
			return g.badVerification(r, ss, domain, "not_logged_in")
		}
		if domain == "" {
			return g.badVerification(r, ss, domain, "missing_domain")
		}
		if err := ss.Make(ctx, domain); err != nil {
			if !errors.Is(err, shop.ErrNotFound) {
				logging.From(ctx).Error().Err(err).Msg("login shop")
				return reject(http.StatusInternalServerError, "INTERNAL", "failed to load shop")
			}
			return g.badVerification(r, ss, domain, "unknown_shop")
		}
		if !ss.IsValid() {
			return g.badVerification(r, ss, domain, "invalid_session")
		}
	}

	// The session id only ever arrives on the query string.
	if token, ok := shopify.ParseQueryString(r.URL.RawQuery).Get("session"); ok {
		if !ss.IsSessionTokenValid(token) {
			return g.badVerification(r, ss, domain, "session_token_mismatch")
		}
		ss.SetSessionToken(token)
	}

	if domain != "" && !ss.IsValidCompare(domain) {
		return g.badVerification(r, ss, domain, "shop_mismatch")
	}
	return allow()
}

// badVerification remembers where the merchant was going, logs them out and
// restarts OAuth for domain.
func (g Guards) badVerification(r *http.Request, ss *session.ShopSession, domain, reason string) AuthOutcome {
	if domain == "" {
		out := reject(http.StatusUnauthorized, "MISSING_SHOP_DOMAIN", "Unable to get shop domain.")
		out.Reason = reason
		return out
	}
	ss.SetReturnTo(r.URL.RequestURI())
	ss.Forget()
	return redirectTo(OAuthRoute+"?"+url.Values{"shop": {domain}}.Encode(), reason)
}
