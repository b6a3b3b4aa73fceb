package auth

import (
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"

	"shopifyapp/internal/api"
	"shopifyapp/internal/logging"
	"shopifyapp/internal/queue"
	"shopifyapp/internal/session"
	"shopifyapp/internal/webhook"
	"shopifyapp/pkg/config"
	"shopifyapp/pkg/shopify"
)

type Handlers struct {
	Auth     *Service
	Cfg      config.Config
	Queue    queue.Dispatcher
	After    *AfterJobs
	Validate *validator.Validate
}

func NewHandlers(svc *Service, cfg config.Config, q queue.Dispatcher, after *AfterJobs) Handlers {
	return Handlers{Auth: svc, Cfg: cfg, Queue: q, After: after, Validate: validator.New()}
}

type authenticateRequest struct {
	Shop string `validate:"required,hostname"`
}

func (h Handlers) shopSession(r *http.Request) *session.ShopSession {
	if ss := api.ShopSessionFromContext(r.Context()); ss != nil {
		return ss
	}
	return session.New(session.FromContext(r.Context()), h.Auth.Shops, h.Cfg.Shopify)
}

// shopParam returns the sanitized shop domain or writes a 400.
func (h Handlers) shopParam(w http.ResponseWriter, input shopify.Params) (string, bool) {
	raw, _ := input.Get("shop")
	domain := shopify.SanitizeShopDomain(raw)
	if err := h.Validate.Struct(authenticateRequest{Shop: domain}); err != nil {
		api.WriteError(w, http.StatusBadRequest, "INVALID_SHOP", "A valid shop domain is required.")
		return "", false
	}
	return domain, true
}

// Authenticate is both ends of OAuth: without a code it starts the grant,
// with one it verifies the callback and completes the install.
func (h Handlers) Authenticate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	input := api.InputParams(r)
	domain, ok := h.shopParam(w, input)
	if !ok {
		return
	}
	ctx = logging.WithShop(ctx, domain)
	log := logging.From(ctx)
	ss := h.shopSession(r)

	code, _ := input.Get("code")
	if code == "" {
		res, err := h.Auth.AuthorizeShop(ctx, ss, domain, "")
		if err != nil {
			log.Error().Err(err).Msg("start oauth")
			api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to start authentication")
			return
		}
		api.FullPageRedirect(w, r, res.URL)
		return
	}

	_, data, signed := api.SignatureSource(r, input)
	_, secret := h.Cfg.Shopify.CredentialsFor(domain)
	if !signed || !shopify.VerifyRequest(data, secret) {
		api.WriteError(w, http.StatusUnauthorized, "SIGNATURE_INVALID", "Unable to verify signature.")
		return
	}
	state, _ := input.Get("state")
	if expected := ss.PullOAuthState(); expected == "" || state != expected {
		api.WriteError(w, http.StatusBadRequest, "INVALID_STATE", "invalid oauth state")
		return
	}

	res, err := h.Auth.AuthorizeShop(ctx, ss, domain, code)
	if err != nil {
		log.Error().Err(err).Msg("complete oauth")
		api.WriteError(w, http.StatusBadGateway, "OAUTH_FAILED", "failed to complete authentication")
		return
	}
	h.dispatchInstallers(r, res, ss.Token(false))
	h.runAfterAuthenticate(ctx, res.Shop)

	target, ok := ss.PullReturnTo()
	if !ok {
		target = "/?" + url.Values{"shop": {domain}}.Encode()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h Handlers) dispatchInstallers(r *http.Request, res *Result, token string) {
	log := logging.From(r.Context())
	if res.Shop.Token != "" {
		token = res.Shop.Token
	}
	if len(h.Cfg.Webhooks) > 0 {
		job := webhook.WebhookInstaller{Domain: res.Shop.Domain, Token: token, Webhooks: h.Cfg.Webhooks, Client: h.Auth.NewClient}
		if err := h.Queue.Dispatch(job, h.Cfg.Jobs.WebhooksQueue); err != nil {
			log.Error().Err(err).Msg("dispatch webhook installer")
		}
	}
	if len(h.Cfg.ScriptTags) > 0 {
		job := webhook.ScripttagInstaller{Domain: res.Shop.Domain, Token: token, ScriptTags: h.Cfg.ScriptTags, Client: h.Auth.NewClient}
		if err := h.Queue.Dispatch(job, h.Cfg.Jobs.ScriptTagsQueue); err != nil {
			log.Error().Err(err).Msg("dispatch scripttag installer")
		}
	}
}

// OAuth is where failed verifications land. It hands the embedded frontend
// the authorization URL so it can leave the admin iframe.
func (h Handlers) OAuth(w http.ResponseWriter, r *http.Request) {
	domain, ok := h.shopParam(w, api.InputParams(r))
	if !ok {
		return
	}
	ctx := logging.WithShop(r.Context(), domain)
	res, err := h.Auth.AuthorizeShop(ctx, h.shopSession(r), domain, "")
	if err != nil {
		logging.From(ctx).Error().Err(err).Msg("build oauth url")
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL", "failed to start authentication")
		return
	}
	if api.WantsJSON(r) {
		api.WriteJSON(w, http.StatusOK, map[string]string{"authUrl": res.URL})
		return
	}
	http.Redirect(w, r, res.URL, http.StatusFound)
}
