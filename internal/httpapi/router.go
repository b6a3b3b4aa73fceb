package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"shopifyapp/internal/api"
	"shopifyapp/internal/audit"
	"shopifyapp/internal/auth"
	"shopifyapp/internal/billing"
	"shopifyapp/internal/charge"
	"shopifyapp/internal/logging"
	"shopifyapp/internal/plan"
	"shopifyapp/internal/queue"
	"shopifyapp/internal/session"
	"shopifyapp/internal/shop"
	"shopifyapp/internal/webhook"
	"shopifyapp/pkg/config"
	"shopifyapp/pkg/shopify"
)

type Dependencies struct {
	Cfg       config.Config
	DB        *pgxpool.Pool
	Log       zerolog.Logger
	Plans     plan.Store
	Queue     queue.Dispatcher
	Sessions  sessions.Store
	NewClient shopify.ClientFactory
}

func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(deps.Log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	shopsRepo := shop.NewRepository(deps.DB)
	auditRepo := audit.NewRepository(deps.DB)
	guards := api.NewGuards(deps.Cfg, shopsRepo)

	chargesRepo := charge.NewRepository(deps.DB)
	home := Home{Charges: chargesRepo, Helper: charge.NewHelper()}

	billingSvc := &billing.Service{
		Tx: billing.PgTransactor{Pool: deps.DB, Plans: deps.Plans},
		Stores: billing.Stores{
			Shops:   shopsRepo,
			Plans:   deps.Plans,
			Charges: chargesRepo,
		},
		NewClient: deps.NewClient,
		Helper:    home.Helper,
		Cfg:       deps.Cfg.Billing,
		AppURL:    deps.Cfg.AppURL,
		Log:       deps.Log,
		Audit:     auditRepo,
	}
	billingHandlers := billing.NewHandlers(billingSvc, func(domain string) string {
		_, secret := deps.Cfg.Shopify.CredentialsFor(domain)
		return secret
	})

	afterJobs := auth.NewAfterJobs()
	afterJobs.Register("record_login", auth.RecordLoginFactory(auditRepo))

	authHandlers := auth.NewHandlers(&auth.Service{
		Shops:     shopsRepo,
		NewClient: deps.NewClient,
		Cfg:       deps.Cfg.Shopify,
		Freemium:  deps.Cfg.Billing.FreemiumEnabled,
		Audit:     auditRepo,
	}, deps.Cfg, deps.Queue, afterJobs)

	registry := webhook.NewRegistry()
	registry.Register("app/uninstalled", webhook.AppUninstalledFactory(shopsRepo, billingSvc, auditRepo))
	webhookHandler := webhook.Handler{
		Registry:  registry,
		Queue:     deps.Queue,
		QueueName: deps.Cfg.Jobs.WebhooksQueue,
		Events:    webhook.NewEventLog(deps.DB),
	}

	// Browser-facing routes carry the cookie session.
	r.Group(func(r chi.Router) {
		r.Use(session.Middleware(deps.Sessions, deps.Cfg.Session.Name, deps.Log))

		r.Get("/authenticate", authHandlers.Authenticate)
		r.Post("/authenticate", authHandlers.Authenticate)
		r.Get(api.OAuthRoute, authHandlers.OAuth)

		r.Group(func(r chi.Router) {
			r.Use(guards.AuthShopify)

			r.With(guards.Billable).Method(http.MethodGet, "/", home)

			r.Route(api.BillingRoute, func(r chi.Router) {
				r.Get("/", billingHandlers.Index)
				r.Get("/{plan}", billingHandlers.Index)
				r.Get("/process", billingHandlers.Process)
				r.Get("/process/{plan}", billingHandlers.Process)
				r.Get("/usage-charge", billingHandlers.UsageCharge)
				r.Post("/usage-charge", billingHandlers.UsageCharge)
			})
		})

		r.With(guards.AuthProxy).Get("/proxy", proxyHome)
	})

	r.With(guards.AuthToken).Method(http.MethodGet, "/api/shop", home)
	r.With(guards.AuthWebhook).Post("/webhook/{type}", webhookHandler.ServeHTTP)

	return r
}
