package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shopifyapp/internal/audit"
	"shopifyapp/internal/logging"
	"shopifyapp/internal/queue"
	"shopifyapp/internal/shop"
	"shopifyapp/pkg/config"
	"shopifyapp/pkg/shopify"
)

// UninstallShops is what AppUninstalled needs from the shop repository.
type UninstallShops interface {
	GetByDomain(ctx context.Context, domain string, withTrashed bool) (*shop.Shop, error)
	Clean(ctx context.Context, id int64) error
	SoftDelete(ctx context.Context, id int64) error
}

// PlanCanceller records the end of the shop's current plan without calling
// the platform.
type PlanCanceller interface {
	CancelCurrentPlanLocally(ctx context.Context, shopID int64) (bool, error)
}

// AppUninstalled cancels the shop's plan, drops its token and trashes it.
type AppUninstalled struct {
	Domain  string
	Shops   UninstallShops
	Billing PlanCanceller
	Audit   audit.Recorder
}

func (j AppUninstalled) Name() string { return "app_uninstalled" }

func (j AppUninstalled) Handle(ctx context.Context) error {
	sh, err := j.Shops.GetByDomain(ctx, j.Domain, false)
	if errors.Is(err, shop.ErrNotFound) {
		logging.From(ctx).Info().Str("shop", j.Domain).Msg("uninstall for unknown or trashed shop")
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := j.Billing.CancelCurrentPlanLocally(ctx, sh.ID); err != nil {
		return fmt.Errorf("cancel plan of %s: %w", sh.Domain, err)
	}
	if err := j.Shops.Clean(ctx, sh.ID); err != nil {
		return err
	}
	if err := j.Shops.SoftDelete(ctx, sh.ID); err != nil {
		return err
	}
	audit.Log(ctx, j.Audit, sh.ID, audit.ActionUninstalled, "webhook", nil)
	return nil
}

// AppUninstalledFactory binds AppUninstalled to the registry.
func AppUninstalledFactory(shops UninstallShops, billing PlanCanceller, rec audit.Recorder) Factory {
	return func(p Payload) queue.Job {
		return AppUninstalled{Domain: p.Domain, Shops: shops, Billing: billing, Audit: rec}
	}
}

// WebhookInstaller registers the configured webhooks the shop lacks.
type WebhookInstaller struct {
	Domain   string
	Token    string
	Webhooks []config.WebhookConfig
	Client   shopify.ClientFactory
}

func (j WebhookInstaller) Name() string { return "webhook_installer" }

func (j WebhookInstaller) Handle(ctx context.Context) error {
	api := j.Client(j.Domain, j.Token)
	existing, err := api.ListWebhooks(ctx)
	if err != nil {
		return err
	}
	have := map[string]bool{}
	for _, w := range existing {
		have[strings.TrimSpace(w.Address)] = true
	}

	created := 0
	for _, w := range j.Webhooks {
		if have[w.Address] {
			continue
		}
		if err := api.CreateWebhook(ctx, w.Topic, w.Address); err != nil {
			return err
		}
		created++
	}
	logging.From(ctx).Info().Str("shop", j.Domain).Int("created", created).Msg("webhooks installed")
	return nil
}

// ScripttagInstaller creates the configured script tags the shop lacks.
type ScripttagInstaller struct {
	Domain     string
	Token      string
	ScriptTags []config.ScriptTagConfig
	Client     shopify.ClientFactory
}

func (j ScripttagInstaller) Name() string { return "scripttag_installer" }

func (j ScripttagInstaller) Handle(ctx context.Context) error {
	api := j.Client(j.Domain, j.Token)
	existing, err := api.ListScriptTags(ctx)
	if err != nil {
		return err
	}
	have := map[string]bool{}
	for _, t := range existing {
		have[strings.TrimSpace(t.Src)] = true
	}

	created := 0
	for _, t := range j.ScriptTags {
		if have[t.Src] {
			continue
		}
		if err := api.CreateScriptTag(ctx, t.Src, t.Event); err != nil {
			return err
		}
		created++
	}
	logging.From(ctx).Info().Str("shop", j.Domain).Int("created", created).Msg("script tags installed")
	return nil
}
