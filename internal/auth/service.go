package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"shopifyapp/internal/audit"
	"shopifyapp/internal/metrics"
	"shopifyapp/internal/session"
	"shopifyapp/internal/shop"
	"shopifyapp/pkg/config"
	"shopifyapp/pkg/shopify"
)

// ShopStore is the shop persistence the OAuth flow needs.
type ShopStore interface {
	session.ShopStore
	Create(ctx context.Context, domain, token string) (*shop.Shop, error)
	Restore(ctx context.Context, id int64) error
	SetAsFreemium(ctx context.Context, id int64) error
	SetNamespace(ctx context.Context, id int64, namespace string) error
}

// Result of AuthorizeShop. Exactly one of URL and Completed is set.
type Result struct {
	// URL is the platform screen the merchant must visit to grant access.
	URL       string
	Completed bool
	Shop      *shop.Shop
}

type Service struct {
	Shops     ShopStore
	NewClient shopify.ClientFactory
	Cfg       config.ShopifyConfig
	// Freemium marks newly authorized shops without a plan as freemium.
	Freemium bool
	Audit    audit.Recorder
}

// AuthorizeShop drives one step of the OAuth dance for domain. Without a
// code it returns the authorization URL and stores a state nonce in the
// session; with a code it logs the shop in and applies the granted access.
func (s *Service) AuthorizeShop(ctx context.Context, ss *session.ShopSession, domain, code string) (*Result, error) {
	sh, err := s.Shops.GetByDomain(ctx, domain, true)
	if errors.Is(err, shop.ErrNotFound) {
		sh, err = s.Shops.Create(ctx, domain, "")
	}
	if err != nil {
		return nil, err
	}
	client := s.NewClient(sh.Domain, sh.Token)

	if code == "" {
		// Per-user tokens need an offline token to already exist.
		mode := config.GrantOffline
		if sh.HasOfflineAccess() {
			mode = ss.Type()
		}
		state := uuid.NewString()
		ss.SetOAuthState(state)
		return &Result{URL: client.BuildAuthURL(mode, s.Cfg.Scopes, state), Shop: sh}, nil
	}

	if sh.IsTrashed() {
		if err := s.Shops.Restore(ctx, sh.ID); err != nil {
			return nil, fmt.Errorf("restore %s: %w", sh.Domain, err)
		}
	}
	if err := ss.Make(ctx, sh.Domain); err != nil {
		return nil, err
	}
	access, err := client.GetAccessData(ctx, code)
	if err != nil {
		metrics.IncAuthOutcome("oauth", "exchange_failed")
		return nil, err
	}
	if err := ss.SetAccess(ctx, access); err != nil {
		return nil, err
	}

	sh = ss.Shop()
	sh.DeletedAt = nil
	if s.Freemium && !sh.HasPlan() && !sh.Freemium {
		if err := s.Shops.SetAsFreemium(ctx, sh.ID); err != nil {
			return nil, err
		}
		sh.Freemium = true
	}
	if ns := s.Cfg.Namespace; ns != "" && sh.Namespace != ns {
		if err := s.Shops.SetNamespace(ctx, sh.ID, ns); err != nil {
			return nil, err
		}
		sh.Namespace = ns
	}
	metrics.IncAuthOutcome("oauth", "completed")
	audit.Log(ctx, s.Audit, sh.ID, audit.ActionInstalled, "merchant", map[string]any{"scope": access.Scope})
	return &Result{Completed: true, Shop: sh}, nil
}
