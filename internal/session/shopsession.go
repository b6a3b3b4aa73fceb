package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"shopifyapp/internal/shop"
	"shopifyapp/pkg/config"
	"shopifyapp/pkg/shopify"
)

// Session keys.
const (
	KeyDomain       = "shopify_domain"
	KeyUser         = "shopify_user"
	KeyToken        = "shopify_token"
	KeySessionToken = "shopify_session_token"
	KeyReturnTo     = "shopify_return_to"
	KeyOAuthState   = "shopify_oauth_state"
)

// ShopStore is the shop persistence ShopSession needs.
type ShopStore interface {
	GetByDomain(ctx context.Context, domain string, withTrashed bool) (*shop.Shop, error)
	SetAccessToken(ctx context.Context, id int64, token string) error
}

// ShopSession tracks which shop a request is authenticated as and which
// access token applies to it. The principal is the shop named by the session
// domain; per-user tokens live only in the session, offline tokens on the shop.
type ShopSession struct {
	store     Store
	shops     ShopStore
	grantMode string
	shop      *shop.Shop
}

func New(store Store, shops ShopStore, cfg config.ShopifyConfig) *ShopSession {
	return &ShopSession{store: store, shops: shops, grantMode: cfg.GrantMode}
}

// Resume re-establishes the principal recorded in the session, if any. A
// session naming an unknown or uninstalled shop stays a guest.
func (s *ShopSession) Resume(ctx context.Context) error {
	domain, ok := s.Domain()
	if !ok {
		return nil
	}
	sh, err := s.shops.GetByDomain(ctx, domain, false)
	if errors.Is(err, shop.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resume session for %s: %w", domain, err)
	}
	s.shop = sh
	return nil
}

// Make logs the shop in for the rest of the request. Uninstalled shops are
// found too, since re-authentication is how they come back.
func (s *ShopSession) Make(ctx context.Context, domain string) error {
	sh, err := s.shops.GetByDomain(ctx, domain, true)
	if err != nil {
		return fmt.Errorf("login %s: %w", domain, err)
	}
	s.shop = sh
	s.store.Put(KeyDomain, sh.Domain)
	return nil
}

// Guest reports whether no shop is logged in.
func (s *ShopSession) Guest() bool {
	return s.shop == nil
}

func (s *ShopSession) Shop() *shop.Shop {
	return s.shop
}

// Type is the configured grant mode.
func (s *ShopSession) Type() string {
	if s.grantMode == config.GrantPerUser {
		return config.GrantPerUser
	}
	return config.GrantOffline
}

func (s *ShopSession) Domain() (string, bool) {
	d, ok := s.store.Get(KeyDomain)
	return d, ok && d != ""
}

// Token returns the access token for API calls. Strict lookup only returns
// the token of the configured grant mode and may be empty; otherwise the
// per-user token wins over the offline one.
func (s *ShopSession) Token(strict bool) string {
	perUser, _ := s.store.Get(KeyToken)
	var offline string
	if s.shop != nil {
		offline = s.shop.Token
	}
	if strict {
		if s.Type() == config.GrantPerUser {
			return perUser
		}
		return offline
	}
	if perUser != "" {
		return perUser
	}
	return offline
}

// SetAccess stores the result of a code exchange. Per-user grants stay in the
// session; offline tokens are saved on the shop.
func (s *ShopSession) SetAccess(ctx context.Context, access *shopify.AccessData) error {
	if access.AssociatedUser != nil {
		b, err := json.Marshal(access.AssociatedUser)
		if err != nil {
			return fmt.Errorf("encode associated user: %w", err)
		}
		s.store.Put(KeyUser, string(b))
		s.store.Put(KeyToken, access.AccessToken)
		return nil
	}

	if s.shop == nil {
		return errors.New("set access: no shop logged in")
	}
	if err := s.shops.SetAccessToken(ctx, s.shop.ID, access.AccessToken); err != nil {
		return err
	}
	s.shop.Token = access.AccessToken
	return nil
}

// User is the staff member of a per-user grant, if any.
func (s *ShopSession) User() (*shopify.AssociatedUser, bool) {
	raw, ok := s.store.Get(KeyUser)
	if !ok || raw == "" {
		return nil, false
	}
	var u shopify.AssociatedUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, false
	}
	return &u, true
}

// IsValid reports whether the request may proceed without re-authenticating.
func (s *ShopSession) IsValid() bool {
	if s.shop == nil || s.Token(true) == "" {
		return false
	}
	d, ok := s.Domain()
	return ok && d == s.shop.Domain
}

// IsValidCompare is IsValid for a request that names domain explicitly. It
// catches a session belonging to another shop open in the same browser.
func (s *ShopSession) IsValidCompare(domain string) bool {
	return s.IsValid() && s.shop.Domain == domain
}

// Forget logs the shop out. Safe to call repeatedly.
func (s *ShopSession) Forget() {
	s.store.Forget(KeyDomain, KeyUser, KeyToken, KeySessionToken)
	s.shop = nil
}

func (s *ShopSession) SessionToken() string {
	v, _ := s.store.Get(KeySessionToken)
	return v
}

func (s *ShopSession) SetSessionToken(token string) {
	s.store.Put(KeySessionToken, token)
}

// IsSessionTokenValid accepts token when none is stored yet or it matches
// the stored one.
func (s *ShopSession) IsSessionTokenValid(token string) bool {
	current := s.SessionToken()
	return current == "" || current == token
}

func (s *ShopSession) SetReturnTo(url string) {
	s.store.Put(KeyReturnTo, url)
}

// PullReturnTo returns and clears the post-login destination.
func (s *ShopSession) PullReturnTo() (string, bool) {
	v, ok := s.store.Get(KeyReturnTo)
	if ok {
		s.store.Forget(KeyReturnTo)
	}
	return v, ok && v != ""
}

func (s *ShopSession) SetOAuthState(state string) {
	s.store.Put(KeyOAuthState, state)
}

// PullOAuthState returns and clears the pending OAuth state nonce.
func (s *ShopSession) PullOAuthState() string {
	v, _ := s.store.Get(KeyOAuthState)
	s.store.Forget(KeyOAuthState)
	return v
}
