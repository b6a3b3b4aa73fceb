package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopifyapp/internal/shop"
	"shopifyapp/pkg/config"
	"shopifyapp/pkg/shopify"
)

type fakeShops struct {
	byDomain map[string]*shop.Shop
}

func (f *fakeShops) GetByDomain(ctx context.Context, domain string, withTrashed bool) (*shop.Shop, error) {
	s, ok := f.byDomain[domain]
	if !ok || (s.IsTrashed() && !withTrashed) {
		return nil, shop.ErrNotFound
	}
	return s, nil
}

func (f *fakeShops) SetAccessToken(ctx context.Context, id int64, token string) error {
	for _, s := range f.byDomain {
		if s.ID == id {
			s.Token = token
			return nil
		}
	}
	return shop.ErrNotFound
}

func newShops(shops ...*shop.Shop) *fakeShops {
	f := &fakeShops{byDomain: map[string]*shop.Shop{}}
	for _, s := range shops {
		f.byDomain[s.Domain] = s
	}
	return f
}

func TestShopSession_OfflineLogin(t *testing.T) {
	ctx := context.Background()
	shops := newShops(&shop.Shop{ID: 1, Domain: "example.myshopify.com"})
	ss := New(NewMemoryStore(), shops, config.ShopifyConfig{GrantMode: config.GrantOffline})

	assert.True(t, ss.Guest())
	require.NoError(t, ss.Make(ctx, "example.myshopify.com"))
	assert.False(t, ss.Guest())
	assert.False(t, ss.IsValid(), "no token yet")

	require.NoError(t, ss.SetAccess(ctx, &shopify.AccessData{AccessToken: "shpat_offline"}))
	assert.Equal(t, "shpat_offline", shops.byDomain["example.myshopify.com"].Token)
	assert.Equal(t, "shpat_offline", ss.Token(true))
	assert.True(t, ss.IsValid())
	assert.True(t, ss.IsValidCompare("example.myshopify.com"))
	assert.False(t, ss.IsValidCompare("other.myshopify.com"))
}

func TestShopSession_PerUserTokenStaysInSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	shops := newShops(&shop.Shop{ID: 1, Domain: "example.myshopify.com", Token: "shpat_offline"})
	ss := New(store, shops, config.ShopifyConfig{GrantMode: config.GrantPerUser})

	require.NoError(t, ss.Make(ctx, "example.myshopify.com"))
	assert.Empty(t, ss.Token(true), "strict lookup ignores the offline token in per-user mode")
	assert.Equal(t, "shpat_offline", ss.Token(false))
	assert.False(t, ss.IsValid())

	require.NoError(t, ss.SetAccess(ctx, &shopify.AccessData{
		AccessToken:    "shpua_user",
		AssociatedUser: &shopify.AssociatedUser{ID: 42, Email: "staff@example.com"},
	}))
	assert.Equal(t, "shpat_offline", shops.byDomain["example.myshopify.com"].Token, "per-user tokens are never persisted")
	assert.Equal(t, "shpua_user", ss.Token(true))
	assert.Equal(t, "shpua_user", ss.Token(false))
	u, ok := ss.User()
	require.True(t, ok)
	assert.Equal(t, int64(42), u.ID)
	assert.True(t, ss.IsValid())
}

func TestShopSession_ForgetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	ss := New(store, newShops(&shop.Shop{ID: 1, Domain: "example.myshopify.com", Token: "t"}), config.ShopifyConfig{})

	require.NoError(t, ss.Make(ctx, "example.myshopify.com"))
	store.Put(KeyToken, "u")
	ss.SetSessionToken("sid-1")
	ss.Forget()
	ss.Forget()

	assert.True(t, ss.Guest())
	assert.False(t, ss.IsValid())
	_, ok := store.Get(KeyDomain)
	assert.False(t, ok)
	_, ok = store.Get(KeyToken)
	assert.False(t, ok)
	_, ok = store.Get(KeySessionToken)
	assert.False(t, ok, "a new session id is accepted after logging in again")
	assert.True(t, ss.IsSessionTokenValid("sid-2"))
}

func TestShopSession_ResumeSkipsUninstalledShop(t *testing.T) {
	ctx := context.Background()
	deleted := shop.Shop{ID: 2, Domain: "gone.myshopify.com", Token: "t"}
	deleted.DeletedAt = &deleted.CreatedAt
	shops := newShops(&shop.Shop{ID: 1, Domain: "example.myshopify.com", Token: "t"}, &deleted)

	store := NewMemoryStore()
	store.Put(KeyDomain, "example.myshopify.com")
	ss := New(store, shops, config.ShopifyConfig{})
	require.NoError(t, ss.Resume(ctx))
	assert.True(t, ss.IsValid())

	store2 := NewMemoryStore()
	store2.Put(KeyDomain, "gone.myshopify.com")
	ss2 := New(store2, shops, config.ShopifyConfig{})
	require.NoError(t, ss2.Resume(ctx))
	assert.True(t, ss2.Guest())

	require.NoError(t, ss2.Make(ctx, "gone.myshopify.com"), "re-authentication finds trashed shops")
}

func TestShopSession_SessionTokenAndReturnTo(t *testing.T) {
	ss := New(NewMemoryStore(), newShops(), config.ShopifyConfig{})

	assert.True(t, ss.IsSessionTokenValid("abc"), "nothing stored yet")
	ss.SetSessionToken("abc")
	assert.True(t, ss.IsSessionTokenValid("abc"))
	assert.False(t, ss.IsSessionTokenValid("def"))

	ss.SetReturnTo("/orders?x=1")
	got, ok := ss.PullReturnTo()
	assert.True(t, ok)
	assert.Equal(t, "/orders?x=1", got)
	_, ok = ss.PullReturnTo()
	assert.False(t, ok)

	ss.SetOAuthState("nonce")
	assert.Equal(t, "nonce", ss.PullOAuthState())
	assert.Empty(t, ss.PullOAuthState())
}

func TestMiddleware_PersistsAcrossRequests(t *testing.T) {
	cs := sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef"))
	mw := Middleware(cs, "app", zerolog.Nop())

	write := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Put(KeyDomain, "example.myshopify.com")
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	write.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	var seen string
	read := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context()).Get(KeyDomain)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	read.ServeHTTP(rec, req)

	assert.Equal(t, "example.myshopify.com", seen)
	assert.Empty(t, rec.Result().Cookies(), "unchanged sessions are not re-sent")
}

func TestNewCookieStore_SecureUsesSameSiteNone(t *testing.T) {
	cs := NewCookieStore(config.SessionConfig{Secret: "s", Secure: true, MaxAge: 3600})
	assert.Equal(t, http.SameSiteNoneMode, cs.Options.SameSite)
	assert.True(t, cs.Options.HttpOnly)

	cs = NewCookieStore(config.SessionConfig{Secret: "s"})
	assert.Equal(t, http.SameSiteLaxMode, cs.Options.SameSite)
}
