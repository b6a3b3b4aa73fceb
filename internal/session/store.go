package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"

	"shopifyapp/pkg/config"
)

// Store is the per-request session state ShopSession reads and writes.
type Store interface {
	Get(key string) (string, bool)
	Put(key, value string)
	Forget(keys ...string)
}

type ctxKey struct{}

// WithStore attaches a session store to ctx.
func WithStore(ctx context.Context, s Store) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the request's session store. Requests that did not pass
// through Middleware get a throwaway in-memory store.
func FromContext(ctx context.Context) Store {
	if s, ok := ctx.Value(ctxKey{}).(Store); ok {
		return s
	}
	return NewMemoryStore()
}

// NewCookieStore builds the signed cookie store backing browser sessions.
// Secure cookies are sent with SameSite=None so they survive inside the
// admin iframe.
func NewCookieStore(cfg config.SessionConfig) *sessions.CookieStore {
	cs := sessions.NewCookieStore([]byte(cfg.Secret))
	cs.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if cfg.Secure {
		cs.Options.SameSite = http.SameSiteNoneMode
	}
	return cs
}

// Middleware loads the named session for each request and saves it before
// the first byte of the response when it changed.
func Middleware(store sessions.Store, name string, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := store.Get(r, name)
			if err != nil {
				// A cookie signed with an old secret yields a fresh session.
				log.Debug().Err(err).Msg("session cookie rejected")
			}
			gs := &gorillaStore{sess: sess}
			sw := &saveOnWrite{ResponseWriter: w}
			sw.save = func() {
				if !gs.dirty {
					return
				}
				if err := sess.Save(r, w); err != nil {
					log.Error().Err(err).Msg("session save failed")
				}
			}
			next.ServeHTTP(sw, r.WithContext(WithStore(r.Context(), gs)))
			sw.flush()
		})
	}
}

type gorillaStore struct {
	mu    sync.Mutex
	sess  *sessions.Session
	dirty bool
}

func (g *gorillaStore) Get(key string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.sess.Values[key].(string)
	return v, ok
}

func (g *gorillaStore) Put(key, value string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sess.Values[key] = value
	g.dirty = true
}

func (g *gorillaStore) Forget(keys ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, k := range keys {
		if _, ok := g.sess.Values[k]; ok {
			delete(g.sess.Values, k)
			g.dirty = true
		}
	}
}

type saveOnWrite struct {
	http.ResponseWriter
	save  func()
	saved bool
}

func (w *saveOnWrite) flush() {
	if w.saved {
		return
	}
	w.saved = true
	w.save()
}

func (w *saveOnWrite) WriteHeader(code int) {
	w.flush()
	w.ResponseWriter.WriteHeader(code)
}

func (w *saveOnWrite) Write(b []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(b)
}

func (w *saveOnWrite) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]string{}}
}

func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryStore) Put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *MemoryStore) Forget(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
}
