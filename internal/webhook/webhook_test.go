package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopifyapp/internal/audit"
	"shopifyapp/internal/queue"
	"shopifyapp/internal/shop"
	"shopifyapp/pkg/config"
	"shopifyapp/pkg/shopify"
)

func TestNormalizeTopic(t *testing.T) {
	for in, want := range map[string]string{
		"app/uninstalled":   "app_uninstalled",
		"app-uninstalled":   "app_uninstalled",
		" APP_UNINSTALLED ": "app_uninstalled",
		"orders//create":    "orders_create",
		"shop.update":       "shop_update",
	} {
		assert.Equal(t, want, NormalizeTopic(in), in)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("app/uninstalled", func(Payload) queue.Job { return nil })

	_, ok := r.Lookup("app-uninstalled")
	assert.True(t, ok)
	_, ok = r.Lookup("orders-create")
	assert.False(t, ok)
	assert.Equal(t, []string{"app_uninstalled"}, r.Topics())
	assert.Panics(t, func() { r.Register("APP_UNINSTALLED", func(Payload) queue.Job { return nil }) })
}

type recordingQueue struct {
	jobs   []queue.Job
	queues []string
	err    error
}

func (q *recordingQueue) Dispatch(job queue.Job, name string) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	q.queues = append(q.queues, name)
	return nil
}

func (q *recordingQueue) DispatchNow(ctx context.Context, job queue.Job) error {
	return job.Handle(ctx)
}

type seenOnce struct{ seen map[string]bool }

func (s *seenOnce) Seen(ctx context.Context, p Payload) (bool, error) {
	if s.seen[p.EventID] {
		return true, nil
	}
	s.seen[p.EventID] = true
	return false, nil
}

func newRouter(h Handler) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodPost, "/webhook/{type}", h)
	return r
}

func post(t *testing.T, h http.Handler, typ, eventID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/"+typ, strings.NewReader(`{"id":1}`))
	req.Header.Set("X-Shopify-Shop-Domain", "example.myshopify.com")
	if eventID != "" {
		req.Header.Set("X-Shopify-Webhook-Id", eventID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_DispatchesKnownType(t *testing.T) {
	var got Payload
	reg := NewRegistry()
	reg.Register("app/uninstalled", func(p Payload) queue.Job {
		got = p
		return AppUninstalled{Domain: p.Domain}
	})
	q := &recordingQueue{}
	h := newRouter(Handler{Registry: reg, Queue: q, QueueName: "webhooks"})

	rec := post(t, h, "app-uninstalled", "evt-1")
	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, q.jobs, 1)
	assert.Equal(t, "webhooks", q.queues[0])
	assert.Equal(t, "app_uninstalled", q.jobs[0].Name())
	assert.Equal(t, "example.myshopify.com", got.Domain)
	assert.Equal(t, `{"id":1}`, string(got.Body))
}

func TestHandler_UnknownTypeIs404(t *testing.T) {
	q := &recordingQueue{}
	h := newRouter(Handler{Registry: NewRegistry(), Queue: q, QueueName: "webhooks"})

	rec := post(t, h, "orders-create", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, q.jobs)
}

func TestHandler_DuplicateDeliveryNotDispatchedTwice(t *testing.T) {
	reg := NewRegistry()
	reg.Register("app/uninstalled", func(p Payload) queue.Job { return AppUninstalled{Domain: p.Domain} })
	q := &recordingQueue{}
	h := newRouter(Handler{Registry: reg, Queue: q, QueueName: "webhooks", Events: &seenOnce{seen: map[string]bool{}}})

	assert.Equal(t, http.StatusCreated, post(t, h, "app-uninstalled", "evt-9").Code)
	assert.Equal(t, http.StatusOK, post(t, h, "app-uninstalled", "evt-9").Code)
	assert.Len(t, q.jobs, 1)
}

func TestHandler_QueueFull(t *testing.T) {
	reg := NewRegistry()
	reg.Register("app/uninstalled", func(p Payload) queue.Job { return AppUninstalled{Domain: p.Domain} })
	q := &recordingQueue{err: queue.ErrQueueFull}
	h := newRouter(Handler{Registry: reg, Queue: q, QueueName: "webhooks"})

	assert.Equal(t, http.StatusServiceUnavailable, post(t, h, "app-uninstalled", "").Code)
}

type memShops struct {
	byDomain map[string]*shop.Shop
	cleaned  []int64
	deleted  []int64
}

func (m *memShops) GetByDomain(ctx context.Context, domain string, withTrashed bool) (*shop.Shop, error) {
	s, ok := m.byDomain[domain]
	if !ok || (s.IsTrashed() && !withTrashed) {
		return nil, shop.ErrNotFound
	}
	return s, nil
}

func (m *memShops) Clean(ctx context.Context, id int64) error {
	m.cleaned = append(m.cleaned, id)
	return nil
}

func (m *memShops) SoftDelete(ctx context.Context, id int64) error {
	m.deleted = append(m.deleted, id)
	return nil
}

type cancelRecorder struct {
	ids []int64
	err error
}

func (c *cancelRecorder) CancelCurrentPlanLocally(ctx context.Context, shopID int64) (bool, error) {
	c.ids = append(c.ids, shopID)
	return c.err == nil, c.err
}

func TestAppUninstalled(t *testing.T) {
	shops := &memShops{byDomain: map[string]*shop.Shop{"a.myshopify.com": {ID: 4, Domain: "a.myshopify.com", Token: "tok"}}}
	billing := &cancelRecorder{}
	rec := &auditRecorder{}

	job := AppUninstalledFactory(shops, billing, rec)(Payload{Domain: "a.myshopify.com"})
	require.NoError(t, job.Handle(context.Background()))
	assert.Equal(t, []int64{4}, billing.ids)
	assert.Equal(t, []int64{4}, shops.cleaned)
	assert.Equal(t, []int64{4}, shops.deleted)
	assert.Equal(t, []string{audit.ActionUninstalled}, rec.actions)
}

type auditRecorder struct{ actions []string }

func (a *auditRecorder) Record(ctx context.Context, shopID int64, action, actor string, metadata any) error {
	a.actions = append(a.actions, action)
	return nil
}

func TestAppUninstalled_UnknownShopIsNoop(t *testing.T) {
	shops := &memShops{byDomain: map[string]*shop.Shop{}}
	billing := &cancelRecorder{}

	require.NoError(t, AppUninstalled{Domain: "gone.myshopify.com", Shops: shops, Billing: billing}.Handle(context.Background()))
	assert.Empty(t, billing.ids)
	assert.Empty(t, shops.deleted)
}

func TestAppUninstalled_StopsWhenCancelFails(t *testing.T) {
	shops := &memShops{byDomain: map[string]*shop.Shop{"a.myshopify.com": {ID: 4, Domain: "a.myshopify.com"}}}
	billing := &cancelRecorder{err: errors.New("db down")}

	err := AppUninstalled{Domain: "a.myshopify.com", Shops: shops, Billing: billing}.Handle(context.Background())
	assert.Error(t, err)
	assert.Empty(t, shops.deleted)
}

type fakeAPI struct {
	shopify.API
	webhooks   []shopify.Webhook
	scriptTags []shopify.ScriptTag
}

func (f *fakeAPI) ListWebhooks(ctx context.Context) ([]shopify.Webhook, error) {
	return f.webhooks, nil
}

func (f *fakeAPI) CreateWebhook(ctx context.Context, topic, address string) error {
	f.webhooks = append(f.webhooks, shopify.Webhook{Topic: topic, Address: address})
	return nil
}

func (f *fakeAPI) ListScriptTags(ctx context.Context) ([]shopify.ScriptTag, error) {
	return f.scriptTags, nil
}

func (f *fakeAPI) CreateScriptTag(ctx context.Context, src, event string) error {
	f.scriptTags = append(f.scriptTags, shopify.ScriptTag{Src: src, Event: event})
	return nil
}

func TestInstallers_CreateOnlyMissing(t *testing.T) {
	api := &fakeAPI{
		webhooks:   []shopify.Webhook{{Topic: "app/uninstalled", Address: "https://app.test/webhook/app-uninstalled"}},
		scriptTags: []shopify.ScriptTag{{Src: "https://cdn.test/a.js", Event: "onload"}},
	}
	var gotDomain, gotToken string
	factory := func(domain, token string) shopify.API {
		gotDomain, gotToken = domain, token
		return api
	}

	wh := WebhookInstaller{
		Domain: "a.myshopify.com", Token: "tok", Client: factory,
		Webhooks: []config.WebhookConfig{
			{Topic: "app/uninstalled", Address: "https://app.test/webhook/app-uninstalled"},
			{Topic: "orders/create", Address: "https://app.test/webhook/orders-create"},
		},
	}
	require.NoError(t, wh.Handle(context.Background()))
	assert.Len(t, api.webhooks, 2)
	assert.Equal(t, "orders/create", api.webhooks[1].Topic)
	assert.Equal(t, "a.myshopify.com", gotDomain)
	assert.Equal(t, "tok", gotToken)

	st := ScripttagInstaller{
		Domain: "a.myshopify.com", Token: "tok", Client: factory,
		ScriptTags: []config.ScriptTagConfig{{Src: "https://cdn.test/a.js", Event: "onload"}, {Src: "https://cdn.test/b.js", Event: "onload"}},
	}
	require.NoError(t, st.Handle(context.Background()))
	assert.Len(t, api.scriptTags, 2)
	assert.Equal(t, "https://cdn.test/b.js", api.scriptTags[1].Src)
}
