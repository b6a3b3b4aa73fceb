package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"shopifyapp/internal/charge"
	"shopifyapp/internal/plan"
	"shopifyapp/internal/shop"
	"shopifyapp/pkg/config"
	"shopifyapp/pkg/shopify"
)

type memShops struct {
	shops map[int64]*shop.Shop
}

func (m *memShops) GetByID(ctx context.Context, id int64, withTrashed bool) (*shop.Shop, error) {
	s, ok := m.shops[id]
	if !ok || (s.IsTrashed() && !withTrashed) {
		return nil, shop.ErrNotFound
	}
	return s, nil
}

func (m *memShops) SetToPlan(ctx context.Context, id int64, planID int64) error {
	s := m.shops[id]
	s.PlanID = &planID
	s.Freemium = false
	return nil
}

type memPlans struct {
	plans map[int64]*plan.Plan
}

func (m *memPlans) GetByID(ctx context.Context, id int64) (*plan.Plan, error) {
	p, ok := m.plans[id]
	if !ok {
		return nil, plan.ErrNotFound
	}
	return p, nil
}

func (m *memPlans) GetDefault(ctx context.Context) (*plan.Plan, error) {
	ids := make([]int64, 0, len(m.plans))
	for id := range m.plans {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if m.plans[id].OnInstall {
			return m.plans[id], nil
		}
	}
	return nil, plan.ErrNotFound
}

func (m *memPlans) Create(ctx context.Context, p *plan.Plan) error {
	p.ID = int64(len(m.plans) + 1)
	m.plans[p.ID] = p
	return nil
}

type memCharges struct {
	rows []*charge.Charge
	seq  int64
}

func (m *memCharges) live() []*charge.Charge {
	var out []*charge.Charge
	for _, c := range m.rows {
		if c.DeletedAt == nil {
			out = append(out, c)
		}
	}
	return out
}

func (m *memCharges) latest(match func(*charge.Charge) bool) (*charge.Charge, error) {
	live := m.live()
	for i := len(live) - 1; i >= 0; i-- {
		if match(live[i]) {
			return live[i], nil
		}
	}
	return nil, charge.ErrNotFound
}

func (m *memCharges) GetByReference(ctx context.Context, chargeID, shopID int64) (*charge.Charge, error) {
	return m.latest(func(c *charge.Charge) bool { return c.ChargeID == chargeID && c.ShopID == shopID })
}

func (m *memCharges) LatestForPlan(ctx context.Context, shopID, planID int64) (*charge.Charge, error) {
	return m.latest(func(c *charge.Charge) bool {
		return c.ShopID == shopID && c.PlanID != nil && *c.PlanID == planID
	})
}

func (m *memCharges) LatestByType(ctx context.Context, shopID int64, t shopify.ChargeType) (*charge.Charge, error) {
	return m.latest(func(c *charge.Charge) bool { return c.ShopID == shopID && c.Type == t })
}

func (m *memCharges) Create(ctx context.Context, c *charge.Charge) error {
	m.seq++
	c.ID = m.seq
	m.rows = append(m.rows, c)
	return nil
}

func (m *memCharges) DeleteByReference(ctx context.Context, chargeID, shopID int64) error {
	now := time.Now()
	for _, c := range m.live() {
		if c.ChargeID == chargeID && c.ShopID == shopID {
			c.DeletedAt = &now
		}
	}
	return nil
}

func (m *memCharges) Cancel(ctx context.Context, id int64, cancelledOn, expiresOn time.Time) error {
	for _, c := range m.rows {
		if c.ID == id {
			c.Status = charge.StatusCancelled
			c.CancelledOn = &cancelledOn
			c.ExpiresOn = &expiresOn
			return nil
		}
	}
	return charge.ErrNotFound
}

type memTx struct {
	mu     sync.Mutex
	stores Stores
	calls  int
}

func (m *memTx) InShopTx(ctx context.Context, shopID int64, fn func(Stores) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return fn(m.stores)
}

// fakeAPI implements the billing calls; anything else panics through the
// nil embedded interface.
type fakeAPI struct {
	shopify.API

	activation *shopify.Charge
	created    []shopify.ChargeDetails
	cancelled  []int64
	usage      []shopify.UsageChargeDetails
	usageOn    int64
	err        error
}

func (f *fakeAPI) ActivateCharge(ctx context.Context, t shopify.ChargeType, chargeID int64) (*shopify.Charge, error) {
	if f.err != nil {
		return nil, f.err
	}
	resp := *f.activation
	resp.ID = chargeID
	return &resp, nil
}

func (f *fakeAPI) CreateCharge(ctx context.Context, t shopify.ChargeType, details shopify.ChargeDetails) (*shopify.Charge, error) {
	f.created = append(f.created, details)
	return &shopify.Charge{ID: 900, ConfirmationURL: "https://example.myshopify.com/admin/charges/900/confirm"}, nil
}

func (f *fakeAPI) CancelCharge(ctx context.Context, t shopify.ChargeType, chargeID int64) error {
	f.cancelled = append(f.cancelled, chargeID)
	return nil
}

func (f *fakeAPI) CreateUsageCharge(ctx context.Context, recurringChargeID int64, details shopify.UsageChargeDetails) (*shopify.Charge, error) {
	f.usageOn = recurringChargeID
	f.usage = append(f.usage, details)
	return &shopify.Charge{ID: 5000 + int64(len(f.usage)), Status: "accepted", Price: details.Price}, nil
}

type fixture struct {
	svc     *Service
	api     *fakeAPI
	shops   *memShops
	plans   *memPlans
	charges *memCharges
	tx      *memTx
}

var fixedToday = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	capped := decimal.NewFromInt(100)
	f := &fixture{
		api:   &fakeAPI{activation: &shopify.Charge{Status: "active"}},
		shops: &memShops{shops: map[int64]*shop.Shop{1: {ID: 1, Domain: "example.myshopify.com", Token: "shpat"}}},
		plans: &memPlans{plans: map[int64]*plan.Plan{
			1: {ID: 1, Type: plan.TypeRecurring, Name: "Basic", Price: decimal.RequireFromString("5.00"), TrialDays: 7, OnInstall: true, CappedAmount: &capped, Terms: "usage"},
			2: {ID: 2, Type: plan.TypeOneTime, Name: "Lifetime", Price: decimal.RequireFromString("99.00")},
		}},
		charges: &memCharges{},
	}
	stores := Stores{Shops: f.shops, Plans: f.plans, Charges: f.charges}
	f.tx = &memTx{stores: stores}
	f.svc = &Service{
		Tx:        f.tx,
		Stores:    stores,
		NewClient: func(string, string) shopify.API { return f.api },
		Helper:    charge.Helper{Now: func() time.Time { return fixedToday.Add(9 * time.Hour) }},
		Cfg:       config.BillingConfig{Enabled: true, RedirectPath: "/billing/process"},
		AppURL:    "https://app.example.com/",
		Log:       zerolog.Nop(),
	}
	return f
}

func datePtr(t time.Time) *shopify.Date {
	d := shopify.NewDate(t)
	return &d
}
