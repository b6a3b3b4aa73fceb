package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopifyapp/internal/charge"
	"shopifyapp/pkg/shopify"
)

func TestActivatePlan_RecurringWithTrial(t *testing.T) {
	f := newFixture()
	f.api.activation = &shopify.Charge{
		Status:      "active",
		ActivatedOn: datePtr(fixedToday),
		BillingOn:   datePtr(fixedToday.AddDate(0, 0, 7)),
		TrialEndsOn: datePtr(fixedToday.AddDate(0, 0, 7)),
	}

	c, err := f.svc.ActivatePlan(context.Background(), 1, 1, 4242)
	require.NoError(t, err)

	assert.Equal(t, int64(4242), c.ChargeID)
	assert.Equal(t, charge.StatusActive, c.Status)
	assert.Equal(t, shopify.ChargeRecurring, c.Type)
	assert.Equal(t, fixedToday.AddDate(0, 0, 7), *c.TrialEndsOn)
	assert.Equal(t, fixedToday.AddDate(0, 0, 7), *c.BillingOn)
	assert.Equal(t, "Basic", c.Name)
	require.NotNil(t, f.shops.shops[1].PlanID)
	assert.Equal(t, int64(1), *f.shops.shops[1].PlanID)
	assert.Equal(t, 1, f.tx.calls, "one locked transaction")

	assert.True(t, f.svc.Helper.IsActiveTrial(c))
}

func TestActivatePlan_OneTimeSkipsRecurringDates(t *testing.T) {
	f := newFixture()
	f.api.activation = &shopify.Charge{
		Status:      "active",
		BillingOn:   datePtr(fixedToday),
		TrialEndsOn: datePtr(fixedToday),
	}

	c, err := f.svc.ActivatePlan(context.Background(), 1, 2, 77)
	require.NoError(t, err)
	assert.Equal(t, shopify.ChargeOneTime, c.Type)
	assert.Nil(t, c.BillingOn)
	assert.Nil(t, c.TrialEndsOn)
	assert.Equal(t, fixedToday, *c.ActivatedOn, "falls back to today")
}

func TestActivatePlan_CancelsPreviousPlan(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.ActivatePlan(ctx, 1, 1, 100)
	require.NoError(t, err)
	_, err = f.svc.ActivatePlan(ctx, 1, 2, 200)
	require.NoError(t, err)

	first := f.charges.rows[0]
	assert.Equal(t, charge.StatusCancelled, first.Status)
	assert.Equal(t, fixedToday, *first.CancelledOn)
	assert.Equal(t, fixedToday.AddDate(0, 0, 30), *first.ExpiresOn, "recurring access runs to period end")
	assert.Equal(t, []int64{100}, f.api.cancelled)
	assert.Equal(t, int64(2), *f.shops.shops[1].PlanID)
}

func TestActivatePlan_DuplicateConfirmationReplacesRow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.ActivatePlan(ctx, 1, 1, 100)
	require.NoError(t, err)
	_, err = f.svc.ActivatePlan(ctx, 1, 1, 100)
	require.NoError(t, err)

	live := f.charges.live()
	require.Len(t, live, 1)
	assert.Equal(t, charge.StatusActive, live[0].Status)
	assert.Empty(t, f.api.cancelled, "the confirmed charge is never cancelled")
}

func TestActivatePlan_Declined(t *testing.T) {
	f := newFixture()
	f.api.activation = &shopify.Charge{Status: "declined"}

	c, err := f.svc.ActivatePlan(context.Background(), 1, 1, 300)
	assert.ErrorIs(t, err, ErrChargeDeclined)
	require.NotNil(t, c)
	assert.Equal(t, charge.StatusDeclined, c.Status)
	assert.Equal(t, fixedToday, *c.CancelledOn)
	assert.Nil(t, f.shops.shops[1].PlanID, "plan pointer untouched")
	assert.Len(t, f.charges.live(), 1, "declined charge is recorded")
}

func TestActivatePlan_Guards(t *testing.T) {
	f := newFixture()
	_, err := f.svc.ActivatePlan(context.Background(), 1, 1, 0)
	assert.ErrorIs(t, err, shopify.ErrActivateWithoutChargeID)

	f.api.err = shopify.ErrNoActivationResponse
	_, err = f.svc.ActivatePlan(context.Background(), 1, 1, 5)
	assert.ErrorIs(t, err, shopify.ErrNoActivationResponse)
	assert.Empty(t, f.charges.rows)
}

func TestCancelCurrentPlan(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	ok, err := f.svc.CancelCurrentPlan(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok, "no plan")

	_, err = f.svc.ActivatePlan(ctx, 1, 1, 100)
	require.NoError(t, err)

	ok, err = f.svc.CancelCurrentPlan(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	for range 2 {
		ok, err = f.svc.CancelCurrentPlan(ctx, 1)
		require.NoError(t, err)
		assert.False(t, ok, "already cancelled")
	}
	assert.Equal(t, []int64{100}, f.api.cancelled)
}

func TestCancelCurrentPlan_DeclinedChargeIsNoop(t *testing.T) {
	f := newFixture()
	planID := int64(1)
	f.shops.shops[1].PlanID = &planID
	require.NoError(t, f.charges.Create(context.Background(), &charge.Charge{ChargeID: 9, ShopID: 1, PlanID: &planID, Status: charge.StatusDeclined}))

	ok, err := f.svc.CancelCurrentPlan(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCancelCurrentPlanLocally_SkipsAPI(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.svc.ActivatePlan(ctx, 1, 2, 100)
	require.NoError(t, err)

	ok, err := f.svc.CancelCurrentPlanLocally(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, f.api.cancelled)
	assert.Equal(t, fixedToday, *f.charges.rows[0].ExpiresOn, "one-time access ends today")
}

func TestGetPlanURL(t *testing.T) {
	f := newFixture()
	sh := f.shops.shops[1]

	url, err := f.svc.GetPlanURL(context.Background(), sh, nil)
	require.NoError(t, err)
	assert.Contains(t, url, "/confirm")

	require.Len(t, f.api.created, 1)
	d := f.api.created[0]
	assert.Equal(t, "Basic", d.Name)
	assert.Equal(t, 7, d.TrialDays)
	assert.Equal(t, "https://app.example.com/billing/process/1", d.ReturnURL)
	require.NotNil(t, d.CappedAmount)
	assert.Equal(t, "usage", d.Terms)

	two := int64(2)
	_, err = f.svc.GetPlanURL(context.Background(), sh, &two)
	require.NoError(t, err)
	d = f.api.created[1]
	assert.Zero(t, d.TrialDays)
	assert.Nil(t, d.CappedAmount, "caps only apply to recurring plans")

	missing := int64(99)
	_, err = f.svc.GetPlanURL(context.Background(), sh, &missing)
	assert.Error(t, err)
}

func TestCreateUsageCharge(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	sh := f.shops.shops[1]

	_, err := f.svc.CreateUsageCharge(ctx, sh, UsageCharge{Price: decimal.NewFromInt(1), Description: "emails"})
	assert.True(t, errors.Is(err, ErrNoRecurringCharge))

	_, err = f.svc.ActivatePlan(ctx, 1, 1, 100)
	require.NoError(t, err)

	c, err := f.svc.CreateUsageCharge(ctx, sh, UsageCharge{Price: decimal.RequireFromString("1.50"), Description: "emails"})
	require.NoError(t, err)
	assert.Equal(t, int64(100), f.api.usageOn)
	assert.Equal(t, shopify.ChargeUsage, c.Type)
	require.NotNil(t, c.ReferenceCharge)
	assert.Equal(t, int64(100), *c.ReferenceCharge)
	assert.Equal(t, charge.StatusAccepted, c.Status)
	assert.Equal(t, "1.50", c.Price.StringFixed(2))
}
