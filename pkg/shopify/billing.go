package shopify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrGetWithoutChargeID      = errors.New("cannot get charge without charge id")
	ErrActivateWithoutChargeID = errors.New("cannot activate without charge id")
	ErrNoActivationResponse    = errors.New("no activation response received")
)

type ChargeType int

const (
	ChargeRecurring ChargeType = 1
	ChargeOneTime   ChargeType = 2
	ChargeUsage     ChargeType = 3
	ChargeCredit    ChargeType = 4
)

func (t ChargeType) String() string {
	switch t {
	case ChargeRecurring:
		return "recurring"
	case ChargeOneTime:
		return "onetime"
	case ChargeUsage:
		return "usage"
	case ChargeCredit:
		return "credit"
	}
	return "unknown"
}

// resource returns the REST collection and its wrapping object key.
func (t ChargeType) resource() (string, string) {
	switch t {
	case ChargeOneTime:
		return "application_charges", "application_charge"
	case ChargeUsage:
		return "usage_charges", "usage_charge"
	case ChargeCredit:
		return "application_credits", "application_credit"
	}
	return "recurring_application_charges", "recurring_application_charge"
}

// Date is a calendar day. The API returns both "2006-01-02" and RFC3339
// timestamps for date fields; both decode to UTC midnight of that day.
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		return nil
	}
	if len(s) < 2 || s[0] != '"' {
		return fmt.Errorf("date: unexpected %s", s)
	}
	s = s[1 : len(s)-1]
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			*d = NewDate(t)
			return nil
		}
	}
	return fmt.Errorf("date: cannot parse %q", s)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(time.DateOnly) + `"`), nil
}

// Charge is an application charge as returned by the API.
type Charge struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name,omitempty"`
	Price           decimal.Decimal  `json:"price"`
	Status          string           `json:"status"`
	Test            bool             `json:"test"`
	ReturnURL       string           `json:"return_url,omitempty"`
	ConfirmationURL string           `json:"confirmation_url,omitempty"`
	TrialDays       int              `json:"trial_days"`
	CappedAmount    *decimal.Decimal `json:"capped_amount,omitempty"`
	Terms           string           `json:"terms,omitempty"`
	Description     string           `json:"description,omitempty"`
	BillingOn       *Date            `json:"billing_on,omitempty"`
	ActivatedOn     *Date            `json:"activated_on,omitempty"`
	TrialEndsOn     *Date            `json:"trial_ends_on,omitempty"`
	CancelledOn     *Date            `json:"cancelled_on,omitempty"`
}

// ChargeDetails is the payload for creating a recurring or one-time charge.
type ChargeDetails struct {
	Name         string           `json:"name"`
	Price        decimal.Decimal  `json:"price"`
	Test         bool             `json:"test"`
	TrialDays    int              `json:"trial_days,omitempty"`
	ReturnURL    string           `json:"return_url"`
	CappedAmount *decimal.Decimal `json:"capped_amount,omitempty"`
	Terms        string           `json:"terms,omitempty"`
}

type UsageChargeDetails struct {
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
}

func (c Client) CreateCharge(ctx context.Context, t ChargeType, details ChargeDetails) (*Charge, error) {
	plural, singular := t.resource()
	req := map[string]any{singular: details}
	var resp map[string]*Charge
	if _, err := c.doJSON(ctx, http.MethodPost, "/"+plural+".json", req, &resp); err != nil {
		return nil, fmt.Errorf("create %s charge: %w", t, err)
	}
	ch := resp[singular]
	if ch == nil {
		return nil, fmt.Errorf("create %s charge: empty response", t)
	}
	return ch, nil
}

func (c Client) ActivateCharge(ctx context.Context, t ChargeType, chargeID int64) (*Charge, error) {
	if chargeID == 0 {
		return nil, ErrActivateWithoutChargeID
	}
	plural, singular := t.resource()
	req := map[string]any{singular: map[string]int64{"id": chargeID}}
	var resp map[string]*Charge
	path := fmt.Sprintf("/%s/%d/activate.json", plural, chargeID)
	if _, err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("activate %s charge %d: %w", t, chargeID, err)
	}
	ch := resp[singular]
	if ch == nil || ch.Status == "" {
		return nil, ErrNoActivationResponse
	}
	return ch, nil
}

func (c Client) GetCharge(ctx context.Context, t ChargeType, chargeID int64) (*Charge, error) {
	if chargeID == 0 {
		return nil, ErrGetWithoutChargeID
	}
	plural, singular := t.resource()
	var resp map[string]*Charge
	path := fmt.Sprintf("/%s/%d.json", plural, chargeID)
	if _, err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get %s charge %d: %w", t, chargeID, err)
	}
	ch := resp[singular]
	if ch == nil {
		return nil, fmt.Errorf("get %s charge %d: empty response", t, chargeID)
	}
	return ch, nil
}

// CancelCharge cancels a recurring charge. Other charge types cannot be
// cancelled remotely and are a no-op. A charge the API no longer knows is
// treated as already cancelled.
func (c Client) CancelCharge(ctx context.Context, t ChargeType, chargeID int64) error {
	if t != ChargeRecurring {
		return nil
	}
	plural, _ := t.resource()
	path := fmt.Sprintf("/%s/%d.json", plural, chargeID)
	status, err := c.doJSON(ctx, http.MethodDelete, path, nil, nil)
	if err != nil && status != http.StatusNotFound {
		return fmt.Errorf("cancel %s charge %d: %w", t, chargeID, err)
	}
	return nil
}

func (c Client) CreateUsageCharge(ctx context.Context, recurringChargeID int64, details UsageChargeDetails) (*Charge, error) {
	if recurringChargeID == 0 {
		return nil, ErrGetWithoutChargeID
	}
	req := map[string]any{"usage_charge": details}
	var resp map[string]*Charge
	path := fmt.Sprintf("/recurring_application_charges/%d/usage_charges.json", recurringChargeID)
	if _, err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("create usage charge: %w", err)
	}
	ch := resp["usage_charge"]
	if ch == nil {
		return nil, fmt.Errorf("create usage charge: empty response")
	}
	return ch, nil
}
