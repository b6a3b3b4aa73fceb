package charge

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"shopifyapp/pkg/shopify"
)

var ErrNotFound = errors.New("charge not found")

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// ParseStatus maps an API status string onto a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StatusPending, StatusAccepted, StatusDeclined, StatusActive, StatusCancelled, StatusExpired:
		return st, nil
	}
	return "", fmt.Errorf("unknown charge status %q", s)
}

// Charge is the local record of a billing API charge. ChargeID is the API's
// reference; ID is ours. Dates are calendar days in UTC.
type Charge struct {
	ID              int64
	ChargeID        int64
	ShopID          int64
	PlanID          *int64
	ReferenceCharge *int64
	Type            shopify.ChargeType
	Status          Status
	Name            string
	Price           decimal.Decimal
	CappedAmount    *decimal.Decimal
	Terms           string
	Description     string
	Test            bool
	TrialDays       int
	BillingOn       *time.Time
	ActivatedOn     *time.Time
	TrialEndsOn     *time.Time
	CancelledOn     *time.Time
	ExpiresOn       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

func (c *Charge) IsTrial() bool {
	return c.TrialEndsOn != nil
}

func (c *Charge) IsActive() bool {
	return c.Status == StatusActive
}

func (c *Charge) IsDeclined() bool {
	return c.Status == StatusDeclined
}

func (c *Charge) IsCancelled() bool {
	return c.CancelledOn != nil || c.Status == StatusCancelled
}

func (c *Charge) IsRecurring() bool {
	return c.Type == shopify.ChargeRecurring
}
