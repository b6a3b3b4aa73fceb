package plan

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"shopifyapp/pkg/shopify"
)

var ErrNotFound = errors.New("plan not found")

type Type int

const (
	TypeRecurring Type = 1
	TypeOneTime   Type = 2
)

// ParseType maps "recurring" / "onetime" (and "one-time") to a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recurring", "1":
		return TypeRecurring, nil
	case "onetime", "one-time", "one_time", "2":
		return TypeOneTime, nil
	}
	return 0, errors.New("unknown plan type " + s)
}

// Plan is immutable once a charge references it.
type Plan struct {
	ID           int64            `json:"id"`
	Type         Type             `json:"type"`
	Name         string           `json:"name"`
	Price        decimal.Decimal  `json:"price"`
	CappedAmount *decimal.Decimal `json:"capped_amount,omitempty"`
	Terms        string           `json:"terms,omitempty"`
	TrialDays    int              `json:"trial_days"`
	Test         bool             `json:"test"`
	OnInstall    bool             `json:"on_install"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (p *Plan) IsRecurring() bool {
	return p.Type == TypeRecurring
}

func (p *Plan) HasTrial() bool {
	return p.TrialDays > 0
}

func (p *Plan) IsCapped() bool {
	return p.CappedAmount != nil
}

// ChargeType is the billing API charge kind used to bill this plan.
func (p *Plan) ChargeType() shopify.ChargeType {
	if p.Type == TypeOneTime {
		return shopify.ChargeOneTime
	}
	return shopify.ChargeRecurring
}
