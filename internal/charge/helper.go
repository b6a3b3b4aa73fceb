package charge

import "time"

// PeriodDays is the length of a recurring billing window.
const PeriodDays = 30

// Helper derives trial and billing-period facts from a charge's stored dates.
// Nothing is cached; every call reads the clock. Methods returning (int, bool)
// report false when the value does not apply to the charge.
type Helper struct {
	Now func() time.Time
}

func NewHelper() Helper {
	return Helper{Now: time.Now}
}

// Today is the current UTC calendar day.
func (h Helper) Today() time.Time {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	return Day(now())
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween is the whole number of days from a to b, ignoring sign.
func DaysBetween(a, b time.Time) int {
	d := int(Day(b).Sub(Day(a)).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

func (h Helper) IsActiveTrial(c *Charge) bool {
	return c.IsTrial() && !h.Today().After(Day(*c.TrialEndsOn))
}

func (h Helper) RemainingTrialDays(c *Charge) (int, bool) {
	if !c.IsTrial() {
		return 0, false
	}
	if !h.IsActiveTrial(c) {
		return 0, true
	}
	return DaysBetween(h.Today(), *c.TrialEndsOn), true
}

func (h Helper) UsedTrialDays(c *Charge) (int, bool) {
	remaining, ok := h.RemainingTrialDays(c)
	if !ok {
		return 0, false
	}
	return c.TrialDays - remaining, true
}

// RemainingTrialDaysFromCancel is how much of the trial was left when the
// charge was cancelled. It is zero unless cancellation happened on or before
// the trial end.
func (h Helper) RemainingTrialDaysFromCancel(c *Charge) (int, bool) {
	if !c.IsTrial() {
		return 0, false
	}
	if c.IsCancelled() && c.CancelledOn != nil && !Day(*c.CancelledOn).After(Day(*c.TrialEndsOn)) {
		return DaysBetween(*c.CancelledOn, *c.TrialEndsOn), true
	}
	return 0, true
}

// PeriodBeginDate is the start of the 30-day window containing today,
// counted from the activation day. A charge without an activation day is
// treated as activated today.
func (h Helper) PeriodBeginDate(c *Charge) time.Time {
	today := h.Today()
	activated := today
	if c.ActivatedOn != nil {
		activated = Day(*c.ActivatedOn)
	}
	past := DaysBetween(activated, today) / PeriodDays
	return activated.AddDate(0, 0, PeriodDays*past)
}

func (h Helper) PeriodEndDate(c *Charge) time.Time {
	return h.PeriodBeginDate(c).AddDate(0, 0, PeriodDays)
}

// PastDaysForPeriod is the number of days elapsed in the current window. It
// does not apply once a charge has been cancelled for more than a period.
func (h Helper) PastDaysForPeriod(c *Charge) (int, bool) {
	today := h.Today()
	if c.CancelledOn != nil && DaysBetween(today, *c.CancelledOn) > PeriodDays {
		return 0, false
	}
	return DaysBetween(h.PeriodBeginDate(c), today), true
}

func (h Helper) RemainingDaysForPeriod(c *Charge) int {
	past, ok := h.PastDaysForPeriod(c)
	if !ok {
		return 0
	}
	if past == 0 && c.CancelledOn != nil && Day(*c.CancelledOn).Before(h.Today()) {
		return 0
	}
	return max(PeriodDays-past, 0)
}

func (h Helper) HasExpired(c *Charge) bool {
	if !c.IsCancelled() || c.ExpiresOn == nil {
		return false
	}
	return !Day(*c.ExpiresOn).After(h.Today())
}

// ExpiresOnCancel is the day a charge cancelled today stops granting access:
// the end of the current period for recurring charges, today otherwise.
func (h Helper) ExpiresOnCancel(c *Charge) time.Time {
	if c.IsRecurring() {
		return h.PeriodEndDate(c)
	}
	return h.Today()
}
