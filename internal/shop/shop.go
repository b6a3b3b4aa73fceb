package shop

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("shop not found")

// Shop is an installation of the app. Domain is always the sanitized
// "*.myshopify.com" form; Token is the offline access token and is empty
// until the OAuth exchange completes.
type Shop struct {
	ID            int64
	Domain        string
	Token         string
	Namespace     string
	Grandfathered bool
	Freemium      bool
	PlanID        *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

func (s *Shop) HasOfflineAccess() bool {
	return s.Token != ""
}

func (s *Shop) HasPlan() bool {
	return s.PlanID != nil
}

func (s *Shop) IsTrashed() bool {
	return s.DeletedAt != nil
}
