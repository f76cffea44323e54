package model

import (
	"strings"
	"time"

	"membership-payments/internal/domain"
)

type MembershipType string

const (
	MembershipStudent       MembershipType = "Student"
	MembershipRegular       MembershipType = "Regular"
	MembershipSenior        MembershipType = "Senior"
	MembershipInstitutional MembershipType = "Institutional"
	MembershipInternational MembershipType = "International"
	MembershipLife          MembershipType = "Life"
)

var membershipTypes = []MembershipType{
	MembershipStudent, MembershipRegular, MembershipSenior,
	MembershipInstitutional, MembershipInternational, MembershipLife,
}

// ParseMembershipType matches case-insensitively against the known types.
func ParseMembershipType(s string) (MembershipType, error) {
	for _, t := range membershipTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", domain.ErrInvalidArgument
}

type Duration string

const (
	DurationAnnual   Duration = "annual"
	DurationLifetime Duration = "lifetime"
)

func ParseDuration(s string) (Duration, error) {
	switch Duration(strings.ToLower(strings.TrimSpace(s))) {
	case DurationAnnual:
		return DurationAnnual, nil
	case DurationLifetime:
		return DurationLifetime, nil
	}
	return "", domain.ErrInvalidArgument
}

type MembershipStatus string

const (
	MembershipPending   MembershipStatus = "pending"
	MembershipActive    MembershipStatus = "active"
	MembershipExpired   MembershipStatus = "expired"
	MembershipCancelled MembershipStatus = "cancelled"
	MembershipSuspended MembershipStatus = "suspended"
)

// LifetimeExpiry is the far-future expiry stored for lifetime grants.
var LifetimeExpiry = time.Date(2099, time.December, 31, 23, 59, 59, 0, time.UTC)

type AutoRenewal struct {
	Enabled          bool   `json:"enabled"`
	PaymentMethodRef string `json:"paymentMethodRef,omitempty"`
}

// Membership is a user's grant of access for a type and duration.
type Membership struct {
	ID               string           `json:"id"`
	UserID           string           `json:"userId"`
	Type             MembershipType   `json:"membershipType"`
	Duration         Duration         `json:"duration"`
	Amount           int64            `json:"amount"`
	Currency         string           `json:"currency"`
	Status           MembershipStatus `json:"status"`
	PurchaseDate     time.Time        `json:"purchaseDate"`
	ExpiresAt        time.Time        `json:"expiresAt"`
	PaymentIntentRef string           `json:"paymentIntentRef,omitempty"`
	Benefits         []string         `json:"benefits"`
	AutoRenewal      AutoRenewal      `json:"autoRenewal"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// IsLifetime reports whether the grant never expires.
func (m *Membership) IsLifetime() bool {
	return IsLifetimeGrant(m.Type, m.Duration)
}

// IsLifetimeGrant is true for lifetime duration or the Life type.
func IsLifetimeGrant(t MembershipType, d Duration) bool {
	return d == DurationLifetime || t == MembershipLife
}

// ExpiryFor computes expiresAt for a purchase at the given time.
func ExpiryFor(t MembershipType, d Duration, purchasedAt time.Time) time.Time {
	if IsLifetimeGrant(t, d) {
		return LifetimeExpiry
	}
	return purchasedAt.AddDate(1, 0, 0)
}

// IsOverdue reports an active annual grant whose expiry has passed.
func (m *Membership) IsOverdue(now time.Time) bool {
	return m.Status == MembershipActive && !m.IsLifetime() && !m.ExpiresAt.After(now)
}

// ExpiringWithin reports an active annual grant expiring inside the window.
func (m *Membership) ExpiringWithin(now time.Time, window time.Duration) bool {
	if m.Status != MembershipActive || m.IsLifetime() {
		return false
	}
	return m.ExpiresAt.After(now) && !m.ExpiresAt.After(now.Add(window))
}

// Validate checks the storage invariants of a membership record.
func (m *Membership) Validate() error {
	if m.ID == "" || m.UserID == "" || m.Type == "" || m.Duration == "" {
		return domain.ErrInvalidArgument
	}
	if m.Amount < 0 {
		return domain.ErrInvalidArgument
	}
	if m.ExpiresAt.IsZero() || !m.ExpiresAt.After(m.PurchaseDate) {
		return domain.ErrInvalidArgument
	}
	return nil
}
