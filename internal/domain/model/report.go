package model

import "time"

// TransactionFilter narrows a user's history listing. Zero values match all.
type TransactionFilter struct {
	Status  TransactionStatus
	Purpose TransactionPurpose
	From    *time.Time
	To      *time.Time
}

type Page struct {
	Page  int
	Limit int
}

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Normalize clamps page and limit into their valid ranges.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func (p Page) Offset() int { return (p.Page - 1) * p.Limit }

// StatusStat aggregates a user's transactions per status.
type StatusStat struct {
	Status TransactionStatus `json:"status"`
	Count  int               `json:"count"`
	Total  int64             `json:"total"`
}

type TransactionHistory struct {
	Items      []*Transaction `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
	Stats      []StatusStat   `json:"stats"`
}

// MembershipStatusView answers "what does this user hold right now".
type MembershipStatusView struct {
	HasActive      bool        `json:"hasActiveMembership"`
	Membership     *Membership `json:"membership,omitempty"`
	ExpiringSoon   bool        `json:"expiringSoon"`
	DaysRemaining  int         `json:"daysRemaining,omitempty"`
	LastMembership *Membership `json:"lastMembership,omitempty"`
}

type RevenueBucket struct {
	Key     string `json:"key"`
	Count   int    `json:"count"`
	Revenue int64  `json:"revenue"`
}

// PaymentAnalytics summarizes completed payments over a period.
type PaymentAnalytics struct {
	From            time.Time       `json:"from"`
	To              time.Time       `json:"to"`
	Currency        string          `json:"currency"`
	TotalRevenue    int64           `json:"totalRevenue"`
	TotalCount      int             `json:"totalCount"`
	ByType          []RevenueBucket `json:"byType"`
	ByMonth         []RevenueBucket `json:"byMonth"`
	ByPaymentMethod []RevenueBucket `json:"byPaymentMethod"`
}
