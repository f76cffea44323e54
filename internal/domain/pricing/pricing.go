// Package pricing holds the authoritative membership price list.
package pricing

import (
	"sort"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
)

const Currency = "INR"

// Price is what a type/duration costs, in minor units (paise).
type Price struct {
	Type     model.MembershipType `json:"membershipType"`
	Duration model.Duration       `json:"duration"`
	Amount   int64                `json:"amount"`
	Currency string               `json:"currency"`
	Benefits []string             `json:"benefits"`
}

type key struct {
	t model.MembershipType
	d model.Duration
}

var table = map[key]Price{
	{model.MembershipStudent, model.DurationAnnual}: {
		Amount: 50000,
		Benefits: []string{
			"Access to student resources",
			"Discounted conference registration",
			"Quarterly newsletter",
		},
	},
	{model.MembershipRegular, model.DurationAnnual}: {
		Amount: 200000,
		Benefits: []string{
			"Full member directory access",
			"Conference registration discount",
			"Journal access",
			"Voting rights",
		},
	},
	{model.MembershipRegular, model.DurationLifetime}: {
		Amount: 1500000,
		Benefits: []string{
			"Full member directory access",
			"Conference registration discount",
			"Journal access",
			"Voting rights",
			"Lifetime recognition",
		},
	},
	{model.MembershipSenior, model.DurationAnnual}: {
		Amount: 100000,
		Benefits: []string{
			"Full member directory access",
			"Journal access",
			"Voting rights",
		},
	},
	{model.MembershipSenior, model.DurationLifetime}: {
		Amount: 800000,
		Benefits: []string{
			"Full member directory access",
			"Journal access",
			"Voting rights",
			"Lifetime recognition",
		},
	},
	{model.MembershipInstitutional, model.DurationAnnual}: {
		Amount: 1000000,
		Benefits: []string{
			"Up to 10 member seats",
			"Institutional listing",
			"Conference booth priority",
		},
	},
	{model.MembershipInstitutional, model.DurationLifetime}: {
		Amount: 5000000,
		Benefits: []string{
			"Up to 10 member seats",
			"Institutional listing",
			"Conference booth priority",
			"Lifetime recognition",
		},
	},
	{model.MembershipInternational, model.DurationAnnual}: {
		Amount: 500000,
		Benefits: []string{
			"Journal access",
			"International chapter events",
		},
	},
	{model.MembershipLife, model.DurationLifetime}: {
		Amount: 1500000,
		Benefits: []string{
			"Full member directory access",
			"Journal access",
			"Voting rights",
			"Lifetime recognition",
		},
	},
}

// Lookup returns the price for a type/duration pair. The returned value is a
// copy; callers may not mutate the table.
func Lookup(t model.MembershipType, d model.Duration) (Price, error) {
	p, ok := table[key{t, d}]
	if !ok {
		return Price{}, domain.ErrUnknownPlan
	}
	p.Type = t
	p.Duration = d
	p.Currency = Currency
	p.Benefits = append([]string(nil), p.Benefits...)
	return p, nil
}

// All lists every priced combination in a stable order.
func All() []Price {
	out := make([]Price, 0, len(table))
	for k := range table {
		p, _ := Lookup(k.t, k.d)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Duration < out[j].Duration
	})
	return out
}
