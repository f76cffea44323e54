package usecase

import (
	"strings"

	"membership-payments/internal/domain/model"
)

// IsAdminFunc is the single capability check behind every admin path.
type IsAdminFunc func(u *model.User) bool

// NewAdminPolicy grants admin to the admin role or to any allow-listed email.
func NewAdminPolicy(emails []string) IsAdminFunc {
	allow := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			allow[e] = struct{}{}
		}
	}
	return func(u *model.User) bool {
		if u == nil {
			return false
		}
		if u.Role == model.RoleAdmin {
			return true
		}
		_, ok := allow[strings.ToLower(strings.TrimSpace(u.Email))]
		return ok
	}
}
