package repository

import (
	"context"

	"membership-payments/internal/domain/model"
)

// StatusCache memoizes GetMembershipStatus answers per user.
type StatusCache interface {
	Get(ctx context.Context, userID string) (*model.MembershipStatusView, bool)
	Set(ctx context.Context, userID string, v *model.MembershipStatusView)
	Invalidate(ctx context.Context, userID string)
}
