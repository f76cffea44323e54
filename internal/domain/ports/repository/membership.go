package repository

import (
	"context"
	"time"

	"membership-payments/internal/domain/model"
)

// -----------------------------
// Memberships
// -----------------------------

// MembershipRepository exposes only invariant-preserving writes.
type MembershipRepository interface {
	// Create inserts m. An active insert fails with ErrActiveMembershipExists
	// when the user already holds an active membership.
	Create(ctx context.Context, tx Tx, m *model.Membership) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Membership, error)
	FindActiveByUser(ctx context.Context, tx Tx, userID string) (*model.Membership, error)
	FindLatestByUser(ctx context.Context, tx Tx, userID string) (*model.Membership, error)
	// TransitionStatus moves id from `from` to `to`; false when the stored status is not `from`.
	TransitionStatus(ctx context.Context, tx Tx, id string, from, to model.MembershipStatus) (bool, error)
	// ExtendExpiry swaps expiresAt when it still equals current and the membership is active.
	ExtendExpiry(ctx context.Context, tx Tx, id string, current, next time.Time) (bool, error)
	// ExpireIfDue expires one overdue active annual membership.
	ExpireIfDue(ctx context.Context, tx Tx, id string, now time.Time) (bool, error)
	// ExpireDue expires up to limit overdue active annual memberships and returns them.
	ExpireDue(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Membership, error)
	ListExpiringBetween(ctx context.Context, tx Tx, from, to time.Time, limit int) ([]*model.Membership, error)
	ListAutoRenewDue(ctx context.Context, tx Tx, before time.Time, limit int) ([]*model.Membership, error)
	// Delete removes a membership; used only to compensate a failed paired write.
	Delete(ctx context.Context, tx Tx, id string) error
}
