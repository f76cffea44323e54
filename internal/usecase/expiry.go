package usecase

import (
	"context"
	"errors"
	"math"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/adapter"
	"membership-payments/internal/domain/ports/repository"
	"membership-payments/internal/infra/metrics"
)

// expireOne moves one overdue membership to expired. The write is conditional
// on the stored state, so a membership another path already cancelled or
// suspended is left alone and false is returned.
func (u *membershipUC) expireOne(ctx context.Context, m *model.Membership) (bool, error) {
	ok, err := u.memberships.ExpireIfDue(ctx, repository.NoTX, m.ID, u.now())
	if err != nil {
		return false, domain.Persistence("expire membership", err)
	}
	if !ok {
		return false, nil
	}
	u.afterExpired(ctx, []*model.Membership{m})
	return true, nil
}

func (u *membershipUC) afterExpired(ctx context.Context, items []*model.Membership) {
	if len(items) == 0 {
		return
	}
	metrics.AddMembershipsExpired(len(items))
	for _, m := range items {
		metrics.IncMembershipTransition(string(model.MembershipActive), string(model.MembershipExpired))
		u.cache.Invalidate(ctx, m.UserID)
		u.notify.Notify(ctx, m.UserID, nil, adapter.TemplateMembershipExpired, map[string]any{
			"MembershipType": string(m.Type),
			"ExpiresAt":      m.ExpiresAt,
		})
	}
}

// SweepExpirations expires every active annual membership whose expiresAt has
// passed, in batches, and returns how many moved.
func (u *membershipUC) SweepExpirations(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		items, err := u.memberships.ExpireDue(ctx, repository.NoTX, u.now(), u.opts.SweepBatch)
		if err != nil {
			return total, domain.Persistence("sweep expirations", err)
		}
		u.afterExpired(ctx, items)
		total += len(items)
		if len(items) < u.opts.SweepBatch {
			break
		}
	}
	if total > 0 {
		u.log.Info().Int("expired", total).Msg("expiration sweep finished")
	}
	return total, nil
}

// GetMembershipStatus reports the user's current grant. An overdue membership
// is expired on read, so callers never see a stale active status even if the
// periodic sweep has not run.
func (u *membershipUC) GetMembershipStatus(ctx context.Context, userID string) (*model.MembershipStatusView, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := u.now()
	if v, ok := u.cache.Get(ctx, userID); ok && (v.Membership == nil || !v.Membership.IsOverdue(now)) {
		return v, nil
	}

	view := &model.MembershipStatusView{}
	active, err := u.memberships.FindActiveByUser(ctx, repository.NoTX, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return nil, domain.Persistence("find active membership", err)
	case active.IsOverdue(now):
		if _, err := u.expireOne(ctx, active); err != nil {
			return nil, err
		}
	default:
		view.HasActive = true
		view.Membership = active
		view.ExpiringSoon = active.ExpiringWithin(now, u.opts.ExpiringSoonWindow)
		if !active.IsLifetime() {
			view.DaysRemaining = int(math.Ceil(active.ExpiresAt.Sub(now).Hours() / 24))
		}
	}

	if !view.HasActive {
		last, err := u.memberships.FindLatestByUser(ctx, repository.NoTX, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Persistence("find latest membership", err)
		}
		view.LastMembership = last
	}

	u.cache.Set(ctx, userID, view)
	return view, nil
}
