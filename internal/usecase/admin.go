package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/adapter"
	"membership-payments/internal/domain/ports/repository"
	"membership-payments/internal/domain/pricing"
	"membership-payments/internal/infra/metrics"
)

// GrantMembershipManually admits a member without payment. No transaction is
// written; the grant is recorded in the audit log instead.
func (u *membershipUC) GrantMembershipManually(ctx context.Context, userID string, t model.MembershipType, d model.Duration, approvedBy, reason string) (*model.Membership, error) {
	if _, err := u.requireAdmin(ctx, approvedBy); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if userID == "" || reason == "" {
		return nil, domain.ErrInvalidArgument
	}
	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, domain.Persistence("find user", err)
	}
	price, err := pricing.Lookup(t, d)
	if err != nil {
		return nil, err
	}
	if err := u.ensureNoActive(ctx, user.ID); err != nil {
		return nil, err
	}

	now := u.now()
	m := &model.Membership{
		ID:           newID(),
		UserID:       user.ID,
		Type:         price.Type,
		Duration:     price.Duration,
		Amount:       0,
		Currency:     price.Currency,
		Status:       model.MembershipActive,
		PurchaseDate: now,
		ExpiresAt:    model.ExpiryFor(price.Type, price.Duration, now),
		Benefits:     price.Benefits,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.memberships.Create(ctx, tx, m); err != nil {
			return err
		}
		return u.writeAudit(ctx, tx, &model.AuditEntry{
			ActorID:    approvedBy,
			Action:     model.AuditManualGrant,
			TargetType: "membership",
			TargetID:   m.ID,
			ToStatus:   string(m.Status),
			Reason:     reason,
		})
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindConflict {
			return nil, err
		}
		return nil, domain.Persistence("grant membership", err)
	}

	metrics.IncMembershipTransition("", string(m.Status))
	u.cache.Invalidate(ctx, user.ID)
	u.log.Info().Str("membership_id", m.ID).Str("user_id", user.ID).Str("approved_by", approvedBy).Msg("membership granted manually")
	u.notify.Notify(ctx, user.ID, nil, adapter.TemplateMembershipActivated, map[string]any{
		"MembershipType": string(m.Type),
		"Duration":       string(m.Duration),
		"ExpiresAt":      m.ExpiresAt,
		"Lifetime":       m.IsLifetime(),
		"Benefits":       m.Benefits,
	})
	return m, nil
}

// OverrideMembershipStatus lets an admin correct a membership's status along
// the admin transition table. A reason is mandatory and audited.
func (u *membershipUC) OverrideMembershipStatus(ctx context.Context, actorID, membershipID string, to model.MembershipStatus, reason string) (*model.Membership, error) {
	if _, err := u.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrInvalidArgument
	}
	m, err := u.findMembership(ctx, repository.NoTX, membershipID)
	if err != nil {
		return nil, err
	}
	if !model.CanAdminTransitionMembership(m.Status, to) {
		return nil, domain.ErrInvalidTransition
	}

	from := m.Status
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.memberships.TransitionStatus(ctx, tx, m.ID, from, to)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrStaleUpdate
		}
		return u.writeAudit(ctx, tx, &model.AuditEntry{
			ActorID:    actorID,
			Action:     model.AuditStatusOverride,
			TargetType: "membership",
			TargetID:   m.ID,
			FromStatus: string(from),
			ToStatus:   string(to),
			Reason:     reason,
		})
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindConflict {
			return nil, err
		}
		return nil, domain.Persistence("override membership status", err)
	}

	metrics.IncMembershipTransition(string(from), string(to))
	u.cache.Invalidate(ctx, m.UserID)
	u.log.Info().Str("membership_id", m.ID).Str("from", string(from)).Str("to", string(to)).Str("actor", actorID).
		Msg("membership status overridden")
	if to == model.MembershipSuspended {
		u.notify.Notify(ctx, m.UserID, nil, adapter.TemplateMembershipSuspended, map[string]any{"Reason": reason})
	}

	out := *m
	out.Status = to
	out.UpdatedAt = u.now()
	return &out, nil
}

// ApproveRefund refunds a completed transaction on an admin's authority. The
// member refund window does not apply.
func (u *membershipUC) ApproveRefund(ctx context.Context, actorID, transactionID, reason string) (*model.Transaction, error) {
	if _, err := u.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	t, err := u.findTransaction(ctx, repository.NoTX, transactionID)
	if err != nil {
		return nil, err
	}
	if t.Refund != nil || t.Status == model.TransactionRefunded {
		return nil, domain.ErrAlreadyRefunded
	}
	if t.Status != model.TransactionCompleted {
		return nil, domain.ErrWrongStatus
	}
	return u.refund(ctx, t, reason, &model.AuditEntry{
		ActorID: actorID,
		Action:  model.AuditRefundApproval,
		Reason:  strings.TrimSpace(reason),
	})
}

// PaymentAnalytics summarizes completed revenue in [from, to]. Zero bounds
// default to the trailing year.
func (u *membershipUC) PaymentAnalytics(ctx context.Context, actorID string, from, to time.Time) (*model.PaymentAnalytics, error) {
	if _, err := u.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = u.now()
	}
	if from.IsZero() {
		from = to.AddDate(-1, 0, 0)
	}
	if from.After(to) {
		return nil, domain.ErrInvalidArgument
	}
	a, err := u.transactions.Analytics(ctx, repository.NoTX, from.UTC(), to.UTC())
	if err != nil {
		return nil, domain.Persistence("payment analytics", err)
	}
	a.From, a.To = from.UTC(), to.UTC()
	if a.Currency == "" {
		a.Currency = pricing.Currency
	}
	return a, nil
}

// TriggerSweep runs the expiry sweep on behalf of an admin.
func (u *membershipUC) TriggerSweep(ctx context.Context, actorID string) (int, error) {
	if _, err := u.requireAdmin(ctx, actorID); err != nil {
		return 0, err
	}
	return u.SweepExpirations(ctx)
}
