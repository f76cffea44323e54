package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/adapter"
	"membership-payments/internal/domain/ports/repository"
	"membership-payments/internal/domain/pricing"
	"membership-payments/internal/infra/logging"
	"membership-payments/internal/infra/metrics"
)

// RenewMembership charges the saved payment method and, on success, moves
// expiresAt one year forward from its current value. The original purchase
// transaction is never touched; each renewal appends its own record.
func (u *membershipUC) RenewMembership(ctx context.Context, userID, membershipID, paymentMethodRef string) (*RenewResult, error) {
	log := logging.With(ctx, u.log)
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	m, err := u.findMembership(ctx, repository.NoTX, membershipID)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, domain.ErrNotOwner
	}
	if m.IsLifetime() {
		return nil, domain.ErrLifetimeNotRenewable
	}
	if m.Status != model.MembershipActive {
		return nil, domain.ErrMembershipNotActive
	}
	pm := strings.TrimSpace(paymentMethodRef)
	if pm == "" {
		pm = m.AutoRenewal.PaymentMethodRef
	}
	if pm == "" {
		return nil, domain.ErrNoPaymentMethod
	}
	pending, err := u.hasPendingRenewal(ctx, m)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, domain.ErrRenewalPending
	}

	res, err := u.renew(ctx, m, pm)
	if err != nil {
		return nil, err
	}
	switch {
	case res.Pending:
		log.Info().Str("membership_id", m.ID).Str("transaction_id", res.Transaction.TransactionID).Msg("renewal charge pending")
	default:
		log.Info().Str("membership_id", m.ID).Time("expires_at", res.Membership.ExpiresAt).Msg("membership renewed")
	}
	return res, nil
}

// renew performs the off-session charge and books the outcome.
func (u *membershipUC) renew(ctx context.Context, m *model.Membership, paymentMethodRef string) (*RenewResult, error) {
	price, err := pricing.Lookup(m.Type, model.DurationAnnual)
	if err != nil {
		return nil, err
	}

	now := u.now()
	txnID := model.NewTransactionID(now)
	meta := map[string]string{
		model.MetaUserID:         m.UserID,
		model.MetaMembershipType: string(m.Type),
		model.MetaDuration:       string(model.DurationAnnual),
		model.MetaPurpose:        string(model.PurposeRenewal),
		model.MetaMembershipID:   m.ID,
	}
	var intent *adapter.Intent
	err = u.callProvider(ctx, "charge_saved", func(ctx context.Context) error {
		var cerr error
		intent, cerr = u.gateway.ChargeSaved(ctx, price.Amount, price.Currency, paymentMethodRef, meta, txnID)
		return cerr
	})
	if err != nil {
		return nil, err
	}

	mid := m.ID
	t := &model.Transaction{
		ID:                 newID(),
		TransactionID:      txnID,
		UserID:             m.UserID,
		MembershipRef:      &mid,
		PaymentIntentRef:   intent.Ref,
		Amount:             price.Amount,
		Currency:           price.Currency,
		Purpose:            model.PurposeRenewal,
		PaymentMethod:      model.PaymentMethod(u.gateway.Name()),
		GatewayResponse:    intent.Raw,
		TransactionDate:    now,
		MembershipType:     m.Type,
		MembershipDuration: model.DurationAnnual,
		UpdatedAt:          now,
	}

	switch intent.Status {
	case adapter.IntentSucceeded:
		if intent.AmountPaid != price.Amount {
			u.alert(ctx, fmt.Sprintf("Renewal charge %s for membership %s paid %s, expected %s.", intent.Ref, m.ID,
				model.FormatPrice(intent.AmountPaid, intent.Currency), model.FormatPrice(price.Amount, price.Currency)))
			return nil, domain.ErrAmountMismatch
		}
		t.Amount = intent.AmountPaid
		t.Status = model.TransactionCompleted
		return u.bookRenewal(ctx, m, t)
	case adapter.IntentProcessing, adapter.IntentRequiresAction:
		t.Status = model.TransactionPending
		if err := u.transactions.Create(ctx, repository.NoTX, t); err != nil {
			if errors.Is(err, domain.ErrIntentAlreadyApplied) {
				return nil, err
			}
			return nil, domain.Persistence("record pending renewal", err)
		}
		metrics.IncTransaction(string(t.Status), string(t.Purpose))
		return &RenewResult{Membership: m, Transaction: t, Pending: true}, nil
	default:
		reason := intent.FailureReason
		if reason == "" {
			reason = "renewal charge " + string(intent.Status)
		}
		t.Status = model.TransactionFailed
		t.FailureReason = &reason
		if err := u.transactions.Create(ctx, repository.NoTX, t); err != nil {
			u.log.Error().Err(err).Str("transaction_id", t.TransactionID).Msg("record failed renewal")
		} else {
			metrics.IncTransaction(string(t.Status), string(t.Purpose))
		}
		u.notify.Notify(ctx, m.UserID, nil, adapter.TemplatePaymentFailed, map[string]any{
			"Reason":        reason,
			"Amount":        model.FormatPrice(t.Amount, t.Currency),
			"TransactionID": t.TransactionID,
		})
		return nil, domain.ErrPaymentNotSucceeded
	}
}

// bookRenewal extends expiry and appends the completed renewal together. If
// the ledger write fails after the extension, the extension is reverted.
func (u *membershipUC) bookRenewal(ctx context.Context, m *model.Membership, t *model.Transaction) (*RenewResult, error) {
	prev := m.ExpiresAt
	next := prev.AddDate(1, 0, 0)

	extended := false
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.memberships.ExtendExpiry(ctx, tx, m.ID, prev, next)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrStaleUpdate
		}
		extended = true
		return u.transactions.Create(ctx, tx, t)
	})
	if err != nil {
		if extended {
			u.revertExtension(ctx, m.ID, next, prev)
		}
		if domain.KindOf(err) == domain.KindConflict {
			u.alert(ctx, fmt.Sprintf("Renewal charge %s for membership %s succeeded but could not be applied (%v); refund review needed.",
				t.PaymentIntentRef, m.ID, err))
			return nil, err
		}
		u.alert(ctx, fmt.Sprintf("Renewal charge %s for membership %s succeeded but the ledger write failed; reconcile manually.",
			t.PaymentIntentRef, m.ID))
		return nil, domain.Persistence("book renewal", err)
	}

	metrics.IncTransaction(string(t.Status), string(t.Purpose))
	metrics.AddRevenue(t.Currency, t.Amount)
	u.cache.Invalidate(ctx, m.UserID)

	out := *m
	out.ExpiresAt = next
	out.UpdatedAt = u.now()
	u.notify.Notify(ctx, m.UserID, nil, adapter.TemplateMembershipRenewed, map[string]any{
		"MembershipType": string(out.Type),
		"ExpiresAt":      out.ExpiresAt,
		"Amount":         model.FormatPrice(t.Amount, t.Currency),
		"TransactionID":  t.TransactionID,
	})
	return &RenewResult{Membership: &out, Transaction: t}, nil
}

// revertExtension is a no-op when the storage transaction already rolled the extension back.
func (u *membershipUC) revertExtension(ctx context.Context, id string, extended, original time.Time) {
	cur, err := u.memberships.FindByID(ctx, repository.NoTX, id)
	if err == nil && !cur.ExpiresAt.Equal(extended) {
		return
	}
	ok, err := u.memberships.ExtendExpiry(ctx, repository.NoTX, id, extended, original)
	if err != nil || !ok {
		u.log.Error().Err(err).Str("membership_id", id).Msg("compensation failed: renewal extension left without transaction")
		u.alert(ctx, fmt.Sprintf("membership %s was extended without a ledger record; manual cleanup required", id))
	}
}

// ProcessAutoRenewals renews active annual memberships with auto-renewal on
// that expire within the configured window. Individual failures are
// reported per membership and do not stop the batch.
func (u *membershipUC) ProcessAutoRenewals(ctx context.Context) ([]AutoRenewOutcome, error) {
	now := u.now()
	due, err := u.memberships.ListAutoRenewDue(ctx, repository.NoTX, now.Add(u.opts.AutoRenewWindow), u.opts.SweepBatch)
	if err != nil {
		return nil, domain.Persistence("list auto-renew due", err)
	}
	out := make([]AutoRenewOutcome, 0, len(due))
	for _, m := range due {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		o := AutoRenewOutcome{MembershipID: m.ID, UserID: m.UserID}
		if pending, err := u.hasPendingRenewal(ctx, m); err != nil {
			o.Err = err
		} else if pending {
			o.Pending = true
		} else if res, err := u.renew(ctx, m, m.AutoRenewal.PaymentMethodRef); err != nil {
			o.Err = err
		} else {
			o.Renewed = !res.Pending
			o.Pending = res.Pending
		}
		switch {
		case o.Err != nil:
			metrics.IncAutoRenewal("failed")
			u.log.Warn().Err(o.Err).Str("membership_id", m.ID).Msg("auto-renewal failed")
		case o.Pending:
			metrics.IncAutoRenewal("pending")
		default:
			metrics.IncAutoRenewal("renewed")
		}
		out = append(out, o)
	}
	return out, nil
}

// hasPendingRenewal avoids charging twice while an earlier renewal is still processing.
func (u *membershipUC) hasPendingRenewal(ctx context.Context, m *model.Membership) (bool, error) {
	items, _, err := u.transactions.ListByUser(ctx, repository.NoTX, m.UserID,
		model.TransactionFilter{Status: model.TransactionPending, Purpose: model.PurposeRenewal}, model.Page{Page: 1, Limit: model.MaxPageLimit})
	if err != nil {
		return false, domain.Persistence("list pending renewals", err)
	}
	for _, t := range items {
		if t.MembershipRef != nil && *t.MembershipRef == m.ID {
			return true, nil
		}
	}
	return false, nil
}
