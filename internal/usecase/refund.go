package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v4"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/adapter"
	"membership-payments/internal/domain/ports/repository"
	"membership-payments/internal/infra/metrics"
)

// InitiateRefund refunds a member's own completed transaction inside the refund window.
// Each failed precondition has its own error: not-found, not-owner, wrong-status,
// already-refunded, window-expired.
func (u *membershipUC) InitiateRefund(ctx context.Context, userID, transactionID, reason string) (*model.Transaction, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	t, err := u.findTransaction(ctx, repository.NoTX, transactionID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		metrics.IncRefund("rejected")
		return nil, domain.ErrNotOwner
	}
	if err := t.Refundable(u.now(), u.opts.RefundWindow); err != nil {
		metrics.IncRefund("rejected")
		return nil, err
	}
	return u.refund(ctx, t, reason, nil)
}

// refund issues the provider refund, then overlays refund details on the
// transaction and cancels the funded membership in one storage transaction.
// The provider idempotency key is derived from the transaction id, so a
// retried refund never pays out twice.
func (u *membershipUC) refund(ctx context.Context, t *model.Transaction, reason string, audit *model.AuditEntry) (*model.Transaction, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "requested_by_customer"
	}
	if t.PaymentIntentRef == "" {
		return nil, domain.ErrWrongStatus
	}

	var res *adapter.RefundResult
	err := u.callProvider(ctx, "create_refund", func(ctx context.Context) error {
		var rerr error
		res, rerr = u.gateway.CreateRefund(ctx, t.PaymentIntentRef, t.Amount, reason, "refund_"+t.TransactionID)
		return rerr
	})
	if err != nil {
		metrics.IncRefund("provider_error")
		return nil, err
	}

	details := model.RefundDetails{
		RefundRef:    res.Ref,
		RefundAmount: res.Amount,
		RefundDate:   u.now(),
		Reason:       reason,
		RefundStatus: model.RefundPending,
	}
	if strings.EqualFold(res.Status, "succeeded") {
		details.RefundStatus = model.RefundCompleted
	}

	var cancelledFrom model.MembershipStatus
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.transactions.SetRefund(ctx, tx, t.ID, details)
		if err != nil {
			return err
		}
		if !ok {
			cur, ferr := u.transactions.FindByID(ctx, tx, t.ID)
			if ferr == nil && cur.Refund == nil && cur.Status != model.TransactionRefunded {
				return domain.ErrWrongStatus
			}
			return domain.ErrAlreadyRefunded
		}
		if t.MembershipRef != nil {
			m, err := u.memberships.FindByID(ctx, tx, *t.MembershipRef)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			if m != nil && model.CanTransitionMembership(m.Status, model.MembershipCancelled) {
				moved, err := u.memberships.TransitionStatus(ctx, tx, m.ID, m.Status, model.MembershipCancelled)
				if err != nil {
					return err
				}
				if moved {
					cancelledFrom = m.Status
				}
			}
		}
		if audit != nil {
			audit.TargetType = "transaction"
			audit.TargetID = t.TransactionID
			audit.FromStatus = string(t.Status)
			audit.ToStatus = string(model.TransactionRefunded)
			return u.writeAudit(ctx, tx, audit)
		}
		return nil
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindConflict {
			// the provider accepted the refund but the ledger already moved on
			u.log.Error().Err(err).Str("transaction_id", t.TransactionID).Str("refund_ref", res.Ref).
				Msg("refund issued but ledger update rejected")
			metrics.IncRefund("rejected")
			return nil, err
		}
		u.log.Error().Err(err).Str("transaction_id", t.TransactionID).Str("refund_ref", res.Ref).
			Msg("refund issued but ledger write failed")
		u.alert(ctx, "Refund "+res.Ref+" for "+t.TransactionID+" was issued but could not be recorded; reconcile manually.")
		return nil, domain.Persistence("record refund", err)
	}

	metrics.IncRefund("ok")
	metrics.IncTransaction(string(model.TransactionRefunded), string(t.Purpose))
	if cancelledFrom != "" {
		metrics.IncMembershipTransition(string(cancelledFrom), string(model.MembershipCancelled))
	}
	u.cache.Invalidate(ctx, t.UserID)

	out := *t
	out.Status = model.TransactionRefunded
	out.Refund = &details
	u.notify.Notify(ctx, t.UserID, t.Billing, adapter.TemplateRefundInitiated, map[string]any{
		"TransactionID": t.TransactionID,
		"Amount":        model.FormatPrice(details.RefundAmount, t.Currency),
		"Reason":        reason,
		"RefundStatus":  string(details.RefundStatus),
	})
	return &out, nil
}
