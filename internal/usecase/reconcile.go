package usecase

import (
	"context"
	"time"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/adapter"
	"membership-payments/internal/domain/ports/repository"
)

// ReconcilePending asks the provider about transactions stuck in pending for
// longer than olderThan and feeds what it learns through HandleProviderEvent,
// so a lost webhook ends the same way a delivered one would.
func (u *membershipUC) ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error) {
	items, err := u.transactions.ListPendingOlderThan(ctx, repository.NoTX, u.now().Add(-olderThan), u.opts.SweepBatch)
	if err != nil {
		return 0, domain.Persistence("list pending transactions", err)
	}

	applied := 0
	for _, t := range items {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		if t.PaymentIntentRef == "" {
			continue
		}
		var intent *adapter.Intent
		err := u.callProvider(ctx, "get_intent", func(ctx context.Context) error {
			var gerr error
			intent, gerr = u.gateway.GetIntent(ctx, t.PaymentIntentRef)
			return gerr
		})
		if err != nil {
			u.log.Warn().Err(err).Str("transaction_id", t.TransactionID).Msg("reconcile: provider lookup failed")
			continue
		}
		ev := reconcileEvent(t, intent, u.now())
		if ev == nil {
			continue
		}
		outcome, err := u.HandleProviderEvent(ctx, ev)
		if err != nil {
			u.log.Warn().Err(err).Str("transaction_id", t.TransactionID).Msg("reconcile: apply failed")
			continue
		}
		if outcome == model.OutcomeApplied {
			applied++
		}
	}
	if applied > 0 {
		u.log.Info().Int("applied", applied).Int("checked", len(items)).Msg("pending transactions reconciled")
	}
	return applied, nil
}

// reconcileEvent maps a terminal intent status to the event the provider
// would have sent. Non-terminal statuses yield nil.
func reconcileEvent(t *model.Transaction, in *adapter.Intent, at time.Time) *model.ProviderEvent {
	ev := &model.ProviderEvent{
		ID:         "reconcile:" + in.Ref + ":" + string(in.Status),
		RawType:    "reconcile." + string(in.Status),
		IntentRef:  t.PaymentIntentRef,
		AmountPaid: in.AmountPaid,
		Currency:   in.Currency,
		Metadata:   in.Metadata,
		Payload:    in.Raw,
		ReceivedAt: at,
	}
	switch in.Status {
	case adapter.IntentSucceeded:
		ev.Type = model.EventPaymentSucceeded
	case adapter.IntentCanceled, adapter.IntentRequiresPayment:
		ev.Type = model.EventPaymentFailed
		ev.FailureReason = in.FailureReason
		if ev.FailureReason == "" {
			ev.FailureReason = "intent " + string(in.Status)
		}
	default:
		return nil
	}
	return ev
}
