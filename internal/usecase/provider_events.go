package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/adapter"
	"membership-payments/internal/domain/ports/repository"
	"membership-payments/internal/domain/pricing"
	"membership-payments/internal/infra/metrics"
)

// HandleProviderEvent records ev once and applies it only as a valid forward
// transition from the stored status. Retryable failures (storage, provider)
// are returned so the provider redelivers; everything else is settled with an
// outcome and a nil error.
func (u *membershipUC) HandleProviderEvent(ctx context.Context, ev *model.ProviderEvent) (model.EventOutcome, error) {
	if ev == nil || ev.ID == "" {
		return "", domain.ErrInvalidArgument
	}
	log := u.log.With().Str("event_id", ev.ID).Str("event_type", ev.RawType).Str("intent", ev.IntentRef).Logger()

	processed, err := u.events.Record(ctx, repository.NoTX, ev)
	if err != nil {
		return "", domain.Persistence("record provider event", err)
	}
	if processed {
		log.Debug().Msg("duplicate provider event")
		metrics.IncProviderEvent(string(ev.Type), string(model.OutcomeDuplicate))
		return model.OutcomeDuplicate, nil
	}

	outcome, err := u.applyEvent(ctx, ev, &log)
	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindRetryLater:
			log.Warn().Err(err).Msg("provider event deferred, awaiting redelivery")
			metrics.IncProviderEvent(string(ev.Type), "deferred")
			return "", err
		case domain.KindPersistence, domain.KindProvider, domain.KindInternal:
			log.Error().Err(err).Msg("provider event failed, awaiting redelivery")
			metrics.IncProviderEvent(string(ev.Type), "error")
			return "", err
		}
		log.Warn().Err(err).Msg("provider event rejected")
		outcome = model.OutcomeConflict
	}

	if err := u.events.MarkProcessed(ctx, repository.NoTX, ev.ID, outcome); err != nil {
		log.Warn().Err(err).Msg("mark provider event processed failed")
	}
	metrics.IncProviderEvent(string(ev.Type), string(outcome))
	log.Info().Str("outcome", string(outcome)).Msg("provider event handled")
	return outcome, nil
}

func (u *membershipUC) applyEvent(ctx context.Context, ev *model.ProviderEvent, log *zerolog.Logger) (model.EventOutcome, error) {
	switch ev.Type {
	case model.EventPaymentSucceeded, model.EventPaymentFailed, model.EventDisputeCreated:
	default:
		log.Info().Msg("unhandled provider event type ignored")
		return model.OutcomeIgnored, nil
	}
	if ev.IntentRef == "" {
		return model.OutcomeIgnored, nil
	}

	t, err := u.transactions.FindByIntentRef(ctx, repository.NoTX, ev.IntentRef)
	if errors.Is(err, domain.ErrNotFound) {
		switch ev.Type {
		case model.EventPaymentSucceeded:
			return u.settleFromEvent(ctx, ev, log)
		case model.EventDisputeCreated:
			// The succeeded event may still be in flight; keep it for redelivery.
			return "", domain.ErrDisputeUnmatched
		}
		return model.OutcomeUnmatched, nil
	}
	if err != nil {
		return "", domain.Persistence("find by intent", err)
	}

	switch ev.Type {
	case model.EventPaymentSucceeded:
		return u.applySucceeded(ctx, ev, t, log)
	case model.EventPaymentFailed:
		return u.applyFailed(ctx, ev, t)
	default:
		return u.applyDispute(ctx, ev, t, log)
	}
}

// forward classifies an event against the stored status.
func forward(current, target model.TransactionStatus) (model.EventOutcome, bool) {
	if current == target {
		return model.OutcomeDuplicate, false
	}
	if !model.CanTransitionTransaction(current, target) {
		return model.OutcomeStale, false
	}
	return "", true
}

func (u *membershipUC) applySucceeded(ctx context.Context, ev *model.ProviderEvent, t *model.Transaction, log *zerolog.Logger) (model.EventOutcome, error) {
	if outcome, ok := forward(t.Status, model.TransactionCompleted); !ok {
		return outcome, nil
	}

	var m *model.Membership
	if t.MembershipRef != nil {
		found, err := u.findMembership(ctx, repository.NoTX, *t.MembershipRef)
		if err != nil && !errors.Is(err, domain.ErrMembershipNotFound) {
			return "", err
		}
		m = found
	}

	// A pending purchase cannot activate while another grant is active.
	blocked := false
	if m != nil && t.Purpose == model.PurposePurchase && m.Status == model.MembershipPending {
		if err := u.ensureNoActive(ctx, t.UserID); errors.Is(err, domain.ErrActiveMembershipExists) {
			blocked = true
		} else if err != nil {
			return "", err
		}
	}

	outcome := model.OutcomeApplied
	var renewedTo *model.Membership
	renewalLapsed := false
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.transactions.Promote(ctx, tx, t.ID, model.TransactionPending, model.TransactionCompleted,
			model.TransactionUpdate{GatewayResponse: ev.Payload})
		if err != nil {
			return err
		}
		if !ok {
			outcome = model.OutcomeStale
			return nil
		}
		if m == nil {
			return nil
		}
		switch {
		case t.Purpose == model.PurposeRenewal && m.Status == model.MembershipActive && !m.IsLifetime():
			next := m.ExpiresAt.AddDate(1, 0, 0)
			ok, err := u.memberships.ExtendExpiry(ctx, tx, m.ID, m.ExpiresAt, next)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrStaleUpdate
			}
			cp := *m
			cp.ExpiresAt = next
			renewedTo = &cp
		case t.Purpose == model.PurposeRenewal && m.Status != model.MembershipActive:
			renewalLapsed = true
		case m.Status == model.MembershipPending && blocked:
			if _, err := u.memberships.TransitionStatus(ctx, tx, m.ID, model.MembershipPending, model.MembershipCancelled); err != nil {
				return err
			}
		case m.Status == model.MembershipPending:
			if _, err := u.memberships.TransitionStatus(ctx, tx, m.ID, model.MembershipPending, model.MembershipActive); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStaleUpdate) || errors.Is(err, domain.ErrActiveMembershipExists) {
			return "", err
		}
		return "", domain.Persistence("apply payment succeeded", err)
	}
	if outcome != model.OutcomeApplied {
		return outcome, nil
	}

	metrics.IncTransaction(string(model.TransactionCompleted), string(t.Purpose))
	metrics.AddRevenue(t.Currency, t.Amount)
	u.cache.Invalidate(ctx, t.UserID)

	switch {
	case renewedTo != nil:
		u.notify.Notify(ctx, t.UserID, t.Billing, adapter.TemplateMembershipRenewed, map[string]any{
			"MembershipType": string(renewedTo.Type),
			"ExpiresAt":      renewedTo.ExpiresAt,
			"Amount":         model.FormatPrice(t.Amount, t.Currency),
			"TransactionID":  t.TransactionID,
		})
	case renewalLapsed:
		log.Warn().Str("membership_id", m.ID).Str("status", string(m.Status)).Msg("renewal payment completed for a membership that is no longer active")
		u.alert(ctx, fmt.Sprintf("Renewal payment %s for membership %s completed but the membership is %s; refund review needed.",
			t.TransactionID, m.ID, m.Status))
	case m != nil && m.Status == model.MembershipPending && blocked:
		metrics.IncMembershipTransition(string(model.MembershipPending), string(model.MembershipCancelled))
		log.Warn().Str("user_id", t.UserID).Msg("payment completed while another membership is active")
		u.alert(ctx, fmt.Sprintf("Payment %s for user %s completed but the user already holds an active membership; refund review needed.",
			t.TransactionID, t.UserID))
	case m != nil && m.Status == model.MembershipPending:
		metrics.IncMembershipTransition(string(model.MembershipPending), string(model.MembershipActive))
		u.notify.Notify(ctx, t.UserID, t.Billing, adapter.TemplateMembershipActivated, map[string]any{
			"MembershipType": string(m.Type),
			"Duration":       string(m.Duration),
			"ExpiresAt":      m.ExpiresAt,
			"Lifetime":       m.IsLifetime(),
			"Amount":         model.FormatPrice(t.Amount, t.Currency),
			"TransactionID":  t.TransactionID,
			"Benefits":       m.Benefits,
		})
	}
	return model.OutcomeApplied, nil
}

func (u *membershipUC) applyFailed(ctx context.Context, ev *model.ProviderEvent, t *model.Transaction) (model.EventOutcome, error) {
	if outcome, ok := forward(t.Status, model.TransactionFailed); !ok {
		return outcome, nil
	}
	reason := ev.FailureReason
	if reason == "" {
		reason = "payment failed"
	}
	ok, err := u.transactions.Promote(ctx, repository.NoTX, t.ID, model.TransactionPending, model.TransactionFailed,
		model.TransactionUpdate{FailureReason: &reason, GatewayResponse: ev.Payload})
	if err != nil {
		return "", domain.Persistence("apply payment failed", err)
	}
	if !ok {
		return model.OutcomeStale, nil
	}
	metrics.IncTransaction(string(model.TransactionFailed), string(t.Purpose))
	u.notify.Notify(ctx, t.UserID, t.Billing, adapter.TemplatePaymentFailed, map[string]any{
		"Reason":        reason,
		"Amount":        model.FormatPrice(t.Amount, t.Currency),
		"TransactionID": t.TransactionID,
	})
	return model.OutcomeApplied, nil
}

func (u *membershipUC) applyDispute(ctx context.Context, ev *model.ProviderEvent, t *model.Transaction, log *zerolog.Logger) (model.EventOutcome, error) {
	if outcome, ok := forward(t.Status, model.TransactionDisputed); !ok {
		if outcome == model.OutcomeStale {
			log.Warn().Str("status", string(t.Status)).Msg("dispute for transaction that is not completed")
		}
		return outcome, nil
	}

	outcome := model.OutcomeApplied
	suspended := false
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.transactions.Promote(ctx, tx, t.ID, model.TransactionCompleted, model.TransactionDisputed,
			model.TransactionUpdate{GatewayResponse: ev.Payload})
		if err != nil {
			return err
		}
		if !ok {
			outcome = model.OutcomeStale
			return nil
		}
		if t.MembershipRef == nil {
			return nil
		}
		suspended, err = u.memberships.TransitionStatus(ctx, tx, *t.MembershipRef, model.MembershipActive, model.MembershipSuspended)
		return err
	})
	if err != nil {
		return "", domain.Persistence("apply dispute", err)
	}
	if outcome != model.OutcomeApplied {
		return outcome, nil
	}

	metrics.IncTransaction(string(model.TransactionDisputed), string(t.Purpose))
	u.cache.Invalidate(ctx, t.UserID)
	if suspended {
		metrics.IncMembershipTransition(string(model.MembershipActive), string(model.MembershipSuspended))
		u.notify.Notify(ctx, t.UserID, t.Billing, adapter.TemplateMembershipSuspended, map[string]any{
			"TransactionID": t.TransactionID,
		})
	}
	u.alert(ctx, fmt.Sprintf("Dispute opened on %s (%s, user %s). Membership suspended: %v.",
		t.TransactionID, model.FormatPrice(t.Amount, t.Currency), t.UserID, suspended))
	return model.OutcomeApplied, nil
}

// settleFromEvent activates a purchase whose client never called confirm,
// using the metadata stamped on the intent at creation.
func (u *membershipUC) settleFromEvent(ctx context.Context, ev *model.ProviderEvent, log *zerolog.Logger) (model.EventOutcome, error) {
	userID := ev.Metadata[model.MetaUserID]
	if userID == "" || ev.Metadata[model.MetaPurpose] == string(model.PurposeRenewal) {
		return model.OutcomeUnmatched, nil
	}
	t, terr := model.ParseMembershipType(ev.Metadata[model.MetaMembershipType])
	d, derr := model.ParseDuration(ev.Metadata[model.MetaDuration])
	if terr != nil || derr != nil {
		return model.OutcomeUnmatched, nil
	}
	price, err := pricing.Lookup(t, d)
	if err != nil {
		return model.OutcomeUnmatched, nil
	}
	if ev.AmountPaid != price.Amount {
		u.alert(ctx, fmt.Sprintf("Intent %s paid %s but %s %s costs %s.", ev.IntentRef,
			model.FormatPrice(ev.AmountPaid, ev.Currency), t, d, model.FormatPrice(price.Amount, price.Currency)))
		return "", domain.ErrAmountMismatch
	}

	intent := &adapter.Intent{
		Ref:        ev.IntentRef,
		Status:     adapter.IntentSucceeded,
		Amount:     ev.AmountPaid,
		AmountPaid: ev.AmountPaid,
		Currency:   price.Currency,
		Metadata:   ev.Metadata,
		Raw:        ev.Payload,
	}

	if err := u.ensureNoActive(ctx, userID); errors.Is(err, domain.ErrActiveMembershipExists) {
		return u.recordOrphanPayment(ctx, userID, price, intent, log)
	} else if err != nil {
		return "", err
	}

	_, err = u.settle(ctx, settlement{userID: userID, price: price, intent: intent})
	switch {
	case err == nil:
		return model.OutcomeApplied, nil
	case errors.Is(err, domain.ErrIntentAlreadyApplied):
		return model.OutcomeDuplicate, nil
	case errors.Is(err, domain.ErrActiveMembershipExists):
		return u.recordOrphanPayment(ctx, userID, price, intent, log)
	}
	return "", err
}

// recordOrphanPayment books money received while the user already holds an
// active membership, so the payment is auditable and refundable.
func (u *membershipUC) recordOrphanPayment(ctx context.Context, userID string, price pricing.Price, intent *adapter.Intent, log *zerolog.Logger) (model.EventOutcome, error) {
	now := u.now()
	t := &model.Transaction{
		TransactionID:      model.NewTransactionID(now),
		UserID:             userID,
		PaymentIntentRef:   intent.Ref,
		Amount:             intent.AmountPaid,
		Currency:           price.Currency,
		Status:             model.TransactionCompleted,
		Purpose:            model.PurposePurchase,
		PaymentMethod:      model.PaymentMethod(u.gateway.Name()),
		GatewayResponse:    intent.Raw,
		TransactionDate:    now,
		MembershipType:     price.Type,
		MembershipDuration: price.Duration,
		UpdatedAt:          now,
	}
	t.ID = newID()
	if err := u.transactions.Create(ctx, repository.NoTX, t); err != nil {
		if errors.Is(err, domain.ErrIntentAlreadyApplied) {
			return model.OutcomeDuplicate, nil
		}
		return "", domain.Persistence("record orphan payment", err)
	}
	metrics.IncTransaction(string(t.Status), string(t.Purpose))
	log.Warn().Str("user_id", userID).Str("transaction_id", t.TransactionID).Msg("payment received for user with active membership")
	u.alert(ctx, fmt.Sprintf("Payment %s (%s) received for user %s who already holds an active membership; refund review needed.",
		t.TransactionID, model.FormatPrice(t.Amount, t.Currency), userID))
	return model.OutcomeConflict, nil
}
