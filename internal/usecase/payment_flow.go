package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/adapter"
	"membership-payments/internal/domain/ports/repository"
	"membership-payments/internal/domain/pricing"
	"membership-payments/internal/infra/logging"
	"membership-payments/internal/infra/metrics"
)

func (u *membershipUC) CreateIntent(ctx context.Context, userID string, t model.MembershipType, d model.Duration, clientAmount int64) (*IntentHandle, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	price, err := pricing.Lookup(t, d)
	if err != nil {
		return nil, err
	}
	if clientAmount != price.Amount {
		u.log.Warn().Str("user_id", userID).Int64("client_amount", clientAmount).Int64("price", price.Amount).
			Str("type", string(t)).Msg("intent amount mismatch")
		return nil, domain.ErrAmountMismatch
	}

	meta := map[string]string{
		model.MetaUserID:         userID,
		model.MetaMembershipType: string(t),
		model.MetaDuration:       string(d),
		model.MetaPurpose:        string(model.PurposePurchase),
	}
	var intent *adapter.Intent
	err = u.callProvider(ctx, "create_intent", func(ctx context.Context) error {
		var cerr error
		intent, cerr = u.gateway.CreateIntent(ctx, price.Amount, price.Currency, meta)
		return cerr
	})
	if err != nil {
		return nil, err
	}
	return &IntentHandle{
		IntentRef:    intent.Ref,
		ClientSecret: intent.ClientSecret,
		Amount:       price.Amount,
		Currency:     price.Currency,
	}, nil
}

func (u *membershipUC) ConfirmPayment(ctx context.Context, userID, intentRef string, t model.MembershipType, d model.Duration, details *model.UserDetails) (*ConfirmResult, error) {
	log := logging.With(ctx, u.log)
	if userID == "" || intentRef == "" {
		return nil, domain.ErrInvalidArgument
	}
	if err := details.Validate(); err != nil {
		return nil, err
	}
	price, err := pricing.Lookup(t, d)
	if err != nil {
		return nil, err
	}

	if err := u.ensureNoActive(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := u.transactions.FindByIntentRef(ctx, repository.NoTX, intentRef); err == nil {
		return nil, domain.ErrIntentAlreadyApplied
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Persistence("find by intent", err)
	}

	var intent *adapter.Intent
	err = u.callProvider(ctx, "get_intent", func(ctx context.Context) error {
		var gerr error
		intent, gerr = u.gateway.GetIntent(ctx, intentRef)
		return gerr
	})
	if err != nil {
		return nil, err
	}
	if owner := intent.Metadata[model.MetaUserID]; owner != "" && owner != userID {
		log.Warn().Str("intent", intentRef).Msg("intent belongs to another user")
		return nil, domain.ErrNotOwner
	}
	if intent.Status != adapter.IntentSucceeded {
		return nil, domain.ErrPaymentNotSucceeded
	}
	if intent.AmountPaid != price.Amount || !strings.EqualFold(intent.Currency, price.Currency) {
		log.Warn().Str("intent", intentRef).Int64("paid", intent.AmountPaid).Int64("price", price.Amount).
			Msg("paid amount does not match price")
		return nil, domain.ErrAmountMismatch
	}

	res, err := u.settle(ctx, settlement{
		userID:  userID,
		price:   price,
		intent:  intent,
		details: details,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("membership_id", res.Membership.ID).Str("transaction_id", res.Transaction.TransactionID).
		Msg("membership activated")
	return res, nil
}

// ensureNoActive rejects when the user holds an active membership. An overdue
// one is expired first so it does not block a new purchase.
func (u *membershipUC) ensureNoActive(ctx context.Context, userID string) error {
	active, err := u.memberships.FindActiveByUser(ctx, repository.NoTX, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return domain.Persistence("find active membership", err)
	}
	if active.IsOverdue(u.now()) {
		if _, err := u.expireOne(ctx, active); err != nil {
			return err
		}
		return nil
	}
	return domain.ErrActiveMembershipExists
}

type settlement struct {
	userID  string
	price   pricing.Price
	intent  *adapter.Intent
	details *model.UserDetails
}

// settle writes the active Membership and its completed Transaction together.
// A failed second write is compensated even when the store has no real transactions.
func (u *membershipUC) settle(ctx context.Context, s settlement) (*ConfirmResult, error) {
	now := u.now()
	m := &model.Membership{
		ID:               newID(),
		UserID:           s.userID,
		Type:             s.price.Type,
		Duration:         s.price.Duration,
		Amount:           s.price.Amount,
		Currency:         s.price.Currency,
		Status:           model.MembershipActive,
		PurchaseDate:     now,
		ExpiresAt:        model.ExpiryFor(s.price.Type, s.price.Duration, now),
		PaymentIntentRef: s.intent.Ref,
		Benefits:         s.price.Benefits,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if s.intent.PaymentMethod != "" && !m.IsLifetime() {
		m.AutoRenewal = model.AutoRenewal{Enabled: false, PaymentMethodRef: s.intent.PaymentMethod}
	}
	mid := m.ID
	t := &model.Transaction{
		ID:                 newID(),
		TransactionID:      model.NewTransactionID(now),
		UserID:             s.userID,
		MembershipRef:      &mid,
		PaymentIntentRef:   s.intent.Ref,
		Amount:             s.intent.AmountPaid,
		Currency:           s.price.Currency,
		Status:             model.TransactionCompleted,
		Purpose:            model.PurposePurchase,
		PaymentMethod:      model.PaymentMethod(u.gateway.Name()),
		GatewayResponse:    s.intent.Raw,
		TransactionDate:    now,
		MembershipType:     s.price.Type,
		MembershipDuration: s.price.Duration,
		Billing:            s.details,
		UpdatedAt:          now,
	}

	created := false
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.memberships.Create(ctx, tx, m); err != nil {
			return err
		}
		created = true
		return u.transactions.Create(ctx, tx, t)
	})
	if err != nil {
		if created {
			u.compensateMembership(ctx, m.ID)
		}
		if errors.Is(err, domain.ErrActiveMembershipExists) || errors.Is(err, domain.ErrIntentAlreadyApplied) {
			return nil, err
		}
		return nil, domain.Persistence("settle payment", err)
	}

	metrics.IncTransaction(string(t.Status), string(t.Purpose))
	metrics.AddRevenue(t.Currency, t.Amount)
	metrics.IncMembershipTransition("", string(m.Status))
	u.cache.Invalidate(ctx, s.userID)

	u.notify.Notify(ctx, s.userID, s.details, adapter.TemplateMembershipActivated, map[string]any{
		"MembershipType": string(m.Type),
		"Duration":       string(m.Duration),
		"ExpiresAt":      m.ExpiresAt,
		"Lifetime":       m.IsLifetime(),
		"Amount":         model.FormatPrice(t.Amount, t.Currency),
		"TransactionID":  t.TransactionID,
		"Benefits":       m.Benefits,
	})
	return &ConfirmResult{Membership: m, Transaction: t}, nil
}

// compensateMembership removes a membership whose paired ledger write failed.
// Under a real storage transaction the row is already gone and this is a no-op.
func (u *membershipUC) compensateMembership(ctx context.Context, id string) {
	if _, err := u.memberships.FindByID(ctx, repository.NoTX, id); err != nil {
		return
	}
	if err := u.memberships.Delete(ctx, repository.NoTX, id); err != nil {
		u.log.Error().Err(err).Str("membership_id", id).Msg("compensation failed: membership left without transaction")
		u.alert(ctx, fmt.Sprintf("membership %s has no ledger record; manual cleanup required", id))
	}
}
