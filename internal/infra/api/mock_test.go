//go:build !integration

package api

import (
	"context"
	"sync"
	"time"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/pricing"
	"membership-payments/internal/usecase"
)

// fakeEngine implements both use case interfaces with overridable funcs.
type fakeEngine struct {
	usecase.MembershipUseCase
	usecase.AdminUseCase

	CreateIntentFunc   func(ctx context.Context, userID string, t model.MembershipType, d model.Duration, amount int64) (*usecase.IntentHandle, error)
	ConfirmFunc        func(ctx context.Context, userID, intentRef string, t model.MembershipType, d model.Duration, details *model.UserDetails) (*usecase.ConfirmResult, error)
	HandleEventFunc    func(ctx context.Context, ev *model.ProviderEvent) (model.EventOutcome, error)
	RefundFunc         func(ctx context.Context, userID, transactionID, reason string) (*model.Transaction, error)
	RenewFunc          func(ctx context.Context, userID, membershipID, pm string) (*usecase.RenewResult, error)
	StatusFunc         func(ctx context.Context, userID string) (*model.MembershipStatusView, error)
	HistoryFunc        func(ctx context.Context, userID string, f model.TransactionFilter, p model.Page) (*model.TransactionHistory, error)
	TriggerSweepFunc   func(ctx context.Context, actorID string) (int, error)
	GrantFunc          func(ctx context.Context, userID string, t model.MembershipType, d model.Duration, approvedBy, reason string) (*model.Membership, error)
	AnalyticsFunc      func(ctx context.Context, actorID string, from, to time.Time) (*model.PaymentAnalytics, error)
	OverrideStatusFunc func(ctx context.Context, actorID, membershipID string, to model.MembershipStatus, reason string) (*model.Membership, error)
	ApproveRefundFunc  func(ctx context.Context, actorID, transactionID, reason string) (*model.Transaction, error)

	mu     sync.Mutex
	events []*model.ProviderEvent
}

func (f *fakeEngine) GetPrice(ctx context.Context, t model.MembershipType, d model.Duration) (pricing.Price, error) {
	return pricing.Lookup(t, d)
}

func (f *fakeEngine) ListPrices(ctx context.Context) []pricing.Price { return pricing.All() }

func (f *fakeEngine) CreateIntent(ctx context.Context, userID string, t model.MembershipType, d model.Duration, amount int64) (*usecase.IntentHandle, error) {
	return f.CreateIntentFunc(ctx, userID, t, d, amount)
}

func (f *fakeEngine) ConfirmPayment(ctx context.Context, userID, intentRef string, t model.MembershipType, d model.Duration, details *model.UserDetails) (*usecase.ConfirmResult, error) {
	return f.ConfirmFunc(ctx, userID, intentRef, t, d, details)
}

func (f *fakeEngine) HandleProviderEvent(ctx context.Context, ev *model.ProviderEvent) (model.EventOutcome, error) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
	if f.HandleEventFunc != nil {
		return f.HandleEventFunc(ctx, ev)
	}
	return model.OutcomeApplied, nil
}

func (f *fakeEngine) InitiateRefund(ctx context.Context, userID, transactionID, reason string) (*model.Transaction, error) {
	return f.RefundFunc(ctx, userID, transactionID, reason)
}

func (f *fakeEngine) RenewMembership(ctx context.Context, userID, membershipID, pm string) (*usecase.RenewResult, error) {
	return f.RenewFunc(ctx, userID, membershipID, pm)
}

func (f *fakeEngine) GetMembershipStatus(ctx context.Context, userID string) (*model.MembershipStatusView, error) {
	return f.StatusFunc(ctx, userID)
}

func (f *fakeEngine) GetTransactionHistory(ctx context.Context, userID string, fl model.TransactionFilter, p model.Page) (*model.TransactionHistory, error) {
	return f.HistoryFunc(ctx, userID, fl, p)
}

func (f *fakeEngine) TriggerSweep(ctx context.Context, actorID string) (int, error) {
	return f.TriggerSweepFunc(ctx, actorID)
}

func (f *fakeEngine) GrantMembershipManually(ctx context.Context, userID string, t model.MembershipType, d model.Duration, approvedBy, reason string) (*model.Membership, error) {
	return f.GrantFunc(ctx, userID, t, d, approvedBy, reason)
}

func (f *fakeEngine) OverrideMembershipStatus(ctx context.Context, actorID, membershipID string, to model.MembershipStatus, reason string) (*model.Membership, error) {
	return f.OverrideStatusFunc(ctx, actorID, membershipID, to, reason)
}

func (f *fakeEngine) PaymentAnalytics(ctx context.Context, actorID string, from, to time.Time) (*model.PaymentAnalytics, error) {
	return f.AnalyticsFunc(ctx, actorID, from, to)
}

func (f *fakeEngine) ApproveRefund(ctx context.Context, actorID, transactionID, reason string) (*model.Transaction, error) {
	return f.ApproveRefundFunc(ctx, actorID, transactionID, reason)
}

// fakeParser accepts any payload signed with "ok".
type fakeParser struct{}

func (fakeParser) ParseEvent(payload []byte, signature string) (*model.ProviderEvent, error) {
	if signature != "ok" {
		return nil, domain.ErrInvalidArgument
	}
	return &model.ProviderEvent{ID: "evt_1", Type: model.EventPaymentSucceeded, IntentRef: "pi_1", Payload: payload}, nil
}

// countingLimiter allows the first n calls per key.
type countingLimiter struct {
	mu    sync.Mutex
	n     int
	calls map[string]int
	err   error
}

func (l *countingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.calls == nil {
		l.calls = map[string]int{}
	}
	l.calls[key]++
	return l.calls[key] <= l.n, nil
}
