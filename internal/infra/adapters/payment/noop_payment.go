package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is an in-memory gateway for local runs: every intent
// succeeds immediately for its full amount.
type NoopPaymentGateway struct {
	mu      sync.Mutex
	seq     int64
	intents map[string]*adapter.Intent
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{
		intents: make(map[string]*adapter.Intent),
	}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) next(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_noop_%d", prefix, g.seq)
}

func (g *NoopPaymentGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*adapter.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := g.next("pi")
	in := &adapter.Intent{
		Ref: ref, ClientSecret: ref + "_secret", Status: adapter.IntentSucceeded,
		Amount: amount, AmountPaid: amount, Currency: strings.ToUpper(currency),
		PaymentMethod: "pm_noop", Metadata: metadata,
	}
	g.intents[ref] = in
	cp := *in
	return &cp, nil
}

func (g *NoopPaymentGateway) GetIntent(ctx context.Context, intentRef string) (*adapter.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[intentRef]
	if !ok {
		return nil, fmt.Errorf("noop: intent %s: %w", intentRef, domain.ErrProviderRejected)
	}
	cp := *in
	return &cp, nil
}

func (g *NoopPaymentGateway) ChargeSaved(ctx context.Context, amount int64, currency, paymentMethodRef string, metadata map[string]string, idempotencyKey string) (*adapter.Intent, error) {
	in, err := g.CreateIntent(ctx, amount, currency, metadata)
	if err != nil {
		return nil, err
	}
	in.PaymentMethod = paymentMethodRef
	return in, nil
}

func (g *NoopPaymentGateway) CreateRefund(ctx context.Context, intentRef string, amount int64, reason, idempotencyKey string) (*adapter.RefundResult, error) {
	return &adapter.RefundResult{
		Ref:    "re_" + idempotencyKey,
		Status: "succeeded",
		Amount: amount,
		At:     time.Now().UTC(),
	}, nil
}

// NoopWebhook accepts unsigned JSON provider events; local runs only.
type NoopWebhook struct{}

func (NoopWebhook) ParseEvent(payload []byte, signature string) (*model.ProviderEvent, error) {
	var ev model.ProviderEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	if ev.ID == "" {
		return nil, fmt.Errorf("%w: event id required", domain.ErrInvalidArgument)
	}
	ev.Payload = json.RawMessage(payload)
	ev.ReceivedAt = time.Now().UTC()
	return &ev, nil
}
