package payment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
)

// StripeWebhook verifies Stripe-Signature headers and translates events.
type StripeWebhook struct {
	secret string
	now    func() time.Time
}

func NewStripeWebhook(secret string) *StripeWebhook {
	return &StripeWebhook{secret: secret, now: time.Now}
}

func (w *StripeWebhook) ParseEvent(payload []byte, signature string) (*model.ProviderEvent, error) {
	return ParseStripeEvent(payload, signature, w.secret, w.now())
}

// ParseStripeEvent checks the signature of payload and maps the Stripe event
// onto a provider-neutral event. Types the engine does not act on come back
// with an empty Type so they are logged and ignored downstream.
func ParseStripeEvent(payload []byte, signature, secret string, receivedAt time.Time) (*model.ProviderEvent, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, fmt.Errorf("%w: missing stripe signature", domain.ErrInvalidArgument)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: invalid stripe signature: %v", domain.ErrInvalidArgument, err)
	}

	ev := &model.ProviderEvent{
		ID:         event.ID,
		RawType:    string(event.Type),
		Payload:    json.RawMessage(payload),
		ReceivedAt: receivedAt.UTC(),
	}
	if event.Data == nil {
		return ev, nil
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: decode payment_intent: %v", domain.ErrInvalidArgument, err)
		}
		ev.IntentRef = pi.ID
		ev.AmountPaid = pi.AmountReceived
		ev.Currency = strings.ToUpper(string(pi.Currency))
		ev.Metadata = pi.Metadata
		if event.Type == "payment_intent.succeeded" {
			ev.Type = model.EventPaymentSucceeded
			break
		}
		ev.Type = model.EventPaymentFailed
		switch {
		case pi.LastPaymentError != nil:
			ev.FailureReason = failureReason(pi.LastPaymentError)
		case pi.CancellationReason != "":
			ev.FailureReason = "canceled: " + string(pi.CancellationReason)
		default:
			ev.FailureReason = string(event.Type)
		}

	case "charge.dispute.created":
		var d stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &d); err != nil {
			return nil, fmt.Errorf("%w: decode dispute: %v", domain.ErrInvalidArgument, err)
		}
		ev.Type = model.EventDisputeCreated
		if d.PaymentIntent != nil {
			ev.IntentRef = d.PaymentIntent.ID
		}
		ev.AmountPaid = d.Amount
		ev.Currency = strings.ToUpper(string(d.Currency))
		ev.FailureReason = string(d.Reason)
	}
	return ev, nil
}
