package adapter

import (
	"context"
	"encoding/json"
	"time"
)

// IntentStatus is the provider-neutral state of a payment intent.
type IntentStatus string

const (
	IntentSucceeded       IntentStatus = "succeeded"
	IntentProcessing      IntentStatus = "processing"
	IntentRequiresAction  IntentStatus = "requires_action"
	IntentRequiresPayment IntentStatus = "requires_payment_method"
	IntentCanceled        IntentStatus = "canceled"
)

// Intent is what the provider reports about a charge attempt.
type Intent struct {
	Ref           string
	ClientSecret  string
	Status        IntentStatus
	Amount        int64 // requested, minor units
	AmountPaid    int64 // received, minor units
	Currency      string
	PaymentMethod string
	FailureReason string
	Metadata      map[string]string
	Raw           json.RawMessage // verbatim provider payload for audit
}

type RefundResult struct {
	Ref    string
	Status string
	Amount int64
	At     time.Time
	Raw    json.RawMessage
}

// PaymentGateway is the hex port for payment providers. Amounts are integer
// minor units; implementations convert at the wire if the provider differs.
type PaymentGateway interface {
	Name() string

	// CreateIntent opens a charge attempt and returns its handle.
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error)
	// GetIntent reads the authoritative status of an intent.
	GetIntent(ctx context.Context, intentRef string) (*Intent, error)
	// ChargeSaved charges a stored payment method off-session (renewals).
	ChargeSaved(ctx context.Context, amount int64, currency, paymentMethodRef string, metadata map[string]string, idempotencyKey string) (*Intent, error)
	// CreateRefund refunds amount of the intent. idempotencyKey makes retries safe.
	CreateRefund(ctx context.Context, intentRef string, amount int64, reason, idempotencyKey string) (*RefundResult, error)
}
