package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*StripeGateway)(nil)

// StripeGateway implements adapter.PaymentGateway with Stripe PaymentIntents.
// Stripe already speaks integer minor units, so amounts pass through unchanged.
type StripeGateway struct {
	api *client.API
	log *zerolog.Logger
}

func NewStripeGateway(secretKey string, logger *zerolog.Logger) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key empty")
	}
	l := logger.With().Str("component", "StripeGateway").Logger()
	return &StripeGateway{api: client.New(secretKey, nil), log: &l}, nil
}

// newStripeGatewayWithBackends lets tests point the client at a stub server.
func newStripeGatewayWithBackends(secretKey string, backends *stripe.Backends, logger *zerolog.Logger) *StripeGateway {
	l := logger.With().Str("component", "StripeGateway").Logger()
	return &StripeGateway{api: client.New(secretKey, backends), log: &l}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*adapter.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, g.classify("create intent", err)
	}
	return toIntent(pi), nil
}

func (g *StripeGateway) GetIntent(ctx context.Context, intentRef string) (*adapter.Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(intentRef, params)
	if err != nil {
		return nil, g.classify("get intent", err)
	}
	return toIntent(pi), nil
}

// ChargeSaved confirms an off-session intent against a stored payment method.
// paymentMethodRef is "pm_..." or "cus_...:pm_..." when the method is attached to a customer.
func (g *StripeGateway) ChargeSaved(ctx context.Context, amount int64, currency, paymentMethodRef string, metadata map[string]string, idempotencyKey string) (*adapter.Intent, error) {
	customer, method := splitPaymentMethodRef(paymentMethodRef)
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(strings.ToLower(currency)),
		PaymentMethod: stripe.String(method),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	if customer != "" {
		params.Customer = stripe.String(customer)
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		// A declined off-session charge still yields an intent we must record.
		var se *stripe.Error
		if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard && se.PaymentIntent != nil {
			in := toIntent(se.PaymentIntent)
			if in.FailureReason == "" {
				in.FailureReason = failureReason(se)
			}
			return in, nil
		}
		return nil, g.classify("charge saved method", err)
	}
	return toIntent(pi), nil
}

// refundReasons are the values Stripe accepts; anything else travels as metadata.
var refundReasons = map[string]bool{
	string(stripe.RefundReasonDuplicate):           true,
	string(stripe.RefundReasonFraudulent):          true,
	string(stripe.RefundReasonRequestedByCustomer): true,
}

func (g *StripeGateway) CreateRefund(ctx context.Context, intentRef string, amount int64, reason, idempotencyKey string) (*adapter.RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentRef),
		Amount:        stripe.Int64(amount),
	}
	if refundReasons[reason] {
		params.Reason = stripe.String(reason)
	} else {
		params.Reason = stripe.String(string(stripe.RefundReasonRequestedByCustomer))
		if reason != "" {
			params.AddMetadata("reason_detail", reason)
		}
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	rf, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, g.classify("create refund", err)
	}
	out := &adapter.RefundResult{
		Ref:    rf.ID,
		Status: string(rf.Status),
		Amount: rf.Amount,
		At:     time.Unix(rf.Created, 0).UTC(),
	}
	if rf.LastResponse != nil {
		out.Raw = json.RawMessage(rf.LastResponse.RawJSON)
	}
	return out, nil
}

// classify separates definite rejections from retryable provider trouble.
func (g *StripeGateway) classify(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		g.log.Warn().Str("op", op).Int("http_status", se.HTTPStatusCode).Str("type", string(se.Type)).
			Str("code", string(se.Code)).Msg("stripe request failed")
		if se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 && se.HTTPStatusCode != 429 {
			return fmt.Errorf("%s: %w: %s", op, domain.ErrProviderRejected, se.Msg)
		}
	} else {
		g.log.Warn().Err(err).Str("op", op).Msg("stripe unreachable")
	}
	return domain.Provider(op, err)
}

func toIntent(pi *stripe.PaymentIntent) *adapter.Intent {
	in := &adapter.Intent{
		Ref:          pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       adapter.IntentStatus(pi.Status),
		Amount:       pi.Amount,
		AmountPaid:   pi.AmountReceived,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Metadata:     pi.Metadata,
	}
	if pi.PaymentMethod != nil {
		in.PaymentMethod = pi.PaymentMethod.ID
	}
	if pi.LastPaymentError != nil {
		in.FailureReason = failureReason(pi.LastPaymentError)
	}
	if pi.LastResponse != nil {
		in.Raw = json.RawMessage(pi.LastResponse.RawJSON)
	}
	return in
}

func failureReason(e *stripe.Error) string {
	switch {
	case e.DeclineCode != "":
		return string(e.DeclineCode)
	case e.Code != "":
		return string(e.Code)
	}
	return e.Msg
}

func splitPaymentMethodRef(ref string) (customer, method string) {
	if i := strings.IndexByte(ref, ':'); i > 0 {
		return ref[:i], ref[i+1:]
	}
	return "", ref
}
