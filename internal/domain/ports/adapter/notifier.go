package adapter

import "context"

// Notification template names.
const (
	TemplateMembershipActivated = "membership_activated"
	TemplateMembershipRenewed   = "membership_renewed"
	TemplateRefundInitiated     = "refund_initiated"
	TemplateMembershipExpiring  = "membership_expiring"
	TemplateMembershipExpired   = "membership_expired"
	TemplatePaymentFailed       = "payment_failed"
	TemplateMembershipSuspended = "membership_suspended"
)

type Recipient struct {
	Name  string
	Email string
}

// Notifier delivers a templated message to a member.
type Notifier interface {
	Send(ctx context.Context, to Recipient, template string, data map[string]any) error
}

// AdminAlerter pushes operational alerts to staff (disputes, invariant violations).
type AdminAlerter interface {
	Alert(ctx context.Context, text string) error
}
