package model

import "time"

type AuditAction string

const (
	AuditStatusOverride AuditAction = "membership.status_override"
	AuditManualGrant    AuditAction = "membership.manual_grant"
	AuditRefundApproval AuditAction = "transaction.refund_approved"
)

// AuditEntry records an admin override.
type AuditEntry struct {
	ID         string
	ActorID    string
	Action     AuditAction
	TargetType string
	TargetID   string
	FromStatus string
	ToStatus   string
	Reason     string
	CreatedAt  time.Time
}
