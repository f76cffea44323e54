package model

import (
	"encoding/json"
	"time"
)

type ProviderEventType string

const (
	EventPaymentSucceeded ProviderEventType = "payment_succeeded"
	EventPaymentFailed    ProviderEventType = "payment_failed"
	EventDisputeCreated   ProviderEventType = "dispute_created"
)

// ProviderEvent is a verified, provider-neutral webhook notification.
type ProviderEvent struct {
	ID            string            `json:"id"`
	Type          ProviderEventType `json:"type"`
	RawType       string            `json:"rawType"`
	IntentRef     string            `json:"intentRef"`
	AmountPaid    int64             `json:"amountPaid"`
	Currency      string            `json:"currency"`
	FailureReason string            `json:"failureReason,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Payload       json.RawMessage   `json:"-"`
	ReceivedAt    time.Time         `json:"receivedAt"`
}

type EventOutcome string

const (
	OutcomeApplied   EventOutcome = "applied"
	OutcomeDuplicate EventOutcome = "duplicate"
	OutcomeStale     EventOutcome = "stale"
	OutcomeIgnored   EventOutcome = "ignored"
	OutcomeUnmatched EventOutcome = "unmatched"
	OutcomeConflict  EventOutcome = "conflict"
)

// Intent metadata keys stamped at intent creation.
const (
	MetaUserID         = "userId"
	MetaMembershipType = "membershipType"
	MetaDuration       = "duration"
	MetaPurpose        = "purpose"
	MetaMembershipID   = "membershipId"
)
