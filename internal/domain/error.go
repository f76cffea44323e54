package domain

import (
	"errors"
	"fmt"
)

// Kind is the machine-checkable class of a failure.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindNotFound    Kind = "not_found"
	KindForbidden   Kind = "forbidden"
	KindProvider    Kind = "provider"
	KindPersistence Kind = "persistence"
	KindInternal    Kind = "internal"
	// KindRetryLater marks work that cannot be applied yet but may succeed on redelivery.
	KindRetryLater Kind = "retry_later"
)

// Error carries a Kind, a stable code and a human message.
// Sentinels below are compared by identity with errors.Is.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

var (
	// Validation
	ErrInvalidArgument      = newErr(KindValidation, "invalid_argument", "invalid argument")
	ErrUnknownPlan          = newErr(KindNotFound, "unknown_plan", "no price for this membership type and duration")
	ErrAmountMismatch       = newErr(KindValidation, "amount_mismatch", "amount does not match the membership price")
	ErrPaymentNotSucceeded  = newErr(KindValidation, "payment_not_succeeded", "payment has not succeeded")
	ErrRefundWindowExpired  = newErr(KindValidation, "refund_window_expired", "refund window has expired for this transaction")
	ErrLifetimeNotRenewable = newErr(KindValidation, "lifetime_not_renewable", "lifetime memberships do not need renewal")
	ErrNoPaymentMethod      = newErr(KindValidation, "no_payment_method", "no payment method on file for renewal")
	ErrInvalidTransition    = newErr(KindValidation, "invalid_transition", "status transition is not allowed")
	ErrInvalidExecContext   = newErr(KindInternal, "invalid_exec_context", "invalid database execution context")

	// Conflict
	ErrActiveMembershipExists = newErr(KindConflict, "active_membership_exists", "user already has an active membership")
	ErrIntentAlreadyApplied   = newErr(KindConflict, "intent_already_applied", "this payment has already been applied")
	ErrAlreadyRefunded        = newErr(KindConflict, "already_refunded", "transaction has already been refunded")
	ErrWrongStatus            = newErr(KindConflict, "wrong_status", "transaction is not in a refundable status")
	ErrMembershipNotActive    = newErr(KindConflict, "membership_not_active", "membership is not active")
	ErrStaleUpdate            = newErr(KindConflict, "stale_update", "record changed concurrently, re-fetch and retry")
	ErrRenewalPending         = newErr(KindConflict, "renewal_pending", "an earlier renewal charge is still processing")
	ErrAlreadyExists          = newErr(KindConflict, "already_exists", "entity already exists")

	// Not found / ownership
	ErrNotFound            = newErr(KindNotFound, "not_found", "entity not found")
	ErrTransactionNotFound = newErr(KindNotFound, "transaction_not_found", "transaction not found")
	ErrMembershipNotFound  = newErr(KindNotFound, "membership_not_found", "membership not found")
	ErrUserNotFound        = newErr(KindNotFound, "user_not_found", "user not found")
	ErrNotOwner            = newErr(KindForbidden, "not_owner", "record does not belong to this user")
	ErrNotAdmin            = newErr(KindForbidden, "not_admin", "admin privileges required")

	// Provider
	ErrProviderUnavailable = newErr(KindProvider, "provider_unavailable", "payment provider unavailable, retry later")
	ErrProviderRejected    = newErr(KindProvider, "provider_rejected", "payment provider rejected the request")
	ErrDisputeUnmatched    = newErr(KindRetryLater, "dispute_unmatched", "no transaction recorded yet for the disputed payment")

	// Persistence
	ErrOperationFailed = newErr(KindPersistence, "operation_failed", "storage operation failed")
	ErrReadDatabaseRow = newErr(KindPersistence, "read_row_failed", "failed to read database row")
)

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal"
}

// Provider wraps a gateway failure so it classifies as retryable.
func Provider(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, ErrProviderUnavailable, err)
}

// Persistence wraps a storage failure unless it already carries a Kind.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, ErrOperationFailed, err)
}
