package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"

	"membership-payments/internal/domain"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionCancelled TransactionStatus = "cancelled"
	TransactionRefunded  TransactionStatus = "refunded"
	TransactionDisputed  TransactionStatus = "disputed"
)

type TransactionPurpose string

const (
	PurposePurchase TransactionPurpose = "purchase"
	PurposeRenewal  TransactionPurpose = "renewal"
)

type PaymentMethod string

const (
	PaymentMethodStripe       PaymentMethod = "stripe"
	PaymentMethodRazorpay     PaymentMethod = "razorpay"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodUPI          PaymentMethod = "upi"
	PaymentMethodWallet       PaymentMethod = "wallet"
)

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundCompleted RefundStatus = "completed"
	RefundFailed    RefundStatus = "failed"
)

type RefundDetails struct {
	RefundRef    string       `json:"refundRef"`
	RefundAmount int64        `json:"refundAmount"`
	RefundDate   time.Time    `json:"refundDate"`
	Reason       string       `json:"reason"`
	RefundStatus RefundStatus `json:"refundStatus"`
}

// UserDetails is the billing contact captured at confirmation time.
type UserDetails struct {
	FullName    string `json:"fullName" validate:"omitempty,max=200"`
	Email       string `json:"email" validate:"omitempty,email"`
	Phone       string `json:"phone" validate:"omitempty,max=32"`
	Institution string `json:"institution" validate:"omitempty,max=200"`
	Designation string `json:"designation" validate:"omitempty,max=200"`
}

var validate = validator.New()

// Validate checks the contact fields; an empty value is allowed everywhere.
func (d *UserDetails) Validate() error {
	if d == nil {
		return nil
	}
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

// Transaction records one payment attempt and its outcome. Refunds and
// disputes overlay the same record.
type Transaction struct {
	ID                 string             `json:"id"`
	TransactionID      string             `json:"transactionId"`
	UserID             string             `json:"userId"`
	MembershipRef      *string            `json:"membershipRef,omitempty"`
	PaymentIntentRef   string             `json:"paymentIntentRef,omitempty"`
	Amount             int64              `json:"amount"`
	Currency           string             `json:"currency"`
	Status             TransactionStatus  `json:"status"`
	Purpose            TransactionPurpose `json:"purpose"`
	PaymentMethod      PaymentMethod      `json:"paymentMethod"`
	GatewayResponse    json.RawMessage    `json:"-"`
	TransactionDate    time.Time          `json:"transactionDate"`
	MembershipType     MembershipType     `json:"membershipType"`
	MembershipDuration Duration           `json:"membershipDuration"`
	FailureReason      *string            `json:"failureReason,omitempty"`
	Billing            *UserDetails       `json:"billing,omitempty"`
	Refund             *RefundDetails     `json:"refundDetails,omitempty"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// NewTransactionID returns "TXN_" followed by a ULID: a millisecond
// timestamp plus 80 random bits, lexically sortable by creation time.
func NewTransactionID(at time.Time) string {
	return "TXN_" + ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}

// Refundable reports whether a refund may be requested at now.
func (t *Transaction) Refundable(now time.Time, window time.Duration) error {
	if t.Refund != nil || t.Status == TransactionRefunded {
		return domain.ErrAlreadyRefunded
	}
	if t.Status != TransactionCompleted {
		return domain.ErrWrongStatus
	}
	if now.Sub(t.TransactionDate) > window {
		return domain.ErrRefundWindowExpired
	}
	return nil
}

// TransactionUpdate carries optional fields written alongside a status promotion.
type TransactionUpdate struct {
	FailureReason   *string
	GatewayResponse json.RawMessage
	MembershipRef   *string
}
