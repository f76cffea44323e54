package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
)

var validate = validator.New()

const maxJSONBody = 1 << 20

type createIntentRequest struct {
	MembershipType string `json:"membershipType" validate:"required"`
	Duration       string `json:"duration" validate:"required,oneof=annual lifetime"`
	Amount         int64  `json:"amount" validate:"required,gt=0"`
}

type confirmPaymentRequest struct {
	PaymentIntentRef string             `json:"paymentIntentId" validate:"required,max=255"`
	MembershipType   string             `json:"membershipType" validate:"required"`
	Duration         string             `json:"duration" validate:"required,oneof=annual lifetime"`
	UserDetails      *model.UserDetails `json:"userDetails"`
}

type renewRequest struct {
	PaymentMethodRef string `json:"paymentMethodId" validate:"omitempty,max=255"`
}

type refundRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type overrideStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending active expired cancelled suspended"`
	Reason string `json:"reason" validate:"required,max=500"`
}

type grantRequest struct {
	UserID         string `json:"userId" validate:"required"`
	MembershipType string `json:"membershipType" validate:"required"`
	Duration       string `json:"duration" validate:"required,oneof=annual lifetime"`
	Reason         string `json:"reason" validate:"required,max=500"`
}

// decode reads a JSON body into dst and validates its tags.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidArgument, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

func parsePlan(typ, dur string) (model.MembershipType, model.Duration, error) {
	t, err := model.ParseMembershipType(typ)
	if err != nil {
		return "", "", err
	}
	d, err := model.ParseDuration(dur)
	if err != nil {
		return "", "", err
	}
	return t, d, nil
}

// parseDate accepts RFC 3339 or a plain YYYY-MM-DD date.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: bad date %q", domain.ErrInvalidArgument, s)
}
