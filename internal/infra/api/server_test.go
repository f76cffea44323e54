//go:build !integration

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/usecase"
)

const testSecret = "test-secret"

type testServer struct {
	engine  *fakeEngine
	limiter *countingLimiter
	auth    *AuthManager
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.New(io.Discard)
	engine := &fakeEngine{}
	limiter := &countingLimiter{n: 100}
	auth := NewAuthManager(testSecret)
	srv := NewServer(engine, engine, fakeParser{}, auth, limiter, Options{RateRequests: 100, RateWindow: time.Minute}, &logger)
	return &testServer{engine: engine, limiter: limiter, auth: auth, handler: srv.Routes()}
}

func (s *testServer) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := s.auth.Mint(userID, role, userID+"@example.org", time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHealthAndPricing(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/pricing/student/annual", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var p struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, int64(50000), p.Amount)
	assert.Equal(t, "INR", p.Currency)

	rec = s.do(t, http.MethodGet, "/api/v1/pricing/Wizard/annual", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/pricing", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Student")
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/memberships/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/memberships/status", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := NewAuthManager("other").Mint("user-1", "", "", time.Hour)
	require.NoError(t, err)
	rec = s.do(t, http.MethodGet, "/api/v1/memberships/status", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateIntent(t *testing.T) {
	s := newTestServer(t)
	var gotUser string
	var gotAmount int64
	s.engine.CreateIntentFunc = func(ctx context.Context, userID string, mt model.MembershipType, d model.Duration, amount int64) (*usecase.IntentHandle, error) {
		gotUser, gotAmount = userID, amount
		if amount != 50000 {
			return nil, domain.ErrAmountMismatch
		}
		return &usecase.IntentHandle{IntentRef: "pi_1", ClientSecret: "sec", Amount: amount, Currency: "INR"}, nil
	}
	tok := s.token(t, "user-1", "")

	t.Run("creates an intent for the caller", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/payments/intents", tok,
			map[string]any{"membershipType": "Student", "duration": "annual", "amount": 50000})

		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "user-1", gotUser)
		assert.Contains(t, rec.Body.String(), `"intentRef":"pi_1"`)
	})

	t.Run("maps an amount mismatch to 400", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/v1/payments/intents", tok,
			map[string]any{"membershipType": "Student", "duration": "annual", "amount": 45000})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, int64(45000), gotAmount)
		e := decodeError(t, rec)
		assert.Equal(t, "validation", e.Kind)
		assert.Equal(t, "amount_mismatch", e.Code)
	})

	t.Run("rejects invalid bodies before the engine", func(t *testing.T) {
		gotUser = ""
		rec := s.do(t, http.MethodPost, "/api/v1/payments/intents", tok,
			map[string]any{"membershipType": "Student", "duration": "monthly", "amount": 50000})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, gotUser)
	})
}

func TestConfirmPaymentErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"duplicate active membership", domain.ErrActiveMembershipExists, http.StatusConflict, "conflict"},
		{"provider outage", domain.Provider("get intent", errors.New("timeout")), http.StatusBadGateway, "provider"},
		{"storage failure", domain.Persistence("create", errors.New("conn reset")), http.StatusInternalServerError, "persistence"},
		{"unknown user", domain.ErrUserNotFound, http.StatusNotFound, "not_found"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t)
			s.engine.ConfirmFunc = func(ctx context.Context, userID, intentRef string, mt model.MembershipType, d model.Duration, details *model.UserDetails) (*usecase.ConfirmResult, error) {
				return nil, tc.err
			}

			rec := s.do(t, http.MethodPost, "/api/v1/payments/confirm", s.token(t, "user-1", ""),
				map[string]any{"paymentIntentId": "pi_1", "membershipType": "Student", "duration": "annual"})

			assert.Equal(t, tc.status, rec.Code)
			e := decodeError(t, rec)
			assert.Equal(t, tc.kind, e.Kind)
			if tc.status == http.StatusInternalServerError {
				assert.Equal(t, "internal error", e.Message, "internal details must not leak")
			}
		})
	}

	t.Run("says so explicitly on a duplicate active membership", func(t *testing.T) {
		s := newTestServer(t)
		s.engine.ConfirmFunc = func(ctx context.Context, userID, intentRef string, mt model.MembershipType, d model.Duration, details *model.UserDetails) (*usecase.ConfirmResult, error) {
			return nil, domain.ErrActiveMembershipExists
		}
		rec := s.do(t, http.MethodPost, "/api/v1/payments/confirm", s.token(t, "user-1", ""),
			map[string]any{"paymentIntentId": "pi_1", "membershipType": "Student", "duration": "annual"})
		e := decodeError(t, rec)
		assert.Equal(t, "active_membership_exists", e.Code)
		assert.Contains(t, e.Message, "already has an active membership")
	})
}

func TestConfirmPaymentPassesBillingDetails(t *testing.T) {
	s := newTestServer(t)
	var got *model.UserDetails
	s.engine.ConfirmFunc = func(ctx context.Context, userID, intentRef string, mt model.MembershipType, d model.Duration, details *model.UserDetails) (*usecase.ConfirmResult, error) {
		got = details
		return &usecase.ConfirmResult{Membership: &model.Membership{ID: "m1"}, Transaction: &model.Transaction{ID: "t1"}}, nil
	}

	rec := s.do(t, http.MethodPost, "/api/v1/payments/confirm", s.token(t, "user-1", ""), map[string]any{
		"paymentIntentId": "pi_1", "membershipType": "Life", "duration": "lifetime",
		"userDetails": map[string]string{"fullName": "Asha Rao", "email": "asha@example.org", "institution": "IISc"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "IISc", got.Institution)
}

func TestWebhook(t *testing.T) {
	post := func(s *testServer, body []byte, sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(body))
		req.Header.Set("Stripe-Signature", sig)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("rejects a bad signature without touching the engine", func(t *testing.T) {
		s := newTestServer(t)
		rec := post(s, []byte(`{}`), "forged")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, s.engine.events)
	})

	t.Run("passes the raw payload through", func(t *testing.T) {
		s := newTestServer(t)
		rec := post(s, []byte(`{"id":"evt_1"}`), "ok")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, s.engine.events, 1)
		assert.JSONEq(t, `{"id":"evt_1"}`, string(s.engine.events[0].Payload))
	})

	for _, outcome := range []model.EventOutcome{model.OutcomeDuplicate, model.OutcomeStale, model.OutcomeIgnored} {
		t.Run("acknowledges "+string(outcome), func(t *testing.T) {
			s := newTestServer(t)
			s.engine.HandleEventFunc = func(ctx context.Context, ev *model.ProviderEvent) (model.EventOutcome, error) {
				return outcome, nil
			}
			rec := post(s, []byte(`{}`), "ok")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), string(outcome))
		})
	}

	t.Run("asks for redelivery on storage failure", func(t *testing.T) {
		s := newTestServer(t)
		s.engine.HandleEventFunc = func(ctx context.Context, ev *model.ProviderEvent) (model.EventOutcome, error) {
			return "", domain.Persistence("record", errors.New("down"))
		}
		rec := post(s, []byte(`{}`), "ok")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("asks for redelivery when a dispute precedes its payment", func(t *testing.T) {
		s := newTestServer(t)
		s.engine.HandleEventFunc = func(ctx context.Context, ev *model.ProviderEvent) (model.EventOutcome, error) {
			return "", domain.ErrDisputeUnmatched
		}
		rec := post(s, []byte(`{}`), "ok")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "dispute_unmatched", decodeError(t, rec).Code)
	})

	t.Run("caps the body at 64KiB", func(t *testing.T) {
		s := newTestServer(t)
		rec := post(s, bytes.Repeat([]byte("a"), maxWebhookBody+1), "ok")
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Empty(t, s.engine.events)
	})
}

func TestRefundAndRenew(t *testing.T) {
	s := newTestServer(t)
	s.engine.RefundFunc = func(ctx context.Context, userID, transactionID, reason string) (*model.Transaction, error) {
		if transactionID == "TXN_OLD" {
			return nil, domain.ErrRefundWindowExpired
		}
		return &model.Transaction{TransactionID: transactionID, UserID: userID, Status: model.TransactionRefunded}, nil
	}
	s.engine.RenewFunc = func(ctx context.Context, userID, membershipID, pm string) (*usecase.RenewResult, error) {
		return &usecase.RenewResult{Membership: &model.Membership{ID: membershipID}, Pending: pm == "pm_slow"}, nil
	}
	tok := s.token(t, "user-1", "")

	rec := s.do(t, http.MethodPost, "/api/v1/transactions/TXN_1/refund", tok, map[string]string{"reason": "duplicate"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"refunded"`)

	rec = s.do(t, http.MethodPost, "/api/v1/transactions/TXN_OLD/refund", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "refund_window_expired", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/v1/memberships/m1/renew", tok, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/memberships/m1/renew", tok, map[string]string{"paymentMethodId": "pm_slow"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestTransactionHistoryQuery(t *testing.T) {
	s := newTestServer(t)
	var gotFilter model.TransactionFilter
	var gotPage model.Page
	s.engine.HistoryFunc = func(ctx context.Context, userID string, f model.TransactionFilter, p model.Page) (*model.TransactionHistory, error) {
		gotFilter, gotPage = f, p
		return &model.TransactionHistory{Page: 2, Limit: 5}, nil
	}
	tok := s.token(t, "user-1", "")

	rec := s.do(t, http.MethodGet, "/api/v1/transactions?status=completed&from=2025-01-01&page=2&limit=5", tok, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.TransactionCompleted, gotFilter.Status)
	require.NotNil(t, gotFilter.From)
	assert.Equal(t, 2025, gotFilter.From.Year())
	assert.Nil(t, gotFilter.To)
	assert.Equal(t, model.Page{Page: 2, Limit: 5}, gotPage)

	rec = s.do(t, http.MethodGet, "/api/v1/transactions?from=yesterday", tok, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	s.engine.TriggerSweepFunc = func(ctx context.Context, actorID string) (int, error) {
		if actorID != "admin-1" {
			return 0, domain.ErrNotAdmin
		}
		return 3, nil
	}
	s.engine.GrantFunc = func(ctx context.Context, userID string, mt model.MembershipType, d model.Duration, approvedBy, reason string) (*model.Membership, error) {
		return &model.Membership{ID: "m9", UserID: userID, Type: mt, Duration: d, Status: model.MembershipActive}, nil
	}
	s.engine.OverrideStatusFunc = func(ctx context.Context, actorID, membershipID string, to model.MembershipStatus, reason string) (*model.Membership, error) {
		return &model.Membership{ID: membershipID, Status: to}, nil
	}
	s.engine.AnalyticsFunc = func(ctx context.Context, actorID string, from, to time.Time) (*model.PaymentAnalytics, error) {
		assert.True(t, to.IsZero())
		return &model.PaymentAnalytics{From: from, Currency: "INR"}, nil
	}
	s.engine.ApproveRefundFunc = func(ctx context.Context, actorID, transactionID, reason string) (*model.Transaction, error) {
		return &model.Transaction{TransactionID: transactionID, Status: model.TransactionRefunded}, nil
	}
	admin := s.token(t, "admin-1", model.RoleAdmin)

	rec := s.do(t, http.MethodPost, "/api/v1/admin/sweep", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"expired":3}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v1/admin/sweep", s.token(t, "user-1", ""), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/memberships/grant", admin,
		map[string]string{"userId": "user-2", "membershipType": "Regular", "duration": "annual", "reason": "board approved"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"membershipType":"Regular"`)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/memberships/m1/status", admin,
		map[string]string{"status": "suspended", "reason": "chargeback"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"suspended"`)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/memberships/m1/status", admin, map[string]string{"status": "gone", "reason": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/admin/transactions/TXN_1/refund", admin, map[string]string{"reason": "goodwill"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/admin/analytics?from=2025-01-01", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUserRateLimit(t *testing.T) {
	s := newTestServer(t)
	s.limiter.n = 1
	s.engine.RefundFunc = func(ctx context.Context, userID, transactionID, reason string) (*model.Transaction, error) {
		return &model.Transaction{}, nil
	}
	tok := s.token(t, "user-1", "")

	first := s.do(t, http.MethodPost, "/api/v1/transactions/TXN_1/refund", tok, nil)
	second := s.do(t, http.MethodPost, "/api/v1/transactions/TXN_1/refund", tok, nil)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	s.limiter.err = errors.New("redis down")
	third := s.do(t, http.MethodPost, "/api/v1/transactions/TXN_1/refund", tok, nil)
	assert.Equal(t, http.StatusOK, third.Code, "limiter errors fail open")
}

func TestRecoverMiddleware(t *testing.T) {
	logger := zerolog.New(io.Discard)
	h := Recover(&logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("kaboom") }))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"kind":"internal"`))
}
