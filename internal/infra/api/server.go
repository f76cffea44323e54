package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"membership-payments/internal/domain/model"
	"membership-payments/internal/infra/metrics"
	"membership-payments/internal/usecase"
)

// EventParser verifies a webhook payload and turns it into a provider event.
type EventParser interface {
	ParseEvent(payload []byte, signature string) (*model.ProviderEvent, error)
}

type Options struct {
	RequestTimeout time.Duration
	// RateLimit applies to payment and refund endpoints, per IP and per user.
	RateRequests int
	RateWindow   time.Duration
	// SignatureHeader carries the webhook signature.
	SignatureHeader string
}

// Server is the HTTP boundary over the membership use cases.
type Server struct {
	members usecase.MembershipUseCase
	admin   usecase.AdminUseCase
	events  EventParser
	auth    *AuthManager
	limiter UserLimiter
	opts    Options
	log     *zerolog.Logger
}

func NewServer(
	members usecase.MembershipUseCase,
	admin usecase.AdminUseCase,
	events EventParser,
	auth *AuthManager,
	limiter UserLimiter,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.RateRequests <= 0 {
		opts.RateRequests = 20
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	if opts.SignatureHeader == "" {
		opts.SignatureHeader = "Stripe-Signature"
	}
	l := logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		members: members,
		admin:   admin,
		events:  events,
		auth:    auth,
		limiter: limiter,
		opts:    opts,
		log:     &l,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID, RequestLog(s.log), Recover(s.log), Timeout(s.opts.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	limited := func(action string) []func(http.Handler) http.Handler {
		return []func(http.Handler) http.Handler{
			IPRateLimit(s.opts.RateRequests, s.opts.RateWindow),
			s.auth.RequireAuth,
			UserRateLimit(s.limiter, action, s.opts.RateRequests, s.opts.RateWindow, s.log),
		}
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/pricing", s.listPrices)
		r.Get("/pricing/{type}/{duration}", s.getPrice)

		r.Post("/payments/webhook", s.webhook)
		r.With(limited("intent")...).Post("/payments/intents", s.createIntent)
		r.With(limited("confirm")...).Post("/payments/confirm", s.confirmPayment)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireAuth)
			r.Get("/memberships/status", s.membershipStatus)
			r.Post("/memberships/{id}/renew", s.renew)
			r.Get("/transactions", s.transactionHistory)
		})
		r.With(limited("refund")...).Post("/transactions/{id}/refund", s.refund)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.RequireAuth)
			r.Post("/memberships/{id}/status", s.overrideStatus)
			r.Post("/memberships/grant", s.grant)
			r.Post("/transactions/{id}/refund", s.approveRefund)
			r.Get("/analytics", s.analytics)
			r.Post("/sweep", s.sweep)
		})
	})
	return r
}
