// File: internal/usecase/membership_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/adapter"
	"membership-payments/internal/domain/ports/repository"
	"membership-payments/internal/domain/pricing"
	"membership-payments/internal/infra/metrics"
)

// Compile-time checks
var (
	_ MembershipUseCase = (*membershipUC)(nil)
	_ AdminUseCase      = (*membershipUC)(nil)
)

// MembershipUseCase reconciles payments with membership grants.
type MembershipUseCase interface {
	GetPrice(ctx context.Context, t model.MembershipType, d model.Duration) (pricing.Price, error)
	ListPrices(ctx context.Context) []pricing.Price

	// CreateIntent checks clientAmount against the price and opens a provider intent. No records are written.
	CreateIntent(ctx context.Context, userID string, t model.MembershipType, d model.Duration, clientAmount int64) (*IntentHandle, error)
	// ConfirmPayment activates a membership for a succeeded intent.
	ConfirmPayment(ctx context.Context, userID, intentRef string, t model.MembershipType, d model.Duration, details *model.UserDetails) (*ConfirmResult, error)
	// HandleProviderEvent applies a verified webhook event idempotently.
	HandleProviderEvent(ctx context.Context, ev *model.ProviderEvent) (model.EventOutcome, error)
	InitiateRefund(ctx context.Context, userID, transactionID, reason string) (*model.Transaction, error)
	// RenewMembership charges paymentMethodRef (or the stored auto-renew method) and extends expiry by a year.
	RenewMembership(ctx context.Context, userID, membershipID, paymentMethodRef string) (*RenewResult, error)
	GetMembershipStatus(ctx context.Context, userID string) (*model.MembershipStatusView, error)
	GetTransactionHistory(ctx context.Context, userID string, f model.TransactionFilter, p model.Page) (*model.TransactionHistory, error)

	SweepExpirations(ctx context.Context) (int, error)
	ProcessAutoRenewals(ctx context.Context) ([]AutoRenewOutcome, error)
	ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// AdminUseCase holds the audited override paths. Every call checks IsAdmin.
type AdminUseCase interface {
	GrantMembershipManually(ctx context.Context, userID string, t model.MembershipType, d model.Duration, approvedBy, reason string) (*model.Membership, error)
	OverrideMembershipStatus(ctx context.Context, actorID, membershipID string, to model.MembershipStatus, reason string) (*model.Membership, error)
	ApproveRefund(ctx context.Context, actorID, transactionID, reason string) (*model.Transaction, error)
	PaymentAnalytics(ctx context.Context, actorID string, from, to time.Time) (*model.PaymentAnalytics, error)
	TriggerSweep(ctx context.Context, actorID string) (int, error)
}

type IntentHandle struct {
	IntentRef    string `json:"intentRef"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type ConfirmResult struct {
	Membership  *model.Membership  `json:"membership"`
	Transaction *model.Transaction `json:"transaction"`
}

type RenewResult struct {
	Membership  *model.Membership  `json:"membership"`
	Transaction *model.Transaction `json:"transaction"`
	// Pending is set when the provider is still processing the charge; a
	// later payment-succeeded event completes the renewal.
	Pending bool `json:"pending"`
}

type AutoRenewOutcome struct {
	MembershipID string
	UserID       string
	Renewed      bool
	Pending      bool
	Err          error
}

// MembershipDeps are the collaborators of the engine. Cache and Alerter are optional.
type MembershipDeps struct {
	Memberships   repository.MembershipRepository
	Transactions  repository.TransactionRepository
	Events        repository.ProviderEventRepository
	Audit         repository.AuditRepository
	Users         repository.UserRepository
	TxManager     repository.TransactionManager
	Gateway       adapter.PaymentGateway
	Notifications NotificationUseCase
	Alerter       adapter.AdminAlerter
	Cache         repository.StatusCache
	IsAdmin       IsAdminFunc
}

type MembershipOptions struct {
	RefundWindow       time.Duration
	ProviderTimeout    time.Duration
	ExpiringSoonWindow time.Duration
	AutoRenewWindow    time.Duration
	SweepBatch         int
	Now                func() time.Time
}

type membershipUC struct {
	memberships  repository.MembershipRepository
	transactions repository.TransactionRepository
	events       repository.ProviderEventRepository
	audit        repository.AuditRepository
	users        repository.UserRepository
	tm           repository.TransactionManager
	gateway      adapter.PaymentGateway
	notify       NotificationUseCase
	alerter      adapter.AdminAlerter
	cache        repository.StatusCache
	isAdmin      IsAdminFunc

	opts MembershipOptions
	log  *zerolog.Logger
}

func NewMembershipUseCase(deps MembershipDeps, opts MembershipOptions, logger *zerolog.Logger) *membershipUC {
	if opts.RefundWindow <= 0 {
		opts.RefundWindow = 30 * 24 * time.Hour
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 10 * time.Second
	}
	if opts.ExpiringSoonWindow <= 0 {
		opts.ExpiringSoonWindow = 30 * 24 * time.Hour
	}
	if opts.AutoRenewWindow <= 0 {
		opts.AutoRenewWindow = 3 * 24 * time.Hour
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = 500
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if deps.Cache == nil {
		deps.Cache = noopStatusCache{}
	}
	if deps.Alerter == nil {
		deps.Alerter = noopAlerter{}
	}
	if deps.IsAdmin == nil {
		deps.IsAdmin = func(*model.User) bool { return false }
	}
	l := logger.With().Str("component", "MembershipUC").Logger()
	return &membershipUC{
		memberships:  deps.Memberships,
		transactions: deps.Transactions,
		events:       deps.Events,
		audit:        deps.Audit,
		users:        deps.Users,
		tm:           deps.TxManager,
		gateway:      deps.Gateway,
		notify:       deps.Notifications,
		alerter:      deps.Alerter,
		cache:        deps.Cache,
		isAdmin:      deps.IsAdmin,
		opts:         opts,
		log:          &l,
	}
}

func (u *membershipUC) now() time.Time { return u.opts.Now().UTC().Truncate(time.Microsecond) }

func newID() string { return uuid.NewString() }

func (u *membershipUC) GetPrice(ctx context.Context, t model.MembershipType, d model.Duration) (pricing.Price, error) {
	return pricing.Lookup(t, d)
}

func (u *membershipUC) ListPrices(ctx context.Context) []pricing.Price {
	return pricing.All()
}

// callProvider bounds fn with the provider timeout and classifies failures.
func (u *membershipUC) callProvider(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, u.opts.ProviderTimeout)
	defer cancel()

	start := time.Now()
	err := fn(cctx)
	metrics.ObserveProviderCall(op, err == nil, time.Since(start))
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
		u.log.Warn().Str("op", op).Dur("timeout", u.opts.ProviderTimeout).Msg("provider call timed out")
		return domain.Provider(op, context.DeadlineExceeded)
	}
	u.log.Warn().Err(err).Str("op", op).Msg("provider call failed")
	return domain.Provider(op, err)
}

func (u *membershipUC) requireAdmin(ctx context.Context, actorID string) (*model.User, error) {
	if actorID == "" {
		return nil, domain.ErrNotAdmin
	}
	actor, err := u.users.FindByID(ctx, repository.NoTX, actorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotAdmin
		}
		return nil, domain.Persistence("find actor", err)
	}
	if !u.isAdmin(actor) {
		return nil, domain.ErrNotAdmin
	}
	return actor, nil
}

func (u *membershipUC) writeAudit(ctx context.Context, tx repository.Tx, e *model.AuditEntry) error {
	e.ID = uuid.NewString()
	e.CreatedAt = u.now()
	return u.audit.Save(ctx, tx, e)
}

// alert is best-effort: staff alerts never fail the calling operation.
func (u *membershipUC) alert(ctx context.Context, text string) {
	if err := u.alerter.Alert(ctx, text); err != nil {
		u.log.Warn().Err(err).Msg("admin alert failed")
	}
}

func (u *membershipUC) findTransaction(ctx context.Context, tx repository.Tx, ref string) (*model.Transaction, error) {
	if ref == "" {
		return nil, domain.ErrInvalidArgument
	}
	t, err := u.transactions.FindByTransactionID(ctx, tx, ref)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, domain.Persistence("find transaction", err)
	}
	if _, perr := uuid.Parse(ref); perr != nil {
		return nil, domain.ErrTransactionNotFound
	}
	t, err = u.transactions.FindByID(ctx, tx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, domain.Persistence("find transaction", err)
	}
	return t, nil
}

func (u *membershipUC) findMembership(ctx context.Context, tx repository.Tx, id string) (*model.Membership, error) {
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	m, err := u.memberships.FindByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrMembershipNotFound
		}
		return nil, domain.Persistence("find membership", err)
	}
	return m, nil
}

type noopStatusCache struct{}

func (noopStatusCache) Get(context.Context, string) (*model.MembershipStatusView, bool) {
	return nil, false
}
func (noopStatusCache) Set(context.Context, string, *model.MembershipStatusView) {}
func (noopStatusCache) Invalidate(context.Context, string)                       {}

type noopAlerter struct{}

func (noopAlerter) Alert(context.Context, string) error { return nil }
