//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/adapter"
	"membership-payments/internal/domain/ports/repository"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// =============================
// Repositories
// =============================

// ---- In-memory MembershipRepository ----

// MockMembershipRepo honors the one-active-per-user rule and the conditional
// writes of the real store.
type MockMembershipRepo struct {
	mu    sync.Mutex
	items map[string]*model.Membership

	CreateErr error
	DeleteErr error
}

var _ repository.MembershipRepository = (*MockMembershipRepo)(nil)

func NewMockMembershipRepo() *MockMembershipRepo {
	return &MockMembershipRepo{items: make(map[string]*model.Membership)}
}

func (r *MockMembershipRepo) hasOtherActive(userID, exceptID string) bool {
	for _, m := range r.items {
		if m.UserID == userID && m.ID != exceptID && m.Status == model.MembershipActive {
			return true
		}
	}
	return false
}

func (r *MockMembershipRepo) Create(ctx context.Context, tx repository.Tx, m *model.Membership) error {
	if r.CreateErr != nil {
		return r.CreateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[m.ID]; ok {
		return domain.ErrAlreadyExists
	}
	if m.Status == model.MembershipActive && r.hasOtherActive(m.UserID, m.ID) {
		return domain.ErrActiveMembershipExists
	}
	cp := *m
	r.items[m.ID] = &cp
	return nil
}

func (r *MockMembershipRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *MockMembershipRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.items {
		if m.UserID == userID && m.Status == model.MembershipActive {
			cp := *m
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockMembershipRepo) FindLatestByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.Membership
	for _, m := range r.items {
		if m.UserID == userID && (latest == nil || m.CreatedAt.After(latest.CreatedAt)) {
			latest = m
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *MockMembershipRepo) TransitionStatus(ctx context.Context, tx repository.Tx, id string, from, to model.MembershipStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok || m.Status != from {
		return false, nil
	}
	if to == model.MembershipActive && r.hasOtherActive(m.UserID, m.ID) {
		return false, domain.ErrActiveMembershipExists
	}
	m.Status = to
	return true, nil
}

func (r *MockMembershipRepo) ExtendExpiry(ctx context.Context, tx repository.Tx, id string, current, next time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok || m.Status != model.MembershipActive || !m.ExpiresAt.Equal(current) {
		return false, nil
	}
	m.ExpiresAt = next
	return true, nil
}

func (r *MockMembershipRepo) ExpireIfDue(ctx context.Context, tx repository.Tx, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[id]
	if !ok || !m.IsOverdue(now) {
		return false, nil
	}
	m.Status = model.MembershipExpired
	return true, nil
}

func (r *MockMembershipRepo) ExpireDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Membership
	for _, m := range r.items {
		if len(out) >= limit {
			break
		}
		if m.IsOverdue(now) {
			m.Status = model.MembershipExpired
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockMembershipRepo) ListExpiringBetween(ctx context.Context, tx repository.Tx, from, to time.Time, limit int) ([]*model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Membership
	for _, m := range r.items {
		if m.Status == model.MembershipActive && !m.IsLifetime() && m.ExpiresAt.After(from) && !m.ExpiresAt.After(to) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockMembershipRepo) ListAutoRenewDue(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Membership
	for _, m := range r.items {
		if m.Status == model.MembershipActive && !m.IsLifetime() && m.AutoRenewal.Enabled &&
			m.AutoRenewal.PaymentMethodRef != "" && !m.ExpiresAt.After(before) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockMembershipRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	if r.DeleteErr != nil {
		return r.DeleteErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *MockMembershipRepo) put(m *model.Membership) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.items[m.ID] = &cp
}

func (r *MockMembershipRepo) all() []*model.Membership {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Membership, 0, len(r.items))
	for _, m := range r.items {
		cp := *m
		out = append(out, &cp)
	}
	return out
}

// ---- In-memory TransactionRepository ----

type MockTransactionRepo struct {
	mu    sync.Mutex
	items map[string]*model.Transaction

	CreateErr error
	ListErr   error
}

var _ repository.TransactionRepository = (*MockTransactionRepo)(nil)

func NewMockTransactionRepo() *MockTransactionRepo {
	return &MockTransactionRepo{items: make(map[string]*model.Transaction)}
}

func (r *MockTransactionRepo) Create(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	if r.CreateErr != nil {
		return r.CreateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.items {
		if e.TransactionID == t.TransactionID || (t.PaymentIntentRef != "" && e.PaymentIntentRef == t.PaymentIntentRef) {
			return domain.ErrIntentAlreadyApplied
		}
	}
	cp := *t
	r.items[t.ID] = &cp
	return nil
}

func (r *MockTransactionRepo) find(match func(*model.Transaction) bool) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.items {
		if match(t) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockTransactionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Transaction, error) {
	return r.find(func(t *model.Transaction) bool { return t.ID == id })
}

func (r *MockTransactionRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.Transaction, error) {
	return r.find(func(t *model.Transaction) bool { return t.TransactionID == transactionID })
}

func (r *MockTransactionRepo) FindByIntentRef(ctx context.Context, tx repository.Tx, intentRef string) (*model.Transaction, error) {
	return r.find(func(t *model.Transaction) bool { return t.PaymentIntentRef == intentRef })
}

func (r *MockTransactionRepo) Promote(ctx context.Context, tx repository.Tx, id string, from, to model.TransactionStatus, upd model.TransactionUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.items[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	if upd.FailureReason != nil {
		t.FailureReason = upd.FailureReason
	}
	if upd.MembershipRef != nil {
		t.MembershipRef = upd.MembershipRef
	}
	if upd.GatewayResponse != nil {
		t.GatewayResponse = upd.GatewayResponse
	}
	return true, nil
}

func (r *MockTransactionRepo) SetRefund(ctx context.Context, tx repository.Tx, id string, refund model.RefundDetails) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.items[id]
	if !ok || t.Status != model.TransactionCompleted || t.Refund != nil {
		return false, nil
	}
	rd := refund
	t.Refund = &rd
	t.Status = model.TransactionRefunded
	return true, nil
}

func (r *MockTransactionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, f model.TransactionFilter, p model.Page) ([]*model.Transaction, int, error) {
	if r.ListErr != nil {
		return nil, 0, r.ListErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*model.Transaction
	for _, t := range r.items {
		if t.UserID != userID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Purpose != "" && t.Purpose != f.Purpose {
			continue
		}
		if f.From != nil && t.TransactionDate.Before(*f.From) {
			continue
		}
		if f.To != nil && t.TransactionDate.After(*f.To) {
			continue
		}
		cp := *t
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].TransactionDate.After(all[j].TransactionDate) })
	total := len(all)
	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (r *MockTransactionRepo) StatsByUser(ctx context.Context, tx repository.Tx, userID string) ([]model.StatusStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	by := map[model.TransactionStatus]*model.StatusStat{}
	for _, t := range r.items {
		if t.UserID != userID {
			continue
		}
		s, ok := by[t.Status]
		if !ok {
			s = &model.StatusStat{Status: t.Status}
			by[t.Status] = s
		}
		s.Count++
		s.Total += t.Amount
	}
	out := make([]model.StatusStat, 0, len(by))
	for _, s := range by {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (r *MockTransactionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Transaction
	for _, t := range r.items {
		if t.Status == model.TransactionPending && t.TransactionDate.Before(olderThan) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockTransactionRepo) Analytics(ctx context.Context, tx repository.Tx, from, to time.Time) (*model.PaymentAnalytics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := &model.PaymentAnalytics{}
	byType := map[string]*model.RevenueBucket{}
	for _, t := range r.items {
		if t.Status != model.TransactionCompleted || t.TransactionDate.Before(from) || t.TransactionDate.After(to) {
			continue
		}
		a.TotalCount++
		a.TotalRevenue += t.Amount
		a.Currency = t.Currency
		b, ok := byType[string(t.MembershipType)]
		if !ok {
			b = &model.RevenueBucket{Key: string(t.MembershipType)}
			byType[b.Key] = b
		}
		b.Count++
		b.Revenue += t.Amount
	}
	for _, b := range byType {
		a.ByType = append(a.ByType, *b)
	}
	return a, nil
}

func (r *MockTransactionRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *MockTransactionRepo) put(t *model.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.items[t.ID] = &cp
}

func (r *MockTransactionRepo) all() []*model.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Transaction, 0, len(r.items))
	for _, t := range r.items {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

// ---- In-memory ProviderEventRepository ----

type MockEventRepo struct {
	mu       sync.Mutex
	outcomes map[string]model.EventOutcome
	seen     map[string]bool
}

var _ repository.ProviderEventRepository = (*MockEventRepo)(nil)

func NewMockEventRepo() *MockEventRepo {
	return &MockEventRepo{outcomes: map[string]model.EventOutcome{}, seen: map[string]bool{}}
}

func (r *MockEventRepo) Record(ctx context.Context, tx repository.Tx, ev *model.ProviderEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[ev.ID] = true
	_, processed := r.outcomes[ev.ID]
	return processed, nil
}

func (r *MockEventRepo) MarkProcessed(ctx context.Context, tx repository.Tx, eventID string, outcome model.EventOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[eventID] = outcome
	return nil
}

func (r *MockEventRepo) outcome(id string) (model.EventOutcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.outcomes[id]
	return o, ok
}

// ---- In-memory AuditRepository ----

type MockAuditRepo struct {
	mu      sync.Mutex
	entries []*model.AuditEntry
}

var _ repository.AuditRepository = (*MockAuditRepo)(nil)

func (r *MockAuditRepo) Save(ctx context.Context, tx repository.Tx, e *model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *MockAuditRepo) ListByTarget(ctx context.Context, tx repository.Tx, targetType, targetID string) ([]*model.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.AuditEntry
	for _, e := range r.entries {
		if e.TargetType == targetType && e.TargetID == targetID {
			out = append(out, e)
		}
	}
	return out, nil
}

// ---- In-memory UserRepository ----

type MockUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo(users ...*model.User) *MockUserRepo {
	r := &MockUserRepo{users: map[string]*model.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MockUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ---- In-memory NotificationLogRepository ----

type MockNotificationLogRepo struct {
	mu   sync.Mutex
	sent map[string]bool
}

var _ repository.NotificationLogRepository = (*MockNotificationLogRepo)(nil)

func NewMockNotificationLogRepo() *MockNotificationLogRepo {
	return &MockNotificationLogRepo{sent: map[string]bool{}}
}

func notifKey(membershipID, kind string, expiresAt time.Time) string {
	return membershipID + "|" + kind + "|" + expiresAt.UTC().Format(time.RFC3339)
}

func (r *MockNotificationLogRepo) Save(ctx context.Context, tx repository.Tx, membershipID, userID, kind string, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := notifKey(membershipID, kind, expiresAt)
	if r.sent[k] {
		return false, nil
	}
	r.sent[k] = true
	return true, nil
}

func (r *MockNotificationLogRepo) Exists(ctx context.Context, tx repository.Tx, membershipID, kind string, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[notifKey(membershipID, kind, expiresAt)], nil
}

// ---- Transaction manager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockPaymentGateway struct {
	mu      sync.Mutex
	intents map[string]*adapter.Intent
	refunds []string

	CreateIntentFunc func(ctx context.Context, amount int64, currency string, metadata map[string]string) (*adapter.Intent, error)
	GetIntentFunc    func(ctx context.Context, ref string) (*adapter.Intent, error)
	ChargeSavedFunc  func(ctx context.Context, amount int64, currency, pm string, metadata map[string]string, key string) (*adapter.Intent, error)
	CreateRefundFunc func(ctx context.Context, ref string, amount int64, reason, key string) (*adapter.RefundResult, error)
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{intents: map[string]*adapter.Intent{}}
}

func (g *MockPaymentGateway) Name() string { return "stripe" }

// setIntent registers the provider's view of an intent.
func (g *MockPaymentGateway) setIntent(in *adapter.Intent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[in.Ref] = in
}

func (g *MockPaymentGateway) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*adapter.Intent, error) {
	if g.CreateIntentFunc != nil {
		return g.CreateIntentFunc(ctx, amount, currency, metadata)
	}
	in := &adapter.Intent{
		Ref: "pi_test_" + metadata[model.MetaUserID], ClientSecret: "secret", Status: adapter.IntentRequiresPayment,
		Amount: amount, Currency: currency, Metadata: metadata,
	}
	g.setIntent(in)
	return in, nil
}

func (g *MockPaymentGateway) GetIntent(ctx context.Context, ref string) (*adapter.Intent, error) {
	if g.GetIntentFunc != nil {
		return g.GetIntentFunc(ctx, ref)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[ref]
	if !ok {
		return nil, domain.ErrProviderRejected
	}
	cp := *in
	return &cp, nil
}

func (g *MockPaymentGateway) ChargeSaved(ctx context.Context, amount int64, currency, pm string, metadata map[string]string, key string) (*adapter.Intent, error) {
	if g.ChargeSavedFunc != nil {
		return g.ChargeSavedFunc(ctx, amount, currency, pm, metadata, key)
	}
	return &adapter.Intent{
		Ref: "pi_renew_" + key, Status: adapter.IntentSucceeded, Amount: amount, AmountPaid: amount,
		Currency: currency, PaymentMethod: pm, Metadata: metadata,
	}, nil
}

func (g *MockPaymentGateway) CreateRefund(ctx context.Context, ref string, amount int64, reason, key string) (*adapter.RefundResult, error) {
	g.mu.Lock()
	g.refunds = append(g.refunds, key)
	g.mu.Unlock()
	if g.CreateRefundFunc != nil {
		return g.CreateRefundFunc(ctx, ref, amount, reason, key)
	}
	return &adapter.RefundResult{Ref: "re_" + ref, Status: "succeeded", Amount: amount}, nil
}

func (g *MockPaymentGateway) refundCalls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.refunds...)
}

// ---- Mock Notifier ----

type sentNotification struct {
	To       adapter.Recipient
	Template string
	Data     map[string]any
}

type MockNotifier struct {
	mu   sync.Mutex
	Sent []sentNotification

	SendErr error
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (n *MockNotifier) Send(ctx context.Context, to adapter.Recipient, template string, data map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.SendErr != nil {
		return n.SendErr
	}
	n.Sent = append(n.Sent, sentNotification{To: to, Template: template, Data: data})
	return nil
}

func (n *MockNotifier) templates() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.Sent))
	for _, s := range n.Sent {
		out = append(out, s.Template)
	}
	return out
}

// ---- Mock AdminAlerter ----

type MockAlerter struct {
	mu     sync.Mutex
	Alerts []string
}

var _ adapter.AdminAlerter = (*MockAlerter)(nil)

func (a *MockAlerter) Alert(ctx context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Alerts = append(a.Alerts, text)
	return nil
}

func (a *MockAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Alerts)
}

var errBoom = errors.New("boom")
