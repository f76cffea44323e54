package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

const transactionCols = `
id, transaction_id, user_id, membership_id, payment_intent_ref, amount, currency, status, purpose,
payment_method, gateway_response, transaction_date, membership_type, membership_duration, failure_reason,
billing_details, refund_ref, refund_amount, refund_date, refund_reason, refund_status, updated_at`

func (r *transactionRepo) Create(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	const q = `
INSERT INTO transactions (` + transactionCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22);`

	billing, err := jsonArg(t.Billing)
	if err != nil {
		return fmt.Errorf("%w: billing details: %v", domain.ErrInvalidArgument, err)
	}
	var (
		refundRef, refundReason, refundStatus *string
		refundAmount                          *int64
		refundDate                            *time.Time
	)
	if rd := t.Refund; rd != nil {
		st := string(rd.RefundStatus)
		refundRef, refundReason, refundStatus = &rd.RefundRef, &rd.Reason, &st
		refundAmount, refundDate = &rd.RefundAmount, &rd.RefundDate
	}
	_, err = execSQL(ctx, r.pool, tx, q,
		t.ID, t.TransactionID, t.UserID, t.MembershipRef, nullable(t.PaymentIntentRef), t.Amount, t.Currency,
		string(t.Status), string(t.Purpose), string(t.PaymentMethod), rawArg(t.GatewayResponse), t.TransactionDate,
		string(t.MembershipType), string(t.MembershipDuration), t.FailureReason, billing,
		refundRef, refundAmount, refundDate, refundReason, refundStatus, t.UpdatedAt)
	if err != nil {
		switch code, _ := pgCode(err); code {
		case pgUniqueViolation:
			// transaction_id and payment_intent_ref both identify one payment
			return domain.ErrIntentAlreadyApplied
		case pgForeignKeyViolated:
			return domain.ErrNotFound
		}
		return domain.Persistence("create transaction", err)
	}
	return nil
}

func (r *transactionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Transaction, error) {
	return r.queryOne(ctx, tx, `SELECT `+transactionCols+` FROM transactions WHERE id=$1;`, id)
}

func (r *transactionRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.Transaction, error) {
	return r.queryOne(ctx, tx, `SELECT `+transactionCols+` FROM transactions WHERE transaction_id=$1;`, transactionID)
}

func (r *transactionRepo) FindByIntentRef(ctx context.Context, tx repository.Tx, intentRef string) (*model.Transaction, error) {
	return r.queryOne(ctx, tx, `SELECT `+transactionCols+` FROM transactions WHERE payment_intent_ref=$1;`, intentRef)
}

func (r *transactionRepo) Promote(ctx context.Context, tx repository.Tx, id string, from, to model.TransactionStatus, upd model.TransactionUpdate) (bool, error) {
	const q = `
UPDATE transactions
   SET status=$3,
       failure_reason=COALESCE($4, failure_reason),
       gateway_response=COALESCE($5::jsonb, gateway_response),
       membership_id=COALESCE($6, membership_id),
       updated_at=now()
 WHERE id=$1 AND status=$2;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(from), string(to),
		upd.FailureReason, rawArg(upd.GatewayResponse), upd.MembershipRef)
	if err != nil {
		return false, domain.Persistence("promote transaction", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *transactionRepo) SetRefund(ctx context.Context, tx repository.Tx, id string, rd model.RefundDetails) (bool, error) {
	const q = `
UPDATE transactions
   SET status='refunded', refund_ref=$2, refund_amount=$3, refund_date=$4, refund_reason=$5, refund_status=$6,
       updated_at=now()
 WHERE id=$1 AND status='completed' AND refund_ref IS NULL;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, rd.RefundRef, rd.RefundAmount, rd.RefundDate, rd.Reason, string(rd.RefundStatus))
	if err != nil {
		return false, domain.Persistence("set refund", err)
	}
	return tag.RowsAffected() == 1, nil
}

// userFilter renders the WHERE clause shared by ListByUser's page and count queries.
func userFilter(userID string, f model.TransactionFilter) (string, []interface{}) {
	conds := []string{"user_id=$1"}
	args := []interface{}{userID}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status=$%d", string(f.Status))
	}
	if f.Purpose != "" {
		add("purpose=$%d", string(f.Purpose))
	}
	if f.From != nil {
		add("transaction_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("transaction_date <= $%d", *f.To)
	}
	return strings.Join(conds, " AND "), args
}

func (r *transactionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, f model.TransactionFilter, p model.Page) ([]*model.Transaction, int, error) {
	p = p.Normalize()
	where, args := userFilter(userID, f)

	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM transactions WHERE `+where+`;`, args...)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := row.Scan(&total); err != nil {
		return nil, 0, domain.Persistence("count transactions", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	q := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s ORDER BY transaction_date DESC, id LIMIT $%d OFFSET $%d;`,
		transactionCols, where, len(args)+1, len(args)+2)
	items, err := r.queryMany(ctx, tx, q, append(args, p.Limit, p.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *transactionRepo) StatsByUser(ctx context.Context, tx repository.Tx, userID string) ([]model.StatusStat, error) {
	const q = `
SELECT status, COUNT(*), COALESCE(SUM(amount), 0)
  FROM transactions
 WHERE user_id=$1
 GROUP BY status
 ORDER BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, domain.Persistence("transaction stats", err)
	}
	defer rows.Close()

	var out []model.StatusStat
	for rows.Next() {
		var (
			s      model.StatusStat
			status string
		)
		if err := rows.Scan(&status, &s.Count, &s.Total); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		s.Status = model.TransactionStatus(status)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *transactionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	const q = `
SELECT ` + transactionCols + `
  FROM transactions
 WHERE status='pending' AND transaction_date < $1 AND payment_intent_ref IS NOT NULL
 ORDER BY transaction_date ASC
 LIMIT $2;`
	return r.queryMany(ctx, tx, q, olderThan, limit)
}

func (r *transactionRepo) Analytics(ctx context.Context, tx repository.Tx, from, to time.Time) (*model.PaymentAnalytics, error) {
	a := &model.PaymentAnalytics{From: from, To: to}

	const totals = `
SELECT COUNT(*), COALESCE(SUM(amount), 0), COALESCE(MAX(currency), '')
  FROM transactions
 WHERE status='completed' AND transaction_date BETWEEN $1 AND $2;`
	row, err := pickRow(ctx, r.pool, tx, totals, from, to)
	if err != nil {
		return nil, err
	}
	if err := row.Scan(&a.TotalCount, &a.TotalRevenue, &a.Currency); err != nil {
		return nil, domain.Persistence("analytics totals", err)
	}

	buckets := []struct {
		expr string
		dst  *[]model.RevenueBucket
	}{
		{"membership_type", &a.ByType},
		{"to_char(date_trunc('month', transaction_date AT TIME ZONE 'UTC'), 'YYYY-MM')", &a.ByMonth},
		{"payment_method", &a.ByPaymentMethod},
	}
	for _, b := range buckets {
		out, err := r.revenueBy(ctx, tx, b.expr, from, to)
		if err != nil {
			return nil, err
		}
		*b.dst = out
	}
	return a, nil
}

func (r *transactionRepo) revenueBy(ctx context.Context, tx repository.Tx, expr string, from, to time.Time) ([]model.RevenueBucket, error) {
	q := `
SELECT ` + expr + ` AS k, COUNT(*), COALESCE(SUM(amount), 0)
  FROM transactions
 WHERE status='completed' AND transaction_date BETWEEN $1 AND $2
 GROUP BY k
 ORDER BY k;`
	rows, err := queryRows(ctx, r.pool, tx, q, from, to)
	if err != nil {
		return nil, domain.Persistence("analytics buckets", err)
	}
	defer rows.Close()

	out := []model.RevenueBucket{}
	for rows.Next() {
		var b model.RevenueBucket
		if err := rows.Scan(&b.Key, &b.Count, &b.Revenue); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *transactionRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	if _, err := execSQL(ctx, r.pool, tx, `DELETE FROM transactions WHERE id=$1;`, id); err != nil {
		return domain.Persistence("delete transaction", err)
	}
	return nil
}

func (r *transactionRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Transaction, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	t, err := scanTransaction(row)
	if err != nil {
		return nil, notFound(err, domain.ErrNotFound)
	}
	return t, nil
}

func (r *transactionRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Transaction, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, domain.Persistence("query transactions", err)
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var (
		t                                    model.Transaction
		intentRef                            *string
		status, purpose, method, typ, dur    string
		gateway, billing                     []byte
		refundRef, refundReason, refundState *string
		refundAmount                         *int64
		refundDate                           *time.Time
	)
	err := row.Scan(&t.ID, &t.TransactionID, &t.UserID, &t.MembershipRef, &intentRef, &t.Amount, &t.Currency,
		&status, &purpose, &method, &gateway, &t.TransactionDate, &typ, &dur, &t.FailureReason,
		&billing, &refundRef, &refundAmount, &refundDate, &refundReason, &refundState, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if intentRef != nil {
		t.PaymentIntentRef = *intentRef
	}
	t.Status = model.TransactionStatus(status)
	t.Purpose = model.TransactionPurpose(purpose)
	t.PaymentMethod = model.PaymentMethod(method)
	t.MembershipType = model.MembershipType(typ)
	t.MembershipDuration = model.Duration(dur)
	t.TransactionDate = t.TransactionDate.UTC()
	if len(gateway) > 0 {
		t.GatewayResponse = gateway
	}
	if len(billing) > 0 {
		var d model.UserDetails
		if err := json.Unmarshal(billing, &d); err != nil {
			return nil, err
		}
		t.Billing = &d
	}
	if refundRef != nil {
		rd := &model.RefundDetails{RefundRef: *refundRef}
		if refundAmount != nil {
			rd.RefundAmount = *refundAmount
		}
		if refundDate != nil {
			rd.RefundDate = refundDate.UTC()
		}
		if refundReason != nil {
			rd.Reason = *refundReason
		}
		if refundState != nil {
			rd.RefundStatus = model.RefundStatus(*refundState)
		}
		t.Refund = rd
	}
	return &t, nil
}

// rawArg passes a JSON document as text, or NULL when empty.
func rawArg(b json.RawMessage) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func jsonArg(v *model.UserDetails) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
