package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/repository"
)

// Ensure membershipRepo implements repository.MembershipRepository
var _ repository.MembershipRepository = (*membershipRepo)(nil)

type membershipRepo struct {
	pool *pgxpool.Pool
}

func NewMembershipRepo(pool *pgxpool.Pool) *membershipRepo {
	return &membershipRepo{pool: pool}
}

const membershipCols = `
id, user_id, membership_type, duration, amount, currency, status, purchase_date, expires_at,
payment_intent_ref, benefits, auto_renew_enabled, auto_renew_method, created_at, updated_at`

// overdue matches active annual memberships whose expiry has passed ($1 = now).
const overdue = `status='active' AND duration='annual' AND membership_type<>'Life' AND expires_at <= $1`

func (r *membershipRepo) Create(ctx context.Context, tx repository.Tx, m *model.Membership) error {
	const q = `
INSERT INTO memberships (` + membershipCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15);`

	benefits := m.Benefits
	if benefits == nil {
		benefits = []string{}
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		m.ID, m.UserID, string(m.Type), string(m.Duration), m.Amount, m.Currency, string(m.Status),
		m.PurchaseDate, m.ExpiresAt, nullable(m.PaymentIntentRef), benefits,
		m.AutoRenewal.Enabled, m.AutoRenewal.PaymentMethodRef, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		switch code, constraint := pgCode(err); {
		case code == pgUniqueViolation && constraint == "memberships_one_active_per_user":
			return domain.ErrActiveMembershipExists
		case code == pgUniqueViolation:
			return domain.ErrAlreadyExists
		case code == pgForeignKeyViolated:
			return domain.ErrUserNotFound
		}
		return domain.Persistence("create membership", err)
	}
	return nil
}

func (r *membershipRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Membership, error) {
	const q = `SELECT ` + membershipCols + ` FROM memberships WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *membershipRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Membership, error) {
	const q = `SELECT ` + membershipCols + ` FROM memberships WHERE user_id=$1 AND status='active' LIMIT 1;`
	return r.queryOne(ctx, tx, q, userID)
}

func (r *membershipRepo) FindLatestByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Membership, error) {
	const q = `
SELECT ` + membershipCols + `
  FROM memberships
 WHERE user_id=$1
 ORDER BY created_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, userID)
}

func (r *membershipRepo) TransitionStatus(ctx context.Context, tx repository.Tx, id string, from, to model.MembershipStatus) (bool, error) {
	const q = `UPDATE memberships SET status=$3, updated_at=now() WHERE id=$1 AND status=$2;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(from), string(to))
	if err != nil {
		switch code, constraint := pgCode(err); {
		case code == pgUniqueViolation && constraint == "memberships_one_active_per_user":
			return false, domain.ErrActiveMembershipExists
		case code == pgInvalidTextRep:
			return false, nil
		}
		return false, domain.Persistence("transition membership", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *membershipRepo) ExtendExpiry(ctx context.Context, tx repository.Tx, id string, current, next time.Time) (bool, error) {
	const q = `
UPDATE memberships SET expires_at=$3, updated_at=now()
 WHERE id=$1 AND status='active' AND expires_at=$2;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, current, next)
	if err != nil {
		return false, domain.Persistence("extend membership", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *membershipRepo) ExpireIfDue(ctx context.Context, tx repository.Tx, id string, now time.Time) (bool, error) {
	const q = `UPDATE memberships SET status='expired', updated_at=now() WHERE ` + overdue + ` AND id=$2;`
	tag, err := execSQL(ctx, r.pool, tx, q, now, id)
	if err != nil {
		return false, domain.Persistence("expire membership", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireDue claims a batch with SKIP LOCKED so concurrent sweepers never
// expire (and notify) the same row twice.
func (r *membershipRepo) ExpireDue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Membership, error) {
	const q = `
UPDATE memberships SET status='expired', updated_at=now()
 WHERE id IN (
    SELECT id FROM memberships
     WHERE ` + overdue + `
     ORDER BY expires_at
     LIMIT $2
     FOR UPDATE SKIP LOCKED
 ) AND status='active'
RETURNING ` + membershipCols + `;`
	return r.queryMany(ctx, tx, q, now, limit)
}

func (r *membershipRepo) ListExpiringBetween(ctx context.Context, tx repository.Tx, from, to time.Time, limit int) ([]*model.Membership, error) {
	const q = `
SELECT ` + membershipCols + `
  FROM memberships
 WHERE status='active' AND duration='annual' AND membership_type<>'Life'
   AND expires_at > $1 AND expires_at <= $2
 ORDER BY expires_at ASC
 LIMIT $3;`
	return r.queryMany(ctx, tx, q, from, to, limit)
}

func (r *membershipRepo) ListAutoRenewDue(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.Membership, error) {
	const q = `
SELECT ` + membershipCols + `
  FROM memberships
 WHERE status='active' AND duration='annual' AND membership_type<>'Life'
   AND auto_renew_enabled AND auto_renew_method<>''
   AND expires_at <= $1
 ORDER BY expires_at ASC
 LIMIT $2;`
	return r.queryMany(ctx, tx, q, before, limit)
}

func (r *membershipRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	if _, err := execSQL(ctx, r.pool, tx, `DELETE FROM memberships WHERE id=$1;`, id); err != nil {
		return domain.Persistence("delete membership", err)
	}
	return nil
}

func (r *membershipRepo) queryOne(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (*model.Membership, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	m, err := scanMembership(row)
	if err != nil {
		return nil, notFound(err, domain.ErrNotFound)
	}
	return m, nil
}

func (r *membershipRepo) queryMany(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Membership, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, domain.Persistence("query memberships", err)
	}
	defer rows.Close()

	var out []*model.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanMembership(row pgx.Row) (*model.Membership, error) {
	var (
		m         model.Membership
		typ, dur  string
		status    string
		intentRef *string
	)
	err := row.Scan(&m.ID, &m.UserID, &typ, &dur, &m.Amount, &m.Currency, &status, &m.PurchaseDate, &m.ExpiresAt,
		&intentRef, &m.Benefits, &m.AutoRenewal.Enabled, &m.AutoRenewal.PaymentMethodRef, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Type = model.MembershipType(typ)
	m.Duration = model.Duration(dur)
	m.Status = model.MembershipStatus(status)
	if intentRef != nil {
		m.PaymentIntentRef = *intentRef
	}
	m.PurchaseDate = m.PurchaseDate.UTC()
	m.ExpiresAt = m.ExpiresAt.UTC()
	return &m, nil
}

// nullable stores an empty string as NULL so unique indexes ignore it.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
