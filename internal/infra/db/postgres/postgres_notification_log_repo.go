package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/ports/repository"
)

var _ repository.NotificationLogRepository = (*notificationLogRepo)(nil)

type notificationLogRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationLogRepo(pool *pgxpool.Pool) repository.NotificationLogRepository {
	return &notificationLogRepo{pool: pool}
}

// Save leans on the UNIQUE (membership_id, kind, expires_at) constraint;
// a renewal moves expires_at, so the next cycle gets its own reminder.
func (r *notificationLogRepo) Save(ctx context.Context, tx repository.Tx, membershipID, userID, kind string, expiresAt time.Time) (bool, error) {
	const q = `
INSERT INTO notification_log (id, membership_id, user_id, kind, expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT ON CONSTRAINT notification_log_once DO NOTHING;`

	tag, err := execSQL(ctx, r.pool, tx, q, uuid.NewString(), membershipID, userID, kind, expiresAt)
	if err != nil {
		return false, domain.Persistence("save notification log", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *notificationLogRepo) Exists(ctx context.Context, tx repository.Tx, membershipID, kind string, expiresAt time.Time) (bool, error) {
	// SELECT EXISTS(...) stops on the first match.
	const q = `
SELECT EXISTS(
    SELECT 1 FROM notification_log
    WHERE membership_id = $1 AND kind = $2 AND expires_at = $3
)`
	row, err := pickRow(ctx, r.pool, tx, q, membershipID, kind, expiresAt)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}
