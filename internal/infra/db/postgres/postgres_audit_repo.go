package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/repository"
)

var _ repository.AuditRepository = (*auditRepo)(nil)

type auditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *auditRepo {
	return &auditRepo{pool: pool}
}

func (r *auditRepo) Save(ctx context.Context, tx repository.Tx, e *model.AuditEntry) error {
	const q = `
INSERT INTO audit_log (id, actor_id, action, target_type, target_id, from_status, to_status, reason, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.ActorID, string(e.Action), e.TargetType, e.TargetID,
		e.FromStatus, e.ToStatus, e.Reason, e.CreatedAt)
	if err != nil {
		return domain.Persistence("save audit entry", err)
	}
	return nil
}

func (r *auditRepo) ListByTarget(ctx context.Context, tx repository.Tx, targetType, targetID string) ([]*model.AuditEntry, error) {
	const q = `
SELECT id, actor_id, action, target_type, target_id, from_status, to_status, reason, created_at
  FROM audit_log
 WHERE target_type=$1 AND target_id=$2
 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, targetType, targetID)
	if err != nil {
		return nil, domain.Persistence("list audit entries", err)
	}
	defer rows.Close()

	var out []*model.AuditEntry
	for rows.Next() {
		var (
			e      model.AuditEntry
			action string
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &action, &e.TargetType, &e.TargetID, &e.FromStatus, &e.ToStatus, &e.Reason, &e.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		e.Action = model.AuditAction(action)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
