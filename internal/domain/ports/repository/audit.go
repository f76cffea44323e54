package repository

import (
	"context"

	"membership-payments/internal/domain/model"
)

type AuditRepository interface {
	Save(ctx context.Context, tx Tx, e *model.AuditEntry) error
	ListByTarget(ctx context.Context, tx Tx, targetType, targetID string) ([]*model.AuditEntry, error)
}
