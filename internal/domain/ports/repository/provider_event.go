package repository

import (
	"context"

	"membership-payments/internal/domain/model"
)

// ProviderEventRepository keeps the verified webhook log keyed by provider event id.
type ProviderEventRepository interface {
	// Record stores ev if new. processed is true when the same id was already handled.
	Record(ctx context.Context, tx Tx, ev *model.ProviderEvent) (processed bool, err error)
	MarkProcessed(ctx context.Context, tx Tx, eventID string, outcome model.EventOutcome) error
}
