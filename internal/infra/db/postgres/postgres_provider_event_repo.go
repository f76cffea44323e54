package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/repository"
)

var _ repository.ProviderEventRepository = (*providerEventRepo)(nil)

type providerEventRepo struct {
	pool *pgxpool.Pool
}

func NewProviderEventRepo(pool *pgxpool.Pool) *providerEventRepo {
	return &providerEventRepo{pool: pool}
}

// Record inserts the event once; redeliveries only report whether the
// first delivery finished processing.
func (r *providerEventRepo) Record(ctx context.Context, tx repository.Tx, ev *model.ProviderEvent) (bool, error) {
	const ins = `
INSERT INTO provider_events (event_id, event_type, raw_type, intent_ref, payload, received_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (event_id) DO NOTHING;`
	received := ev.ReceivedAt
	if received.IsZero() {
		received = time.Now().UTC()
	}
	if _, err := execSQL(ctx, r.pool, tx, ins, ev.ID, string(ev.Type), ev.RawType, ev.IntentRef, rawArg(ev.Payload), received); err != nil {
		return false, domain.Persistence("record event", err)
	}

	row, err := pickRow(ctx, r.pool, tx, `SELECT processed_at IS NOT NULL FROM provider_events WHERE event_id=$1;`, ev.ID)
	if err != nil {
		return false, err
	}
	var processed bool
	if err := row.Scan(&processed); err != nil {
		return false, domain.Persistence("read event", err)
	}
	return processed, nil
}

func (r *providerEventRepo) MarkProcessed(ctx context.Context, tx repository.Tx, eventID string, outcome model.EventOutcome) error {
	const q = `UPDATE provider_events SET processed_at=now(), outcome=$2 WHERE event_id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, eventID, string(outcome))
	if err != nil {
		return domain.Persistence("mark event processed", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
