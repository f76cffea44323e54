package sched

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"membership-payments/internal/infra/metrics"
)

// PoolStatter is satisfied by *pgxpool.Pool.
type PoolStatter interface {
	Stat() *pgxpool.Stat
}

// PoolStatsReporter publishes connection pool gauges.
type PoolStatsReporter struct {
	interval time.Duration
	pool     PoolStatter
	log      *zerolog.Logger
}

func NewPoolStatsReporter(interval time.Duration, pool PoolStatter, logger *zerolog.Logger) *PoolStatsReporter {
	l := logger.With().Str("component", "PoolStatsReporter").Logger()
	return &PoolStatsReporter{interval: interval, pool: pool, log: &l}
}

func (r *PoolStatsReporter) Run(ctx context.Context) error {
	return tickLoop(ctx, r.interval, r.log, func(context.Context) {
		s := r.pool.Stat()
		metrics.SetDBPoolStats(s.TotalConns(), s.IdleConns(), s.AcquiredConns())
	})
}
