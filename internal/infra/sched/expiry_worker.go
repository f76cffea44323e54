package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"membership-payments/internal/usecase"
)

// ExpiryWorker periodically moves overdue annual memberships to expired.
type ExpiryWorker struct {
	interval time.Duration
	uc       usecase.MembershipUseCase
	locker   Locker
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, uc usecase.MembershipUseCase, locker Locker, logger *zerolog.Logger) *ExpiryWorker {
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{interval: interval, uc: uc, locker: locker, log: &l}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	return tickLoop(ctx, w.interval, w.log, w.tick)
}

func (w *ExpiryWorker) tick(ctx context.Context) {
	withLock(ctx, w.locker, "sched:expiry", w.interval, w.log, func(ctx context.Context) {
		n, err := w.uc.SweepExpirations(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("expiry sweep failed")
		}
		if n > 0 {
			w.log.Info().Int("count", n).Msg("memberships expired")
		}
	})
}
