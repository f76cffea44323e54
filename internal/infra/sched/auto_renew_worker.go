package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"membership-payments/internal/usecase"
)

// AutoRenewWorker charges stored payment methods for memberships close to expiry.
type AutoRenewWorker struct {
	interval time.Duration
	uc       usecase.MembershipUseCase
	locker   Locker
	log      *zerolog.Logger
}

func NewAutoRenewWorker(interval time.Duration, uc usecase.MembershipUseCase, locker Locker, logger *zerolog.Logger) *AutoRenewWorker {
	l := logger.With().Str("component", "AutoRenewWorker").Logger()
	return &AutoRenewWorker{interval: interval, uc: uc, locker: locker, log: &l}
}

func (w *AutoRenewWorker) Run(ctx context.Context) error {
	return tickLoop(ctx, w.interval, w.log, w.tick)
}

func (w *AutoRenewWorker) tick(ctx context.Context) {
	// a renewal charge must never run twice in parallel; hold the lock for the whole interval
	withLock(ctx, w.locker, "sched:auto_renew", w.interval, w.log, func(ctx context.Context) {
		outcomes, err := w.uc.ProcessAutoRenewals(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("auto renewal pass failed")
			return
		}
		var renewed, pending, failed int
		for _, o := range outcomes {
			switch {
			case o.Err != nil:
				failed++
				w.log.Warn().Err(o.Err).Str("membership_id", o.MembershipID).Str("user_id", o.UserID).Msg("auto renewal failed")
			case o.Pending:
				pending++
			default:
				renewed++
			}
		}
		if len(outcomes) > 0 {
			w.log.Info().Int("renewed", renewed).Int("pending", pending).Int("failed", failed).Msg("auto renewal pass done")
		}
	})
}
