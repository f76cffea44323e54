package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"membership-payments/internal/usecase"
)

// PaymentReconciler re-reads stale pending intents from the provider. It
// covers lost webhooks and processes that died between charge and write.
type PaymentReconciler struct {
	interval   time.Duration
	staleAfter time.Duration
	uc         usecase.MembershipUseCase
	locker     Locker
	log        *zerolog.Logger
}

func NewPaymentReconciler(interval, staleAfter time.Duration, uc usecase.MembershipUseCase, locker Locker, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{interval: interval, staleAfter: staleAfter, uc: uc, locker: locker, log: &l}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	return tickLoop(ctx, w.interval, w.log, w.tick)
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	withLock(ctx, w.locker, "sched:reconcile", w.interval, w.log, func(ctx context.Context) {
		n, err := w.uc.ReconcilePending(ctx, w.staleAfter)
		if err != nil {
			w.log.Error().Err(err).Msg("reconcile pending failed")
		}
		if n > 0 {
			w.log.Info().Int("count", n).Msg("pending payments reconciled")
		}
	})
}
