package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"membership-payments/internal/usecase"
)

// ReminderWorker sends "expiring soon" notices ahead of annual expiry.
type ReminderWorker struct {
	interval time.Duration
	window   time.Duration
	uc       usecase.NotificationUseCase
	locker   Locker
	log      *zerolog.Logger
}

func NewReminderWorker(interval, window time.Duration, uc usecase.NotificationUseCase, locker Locker, logger *zerolog.Logger) *ReminderWorker {
	l := logger.With().Str("component", "ReminderWorker").Logger()
	return &ReminderWorker{interval: interval, window: window, uc: uc, locker: locker, log: &l}
}

func (w *ReminderWorker) Run(ctx context.Context) error {
	return tickLoop(ctx, w.interval, w.log, w.tick)
}

func (w *ReminderWorker) tick(ctx context.Context) {
	withLock(ctx, w.locker, "sched:reminders", time.Hour, w.log, func(ctx context.Context) {
		sent, err := w.uc.SendExpiryReminders(ctx, w.window)
		if err != nil {
			w.log.Error().Err(err).Msg("expiry reminders failed")
		}
		if sent > 0 {
			w.log.Info().Int("count", sent).Msg("expiry reminders sent")
		}
	})
}
