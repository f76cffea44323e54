package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	red "membership-payments/internal/infra/redis"
)

// Locker is satisfied by redis.RedisLocker. A nil Locker means every
// replica runs every tick, which the use cases tolerate.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// tickLoop runs fn once at start and then on every tick until ctx ends.
func tickLoop(ctx context.Context, interval time.Duration, log *zerolog.Logger, fn func(ctx context.Context)) error {
	log.Info().Dur("interval", interval).Msg("worker started")
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker stopped")
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// withLock runs fn only if this replica wins key for ttl.
func withLock(ctx context.Context, l Locker, key string, ttl time.Duration, log *zerolog.Logger, fn func(ctx context.Context)) {
	if l == nil {
		fn(ctx)
		return
	}
	token, err := l.TryLock(ctx, key, ttl)
	if errors.Is(err, red.ErrLockHeld) {
		log.Debug().Str("lock", key).Msg("another replica holds the job lock")
		return
	}
	if err != nil {
		// run anyway: the jobs are idempotent and redis is only a coordination aid
		log.Warn().Err(err).Str("lock", key).Msg("job lock unavailable")
		fn(ctx)
		return
	}
	defer func() {
		if err := l.Unlock(context.Background(), key, token); err != nil {
			log.Warn().Err(err).Str("lock", key).Msg("job unlock failed")
		}
	}()
	fn(ctx)
}
