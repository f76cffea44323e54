package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/repository"
	"membership-payments/internal/infra/metrics"
)

var _ repository.StatusCache = (*StatusCache)(nil)

const statusCacheName = "membership_status"

// StatusCache keeps GetMembershipStatus answers per user. Every mutation for
// the user invalidates the key, so the TTL only bounds stale reads after a
// missed invalidation.
type StatusCache struct {
	client RedisClient
	ttl    time.Duration
	log    *zerolog.Logger
}

func NewStatusCache(client RedisClient, ttl time.Duration, logger *zerolog.Logger) *StatusCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	l := logger.With().Str("component", "StatusCache").Logger()
	return &StatusCache{client: client, ttl: ttl, log: &l}
}

func statusKey(userID string) string { return "membership:status:" + userID }

func (c *StatusCache) Get(ctx context.Context, userID string) (*model.MembershipStatusView, bool) {
	val, err := c.client.Get(ctx, statusKey(userID))
	if err != nil {
		if !IsNil(err) {
			c.log.Warn().Err(err).Msg("status cache read failed")
		}
		metrics.IncCacheRequest(statusCacheName, "miss")
		return nil, false
	}
	var v model.MembershipStatusView
	if err := json.Unmarshal([]byte(val), &v); err != nil {
		metrics.IncCacheRequest(statusCacheName, "miss")
		return nil, false
	}
	metrics.IncCacheRequest(statusCacheName, "hit")
	return &v, true
}

func (c *StatusCache) Set(ctx context.Context, userID string, v *model.MembershipStatusView) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, statusKey(userID), b, c.ttl); err != nil {
		c.log.Warn().Err(err).Msg("status cache write failed")
	}
}

func (c *StatusCache) Invalidate(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, statusKey(userID)); err != nil {
		c.log.Warn().Err(err).Str("user_id", userID).Msg("status cache invalidate failed")
	}
}
