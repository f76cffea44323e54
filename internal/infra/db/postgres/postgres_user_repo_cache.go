package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/repository"
	"membership-payments/internal/infra/metrics"
	red "membership-payments/internal/infra/redis"
)

var _ repository.UserRepository = (*userRepoCacheDecorator)(nil)

type userRepoCacheDecorator struct {
	inner repository.UserRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewUserRepoCacheDecorator(inner repository.UserRepository, cache red.RedisClient) repository.UserRepository {
	return &userRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   1 * time.Hour,
	}
}

func userIDKey(id string) string { return "user:id:" + id }
func userEmailKey(email string) string {
	return "user:email:" + strings.ToLower(strings.TrimSpace(email))
}

func (d *userRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	if u, ok := d.get(ctx, userIDKey(id)); ok {
		return u, nil
	}
	user, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	d.warm(ctx, user)
	return user, nil
}

func (d *userRepoCacheDecorator) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	if u, ok := d.get(ctx, userEmailKey(email)); ok {
		return u, nil
	}
	user, err := d.inner.FindByEmail(ctx, tx, email)
	if err != nil {
		return nil, err
	}
	d.warm(ctx, user)
	return user, nil
}

func (d *userRepoCacheDecorator) get(ctx context.Context, key string) (*model.User, bool) {
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var user model.User
		if json.Unmarshal([]byte(val), &user) == nil {
			metrics.IncCacheRequest("user", "hit")
			return &user, true
		}
	}
	metrics.IncCacheRequest("user", "miss")
	return nil, false
}

// warm sets both keys so a lookup by either one hits next time.
func (d *userRepoCacheDecorator) warm(ctx context.Context, user *model.User) {
	if user == nil {
		return
	}
	bytes, err := json.Marshal(user)
	if err != nil {
		return
	}
	_ = d.cache.Set(ctx, userIDKey(user.ID), bytes, d.ttl)
	if user.Email != "" {
		_ = d.cache.Set(ctx, userEmailKey(user.Email), bytes, d.ttl)
	}
}
