//go:build !integration

package postgres

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/repository"
)

func TestUserRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	user := &model.User{ID: "user-123", Email: "Asha@Example.org", Role: "member"}

	t.Run("FindByID should fetch from DB and set both keys on miss", func(t *testing.T) {
		// Arrange
		innerRepoCalled := false
		var cacheSets sync.Map

		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				return "", redis.Nil // Simulate cache miss
			},
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				cacheSets.Store(key, value)
				return nil
			},
		}
		mockInnerRepo := &mockInnerUserRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
				innerRepoCalled = true
				return user, nil
			},
		}

		decorator := NewUserRepoCacheDecorator(mockInnerRepo, mockRedis)

		// Act
		result, err := decorator.FindByID(ctx, nil, "user-123")

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !innerRepoCalled {
			t.Error("inner repository should be called on a cache miss")
		}
		if _, ok := cacheSets.Load("user:id:user-123"); !ok {
			t.Error("did not warm the id key")
		}
		if _, ok := cacheSets.Load("user:email:asha@example.org"); !ok {
			t.Error("did not warm the lower-cased email key")
		}
		if result == nil || result.ID != "user-123" {
			t.Error("did not return the correct user from the inner repository")
		}
	})

	t.Run("FindByEmail should serve a hit without touching the DB", func(t *testing.T) {
		// Arrange
		cached, _ := json.Marshal(user)
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				if key != "user:email:asha@example.org" {
					t.Errorf("unexpected cache key %q", key)
				}
				return string(cached), nil
			},
		}
		mockInnerRepo := &mockInnerUserRepo{
			FindByEmailFunc: func(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
				t.Error("inner repository must not be called on a hit")
				return nil, nil
			},
		}

		decorator := NewUserRepoCacheDecorator(mockInnerRepo, mockRedis)

		// Act
		result, err := decorator.FindByEmail(ctx, nil, " ASHA@example.org ")

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.ID != "user-123" {
			t.Errorf("expected cached user, got %+v", result)
		}
	})

	t.Run("a missing user is not cached", func(t *testing.T) {
		// Arrange
		setCalled := false
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) { return "", redis.Nil },
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				setCalled = true
				return nil
			},
		}
		mockInnerRepo := &mockInnerUserRepo{
			FindByIDFunc: func(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
				return nil, domain.ErrNotFound
			},
		}

		// Act
		_, err := NewUserRepoCacheDecorator(mockInnerRepo, mockRedis).FindByID(ctx, nil, "ghost")

		// Assert
		if err != domain.ErrNotFound {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if setCalled {
			t.Error("a miss in the DB must not be cached")
		}
	})
}
