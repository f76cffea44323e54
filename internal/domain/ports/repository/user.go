package repository

import (
	"context"

	"membership-payments/internal/domain/model"
)

// -----------------------------
// Users (read-only directory)
// -----------------------------

type UserRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.User, error)
}
