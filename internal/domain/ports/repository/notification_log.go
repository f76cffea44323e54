package repository

import (
	"context"
	"time"
)

// -----------------------------
// Notifications Log
// -----------------------------

type NotificationLogRepository interface {
	// Save records that a notification was sent; false if it was already recorded.
	Save(ctx context.Context, tx Tx, membershipID, userID, kind string, expiresAt time.Time) (bool, error)
	// Exists checks if a specific notification has already been sent.
	Exists(ctx context.Context, tx Tx, membershipID, kind string, expiresAt time.Time) (bool, error)
}
