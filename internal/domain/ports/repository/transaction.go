package repository

import (
	"context"
	"time"

	"membership-payments/internal/domain/model"
)

// -----------------------------
// Transactions (ledger)
// -----------------------------

type TransactionRepository interface {
	// Create inserts t; duplicate transaction_id or payment_intent_ref yields ErrIntentAlreadyApplied.
	Create(ctx context.Context, tx Tx, t *model.Transaction) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Transaction, error)
	FindByTransactionID(ctx context.Context, tx Tx, transactionID string) (*model.Transaction, error)
	FindByIntentRef(ctx context.Context, tx Tx, intentRef string) (*model.Transaction, error)
	// Promote moves id from `from` to `to` and writes upd; false when the stored status is not `from`.
	Promote(ctx context.Context, tx Tx, id string, from, to model.TransactionStatus, upd model.TransactionUpdate) (bool, error)
	// SetRefund writes refund details once and promotes completed -> refunded.
	SetRefund(ctx context.Context, tx Tx, id string, refund model.RefundDetails) (bool, error)
	ListByUser(ctx context.Context, tx Tx, userID string, f model.TransactionFilter, p model.Page) ([]*model.Transaction, int, error)
	StatsByUser(ctx context.Context, tx Tx, userID string) ([]model.StatusStat, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Transaction, error)
	Analytics(ctx context.Context, tx Tx, from, to time.Time) (*model.PaymentAnalytics, error)
	// Delete removes a transaction; used only to compensate a failed paired write.
	Delete(ctx context.Context, tx Tx, id string) error
}
