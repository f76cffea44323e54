package usecase

import (
	"context"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/repository"
)

// GetTransactionHistory pages through a user's ledger, newest first, with
// per-status totals across all of the user's transactions.
func (u *membershipUC) GetTransactionHistory(ctx context.Context, userID string, f model.TransactionFilter, p model.Page) (*model.TransactionHistory, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, domain.ErrInvalidArgument
	}
	p = p.Normalize()

	items, total, err := u.transactions.ListByUser(ctx, repository.NoTX, userID, f, p)
	if err != nil {
		return nil, domain.Persistence("list transactions", err)
	}
	stats, err := u.transactions.StatsByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, domain.Persistence("transaction stats", err)
	}
	if items == nil {
		items = []*model.Transaction{}
	}
	pages := (total + p.Limit - 1) / p.Limit
	return &model.TransactionHistory{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: pages,
		Stats:      stats,
	}, nil
}
