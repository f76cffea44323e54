//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/adapter"
)

func TestMembershipUseCase_InitiateRefund(t *testing.T) {
	ctx := context.Background()

	t.Run("should refund inside the window and cancel the membership", func(t *testing.T) {
		// --- Arrange ---
		h := newHarness()
		_, txn := h.activeMembership("m1", "user-1", model.MembershipStudent, model.DurationAnnual, testNow.AddDate(0, 0, -29))

		// --- Act ---
		out, err := h.uc.InitiateRefund(ctx, "user-1", txn.TransactionID, "changed my mind")

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if out.Status != model.TransactionRefunded || out.Refund == nil || out.Refund.RefundAmount != 50000 {
			t.Errorf("unexpected refunded transaction: %+v", out)
		}
		m, _ := h.memberships.FindByID(ctx, nil, "m1")
		if m.Status != model.MembershipCancelled {
			t.Errorf("expected cancelled membership, got %s", m.Status)
		}
		if calls := h.gateway.refundCalls(); len(calls) != 1 || calls[0] != "refund_"+txn.TransactionID {
			t.Errorf("expected one keyed refund call, got %v", calls)
		}
		if got := h.notifier.templates(); len(got) != 1 || got[0] != adapter.TemplateRefundInitiated {
			t.Errorf("expected refund notification, got %v", got)
		}
	})

	t.Run("should reject a refund after 31 days", func(t *testing.T) {
		h := newHarness()
		_, txn := h.activeMembership("m1", "user-1", model.MembershipStudent, model.DurationAnnual, testNow.AddDate(0, 0, -31))

		_, err := h.uc.InitiateRefund(ctx, "user-1", txn.TransactionID, "")

		if !errors.Is(err, domain.ErrRefundWindowExpired) {
			t.Fatalf("expected ErrRefundWindowExpired, got %v", err)
		}
		if len(h.gateway.refundCalls()) != 0 {
			t.Error("provider must not be called outside the window")
		}
	})

	t.Run("should reject a second refund as already refunded", func(t *testing.T) {
		h := newHarness()
		_, txn := h.activeMembership("m1", "user-1", model.MembershipStudent, model.DurationAnnual, testNow.AddDate(0, 0, -1))
		if _, err := h.uc.InitiateRefund(ctx, "user-1", txn.TransactionID, ""); err != nil {
			t.Fatalf("first refund failed: %v", err)
		}

		_, err := h.uc.InitiateRefund(ctx, "user-1", txn.TransactionID, "")

		if !errors.Is(err, domain.ErrAlreadyRefunded) {
			t.Fatalf("expected ErrAlreadyRefunded, got %v", err)
		}
	})

	t.Run("should distinguish not found, not owner and wrong status", func(t *testing.T) {
		h := newHarness()
		_, txn := h.activeMembership("m1", "user-1", model.MembershipStudent, model.DurationAnnual, testNow.AddDate(0, 0, -1))
		h.pendingPurchase("m2", "user-2", "pi_pending")
		pending, _ := h.transactions.FindByIntentRef(ctx, nil, "pi_pending")

		if _, err := h.uc.InitiateRefund(ctx, "user-1", "TXN_UNKNOWN", ""); !errors.Is(err, domain.ErrTransactionNotFound) {
			t.Errorf("expected ErrTransactionNotFound, got %v", err)
		}
		if _, err := h.uc.InitiateRefund(ctx, "user-2", txn.TransactionID, ""); !errors.Is(err, domain.ErrNotOwner) {
			t.Errorf("expected ErrNotOwner, got %v", err)
		}
		if _, err := h.uc.InitiateRefund(ctx, "user-2", pending.TransactionID, ""); !errors.Is(err, domain.ErrWrongStatus) {
			t.Errorf("expected ErrWrongStatus, got %v", err)
		}
	})

	t.Run("should leave the ledger untouched when the provider rejects", func(t *testing.T) {
		h := newHarness()
		_, txn := h.activeMembership("m1", "user-1", model.MembershipStudent, model.DurationAnnual, testNow.AddDate(0, 0, -1))
		h.gateway.CreateRefundFunc = func(ctx context.Context, ref string, amount int64, reason, key string) (*adapter.RefundResult, error) {
			return nil, domain.ErrProviderRejected
		}

		_, err := h.uc.InitiateRefund(ctx, "user-1", txn.TransactionID, "")

		if domain.KindOf(err) != domain.KindProvider {
			t.Fatalf("expected provider error, got %v", err)
		}
		got, _ := h.transactions.FindByID(ctx, nil, txn.ID)
		if got.Status != model.TransactionCompleted || got.Refund != nil {
			t.Error("transaction must stay completed after a rejected refund")
		}
	})
}
