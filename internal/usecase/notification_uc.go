package usecase

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"membership-payments/internal/domain"
	"membership-payments/internal/domain/model"
	"membership-payments/internal/domain/ports/adapter"
	"membership-payments/internal/domain/ports/repository"
	"membership-payments/internal/infra/metrics"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

const kindExpiringReminder = "expiring_reminder"

// NotificationUseCase delivers member notifications. Delivery is best-effort:
// nothing here ever fails the financial operation that triggered it.
type NotificationUseCase interface {
	// Notify resolves the member's contact and sends template in the background.
	// fallback supplies contact details when the directory has none.
	Notify(ctx context.Context, userID string, fallback *model.UserDetails, template string, data map[string]any)
	// SendExpiryReminders notifies members whose annual grant expires within
	// window, at most once per membership and expiry date.
	SendExpiryReminders(ctx context.Context, window time.Duration) (int, error)
}

// TaskSubmitter runs notification sends off the request path (worker.Pool).
type TaskSubmitter interface {
	Submit(task func(ctx context.Context) error) error
}

type notificationUC struct {
	users       repository.UserRepository
	memberships repository.MembershipRepository
	notifLogs   repository.NotificationLogRepository
	notifier    adapter.Notifier
	pool        TaskSubmitter
	now         func() time.Time
	log         *zerolog.Logger
}

// NewNotificationUseCase builds the notifier front. A nil pool sends inline.
func NewNotificationUseCase(
	users repository.UserRepository,
	memberships repository.MembershipRepository,
	notifLogs repository.NotificationLogRepository,
	notifier adapter.Notifier,
	pool TaskSubmitter,
	logger *zerolog.Logger,
) *notificationUC {
	l := logger.With().Str("component", "NotificationUC").Logger()
	return &notificationUC{
		users:       users,
		memberships: memberships,
		notifLogs:   notifLogs,
		notifier:    notifier,
		pool:        pool,
		now:         time.Now,
		log:         &l,
	}
}

func (n *notificationUC) Notify(ctx context.Context, userID string, fallback *model.UserDetails, template string, data map[string]any) {
	to, ok := n.recipient(ctx, userID, fallback)
	if !ok {
		metrics.IncNotification(template, "skipped")
		n.log.Debug().Str("user_id", userID).Str("template", template).Msg("no contact address, notification skipped")
		return
	}
	send := func(ctx context.Context) error {
		if err := n.notifier.Send(ctx, to, template, data); err != nil {
			metrics.IncNotification(template, "failed")
			n.log.Warn().Err(err).Str("user_id", userID).Str("template", template).Msg("notification failed")
			return nil
		}
		metrics.IncNotification(template, "sent")
		return nil
	}
	if n.pool == nil {
		_ = send(ctx)
		return
	}
	if err := n.pool.Submit(send); err != nil {
		metrics.IncNotification(template, "dropped")
		n.log.Warn().Err(err).Str("user_id", userID).Str("template", template).Msg("notification dropped")
	}
}

func (n *notificationUC) recipient(ctx context.Context, userID string, fallback *model.UserDetails) (adapter.Recipient, bool) {
	var to adapter.Recipient
	if userID != "" && n.users != nil {
		u, err := n.users.FindByID(ctx, repository.NoTX, userID)
		switch {
		case err == nil:
			to = adapter.Recipient{Name: u.FullName, Email: u.Email}
		case !errors.Is(err, domain.ErrNotFound):
			n.log.Warn().Err(err).Str("user_id", userID).Msg("recipient lookup failed")
		}
	}
	if fallback != nil {
		if to.Email == "" {
			to.Email = fallback.Email
		}
		if to.Name == "" {
			to.Name = fallback.FullName
		}
	}
	return to, to.Email != ""
}

func (n *notificationUC) SendExpiryReminders(ctx context.Context, window time.Duration) (int, error) {
	now := n.now().UTC()
	items, err := n.memberships.ListExpiringBetween(ctx, repository.NoTX, now, now.Add(window), 500)
	if err != nil {
		return 0, domain.Persistence("list expiring memberships", err)
	}

	sent := 0
	for _, m := range items {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		exists, err := n.notifLogs.Exists(ctx, repository.NoTX, m.ID, kindExpiringReminder, m.ExpiresAt)
		if err != nil {
			n.log.Error().Err(err).Str("membership_id", m.ID).Msg("failed to check notification log")
			continue
		}
		if exists {
			continue
		}
		to, ok := n.recipient(ctx, m.UserID, nil)
		if !ok {
			metrics.IncNotification(adapter.TemplateMembershipExpiring, "skipped")
			continue
		}
		days := int(math.Ceil(m.ExpiresAt.Sub(now).Hours() / 24))
		err = n.notifier.Send(ctx, to, adapter.TemplateMembershipExpiring, map[string]any{
			"Name":           to.Name,
			"MembershipType": string(m.Type),
			"ExpiresAt":      m.ExpiresAt,
			"DaysRemaining":  days,
			"AutoRenew":      m.AutoRenewal.Enabled,
		})
		if err != nil {
			metrics.IncNotification(adapter.TemplateMembershipExpiring, "failed")
			n.log.Warn().Err(err).Str("membership_id", m.ID).Msg("expiry reminder failed")
			continue
		}
		metrics.IncNotification(adapter.TemplateMembershipExpiring, "sent")
		if _, err := n.notifLogs.Save(ctx, repository.NoTX, m.ID, m.UserID, kindExpiringReminder, m.ExpiresAt); err != nil {
			n.log.Error().Err(err).Str("membership_id", m.ID).Msg("failed to save notification log")
		}
		sent++
	}
	if sent > 0 {
		n.log.Info().Int("sent", sent).Msg("expiry reminders sent")
	}
	return sent, nil
}
