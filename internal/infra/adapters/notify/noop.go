package notify

import (
	"context"

	"github.com/rs/zerolog"

	"membership-payments/internal/domain/ports/adapter"
)

var (
	_ adapter.Notifier     = (*LogNotifier)(nil)
	_ adapter.AdminAlerter = (*LogAlerter)(nil)
)

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct{ log *zerolog.Logger }

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := logger.With().Str("component", "LogNotifier").Logger()
	return &LogNotifier{log: &l}
}

func (n *LogNotifier) Send(ctx context.Context, to adapter.Recipient, template string, data map[string]any) error {
	n.log.Info().Str("template", template).Msg("notification (not sent: smtp disabled)")
	return nil
}

// LogAlerter writes admin alerts to the log at error level.
type LogAlerter struct{ log *zerolog.Logger }

func NewLogAlerter(logger *zerolog.Logger) *LogAlerter {
	l := logger.With().Str("component", "LogAlerter").Logger()
	return &LogAlerter{log: &l}
}

func (a *LogAlerter) Alert(ctx context.Context, text string) error {
	a.log.Error().Str("alert", text).Msg("admin alert")
	return nil
}
