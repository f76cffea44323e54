package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"membership-payments/internal/config"
	"membership-payments/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*EmailNotifier)(nil)

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier renders HTML templates and delivers them over SMTP.
type EmailNotifier struct {
	cfg  config.SMTPConfig
	send sendFunc
	log  *zerolog.Logger
}

func NewEmailNotifier(cfg config.SMTPConfig, logger *zerolog.Logger) *EmailNotifier {
	l := logger.With().Str("component", "EmailNotifier").Logger()
	return &EmailNotifier{cfg: cfg, send: smtp.SendMail, log: &l}
}

func (n *EmailNotifier) Send(ctx context.Context, to adapter.Recipient, template string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tpl, ok := emailTemplates[template]
	if !ok {
		return fmt.Errorf("unknown email template %q", template)
	}
	if to.Email == "" {
		return fmt.Errorf("recipient has no email")
	}

	vars := make(map[string]any, len(data)+1)
	for k, v := range data {
		vars[k] = v
	}
	if _, ok := vars["Name"]; !ok {
		vars["Name"] = to.Name
	}
	var body bytes.Buffer
	if err := tpl.body.Execute(&body, vars); err != nil {
		return fmt.Errorf("render %s: %w", template, err)
	}

	msg := n.compose(to, tpl.subject, body.String())
	var auth smtp.Auth
	if n.cfg.Username != "" && n.cfg.Password != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	if err := n.send(addr, auth, n.cfg.From, []string{to.Email}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	n.log.Debug().Str("template", template).Msg("email sent")
	return nil
}

func (n *EmailNotifier) compose(to adapter.Recipient, subject, body string) []byte {
	from := n.cfg.From
	if n.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", n.cfg.FromName), n.cfg.From)
	}
	rcpt := to.Email
	if to.Name != "" {
		rcpt = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", to.Name), to.Email)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", rcpt)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
