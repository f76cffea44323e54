package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"membership-payments/internal/domain/ports/adapter"
)

var _ adapter.AdminAlerter = (*TelegramAlerter)(nil)

// botSender is the slice of *tgbotapi.BotAPI the alerter needs.
type botSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramAlerter posts staff alerts into one admin chat.
type TelegramAlerter struct {
	bot    botSender
	chatID int64
	log    *zerolog.Logger
}

func NewTelegramAlerter(token string, chatID int64, logger *zerolog.Logger) (*TelegramAlerter, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram alerter needs a token and admin chat id")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return newTelegramAlerter(bot, chatID, logger), nil
}

func newTelegramAlerter(bot botSender, chatID int64, logger *zerolog.Logger) *TelegramAlerter {
	l := logger.With().Str("component", "TelegramAlerter").Logger()
	return &TelegramAlerter{bot: bot, chatID: chatID, log: &l}
}

func (a *TelegramAlerter) Alert(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(a.chatID, "⚠️ "+text)
	msg.DisableWebPagePreview = true
	if _, err := a.bot.Send(msg); err != nil {
		a.log.Error().Err(err).Msg("failed to deliver admin alert")
		return err
	}
	return nil
}
