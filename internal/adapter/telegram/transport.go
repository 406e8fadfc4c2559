// Package telegram implements domain.MessageTransport over the Telegram Bot
// API, the concrete stand-in for spec.md's abstract chat transport
// collaborator (it stays an external interface point — this package is just
// one binding of it, selected because TelegramToken/TelegramChatId/
// AlertGroupIds are named configuration fields in spec.md §6.1).
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/fairyhunter13/autobank-supervisor/internal/domain"
)

// Transport sends every Message the Messenger hands it to the primary chat,
// except ALERT-kind messages, which go to every configured alert group
// instead (and to the primary chat only when no alert group is configured).
type Transport struct {
	bot      *tgbotapi.BotAPI
	chatID   int64
	groupIDs []int64
}

// NewTransport dials the Telegram Bot API with token and validates it.
func NewTransport(token string, chatID int64, groupIDs []int64) (*Transport, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("op=telegram.NewTransport: %w", err)
	}
	return &Transport{bot: bot, chatID: chatID, groupIDs: groupIDs}, nil
}

// Send implements domain.MessageTransport.
func (t *Transport) Send(ctx context.Context, msg domain.Message) error {
	text := formatMessage(msg)

	destinations := []int64{t.chatID}
	if msg.Kind == domain.KindAlert && len(t.groupIDs) > 0 {
		destinations = t.groupIDs
	}

	var lastErr error
	for _, chatID := range destinations {
		if err := t.sendTo(chatID, text, msg.Photos); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (t *Transport) sendTo(chatID int64, text string, photos [][]byte) error {
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("op=telegram.Transport.Send chat_id=%d: %w", chatID, err)
	}
	for i, photo := range photos {
		file := tgbotapi.FileBytes{Name: fmt.Sprintf("tab-%d.png", i+1), Bytes: photo}
		if _, err := t.bot.Send(tgbotapi.NewPhoto(chatID, file)); err != nil {
			return fmt.Errorf("op=telegram.Transport.Send chat_id=%d photo=%d: %w", chatID, i, err)
		}
	}
	return nil
}

// Listen streams text from every message the configured chat sends, for the
// command surface and the OTP/CAPTCHA broadcast rule (spec.md §6.3). Updates
// from any chat other than the primary one are ignored — only the operator's
// chat can issue commands or broadcast codes.
func (t *Transport) Listen(ctx context.Context) <-chan string {
	out := make(chan string)
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message == nil || update.Message.Chat == nil {
					continue
				}
				if update.Message.Chat.ID != t.chatID {
					continue
				}
				text := update.Message.Text
				if text == "" {
					continue
				}
				select {
				case out <- text:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func formatMessage(msg domain.Message) string {
	if msg.Alias == "" {
		return fmt.Sprintf("[%s] %s", msg.Kind, msg.Text)
	}
	return fmt.Sprintf("[%s] %s: %s", msg.Kind, msg.Alias, msg.Text)
}

var _ domain.MessageTransport = (*Transport)(nil)
