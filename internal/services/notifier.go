package services

import (
	"log"

	"clinicflow/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier delivers a text to a patient. Delivery is best-effort: failures
// are logged, never returned, and the boolean only says whether a delivery
// was attempted and likely landed.
type Notifier interface {
	Send(user *models.User, text string) bool
}

// TelegramNotifier delivers through the clinic's Telegram bot. Users with
// no linked chat are silently skipped.
type TelegramNotifier struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramNotifier connects the bot. Returns an error only when the
// token is rejected; an empty token should use NoopNotifier instead.
func NewTelegramNotifier(token string) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	log.Printf("Telegram bot authorized as @%s", bot.Self.UserName)
	return &TelegramNotifier{bot: bot}, nil
}

func (n *TelegramNotifier) Send(user *models.User, text string) bool {
	if !user.Linked() {
		return false
	}
	msg := tgbotapi.NewMessage(user.NotifyChatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		log.Printf("Error: failed to deliver message to %s: %v", user.UserName, err)
		return false
	}
	return true
}

// Bot exposes the underlying API for the webhook handler.
func (n *TelegramNotifier) Bot() *tgbotapi.BotAPI {
	return n.bot
}

// NoopNotifier is used when BOT_TOKEN is unset; every send is a silent
// no-op.
type NoopNotifier struct{}

func (NoopNotifier) Send(user *models.User, text string) bool {
	return false
}

// CompositeNotifier tries each channel in order until one delivers.
// Wired as Telegram first, email fallback for unlinked users.
type CompositeNotifier struct {
	channels []Notifier
}

func NewCompositeNotifier(channels ...Notifier) *CompositeNotifier {
	return &CompositeNotifier{channels: channels}
}

func (n *CompositeNotifier) Send(user *models.User, text string) bool {
	for _, ch := range n.channels {
		if ch.Send(user, text) {
			return true
		}
	}
	return false
}
