package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Webhook receives messenger updates and links chats to patient accounts:
// a user sends their clinic username and the chat id is attached to their
// record. Always answers 200 so the messenger never retries.
func (h *Handler) Webhook(c *gin.Context) {
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		log.Printf("Warning: undecodable webhook update from %s: %v", webhookClientIP(c), err)
		c.Status(http.StatusOK)
		return
	}

	if update.Message == nil || update.Message.Chat == nil {
		c.Status(http.StatusOK)
		return
	}

	chatID := update.Message.Chat.ID
	text := strings.TrimSpace(update.Message.Text)

	switch {
	case text == "" || strings.HasPrefix(text, "/start"):
		h.reply(chatID, "Welcome! Send me your clinic username and I will link this chat to your appointment reminders.")
	default:
		h.linkChat(chatID, text)
	}

	c.Status(http.StatusOK)
}

func (h *Handler) linkChat(chatID int64, userName string) {
	user, err := h.store.FindUserByName(userName)
	if err != nil {
		h.reply(chatID, "I couldn't find that username. Check the spelling or register at the clinic first.")
		return
	}

	user.NotifyChatID = chatID
	if err := h.store.UpsertUser(user); err != nil {
		log.Printf("Error: linking chat %d to %s: %v", chatID, user.UserName, err)
		h.reply(chatID, "Something went wrong, please try again.")
		return
	}
	log.Printf("Linked chat %d to user %s", chatID, user.UserName)
	h.reply(chatID, "You're linked! Appointment reminders will arrive here.")
}

// webhookClientIP resolves the caller behind the reverse proxy for the
// undecodable-update log line: Telegram's servers sit behind X-Real-IP /
// X-Forwarded-For in every deployment we run.
func webhookClientIP(c *gin.Context) string {
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	return c.ClientIP()
}

func (h *Handler) reply(chatID int64, text string) {
	if h.telegram == nil {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.telegram.Bot().Send(msg); err != nil {
		log.Printf("Error: webhook reply to chat %d: %v", chatID, err)
	}
}
