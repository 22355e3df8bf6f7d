package services

import (
	"fmt"
	"log"

	"clinicflow/internal/models"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailNotifier is the fallback delivery channel for patients who gave the
// clinic an email address but never linked the messenger bot.
type EmailNotifier struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewEmailNotifier(apiKey, fromEmail, fromName string) *EmailNotifier {
	return &EmailNotifier{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// Send implements Notifier. Users without an email are skipped.
func (s *EmailNotifier) Send(user *models.User, text string) bool {
	if user.Email == "" || s.fromEmail == "" {
		return false
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(user.NotifyName(), user.Email)
	subject := "Appointment reminder"
	htmlContent := fmt.Sprintf("<p>%s</p>", text)

	message := mail.NewSingleEmail(from, subject, to, text, htmlContent)
	response, err := s.client.Send(message)
	if err != nil {
		log.Printf("Error: failed to email reminder to %s: %v", user.UserName, err)
		return false
	}
	if response.StatusCode >= 400 {
		log.Printf("Error: reminder email to %s rejected with status %d", user.UserName, response.StatusCode)
		return false
	}
	return true
}
