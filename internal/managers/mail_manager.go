// Package managers handles the sending of emails for password resets and welcome
// messages using the Mailgun service and the Hermes package for email formatting.
package managers

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/matcornic/hermes/v2"
	log "github.com/sirupsen/logrus"
)

// MailMgr is an interface that outlines the contract for email management.
// Mail dispatch is fire-and-forget from the HTTP path: failures are logged,
// never surfaced to the caller.
type MailMgr interface {
	SendPasswordResetMail(email, displayName, token string) error
	SendWelcomeMail(email, displayName string) error
}

// MailManager is a concrete implementation of the MailMgr interface.
// It uses the Mailgun service for sending emails and the Hermes package for formatting emails.
type MailManager struct {
	Hermes     *hermes.Hermes
	Mailgun    *mailgun.MailgunImpl
	production bool
}

var from = "Kithnet <team@mail.kithnet.app>"

// NewMailManager initializes a new MailManager instance with configured Mailgun and Hermes settings.
// Outside production the manager logs instead of sending.
func NewMailManager(apiKey, domain string, production bool) MailMgr {
	log.Info("Initializing mail manager")

	if !production {
		log.Println("Running in development mode, email will not be sent to users")
	}

	mailgunInstance := mailgun.NewMailgun(domain, apiKey)
	mailgunInstance.SetAPIBase(mailgun.APIBaseEU)

	return &MailManager{
		Hermes: &hermes.Hermes{
			Theme:         new(hermes.Default),
			TextDirection: hermes.TDLeftToRight,
			Product: hermes.Product{
				Name:        "Kithnet",
				Link:        "https://kithnet.app/",
				Copyright:   "© Kithnet",
				TroubleText: "If you’re having trouble with the button '{ACTION}', copy and paste the URL below into your web browser.",
			},
		},
		Mailgun:    mailgunInstance,
		production: production,
	}
}

// SendPasswordResetMail sends the reset token to the user. The token expires
// within minutes, which the mail says explicitly.
func (mm *MailManager) SendPasswordResetMail(email, displayName, token string) error {
	mailBody := hermes.Email{
		Body: hermes.Body{
			Name: displayName,
			Intros: []string{
				"We received a request to reset the password of your Kithnet account.",
				"If you did not request this, you can safely ignore this mail.",
			},
			Actions: []hermes.Action{
				{
					Instructions: "Enter the following code on the password reset page. It expires in a few minutes:",
					InviteCode:   token,
				},
			},
			Outros: []string{
				"If the code expired, simply request a new one.",
			},
		},
	}

	return mm.send(email, "Reset your password", mailBody)
}

// SendWelcomeMail greets a freshly registered user.
func (mm *MailManager) SendWelcomeMail(email, displayName string) error {
	mailBody := hermes.Email{
		Body: hermes.Body{
			Name: displayName,
			Intros: []string{
				"Welcome to Kithnet! We're very excited to have you on board.",
				"If you have any questions, feel free to reach out to us at any time via team@mail.kithnet.app.",
			},
			Outros: []string{
				"Have fun connecting!",
			},
		},
	}

	return mm.send(email, "Welcome to Kithnet", mailBody)
}

func (mm *MailManager) send(email, subject string, mailBody hermes.Email) error {
	if !mm.production {
		log.Info("Skipping mail in development mode: ", subject)
		return nil
	}

	emailBody, err := mm.Hermes.GenerateHTML(mailBody)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(2*time.Second))
	defer cancel()

	message := mm.Mailgun.NewMessage(from, subject, "", email)
	message.SetHtml(emailBody)
	if _, _, err = mm.Mailgun.Send(ctx, message); err != nil {
		log.Warning(fmt.Sprintf("Error sending mail %q: %v", subject, err))
		return err
	}
	log.Debug("Mail sent to ", email)

	return nil
}
