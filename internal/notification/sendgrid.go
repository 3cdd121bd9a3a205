package notification

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/acadium/acadium-api/internal/config"
)

// SendGridInviteMailer delivers invites through the SendGrid v3 API.
type SendGridInviteMailer struct {
	client *sendgrid.Client
	from   *sgmail.Email
}

func NewSendGridInviteMailer(cfg config.EmailConfig) (*SendGridInviteMailer, error) {
	if strings.TrimSpace(cfg.SendGridAPIKey) == "" {
		return nil, fmt.Errorf("sendgrid_api_key is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("email from address is required")
	}
	return &SendGridInviteMailer{
		client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
		from:   sgmail.NewEmail("Acadium", cfg.From),
	}, nil
}

func (m *SendGridInviteMailer) SendInvite(recipientEmail, inviterName, inviteURL string) error {
	to := sgmail.NewEmail("", recipientEmail)
	body := inviteBody(inviterName, inviteURL)
	message := sgmail.NewSingleEmail(m.from, inviteSubject(inviterName), to, body, "")

	resp, err := m.client.Send(message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid rejected message: status %d", resp.StatusCode)
	}
	return nil
}
