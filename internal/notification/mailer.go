package notification

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/acadium/acadium-api/internal/config"
)

// InviteMailer is responsible for delivering seat invitation emails.
type InviteMailer interface {
	SendInvite(recipientEmail, inviterName, inviteURL string) error
}

// expiryNotice matches the invitation acceptance window.
const expiryNotice = "This invitation expires in 7 days."

// SMTPInviteMailer sends invite emails using an SMTP server.
type SMTPInviteMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPInviteMailer constructs a new SMTPInviteMailer from config.
func NewSMTPInviteMailer(cfg config.EmailConfig) (*SMTPInviteMailer, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, fmt.Errorf("smtp_host is required")
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("email from address is required")
	}

	return &SMTPInviteMailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
	}, nil
}

// SendInvite dispatches an invitation email to a prospective team member.
func (m *SMTPInviteMailer) SendInvite(recipientEmail, inviterName, inviteURL string) error {
	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n",
		m.from, recipientEmail, inviteSubject(inviterName))

	message := []byte(headers + inviteBody(inviterName, inviteURL))

	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	var auth smtp.Auth
	if strings.TrimSpace(m.username) != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	return smtp.SendMail(addr, auth, m.from, []string{recipientEmail}, message)
}

func inviteSubject(inviterName string) string {
	return fmt.Sprintf("%s has invited you to join their team on Acadium", inviterName)
}

func inviteBody(inviterName, inviteURL string) string {
	body := strings.Builder{}
	body.WriteString("Hello,\n\n")
	body.WriteString(fmt.Sprintf("%s has invited you to join their team on Acadium.\n", inviterName))
	body.WriteString("Click the link below to accept the invitation:\n\n")
	body.WriteString(inviteURL + "\n\n")
	body.WriteString(expiryNotice + " If you did not expect this email, you can ignore it.\n\n")
	body.WriteString("Thanks,\nThe Acadium Team\n")
	return body.String()
}
