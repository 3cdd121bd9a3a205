package notification

import "github.com/rs/zerolog"

// ConsoleInviteMailer logs invites instead of sending them. Dev only.
type ConsoleInviteMailer struct {
	logger zerolog.Logger
}

func NewConsoleInviteMailer(logger zerolog.Logger) *ConsoleInviteMailer {
	return &ConsoleInviteMailer{logger: logger.With().Str("mailer", "console").Logger()}
}

func (m *ConsoleInviteMailer) SendInvite(recipientEmail, inviterName, inviteURL string) error {
	m.logger.Info().
		Str("to", recipientEmail).
		Str("subject", inviteSubject(inviterName)).
		Str("invite_url", inviteURL).
		Msg("invite email (not sent)")
	return nil
}
