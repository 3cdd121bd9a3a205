package models

import "time"

type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusExpired  InvitationStatus = "expired"
	InvitationStatusFailed   InvitationStatus = "failed"
)

// InvitationTTL is the window during which a pending invitation can be
// accepted. Past it the record is eligible for the expiry sweep.
const InvitationTTL = 7 * 24 * time.Hour

// Invitation represents a single seat invitation issued by a tenant admin.
// The magic-link token is stored only as a sha256 digest; the raw token
// exists solely in the email sent to the invitee.
type Invitation struct {
	ID           string           `json:"id"`
	InviterID    string           `json:"inviter_id"`
	InviterEmail string           `json:"inviter_email"`
	InviteeEmail string           `json:"invitee_email"`
	Role         UserRole         `json:"role"`
	TokenHash    string           `json:"-"`
	Status       InvitationStatus `json:"status"`
	GroupID      string           `json:"group_id,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	AcceptedAt   *time.Time       `json:"accepted_at,omitempty"`
}

// IsExpired reports whether the invitation is past its acceptance window.
func (i Invitation) IsExpired(now time.Time) bool {
	return now.Sub(i.CreatedAt) > InvitationTTL
}

// IsTerminal reports whether the invitation can no longer transition.
func (i Invitation) IsTerminal() bool {
	return i.Status != InvitationStatusPending
}
