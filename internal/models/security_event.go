package models

import "time"

type SecurityEventType string

const (
	SecurityEventRateLimited  SecurityEventType = "rate_limited"
	SecurityEventAuthFailed   SecurityEventType = "auth_failed"
	SecurityEventInvalidToken SecurityEventType = "invalid_token"
)

// SecurityEvent is an audit record for a rejected or suspicious request.
type SecurityEvent struct {
	ID        string            `json:"id"`
	TenantID  *string           `json:"tenant_id,omitempty"`
	EventType SecurityEventType `json:"event_type"`
	IPAddress string            `json:"ip_address,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}
