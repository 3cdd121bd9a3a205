// Package security records auditable security events: rate-limit hits,
// failed logins, invalid magic-link tokens.
package security

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/acadium/acadium-api/internal/models"
	"github.com/acadium/acadium-api/internal/repository"
)

type EventRecorder struct {
	repo   repository.SecurityEventRepository
	logger zerolog.Logger
}

func NewEventRecorder(repo repository.SecurityEventRepository, logger zerolog.Logger) *EventRecorder {
	return &EventRecorder{
		repo:   repo,
		logger: logger.With().Str("component", "security_events").Logger(),
	}
}

// Record persists a security event. Failures are logged, never returned:
// audit logging must not break the request path it observes.
func (r *EventRecorder) Record(ctx context.Context, tenantID string, eventType models.SecurityEventType, ipAddress, detail string) {
	event := models.SecurityEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		IPAddress: ipAddress,
		Detail:    detail,
	}
	if tenantID != "" {
		event.TenantID = &tenantID
	}

	if _, err := r.repo.Create(ctx, event); err != nil {
		r.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to persist security event")
	}

	r.logger.Warn().
		Str("event_type", string(eventType)).
		Str("tenant_id", tenantID).
		Str("ip", ipAddress).
		Str("detail", detail).
		Msg("security event")
}

// ListRecent returns the latest events visible to a tenant.
func (r *EventRecorder) ListRecent(ctx context.Context, tenantID string, limit int) ([]models.SecurityEvent, error) {
	return r.repo.ListRecent(ctx, tenantID, limit)
}
