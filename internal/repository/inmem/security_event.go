package inmem

import (
	"context"
	"time"

	"github.com/acadium/acadium-api/internal/models"
	"github.com/acadium/acadium-api/internal/repository"
)

type securityEventRepo struct {
	db *DB
}

// SecurityEventRepository returns an in-memory repository.SecurityEventRepository.
func (d *DB) SecurityEventRepository() repository.SecurityEventRepository {
	return &securityEventRepo{db: d}
}

func (r *securityEventRepo) Create(_ context.Context, event models.SecurityEvent) (models.SecurityEvent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	event.CreatedAt = time.Now()
	r.db.events = append(r.db.events, event)
	return event, nil
}

func (r *securityEventRepo) ListRecent(_ context.Context, tenantID string, limit int) ([]models.SecurityEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var events []models.SecurityEvent
	for i := len(r.db.events) - 1; i >= 0 && len(events) < limit; i-- {
		event := r.db.events[i]
		if event.TenantID == nil || *event.TenantID == tenantID {
			events = append(events, event)
		}
	}
	return events, nil
}
