package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/acadium/acadium-api/internal/models"
)

type SecurityEventRepository interface {
	Create(ctx context.Context, event models.SecurityEvent) (models.SecurityEvent, error)
	ListRecent(ctx context.Context, tenantID string, limit int) ([]models.SecurityEvent, error)
}

type securityEventRepository struct {
	db *sql.DB
}

func NewSecurityEventRepository(db *sql.DB) SecurityEventRepository {
	return &securityEventRepository{db: db}
}

func (r *securityEventRepository) Create(ctx context.Context, event models.SecurityEvent) (models.SecurityEvent, error) {
	const query = `
		INSERT INTO app.security_events (id, tenant_id, event_type, ip_address, detail)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, tenant_id, event_type, ip_address, detail, created_at
	`

	var tenantID interface{}
	if event.TenantID != nil && strings.TrimSpace(*event.TenantID) != "" {
		tenantID = strings.TrimSpace(*event.TenantID)
	}

	row := r.db.QueryRowContext(ctx, query, event.ID, tenantID, event.EventType, event.IPAddress, event.Detail)
	return scanSecurityEvent(row)
}

func (r *securityEventRepository) ListRecent(ctx context.Context, tenantID string, limit int) ([]models.SecurityEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	const query = `
		SELECT id, tenant_id, event_type, ip_address, detail, created_at
		FROM app.security_events
		WHERE tenant_id IS NULL OR tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, strings.TrimSpace(tenantID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.SecurityEvent
	for rows.Next() {
		event, err := scanSecurityEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanSecurityEvent(row rowScanner) (models.SecurityEvent, error) {
	var (
		event    models.SecurityEvent
		tenantID sql.NullString
	)
	err := row.Scan(&event.ID, &tenantID, &event.EventType, &event.IPAddress, &event.Detail, &event.CreatedAt)
	if err != nil {
		return models.SecurityEvent{}, err
	}
	if tenantID.Valid {
		event.TenantID = &tenantID.String
	}
	return event, nil
}
