package inmem

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/acadium/acadium-api/internal/models"
	"github.com/acadium/acadium-api/internal/repository"
)

type invitationRepo struct {
	db *DB
}

// InvitationRepository returns an in-memory repository.InvitationRepository.
func (d *DB) InvitationRepository() repository.InvitationRepository {
	return &invitationRepo{db: d}
}

func (r *invitationRepo) CreateInvitation(_ context.Context, invitation models.Invitation) (models.Invitation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	subscriber, ok := r.db.subscribers[invitation.InviterID]
	if !ok {
		return models.Invitation{}, models.ErrNotFound
	}

	pending := 0
	for _, existing := range r.db.invitations {
		if existing.InviterID != invitation.InviterID || existing.Status != models.InvitationStatusPending {
			continue
		}
		if existing.InviteeEmail == invitation.InviteeEmail {
			return models.Invitation{}, models.ErrDuplicatePending
		}
		pending++
	}

	if subscriber.LicensesPurchased-subscriber.LicensesUsed-pending <= 0 {
		return models.Invitation{}, models.ErrCapacityExceeded
	}

	invitation.ID = uuid.NewString()
	invitation.Status = models.InvitationStatusPending
	invitation.CreatedAt = time.Now()
	invitation.AcceptedAt = nil
	r.db.invitations[invitation.ID] = invitation
	return invitation, nil
}

func (r *invitationRepo) GetByTokenHash(_ context.Context, tokenHash string) (models.Invitation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, invitation := range r.db.invitations {
		if invitation.TokenHash == tokenHash {
			return invitation, nil
		}
	}
	return models.Invitation{}, models.ErrNotFound
}

func (r *invitationRepo) MarkAccepted(_ context.Context, invitationID string) (models.Invitation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	invitation, ok := r.db.invitations[invitationID]
	if !ok || invitation.Status != models.InvitationStatusPending {
		return models.Invitation{}, models.ErrNotFound
	}
	now := time.Now()
	invitation.Status = models.InvitationStatusAccepted
	invitation.AcceptedAt = &now
	r.db.invitations[invitationID] = invitation
	return invitation, nil
}

func (r *invitationRepo) MarkExpired(_ context.Context, invitationID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	invitation, ok := r.db.invitations[invitationID]
	if !ok || invitation.Status != models.InvitationStatusPending {
		return models.ErrNotFound
	}
	invitation.Status = models.InvitationStatusExpired
	r.db.invitations[invitationID] = invitation
	return nil
}

func (r *invitationRepo) ReinstatePending(_ context.Context, invitationID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	invitation, ok := r.db.invitations[invitationID]
	if !ok || invitation.Status != models.InvitationStatusAccepted {
		return models.ErrNotFound
	}
	invitation.Status = models.InvitationStatusPending
	invitation.AcceptedAt = nil
	r.db.invitations[invitationID] = invitation
	return nil
}

func (r *invitationRepo) ExpireStale(_ context.Context, olderThan time.Time) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	count := 0
	for id, invitation := range r.db.invitations {
		if invitation.Status == models.InvitationStatusPending && invitation.CreatedAt.Before(olderThan) {
			invitation.Status = models.InvitationStatusExpired
			r.db.invitations[id] = invitation
			count++
		}
	}
	return count, nil
}

func (r *invitationRepo) CountPending(_ context.Context, inviterID string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	count := 0
	for _, invitation := range r.db.invitations {
		if invitation.InviterID == inviterID && invitation.Status == models.InvitationStatusPending {
			count++
		}
	}
	return count, nil
}

func (r *invitationRepo) ListByTenant(_ context.Context, inviterID string) ([]models.Invitation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var invitations []models.Invitation
	for _, invitation := range r.db.invitations {
		if invitation.InviterID == inviterID {
			invitations = append(invitations, invitation)
		}
	}
	sort.Slice(invitations, func(i, j int) bool {
		return invitations[i].CreatedAt.After(invitations[j].CreatedAt)
	})
	return invitations, nil
}

func (r *invitationRepo) ListPendingByTenant(_ context.Context, inviterID string) ([]models.Invitation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var invitations []models.Invitation
	for _, invitation := range r.db.invitations {
		if invitation.InviterID == inviterID && invitation.Status == models.InvitationStatusPending {
			invitations = append(invitations, invitation)
		}
	}
	sort.Slice(invitations, func(i, j int) bool {
		return invitations[i].CreatedAt.Before(invitations[j].CreatedAt)
	})
	return invitations, nil
}

func (r *invitationRepo) ListPendingTenants(_ context.Context) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	seen := make(map[string]bool)
	var tenants []string
	for _, invitation := range r.db.invitations {
		if invitation.Status == models.InvitationStatusPending && !seen[invitation.InviterID] {
			seen[invitation.InviterID] = true
			tenants = append(tenants, invitation.InviterID)
		}
	}
	return tenants, nil
}

func (r *invitationRepo) Delete(_ context.Context, invitationID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.invitations[invitationID]; !ok {
		return models.ErrNotFound
	}
	delete(r.db.invitations, invitationID)
	return nil
}

func (r *invitationRepo) CancelPending(_ context.Context, invitationID, inviterID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	invitation, ok := r.db.invitations[invitationID]
	if !ok || invitation.InviterID != inviterID || invitation.Status != models.InvitationStatusPending {
		return models.ErrNotFound
	}
	delete(r.db.invitations, invitationID)
	return nil
}
