// Package invitation owns the lifecycle of seat invitations: batch
// creation with capacity reservation, magic-link acceptance, reconciler
// backfill and stale-invite expiry.
package invitation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/acadium/acadium-api/internal/license"
	"github.com/acadium/acadium-api/internal/models"
	"github.com/acadium/acadium-api/internal/notification"
	"github.com/acadium/acadium-api/internal/observability/metrics"
	"github.com/acadium/acadium-api/internal/repository"
)

// MaxBatchSize caps the number of invitees in a single request.
const MaxBatchSize = 50

type Registry struct {
	invitations repository.InvitationRepository
	ledger      *license.Ledger
	mailer      notification.InviteMailer
	urlTpl      string
	logger      zerolog.Logger
	now         func() time.Time
}

func NewRegistry(
	invitations repository.InvitationRepository,
	ledger *license.Ledger,
	mailer notification.InviteMailer,
	inviteURLTemplate string,
	logger zerolog.Logger,
) *Registry {
	if inviteURLTemplate == "" {
		inviteURLTemplate = "https://app.acadium.dev/accept-invitation/%s"
	}
	return &Registry{
		invitations: invitations,
		ledger:      ledger,
		mailer:      mailer,
		urlTpl:      inviteURLTemplate,
		logger:      logger.With().Str("component", "invitation_registry").Logger(),
		now:         time.Now,
	}
}

// BatchEntry is one invitee in a batch creation request.
type BatchEntry struct {
	Email string
	Role  models.UserRole
}

// Result reports the outcome for a single invitee. Status is "sent" or
// "failed"; Err carries the failure reason for failed entries.
type Result struct {
	Email        string
	Status       string
	InvitationID string
	Err          error
}

// Create validates, persists and dispatches a single invitation. The
// duplicate-pending and capacity checks happen atomically in the
// repository; a dispatch failure rolls the record back so the ledger's
// reservation matches what the invitee can actually act on.
func (r *Registry) Create(ctx context.Context, tenantID, inviterEmail, inviteeEmail string, role models.UserRole) (models.Invitation, error) {
	return r.create(ctx, tenantID, inviterEmail, inviteeEmail, role, "")
}

// CreateBatch processes each invitee independently: a failure on one does
// not roll back invitations already committed for the others.
func (r *Registry) CreateBatch(ctx context.Context, tenantID, inviterEmail string, entries []BatchEntry) ([]Result, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("at least one invitee is required")
	}
	if len(entries) > MaxBatchSize {
		return nil, fmt.Errorf("batch exceeds %d invitees", MaxBatchSize)
	}

	groupID := uuid.NewString()
	results := make([]Result, 0, len(entries))
	for _, entry := range entries {
		invitation, err := r.create(ctx, tenantID, inviterEmail, entry.Email, entry.Role, groupID)
		if err != nil {
			results = append(results, Result{Email: entry.Email, Status: "failed", Err: err})
			continue
		}
		results = append(results, Result{Email: invitation.InviteeEmail, Status: "sent", InvitationID: invitation.ID})
	}
	return results, nil
}

func (r *Registry) create(ctx context.Context, tenantID, inviterEmail, inviteeEmail string, role models.UserRole, groupID string) (models.Invitation, error) {
	inviteeEmail = strings.TrimSpace(strings.ToLower(inviteeEmail))
	if inviteeEmail == "" {
		return models.Invitation{}, fmt.Errorf("invitee email is required")
	}
	if !models.IsValidRole(role) {
		return models.Invitation{}, fmt.Errorf("invalid role %q", role)
	}

	token, err := generateToken()
	if err != nil {
		return models.Invitation{}, fmt.Errorf("generate invite token: %w", err)
	}

	invitation, err := r.invitations.CreateInvitation(ctx, models.Invitation{
		InviterID:    tenantID,
		InviterEmail: inviterEmail,
		InviteeEmail: inviteeEmail,
		Role:         role,
		TokenHash:    hashToken(token),
		GroupID:      groupID,
	})
	if err != nil {
		return models.Invitation{}, err
	}

	inviteURL := fmt.Sprintf(r.urlTpl, token)
	if err := r.mailer.SendInvite(invitation.InviteeEmail, inviterEmail, inviteURL); err != nil {
		// The invitee can never act on this record; remove it so the
		// reservation in the availability computation is released.
		if delErr := r.invitations.Delete(ctx, invitation.ID); delErr != nil {
			r.logger.Error().Err(delErr).Str("invitation_id", invitation.ID).Msg("failed to roll back invitation after dispatch failure")
		}
		metrics.DispatchFailed()
		r.logger.Warn().Err(err).Str("invitee", invitation.InviteeEmail).Msg("invite dispatch failed")
		return models.Invitation{}, models.ErrDispatchFailed
	}

	metrics.InvitationCreated()
	r.logger.Info().
		Str("invitation_id", invitation.ID).
		Str("tenant_id", tenantID).
		Str("invitee", invitation.InviteeEmail).
		Msg("invitation sent")
	return invitation, nil
}

// Accept resolves a magic-link token. It is idempotent: a second call
// with the token of an already-accepted invitation is a no-op success, so
// duplicate link clicks do not error and never double-commit a seat.
func (r *Registry) Accept(ctx context.Context, token string) (models.Invitation, error) {
	invitation, err := r.invitations.GetByTokenHash(ctx, hashToken(token))
	if err != nil {
		return models.Invitation{}, err
	}

	switch invitation.Status {
	case models.InvitationStatusAccepted:
		return invitation, nil
	case models.InvitationStatusExpired, models.InvitationStatusFailed:
		return models.Invitation{}, models.ErrNotFound
	}

	if invitation.IsExpired(r.now()) {
		// Transition eagerly so the expiry sweep never touches it again.
		if err := r.invitations.MarkExpired(ctx, invitation.ID); err != nil && !isNotFound(err) {
			r.logger.Error().Err(err).Str("invitation_id", invitation.ID).Msg("failed to expire stale invitation on accept")
		} else {
			metrics.InvitationsExpired(1)
		}
		return models.Invitation{}, models.ErrExpired
	}

	return r.finalize(ctx, invitation, "link")
}

// Backfill transitions a pending invitation whose invitee was observed in
// the membership store. It shares the acceptance path, including the
// expiry window, so the ledger is credited exactly once no matter how the
// invitation completes and a stale record is never revived by the sweep.
// The return reports whether the invitation was accepted.
func (r *Registry) Backfill(ctx context.Context, invitation models.Invitation) (bool, error) {
	if invitation.Status != models.InvitationStatusPending {
		return false, nil
	}

	if invitation.IsExpired(r.now()) {
		if err := r.invitations.MarkExpired(ctx, invitation.ID); err != nil {
			if isNotFound(err) {
				return false, nil
			}
			return false, err
		}
		metrics.InvitationsExpired(1)
		return false, nil
	}

	if _, err := r.finalize(ctx, invitation, "reconciler"); err != nil {
		return false, err
	}
	return true, nil
}

// finalize performs the single pending→accepted transition and commits
// the seat. MarkAccepted only matches pending rows, so two concurrent
// finalizations of the same invitation commit at most one seat.
func (r *Registry) finalize(ctx context.Context, invitation models.Invitation, path string) (models.Invitation, error) {
	accepted, err := r.invitations.MarkAccepted(ctx, invitation.ID)
	if err != nil {
		if isNotFound(err) {
			// Lost the race: re-read and report the settled state.
			current, getErr := r.invitations.GetByTokenHash(ctx, invitation.TokenHash)
			if getErr == nil && current.Status == models.InvitationStatusAccepted {
				return current, nil
			}
			return models.Invitation{}, models.ErrNotFound
		}
		return models.Invitation{}, err
	}

	if err := r.ledger.CommitSeat(ctx, accepted.InviterID); err != nil {
		// Revert the transition so the record never sits accepted with
		// no seat behind it; the invitee can retry once seats free up.
		if revertErr := r.invitations.ReinstatePending(ctx, accepted.ID); revertErr != nil {
			r.logger.Error().Err(revertErr).
				Str("invitation_id", accepted.ID).
				Msg("failed to reinstate invitation after seat commit failure")
		}
		r.logger.Error().Err(err).
			Str("invitation_id", accepted.ID).
			Str("tenant_id", accepted.InviterID).
			Msg("seat commit failed after acceptance")
		return models.Invitation{}, err
	}

	metrics.InvitationAccepted(path)
	r.logger.Info().
		Str("invitation_id", accepted.ID).
		Str("tenant_id", accepted.InviterID).
		Str("path", path).
		Msg("invitation accepted")
	return accepted, nil
}

// PreviewByToken validates a token without consuming it, for the
// acceptance page.
func (r *Registry) PreviewByToken(ctx context.Context, token string) (models.Invitation, error) {
	invitation, err := r.invitations.GetByTokenHash(ctx, hashToken(token))
	if err != nil {
		return models.Invitation{}, err
	}
	if invitation.IsTerminal() {
		return models.Invitation{}, models.ErrNotFound
	}
	if invitation.IsExpired(r.now()) {
		return models.Invitation{}, models.ErrExpired
	}
	return invitation, nil
}

// ExpireStale transitions every pending invitation older than the
// acceptance window to expired and returns the count. The ledger is not
// touched: pending records never incremented licenses_used, their
// reservation existed only inside the availability computation.
func (r *Registry) ExpireStale(ctx context.Context) (int, error) {
	count, err := r.invitations.ExpireStale(ctx, r.now().Add(-models.InvitationTTL))
	if err != nil {
		return 0, err
	}
	if count > 0 {
		metrics.InvitationsExpired(count)
		r.logger.Info().Int("count", count).Msg("expired stale invitations")
	}
	return count, nil
}

// List returns a tenant's invitations, newest first.
func (r *Registry) List(ctx context.Context, tenantID string) ([]models.Invitation, error) {
	return r.invitations.ListByTenant(ctx, tenantID)
}

// Cancel deletes a still-pending invitation, releasing its reservation.
func (r *Registry) Cancel(ctx context.Context, tenantID, invitationID string) error {
	return r.invitations.CancelPending(ctx, invitationID, tenantID)
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
