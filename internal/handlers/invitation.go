package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/acadium/acadium-api/internal/authz"
	"github.com/acadium/acadium-api/internal/invitation"
	"github.com/acadium/acadium-api/internal/models"
	"github.com/acadium/acadium-api/internal/observability/metrics"
	"github.com/acadium/acadium-api/internal/reconciler"
	"github.com/acadium/acadium-api/internal/repository"
	"github.com/acadium/acadium-api/internal/security"
	"github.com/acadium/acadium-api/internal/security/ratelimit"
)

type InvitationHandler struct {
	registry       *invitation.Registry
	userRepo       repository.UserRepository
	limiter        ratelimit.Limiter
	securityEvents *security.EventRecorder
	feed           reconciler.EventFeed
	logger         zerolog.Logger
}

func NewInvitationHandler(
	registry *invitation.Registry,
	userRepo repository.UserRepository,
	limiter ratelimit.Limiter,
	securityEvents *security.EventRecorder,
	feed reconciler.EventFeed,
	logger zerolog.Logger,
) *InvitationHandler {
	return &InvitationHandler{
		registry:       registry,
		userRepo:       userRepo,
		limiter:        limiter,
		securityEvents: securityEvents,
		feed:           feed,
		logger:         logger,
	}
}

type createInvitationsRequest struct {
	Invitations []struct {
		InviteeEmail string `json:"invitee_email"`
		Role         string `json:"role"`
	} `json:"invitations"`
}

type invitationResult struct {
	Email        string `json:"email"`
	Status       string `json:"status"`
	InvitationID string `json:"invitation_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

type createInvitationsResponse struct {
	Success bool               `json:"success"`
	Results []invitationResult `json:"results"`
}

// CreateBatch handles POST /api/invitations. Each invitee is validated
// and committed independently; the response always reports per-invitee
// outcomes so partial success is communicated.
func (h *InvitationHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, models.ErrAuthenticationRequired.Error(), http.StatusUnauthorized)
		return
	}
	inviterEmail, _ := authz.EmailFromRequest(r)

	allowed, err := h.limiter.Allow(r.Context(), tenantID)
	if err != nil {
		h.logger.Error().Err(err).Msg("rate limiter unavailable")
		// Fail open: the capacity checks still bound the damage.
		allowed = true
	}
	if !allowed {
		metrics.RateLimited()
		h.securityEvents.Record(r.Context(), tenantID, models.SecurityEventRateLimited, clientIP(r), "invitation batch rejected")
		http.Error(w, "Too many invitation requests, slow down", http.StatusTooManyRequests)
		return
	}

	var payload createInvitationsRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	entries := make([]invitation.BatchEntry, 0, len(payload.Invitations))
	for _, item := range payload.Invitations {
		role := models.UserRole(strings.ToLower(strings.TrimSpace(item.Role)))
		if role == "" {
			role = models.RoleStandard
		}
		entries = append(entries, invitation.BatchEntry{Email: item.InviteeEmail, Role: role})
	}

	results, err := h.registry.CreateBatch(r.Context(), tenantID, inviterEmail, entries)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response := createInvitationsResponse{Success: true, Results: make([]invitationResult, 0, len(results))}
	for _, result := range results {
		item := invitationResult{Email: result.Email, Status: result.Status, InvitationID: result.InvitationID}
		if result.Err != nil {
			response.Success = false
			item.Error = result.Err.Error()
		}
		response.Results = append(response.Results, item)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

// List handles GET /api/invitations.
func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, models.ErrAuthenticationRequired.Error(), http.StatusUnauthorized)
		return
	}

	invitations, err := h.registry.List(r.Context(), tenantID)
	if err != nil {
		http.Error(w, "Failed to list invitations", http.StatusInternalServerError)
		return
	}
	if invitations == nil {
		invitations = []models.Invitation{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(invitations)
}

// Cancel handles DELETE /api/invitations/{id} for still-pending invites.
func (h *InvitationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, models.ErrAuthenticationRequired.Error(), http.StatusUnauthorized)
		return
	}

	invitationID := mux.Vars(r)["id"]
	if invitationID == "" {
		http.Error(w, "invitation id is required", http.StatusBadRequest)
		return
	}

	if err := h.registry.Cancel(r.Context(), tenantID, invitationID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "invitation not found or no longer pending", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to cancel invitation", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Accept handles GET /accept-invitation/{token}: the magic link. The
// token is the only credential; acceptance also materializes the
// membership record when the invitee does not exist yet. Failures return
// a generic explanation without leaking internal state.
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(mux.Vars(r)["token"])
	if token == "" {
		h.acceptFailure(w, http.StatusBadRequest)
		return
	}

	accepted, err := h.registry.Accept(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrExpired):
			h.acceptFailure(w, http.StatusGone)
		case errors.Is(err, models.ErrNotFound):
			h.securityEvents.Record(r.Context(), "", models.SecurityEventInvalidToken, clientIP(r), "unknown or terminal invitation token")
			h.acceptFailure(w, http.StatusNotFound)
		default:
			h.logger.Error().Err(err).Msg("invitation acceptance failed")
			h.acceptFailure(w, http.StatusInternalServerError)
		}
		return
	}

	h.ensureMembership(r, accepted)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"tenant_id":   accepted.InviterID,
		"accepted_at": accepted.AcceptedAt,
	})
}

// ensureMembership adds the invitee to the team if they are not a member
// yet, then notifies the reconciler feed so other replicas converge.
func (h *InvitationHandler) ensureMembership(r *http.Request, accepted models.Invitation) {
	_, err := h.userRepo.GetUserByEmail(r.Context(), accepted.InviteeEmail)
	if errors.Is(err, models.ErrNotFound) {
		if _, err := h.userRepo.CreateMember(r.Context(), accepted.InviterID, accepted.InviteeEmail, accepted.Role); err != nil {
			h.logger.Error().Err(err).Str("invitee", accepted.InviteeEmail).Msg("failed to create membership record")
		}
	} else if err != nil {
		h.logger.Error().Err(err).Str("invitee", accepted.InviteeEmail).Msg("membership lookup failed")
	}

	if h.feed != nil {
		if err := h.feed.Publish(r.Context(), reconciler.MembershipEvent{TenantID: accepted.InviterID}); err != nil {
			h.logger.Warn().Err(err).Msg("failed to publish membership event")
		}
	}
}

func (h *InvitationHandler) acceptFailure(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": "This invitation link is invalid or no longer active. Ask your team admin to send a new one.",
	})
}

// Preview handles GET /api/invitations/preview/{token} for the
// acceptance page.
func (h *InvitationHandler) Preview(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(mux.Vars(r)["token"])
	if token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	preview, err := h.registry.PreviewByToken(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrExpired):
			http.Error(w, "invitation expired", http.StatusGone)
		case errors.Is(err, models.ErrNotFound):
			http.Error(w, "invitation not found", http.StatusNotFound)
		default:
			http.Error(w, "Failed to load invitation", http.StatusInternalServerError)
		}
		return
	}

	response := struct {
		InviteeEmail string          `json:"invitee_email"`
		InviterEmail string          `json:"inviter_email"`
		Role         models.UserRole `json:"role"`
		ExpiresAt    time.Time       `json:"expires_at"`
	}{
		InviteeEmail: preview.InviteeEmail,
		InviterEmail: preview.InviterEmail,
		Role:         preview.Role,
		ExpiresAt:    preview.CreatedAt.Add(models.InvitationTTL),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
