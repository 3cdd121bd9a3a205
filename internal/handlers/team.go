package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/acadium/acadium-api/internal/authz"
	"github.com/acadium/acadium-api/internal/license"
	"github.com/acadium/acadium-api/internal/models"
	"github.com/acadium/acadium-api/internal/repository"
	"github.com/acadium/acadium-api/internal/security"
)

// TeamHandler serves the membership surface: listing the team, adding a
// member directly (bypassing the invitation flow) and removing one.
type TeamHandler struct {
	userRepo       repository.UserRepository
	ledger         *license.Ledger
	securityEvents *security.EventRecorder
	logger         zerolog.Logger
}

func NewTeamHandler(
	userRepo repository.UserRepository,
	ledger *license.Ledger,
	securityEvents *security.EventRecorder,
	logger zerolog.Logger,
) *TeamHandler {
	return &TeamHandler{
		userRepo:       userRepo,
		ledger:         ledger,
		securityEvents: securityEvents,
		logger:         logger,
	}
}

// List handles GET /api/team.
func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, models.ErrAuthenticationRequired.Error(), http.StatusUnauthorized)
		return
	}

	members, err := h.userRepo.ListUsersByTenant(r.Context(), tenantID)
	if err != nil {
		http.Error(w, "Failed to list team members", http.StatusInternalServerError)
		return
	}
	if members == nil {
		members = []models.User{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(members)
}

type addMemberRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// Add handles POST /api/team: the admin creates an account directly
// instead of sending an invitation. The member consumes a seat the same
// way an accepted invitation does, and a failed seat commit removes the
// just-created account.
func (h *TeamHandler) Add(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, models.ErrAuthenticationRequired.Error(), http.StatusUnauthorized)
		return
	}

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}
	role := models.UserRole(strings.ToLower(strings.TrimSpace(req.Role)))
	if role == "" {
		role = models.RoleStandard
	}

	available, err := h.ledger.AvailableSeats(r.Context(), tenantID)
	if err != nil {
		http.Error(w, "Failed to check seat availability", http.StatusInternalServerError)
		return
	}
	if available <= 0 {
		http.Error(w, models.ErrCapacityExceeded.Error(), http.StatusConflict)
		return
	}

	member, err := h.userRepo.CreateUser(r.Context(), tenantID, req.Email, req.Password, req.FirstName, req.LastName, role)
	if err != nil {
		http.Error(w, "Failed to create team member: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.ledger.CommitSeat(r.Context(), tenantID); err != nil {
		if delErr := h.userRepo.DeleteUser(r.Context(), member.ID); delErr != nil {
			h.logger.Error().Err(delErr).Str("user_id", member.ID).Msg("failed to roll back member after seat commit failure")
		}
		if errors.Is(err, models.ErrCapacityExceeded) {
			http.Error(w, models.ErrCapacityExceeded.Error(), http.StatusConflict)
			return
		}
		http.Error(w, "Failed to commit seat", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(member)
}

// Remove handles DELETE /api/team/{id}: soft-deletes a member and frees
// their seat. The owner record anchors the tenant and cannot be removed.
func (h *TeamHandler) Remove(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, models.ErrAuthenticationRequired.Error(), http.StatusUnauthorized)
		return
	}

	memberID := mux.Vars(r)["id"]
	if memberID == "" {
		http.Error(w, "member id is required", http.StatusBadRequest)
		return
	}
	if memberID == tenantID {
		http.Error(w, "the team owner cannot be removed", http.StatusBadRequest)
		return
	}

	member, err := h.userRepo.GetUserByID(r.Context(), memberID)
	if err != nil || member.TenantID != tenantID {
		http.Error(w, "team member not found", http.StatusNotFound)
		return
	}

	if err := h.userRepo.DeleteUser(r.Context(), memberID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "team member not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to remove team member", http.StatusInternalServerError)
		return
	}

	if err := h.ledger.ReleaseSeat(r.Context(), tenantID); err != nil {
		h.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("failed to release seat after member removal")
	}

	w.WriteHeader(http.StatusNoContent)
}

// SecurityEvents handles GET /api/security-events: the tenant's recent
// audit records, newest first.
func (h *TeamHandler) SecurityEvents(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, models.ErrAuthenticationRequired.Error(), http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.securityEvents.ListRecent(r.Context(), tenantID, limit)
	if err != nil {
		http.Error(w, "Failed to list security events", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []models.SecurityEvent{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}
