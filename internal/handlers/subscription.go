package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/acadium/acadium-api/internal/authz"
	"github.com/acadium/acadium-api/internal/license"
	"github.com/acadium/acadium-api/internal/models"
)

type SubscriptionHandler struct {
	ledger *license.Ledger
	logger zerolog.Logger
}

func NewSubscriptionHandler(ledger *license.Ledger, logger zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{ledger: ledger, logger: logger}
}

// Get handles GET /api/subscription: ledger row plus the derived
// available-seat count the invitation form displays.
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, models.ErrAuthenticationRequired.Error(), http.StatusUnauthorized)
		return
	}

	subscriber, err := h.ledger.Snapshot(r.Context(), tenantID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "subscription not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load subscription", http.StatusInternalServerError)
		return
	}

	available, err := h.ledger.AvailableSeats(r.Context(), tenantID)
	if err != nil {
		http.Error(w, "Failed to compute available seats", http.StatusInternalServerError)
		return
	}

	response := struct {
		models.Subscriber
		AvailableSeats int `json:"available_seats"`
	}{Subscriber: subscriber, AvailableSeats: available}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// UpdateSeats handles PUT /api/subscription/seats: the "purchase more
// seats" recovery path for capacity errors. The payment itself has
// already happened at the external processor; this records the outcome.
func (h *SubscriptionHandler) UpdateSeats(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := authz.TenantIDFromRequest(r)
	if !ok {
		http.Error(w, models.ErrAuthenticationRequired.Error(), http.StatusUnauthorized)
		return
	}

	var payload struct {
		LicensesPurchased int `json:"licenses_purchased"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if payload.LicensesPurchased < 0 {
		http.Error(w, "licenses_purchased must be non-negative", http.StatusBadRequest)
		return
	}

	subscriber, err := h.ledger.UpdatePurchasedSeats(r.Context(), tenantID, payload.LicensesPurchased)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrCapacityExceeded):
			http.Error(w, "cannot reduce seats below current usage and pending invitations", http.StatusConflict)
		case errors.Is(err, models.ErrNotFound):
			http.Error(w, "subscription not found", http.StatusNotFound)
		default:
			http.Error(w, "Failed to update seats", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(subscriber)
}
