package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/acadium/acadium-api/internal/authz"
	"github.com/acadium/acadium-api/internal/handlers"
	"github.com/acadium/acadium-api/internal/models"
)

// NewRouter sets up the API routes
func NewRouter(
	auth *handlers.AuthHandler,
	invitations *handlers.InvitationHandler,
	subscription *handlers.SubscriptionHandler,
	team *handlers.TeamHandler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check and metrics
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	// Public magic-link endpoints: the token is the credential.
	router.HandleFunc("/accept-invitation/{token}", invitations.Accept).Methods(http.MethodGet)
	router.HandleFunc("/api/invitations/preview/{token}", invitations.Preview).Methods(http.MethodGet)

	// Authenticated tenant endpoints
	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.JWTMiddleware)

	api.Handle("/invitations", authz.RequireRole(models.RoleAdmin)(http.HandlerFunc(invitations.CreateBatch))).Methods(http.MethodPost)
	api.HandleFunc("/invitations", invitations.List).Methods(http.MethodGet)
	api.Handle("/invitations/{id}", authz.RequireRole(models.RoleAdmin)(http.HandlerFunc(invitations.Cancel))).Methods(http.MethodDelete)

	api.HandleFunc("/team", team.List).Methods(http.MethodGet)
	api.Handle("/team", authz.RequireRole(models.RoleAdmin)(http.HandlerFunc(team.Add))).Methods(http.MethodPost)
	api.Handle("/team/{id}", authz.RequireRole(models.RoleAdmin)(http.HandlerFunc(team.Remove))).Methods(http.MethodDelete)
	api.Handle("/security-events", authz.RequireRole(models.RoleAdmin)(http.HandlerFunc(team.SecurityEvents))).Methods(http.MethodGet)

	api.HandleFunc("/subscription", subscription.Get).Methods(http.MethodGet)
	api.Handle("/subscription/seats", authz.RequireRole(models.RoleAdmin)(http.HandlerFunc(subscription.UpdateSeats))).Methods(http.MethodPut)

	return router
}
