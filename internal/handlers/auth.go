package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rs/zerolog"

	"github.com/acadium/acadium-api/internal/authz"
	"github.com/acadium/acadium-api/internal/models"
	"github.com/acadium/acadium-api/internal/repository"
	"github.com/acadium/acadium-api/internal/security"
)

// defaultSeats is the seat allocation of a fresh (unsubscribed) tenant.
const defaultSeats = 1

type AuthHandler struct {
	userRepo       repository.UserRepository
	subscriberRepo repository.SubscriberRepository
	securityEvents *security.EventRecorder
	jwtSecret      string
	logger         zerolog.Logger
}

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func NewAuthHandler(
	userRepo repository.UserRepository,
	subscriberRepo repository.SubscriberRepository,
	securityEvents *security.EventRecorder,
	jwtSecret string,
	logger zerolog.Logger,
) *AuthHandler {
	return &AuthHandler{
		userRepo:       userRepo,
		subscriberRepo: subscriberRepo,
		securityEvents: securityEvents,
		jwtSecret:      jwtSecret,
		logger:         logger,
	}
}

// SignUp registers a team owner and opens their license ledger.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.userRepo.CreateOwner(r.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		http.Error(w, "Failed to create user: "+err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := h.subscriberRepo.CreateSubscriber(r.Context(), models.Subscriber{
		UserID:            user.ID,
		Email:             user.Email,
		LicensesPurchased: defaultSeats,
		SubscriptionTier:  "free",
	}); err != nil {
		h.logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to open license ledger for new owner")
		http.Error(w, "Failed to create subscription record", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.User{ID: user.ID, TenantID: user.TenantID, Email: user.Email, Role: user.Role})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.userRepo.AuthenticateUser(r.Context(), strings.TrimSpace(strings.ToLower(req.Email)), req.Password)
	if err != nil {
		h.securityEvents.Record(r.Context(), "", models.SecurityEventAuthFailed, clientIP(r), "login failed for "+req.Email)
		http.Error(w, "Authentication failed", http.StatusUnauthorized)
		return
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   user.ID,
		"tid":   user.TenantID,
		"email": user.Email,
		"role":  string(user.Role),
		"exp":   time.Now().Add(24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString([]byte(h.jwtSecret))
	if err != nil {
		http.Error(w, "Failed to generate token: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": tokenString})
}

// JWTMiddleware authenticates bearer tokens and stores the identity on
// the request context. Requests without a usable identity are rejected
// with 401 (the AuthenticationRequired taxonomy entry).
func (h *AuthHandler) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			http.Error(w, models.ErrAuthenticationRequired.Error(), http.StatusUnauthorized)
			return
		}
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}
		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(h.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			h.securityEvents.Record(r.Context(), "", models.SecurityEventAuthFailed, clientIP(r), "invalid bearer token")
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !claims.VerifyExpiresAt(time.Now().Unix(), true) {
			http.Error(w, "Token expired", http.StatusUnauthorized)
			return
		}

		tenantID, ok := claims["tid"].(string)
		if !ok || tenantID == "" {
			http.Error(w, "Missing token claim", http.StatusUnauthorized)
			return
		}
		role := models.UserRole(stringClaim(claims, "role"))
		if !models.IsValidRole(role) {
			http.Error(w, "Missing role claim", http.StatusUnauthorized)
			return
		}
		userID, _ := claims["sub"].(string)
		email := stringClaim(claims, "email")

		ctx := authz.WithIdentity(r.Context(), tenantID, userID, email, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func stringClaim(claims jwt.MapClaims, key string) string {
	value, _ := claims[key].(string)
	return value
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
