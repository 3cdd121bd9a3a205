package models

import "time"

type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleStandard UserRole = "standard"
)

// IsValidRole reports whether role belongs to the closed role set.
func IsValidRole(role UserRole) bool {
	switch role {
	case RoleAdmin, RoleStandard:
		return true
	}
	return false
}

// User is a membership record: a person belonging to a tenant's team.
// The reconciler reads these rows as evidence that an invitation has been
// fulfilled out of band.
type User struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
