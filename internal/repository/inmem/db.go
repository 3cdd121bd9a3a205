// Package inmem provides in-memory implementations of the repository
// interfaces for tests and local development. Semantics mirror the
// Postgres implementations, including the atomic duplicate/capacity
// checks on invitation creation.
package inmem

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acadium/acadium-api/internal/models"
)

type DB struct {
	mu          sync.Mutex
	invitations map[string]models.Invitation
	subscribers map[string]models.Subscriber
	users       map[string]models.User
	events      []models.SecurityEvent
}

func NewDB() *DB {
	return &DB{
		invitations: make(map[string]models.Invitation),
		subscribers: make(map[string]models.Subscriber),
		users:       make(map[string]models.User),
	}
}

// SeedInvitation inserts an invitation verbatim, bypassing the capacity
// and duplicate checks. Tests use it to construct aged records.
func (d *DB) SeedInvitation(invitation models.Invitation) models.Invitation {
	d.mu.Lock()
	defer d.mu.Unlock()
	if invitation.ID == "" {
		invitation.ID = uuid.NewString()
	}
	if invitation.CreatedAt.IsZero() {
		invitation.CreatedAt = time.Now()
	}
	d.invitations[invitation.ID] = invitation
	return invitation
}

// SeedSubscriber inserts a ledger row verbatim.
func (d *DB) SeedSubscriber(subscriber models.Subscriber) models.Subscriber {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := time.Now()
	subscriber.CreatedAt = now
	subscriber.UpdatedAt = now
	d.subscribers[subscriber.UserID] = subscriber
	return subscriber
}

// SeedUser inserts a membership record verbatim.
func (d *DB) SeedUser(user models.User) models.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	d.users[user.ID] = user
	return user
}
