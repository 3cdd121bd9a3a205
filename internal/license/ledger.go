// Package license answers "how many seats are free" for a tenant and
// commits seat consumption against the subscriber ledger.
package license

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/acadium/acadium-api/internal/models"
	"github.com/acadium/acadium-api/internal/repository"
)

type Ledger struct {
	subscribers repository.SubscriberRepository
	invitations repository.InvitationRepository
	logger      zerolog.Logger
}

func NewLedger(subscribers repository.SubscriberRepository, invitations repository.InvitationRepository, logger zerolog.Logger) *Ledger {
	return &Ledger{
		subscribers: subscribers,
		invitations: invitations,
		logger:      logger.With().Str("component", "license_ledger").Logger(),
	}
}

// AvailableSeats returns purchased minus used minus pending invitations.
// Pending invitations are reserved against capacity even though they are
// not yet consumed, so a burst of invites cannot oversell the pool.
func (l *Ledger) AvailableSeats(ctx context.Context, tenantID string) (int, error) {
	subscriber, err := l.subscribers.GetByUserID(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	pending, err := l.invitations.CountPending(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	return subscriber.LicensesPurchased - subscriber.LicensesUsed - pending, nil
}

// CommitSeat consumes one seat. models.ErrCapacityExceeded aborts the
// enclosing operation and is never retried here; the admin has to buy
// more seats or cancel pending invitations.
func (l *Ledger) CommitSeat(ctx context.Context, tenantID string) error {
	if err := l.subscribers.CommitSeat(ctx, tenantID); err != nil {
		return err
	}
	l.logger.Debug().Str("tenant_id", tenantID).Msg("seat committed")
	return nil
}

// ReleaseSeat frees one seat after a member is removed from the team.
func (l *Ledger) ReleaseSeat(ctx context.Context, tenantID string) error {
	if err := l.subscribers.ReleaseSeat(ctx, tenantID); err != nil {
		return err
	}
	l.logger.Debug().Str("tenant_id", tenantID).Msg("seat released")
	return nil
}

// Snapshot returns the current ledger row for a tenant.
func (l *Ledger) Snapshot(ctx context.Context, tenantID string) (models.Subscriber, error) {
	return l.subscribers.GetByUserID(ctx, tenantID)
}

// UpdatePurchasedSeats records a seat purchase or downgrade. Reducing the
// pool below current consumption plus pending reservations fails with
// models.ErrCapacityExceeded.
func (l *Ledger) UpdatePurchasedSeats(ctx context.Context, tenantID string, purchased int) (models.Subscriber, error) {
	subscriber, err := l.subscribers.UpdatePurchasedSeats(ctx, tenantID, purchased)
	if err != nil {
		return models.Subscriber{}, err
	}
	l.logger.Info().
		Str("tenant_id", tenantID).
		Int("licenses_purchased", subscriber.LicensesPurchased).
		Msg("seat allocation updated")
	return subscriber, nil
}
