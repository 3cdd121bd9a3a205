package inmem

import (
	"context"
	"time"

	"github.com/acadium/acadium-api/internal/models"
	"github.com/acadium/acadium-api/internal/repository"
)

type subscriberRepo struct {
	db *DB
}

// SubscriberRepository returns an in-memory repository.SubscriberRepository.
func (d *DB) SubscriberRepository() repository.SubscriberRepository {
	return &subscriberRepo{db: d}
}

func (r *subscriberRepo) CreateSubscriber(_ context.Context, subscriber models.Subscriber) (models.Subscriber, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	now := time.Now()
	subscriber.CreatedAt = now
	subscriber.UpdatedAt = now
	r.db.subscribers[subscriber.UserID] = subscriber
	return subscriber, nil
}

func (r *subscriberRepo) GetByUserID(_ context.Context, userID string) (models.Subscriber, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	subscriber, ok := r.db.subscribers[userID]
	if !ok {
		return models.Subscriber{}, models.ErrNotFound
	}
	return subscriber, nil
}

func (r *subscriberRepo) CommitSeat(_ context.Context, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	subscriber, ok := r.db.subscribers[userID]
	if !ok {
		return models.ErrNotFound
	}
	if subscriber.LicensesUsed >= subscriber.LicensesPurchased {
		return models.ErrCapacityExceeded
	}
	subscriber.LicensesUsed++
	subscriber.UpdatedAt = time.Now()
	r.db.subscribers[userID] = subscriber
	return nil
}

func (r *subscriberRepo) ReleaseSeat(_ context.Context, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	subscriber, ok := r.db.subscribers[userID]
	if !ok {
		return models.ErrNotFound
	}
	if subscriber.LicensesUsed > 0 {
		subscriber.LicensesUsed--
		subscriber.UpdatedAt = time.Now()
		r.db.subscribers[userID] = subscriber
	}
	return nil
}

func (r *subscriberRepo) UpdatePurchasedSeats(_ context.Context, userID string, purchased int) (models.Subscriber, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	subscriber, ok := r.db.subscribers[userID]
	if !ok {
		return models.Subscriber{}, models.ErrNotFound
	}
	pending := 0
	for _, invitation := range r.db.invitations {
		if invitation.InviterID == userID && invitation.Status == models.InvitationStatusPending {
			pending++
		}
	}
	// Pending invitations hold seat reservations, so the reduction floor
	// is used + pending.
	if purchased < subscriber.LicensesUsed+pending {
		return models.Subscriber{}, models.ErrCapacityExceeded
	}
	subscriber.LicensesPurchased = purchased
	subscriber.UpdatedAt = time.Now()
	r.db.subscribers[userID] = subscriber
	return subscriber, nil
}

func (r *subscriberRepo) UpdateSubscription(_ context.Context, update models.Subscriber) (models.Subscriber, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	subscriber, ok := r.db.subscribers[update.UserID]
	if !ok {
		return models.Subscriber{}, models.ErrNotFound
	}
	subscriber.SubscriptionTier = update.SubscriptionTier
	subscriber.Subscribed = update.Subscribed
	subscriber.StripeCustomerID = update.StripeCustomerID
	subscriber.SubscriptionEnd = update.SubscriptionEnd
	subscriber.UpdatedAt = time.Now()
	r.db.subscribers[update.UserID] = subscriber
	return subscriber, nil
}
