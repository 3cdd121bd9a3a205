package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/acadium/acadium-api/internal/models"
)

type SubscriberRepository interface {
	CreateSubscriber(ctx context.Context, subscriber models.Subscriber) (models.Subscriber, error)
	GetByUserID(ctx context.Context, userID string) (models.Subscriber, error)
	// CommitSeat increments licenses_used by one. The UPDATE is guarded so
	// the ledger invariant (used <= purchased) holds after every commit;
	// models.ErrCapacityExceeded is returned when the guard rejects.
	CommitSeat(ctx context.Context, userID string) error
	// ReleaseSeat decrements licenses_used when a member leaves the team.
	// Releasing an already-empty ledger is a no-op.
	ReleaseSeat(ctx context.Context, userID string) error
	// UpdatePurchasedSeats sets the purchased seat count. Lowering it below
	// current consumption plus pending reservations is rejected with
	// models.ErrCapacityExceeded.
	UpdatePurchasedSeats(ctx context.Context, userID string, purchased int) (models.Subscriber, error)
	UpdateSubscription(ctx context.Context, subscriber models.Subscriber) (models.Subscriber, error)
}

type subscriberRepository struct {
	db *sql.DB
}

func NewSubscriberRepository(db *sql.DB) SubscriberRepository {
	return &subscriberRepository{db: db}
}

const subscriberColumns = `user_id, email, licenses_purchased, licenses_used, subscription_tier, subscribed, stripe_customer_id, subscription_end, created_at, updated_at`

func (r *subscriberRepository) CreateSubscriber(ctx context.Context, subscriber models.Subscriber) (models.Subscriber, error) {
	query := `
		INSERT INTO app.subscribers (user_id, email, licenses_purchased, licenses_used, subscription_tier, subscribed, stripe_customer_id, subscription_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + subscriberColumns
	row := r.db.QueryRowContext(ctx, query,
		subscriber.UserID,
		subscriber.Email,
		subscriber.LicensesPurchased,
		subscriber.LicensesUsed,
		subscriber.SubscriptionTier,
		subscriber.Subscribed,
		subscriber.StripeCustomerID,
		subscriber.SubscriptionEnd,
	)
	created, err := scanSubscriber(row)
	if err != nil {
		return models.Subscriber{}, errors.Wrap(err, "insert subscriber")
	}
	return created, nil
}

func (r *subscriberRepository) GetByUserID(ctx context.Context, userID string) (models.Subscriber, error) {
	query := `
		SELECT ` + subscriberColumns + `
		FROM app.subscribers
		WHERE user_id = $1`
	subscriber, err := scanSubscriber(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Subscriber{}, models.ErrNotFound
		}
		return models.Subscriber{}, err
	}
	return subscriber, nil
}

func (r *subscriberRepository) CommitSeat(ctx context.Context, userID string) error {
	const query = `
		UPDATE app.subscribers
		SET licenses_used = licenses_used + 1, updated_at = now()
		WHERE user_id = $1 AND licenses_used < licenses_purchased`
	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return errors.Wrap(err, "commit seat")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		// Distinguish a full ledger from a missing one.
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM app.subscribers WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return models.ErrNotFound
		}
		return models.ErrCapacityExceeded
	}
	return nil
}

func (r *subscriberRepository) ReleaseSeat(ctx context.Context, userID string) error {
	const query = `
		UPDATE app.subscribers
		SET licenses_used = licenses_used - 1, updated_at = now()
		WHERE user_id = $1 AND licenses_used > 0`
	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return errors.Wrap(err, "release seat")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM app.subscribers WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return models.ErrNotFound
		}
	}
	return nil
}

func (r *subscriberRepository) UpdatePurchasedSeats(ctx context.Context, userID string, purchased int) (models.Subscriber, error) {
	// Pending invitations hold seat reservations, so the floor for a
	// reduction is used + pending, not used alone. Otherwise a later
	// acceptance finds the pool already full.
	query := `
		UPDATE app.subscribers s
		SET licenses_purchased = $2, updated_at = now()
		WHERE s.user_id = $1
		  AND s.licenses_used + (
			SELECT COUNT(*) FROM app.invitations i
			WHERE i.inviter_id = s.user_id AND i.status = 'pending'
		  ) <= $2
		RETURNING ` + subscriberColumns
	subscriber, err := scanSubscriber(r.db.QueryRowContext(ctx, query, userID, purchased))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM app.subscribers WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
				return models.Subscriber{}, err
			}
			if !exists {
				return models.Subscriber{}, models.ErrNotFound
			}
			return models.Subscriber{}, models.ErrCapacityExceeded
		}
		return models.Subscriber{}, err
	}
	return subscriber, nil
}

func (r *subscriberRepository) UpdateSubscription(ctx context.Context, subscriber models.Subscriber) (models.Subscriber, error) {
	query := `
		UPDATE app.subscribers
		SET subscription_tier = $2, subscribed = $3, stripe_customer_id = $4, subscription_end = $5, updated_at = now()
		WHERE user_id = $1
		RETURNING ` + subscriberColumns
	updated, err := scanSubscriber(r.db.QueryRowContext(ctx, query,
		subscriber.UserID,
		subscriber.SubscriptionTier,
		subscriber.Subscribed,
		subscriber.StripeCustomerID,
		subscriber.SubscriptionEnd,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Subscriber{}, models.ErrNotFound
		}
		return models.Subscriber{}, err
	}
	return updated, nil
}

func scanSubscriber(row rowScanner) (models.Subscriber, error) {
	var (
		subscriber       models.Subscriber
		stripeCustomerID sql.NullString
		subscriptionEnd  sql.NullTime
	)
	err := row.Scan(
		&subscriber.UserID,
		&subscriber.Email,
		&subscriber.LicensesPurchased,
		&subscriber.LicensesUsed,
		&subscriber.SubscriptionTier,
		&subscriber.Subscribed,
		&stripeCustomerID,
		&subscriptionEnd,
		&subscriber.CreatedAt,
		&subscriber.UpdatedAt,
	)
	if err != nil {
		return models.Subscriber{}, err
	}
	if stripeCustomerID.Valid {
		subscriber.StripeCustomerID = &stripeCustomerID.String
	}
	if subscriptionEnd.Valid {
		subscriber.SubscriptionEnd = &subscriptionEnd.Time
	}
	return subscriber, nil
}
