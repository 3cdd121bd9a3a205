package models

import "time"

// Subscriber is the license ledger row for a tenant: the team owner's
// seat allocation and consumption. Invariant: LicensesUsed never exceeds
// LicensesPurchased after a committed transition.
type Subscriber struct {
	UserID            string     `json:"user_id"`
	Email             string     `json:"email"`
	LicensesPurchased int        `json:"licenses_purchased"`
	LicensesUsed      int        `json:"licenses_used"`
	SubscriptionTier  string     `json:"subscription_tier"`
	Subscribed        bool       `json:"subscribed"`
	StripeCustomerID  *string    `json:"stripe_customer_id,omitempty"`
	SubscriptionEnd   *time.Time `json:"subscription_end,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
