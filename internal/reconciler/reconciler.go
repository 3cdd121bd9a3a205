// Package reconciler aligns invitation state with observed team
// membership. It is a convergence mechanism, not a critical-path
// algorithm: state may lag true membership by up to one sweep interval,
// and every error is logged rather than surfaced to end users.
package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/acadium/acadium-api/internal/invitation"
	"github.com/acadium/acadium-api/internal/models"
	"github.com/acadium/acadium-api/internal/observability/metrics"
	"github.com/acadium/acadium-api/internal/repository"
)

type Reconciler struct {
	registry    *invitation.Registry
	invitations repository.InvitationRepository
	users       repository.UserRepository
	feed        EventFeed
	logger      zerolog.Logger

	sweepInterval  time.Duration
	expiryInterval time.Duration

	// onRefresh is invoked with a tenant id whenever a sweep changed that
	// tenant's invitations, so dependent views can re-read their counts.
	onRefresh func(tenantID string)
}

func New(
	registry *invitation.Registry,
	invitations repository.InvitationRepository,
	users repository.UserRepository,
	feed EventFeed,
	sweepInterval, expiryInterval time.Duration,
	logger zerolog.Logger,
) *Reconciler {
	if sweepInterval <= 0 {
		sweepInterval = 2 * time.Minute
	}
	if expiryInterval <= 0 {
		expiryInterval = 30 * time.Second
	}
	return &Reconciler{
		registry:       registry,
		invitations:    invitations,
		users:          users,
		feed:           feed,
		sweepInterval:  sweepInterval,
		expiryInterval: expiryInterval,
		logger:         logger.With().Str("component", "reconciler").Logger(),
	}
}

// OnRefresh registers the refresh callback. Must be called before Run.
func (r *Reconciler) OnRefresh(fn func(tenantID string)) {
	r.onRefresh = fn
}

// Run drives the periodic sweeps until ctx is cancelled: invitation sync
// on the sweep interval, stale-invite expiry on the expiry interval, and
// an immediate targeted sweep whenever the membership feed reports a
// change. The subscription is torn down with the context.
func (r *Reconciler) Run(ctx context.Context) error {
	var events <-chan MembershipEvent
	if r.feed != nil {
		subscribed, err := r.feed.Subscribe(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Msg("membership feed unavailable, relying on periodic sweeps only")
		} else {
			events = subscribed
		}
	}

	sweepTicker := time.NewTicker(r.sweepInterval)
	defer sweepTicker.Stop()
	expiryTicker := time.NewTicker(r.expiryInterval)
	defer expiryTicker.Stop()

	r.logger.Info().
		Dur("sweep_interval", r.sweepInterval).
		Dur("expiry_interval", r.expiryInterval).
		Msg("reconciler started")

	// Catch up immediately on start.
	r.sweepAll(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reconciler stopped")
			return ctx.Err()
		case <-sweepTicker.C:
			r.sweepAll(ctx)
		case <-expiryTicker.C:
			if _, err := r.registry.ExpireStale(ctx); err != nil {
				r.logger.Error().Err(err).Msg("expiry sweep failed")
			}
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if _, err := r.SweepTenant(ctx, event.TenantID); err != nil {
				r.logger.Error().Err(err).Str("tenant_id", event.TenantID).Msg("event-triggered sweep failed")
			}
		}
	}
}

func (r *Reconciler) sweepAll(ctx context.Context) {
	start := time.Now()
	tenants, err := r.invitations.ListPendingTenants(ctx)
	if err != nil {
		metrics.ObserveSweep("error", time.Since(start))
		r.logger.Error().Err(err).Msg("failed to list tenants with pending invitations")
		return
	}

	for _, tenantID := range tenants {
		if _, err := r.SweepTenant(ctx, tenantID); err != nil {
			r.logger.Error().Err(err).Str("tenant_id", tenantID).Msg("sweep failed")
		}
	}
	metrics.ObserveSweep("ok", time.Since(start))
}

// SweepTenant detects invitees who joined the team out of band and
// backfills their invitations through the idempotent acceptance path.
// Matching is by exact invitee address against the membership record, so
// a team with several outstanding invitations cannot mis-attribute an
// acceptance to the wrong one.
func (r *Reconciler) SweepTenant(ctx context.Context, tenantID string) (int, error) {
	pending, err := r.invitations.ListPendingByTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	accepted := 0
	for _, inv := range pending {
		member, err := r.users.GetUserByEmail(ctx, inv.InviteeEmail)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			r.logger.Error().Err(err).Str("invitee", inv.InviteeEmail).Msg("membership lookup failed")
			continue
		}
		if member.TenantID != inv.InviterID || !member.IsActive {
			continue
		}

		done, err := r.registry.Backfill(ctx, inv)
		if err != nil {
			r.logger.Error().Err(err).Str("invitation_id", inv.ID).Msg("backfill failed")
			continue
		}
		if done {
			accepted++
		}
	}

	if accepted > 0 {
		r.logger.Info().Str("tenant_id", tenantID).Int("accepted", accepted).Msg("backfilled invitations")
		if r.onRefresh != nil {
			r.onRefresh(tenantID)
		}
	}
	return accepted, nil
}
