package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/acadium/acadium-api/internal/invitation"
	"github.com/acadium/acadium-api/internal/license"
	"github.com/acadium/acadium-api/internal/models"
	"github.com/acadium/acadium-api/internal/repository/inmem"
)

type nopMailer struct{}

func (nopMailer) SendInvite(recipientEmail, inviterName, inviteURL string) error { return nil }

func newTestReconciler(t *testing.T, feed EventFeed) (*Reconciler, *inmem.DB, *license.Ledger) {
	t.Helper()
	db := inmem.NewDB()
	db.SeedSubscriber(models.Subscriber{
		UserID:            "tenant-1",
		Email:             "owner@example.com",
		LicensesPurchased: 5,
	})
	ledger := license.NewLedger(db.SubscriberRepository(), db.InvitationRepository(), zerolog.Nop())
	registry := invitation.NewRegistry(db.InvitationRepository(), ledger, nopMailer{}, "%s", zerolog.Nop())
	r := New(registry, db.InvitationRepository(), db.UserRepository(), feed, time.Hour, time.Hour, zerolog.Nop())
	return r, db, ledger
}

func TestSweepTenantBackfillsExactMatchesOnly(t *testing.T) {
	ctx := context.Background()
	r, db, ledger := newTestReconciler(t, nil)

	dana := db.SeedInvitation(models.Invitation{
		InviterID:    "tenant-1",
		InviteeEmail: "dana@example.com",
		Role:         models.RoleStandard,
		TokenHash:    "dana-hash",
		Status:       models.InvitationStatusPending,
	})
	eve := db.SeedInvitation(models.Invitation{
		InviterID:    "tenant-1",
		InviteeEmail: "eve@example.com",
		Role:         models.RoleStandard,
		TokenHash:    "eve-hash",
		Status:       models.InvitationStatusPending,
	})

	// Dana joined tenant-1 out of band. Eve has an account on a different
	// tenant, which must not count as fulfilment.
	db.SeedUser(models.User{TenantID: "tenant-1", Email: "dana@example.com", Role: models.RoleStandard, IsActive: true})
	db.SeedUser(models.User{TenantID: "tenant-2", Email: "eve@example.com", Role: models.RoleStandard, IsActive: true})

	var refreshed []string
	r.OnRefresh(func(tenantID string) { refreshed = append(refreshed, tenantID) })

	accepted, err := r.SweepTenant(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if accepted != 1 {
		t.Fatalf("accepted = %d, want 1", accepted)
	}

	invitations := db.InvitationRepository()
	current, err := invitations.GetByTokenHash(ctx, dana.TokenHash)
	if err != nil {
		t.Fatalf("reload dana: %v", err)
	}
	if current.Status != models.InvitationStatusAccepted {
		t.Fatalf("dana status = %q, want accepted", current.Status)
	}
	current, err = invitations.GetByTokenHash(ctx, eve.TokenHash)
	if err != nil {
		t.Fatalf("reload eve: %v", err)
	}
	if current.Status != models.InvitationStatusPending {
		t.Fatalf("eve status = %q, want pending", current.Status)
	}

	snapshot, err := ledger.Snapshot(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.LicensesUsed != 1 {
		t.Fatalf("licenses_used = %d, want 1", snapshot.LicensesUsed)
	}
	if len(refreshed) != 1 || refreshed[0] != "tenant-1" {
		t.Fatalf("refreshed = %v, want [tenant-1]", refreshed)
	}

	// A second sweep changes nothing and does not re-credit the ledger.
	accepted, err = r.SweepTenant(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if accepted != 0 {
		t.Fatalf("second sweep accepted = %d, want 0", accepted)
	}
	snapshot, _ = ledger.Snapshot(ctx, "tenant-1")
	if snapshot.LicensesUsed != 1 {
		t.Fatalf("licenses_used after second sweep = %d, want 1", snapshot.LicensesUsed)
	}
	if len(refreshed) != 1 {
		t.Fatalf("refresh fired again: %v", refreshed)
	}
}

func TestSweepTenantExpiresStalePendingInsteadOfAccepting(t *testing.T) {
	ctx := context.Background()
	r, db, ledger := newTestReconciler(t, nil)

	stale := db.SeedInvitation(models.Invitation{
		InviterID:    "tenant-1",
		InviteeEmail: "dana@example.com",
		Role:         models.RoleStandard,
		TokenHash:    "stale-hash",
		Status:       models.InvitationStatusPending,
		CreatedAt:    time.Now().Add(-8 * 24 * time.Hour),
	})
	// The invitee joined out of band, but the invitation is past its
	// window; the sweep must not revive it.
	db.SeedUser(models.User{TenantID: "tenant-1", Email: "dana@example.com", Role: models.RoleStandard, IsActive: true})

	refreshed := 0
	r.OnRefresh(func(string) { refreshed++ })

	accepted, err := r.SweepTenant(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if accepted != 0 {
		t.Fatalf("accepted = %d, want 0", accepted)
	}

	current, err := db.InvitationRepository().GetByTokenHash(ctx, stale.TokenHash)
	if err != nil {
		t.Fatalf("reload invitation: %v", err)
	}
	if current.Status != models.InvitationStatusExpired {
		t.Fatalf("status = %q, want expired", current.Status)
	}

	snapshot, err := ledger.Snapshot(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.LicensesUsed != 0 {
		t.Fatalf("licenses_used = %d, want 0", snapshot.LicensesUsed)
	}
	if refreshed != 0 {
		t.Fatalf("refresh fired %d times, want 0", refreshed)
	}
}

func TestSweepTenantSkipsInactiveMembers(t *testing.T) {
	ctx := context.Background()
	r, db, _ := newTestReconciler(t, nil)

	db.SeedInvitation(models.Invitation{
		InviterID:    "tenant-1",
		InviteeEmail: "dana@example.com",
		Role:         models.RoleStandard,
		Status:       models.InvitationStatusPending,
	})
	db.SeedUser(models.User{TenantID: "tenant-1", Email: "dana@example.com", Role: models.RoleStandard, IsActive: false})

	accepted, err := r.SweepTenant(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if accepted != 0 {
		t.Fatalf("accepted = %d, want 0", accepted)
	}
}

func TestRunReactsToMembershipEvents(t *testing.T) {
	feed := NewInProcessFeed()
	r, db, _ := newTestReconciler(t, feed)

	refreshed := make(chan string, 1)
	r.OnRefresh(func(tenantID string) { refreshed <- tenantID })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()

	// Membership appears after the startup sweep; only the published
	// event can trigger the backfill before the hour-long tickers fire.
	time.Sleep(50 * time.Millisecond)
	db.SeedInvitation(models.Invitation{
		InviterID:    "tenant-1",
		InviteeEmail: "dana@example.com",
		Role:         models.RoleStandard,
		Status:       models.InvitationStatusPending,
	})
	db.SeedUser(models.User{TenantID: "tenant-1", Email: "dana@example.com", Role: models.RoleStandard, IsActive: true})
	if err := feed.Publish(ctx, MembershipEvent{TenantID: "tenant-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case tenantID := <-refreshed:
		if tenantID != "tenant-1" {
			t.Fatalf("refreshed tenant = %q, want tenant-1", tenantID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event-triggered sweep")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop on context cancellation")
	}
	if err := feed.Close(); err != nil {
		t.Fatalf("close feed: %v", err)
	}
}

func TestInProcessFeedPublishAfterClose(t *testing.T) {
	feed := NewInProcessFeed()
	if err := feed.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := feed.Publish(context.Background(), MembershipEvent{TenantID: "tenant-1"}); err != nil {
		t.Fatalf("publish after close: %v", err)
	}
	if err := feed.Close(); err != nil {
		t.Fatalf("double close: %v", err)
	}
}

func TestSweepTenantPropagatesListErrors(t *testing.T) {
	r, _, _ := newTestReconciler(t, nil)
	r.invitations = failingInvitationRepo{}
	if _, err := r.SweepTenant(context.Background(), "tenant-1"); err == nil {
		t.Fatal("expected error from failing repository")
	}
}

type failingInvitationRepo struct{}

func (failingInvitationRepo) CreateInvitation(context.Context, models.Invitation) (models.Invitation, error) {
	return models.Invitation{}, errors.New("unavailable")
}
func (failingInvitationRepo) GetByTokenHash(context.Context, string) (models.Invitation, error) {
	return models.Invitation{}, errors.New("unavailable")
}
func (failingInvitationRepo) MarkAccepted(context.Context, string) (models.Invitation, error) {
	return models.Invitation{}, errors.New("unavailable")
}
func (failingInvitationRepo) MarkExpired(context.Context, string) error { return errors.New("unavailable") }
func (failingInvitationRepo) ReinstatePending(context.Context, string) error {
	return errors.New("unavailable")
}
func (failingInvitationRepo) ExpireStale(context.Context, time.Time) (int, error) {
	return 0, errors.New("unavailable")
}
func (failingInvitationRepo) CountPending(context.Context, string) (int, error) {
	return 0, errors.New("unavailable")
}
func (failingInvitationRepo) ListByTenant(context.Context, string) ([]models.Invitation, error) {
	return nil, errors.New("unavailable")
}
func (failingInvitationRepo) ListPendingByTenant(context.Context, string) ([]models.Invitation, error) {
	return nil, errors.New("unavailable")
}
func (failingInvitationRepo) ListPendingTenants(context.Context) ([]string, error) {
	return nil, errors.New("unavailable")
}
func (failingInvitationRepo) Delete(context.Context, string) error { return errors.New("unavailable") }
func (failingInvitationRepo) CancelPending(context.Context, string, string) error {
	return errors.New("unavailable")
}
