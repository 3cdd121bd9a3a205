package license

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/acadium/acadium-api/internal/models"
	"github.com/acadium/acadium-api/internal/repository/inmem"
)

func newTestLedger(t *testing.T, purchased, used int) (*Ledger, *inmem.DB) {
	t.Helper()
	db := inmem.NewDB()
	db.SeedSubscriber(models.Subscriber{
		UserID:            "tenant-1",
		Email:             "owner@example.com",
		LicensesPurchased: purchased,
		LicensesUsed:      used,
	})
	return NewLedger(db.SubscriberRepository(), db.InvitationRepository(), zerolog.Nop()), db
}

func TestAvailableSeatsCountsPendingAsReserved(t *testing.T) {
	ctx := context.Background()
	ledger, db := newTestLedger(t, 5, 2)

	db.SeedInvitation(models.Invitation{
		InviterID:    "tenant-1",
		InviteeEmail: "a@example.com",
		Status:       models.InvitationStatusPending,
	})
	db.SeedInvitation(models.Invitation{
		InviterID:    "tenant-1",
		InviteeEmail: "b@example.com",
		Status:       models.InvitationStatusAccepted,
	})
	db.SeedInvitation(models.Invitation{
		InviterID:    "tenant-2",
		InviteeEmail: "c@example.com",
		Status:       models.InvitationStatusPending,
	})

	available, err := ledger.AvailableSeats(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("available seats: %v", err)
	}
	// 5 purchased - 2 used - 1 own pending; other tenants and settled
	// invitations do not count.
	if available != 2 {
		t.Fatalf("available seats = %d, want 2", available)
	}
}

func TestCommitSeatGuardsTheCeiling(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t, 2, 1)

	if err := ledger.CommitSeat(ctx, "tenant-1"); err != nil {
		t.Fatalf("commit within capacity: %v", err)
	}
	err := ledger.CommitSeat(ctx, "tenant-1")
	if !errors.Is(err, models.ErrCapacityExceeded) {
		t.Fatalf("commit at ceiling: got %v, want ErrCapacityExceeded", err)
	}

	snapshot, err := ledger.Snapshot(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.LicensesUsed != 2 {
		t.Fatalf("licenses_used = %d, want 2", snapshot.LicensesUsed)
	}
}

func TestCommitSeatUnknownTenant(t *testing.T) {
	ledger, _ := newTestLedger(t, 2, 0)
	if err := ledger.CommitSeat(context.Background(), "nobody"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestUpdatePurchasedSeatsCountsPendingReservations(t *testing.T) {
	ctx := context.Background()
	ledger, db := newTestLedger(t, 5, 1)

	db.SeedInvitation(models.Invitation{
		InviterID:    "tenant-1",
		InviteeEmail: "a@example.com",
		Status:       models.InvitationStatusPending,
	})

	// 1 used + 1 pending reservation: the floor is 2, not 1.
	_, err := ledger.UpdatePurchasedSeats(ctx, "tenant-1", 1)
	if !errors.Is(err, models.ErrCapacityExceeded) {
		t.Fatalf("reduce below reservations: got %v, want ErrCapacityExceeded", err)
	}
	subscriber, err := ledger.UpdatePurchasedSeats(ctx, "tenant-1", 2)
	if err != nil {
		t.Fatalf("reduce to reservation floor: %v", err)
	}
	if subscriber.LicensesPurchased != 2 {
		t.Fatalf("licenses_purchased = %d, want 2", subscriber.LicensesPurchased)
	}
}

func TestReleaseSeat(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t, 3, 1)

	if err := ledger.ReleaseSeat(ctx, "tenant-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	snapshot, err := ledger.Snapshot(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.LicensesUsed != 0 {
		t.Fatalf("licenses_used = %d, want 0", snapshot.LicensesUsed)
	}

	// Releasing an empty ledger is a no-op, not an underflow.
	if err := ledger.ReleaseSeat(ctx, "tenant-1"); err != nil {
		t.Fatalf("release empty ledger: %v", err)
	}
	snapshot, _ = ledger.Snapshot(ctx, "tenant-1")
	if snapshot.LicensesUsed != 0 {
		t.Fatalf("licenses_used after empty release = %d, want 0", snapshot.LicensesUsed)
	}
}

func TestUpdatePurchasedSeats(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t, 5, 3)

	subscriber, err := ledger.UpdatePurchasedSeats(ctx, "tenant-1", 10)
	if err != nil {
		t.Fatalf("raise seats: %v", err)
	}
	if subscriber.LicensesPurchased != 10 {
		t.Fatalf("licenses_purchased = %d, want 10", subscriber.LicensesPurchased)
	}

	if _, err := ledger.UpdatePurchasedSeats(ctx, "tenant-1", 3); err != nil {
		t.Fatalf("lower to current usage: %v", err)
	}
	_, err = ledger.UpdatePurchasedSeats(ctx, "tenant-1", 2)
	if !errors.Is(err, models.ErrCapacityExceeded) {
		t.Fatalf("lower below usage: got %v, want ErrCapacityExceeded", err)
	}
}
