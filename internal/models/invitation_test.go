package models

import (
	"testing"
	"time"
)

func TestInvitationIsExpired(t *testing.T) {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	inv := Invitation{CreatedAt: created}

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"just created", created, false},
		{"five days", created.Add(5 * 24 * time.Hour), false},
		{"exactly seven days", created.Add(InvitationTTL), false},
		{"past seven days", created.Add(InvitationTTL + time.Second), true},
		{"eight days", created.Add(8 * 24 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inv.IsExpired(tt.now); got != tt.want {
				t.Errorf("IsExpired(%s) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestInvitationIsTerminal(t *testing.T) {
	for status, want := range map[InvitationStatus]bool{
		InvitationStatusPending:  false,
		InvitationStatusAccepted: true,
		InvitationStatusExpired:  true,
		InvitationStatusFailed:   true,
	} {
		if got := (Invitation{Status: status}).IsTerminal(); got != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestIsValidRole(t *testing.T) {
	if !IsValidRole(RoleAdmin) || !IsValidRole(RoleStandard) {
		t.Error("known roles rejected")
	}
	if IsValidRole("superuser") || IsValidRole("") {
		t.Error("unknown role accepted")
	}
}
