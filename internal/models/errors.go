package models

import "errors"

// Error taxonomy for the invitation and licensing workflow. All of these
// are recoverable at the caller's discretion; none abort the process.
var (
	// ErrDuplicatePending is returned when a pending invitation already
	// exists for the same (tenant, invitee address) pair.
	ErrDuplicatePending = errors.New("a pending invitation already exists for this address")

	// ErrCapacityExceeded is returned when an operation would push seat
	// consumption (used + pending reservations) past the purchased count.
	ErrCapacityExceeded = errors.New("not enough available seats")

	// ErrDispatchFailed is returned when the invitation email could not be
	// delivered; the just-created record is rolled back.
	ErrDispatchFailed = errors.New("invitation email dispatch failed")

	// ErrNotFound is returned for a missing record or an invitation that
	// already reached a terminal state other than accepted.
	ErrNotFound = errors.New("record not found")

	// ErrExpired is returned when a pending invitation is past its
	// acceptance window.
	ErrExpired = errors.New("invitation has expired")

	// ErrAuthenticationRequired is returned when a request carries no
	// usable identity.
	ErrAuthenticationRequired = errors.New("authentication required")
)
