// Package services defines the business logic for provisioning users,
// allocating extensions, and applying configuration to the call-control
// daemon. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

var (
	// ErrPoolExhausted indicates that every number in the tenant's extension
	// range is allocated; nothing was reserved.
	ErrPoolExhausted = errors.New("extension pool exhausted")

	// ErrAllocationContention is returned when the allocator exceeded its
	// retry ceiling because concurrent allocators kept winning the candidate
	// number. The caller may retry.
	ErrAllocationContention = errors.New("extension allocation contention")

	// ErrApplyInProgress indicates the apply lock is already held. The
	// attempt is still audited; the caller decides whether to retry later.
	ErrApplyInProgress = errors.New("another apply operation is in progress")

	// ErrUserNotFound indicates that the requested user does not exist in
	// the tenant.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateEmail is returned when a user-creation request reuses an
	// email address already registered on the portal.
	ErrDuplicateEmail = errors.New("email already exists")

	// ErrTenantNotFound indicates that the requested tenant does not exist.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrAuditNotFound indicates that the requested apply audit record does
	// not exist in the tenant.
	ErrAuditNotFound = errors.New("apply audit record not found")

	// ErrLockNotHeld is returned when clearing an apply lock that is not
	// currently held.
	ErrLockNotHeld = errors.New("apply lock is not held")
)
