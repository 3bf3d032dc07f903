package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// The error taxonomy of the settlement core. Every service error wraps
// exactly one of these so the transport layer can classify it; anything
// else is treated as internal and returned opaque.

var (
	// ErrValidation marks malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing entity.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState marks an illegal transition: double-resolve,
	// release of a non-held escrow, approval of an expired request.
	ErrInvalidState = errors.New("invalid state")

	// ErrForbidden marks the wrong actor for an operation.
	ErrForbidden = errors.New("forbidden")

	// ErrInsufficientFunds marks a deduction larger than the spendable
	// balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInternal marks storage or transport failure. Logged in full,
	// returned opaque.
	ErrInternal = errors.New("internal error")
)
