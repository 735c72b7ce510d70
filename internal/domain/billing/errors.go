package billing

import "errors"

// Error kinds surfaced by the billing service. Handlers translate these to
// HTTP status codes with errors.Is.
var (
	// ErrNotFound means a bill, payment, or charge source did not resolve.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState means the operation is forbidden in the bill's current
	// state, e.g. finalizing an already-locked bill.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnauthorized means the caller lacks the role the operation needs,
	// e.g. a non-admin editing a locked bill.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBusinessRule covers overpayment, rate tampering on system-generated
	// items, and the clinical coding gate.
	ErrBusinessRule = errors.New("business rule violation")
	// ErrVersionConflict means a concurrent writer updated the bill first.
	ErrVersionConflict = errors.New("version conflict")
)
