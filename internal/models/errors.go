package models

import "errors"

// Domain error sentinels, matched with errors.Is across handler, usecase and
// repository layers.
var (
	// Authentication failures. Always surfaced, never swallowed.
	ErrMissingCredentials = errors.New("missing agent id or signature headers")
	ErrMalformedIdentity  = errors.New("malformed agent id")
	ErrInvalidSignature   = errors.New("invalid signature")

	// Lookup failures.
	ErrUnknownAgent = errors.New("unknown agent")
	ErrUnknownTask  = errors.New("unknown task")

	// ErrStaleResult is returned when a task result arrives for a task that
	// is not in the dispatched state. Late and duplicate results are rejected
	// rather than allowed to overwrite terminal fields.
	ErrStaleResult = errors.New("result for non-dispatched task")

	// ErrValidation covers out-of-range or malformed field values.
	ErrValidation = errors.New("validation failed")
)
