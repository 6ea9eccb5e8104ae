// Package common defines shared constants and sentinel errors used across
// idsync layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound = errors.New("not found")

	// Request-level errors.
	ErrValidation = errors.New("validation error")
	ErrBusy       = errors.New("identity request already in flight")
	ErrTransport  = errors.New("transport error")
	ErrServer     = errors.New("server error")
	ErrDisabled   = errors.New("logging disabled")

	// Raised by caller-supplied hooks; logged, never propagated.
	ErrCallback = errors.New("callback error")
)
