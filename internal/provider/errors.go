package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors classifying provider failures. The orchestrator records
// them per route; nothing here aborts a refresh cycle.
var (
	// ErrInvalidQuery marks a malformed route rejected before any network
	// call.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrAuthRequired marks missing, invalid, or expired credentials.
	ErrAuthRequired = errors.New("authentication required")

	// ErrRateLimited marks a 429 from the backend. Not retried within the
	// same refresh cycle.
	ErrRateLimited = errors.New("rate limited")

	// ErrNoFares marks a backend response with no candidate itineraries at
	// all, before any filtering.
	ErrNoFares = errors.New("no fares found")

	// ErrTransient marks a transport failure or backend 5xx.
	ErrTransient = errors.New("transient provider error")
)

// DecodeError reports a response body that failed to parse against the
// expected schema, carrying the offending field when known.
type DecodeError struct {
	Provider string
	Field    string
	Err      error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: decode response field %q: %v", e.Provider, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: decode response: %v", e.Provider, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
