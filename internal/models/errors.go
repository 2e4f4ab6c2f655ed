package models

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNotFound is returned when no record exists for a job ID.
var ErrNotFound = errors.New("itinerary not found")

// ValidationError rejects a malformed creation request. It is never persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ProviderError covers transport, HTTP status and envelope failures talking to the generation provider.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("provider status %d: %s", e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("provider request failed: %s: %v", e.Message, e.Err)
	default:
		return "provider request failed: " + e.Message
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline or network timeout.
func (e *ProviderError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// ParseError means the provider answered but the content is not a usable itinerary.
// Raw holds the offending text so the failed record can be diagnosed.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid itinerary response from provider (%v): %s", e.Err, e.Raw)
}

func (e *ParseError) Unwrap() error { return e.Err }
