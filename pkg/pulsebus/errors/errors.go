// Package errors provides the pulsebus error taxonomy, categorization,
// and retry support.
//
// The broker contains all runtime failures: the only errors visible to a
// caller are synchronous input-validation errors at Subscribe/Publish
// call time. Handler failures surface as DispatchError values on the
// logging and metrics channels, never through Publish.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrBrokerClosed is returned by Publish once the broker is draining or
// stopped. New events are rejected explicitly, never dropped silently.
var ErrBrokerClosed = errors.New("broker closed")

// RegistrationError indicates invalid input to Subscribe.
// It is rejected synchronously at the call site.
type RegistrationError struct {
	Reason string
}

// Error implements the error interface.
func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration rejected: %s", e.Reason)
}

// DispatchError carries the context of a failed handler invocation.
// It is logged and counted, never propagated to the publisher or to
// sibling handlers.
type DispatchError struct {
	Handler      string
	EventID      string
	EventVariant string
	Err          error
	Timestamp    time.Time
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch of event %s (%s) to %s failed: %v",
		e.EventID, e.EventVariant, e.Handler, e.Err)
}

// Unwrap returns the underlying handler error.
func (e *DispatchError) Unwrap() error { return e.Err }

// ShutdownTimeoutError indicates the grace period elapsed before all
// in-flight dispatch units finished. The abandoned units keep running
// under a cancelled context.
type ShutdownTimeoutError struct {
	Abandoned int64
	Grace     time.Duration
}

// Error implements the error interface.
func (e *ShutdownTimeoutError) Error() string {
	return fmt.Sprintf("shutdown: %d dispatch units abandoned after %s", e.Abandoned, e.Grace)
}

// CascadeDepthError indicates a derived publish exceeded the configured
// cascade depth bound.
type CascadeDepthError struct {
	EventID  string
	Depth    int
	MaxDepth int
}

// Error implements the error interface.
func (e *CascadeDepthError) Error() string {
	return fmt.Sprintf("event %s rejected: cascade depth %d exceeds limit %d",
		e.EventID, e.Depth, e.MaxDepth)
}
