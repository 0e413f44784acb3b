package event

import (
	"context"
	"fmt"
	"time"
)

// PayloadError indicates an event payload could not be converted to the
// type a handler expects.
type PayloadError struct {
	EventID      string
	EventVariant Variant
	Err          error
}

// Error implements the error interface.
func (e *PayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("event %s (%s): unexpected payload: %v", e.EventID, e.EventVariant, e.Err)
	}
	return fmt.Sprintf("event %s (%s): unexpected payload type", e.EventID, e.EventVariant)
}

// Unwrap returns the underlying error.
func (e *PayloadError) Unwrap() error { return e.Err }

// MiddlewareFunc wraps handlers to add cross-cutting concerns.
type MiddlewareFunc func(next Handler) Handler

// Chain applies middleware in order, with the first middleware outermost.
func Chain(handler Handler, middleware ...MiddlewareFunc) Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}

// wrapped preserves the inner handler's variant set through middleware.
type wrapped struct {
	HandlerFunc
	inner Handler
}

func (w *wrapped) Handles() []Variant { return w.inner.Handles() }

// Wrap builds a Handler around next that keeps next's variant set.
func Wrap(next Handler, fn HandlerFunc) Handler {
	return &wrapped{HandlerFunc: fn, inner: next}
}

// LoggingMiddleware reports each handled event to logFn.
func LoggingMiddleware(logFn func(variant Variant, handlerName string, duration time.Duration, err error)) MiddlewareFunc {
	return func(next Handler) Handler {
		return Wrap(next, func(ctx context.Context, evt Event) ([]Event, error) {
			start := time.Now()
			derived, err := next.Handle(ctx, evt)
			logFn(evt.Variant(), HandlerName(next), time.Since(start), err)
			return derived, err
		})
	}
}

// RecoveryMiddleware converts handler panics into errors.
func RecoveryMiddleware() MiddlewareFunc {
	return func(next Handler) Handler {
		return Wrap(next, func(ctx context.Context, evt Event) (derived []Event, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("handler panic on event %s (%s): %v", evt.ID(), evt.Variant(), r)
				}
			}()
			return next.Handle(ctx, evt)
		})
	}
}

// HandlerName extracts a printable name for a handler, for logging and
// metrics.
func HandlerName(h Handler) string {
	type named interface{ Name() string }
	if n, ok := h.(named); ok {
		return n.Name()
	}
	if w, ok := h.(*wrapped); ok {
		return HandlerName(w.inner)
	}
	return fmt.Sprintf("%T", h)
}
