package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope every message in the system implements.
// Events are immutable once created - any derivation creates a new event.
type Event interface {
	// Identity
	ID() string        // Unique event identifier, assigned at construction
	Variant() Variant  // Closed tag identifying the payload shape
	Source() string    // Producing component (e.g., "sensor", "detector")

	// Correlation for lineage across cascades
	CorrelationID() string // Groups a cascade of related events
	CausationID() string   // ID of the event that directly caused this one

	// Metadata
	CreatedAt() time.Time // Capture time, assigned at construction

	// Payload
	Data() any // Variant-specific payload
}

// Metadata contains the common envelope fields.
type Metadata struct {
	EventID       string    `json:"id"`
	EventVariant  Variant   `json:"variant"`
	EventSource   string    `json:"source"`
	CorrelationID string    `json:"correlation_id"`
	CausationID   string    `json:"causation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Envelope is the generic event implementation.
// T is the payload type for type-safe access.
type Envelope[T any] struct {
	Meta    Metadata `json:"metadata"`
	Payload T        `json:"payload"`
}

// ID returns the unique event identifier.
func (e *Envelope[T]) ID() string { return e.Meta.EventID }

// Variant returns the payload tag.
func (e *Envelope[T]) Variant() Variant { return e.Meta.EventVariant }

// Source returns the producing component.
func (e *Envelope[T]) Source() string { return e.Meta.EventSource }

// CorrelationID returns the cascade correlation ID.
func (e *Envelope[T]) CorrelationID() string { return e.Meta.CorrelationID }

// CausationID returns the ID of the event that caused this one.
func (e *Envelope[T]) CausationID() string { return e.Meta.CausationID }

// CreatedAt returns the capture timestamp.
func (e *Envelope[T]) CreatedAt() time.Time { return e.Meta.CreatedAt }

// Data returns the payload.
func (e *Envelope[T]) Data() any { return e.Payload }

// TypedData returns the strongly-typed payload.
func (e *Envelope[T]) TypedData() T { return e.Payload }

// Option configures event construction.
type Option func(*eventConfig)

type eventConfig struct {
	correlationID string
	causationID   string
}

// WithCorrelationID sets the correlation ID for cascade lineage.
func WithCorrelationID(id string) Option {
	return func(cfg *eventConfig) {
		cfg.correlationID = id
	}
}

// WithCausationID sets the ID of the causing event.
func WithCausationID(id string) Option {
	return func(cfg *eventConfig) {
		cfg.causationID = id
	}
}

// New creates an event with the given variant, source, and payload.
// The event ID and CreatedAt timestamp are always assigned here, never
// supplied by the caller.
func New[T any](variant Variant, source string, payload T, opts ...Option) *Envelope[T] {
	cfg := &eventConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	id := uuid.New().String()

	// A cascade root correlates with itself.
	if cfg.correlationID == "" {
		cfg.correlationID = id
	}

	return &Envelope[T]{
		Meta: Metadata{
			EventID:       id,
			EventVariant:  variant,
			EventSource:   source,
			CorrelationID: cfg.correlationID,
			CausationID:   cfg.causationID,
			CreatedAt:     time.Now(),
		},
		Payload: payload,
	}
}

// NewFromParent creates a derived event caused by a parent event.
// It inherits the parent's correlation ID and records causation.
func NewFromParent[T any](parent Event, variant Variant, source string, payload T) *Envelope[T] {
	return New(variant, source, payload,
		WithCorrelationID(parent.CorrelationID()),
		WithCausationID(parent.ID()),
	)
}

// Handler is the single capability consumers implement: process one event.
// Derived events returned from Handle are republished by the broker,
// chaining further fan-outs.
type Handler interface {
	// Handle processes an event and returns any derived events.
	Handle(ctx context.Context, evt Event) ([]Event, error)

	// Handles returns the variants this handler processes.
	// An empty slice means the handler accepts every variant.
	Handles() []Variant
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt Event) ([]Event, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, evt Event) ([]Event, error) {
	return f(ctx, evt)
}

// Handles returns nil (accepts all variants).
func (f HandlerFunc) Handles() []Variant { return nil }

// TypedHandler wraps a function handling a specific payload type.
// The metadata of the triggering event is passed alongside the payload.
func TypedHandler[T any](
	variants []Variant,
	fn func(ctx context.Context, payload T, meta Metadata) ([]Event, error),
) Handler {
	return &typedHandler[T]{variants: variants, fn: fn}
}

type typedHandler[T any] struct {
	variants []Variant
	fn       func(ctx context.Context, payload T, meta Metadata) ([]Event, error)
}

func (h *typedHandler[T]) Handle(ctx context.Context, evt Event) ([]Event, error) {
	var payload T

	switch d := evt.Data().(type) {
	case T:
		payload = d
	case map[string]any:
		// Payload arrived as decoded JSON; remarshal into the expected type.
		raw, err := json.Marshal(d)
		if err != nil {
			return nil, &PayloadError{EventID: evt.ID(), EventVariant: evt.Variant(), Err: err}
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, &PayloadError{EventID: evt.ID(), EventVariant: evt.Variant(), Err: err}
		}
	default:
		return nil, &PayloadError{EventID: evt.ID(), EventVariant: evt.Variant()}
	}

	meta := Metadata{
		EventID:       evt.ID(),
		EventVariant:  evt.Variant(),
		EventSource:   evt.Source(),
		CorrelationID: evt.CorrelationID(),
		CausationID:   evt.CausationID(),
		CreatedAt:     evt.CreatedAt(),
	}

	return h.fn(ctx, payload, meta)
}

func (h *typedHandler[T]) Handles() []Variant { return h.variants }
