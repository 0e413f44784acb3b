// Package journal provides a best-effort audit trail of published
// events.
//
// A Recorder subscribed to the wildcard variant appends every event it
// observes to a Store. The journal is an observability aid for
// inspecting what flowed through the broker; it is not a durable
// delivery mechanism and gives no replay or exactly-once guarantees.
package journal

import (
	"context"
	"errors"
	"time"
)

// Record is one journalled event.
type Record struct {
	EventID       string
	Variant       string
	Source        string
	CorrelationID string
	CausationID   string
	CreatedAt     time.Time
	Payload       []byte
}

// Store persists journal records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores one record.
	Append(ctx context.Context, rec Record) error

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// ByCorrelation returns all records sharing a correlation ID,
	// oldest first, reconstructing one cascade's lineage.
	ByCorrelation(ctx context.Context, correlationID string) ([]Record, error)

	// CountByVariant returns record counts grouped by variant.
	CountByVariant(ctx context.Context) (map[string]int, error)

	// DeleteBefore removes records created before the cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for journal operations.
var (
	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("journal store closed")
)
