package pulsebus

import (
	"sync"
	"time"

	"github.com/cityloop/pulsebus/pkg/pulsebus/event"
)

// FailedDispatch records one handler failure for later inspection.
type FailedDispatch struct {
	EventID       string        `json:"event_id"`
	EventVariant  event.Variant `json:"event_variant"`
	CorrelationID string        `json:"correlation_id"`
	Handler       string        `json:"handler"`
	ErrorMessage  string        `json:"error_message"`
	Attempts      int           `json:"attempts"`
	FailedAt      time.Time     `json:"failed_at"`
}

// NewFailedDispatch builds a record from a failed dispatch unit.
func NewFailedDispatch(evt event.Event, handler string, err error, attempts int) FailedDispatch {
	return FailedDispatch{
		EventID:       evt.ID(),
		EventVariant:  evt.Variant(),
		CorrelationID: evt.CorrelationID(),
		Handler:       handler,
		ErrorMessage:  err.Error(),
		Attempts:      attempts,
		FailedAt:      time.Now(),
	}
}

// DeadLetterBuffer is a bounded in-memory buffer of failed dispatches.
// When full, the oldest record is evicted. It is an inspection aid, not
// a delivery guarantee.
type DeadLetterBuffer struct {
	mu       sync.RWMutex
	records  []FailedDispatch
	capacity int
	dropped  int64

	// OnAdd is called for each recorded failure, outside the lock.
	OnAdd func(FailedDispatch)
}

// DefaultDeadLetterCapacity bounds the buffer when no capacity is given.
const DefaultDeadLetterCapacity = 1024

// NewDeadLetterBuffer creates a buffer holding up to capacity records.
func NewDeadLetterBuffer(capacity int) *DeadLetterBuffer {
	if capacity <= 0 {
		capacity = DefaultDeadLetterCapacity
	}
	return &DeadLetterBuffer{capacity: capacity}
}

// Add records a failure, evicting the oldest record when full.
func (d *DeadLetterBuffer) Add(failed FailedDispatch) {
	d.mu.Lock()
	if len(d.records) >= d.capacity {
		d.records = d.records[1:]
		d.dropped++
	}
	d.records = append(d.records, failed)
	onAdd := d.OnAdd
	d.mu.Unlock()

	if onAdd != nil {
		onAdd(failed)
	}
}

// List returns a copy of all buffered records, oldest first.
func (d *DeadLetterBuffer) List() []FailedDispatch {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]FailedDispatch(nil), d.records...)
}

// ListByVariant returns buffered records for one variant, oldest first.
func (d *DeadLetterBuffer) ListByVariant(v event.Variant) []FailedDispatch {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []FailedDispatch
	for _, r := range d.records {
		if r.EventVariant == v {
			out = append(out, r)
		}
	}
	return out
}

// Count returns the number of buffered records.
func (d *DeadLetterBuffer) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// Dropped returns how many records were evicted to make room.
func (d *DeadLetterBuffer) Dropped() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dropped
}

// Clear removes all buffered records.
func (d *DeadLetterBuffer) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = nil
}
