package journal

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/cityloop/pulsebus/pkg/pulsebus/event"
)

// Recorder is a wildcard handler that journals every event it observes.
// Append failures are logged and swallowed: the journal is best effort
// and must never disturb dispatch.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder writing to store. A nil logger
// disables logging.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Name identifies the recorder in logs and metrics.
func (r *Recorder) Name() string { return "journal.Recorder" }

// Handle implements event.Handler.
func (r *Recorder) Handle(ctx context.Context, evt event.Event) ([]event.Event, error) {
	payload, err := json.Marshal(evt.Data())
	if err != nil {
		// Journal the envelope anyway; the payload is advisory.
		payload = nil
	}

	rec := Record{
		EventID:       evt.ID(),
		Variant:       evt.Variant().String(),
		Source:        evt.Source(),
		CorrelationID: evt.CorrelationID(),
		CausationID:   evt.CausationID(),
		CreatedAt:     evt.CreatedAt(),
		Payload:       payload,
	}

	if err := r.store.Append(ctx, rec); err != nil {
		if r.logger != nil {
			r.logger.Warn("journal append failed",
				slog.String("event_id", evt.ID()),
				slog.String("variant", evt.Variant().String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil, nil
}

// Handles returns nil: the recorder observes every variant.
func (r *Recorder) Handles() []event.Variant { return nil }
