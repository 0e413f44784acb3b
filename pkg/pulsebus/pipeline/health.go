package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cityloop/pulsebus/pkg/pulsebus/event"
)

// Publisher is the broker capability the health monitor needs: it only
// publishes, keeping the pipeline decoupled from the broker type.
type Publisher interface {
	Publish(ctx context.Context, evt event.Event) error
}

// HealthMonitor observes every event and publishes one HealthStatus per
// known source at each tumbling window boundary. A source that produced
// no events during a window is reported unhealthy.
type HealthMonitor struct {
	window time.Duration
	pub    Publisher
	logger *slog.Logger

	mu      sync.Mutex
	counts  map[string]int
	sources map[string]struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewHealthMonitor creates a monitor with the given window size.
// A non-positive window defaults to one minute.
func NewHealthMonitor(window time.Duration, pub Publisher, logger *slog.Logger) *HealthMonitor {
	if window <= 0 {
		window = time.Minute
	}
	return &HealthMonitor{
		window:  window,
		pub:     pub,
		logger:  logger,
		counts:  make(map[string]int),
		sources: make(map[string]struct{}),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Name identifies the monitor in logs and metrics.
func (h *HealthMonitor) Name() string { return "pipeline.HealthMonitor" }

// Handles returns nil: the monitor observes every variant.
func (h *HealthMonitor) Handles() []event.Variant { return nil }

// Handle implements event.Handler.
func (h *HealthMonitor) Handle(_ context.Context, evt event.Event) ([]event.Event, error) {
	// Health events themselves don't count toward source health.
	if evt.Variant() == event.VariantHealthStatus {
		return nil, nil
	}

	h.mu.Lock()
	h.counts[evt.Source()]++
	h.sources[evt.Source()] = struct{}{}
	h.mu.Unlock()
	return nil, nil
}

// Start launches the window loop. Call Stop to terminate it.
func (h *HealthMonitor) Start(ctx context.Context) {
	go h.run(ctx)
}

// Stop terminates the window loop and waits for it to exit.
func (h *HealthMonitor) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
	<-h.done
}

func (h *HealthMonitor) run(ctx context.Context) {
	defer close(h.done)

	ticker := time.NewTicker(h.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.emit(ctx)
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// emit publishes one HealthStatus per known source and resets counters.
func (h *HealthMonitor) emit(ctx context.Context) {
	h.mu.Lock()
	snapshot := make(map[string]int, len(h.sources))
	for src := range h.sources {
		snapshot[src] = h.counts[src]
	}
	h.counts = make(map[string]int)
	h.mu.Unlock()

	for src, count := range snapshot {
		status := event.HealthStatus{
			Component:  src,
			Healthy:    count > 0,
			EventCount: count,
			WindowSecs: int(h.window.Seconds()),
		}

		evt := event.New(event.VariantHealthStatus, "health-monitor", status)
		if err := h.pub.Publish(ctx, evt); err != nil {
			if h.logger != nil {
				h.logger.Warn("health status publish failed",
					slog.String("component", src),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}
