package pulsebus_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cityloop/pulsebus/pkg/pulsebus"
	"github.com/cityloop/pulsebus/pkg/pulsebus/event"
	pberrors "github.com/cityloop/pulsebus/pkg/pulsebus/errors"
)

// countingHandler counts invocations per handler.
func countingHandler(n *atomic.Int32) event.HandlerFunc {
	return func(ctx context.Context, evt event.Event) ([]event.Event, error) {
		n.Add(1)
		return nil, nil
	}
}

func telemetryEvent(sensor string, temp float64) event.Event {
	return event.New(event.VariantTelemetry, "test",
		event.Telemetry{SensorID: sensor, Temperature: temp})
}

func TestFanOutCompleteness(t *testing.T) {
	bus := pulsebus.New(pulsebus.WithWorkers(4))

	const variantHandlers = 5
	const wildcardHandlers = 2

	counts := make([]atomic.Int32, variantHandlers+wildcardHandlers)
	for i := 0; i < variantHandlers; i++ {
		if _, err := bus.Subscribe([]event.Variant{event.VariantTelemetry}, countingHandler(&counts[i])); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}
	for i := variantHandlers; i < variantHandlers+wildcardHandlers; i++ {
		if _, err := bus.SubscribeAll(countingHandler(&counts[i])); err != nil {
			t.Fatalf("subscribe all: %v", err)
		}
	}

	if err := bus.Publish(context.Background(), telemetryEvent("A", 20)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Shutdown drains all submitted dispatch units.
	if err := bus.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	for i := range counts {
		if got := counts[i].Load(); got != 1 {
			t.Errorf("handler %d: expected exactly 1 invocation, got %d", i, got)
		}
	}
}

func TestFailureIsolation(t *testing.T) {
	bus := pulsebus.New(pulsebus.WithDeadLetterBuffer(16))

	var healthy atomic.Int32
	boom := errors.New("boom")

	if _, err := bus.Subscribe([]event.Variant{event.VariantTelemetry},
		event.HandlerFunc(func(ctx context.Context, evt event.Event) ([]event.Event, error) {
			return nil, boom
		}), pulsebus.WithName("failing")); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// A panicking handler must be contained too.
	if _, err := bus.Subscribe([]event.Variant{event.VariantTelemetry},
		event.HandlerFunc(func(ctx context.Context, evt event.Event) ([]event.Event, error) {
			panic("handler exploded")
		}), pulsebus.WithName("panicking")); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := bus.Subscribe([]event.Variant{event.VariantTelemetry}, countingHandler(&healthy)); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}

	if err := bus.Publish(context.Background(), telemetryEvent("A", 20)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if got := healthy.Load(); got != 3 {
		t.Errorf("expected 3 healthy invocations despite failures, got %d", got)
	}

	failed := bus.DeadLetters().List()
	if len(failed) != 2 {
		t.Fatalf("expected 2 dead letters, got %d", len(failed))
	}
	for _, f := range failed {
		if f.EventVariant != event.VariantTelemetry {
			t.Errorf("unexpected dead letter variant %s", f.EventVariant)
		}
	}
}

func TestWildcardCorrectness(t *testing.T) {
	bus := pulsebus.New()

	var wildcard, trafficOnly atomic.Int32

	if _, err := bus.SubscribeAll(countingHandler(&wildcard)); err != nil {
		t.Fatalf("subscribe all: %v", err)
	}
	if _, err := bus.Subscribe([]event.Variant{event.VariantTrafficSample}, countingHandler(&trafficOnly)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ctx := context.Background()
	if err := bus.Publish(ctx, telemetryEvent("A", 20)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Publish(ctx, event.New(event.VariantTrafficSample, "test",
		event.TrafficSample{CameraID: "cam-1", VehicleCount: 10, AvgSpeedKmh: 50})); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Publish(ctx, event.New(event.VariantPowerSample, "test",
		event.PowerSample{MeterID: "m-1", LoadKw: 100})); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if err := bus.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if got := wildcard.Load(); got != 3 {
		t.Errorf("wildcard handler: expected every event (3), got %d", got)
	}
	if got := trafficOnly.Load(); got != 1 {
		t.Errorf("traffic handler: expected only traffic events (1), got %d", got)
	}
}

func TestRegistrationRaceSafety(t *testing.T) {
	bus := pulsebus.New(pulsebus.WithWorkers(8))

	var before atomic.Int32
	if _, err := bus.Subscribe([]event.Variant{event.VariantTelemetry}, countingHandler(&before)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	const publishers = 4
	const publishes = 50

	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < publishes; i++ {
				_ = bus.Publish(context.Background(), telemetryEvent("A", 20))
			}
		}()
	}

	// Register and unregister concurrently with the publishers.
	var registered atomic.Int32
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				sub, err := bus.Subscribe([]event.Variant{event.VariantTelemetry}, countingHandler(&registered))
				if err != nil {
					t.Errorf("subscribe during publish: %v", err)
					return
				}
				sub.Unsubscribe()
			}
		}()
	}

	wg.Wait()
	if err := bus.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// The handler registered before all publishes must have seen every one.
	if got := before.Load(); got != publishers*publishes {
		t.Errorf("pre-registered handler: expected %d invocations, got %d", publishers*publishes, got)
	}
}

func TestPublishAfterShutdownRejected(t *testing.T) {
	bus := pulsebus.New()

	if err := bus.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := bus.State(); got != pulsebus.StateStopped {
		t.Fatalf("expected stopped state, got %s", got)
	}

	err := bus.Publish(context.Background(), telemetryEvent("A", 20))
	if !errors.Is(err, pberrors.ErrBrokerClosed) {
		t.Errorf("expected ErrBrokerClosed, got %v", err)
	}
}

func TestGracefulShutdownWaitsForInflight(t *testing.T) {
	bus := pulsebus.New(pulsebus.WithWorkers(2))

	started := make(chan struct{})
	var finished atomic.Bool

	if _, err := bus.Subscribe([]event.Variant{event.VariantTelemetry},
		event.HandlerFunc(func(ctx context.Context, evt event.Event) ([]event.Event, error) {
			close(started)
			time.Sleep(100 * time.Millisecond)
			finished.Store(true)
			return nil, nil
		})); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(context.Background(), telemetryEvent("A", 20)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	<-started
	if err := bus.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if !finished.Load() {
		t.Error("shutdown returned before in-flight handler finished")
	}
}

func TestShutdownTimeoutAbandonsStragglers(t *testing.T) {
	bus := pulsebus.New(pulsebus.WithWorkers(1))

	started := make(chan struct{})
	released := make(chan struct{})

	if _, err := bus.Subscribe([]event.Variant{event.VariantTelemetry},
		event.HandlerFunc(func(ctx context.Context, evt event.Event) ([]event.Event, error) {
			close(started)
			// Block until the broker cancels the handler context.
			select {
			case <-ctx.Done():
			case <-released:
			}
			return nil, nil
		})); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(context.Background(), telemetryEvent("A", 20)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	<-started

	err := bus.Shutdown(50 * time.Millisecond)
	var timeoutErr *pberrors.ShutdownTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected ShutdownTimeoutError, got %v", err)
	}
	if timeoutErr.Abandoned != 1 {
		t.Errorf("expected 1 abandoned unit, got %d", timeoutErr.Abandoned)
	}
	if got := bus.State(); got != pulsebus.StateStopped {
		t.Errorf("expected stopped state after timeout, got %s", got)
	}
	close(released)
}

func TestIdempotentShutdown(t *testing.T) {
	bus := pulsebus.New()

	if err := bus.Shutdown(time.Second); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := bus.Shutdown(time.Second); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
	if got := bus.State(); got != pulsebus.StateStopped {
		t.Errorf("expected stopped state, got %s", got)
	}
}

func TestCascadeReentrancy(t *testing.T) {
	bus := pulsebus.New(pulsebus.WithWorkers(1), pulsebus.WithQueueSize(1))

	// A chain of three stages; each republishes by returning a derived
	// event. With one worker and a tiny queue this only completes if
	// re-entrant publishes never block on the invoking unit.
	final := make(chan event.Event, 1)

	if _, err := bus.Subscribe([]event.Variant{event.VariantTelemetry},
		event.HandlerFunc(func(ctx context.Context, evt event.Event) ([]event.Event, error) {
			derived := event.NewFromParent(evt, event.VariantAnomalyDetected, "stage1",
				event.AnomalyDetected{Kind: event.AnomalyHighTemp, TriggerID: evt.ID()})
			return []event.Event{derived}, nil
		})); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := bus.Subscribe([]event.Variant{event.VariantAnomalyDetected},
		event.HandlerFunc(func(ctx context.Context, evt event.Event) ([]event.Event, error) {
			derived := event.NewFromParent(evt, event.VariantActionCommand, "stage2",
				event.ActionCommand{Type: event.ActionActivateCooling, Target: "A"})
			return []event.Event{derived}, nil
		})); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := bus.Subscribe([]event.Variant{event.VariantActionCommand},
		event.HandlerFunc(func(ctx context.Context, evt event.Event) ([]event.Event, error) {
			final <- evt
			return nil, nil
		})); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	root := telemetryEvent("A", 45)
	if err := bus.Publish(context.Background(), root); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case evt := <-final:
		if evt.CorrelationID() != root.ID() {
			t.Errorf("expected cascade correlation %s, got %s", root.ID(), evt.CorrelationID())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cascade did not complete")
	}

	if err := bus.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestCascadeDepthBounded(t *testing.T) {
	bus := pulsebus.New(pulsebus.WithMaxCascadeDepth(3))

	var invocations atomic.Int32
	done := make(chan struct{})

	// Republishes the same variant forever; the depth bound must stop it.
	if _, err := bus.Subscribe([]event.Variant{event.VariantTelemetry},
		event.HandlerFunc(func(ctx context.Context, evt event.Event) ([]event.Event, error) {
			if invocations.Add(1) >= 3 {
				select {
				case <-done:
				default:
					close(done)
				}
			}
			derived := event.NewFromParent(evt, event.VariantTelemetry, "loop",
				event.Telemetry{SensorID: "A"})
			return []event.Event{derived}, nil
		})); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(context.Background(), telemetryEvent("A", 20)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cascade never reached the depth bound")
	}

	if err := bus.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if got := invocations.Load(); got != 3 {
		t.Errorf("expected exactly 3 invocations under depth limit 3, got %d", got)
	}
}

func TestSubscribeValidation(t *testing.T) {
	bus := pulsebus.New()
	defer bus.Shutdown(time.Second)

	var regErr *pberrors.RegistrationError

	_, err := bus.Subscribe([]event.Variant{event.VariantTelemetry}, nil)
	if !errors.As(err, &regErr) {
		t.Errorf("expected RegistrationError for nil handler, got %v", err)
	}

	_, err = bus.Subscribe([]event.Variant{""}, event.HandlerFunc(func(ctx context.Context, evt event.Event) ([]event.Event, error) {
		return nil, nil
	}))
	if !errors.As(err, &regErr) {
		t.Errorf("expected RegistrationError for empty variant, got %v", err)
	}

	err = bus.Publish(context.Background(), nil)
	if !errors.As(err, &regErr) {
		t.Errorf("expected RegistrationError for nil event, got %v", err)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := pulsebus.New()

	var count atomic.Int32
	sub, err := bus.Subscribe([]event.Variant{event.VariantTelemetry}, countingHandler(&count))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sub.Unsubscribe()
	if got := bus.Subscribers(); got != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", got)
	}

	if err := bus.Publish(context.Background(), telemetryEvent("A", 20)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if got := count.Load(); got != 0 {
		t.Errorf("expected no deliveries after unsubscribe, got %d", got)
	}
}

func TestPauseResume(t *testing.T) {
	bus := pulsebus.New()

	var count atomic.Int32
	sub, err := bus.Subscribe([]event.Variant{event.VariantTelemetry}, countingHandler(&count))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sub.Pause()
	if !sub.IsPaused() {
		t.Fatal("expected subscription to be paused")
	}
	if err := bus.Publish(context.Background(), telemetryEvent("A", 20)); err != nil {
		t.Fatalf("publish while paused: %v", err)
	}

	sub.Resume()
	if sub.IsPaused() {
		t.Fatal("expected subscription to be resumed")
	}
	if err := bus.Publish(context.Background(), telemetryEvent("A", 21)); err != nil {
		t.Fatalf("publish after resume: %v", err)
	}

	if err := bus.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 delivery (paused publish skipped), got %d", got)
	}
}

func TestHandlerRetrySucceedsEventually(t *testing.T) {
	bus := pulsebus.New()

	var attempts atomic.Int32
	retry := pberrors.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		BackoffFactor:  2.0,
		RetryableFunc:  func(error) bool { return true },
	}

	if _, err := bus.Subscribe([]event.Variant{event.VariantTelemetry},
		event.HandlerFunc(func(ctx context.Context, evt event.Event) ([]event.Event, error) {
			if attempts.Add(1) < 3 {
				return nil, fmt.Errorf("transient failure")
			}
			return nil, nil
		}), pulsebus.WithRetry(retry)); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(context.Background(), telemetryEvent("A", 20)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := bus.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if got := attempts.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestQueueOverflowDoesNotBlockPublish(t *testing.T) {
	bus := pulsebus.New(pulsebus.WithWorkers(1), pulsebus.WithQueueSize(1))

	release := make(chan struct{})
	var count atomic.Int32

	if _, err := bus.Subscribe([]event.Variant{event.VariantTelemetry},
		event.HandlerFunc(func(ctx context.Context, evt event.Event) ([]event.Event, error) {
			<-release
			count.Add(1)
			return nil, nil
		})); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Far more publishes than worker+queue capacity; all must return
	// immediately.
	const total = 20
	publishDone := make(chan struct{})
	go func() {
		for i := 0; i < total; i++ {
			if err := bus.Publish(context.Background(), telemetryEvent("A", 20)); err != nil {
				t.Errorf("publish %d: %v", i, err)
			}
		}
		close(publishDone)
	}()

	select {
	case <-publishDone:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on full queue")
	}

	close(release)
	if err := bus.Shutdown(5 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if got := count.Load(); got != total {
		t.Errorf("expected %d deliveries, got %d", total, got)
	}
}
