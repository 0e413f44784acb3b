package pulsebus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cityloop/pulsebus/pkg/pulsebus/event"
	pberrors "github.com/cityloop/pulsebus/pkg/pulsebus/errors"
	"github.com/cityloop/pulsebus/pkg/pulsebus/observability"
)

// State is the broker lifecycle state.
type State int32

// Lifecycle states. Transitions are one-way:
// Running -> Draining -> Stopped.
const (
	StateRunning State = iota
	StateDraining
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// dispatch is one independent execution of a single handler against a
// single event.
type dispatch struct {
	sub   *Subscription
	evt   event.Event
	depth int
}

// Broker is the in-process publish/subscribe event broker.
//
// Publish resolves the matching handler set through a copy-on-write
// registry and schedules one independent dispatch unit per handler on a
// bounded worker pool. It returns as soon as submission completes and
// never waits for handler execution. Handler failures are isolated at
// the dispatch-unit boundary: logged, counted, optionally buffered in
// the dead-letter buffer, and never visible to the publisher or to
// sibling handlers.
//
// When the worker queue is full, the dispatch unit runs on a dedicated
// overflow goroutine instead of blocking the publisher. This also keeps
// re-entrant publishes from running handlers free of deadlock.
//
// Once Shutdown is called, Publish rejects new events with
// errors.ErrBrokerClosed. Events are never dropped silently.
type Broker struct {
	cfg      brokerConfig
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	registry *registry
	dlq      *DeadLetterBuffer

	state atomic.Int32

	// pubMu fences Publish against the state transition in Shutdown so
	// the in-flight WaitGroup never sees an Add after Wait began.
	pubMu    sync.RWMutex
	inflight sync.WaitGroup

	tasks   chan dispatch
	workers sync.WaitGroup
	stopCh  chan struct{}

	// baseCtx is the context handlers run under; cancelled when
	// stragglers are abandoned at shutdown.
	baseCtx context.Context
	cancel  context.CancelFunc

	running   atomic.Int64 // dispatch units currently executing
	nextSubID atomic.Uint64

	shutdownOnce sync.Once
	shutdownErr  error
	stopped      chan struct{}
}

// New creates a started broker. The returned broker is in the Running
// state; call Shutdown to drain and stop it.
func New(opts ...Option) *Broker {
	cfg := defaultBrokerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Broker{
		cfg:      cfg,
		logger:   cfg.logger,
		metrics:  cfg.metrics,
		spans:    cfg.spans,
		registry: newRegistry(),
		dlq:      cfg.dlq,
		tasks:    make(chan dispatch, cfg.queueSize),
		stopCh:   make(chan struct{}),
		baseCtx:  ctx,
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}

	b.workers.Add(cfg.workers)
	for i := 0; i < cfg.workers; i++ {
		go b.worker()
	}

	return b
}

// State returns the current lifecycle state.
func (b *Broker) State() State {
	return State(b.state.Load())
}

// Subscribers returns the number of active registrations.
func (b *Broker) Subscribers() int {
	return b.registry.count()
}

// DeadLetters returns the dead-letter buffer, or nil when disabled.
func (b *Broker) DeadLetters() *DeadLetterBuffer {
	return b.dlq
}

// Subscribe registers a handler for the given variants. A nil variant
// slice defers to handler.Handles(); if that is empty too, the handler
// receives every event. Registration is safe at any time, including
// concurrently with in-flight Publish calls.
func (b *Broker) Subscribe(variants []event.Variant, handler event.Handler, opts ...SubscribeOption) (*Subscription, error) {
	if handler == nil {
		return nil, &pberrors.RegistrationError{Reason: "nil handler"}
	}
	if b.State() == StateStopped {
		return nil, pberrors.ErrBrokerClosed
	}

	if variants == nil {
		variants = handler.Handles()
	}
	for _, v := range variants {
		if v == "" {
			return nil, &pberrors.RegistrationError{Reason: "empty variant identity"}
		}
		if v == event.Any {
			// The wildcard sentinel subsumes any explicit list.
			variants = nil
			break
		}
	}
	if len(variants) == 0 {
		variants = nil // wildcard
	}

	wrappedHandler := event.Chain(handler, b.cfg.middleware...)

	sub := &Subscription{
		id:       b.nextSubID.Add(1),
		variants: variants,
		handler:  wrappedHandler,
		name:     event.HandlerName(handler),
		retry:    b.cfg.retry,
		timeout:  b.cfg.handlerTimeout,
		broker:   b,
	}
	for _, opt := range opts {
		opt(sub)
	}

	b.registry.add(sub)
	return sub, nil
}

// SubscribeAll registers a handler for every event regardless of variant.
func (b *Broker) SubscribeAll(handler event.Handler, opts ...SubscribeOption) (*Subscription, error) {
	if handler == nil {
		return nil, &pberrors.RegistrationError{Reason: "nil handler"}
	}
	return b.Subscribe([]event.Variant{event.Any}, handler, opts...)
}

// Publish submits evt to every handler registered for its variant plus
// all wildcard handlers, then returns. It never blocks on handler
// execution. Handlers registered before the registry lookup are
// guaranteed to be included in the fan-out; a handler registered after
// the snapshot was taken is not.
//
// After Shutdown has been called, Publish returns
// errors.ErrBrokerClosed.
func (b *Broker) Publish(ctx context.Context, evt event.Event) error {
	if evt == nil {
		return &pberrors.RegistrationError{Reason: "nil event"}
	}

	depth := cascadeDepth(ctx)
	if depth >= b.cfg.maxCascadeDepth {
		err := &pberrors.CascadeDepthError{
			EventID:  evt.ID(),
			Depth:    depth,
			MaxDepth: b.cfg.maxCascadeDepth,
		}
		observability.LogCascadeRejected(b.logger, evt.ID(), depth, b.cfg.maxCascadeDepth)
		b.metrics.RecordPublish(ctx, evt.Variant().String(), false)
		return err
	}

	b.pubMu.RLock()
	defer b.pubMu.RUnlock()

	if b.State() != StateRunning {
		observability.LogPublishRejected(b.logger, evt.ID(), evt.Variant().String(), b.State().String())
		b.metrics.RecordPublish(ctx, evt.Variant().String(), false)
		return pberrors.ErrBrokerClosed
	}

	ctx, span := b.spans.StartPublishSpan(ctx, evt.Variant().String(), evt.ID())
	defer b.spans.EndSpanWithError(span, nil)

	subs := b.registry.resolve(evt.Variant())
	span.SetAttributes(attribute.Int("fanout", len(subs)))

	for _, sub := range subs {
		if sub.paused.Load() {
			continue
		}

		b.inflight.Add(1)
		unit := dispatch{sub: sub, evt: evt, depth: depth}

		select {
		case b.tasks <- unit:
		default:
			// Queue full: run on a dedicated goroutine rather than
			// block the publisher or deadlock a cascading handler.
			observability.LogQueueOverflow(b.logger, evt.ID(), evt.Variant().String())
			b.metrics.RecordOverflow(ctx, evt.Variant().String())
			go b.runUnit(unit)
		}
	}

	b.metrics.RecordPublish(ctx, evt.Variant().String(), true)
	return nil
}

// Shutdown transitions the broker to Draining, waits up to grace for
// already-submitted dispatch units to finish, abandons the remainder,
// and transitions to Stopped. It is idempotent: repeated calls return
// the first call's outcome after the broker has stopped.
func (b *Broker) Shutdown(grace time.Duration) error {
	b.shutdownOnce.Do(func() {
		b.pubMu.Lock()
		b.state.Store(int32(StateDraining))
		b.pubMu.Unlock()

		close(b.stopCh)

		drained := make(chan struct{})
		go func() {
			b.inflight.Wait()
			close(drained)
		}()

		select {
		case <-drained:
		case <-time.After(grace):
			abandoned := b.running.Load()
			observability.LogShutdownTimeout(b.logger, abandoned, grace)
			b.metrics.RecordAbandoned(context.Background(), abandoned)
			b.shutdownErr = &pberrors.ShutdownTimeoutError{Abandoned: abandoned, Grace: grace}
		}

		// Cancel the handler context so abandoned units observe the stop.
		b.cancel()
		b.state.Store(int32(StateStopped))
		close(b.stopped)
	})

	<-b.stopped
	return b.shutdownErr
}

// worker drains the task queue until shutdown, then finishes whatever is
// already queued.
func (b *Broker) worker() {
	defer b.workers.Done()
	for {
		select {
		case unit := <-b.tasks:
			b.runUnit(unit)
		case <-b.stopCh:
			for {
				select {
				case unit := <-b.tasks:
					b.runUnit(unit)
				default:
					return
				}
			}
		}
	}
}

// runUnit executes one dispatch unit: one handler against one event,
// with panic recovery, optional retry and timeout, and republication of
// derived events. Failures never escape this function.
func (b *Broker) runUnit(unit dispatch) {
	defer b.inflight.Done()

	b.running.Add(1)
	defer b.running.Add(-1)

	// Handlers run under the broker's context, not the publisher's:
	// the publisher has already returned.
	ctx := withCascadeDepth(b.baseCtx, unit.depth+1)

	variant := unit.evt.Variant().String()
	ctx, span := b.spans.StartDispatchSpan(ctx, unit.sub.name, variant, unit.evt.ID())

	if unit.sub.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, unit.sub.timeout)
		defer cancel()
	}

	start := time.Now()
	result := pberrors.WithRetryContext(ctx, unit.sub.retry, func(ctx context.Context) ([]event.Event, error) {
		return b.invoke(ctx, unit.sub.handler, unit.evt)
	})
	duration := time.Since(start)

	// Failures are contained here: logged and counted, never re-raised
	// to the publisher or to sibling handlers.
	var dispatchErr error
	if result.Err != nil {
		dispatchErr = &pberrors.DispatchError{
			Handler:      unit.sub.name,
			EventID:      unit.evt.ID(),
			EventVariant: variant,
			Err:          result.Err,
			Timestamp:    time.Now(),
		}
	}

	b.metrics.RecordDispatch(ctx, variant, unit.sub.name, duration, dispatchErr)
	b.spans.EndSpanWithError(span, dispatchErr)

	if dispatchErr != nil {
		observability.LogDispatchError(b.logger, unit.sub.name, unit.evt.ID(), variant, result.Err)
		if b.dlq != nil {
			b.dlq.Add(NewFailedDispatch(unit.evt, unit.sub.name, result.Err, result.Attempts))
		}
		return
	}

	// Cascade: feed derived events back through the same pipeline.
	for _, derived := range result.Value {
		if derived == nil {
			continue
		}
		if err := b.Publish(ctx, derived); err != nil {
			if !errors.Is(err, pberrors.ErrBrokerClosed) {
				observability.LogDispatchError(b.logger, unit.sub.name, derived.ID(), derived.Variant().String(), err)
			}
		}
	}
}

// invoke calls the handler with panic containment.
func (b *Broker) invoke(ctx context.Context, h event.Handler, evt event.Event) (derived []event.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pberrors.Permanent(
				fmt.Errorf("handler panic: %v", r),
				"dispatch",
			)
		}
	}()
	return h.Handle(ctx, evt)
}

// Context key for cascade depth tracking.
type contextKey string

const cascadeDepthKey contextKey = "cascade_depth"

func cascadeDepth(ctx context.Context) int {
	if v := ctx.Value(cascadeDepthKey); v != nil {
		return v.(int)
	}
	return 0
}

func withCascadeDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, cascadeDepthKey, depth)
}
