/*
Package pulsebus provides an in-process, asynchronous publish/subscribe
event broker and the reactive dataflow primitives built on top of it.

# Overview

Typed telemetry events flow in, rule-based detectors derive anomaly
events, and downstream services derive action events - a directed graph
of producers and consumers decoupled entirely through the broker.
Producers call only Publish; consumers register handlers for the event
variants they care about. No component holds a reference to another.

The broker is single-process and in-memory. Delivery is best-effort
fire-and-forget: Publish returns as soon as dispatch units are
submitted, handlers run concurrently on a bounded worker pool, and a
failing handler never affects its siblings or the publisher.

# Basic Usage

	bus := pulsebus.New(
	    pulsebus.WithWorkers(8),
	    pulsebus.WithLogger(slog.Default()),
	)

	sub, err := bus.Subscribe([]event.Variant{event.VariantTelemetry},
	    event.HandlerFunc(func(ctx context.Context, evt event.Event) ([]event.Event, error) {
	        // react, optionally return derived events
	        return nil, nil
	    }))
	if err != nil {
	    log.Fatal(err)
	}
	defer sub.Unsubscribe()

	evt := event.New(event.VariantTelemetry, "sensor",
	    event.Telemetry{SensorID: "A", Temperature: 22.5})
	if err := bus.Publish(ctx, evt); err != nil {
	    log.Fatal(err)
	}

	// Drain in-flight work before exiting.
	bus.Shutdown(5 * time.Second)

# Guarantees

  - Every handler resolved at lookup time is invoked exactly once per
    published event, eventually, unless the broker stops first.
  - No ordering between handlers of one event, nor between events from
    different producers.
  - Handler errors and panics are contained at the dispatch-unit
    boundary and reported through logging, metrics, and the optional
    dead-letter buffer.
  - After Shutdown, Publish rejects events with errors.ErrBrokerClosed;
    nothing is dropped silently.

# Cascades

Handlers may return derived events from Handle; the broker republishes
them through the same pipeline. A per-event depth counter carried in
context bounds cascade recursion (WithMaxCascadeDepth); re-entrant
publishes never block on the unit that invoked them.

See the pipeline package for the detector/controller dataflow built on
these primitives, and the journal package for the optional event audit
trail.
*/
package pulsebus
