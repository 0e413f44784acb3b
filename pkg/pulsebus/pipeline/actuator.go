package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cityloop/pulsebus/pkg/pulsebus/event"
)

// Actuator applies an action command to a physical device or subsystem.
// The broker-facing sink wraps it; the side effect itself is out of
// scope here.
type Actuator interface {
	Apply(ctx context.Context, cmd event.ActionCommand) error
}

// ActuatorSink is the terminal consumer for ActionCommand events. It
// derives nothing: the cascade ends here.
type ActuatorSink struct {
	actuator Actuator
	logger   *slog.Logger
}

// NewActuatorSink creates a sink applying commands through actuator.
func NewActuatorSink(actuator Actuator, logger *slog.Logger) *ActuatorSink {
	return &ActuatorSink{actuator: actuator, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (s *ActuatorSink) Name() string { return "pipeline.ActuatorSink" }

// Handles returns the action command variant.
func (s *ActuatorSink) Handles() []event.Variant {
	return []event.Variant{event.VariantActionCommand}
}

// Handle implements event.Handler.
func (s *ActuatorSink) Handle(ctx context.Context, evt event.Event) ([]event.Event, error) {
	cmd, ok := evt.Data().(event.ActionCommand)
	if !ok {
		return nil, &event.PayloadError{EventID: evt.ID(), EventVariant: evt.Variant()}
	}

	if err := s.actuator.Apply(ctx, cmd); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Debug("command applied",
			slog.String("type", string(cmd.Type)),
			slog.String("target", cmd.Target),
		)
	}
	return nil, nil
}

// SimulatedActuator records applied commands in memory. It stands in
// for real device integrations in examples and tests.
type SimulatedActuator struct {
	mu      sync.Mutex
	applied []event.ActionCommand
}

// NewSimulatedActuator creates an empty simulated actuator.
func NewSimulatedActuator() *SimulatedActuator {
	return &SimulatedActuator{}
}

// Apply implements Actuator.
func (a *SimulatedActuator) Apply(_ context.Context, cmd event.ActionCommand) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, cmd)
	return nil
}

// Applied returns a copy of all applied commands, oldest first.
func (a *SimulatedActuator) Applied() []event.ActionCommand {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]event.ActionCommand(nil), a.applied...)
}
