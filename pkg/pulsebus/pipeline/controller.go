package pipeline

import (
	"context"
	"log/slog"

	"github.com/cityloop/pulsebus/pkg/pulsebus/event"
)

// Controller subscribes to AnomalyDetected and derives zero or more
// ActionCommand events targeted at the affected device or subsystem,
// based on the anomaly kind.
type Controller struct {
	logger *slog.Logger
}

// NewController creates a controller.
func NewController(logger *slog.Logger) *Controller {
	return &Controller{logger: logger}
}

// Name identifies the controller in logs and metrics.
func (c *Controller) Name() string { return "pipeline.Controller" }

// Handles returns the anomaly variant.
func (c *Controller) Handles() []event.Variant {
	return []event.Variant{event.VariantAnomalyDetected}
}

// Handle implements event.Handler.
func (c *Controller) Handle(_ context.Context, evt event.Event) ([]event.Event, error) {
	anomaly, ok := evt.Data().(event.AnomalyDetected)
	if !ok {
		return nil, &event.PayloadError{EventID: evt.ID(), EventVariant: evt.Variant()}
	}

	commands := c.commandsFor(anomaly)
	if len(commands) == 0 {
		return nil, nil
	}

	derived := make([]event.Event, 0, len(commands))
	for _, cmd := range commands {
		if c.logger != nil {
			c.logger.Info("issuing action command",
				slog.String("type", string(cmd.Type)),
				slog.String("target", cmd.Target),
				slog.String("anomaly_kind", string(anomaly.Kind)),
			)
		}
		derived = append(derived, event.NewFromParent(evt, event.VariantActionCommand, "controller", cmd))
	}
	return derived, nil
}

// commandsFor maps an anomaly kind to its remediation commands.
// Unknown kinds produce none.
func (c *Controller) commandsFor(anomaly event.AnomalyDetected) []event.ActionCommand {
	switch anomaly.Kind {
	case event.AnomalyHighTemp:
		return []event.ActionCommand{{
			Type:   event.ActionActivateCooling,
			Target: anomaly.Subject,
		}}

	case event.AnomalyCongestion:
		return []event.ActionCommand{{
			Type:   event.ActionAdjustSignals,
			Target: anomaly.Subject,
			Parameters: map[string]string{
				"mode": "flow_priority",
			},
		}}

	case event.AnomalyPowerOverload:
		// Shed non-essential load and rebalance around the meter.
		return []event.ActionCommand{
			{
				Type:   event.ActionShedLoad,
				Target: anomaly.Subject,
				Parameters: map[string]string{
					"priority": "non_essential",
				},
			},
		}

	case event.AnomalyEmergency:
		return []event.ActionCommand{{
			Type:   event.ActionDispatchResponse,
			Target: anomaly.Subject,
			Parameters: map[string]string{
				"reason": anomaly.Reason,
			},
		}}
	}

	return nil
}
