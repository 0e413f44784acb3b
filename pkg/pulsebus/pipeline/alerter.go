package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cityloop/pulsebus/pkg/pulsebus/event"
)

// Alerter subscribes to AnomalyDetected and derives a citizen-facing
// PublicAlert for anomalies at or above its minimum severity.
type Alerter struct {
	minSeverity event.Severity
	logger      *slog.Logger
}

// NewAlerter creates an alerter. An empty minSeverity defaults to
// critical-only alerts.
func NewAlerter(minSeverity event.Severity, logger *slog.Logger) *Alerter {
	if minSeverity == "" {
		minSeverity = event.SeverityCritical
	}
	return &Alerter{minSeverity: minSeverity, logger: logger}
}

// Name identifies the alerter in logs and metrics.
func (a *Alerter) Name() string { return "pipeline.Alerter" }

// Handles returns the anomaly variant.
func (a *Alerter) Handles() []event.Variant {
	return []event.Variant{event.VariantAnomalyDetected}
}

// Handle implements event.Handler.
func (a *Alerter) Handle(_ context.Context, evt event.Event) ([]event.Event, error) {
	anomaly, ok := evt.Data().(event.AnomalyDetected)
	if !ok {
		return nil, &event.PayloadError{EventID: evt.ID(), EventVariant: evt.Variant()}
	}

	if !severityAtLeast(anomaly.Severity, a.minSeverity) {
		return nil, nil
	}

	alert := event.PublicAlert{
		District: anomaly.Subject,
		Message:  fmt.Sprintf("%s: %s", anomaly.Kind, anomaly.Reason),
		Severity: anomaly.Severity,
	}

	if a.logger != nil {
		a.logger.Info("publishing public alert",
			slog.String("district", alert.District),
			slog.String("severity", string(alert.Severity)),
		)
	}

	return []event.Event{
		event.NewFromParent(evt, event.VariantPublicAlert, "alerter", alert),
	}, nil
}

// severityAtLeast orders info < warning < critical.
func severityAtLeast(s, min event.Severity) bool {
	return severityRank(s) >= severityRank(min)
}

func severityRank(s event.Severity) int {
	switch s {
	case event.SeverityCritical:
		return 2
	case event.SeverityWarning:
		return 1
	default:
		return 0
	}
}
