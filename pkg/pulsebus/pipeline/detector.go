package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cityloop/pulsebus/pkg/pulsebus/config"
	"github.com/cityloop/pulsebus/pkg/pulsebus/event"
)

// Thresholds are the stateless detector rules. Zero values fall back to
// the defaults at construction.
type Thresholds struct {
	// HighTempC fires a high-temperature anomaly above this reading.
	HighTempC float64

	// CriticalTempC escalates a high-temperature anomaly to critical.
	CriticalTempC float64

	// CongestionVehicles and CongestionMaxSpeedKmh together fire a
	// congestion anomaly: at least this many vehicles moving at most
	// this fast.
	CongestionVehicles    int
	CongestionMaxSpeedKmh float64

	// PowerOverloadKw fires a power-overload anomaly above this load.
	PowerOverloadKw float64
}

// DefaultThresholds are used where Thresholds fields are zero.
var DefaultThresholds = Thresholds{
	HighTempC:             40,
	CriticalTempC:         55,
	CongestionVehicles:    50,
	CongestionMaxSpeedKmh: 15,
	PowerOverloadKw:       900,
}

// ThresholdsFrom converts loaded detector settings into Thresholds.
func ThresholdsFrom(s config.DetectorSettings) Thresholds {
	return Thresholds{
		HighTempC:             s.HighTempC,
		CriticalTempC:         s.CriticalTempC,
		CongestionVehicles:    s.CongestionVehicles,
		CongestionMaxSpeedKmh: s.CongestionMaxSpeedKmh,
		PowerOverloadKw:       s.PowerOverloadKw,
	}
}

// Detector subscribes to the raw telemetry variants and applies one
// stateless threshold rule per received event. When a rule fires it
// derives exactly one AnomalyDetected event referencing the trigger.
type Detector struct {
	thresholds Thresholds
	logger     *slog.Logger
}

// NewDetector creates a detector with the given thresholds. Zero-value
// threshold fields fall back to DefaultThresholds.
func NewDetector(thresholds Thresholds, logger *slog.Logger) *Detector {
	if thresholds.HighTempC == 0 {
		thresholds.HighTempC = DefaultThresholds.HighTempC
	}
	if thresholds.CriticalTempC == 0 {
		thresholds.CriticalTempC = DefaultThresholds.CriticalTempC
	}
	if thresholds.CongestionVehicles == 0 {
		thresholds.CongestionVehicles = DefaultThresholds.CongestionVehicles
	}
	if thresholds.CongestionMaxSpeedKmh == 0 {
		thresholds.CongestionMaxSpeedKmh = DefaultThresholds.CongestionMaxSpeedKmh
	}
	if thresholds.PowerOverloadKw == 0 {
		thresholds.PowerOverloadKw = DefaultThresholds.PowerOverloadKw
	}
	return &Detector{thresholds: thresholds, logger: logger}
}

// Name identifies the detector in logs and metrics.
func (d *Detector) Name() string { return "pipeline.Detector" }

// Handles returns the raw telemetry variants.
func (d *Detector) Handles() []event.Variant {
	return event.TelemetryVariants()
}

// Handle implements event.Handler. At most one anomaly is derived per
// received event.
func (d *Detector) Handle(_ context.Context, evt event.Event) ([]event.Event, error) {
	anomaly, fired := d.inspect(evt)
	if !fired {
		return nil, nil
	}

	if d.logger != nil {
		d.logger.Info("anomaly detected",
			slog.String("kind", string(anomaly.Kind)),
			slog.String("subject", anomaly.Subject),
			slog.String("severity", string(anomaly.Severity)),
			slog.String("trigger_id", anomaly.TriggerID),
		)
	}

	return []event.Event{
		event.NewFromParent(evt, event.VariantAnomalyDetected, "detector", anomaly),
	}, nil
}

// inspect applies the rule for the event's variant.
func (d *Detector) inspect(evt event.Event) (event.AnomalyDetected, bool) {
	switch payload := evt.Data().(type) {
	case event.Telemetry:
		if payload.Temperature <= d.thresholds.HighTempC {
			return event.AnomalyDetected{}, false
		}
		severity := event.SeverityWarning
		if payload.Temperature > d.thresholds.CriticalTempC {
			severity = event.SeverityCritical
		}
		return event.AnomalyDetected{
			Kind:      event.AnomalyHighTemp,
			TriggerID: evt.ID(),
			Subject:   payload.SensorID,
			Severity:  severity,
			Reason: fmt.Sprintf("temperature %.1fC exceeds threshold %.1fC",
				payload.Temperature, d.thresholds.HighTempC),
		}, true

	case event.TrafficSample:
		if payload.VehicleCount < d.thresholds.CongestionVehicles ||
			payload.AvgSpeedKmh > d.thresholds.CongestionMaxSpeedKmh {
			return event.AnomalyDetected{}, false
		}
		return event.AnomalyDetected{
			Kind:      event.AnomalyCongestion,
			TriggerID: evt.ID(),
			Subject:   payload.CameraID,
			Severity:  event.SeverityWarning,
			Reason: fmt.Sprintf("%d vehicles at %.1f km/h",
				payload.VehicleCount, payload.AvgSpeedKmh),
		}, true

	case event.PowerSample:
		if payload.LoadKw <= d.thresholds.PowerOverloadKw {
			return event.AnomalyDetected{}, false
		}
		return event.AnomalyDetected{
			Kind:      event.AnomalyPowerOverload,
			TriggerID: evt.ID(),
			Subject:   payload.MeterID,
			Severity:  event.SeverityCritical,
			Reason: fmt.Sprintf("load %.1f kW exceeds threshold %.1f kW",
				payload.LoadKw, d.thresholds.PowerOverloadKw),
		}, true

	case event.EmergencyCall:
		// Every emergency call is an anomaly by definition.
		return event.AnomalyDetected{
			Kind:      event.AnomalyEmergency,
			TriggerID: evt.ID(),
			Subject:   payload.District,
			Severity:  event.SeverityCritical,
			Reason:    fmt.Sprintf("emergency call: %s", payload.Category),
		}, true
	}

	return event.AnomalyDetected{}, false
}
