package event

// Variant is the closed tag identifying an event's payload shape.
type Variant string

// The variant set. Raw telemetry variants are produced by collectors;
// the remaining variants are derived inside the pipeline.
const (
	VariantTelemetry      Variant = "telemetry"
	VariantTrafficSample  Variant = "traffic.sample"
	VariantPowerSample    Variant = "power.sample"
	VariantEmergencyCall  Variant = "emergency.call"
	VariantAnomalyDetected Variant = "anomaly.detected"
	VariantActionCommand  Variant = "action.command"
	VariantPublicAlert    Variant = "public.alert"
	VariantHealthStatus   Variant = "health.status"
)

// Any is the wildcard sentinel: a handler subscribed to Any receives
// every event regardless of variant.
const Any Variant = "*"

// Variants returns the full set of concrete variants (excluding Any).
func Variants() []Variant {
	return []Variant{
		VariantTelemetry,
		VariantTrafficSample,
		VariantPowerSample,
		VariantEmergencyCall,
		VariantAnomalyDetected,
		VariantActionCommand,
		VariantPublicAlert,
		VariantHealthStatus,
	}
}

// TelemetryVariants returns the raw telemetry variants consumed by detectors.
func TelemetryVariants() []Variant {
	return []Variant{
		VariantTelemetry,
		VariantTrafficSample,
		VariantPowerSample,
		VariantEmergencyCall,
	}
}

// String returns the variant tag.
func (v Variant) String() string { return string(v) }

// Severity grades derived anomalies and alerts.
type Severity string

// Severity levels, ordered from least to most urgent.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AnomalyKind identifies the rule that fired.
type AnomalyKind string

// Anomaly kinds emitted by the built-in detector rules.
const (
	AnomalyHighTemp      AnomalyKind = "high_temp"
	AnomalyCongestion    AnomalyKind = "congestion"
	AnomalyPowerOverload AnomalyKind = "power_overload"
	AnomalyEmergency     AnomalyKind = "emergency"
)

// ActionType identifies the command a controller issues to a device or
// subsystem.
type ActionType string

// Action types understood by actuator-facing consumers.
const (
	ActionActivateCooling  ActionType = "activate_cooling"
	ActionAdjustSignals    ActionType = "adjust_signals"
	ActionShedLoad         ActionType = "shed_load"
	ActionDispatchResponse ActionType = "dispatch_response"
)

// Telemetry is an environmental sensor reading.
type Telemetry struct {
	SensorID    string  `json:"sensor_id"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// TrafficSample is a traffic camera measurement for one intersection.
type TrafficSample struct {
	CameraID     string  `json:"camera_id"`
	VehicleCount int     `json:"vehicle_count"`
	AvgSpeedKmh  float64 `json:"avg_speed_kmh"`
}

// PowerSample is a grid meter reading.
type PowerSample struct {
	MeterID  string  `json:"meter_id"`
	LoadKw   float64 `json:"load_kw"`
	VoltageV float64 `json:"voltage_v"`
}

// EmergencyCall is an incoming emergency service call.
type EmergencyCall struct {
	CallerID string `json:"caller_id"`
	District string `json:"district"`
	Category string `json:"category"`
}

// AnomalyDetected is derived by a detector when a rule fires. TriggerID
// references the event that tripped the rule.
type AnomalyDetected struct {
	Kind      AnomalyKind `json:"kind"`
	TriggerID string      `json:"trigger_id"`
	Subject   string      `json:"subject"`
	Severity  Severity    `json:"severity"`
	Reason    string      `json:"reason"`
}

// ActionCommand instructs a named device or subsystem to act.
type ActionCommand struct {
	Type       ActionType        `json:"type"`
	Target     string            `json:"target"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// PublicAlert is a citizen-facing notification for a district.
type PublicAlert struct {
	District string   `json:"district"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// HealthStatus summarizes observed event flow for one source over a window.
type HealthStatus struct {
	Component  string `json:"component"`
	Healthy    bool   `json:"healthy"`
	EventCount int    `json:"event_count"`
	WindowSecs int    `json:"window_secs"`
}
