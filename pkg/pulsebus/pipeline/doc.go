// Package pipeline implements the reactive dataflow on top of the
// broker: detectors derive anomalies from raw telemetry, controllers
// derive action commands from anomalies, and terminal consumers apply
// them.
//
// Every component is simultaneously a consumer (a registered handler)
// and a producer (it returns derived events from Handle, which the
// broker republishes). No component holds a reference to another; all
// coupling is through variant subscriptions:
//
//	telemetry -> Detector -> AnomalyDetected -> Controller -> ActionCommand -> ActuatorSink
//	                                        \-> Alerter    -> PublicAlert
//
// The HealthMonitor observes every variant and periodically publishes
// per-source HealthStatus summaries.
package pipeline
