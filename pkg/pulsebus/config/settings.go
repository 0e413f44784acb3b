package config

import (
	"time"
)

// BrokerSettings are the broker tunables read from the "broker" section.
type BrokerSettings struct {
	Workers         int
	QueueSize       int
	MaxCascadeDepth int
	ShutdownGrace   time.Duration
	DeadLetterSize  int
}

// DefaultBrokerSettings mirror the broker's built-in defaults.
var DefaultBrokerSettings = BrokerSettings{
	Workers:         0, // 0 means runtime.NumCPU()
	QueueSize:       256,
	MaxCascadeDepth: 10,
	ShutdownGrace:   5 * time.Second,
	DeadLetterSize:  1024,
}

// Broker extracts broker settings from the "broker" section.
func (c Config) Broker() BrokerSettings {
	s := c.Section("broker")
	return BrokerSettings{
		Workers:         s.Int("workers", DefaultBrokerSettings.Workers),
		QueueSize:       s.Int("queue_size", DefaultBrokerSettings.QueueSize),
		MaxCascadeDepth: s.Int("max_cascade_depth", DefaultBrokerSettings.MaxCascadeDepth),
		ShutdownGrace:   s.Duration("shutdown_grace", DefaultBrokerSettings.ShutdownGrace),
		DeadLetterSize:  s.Int("dead_letter_size", DefaultBrokerSettings.DeadLetterSize),
	}
}

// DetectorSettings are the threshold rules read from the "detector"
// section.
type DetectorSettings struct {
	HighTempC             float64
	CriticalTempC         float64
	CongestionVehicles    int
	CongestionMaxSpeedKmh float64
	PowerOverloadKw       float64
}

// DefaultDetectorSettings mirror the detector's built-in thresholds.
var DefaultDetectorSettings = DetectorSettings{
	HighTempC:             40,
	CriticalTempC:         55,
	CongestionVehicles:    50,
	CongestionMaxSpeedKmh: 15,
	PowerOverloadKw:       900,
}

// Detector extracts detector thresholds from the "detector" section.
func (c Config) Detector() DetectorSettings {
	s := c.Section("detector")
	return DetectorSettings{
		HighTempC:             s.Float("high_temp_c", DefaultDetectorSettings.HighTempC),
		CriticalTempC:         s.Float("critical_temp_c", DefaultDetectorSettings.CriticalTempC),
		CongestionVehicles:    s.Int("congestion_vehicles", DefaultDetectorSettings.CongestionVehicles),
		CongestionMaxSpeedKmh: s.Float("congestion_max_speed_kmh", DefaultDetectorSettings.CongestionMaxSpeedKmh),
		PowerOverloadKw:       s.Float("power_overload_kw", DefaultDetectorSettings.PowerOverloadKw),
	}
}
