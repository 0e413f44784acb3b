package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessorsWithDefaults(t *testing.T) {
	cfg := New(map[string]any{
		"name":    "pulsebus",
		"enabled": true,
		"workers": 8,
		"ratio":   0.75,
		"grace":   "2s",
		"tags":    []any{"a", "b"},
	})

	assert.Equal(t, "pulsebus", cfg.String("name", "fallback"))
	assert.Equal(t, "fallback", cfg.String("missing", "fallback"))
	assert.Equal(t, "fallback", cfg.String("workers", "fallback"))

	assert.True(t, cfg.Bool("enabled", false))
	assert.False(t, cfg.Bool("missing", false))

	assert.Equal(t, 8, cfg.Int("workers", 1))
	assert.Equal(t, 1, cfg.Int("ratio", 1)) // fractional float rejected

	assert.Equal(t, 0.75, cfg.Float("ratio", 0))
	assert.Equal(t, 8.0, cfg.Float("workers", 0))

	assert.Equal(t, 2*time.Second, cfg.Duration("grace", time.Minute))
	assert.Equal(t, time.Minute, cfg.Duration("missing", time.Minute))

	assert.Equal(t, []string{"a", "b"}, cfg.StringSlice("tags", nil))
	assert.Equal(t, []string{"x"}, cfg.StringSlice("missing", []string{"x"}))

	assert.True(t, cfg.Has("name"))
	assert.False(t, cfg.Has("missing"))
}

func TestIntFromFloatAndInt64(t *testing.T) {
	cfg := New(map[string]any{
		"from_json":  float64(42), // encoding/json decodes numbers as float64
		"from_int64": int64(7),
	})

	assert.Equal(t, 42, cfg.Int("from_json", 0))
	assert.Equal(t, 7, cfg.Int("from_int64", 0))
}

func TestDurationFromNumberIsSeconds(t *testing.T) {
	cfg := New(map[string]any{
		"int_secs":   5,
		"float_secs": 1.5,
	})

	assert.Equal(t, 5*time.Second, cfg.Duration("int_secs", 0))
	assert.Equal(t, 1500*time.Millisecond, cfg.Duration("float_secs", 0))
}

func TestSectionNavigation(t *testing.T) {
	cfg := New(map[string]any{
		"broker": map[string]any{
			"workers": 4,
		},
		"not_a_map": "scalar",
	})

	assert.Equal(t, 4, cfg.Section("broker").Int("workers", 0))
	assert.Equal(t, 0, cfg.Section("missing").Int("workers", 0))
	assert.Equal(t, 0, cfg.Section("not_a_map").Int("workers", 0))
}

func TestNilConfigIsEmpty(t *testing.T) {
	cfg := New(nil)
	assert.Equal(t, "fallback", cfg.String("anything", "fallback"))
	assert.NotNil(t, cfg.Raw())
}

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(`
broker:
  workers: 4
  queue_size: 64
  max_cascade_depth: 5
  shutdown_grace: 10s
detector:
  high_temp_c: 38.5
  congestion_vehicles: 30
`))
	require.NoError(t, err)

	broker := cfg.Broker()
	assert.Equal(t, 4, broker.Workers)
	assert.Equal(t, 64, broker.QueueSize)
	assert.Equal(t, 5, broker.MaxCascadeDepth)
	assert.Equal(t, 10*time.Second, broker.ShutdownGrace)
	assert.Equal(t, DefaultBrokerSettings.DeadLetterSize, broker.DeadLetterSize)

	detector := cfg.Detector()
	assert.Equal(t, 38.5, detector.HighTempC)
	assert.Equal(t, 30, detector.CongestionVehicles)
	assert.Equal(t, DefaultDetectorSettings.PowerOverloadKw, detector.PowerOverloadKw)
}

func TestFromYAMLInvalid(t *testing.T) {
	_, err := FromYAML([]byte("{not yaml: ["))
	assert.Error(t, err)
}

func TestFromJSON(t *testing.T) {
	cfg, err := FromJSON([]byte(`{"broker": {"workers": 2}, "detector": {"power_overload_kw": 750}}`))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Broker().Workers)
	assert.Equal(t, 750.0, cfg.Detector().PowerOverloadKw)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("broker:\n  workers: 3\n"), 0o644))

	cfg, err := FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Broker().Workers)

	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"broker": {"workers": 6}}`), 0o644))

	cfg, err = FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Broker().Workers)

	_, err = FromFile(filepath.Join(dir, "config.toml"))
	assert.Error(t, err)

	_, err = FromFile(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultsWhenSectionsAbsent(t *testing.T) {
	cfg := New(nil)

	assert.Equal(t, DefaultBrokerSettings, cfg.Broker())
	assert.Equal(t, DefaultDetectorSettings, cfg.Detector())
}
