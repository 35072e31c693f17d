package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `mqtt:
  enabled: true
  broker: "tcp://localhost:1883"
  client_id: "stationd"
  qos: 1
station:
  staging_capacity: 6
  pile_queue_length: 2
  monitor_interval_seconds: 30
tariff:
  peak_rate: 1.2
  service_rate: 0.9
metrics:
  prometheus_enabled: true
  prometheus_port: ":9100"
history:
  backend: "sqlite"
  path: "sessions.db"
fault_strategy: "time_order"
piles:
  - id: "F01"
    mode: "fast"
    power: 30
  - id: "T01"
    mode: "trickle"
    power: 7
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"mqtt.broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"mqtt.qos", cfg.MQTT.QoS, 1},
		{"station.staging_capacity", cfg.Station.StagingCapacity, 6},
		{"station.pile_queue_length", cfg.Station.PileQueueLength, 2},
		{"station.monitor_interval_seconds", cfg.Station.MonitorIntervalSeconds, 30},
		{"tariff.peak_rate", cfg.Tariff.PeakRate, 1.2},
		{"tariff.normal_rate_default", cfg.Tariff.NormalRate, 0.7},
		{"tariff.service_rate", cfg.Tariff.ServiceRate, 0.9},
		{"metrics.prometheus_port", cfg.Metrics.PrometheusPort, ":9100"},
		{"history.backend", cfg.History.Backend, "sqlite"},
		{"fault_strategy", cfg.FaultStrategy, "time_order"},
		{"piles", len(cfg.Piles), 2},
		{"pile_power", cfg.Piles[1].Power, 7.0},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadDefaultsPiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("station:\n  staging_capacity: 10\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if len(cfg.Piles) != 5 {
		t.Fatalf("expected default pile layout, got %d piles", len(cfg.Piles))
	}
	if cfg.Piles[0].ID != "F01" || cfg.Piles[0].Power != 30 {
		t.Errorf("first default pile: %+v", cfg.Piles[0])
	}
	if cfg.FaultStrategy != "priority" {
		t.Errorf("default fault strategy: %s", cfg.FaultStrategy)
	}
}

func TestLoadRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"bad_strategy.yaml": "fault_strategy: \"bogus\"\n",
		"dup_pile.yaml":     "piles:\n  - id: \"F01\"\n    mode: \"fast\"\n    power: 30\n  - id: \"F01\"\n    mode: \"fast\"\n    power: 30\n",
		"bad_mode.yaml":     "piles:\n  - id: \"X01\"\n    mode: \"turbo\"\n    power: 30\n",
	}
	for name, data := range cases {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if _, err := Load(path); err == nil {
			t.Errorf("%s should fail to load", name)
		}
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	if _, err := Load("config.toml"); err == nil {
		t.Error("unsupported format should fail")
	}
}
