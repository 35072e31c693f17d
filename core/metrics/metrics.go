package metrics

import "time"

// SessionRecord is a finalized charging session to be recorded for
// observability purposes.
type SessionRecord struct {
	TicketNumber   string
	RecordNumber   string
	PileID         string
	UserID         string
	VehicleID      string
	Mode           string
	Band           string
	RequestedKWh   float64
	DeliveredKWh   float64
	DurationHours  float64
	ElectricityFee float64
	ServiceFee     float64
	TotalFee       float64
	Reason         string
	StartedAt      time.Time
	EndedAt        time.Time
}

// MetricsSink records finalized sessions.
type MetricsSink interface {
	RecordSession(rec SessionRecord) error
}

// NopSink discards all records.
type NopSink struct{}

// RecordSession implements MetricsSink.
func (NopSink) RecordSession(SessionRecord) error { return nil }

// Config defines the metrics sink settings.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}
