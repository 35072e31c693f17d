package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/evgrid/stationd/core/metrics"
)

// PromSink records finalized charging sessions in Prometheus metrics.
type PromSink struct {
	sessions *prometheus.CounterVec
	energy   *prometheus.CounterVec
	fees     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPromSink registers session metrics on the provided Prometheus registerer.
// If reg is nil, the default registerer is used. If the collectors are already
// registered, the existing ones are reused.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "station_sessions_total",
		Help: "Total number of finalized charging sessions",
	}, []string{"mode", "band", "reason"})
	energy := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "station_energy_delivered_kwh_total",
		Help: "Total energy delivered in kWh",
	}, []string{"mode", "band"})
	fees := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "station_fees_total",
		Help: "Total billed fees by kind",
	}, []string{"mode", "kind"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "station_session_duration_hours",
		Help:    "Charging session duration in hours",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16},
	}, []string{"mode"})

	if err := reg.Register(sessions); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			sessions = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(energy); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			energy = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(fees); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			fees = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(duration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			duration = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{sessions: sessions, energy: energy, fees: fees, duration: duration}, nil
}

// RecordSession increments the session counters.
func (s *PromSink) RecordSession(rec coremetrics.SessionRecord) error {
	s.sessions.WithLabelValues(rec.Mode, rec.Band, rec.Reason).Inc()
	s.energy.WithLabelValues(rec.Mode, rec.Band).Add(rec.DeliveredKWh)
	s.fees.WithLabelValues(rec.Mode, "electricity").Add(rec.ElectricityFee)
	s.fees.WithLabelValues(rec.Mode, "service").Add(rec.ServiceFee)
	s.duration.WithLabelValues(rec.Mode).Observe(rec.DurationHours)
	return nil
}
