package charging

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ticketsSubmitted  *prometheus.CounterVec
	sessionsFinalized *prometheus.CounterVec
	pileFaults        *prometheus.CounterVec
	stagingOccupancy  prometheus.Gauge
	chargingSessions  *prometheus.GaugeVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Gauge, *prometheus.GaugeVec) {
	sub := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charging_tickets_submitted_total",
			Help: "Number of charging tickets admitted to the staging area",
		},
		[]string{"mode"},
	)
	fin := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charging_sessions_finalized_total",
			Help: "Number of finalized charging sessions",
		},
		[]string{"mode", "reason"},
	)
	faults := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charging_pile_faults_total",
			Help: "Number of pile fault declarations",
		},
		[]string{"strategy"},
	)
	staging := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "charging_staging_occupancy",
			Help: "Tickets currently waiting in the staging area",
		},
	)
	active := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "charging_active_sessions",
			Help: "Sessions currently charging",
		},
		[]string{"mode"},
	)
	return sub, fin, faults, staging, active
}

func init() {
	ticketsSubmitted, sessionsFinalized, pileFaults, stagingOccupancy, chargingSessions = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers engine metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(ticketsSubmitted, sessionsFinalized, pileFaults, stagingOccupancy, chargingSessions)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	ticketsSubmitted, sessionsFinalized, pileFaults, stagingOccupancy, chargingSessions = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
