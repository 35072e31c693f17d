package metrics

import coremetrics "github.com/evgrid/stationd/core/metrics"

// MultiSink fanouts session records to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSession forwards the record to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordSession(rec coremetrics.SessionRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordSession(rec); err != nil {
			return err
		}
	}
	return nil
}
