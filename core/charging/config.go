package charging

import "fmt"

// Config defines the queueing and monitoring parameters of the engine.
type Config struct {
	// StagingCapacity bounds the number of tickets waiting in the staging
	// area.
	StagingCapacity int `json:"staging_capacity"`
	// PileQueueLength is the maximum number of tickets queued at one pile.
	PileQueueLength int `json:"pile_queue_length"`
	// MonitorIntervalSeconds is the period of the remaining-time monitor.
	MonitorIntervalSeconds int `json:"monitor_interval_seconds"`
}

// SetDefaults fills in the standard station parameters when unset.
func (c *Config) SetDefaults() {
	if c.StagingCapacity == 0 {
		c.StagingCapacity = 10
	}
	if c.PileQueueLength == 0 {
		c.PileQueueLength = 3
	}
	if c.MonitorIntervalSeconds == 0 {
		c.MonitorIntervalSeconds = 60
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.StagingCapacity < 1 {
		return fmt.Errorf("staging_capacity must be positive")
	}
	if c.PileQueueLength < 1 {
		return fmt.Errorf("pile_queue_length must be positive")
	}
	if c.MonitorIntervalSeconds < 1 {
		return fmt.Errorf("monitor_interval_seconds must be positive")
	}
	return nil
}
