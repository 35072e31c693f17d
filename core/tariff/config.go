package tariff

import "fmt"

// HourRange is a half-open [Start, End) range of wall-clock hours. Ranges
// may wrap past midnight, e.g. {23, 7}.
type HourRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether the hour falls inside the range.
func (r HourRange) Contains(hour int) bool {
	if r.Start <= r.End {
		return hour >= r.Start && hour < r.End
	}
	return hour >= r.Start || hour < r.End
}

// Config defines the tariff bands and unit rates.
type Config struct {
	PeakHours   []HourRange `json:"peak_hours"`
	NormalHours []HourRange `json:"normal_hours"`
	PeakRate    float64     `json:"peak_rate"`
	NormalRate  float64     `json:"normal_rate"`
	ValleyRate  float64     `json:"valley_rate"`
	ServiceRate float64     `json:"service_rate"`
}

// SetDefaults fills in the standard station tariff when unset.
func (c *Config) SetDefaults() {
	if len(c.PeakHours) == 0 && len(c.NormalHours) == 0 {
		c.PeakHours = []HourRange{{10, 15}, {18, 21}}
		c.NormalHours = []HourRange{{7, 10}, {15, 18}, {21, 23}}
	}
	if c.PeakRate == 0 {
		c.PeakRate = 1.0
	}
	if c.NormalRate == 0 {
		c.NormalRate = 0.7
	}
	if c.ValleyRate == 0 {
		c.ValleyRate = 0.4
	}
	if c.ServiceRate == 0 {
		c.ServiceRate = 0.8
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	for _, r := range append(append([]HourRange{}, c.PeakHours...), c.NormalHours...) {
		if r.Start < 0 || r.Start > 23 || r.End < 0 || r.End > 24 {
			return fmt.Errorf("tariff: hour range %d-%d out of bounds", r.Start, r.End)
		}
	}
	if c.PeakRate < 0 || c.NormalRate < 0 || c.ValleyRate < 0 || c.ServiceRate < 0 {
		return fmt.Errorf("tariff: rates must not be negative")
	}
	return nil
}
