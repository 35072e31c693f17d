package tariff

// Band is the time-of-use tariff category for an hour of the day.
type Band int

const (
	BandPeak Band = iota
	BandNormal
	BandValley
)

// String returns a human-readable representation of the band.
func (b Band) String() string {
	switch b {
	case BandPeak:
		return "peak"
	case BandNormal:
		return "normal"
	case BandValley:
		return "valley"
	default:
		return "unknown"
	}
}

// Quote is the outcome of a fee computation for a given energy amount.
type Quote struct {
	ElectricityFee float64
	ServiceFee     float64
	TotalFee       float64
	UnitRate       float64
	Band           Band
}

// Calculator maps (energy, wall-clock hour) to fees under a time-of-use
// tariff. It is pure and holds no mutable state; a new Calculator is built
// whenever the configuration is reloaded.
type Calculator struct {
	cfg Config
}

// NewCalculator creates a Calculator for the given configuration.
func NewCalculator(cfg Config) Calculator {
	return Calculator{cfg: cfg}
}

// BandFor returns the tariff band applicable at the given hour. Hours covered
// by neither the peak nor the normal ranges fall into the valley band.
func (c Calculator) BandFor(hour int) Band {
	for _, r := range c.cfg.PeakHours {
		if r.Contains(hour) {
			return BandPeak
		}
	}
	for _, r := range c.cfg.NormalHours {
		if r.Contains(hour) {
			return BandNormal
		}
	}
	return BandValley
}

// Rate returns the electricity unit rate for the band.
func (c Calculator) Rate(b Band) float64 {
	switch b {
	case BandPeak:
		return c.cfg.PeakRate
	case BandNormal:
		return c.cfg.NormalRate
	default:
		return c.cfg.ValleyRate
	}
}

// Quote computes the fees for delivering the given energy in a session that
// starts at the given hour. The band is fixed at the session start hour and
// is not re-evaluated across band boundaries.
func (c Calculator) Quote(energy float64, hour int) Quote {
	band := c.BandFor(hour)
	rate := c.Rate(band)
	electricity := energy * rate
	service := energy * c.cfg.ServiceRate
	return Quote{
		ElectricityFee: electricity,
		ServiceFee:     service,
		TotalFee:       electricity + service,
		UnitRate:       rate,
		Band:           band,
	}
}
