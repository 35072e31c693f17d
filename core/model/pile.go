package model

import "fmt"

// PileMode identifies the charging mode served by a pile. Fast and trickle
// piles form disjoint pools; a ticket of one mode never occupies a pile of
// the other.
type PileMode int

const (
	ModeFast PileMode = iota
	ModeTrickle
)

// String returns a human-readable representation of the mode.
func (m PileMode) String() string {
	switch m {
	case ModeFast:
		return "fast"
	case ModeTrickle:
		return "trickle"
	default:
		return "unknown"
	}
}

// Prefix returns the ticket-number prefix used for the mode.
func (m PileMode) Prefix() string {
	if m == ModeFast {
		return "F"
	}
	return "T"
}

// ParsePileMode converts a configuration string into a PileMode.
func ParsePileMode(s string) (PileMode, error) {
	switch s {
	case "fast":
		return ModeFast, nil
	case "trickle":
		return ModeTrickle, nil
	default:
		return 0, fmt.Errorf("unknown charging mode %q", s)
	}
}

// PileStatus is the operational status of a charging pile.
type PileStatus int

const (
	PileNormal PileStatus = iota
	PileCharging
	PileFault
	PileOffline
)

// String returns a human-readable representation of the status.
func (s PileStatus) String() string {
	switch s {
	case PileNormal:
		return "normal"
	case PileCharging:
		return "charging"
	case PileFault:
		return "fault"
	case PileOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Pile represents a physical charging pile.
type Pile struct {
	ID     string   // stable number, e.g. "F01" or "T03"
	Mode   PileMode
	Power  float64 // energy delivered per hour (kWh/h)
	Status PileStatus
	Active bool

	// Lifetime counters, updated when a session finalizes.
	SessionCount  int
	TotalDuration float64 // hours
	TotalEnergy   float64 // kWh
}

// ChargeHours returns the time in hours needed to deliver the given energy.
func (p Pile) ChargeHours(energy float64) float64 {
	return energy / p.Power
}

// Schedulable reports whether the pile may receive new tickets.
func (p Pile) Schedulable() bool {
	return p.Active && p.Status != PileFault && p.Status != PileOffline
}

// Validate checks that the pile configuration is sound.
func (p Pile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("pile id must not be empty")
	}
	if p.Power <= 0 {
		return fmt.Errorf("pile %s: power must be positive", p.ID)
	}
	return nil
}
