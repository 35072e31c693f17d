package config

import (
	"fmt"

	"github.com/evgrid/stationd/core/model"
)

// PileConfig declares one charge point of the station.
type PileConfig struct {
	ID    string  `json:"id"`
	Mode  string  `json:"mode"`  // "fast" or "trickle"
	Power float64 `json:"power"` // kWh per hour
	Off   bool    `json:"off"`   // registered but not taking tickets
}

// Validate checks the pile declaration.
func (p PileConfig) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("pile id is required")
	}
	if _, err := model.ParsePileMode(p.Mode); err != nil {
		return fmt.Errorf("pile %s: %w", p.ID, err)
	}
	if p.Power <= 0 {
		return fmt.Errorf("pile %s: power must be positive", p.ID)
	}
	return nil
}

// Pile converts the declaration to the engine model.
func (p PileConfig) Pile() model.Pile {
	mode, _ := model.ParsePileMode(p.Mode)
	status := model.PileNormal
	if p.Off {
		status = model.PileOffline
	}
	return model.Pile{
		ID:     p.ID,
		Mode:   mode,
		Power:  p.Power,
		Status: status,
		Active: !p.Off,
	}
}

// DefaultPiles is the standard station layout: two fast piles at 30 kWh/h
// and three trickle piles at 10 kWh/h.
func DefaultPiles() []PileConfig {
	return []PileConfig{
		{ID: "F01", Mode: "fast", Power: 30},
		{ID: "F02", Mode: "fast", Power: 30},
		{ID: "T01", Mode: "trickle", Power: 10},
		{ID: "T02", Mode: "trickle", Power: 10},
		{ID: "T03", Mode: "trickle", Power: 10},
	}
}
