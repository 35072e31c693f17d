// Package report aggregates finalized billing records into per-pile
// operating reports.
package report

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/evgrid/stationd/core/model"
)

// PileReport summarizes the sessions served by one pile over a period.
type PileReport struct {
	PileID          string  `json:"pile_id"`
	Sessions        int     `json:"sessions"`
	TotalEnergyKWh  float64 `json:"total_energy_kwh"`
	TotalHours      float64 `json:"total_hours"`
	ElectricityFee  float64 `json:"electricity_fee"`
	ServiceFee      float64 `json:"service_fee"`
	TotalFee        float64 `json:"total_fee"`
	MeanDurationH   float64 `json:"mean_duration_hours"`
	StdDevDurationH float64 `json:"stddev_duration_hours"`
}

// Report is a station-wide summary over a period.
type Report struct {
	From  time.Time    `json:"from"`
	To    time.Time    `json:"to"`
	Piles []PileReport `json:"piles"`
}

// Build aggregates completed records whose session ended inside [from, to).
// Records without a pile assignment (cancelled before seating) are skipped.
func Build(records []model.BillingRecord, from, to time.Time) Report {
	type acc struct {
		durations []float64
		energy    []float64
		elecFee   float64
		svcFee    float64
		totalFee  float64
	}
	byPile := map[string]*acc{}
	for _, rec := range records {
		if rec.Status != model.RecordCompleted || rec.PileID == "" {
			continue
		}
		if !from.IsZero() && rec.EndedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !rec.EndedAt.Before(to) {
			continue
		}
		a := byPile[rec.PileID]
		if a == nil {
			a = &acc{}
			byPile[rec.PileID] = a
		}
		a.durations = append(a.durations, rec.DurationHours)
		a.energy = append(a.energy, rec.ActualEnergy)
		a.elecFee += rec.ActualElectricityFee
		a.svcFee += rec.ActualServiceFee
		a.totalFee += rec.ActualTotalFee
	}

	rep := Report{From: from, To: to}
	for id, a := range byPile {
		mean, std := stat.MeanStdDev(a.durations, nil)
		if len(a.durations) < 2 {
			std = 0
		}
		rep.Piles = append(rep.Piles, PileReport{
			PileID:          id,
			Sessions:        len(a.durations),
			TotalEnergyKWh:  floats.Sum(a.energy),
			TotalHours:      floats.Sum(a.durations),
			ElectricityFee:  a.elecFee,
			ServiceFee:      a.svcFee,
			TotalFee:        a.totalFee,
			MeanDurationH:   mean,
			StdDevDurationH: std,
		})
	}
	sort.Slice(rep.Piles, func(i, j int) bool { return rep.Piles[i].PileID < rep.Piles[j].PileID })
	return rep
}
