package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/evgrid/stationd/config"
	"github.com/evgrid/stationd/core/charging"
	"github.com/evgrid/stationd/core/model"
	"github.com/evgrid/stationd/core/station"
	"github.com/evgrid/stationd/infra/logger"
	"github.com/evgrid/stationd/internal/eventbus"
)

var simulateVehicles int

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a scripted batch of charging requests against an in-process engine",
	RunE:  simulate,
}

func init() {
	simulateCmd.Flags().IntVar(&simulateVehicles, "vehicles", 5, "number of vehicles to submit")
	rootCmd.AddCommand(simulateCmd)
}

func simulate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logg := logger.New("simulate")
	piles := station.NewPileRegistry()
	for _, pc := range cfg.Piles {
		if err := piles.Add(pc.Pile()); err != nil {
			return err
		}
	}
	bus := eventbus.New()
	defer bus.Close()
	engine, err := charging.New(piles, cfg.Station, cfg.Tariff, bus, nil, logg)
	if err != nil {
		return err
	}

	// Drive a fake clock so the batch resolves instantly.
	now := time.Now().UTC()
	engine.SetClock(func() time.Time { return now })

	for i := 0; i < simulateVehicles; i++ {
		mode := model.ModeTrickle
		energy := 10.0
		if i%2 == 0 {
			mode = model.ModeFast
			energy = 30.0
		}
		number, err := engine.Submit(
			fmt.Sprintf("user-%d", i),
			fmt.Sprintf("vehicle-%d", i),
			mode, energy,
		)
		if err != nil {
			return fmt.Errorf("submit vehicle %d: %w", i, err)
		}
		logg.Infof("submitted %s", number)
	}

	strategy, err := charging.ParseFaultStrategy(cfg.FaultStrategy)
	if err != nil {
		return err
	}

	// Step simulated time forward until every session resolves, knocking a
	// fast pile out partway through to exercise the fault path.
	faultPile := ""
	for _, p := range engine.Piles() {
		if p.Mode == model.ModeFast {
			faultPile = p.ID
			break
		}
	}
	interval := time.Duration(cfg.Station.MonitorIntervalSeconds) * time.Second
	for step := 0; step < 24*60; step++ {
		now = now.Add(interval)
		engine.Tick()
		if faultPile != "" {
			switch step {
			case 10:
				if err := engine.DeclareFault(faultPile, strategy); err != nil {
					logg.Warnf("fault %s: %v", faultPile, err)
				}
			case 20:
				if err := engine.RecoverFault(faultPile); err != nil {
					logg.Warnf("recover %s: %v", faultPile, err)
				}
			}
		}
		open := false
		for _, t := range engine.Tickets() {
			if !t.Status.Terminal() {
				open = true
				break
			}
		}
		if !open {
			break
		}
	}

	for _, rec := range engine.Records() {
		logg.Infof("%s %s: %.1f kWh, fee %.2f (%s)",
			rec.TicketNumber, rec.Number, rec.ActualEnergy, rec.ActualTotalFee, rec.Status)
	}
	return nil
}
