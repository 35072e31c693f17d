package charging

import (
	"context"
	"math"
	"time"

	"github.com/evgrid/stationd/core/logger"
	"github.com/evgrid/stationd/core/model"
)

// Tick advances every active session by one monitor period: it refreshes the
// delivered energy and fees from wall-clock elapsed time, and finalizes the
// sessions whose request is met or whose remaining time ran out. One broken
// session does not stop the others.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	finalized := false
	for _, rec := range e.ledger.ByStatus(model.RecordCharging) {
		done, err := e.advanceSession(rec)
		if err != nil {
			e.log.Errorf("monitor: ticket %s: %v", rec.TicketNumber, err)
			continue
		}
		if done {
			finalized = true
		}
	}
	if finalized {
		e.schedulePass()
	} else {
		e.refreshGauges()
	}
}

func (e *Engine) advanceSession(rec model.BillingRecord) (bool, error) {
	t, ok := e.tickets.Get(rec.TicketNumber)
	if !ok {
		return false, InvariantError{Reason: "charging record without ticket"}
	}
	if t.Status != model.TicketCharging {
		// Terminated between the ledger snapshot and now.
		return false, nil
	}
	pile, ok := e.piles.Get(t.PileID)
	if !ok {
		return false, InvariantError{Reason: "charging ticket references unknown pile " + t.PileID}
	}

	now := e.now()
	elapsed := now.Sub(t.StartedAt).Hours()
	if elapsed < 0 {
		elapsed = 0
	}
	actual := math.Min(pile.Power*elapsed, t.Energy)
	quote := e.calc.Quote(actual, t.StartedAt.Hour())

	if actual >= t.Energy {
		_, err := e.finalizeLocked(t.Number, "completed")
		return true, err
	}

	step := e.cfg.MonitorIntervalSeconds / 60
	if step < 1 {
		step = 1
	}
	remaining := rec.RemainingMinutes - step
	if remaining < 0 {
		remaining = 0
	}
	if remaining == 0 {
		_, err := e.finalizeLocked(t.Number, "time_expired")
		return true, err
	}

	_ = e.ledger.Update(t.Number, func(r *model.BillingRecord) {
		r.ActualEnergy = actual
		r.DurationHours = elapsed
		r.ActualElectricityFee = quote.ElectricityFee
		r.ActualServiceFee = quote.ServiceFee
		r.ActualTotalFee = quote.TotalFee
		r.RemainingMinutes = remaining
	})
	return false, nil
}

// Monitor drives the engine tick on a fixed interval.
type Monitor struct {
	engine   *Engine
	interval time.Duration
	log      logger.Logger
}

// NewMonitor creates a monitor over the engine using its configured interval.
func NewMonitor(engine *Engine, log logger.Logger) *Monitor {
	if log == nil {
		log = nopLogger{}
	}
	return &Monitor{
		engine:   engine,
		interval: time.Duration(engine.cfg.MonitorIntervalSeconds) * time.Second,
		log:      log,
	}
}

// Run ticks the engine until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.log.Infof("session monitor started, interval %s", m.interval)
	for {
		select {
		case <-ctx.Done():
			m.log.Infof("session monitor stopped")
			return
		case <-ticker.C:
			m.engine.Tick()
		}
	}
}
