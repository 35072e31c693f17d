package charging

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/evgrid/stationd/core/events"
	"github.com/evgrid/stationd/core/logger"
	coremetrics "github.com/evgrid/stationd/core/metrics"
	"github.com/evgrid/stationd/core/model"
	"github.com/evgrid/stationd/core/station"
	"github.com/evgrid/stationd/core/tariff"
	"github.com/evgrid/stationd/internal/eventbus"
)

// Engine is the scheduling and billing engine of the charging station. It
// owns the ticket, pile and billing state and serializes every mutation,
// request-triggered operations and the monitor tick alike, behind a single
// mutex. This also makes the two-phase scheduling pass atomic.
type Engine struct {
	mu      sync.Mutex
	piles   *station.PileRegistry
	tickets *station.QueueStore
	ledger  *station.Ledger
	cfg     Config
	calc    tariff.Calculator
	bus     eventbus.EventBus
	sink    coremetrics.MetricsSink
	log     logger.Logger
	now     func() time.Time
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

// New creates the engine. bus and sink may be nil; log may be nil for a
// silent engine.
func New(piles *station.PileRegistry, cfg Config, tariffCfg tariff.Config, bus eventbus.EventBus, sink coremetrics.MetricsSink, log logger.Logger) (*Engine, error) {
	if piles == nil {
		return nil, fmt.Errorf("charging: nil pile registry provided to New")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tariffCfg.SetDefaults()
	if err := tariffCfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Engine{
		piles:   piles,
		tickets: station.NewQueueStore(),
		ledger:  station.NewLedger(),
		cfg:     cfg,
		calc:    tariff.NewCalculator(tariffCfg),
		bus:     bus,
		sink:    sink,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetClock overrides the engine clock. Intended for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

// Reload applies a new configuration. The values take effect on the next
// scheduling pass; sessions already billed keep their fixed start-hour band.
func (e *Engine) Reload(cfg Config, tariffCfg tariff.Config) error {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	tariffCfg.SetDefaults()
	if err := tariffCfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.cfg = cfg
	e.calc = tariff.NewCalculator(tariffCfg)
	e.mu.Unlock()
	return nil
}

// Submit admits a new charging request to the staging area and returns the
// allocated ticket number. The linked billing record is created in the same
// step with fees estimated at the current tariff hour.
func (e *Engine) Submit(userID, vehicleID string, mode model.PileMode, energy float64) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if energy <= 0 {
		return "", ValidationError{Reason: "requested energy must be positive"}
	}
	if mode != model.ModeFast && mode != model.ModeTrickle {
		return "", ValidationError{Reason: fmt.Sprintf("unknown charging mode %d", mode)}
	}
	if vehicleID == "" {
		return "", ValidationError{Reason: "vehicle id must not be empty"}
	}
	if cur, ok := e.tickets.ActiveByVehicle(vehicleID); ok {
		return "", ConflictError{Reason: fmt.Sprintf("vehicle %s already has active ticket %s (%s)", vehicleID, cur.Number, cur.Status)}
	}
	if e.tickets.StagingCount() >= e.cfg.StagingCapacity {
		return "", ConflictError{Reason: "staging area is full"}
	}

	now := e.now()
	number := e.tickets.NextNumber(mode)
	t := model.Ticket{
		Number:      number,
		Seq:         e.tickets.NextSeq(),
		UserID:      userID,
		VehicleID:   vehicleID,
		Mode:        mode,
		Energy:      energy,
		Status:      model.TicketStaging,
		SubmittedAt: now,
	}
	quote := e.calc.Quote(energy, now.Hour())
	rec := model.BillingRecord{
		Number:                e.ledger.NextRecordNumber(mode, now),
		TicketNumber:          number,
		UserID:                userID,
		VehicleID:             vehicleID,
		Mode:                  mode,
		PlannedEnergy:         energy,
		PlannedElectricityFee: quote.ElectricityFee,
		PlannedServiceFee:     quote.ServiceFee,
		PlannedTotalFee:       quote.TotalFee,
		UnitRate:              quote.UnitRate,
		Band:                  quote.Band.String(),
		CreatedAt:             now,
		Status:                model.RecordCreated,
	}
	if _, err := e.ledger.Create(rec); err != nil {
		return "", InvariantError{Reason: err.Error()}
	}
	e.tickets.Put(t)
	ticketsSubmitted.WithLabelValues(mode.String()).Inc()
	e.publish(events.TicketSubmitted{Ticket: t})
	e.log.Infof("ticket %s submitted: vehicle %s, %s, %.1f kWh", number, vehicleID, mode, energy)

	e.schedulePass()
	return number, nil
}

// Cancel withdraws a ticket. Cancelling a charging ticket finalizes the
// session immediately; cancelling a staging or queued ticket is synchronous
// and leaves no billing to unwind.
func (e *Engine) Cancel(ticketNumber string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tickets.Get(ticketNumber)
	if !ok {
		return NotFoundError{Kind: "ticket", ID: ticketNumber}
	}
	if t.Status.Terminal() {
		return ConflictError{Reason: fmt.Sprintf("ticket %s is already %s", ticketNumber, t.Status)}
	}

	if t.Status == model.TicketCharging {
		if _, err := e.finalizeLocked(ticketNumber, "cancelled"); err != nil {
			return err
		}
	} else {
		pileID := t.PileID
		now := e.now()
		if err := e.tickets.Update(ticketNumber, func(tk *model.Ticket) {
			tk.Status = model.TicketCancelled
			tk.PileID = ""
		}); err != nil {
			return InvariantError{Reason: err.Error()}
		}
		if err := e.ledger.Update(ticketNumber, func(r *model.BillingRecord) {
			r.Status = model.RecordCompleted
			r.EndedAt = now
			r.RemainingMinutes = 0
		}); err != nil {
			return InvariantError{Reason: err.Error()}
		}
		if pileID != "" {
			e.releasePileIfIdle(pileID)
		}
		t, _ = e.tickets.Get(ticketNumber)
		e.publish(events.TicketCancelled{Ticket: t})
		e.log.Infof("ticket %s cancelled", ticketNumber)
	}

	e.schedulePass()
	return nil
}

// Modify changes the mode and/or requested energy of a waiting ticket. A
// charging ticket is immutable; a queued ticket may only change its energy,
// since its mode is fixed once seated at a pile.
func (e *Engine) Modify(ticketNumber string, newMode *model.PileMode, newEnergy *float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tickets.Get(ticketNumber)
	if !ok {
		return NotFoundError{Kind: "ticket", ID: ticketNumber}
	}
	if t.Status == model.TicketCharging {
		return ConflictError{Reason: fmt.Sprintf("ticket %s is charging and cannot be modified", ticketNumber)}
	}
	if t.Status.Terminal() {
		return ConflictError{Reason: fmt.Sprintf("ticket %s is already %s", ticketNumber, t.Status)}
	}
	if newEnergy != nil && *newEnergy <= 0 {
		return ValidationError{Reason: "requested energy must be positive"}
	}

	if newMode != nil && *newMode != t.Mode {
		if t.Status != model.TicketStaging {
			return ConflictError{Reason: "charging mode is fixed once the ticket is queued"}
		}
		// A mode change re-enters the queue order: the ticket gets a fresh
		// number and sequence in the new mode.
		newNumber := e.tickets.NextNumber(*newMode)
		if err := e.tickets.Rekey(ticketNumber, newNumber); err != nil {
			return InvariantError{Reason: err.Error()}
		}
		if err := e.ledger.Rekey(ticketNumber, newNumber); err != nil {
			return InvariantError{Reason: err.Error()}
		}
		seq := e.tickets.NextSeq()
		_ = e.tickets.Update(newNumber, func(tk *model.Ticket) {
			tk.Mode = *newMode
			tk.Seq = seq
		})
		_ = e.ledger.Update(newNumber, func(r *model.BillingRecord) {
			r.Mode = *newMode
		})
		e.log.Infof("ticket %s renumbered to %s after mode change", ticketNumber, newNumber)
		ticketNumber = newNumber
	}

	if newEnergy != nil {
		_ = e.tickets.Update(ticketNumber, func(tk *model.Ticket) {
			tk.Energy = *newEnergy
		})
		quote := e.calc.Quote(*newEnergy, e.now().Hour())
		_ = e.ledger.Update(ticketNumber, func(r *model.BillingRecord) {
			r.PlannedEnergy = *newEnergy
			r.PlannedElectricityFee = quote.ElectricityFee
			r.PlannedServiceFee = quote.ServiceFee
			r.PlannedTotalFee = quote.TotalFee
		})
		t, _ = e.tickets.Get(ticketNumber)
		if t.Status == model.TicketQueued && t.PileID != "" {
			if pile, ok := e.piles.Get(t.PileID); ok {
				eta := e.etaForQueued(pile, t)
				_ = e.tickets.Update(ticketNumber, func(tk *model.Ticket) {
					tk.EstimatedDone = eta
				})
			}
		}
	}

	e.schedulePass()
	return nil
}

// ManualStop terminates a charging session on user or admin request and
// returns the finalized billing record.
func (e *Engine) ManualStop(ticketNumber string) (model.BillingRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tickets.Get(ticketNumber)
	if !ok {
		return model.BillingRecord{}, NotFoundError{Kind: "ticket", ID: ticketNumber}
	}
	if t.Status != model.TicketCharging {
		return model.BillingRecord{}, ConflictError{Reason: fmt.Sprintf("ticket %s is not charging", ticketNumber)}
	}
	rec, err := e.finalizeLocked(ticketNumber, "manual_stop")
	if err != nil {
		return model.BillingRecord{}, err
	}
	e.schedulePass()
	return rec, nil
}

// finalizeLocked terminates a charging session: it freezes the actual
// figures, updates the pile counters and either promotes the next queued
// ticket or returns the pile to normal. Calling it on an already-completed
// ticket is a no-op. The engine mutex must be held.
func (e *Engine) finalizeLocked(ticketNumber, reason string) (model.BillingRecord, error) {
	t, ok := e.tickets.Get(ticketNumber)
	if !ok {
		return model.BillingRecord{}, NotFoundError{Kind: "ticket", ID: ticketNumber}
	}
	if t.Status == model.TicketCompleted {
		rec, _ := e.ledger.Get(ticketNumber)
		return rec, nil
	}
	if t.Status != model.TicketCharging {
		return model.BillingRecord{}, ConflictError{Reason: fmt.Sprintf("ticket %s is not charging", ticketNumber)}
	}
	pile, ok := e.piles.Get(t.PileID)
	if !ok {
		return model.BillingRecord{}, InvariantError{Reason: fmt.Sprintf("charging ticket %s references unknown pile %q", ticketNumber, t.PileID)}
	}
	if _, ok := e.ledger.Get(ticketNumber); !ok {
		return model.BillingRecord{}, InvariantError{Reason: fmt.Sprintf("billing record missing for ticket %s", ticketNumber)}
	}

	now := e.now()
	duration := now.Sub(t.StartedAt).Hours()
	if duration < 0 {
		duration = 0
	}
	actual := math.Min(t.Energy, pile.Power*duration)
	quote := e.calc.Quote(actual, t.StartedAt.Hour())

	_ = e.ledger.Update(ticketNumber, func(r *model.BillingRecord) {
		r.ActualEnergy = actual
		r.DurationHours = duration
		r.ActualElectricityFee = quote.ElectricityFee
		r.ActualServiceFee = quote.ServiceFee
		r.ActualTotalFee = quote.TotalFee
		r.UnitRate = quote.UnitRate
		r.Band = quote.Band.String()
		r.RemainingMinutes = 0
		r.EndedAt = now
		r.Status = model.RecordCompleted
	})
	_ = e.tickets.Update(ticketNumber, func(tk *model.Ticket) {
		tk.Status = model.TicketCompleted
	})
	_ = e.piles.Update(t.PileID, func(p *model.Pile) {
		p.SessionCount++
		p.TotalDuration += duration
		p.TotalEnergy += actual
	})

	// Free the charge point: hand it to the next queued ticket, or return
	// the pile to normal. A faulted pile keeps its fault status.
	if pile.Status == model.PileCharging {
		if queued := e.tickets.QueuedAt(t.PileID); len(queued) > 0 {
			e.startCharging(queued[0])
		} else {
			_ = e.piles.Update(t.PileID, func(p *model.Pile) {
				p.Status = model.PileNormal
			})
		}
	}

	rec, _ := e.ledger.Get(ticketNumber)
	t, _ = e.tickets.Get(ticketNumber)
	sessionsFinalized.WithLabelValues(t.Mode.String(), reason).Inc()
	e.publish(events.SessionFinalized{Ticket: t, Record: rec, Reason: reason})
	e.recordSession(rec, reason)
	e.log.Infof("session %s finalized (%s): %.2f kWh in %.2f h, total fee %.2f", ticketNumber, reason, actual, duration, rec.ActualTotalFee)
	return rec, nil
}

// releasePileIfIdle resets a pile to normal when nothing is charging or
// queued there anymore.
func (e *Engine) releasePileIfIdle(pileID string) {
	pile, ok := e.piles.Get(pileID)
	if !ok || pile.Status != model.PileCharging {
		return
	}
	if _, busy := e.tickets.ChargingAt(pileID); busy {
		return
	}
	if e.tickets.CountQueuedAt(pileID) > 0 {
		return
	}
	_ = e.piles.Update(pileID, func(p *model.Pile) {
		p.Status = model.PileNormal
	})
}

func (e *Engine) recordSession(rec model.BillingRecord, reason string) {
	err := e.sink.RecordSession(coremetrics.SessionRecord{
		TicketNumber:   rec.TicketNumber,
		RecordNumber:   rec.Number,
		PileID:         rec.PileID,
		UserID:         rec.UserID,
		VehicleID:      rec.VehicleID,
		Mode:           rec.Mode.String(),
		Band:           rec.Band,
		RequestedKWh:   rec.PlannedEnergy,
		DeliveredKWh:   rec.ActualEnergy,
		DurationHours:  rec.DurationHours,
		ElectricityFee: rec.ActualElectricityFee,
		ServiceFee:     rec.ActualServiceFee,
		TotalFee:       rec.ActualTotalFee,
		Reason:         reason,
		StartedAt:      rec.StartedAt,
		EndedAt:        rec.EndedAt,
	})
	if err != nil {
		e.log.Errorf("metrics error: %v", err)
	}
}

func (e *Engine) publish(ev eventbus.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

// The read accessors take the engine mutex so a snapshot never lands in the
// middle of a multi-store transition.

// Ticket returns a copy of the ticket.
func (e *Engine) Ticket(number string) (model.Ticket, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickets.Get(number)
}

// Record returns a copy of the billing record linked to the ticket.
func (e *Engine) Record(ticketNumber string) (model.BillingRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Get(ticketNumber)
}

// Piles returns the piles in registration order.
func (e *Engine) Piles() []model.Pile {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.piles.List()
}

// Records returns every billing record, oldest first.
func (e *Engine) Records() []model.BillingRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.All()
}

// Tickets returns every ticket in submission order.
func (e *Engine) Tickets() []model.Ticket {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickets.All()
}

// RecoverState reconciles stored state after a restart: tickets referencing
// a missing or inactive pile return to staging, and pile statuses are
// realigned with the charging tickets they actually hold.
func (e *Engine) RecoverState() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range e.tickets.All() {
		if t.Status.Terminal() || t.PileID == "" {
			continue
		}
		pile, ok := e.piles.Get(t.PileID)
		if ok && pile.Active {
			continue
		}
		e.log.Warnf("ticket %s references unavailable pile %s, returning to staging", t.Number, t.PileID)
		_ = e.tickets.Update(t.Number, func(tk *model.Ticket) {
			tk.Status = model.TicketStaging
			tk.PileID = ""
			tk.EnqueuedAt = time.Time{}
			tk.StartedAt = time.Time{}
			tk.EstimatedDone = time.Time{}
		})
		_ = e.ledger.Update(t.Number, func(r *model.BillingRecord) {
			r.Status = model.RecordCreated
			r.PileID = ""
			r.RemainingMinutes = 0
		})
	}

	for _, p := range e.piles.List() {
		if p.Status == model.PileFault || p.Status == model.PileOffline {
			continue
		}
		if _, busy := e.tickets.ChargingAt(p.ID); busy {
			if p.Status != model.PileCharging {
				_ = e.piles.Update(p.ID, func(pl *model.Pile) { pl.Status = model.PileCharging })
			}
		} else if p.Status == model.PileCharging {
			_ = e.piles.Update(p.ID, func(pl *model.Pile) { pl.Status = model.PileNormal })
		}
	}

	e.schedulePass()
}

func hoursToDuration(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
