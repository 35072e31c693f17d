package charging

import (
	"math"
	"time"

	"github.com/evgrid/stationd/core/events"
	"github.com/evgrid/stationd/core/model"
)

// schedulePass runs the two scheduling phases for both modes. Phase one
// seats waiting tickets into pile queues, fault-suspended candidates ahead
// of the staging area; phase two promotes the head of each idle pile's
// queue into an active session. The engine mutex must be held.
func (e *Engine) schedulePass() {
	for _, mode := range []model.PileMode{model.ModeFast, model.ModeTrickle} {
		e.seatWaiting(mode)
	}
	for _, p := range e.piles.List() {
		if !p.Schedulable() || p.Status == model.PileCharging {
			continue
		}
		if queued := e.tickets.QueuedAt(p.ID); len(queued) > 0 {
			e.startCharging(queued[0])
		}
	}
	e.refreshGauges()
}

// seatWaiting assigns waiting tickets of the mode to pile queues in FCFS
// order. Fault-suspended tickets are considered before staging tickets. The
// pass stops at the first candidate that cannot be seated, so nobody
// overtakes a blocked head of line.
func (e *Engine) seatWaiting(mode model.PileMode) {
	candidates := e.tickets.ByStatus(model.TicketFaultSuspended, mode)
	candidates = append(candidates, e.tickets.ByStatus(model.TicketStaging, mode)...)
	for _, t := range candidates {
		pile, ok := e.bestPile(mode, t.Energy)
		if !ok {
			break
		}
		e.seat(t, pile)
	}
}

// bestPile picks the schedulable pile of the mode with free queue space that
// minimizes the candidate's projected completion time. Ties resolve to the
// earliest registered pile.
func (e *Engine) bestPile(mode model.PileMode, energy float64) (model.Pile, bool) {
	var best model.Pile
	bestTime := math.Inf(1)
	found := false
	for _, p := range e.piles.ByMode(mode) {
		if !p.Schedulable() {
			continue
		}
		if e.tickets.CountQueuedAt(p.ID) >= e.cfg.PileQueueLength {
			continue
		}
		if t := e.projectedCompletion(p, energy); t < bestTime {
			best = p
			bestTime = t
			found = true
		}
	}
	return best, found
}

// projectedCompletion estimates, in hours, how long a new arrival would wait
// plus charge at the pile: the remaining time of the active session, the
// charge time of everything already queued, and its own charge time.
func (e *Engine) projectedCompletion(p model.Pile, energy float64) float64 {
	total := p.ChargeHours(energy)
	if rec, ok := e.chargingRecordAt(p.ID); ok {
		total += float64(rec.RemainingMinutes) / 60.0
	}
	for _, q := range e.tickets.QueuedAt(p.ID) {
		total += p.ChargeHours(q.Energy)
	}
	return total
}

// etaForQueued recomputes the estimated completion of a ticket already in
// the pile queue: the active session's remaining time, the charge time of
// the tickets ahead of it, and its own. Tickets behind it do not count.
func (e *Engine) etaForQueued(pile model.Pile, t model.Ticket) time.Time {
	total := pile.ChargeHours(t.Energy)
	if rec, ok := e.chargingRecordAt(pile.ID); ok {
		total += float64(rec.RemainingMinutes) / 60.0
	}
	for _, q := range e.tickets.QueuedAt(pile.ID) {
		if q.Number == t.Number {
			break
		}
		total += pile.ChargeHours(q.Energy)
	}
	return e.now().Add(hoursToDuration(total))
}

func (e *Engine) chargingRecordAt(pileID string) (model.BillingRecord, bool) {
	t, ok := e.tickets.ChargingAt(pileID)
	if !ok {
		return model.BillingRecord{}, false
	}
	return e.ledger.Get(t.Number)
}

// seat moves the ticket from the waiting state into the pile's queue.
func (e *Engine) seat(t model.Ticket, pile model.Pile) {
	now := e.now()
	eta := now.Add(hoursToDuration(e.projectedCompletion(pile, t.Energy)))
	_ = e.tickets.Update(t.Number, func(tk *model.Ticket) {
		tk.Status = model.TicketQueued
		tk.PileID = pile.ID
		tk.EnqueuedAt = now
		tk.EstimatedDone = eta
	})
	_ = e.ledger.Update(t.Number, func(r *model.BillingRecord) {
		r.Status = model.RecordAssigned
		r.PileID = pile.ID
	})
	t, _ = e.tickets.Get(t.Number)
	e.publish(events.TicketQueued{Ticket: t, PileID: pile.ID})
	e.log.Infof("ticket %s queued at pile %s, estimated done %s", t.Number, pile.ID, eta.Format("15:04:05"))
}

// startCharging promotes a queued ticket into an active session: the billed
// tariff band is fixed at this hour and the remaining time counter is armed
// for the monitor.
func (e *Engine) startCharging(t model.Ticket) {
	pile, ok := e.piles.Get(t.PileID)
	if !ok || !pile.Schedulable() {
		return
	}
	now := e.now()
	quote := e.calc.Quote(t.Energy, now.Hour())
	remaining := int(math.Round(pile.ChargeHours(t.Energy) * 60))
	_ = e.tickets.Update(t.Number, func(tk *model.Ticket) {
		tk.Status = model.TicketCharging
		tk.StartedAt = now
		tk.EstimatedDone = now.Add(hoursToDuration(pile.ChargeHours(t.Energy)))
	})
	_ = e.ledger.Update(t.Number, func(r *model.BillingRecord) {
		r.Status = model.RecordCharging
		r.StartedAt = now
		r.UnitRate = quote.UnitRate
		r.Band = quote.Band.String()
		r.RemainingMinutes = remaining
	})
	_ = e.piles.Update(pile.ID, func(p *model.Pile) {
		p.Status = model.PileCharging
	})
	t, _ = e.tickets.Get(t.Number)
	e.publish(events.ChargeStarted{Ticket: t, PileID: pile.ID})
	e.log.Infof("ticket %s charging at pile %s, %d min remaining, %s band", t.Number, pile.ID, remaining, quote.Band)
}

func (e *Engine) refreshGauges() {
	stagingOccupancy.Set(float64(e.tickets.StagingCount()))
	for _, mode := range []model.PileMode{model.ModeFast, model.ModeTrickle} {
		n := len(e.tickets.ByStatus(model.TicketCharging, mode))
		chargingSessions.WithLabelValues(mode.String()).Set(float64(n))
	}
}
