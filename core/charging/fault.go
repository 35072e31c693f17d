package charging

import (
	"fmt"
	"sort"
	"time"

	"github.com/evgrid/stationd/core/events"
	"github.com/evgrid/stationd/core/model"
)

// FaultStrategy selects how tickets stranded by a pile fault are rescheduled.
type FaultStrategy int

const (
	// StrategyPriority reseats the stranded tickets ahead of the staging
	// area, preserving their relative order.
	StrategyPriority FaultStrategy = iota
	// StrategyTimeOrder pulls every queued ticket of the mode back and
	// reseats the merged set in ticket-number order.
	StrategyTimeOrder
)

// String returns the configuration name of the strategy.
func (s FaultStrategy) String() string {
	switch s {
	case StrategyPriority:
		return "priority"
	case StrategyTimeOrder:
		return "time_order"
	default:
		return "unknown"
	}
}

// ParseFaultStrategy maps a configuration value to a strategy.
func ParseFaultStrategy(v string) (FaultStrategy, error) {
	switch v {
	case "priority", "":
		return StrategyPriority, nil
	case "time_order":
		return StrategyTimeOrder, nil
	default:
		return StrategyPriority, fmt.Errorf("unknown fault strategy %q", v)
	}
}

// DeclareFault takes the pile out of service. The session charging there is
// suspended with its billed figures preserved, queued tickets are detached,
// and the stranded set is rescheduled per the strategy.
func (e *Engine) DeclareFault(pileID string, strategy FaultStrategy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pile, ok := e.piles.Get(pileID)
	if !ok {
		return NotFoundError{Kind: "pile", ID: pileID}
	}
	if pile.Status == model.PileFault {
		return ConflictError{Reason: fmt.Sprintf("pile %s is already faulted", pileID)}
	}

	now := e.now()
	var affected []model.Ticket
	if t, ok := e.tickets.ChargingAt(pileID); ok {
		// The interrupted session keeps what was already delivered; the
		// remainder of the request is rescheduled.
		duration := now.Sub(t.StartedAt).Hours()
		if duration < 0 {
			duration = 0
		}
		delivered := pile.Power * duration
		if delivered > t.Energy {
			delivered = t.Energy
		}
		quote := e.calc.Quote(delivered, t.StartedAt.Hour())
		_ = e.ledger.Update(t.Number, func(r *model.BillingRecord) {
			r.Status = model.RecordSuspended
			r.ActualEnergy = delivered
			r.DurationHours = duration
			r.ActualElectricityFee = quote.ElectricityFee
			r.ActualServiceFee = quote.ServiceFee
			r.ActualTotalFee = quote.TotalFee
			r.RemainingMinutes = 0
			r.PileID = ""
		})
		affected = append(affected, t)
	}
	affected = append(affected, e.tickets.QueuedAt(pileID)...)

	for _, t := range affected {
		_ = e.tickets.Update(t.Number, func(tk *model.Ticket) {
			tk.Status = model.TicketFaultSuspended
			tk.PileID = ""
			tk.EnqueuedAt = time.Time{}
			tk.StartedAt = time.Time{}
			tk.EstimatedDone = time.Time{}
		})
		if t.Status != model.TicketCharging {
			_ = e.ledger.Update(t.Number, func(r *model.BillingRecord) {
				r.Status = model.RecordSuspended
				r.PileID = ""
			})
		}
	}

	_ = e.piles.Update(pileID, func(p *model.Pile) {
		p.Status = model.PileFault
	})

	if strategy == StrategyTimeOrder {
		e.rebalanceByNumber(pile.Mode)
	}

	pileFaults.WithLabelValues(strategy.String()).Inc()
	e.publish(events.PileFaulted{PileID: pileID, Strategy: strategy.String(), Affected: len(affected)})
	e.log.Warnf("pile %s faulted, %d tickets suspended, strategy %s", pileID, len(affected), strategy)

	e.schedulePass()
	return nil
}

// RecoverFault returns a faulted pile to service. When other piles of the
// mode hold queued tickets, the whole waiting set is rebalanced in
// ticket-number order so the recovered capacity is shared fairly.
func (e *Engine) RecoverFault(pileID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pile, ok := e.piles.Get(pileID)
	if !ok {
		return NotFoundError{Kind: "pile", ID: pileID}
	}
	if pile.Status != model.PileFault {
		return ConflictError{Reason: fmt.Sprintf("pile %s is not faulted", pileID)}
	}

	_ = e.piles.Update(pileID, func(p *model.Pile) {
		p.Status = model.PileNormal
	})

	queuedElsewhere := false
	for _, p := range e.piles.ByMode(pile.Mode) {
		if p.ID != pileID && e.tickets.CountQueuedAt(p.ID) > 0 {
			queuedElsewhere = true
			break
		}
	}
	if queuedElsewhere {
		e.rebalanceByNumber(pile.Mode)
	}

	e.publish(events.PileRecovered{PileID: pileID})
	e.log.Infof("pile %s recovered", pileID)

	e.schedulePass()
	return nil
}

// rebalanceByNumber pulls every waiting ticket of the mode, fault-suspended,
// queued and staging alike, back into staging and restores ticket-number
// order, so the next scheduling pass reseats the merged set as if they had
// just arrived in that order. Ticket numbers are monotonic per mode, so
// number order is submission order. Charging sessions are left alone.
func (e *Engine) rebalanceByNumber(mode model.PileMode) {
	pulled := e.tickets.ByStatus(model.TicketFaultSuspended, mode)
	for _, p := range e.piles.ByMode(mode) {
		pulled = append(pulled, e.tickets.QueuedAt(p.ID)...)
	}
	pulled = append(pulled, e.tickets.ByStatus(model.TicketStaging, mode)...)
	if len(pulled) == 0 {
		return
	}
	sort.Slice(pulled, func(i, j int) bool {
		return pulled[i].NumberSuffix() < pulled[j].NumberSuffix()
	})
	for _, t := range pulled {
		seq := e.tickets.NextSeq()
		_ = e.tickets.Update(t.Number, func(tk *model.Ticket) {
			tk.Status = model.TicketStaging
			tk.PileID = ""
			tk.Seq = seq
			tk.EnqueuedAt = time.Time{}
			tk.EstimatedDone = time.Time{}
		})
		_ = e.ledger.Update(t.Number, func(r *model.BillingRecord) {
			if r.Status == model.RecordAssigned || r.Status == model.RecordSuspended {
				r.Status = model.RecordCreated
			}
			r.PileID = ""
		})
	}
	e.log.Infof("rebalanced %d %s tickets by ticket number", len(pulled), mode)
}
