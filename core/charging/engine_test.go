package charging

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/evgrid/stationd/core/model"
	"github.com/evgrid/stationd/core/station"
	"github.com/evgrid/stationd/core/tariff"
	"github.com/evgrid/stationd/internal/eventbus"
)

func stationPiles(t *testing.T, piles ...model.Pile) *station.PileRegistry {
	t.Helper()
	reg := station.NewPileRegistry()
	for _, p := range piles {
		p.Active = true
		if err := reg.Add(p); err != nil {
			t.Fatalf("add pile %s: %v", p.ID, err)
		}
	}
	return reg
}

func defaultStation(t *testing.T) *station.PileRegistry {
	return stationPiles(t,
		model.Pile{ID: "F01", Mode: model.ModeFast, Power: 30},
		model.Pile{ID: "F02", Mode: model.ModeFast, Power: 30},
		model.Pile{ID: "T01", Mode: model.ModeTrickle, Power: 10},
		model.Pile{ID: "T02", Mode: model.ModeTrickle, Power: 10},
		model.Pile{ID: "T03", Mode: model.ModeTrickle, Power: 10},
	)
}

// newTestEngine builds an engine over the registry with a controllable clock
// starting at noon (peak band).
func newTestEngine(t *testing.T, piles *station.PileRegistry, cfg Config, bus eventbus.EventBus) (*Engine, *time.Time) {
	t.Helper()
	e, err := New(piles, cfg, tariff.Config{}, bus, nil, nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	e.SetClock(func() time.Time { return now })
	return e, &now
}

func ticketByVehicle(t *testing.T, e *Engine, vehicleID string) model.Ticket {
	t.Helper()
	for _, tk := range e.Tickets() {
		if tk.VehicleID == vehicleID && !tk.Status.Terminal() {
			return tk
		}
	}
	t.Fatalf("no active ticket for vehicle %s", vehicleID)
	return model.Ticket{}
}

func TestSubmitStartsCharging(t *testing.T) {
	e, _ := newTestEngine(t, defaultStation(t), Config{}, nil)

	number, err := e.Submit("u1", "v1", model.ModeFast, 30)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if number != "F1" {
		t.Errorf("ticket number: %s", number)
	}

	tk, _ := e.Ticket(number)
	if tk.Status != model.TicketCharging || tk.PileID != "F01" {
		t.Fatalf("ticket should charge on F01, got %s at %q", tk.Status, tk.PileID)
	}
	rec, _ := e.Record(number)
	if rec.Status != model.RecordCharging {
		t.Errorf("record status: %s", rec.Status)
	}
	if rec.Band != "peak" {
		t.Errorf("noon session should bill at peak, got %s", rec.Band)
	}
	if rec.RemainingMinutes != 60 {
		t.Errorf("30 kWh at 30 kWh/h should leave 60 min, got %d", rec.RemainingMinutes)
	}
	pile := e.Piles()[0]
	if pile.Status != model.PileCharging {
		t.Errorf("pile status: %s", pile.Status)
	}
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	e, _ := newTestEngine(t, defaultStation(t), Config{}, nil)

	if _, err := e.Submit("u1", "v1", model.ModeFast, 0); !errors.As(err, &ValidationError{}) {
		t.Errorf("zero energy: %v", err)
	}
	if _, err := e.Submit("u1", "", model.ModeFast, 10); !errors.As(err, &ValidationError{}) {
		t.Errorf("empty vehicle: %v", err)
	}
	if _, err := e.Submit("u1", "v1", model.ModeFast, 30); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := e.Submit("u1", "v1", model.ModeFast, 30); !errors.As(err, &ConflictError{}) {
		t.Errorf("duplicate vehicle: %v", err)
	}
}

func TestSubmitStagingFull(t *testing.T) {
	piles := stationPiles(t, model.Pile{ID: "F01", Mode: model.ModeFast, Power: 30})
	e, _ := newTestEngine(t, piles, Config{StagingCapacity: 1, PileQueueLength: 1}, nil)

	// v1 charges, v2 queues, v3 waits in staging and fills it.
	for i, v := range []string{"v1", "v2", "v3"} {
		if _, err := e.Submit("u", v, model.ModeFast, 30); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if _, err := e.Submit("u", "v4", model.ModeFast, 30); !errors.As(err, &ConflictError{}) {
		t.Errorf("full staging area: %v", err)
	}

	if tk := ticketByVehicle(t, e, "v3"); tk.Status != model.TicketStaging {
		t.Errorf("v3 should wait in staging, got %s", tk.Status)
	}
}

func TestCancelQueuedTicket(t *testing.T) {
	piles := stationPiles(t, model.Pile{ID: "F01", Mode: model.ModeFast, Power: 30})
	e, _ := newTestEngine(t, piles, Config{}, nil)

	_, _ = e.Submit("u", "v1", model.ModeFast, 30)
	n2, _ := e.Submit("u", "v2", model.ModeFast, 30)

	if err := e.Cancel(n2); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	tk, _ := e.Ticket(n2)
	if tk.Status != model.TicketCancelled || tk.PileID != "" {
		t.Errorf("cancelled ticket: %s at %q", tk.Status, tk.PileID)
	}
	rec, _ := e.Record(n2)
	if rec.Status != model.RecordCompleted || rec.ActualEnergy != 0 {
		t.Errorf("cancelled record: %s %.1f", rec.Status, rec.ActualEnergy)
	}
	// The charging session is untouched.
	if tk1, _ := e.Ticket("F1"); tk1.Status != model.TicketCharging {
		t.Errorf("charging ticket disturbed: %s", tk1.Status)
	}
	if err := e.Cancel(n2); !errors.As(err, &ConflictError{}) {
		t.Errorf("double cancel: %v", err)
	}
}

func TestCancelChargingFinalizesAndPromotes(t *testing.T) {
	piles := stationPiles(t, model.Pile{ID: "F01", Mode: model.ModeFast, Power: 30})
	e, clock := newTestEngine(t, piles, Config{}, nil)

	n1, _ := e.Submit("u", "v1", model.ModeFast, 30)
	n2, _ := e.Submit("u", "v2", model.ModeFast, 30)

	*clock = clock.Add(20 * time.Minute)
	if err := e.Cancel(n1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	rec, _ := e.Record(n1)
	if rec.Status != model.RecordCompleted {
		t.Errorf("record status: %s", rec.Status)
	}
	if math.Abs(rec.ActualEnergy-10.0) > 1e-9 {
		t.Errorf("20 min at 30 kWh/h should deliver 10 kWh, got %.2f", rec.ActualEnergy)
	}
	// The queued ticket takes over the pile.
	tk2, _ := e.Ticket(n2)
	if tk2.Status != model.TicketCharging {
		t.Errorf("next ticket should be promoted, got %s", tk2.Status)
	}
}

func TestModifyEnergyRepricesPlan(t *testing.T) {
	piles := stationPiles(t, model.Pile{ID: "F01", Mode: model.ModeFast, Power: 30})
	e, _ := newTestEngine(t, piles, Config{}, nil)

	_, _ = e.Submit("u", "v1", model.ModeFast, 30)
	n2, _ := e.Submit("u", "v2", model.ModeFast, 10)

	energy := 20.0
	if err := e.Modify(n2, nil, &energy); err != nil {
		t.Fatalf("modify: %v", err)
	}
	rec, _ := e.Record(n2)
	if rec.PlannedEnergy != 20 {
		t.Errorf("planned energy: %.1f", rec.PlannedEnergy)
	}
	// Peak hour: 20*1.0 + 20*0.8.
	if math.Abs(rec.PlannedTotalFee-36.0) > 1e-9 {
		t.Errorf("planned fee: %.2f", rec.PlannedTotalFee)
	}
}

func TestModifyModeRenumbersStagingTicket(t *testing.T) {
	piles := stationPiles(t, model.Pile{ID: "F01", Mode: model.ModeFast, Power: 30})
	e, _ := newTestEngine(t, piles, Config{StagingCapacity: 3, PileQueueLength: 1}, nil)

	_, _ = e.Submit("u", "v1", model.ModeFast, 30)
	_, _ = e.Submit("u", "v2", model.ModeFast, 30)
	n3, _ := e.Submit("u", "v3", model.ModeFast, 30)

	if tk, _ := e.Ticket(n3); tk.Status != model.TicketStaging {
		t.Fatalf("v3 should be staging, got %s", tk.Status)
	}
	mode := model.ModeTrickle
	if err := e.Modify(n3, &mode, nil); err != nil {
		t.Fatalf("modify mode: %v", err)
	}
	tk := ticketByVehicle(t, e, "v3")
	if tk.Number != "T1" || tk.Mode != model.ModeTrickle {
		t.Errorf("renumbered ticket: %s %s", tk.Number, tk.Mode)
	}
	// No trickle pile exists, so it stays in staging.
	if tk.Status != model.TicketStaging {
		t.Errorf("status after mode change: %s", tk.Status)
	}
	rec, ok := e.Record("T1")
	if !ok || rec.Mode != model.ModeTrickle {
		t.Errorf("record should follow the new number: %v %s", ok, rec.Mode)
	}
}

func TestModifyQueuedEnergyRecomputesEta(t *testing.T) {
	piles := stationPiles(t, model.Pile{ID: "F01", Mode: model.ModeFast, Power: 30})
	e, clock := newTestEngine(t, piles, Config{}, nil)

	_, _ = e.Submit("u", "v1", model.ModeFast, 30) // charging, 60 min
	n2, _ := e.Submit("u", "v2", model.ModeFast, 30)
	_, _ = e.Submit("u", "v3", model.ModeFast, 30) // queued behind v2

	energy := 15.0
	if err := e.Modify(n2, nil, &energy); err != nil {
		t.Fatalf("modify: %v", err)
	}
	// Active session remainder plus its own 30 min. v3 waits behind it and
	// must not inflate the estimate.
	tk2, _ := e.Ticket(n2)
	if want := clock.Add(90 * time.Minute); !tk2.EstimatedDone.Equal(want) {
		t.Errorf("estimated done: got %s, want %s", tk2.EstimatedDone, want)
	}
}

func TestModifyQueuedModeRejected(t *testing.T) {
	piles := stationPiles(t, model.Pile{ID: "F01", Mode: model.ModeFast, Power: 30})
	e, _ := newTestEngine(t, piles, Config{}, nil)

	_, _ = e.Submit("u", "v1", model.ModeFast, 30)
	n2, _ := e.Submit("u", "v2", model.ModeFast, 30)

	mode := model.ModeTrickle
	if err := e.Modify(n2, &mode, nil); !errors.As(err, &ConflictError{}) {
		t.Errorf("queued mode change: %v", err)
	}
}

func TestManualStopBillsElapsedEnergy(t *testing.T) {
	e, clock := newTestEngine(t, defaultStation(t), Config{}, nil)

	n, _ := e.Submit("u", "v1", model.ModeFast, 30)
	*clock = clock.Add(30 * time.Minute)

	rec, err := e.ManualStop(n)
	if err != nil {
		t.Fatalf("manual stop: %v", err)
	}
	if math.Abs(rec.ActualEnergy-15.0) > 1e-9 {
		t.Errorf("delivered energy: %.2f", rec.ActualEnergy)
	}
	if math.Abs(rec.DurationHours-0.5) > 1e-9 {
		t.Errorf("duration: %.2f", rec.DurationHours)
	}
	// Peak band fixed at start: 15*1.0 + 15*0.8.
	if math.Abs(rec.ActualTotalFee-27.0) > 1e-9 {
		t.Errorf("total fee: %.2f", rec.ActualTotalFee)
	}
	pile := e.Piles()[0]
	if pile.Status != model.PileNormal {
		t.Errorf("pile should be idle again, got %s", pile.Status)
	}
	if pile.SessionCount != 1 || math.Abs(pile.TotalEnergy-15.0) > 1e-9 {
		t.Errorf("pile counters: %d sessions, %.2f kWh", pile.SessionCount, pile.TotalEnergy)
	}

	if _, err := e.ManualStop(n); !errors.As(err, &ConflictError{}) {
		t.Errorf("stopping a completed session: %v", err)
	}
}

func TestManualStopNeverExceedsRequested(t *testing.T) {
	e, clock := newTestEngine(t, defaultStation(t), Config{}, nil)

	n, _ := e.Submit("u", "v1", model.ModeFast, 10)
	*clock = clock.Add(2 * time.Hour)

	rec, err := e.ManualStop(n)
	if err != nil {
		t.Fatalf("manual stop: %v", err)
	}
	if rec.ActualEnergy != 10 {
		t.Errorf("billed energy is capped at the request, got %.2f", rec.ActualEnergy)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	e, clock := newTestEngine(t, defaultStation(t), Config{}, nil)

	n, _ := e.Submit("u", "v1", model.ModeFast, 30)
	e.mu.Lock()
	first, err := e.finalizeLocked(n, "manual_stop")
	if err != nil {
		e.mu.Unlock()
		t.Fatalf("finalize: %v", err)
	}
	*clock = clock.Add(time.Hour)
	second, err := e.finalizeLocked(n, "manual_stop")
	e.mu.Unlock()
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if first.EndedAt != second.EndedAt {
		t.Error("second finalize must not rewrite the record")
	}
}

func TestRemainingMinutesRoundsUpOddRequests(t *testing.T) {
	piles := stationPiles(t, model.Pile{ID: "F01", Mode: model.ModeFast, Power: 30})
	e, _ := newTestEngine(t, piles, Config{}, nil)

	n, _ := e.Submit("u", "v1", model.ModeFast, 50)
	rec, _ := e.Record(n)
	if rec.RemainingMinutes != 100 {
		t.Errorf("50 kWh at 30 kWh/h should arm 100 min, got %d", rec.RemainingMinutes)
	}
}

func TestReadAccessorsDuringMutation(t *testing.T) {
	// Readers and writers race on the engine; run with -race. A snapshot
	// taken mid-pass must still show seated tickets attached to a pile.
	e, _ := newTestEngine(t, defaultStation(t), Config{}, nil)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			for _, tk := range e.Tickets() {
				if (tk.Status == model.TicketQueued || tk.Status == model.TicketCharging) && tk.PileID == "" {
					t.Errorf("ticket %s is %s without a pile", tk.Number, tk.Status)
				}
			}
			e.Records()
			e.Piles()
			e.Ticket("F1")
			e.Record("F1")
		}
	}()

	for i := 0; i < 8; i++ {
		if _, err := e.Submit("u", fmt.Sprintf("v%d", i), model.ModeFast, 30); err != nil {
			t.Errorf("submit %d: %v", i, err)
		}
	}
	close(done)
	wg.Wait()

	if n := len(e.Tickets()); n != 8 {
		t.Errorf("ticket count: %d", n)
	}
}

func TestRecoverStateReseatsOrphans(t *testing.T) {
	e, _ := newTestEngine(t, defaultStation(t), Config{}, nil)

	n, _ := e.Submit("u", "v1", model.ModeFast, 30)
	// Simulate a pile withdrawn while the ticket was attached to it.
	_ = e.piles.Update("F01", func(p *model.Pile) {
		p.Active = false
		p.Status = model.PileOffline
	})

	e.RecoverState()
	tk, _ := e.Ticket(n)
	if tk.PileID != "F02" || tk.Status != model.TicketCharging {
		t.Errorf("orphan should restart on F02, got %s at %q", tk.Status, tk.PileID)
	}
}
