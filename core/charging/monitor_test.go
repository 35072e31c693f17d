package charging

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/evgrid/stationd/core/events"
	"github.com/evgrid/stationd/core/model"
	"github.com/evgrid/stationd/internal/eventbus"
)

func collectFinalized(bus eventbus.EventBus) <-chan events.SessionFinalized {
	out := make(chan events.SessionFinalized, 16)
	ch := bus.Subscribe()
	go func() {
		for ev := range ch {
			if fin, ok := ev.(events.SessionFinalized); ok {
				out <- fin
			}
		}
		close(out)
	}()
	return out
}

func TestTickAdvancesBilling(t *testing.T) {
	e, clock := newTestEngine(t, defaultStation(t), Config{}, nil)

	n, _ := e.Submit("u", "v1", model.ModeFast, 30)
	*clock = clock.Add(30 * time.Minute)
	e.Tick()

	rec, _ := e.Record(n)
	if rec.Status != model.RecordCharging {
		t.Fatalf("session should still run, got %s", rec.Status)
	}
	if math.Abs(rec.ActualEnergy-15.0) > 1e-9 {
		t.Errorf("delivered energy: %.2f", rec.ActualEnergy)
	}
	// 15 kWh at peak: 15*1.0 + 15*0.8.
	if math.Abs(rec.ActualTotalFee-27.0) > 1e-9 {
		t.Errorf("running fee: %.2f", rec.ActualTotalFee)
	}
	if rec.RemainingMinutes != 59 {
		t.Errorf("remaining after one tick: %d", rec.RemainingMinutes)
	}
}

func TestTickCompletesWhenRequestMet(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	e, clock := newTestEngine(t, defaultStation(t), Config{}, bus)
	fins := collectFinalized(bus)

	n, _ := e.Submit("u", "v1", model.ModeFast, 30)
	*clock = clock.Add(time.Hour)
	e.Tick()

	rec, _ := e.Record(n)
	if rec.Status != model.RecordCompleted {
		t.Fatalf("record status: %s", rec.Status)
	}
	if rec.ActualEnergy != 30 {
		t.Errorf("delivered energy: %.2f", rec.ActualEnergy)
	}
	select {
	case fin := <-fins:
		if fin.Reason != "completed" {
			t.Errorf("finalize reason: %s", fin.Reason)
		}
	case <-time.After(time.Second):
		t.Fatal("no finalize event")
	}
	pile := e.Piles()[0]
	if pile.Status != model.PileNormal {
		t.Errorf("pile should be idle, got %s", pile.Status)
	}
}

func TestTickExpiresStalledSession(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	e, _ := newTestEngine(t, defaultStation(t), Config{}, bus)
	fins := collectFinalized(bus)

	// 1 kWh on a trickle pile arms a 6 minute counter. The frozen clock
	// delivers no energy, so the counter runs out.
	n, _ := e.Submit("u", "v1", model.ModeTrickle, 1)
	for i := 0; i < 6; i++ {
		e.Tick()
	}

	rec, _ := e.Record(n)
	if rec.Status != model.RecordCompleted {
		t.Fatalf("record status: %s", rec.Status)
	}
	if rec.ActualEnergy != 0 {
		t.Errorf("no energy was delivered, got %.2f", rec.ActualEnergy)
	}
	select {
	case fin := <-fins:
		if fin.Reason != "time_expired" {
			t.Errorf("finalize reason: %s", fin.Reason)
		}
	case <-time.After(time.Second):
		t.Fatal("no finalize event")
	}
}

func TestTickPromotesAfterCompletion(t *testing.T) {
	piles := stationPiles(t, model.Pile{ID: "F01", Mode: model.ModeFast, Power: 30})
	e, clock := newTestEngine(t, piles, Config{}, nil)

	n1, _ := e.Submit("u", "v1", model.ModeFast, 30)
	n2, _ := e.Submit("u", "v2", model.ModeFast, 30)

	*clock = clock.Add(time.Hour)
	e.Tick()

	if rec, _ := e.Record(n1); rec.Status != model.RecordCompleted {
		t.Fatalf("first session: %s", rec.Status)
	}
	tk2, _ := e.Ticket(n2)
	if tk2.Status != model.TicketCharging {
		t.Errorf("queued ticket should take over, got %s", tk2.Status)
	}
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	e, _ := newTestEngine(t, defaultStation(t), Config{MonitorIntervalSeconds: 1}, nil)
	m := NewMonitor(e, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}
