package station

import (
	"fmt"
	"sort"
	"sync"

	"github.com/evgrid/stationd/core/model"
)

// QueueStore owns the in-flight tickets and their lifecycle state. Terminal
// tickets are retained as history.
type QueueStore struct {
	mu      sync.RWMutex
	tickets map[string]model.Ticket // by ticket number
	seq     int64
	counter map[model.PileMode]int // per-mode ticket number allocation
}

// NewQueueStore creates an empty store.
func NewQueueStore() *QueueStore {
	return &QueueStore{
		tickets: map[string]model.Ticket{},
		counter: map[model.PileMode]int{},
	}
}

// NextNumber allocates the next ticket number for the mode. Numbers are
// mode-prefixed and monotonically increasing, e.g. F1, F2, T1.
func (s *QueueStore) NextNumber(mode model.PileMode) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter[mode]++
	return fmt.Sprintf("%s%d", mode.Prefix(), s.counter[mode])
}

// NextSeq atomically allocates the next submission sequence number.
func (s *QueueStore) NextSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Put stores the ticket, keyed by its number.
func (s *QueueStore) Put(t model.Ticket) {
	s.mu.Lock()
	s.tickets[t.Number] = t
	s.mu.Unlock()
}

// Get returns a copy of the ticket.
func (s *QueueStore) Get(number string) (model.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[number]
	return t, ok
}

// Update applies fn to the ticket under the store lock.
func (s *QueueStore) Update(number string, fn func(*model.Ticket)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[number]
	if !ok {
		return fmt.Errorf("ticket %s not found", number)
	}
	fn(&t)
	s.tickets[number] = t
	return nil
}

// Rekey moves a ticket to a new number, e.g. after a mode change in staging.
func (s *QueueStore) Rekey(oldNumber, newNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[oldNumber]
	if !ok {
		return fmt.Errorf("ticket %s not found", oldNumber)
	}
	if _, ok := s.tickets[newNumber]; ok {
		return fmt.Errorf("ticket %s already exists", newNumber)
	}
	delete(s.tickets, oldNumber)
	t.Number = newNumber
	s.tickets[newNumber] = t
	return nil
}

// ActiveByVehicle returns the vehicle's non-terminal ticket, if any. A vehicle
// has at most one such ticket at any time.
func (s *QueueStore) ActiveByVehicle(vehicleID string) (model.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tickets {
		if t.VehicleID == vehicleID && !t.Status.Terminal() {
			return t, true
		}
	}
	return model.Ticket{}, false
}

// StagingCount returns the number of tickets waiting in the staging area.
func (s *QueueStore) StagingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.tickets {
		if t.Status == model.TicketStaging {
			n++
		}
	}
	return n
}

// ByStatus returns the tickets of the mode in the given status, ordered by
// submission sequence (FCFS).
func (s *QueueStore) ByStatus(status model.TicketStatus, mode model.PileMode) []model.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Ticket
	for _, t := range s.tickets {
		if t.Status == status && t.Mode == mode {
			res = append(res, t)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Seq < res[j].Seq })
	return res
}

// QueuedAt returns the tickets queued at the pile, ordered by enqueue time.
func (s *QueueStore) QueuedAt(pileID string) []model.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Ticket
	for _, t := range s.tickets {
		if t.Status == model.TicketQueued && t.PileID == pileID {
			res = append(res, t)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].EnqueuedAt.Equal(res[j].EnqueuedAt) {
			return res[i].Seq < res[j].Seq
		}
		return res[i].EnqueuedAt.Before(res[j].EnqueuedAt)
	})
	return res
}

// CountQueuedAt returns the number of tickets queued at the pile.
func (s *QueueStore) CountQueuedAt(pileID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.tickets {
		if t.Status == model.TicketQueued && t.PileID == pileID {
			n++
		}
	}
	return n
}

// ChargingAt returns the ticket currently charging at the pile, if any.
func (s *QueueStore) ChargingAt(pileID string) (model.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tickets {
		if t.Status == model.TicketCharging && t.PileID == pileID {
			return t, true
		}
	}
	return model.Ticket{}, false
}

// All returns a copy of every ticket, terminal ones included.
func (s *QueueStore) All() []model.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]model.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Seq < res[j].Seq })
	return res
}
