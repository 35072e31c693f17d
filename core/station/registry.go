package station

import (
	"fmt"
	"sort"
	"sync"

	"github.com/evgrid/stationd/core/model"
)

// PileRegistry holds the set of charging piles. Piles are created at
// provisioning and never deleted while referenced by active tickets; only
// their status and counters change.
type PileRegistry struct {
	mu    sync.RWMutex
	piles map[string]model.Pile
	order map[string]int // registration order, used for deterministic ties
	next  int
}

// NewPileRegistry creates an empty registry.
func NewPileRegistry() *PileRegistry {
	return &PileRegistry{piles: map[string]model.Pile{}, order: map[string]int{}}
}

// Add registers a pile. Adding a duplicate id is an error.
func (r *PileRegistry) Add(p model.Pile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.piles[p.ID]; ok {
		return fmt.Errorf("pile %s already registered", p.ID)
	}
	r.piles[p.ID] = p
	r.order[p.ID] = r.next
	r.next++
	return nil
}

// Get returns a copy of the pile.
func (r *PileRegistry) Get(id string) (model.Pile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.piles[id]
	return p, ok
}

// List returns all piles in registration order.
func (r *PileRegistry) List() []model.Pile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]model.Pile, 0, len(r.piles))
	for _, p := range r.piles {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return r.order[res[i].ID] < r.order[res[j].ID] })
	return res
}

// ByMode returns the piles of the given mode in registration order.
func (r *PileRegistry) ByMode(mode model.PileMode) []model.Pile {
	all := r.List()
	res := all[:0]
	for _, p := range all {
		if p.Mode == mode {
			res = append(res, p)
		}
	}
	return res
}

// Update applies fn to the pile under the registry lock.
func (r *PileRegistry) Update(id string, fn func(*model.Pile)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.piles[id]
	if !ok {
		return fmt.Errorf("pile %s not registered", id)
	}
	fn(&p)
	r.piles[id] = p
	return nil
}
