package station

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evgrid/stationd/core/model"
)

// Ledger owns the billing records. Records are created alongside their ticket
// and kept in lock-step with ticket transitions; they are never deleted.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]model.BillingRecord // by ticket number
	daySeq  int
	day     string
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{records: map[string]model.BillingRecord{}}
}

// NextRecordNumber allocates an order number: mode prefix, date, time and a
// four-digit daily sequence.
func (l *Ledger) NextRecordNumber(mode model.PileMode, now time.Time) string {
	prefix := "KUAI"
	if mode == model.ModeTrickle {
		prefix = "MAN"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	day := now.Format("20060102")
	if day != l.day {
		l.day = day
		l.daySeq = 0
	}
	l.daySeq++
	return fmt.Sprintf("%s%s%s%04d", prefix, day, now.Format("150405"), l.daySeq)
}

// Create stores a new record for the ticket, assigning its internal id.
func (l *Ledger) Create(rec model.BillingRecord) (model.BillingRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.records[rec.TicketNumber]; ok {
		return model.BillingRecord{}, fmt.Errorf("billing record for ticket %s already exists", rec.TicketNumber)
	}
	rec.ID = uuid.NewString()
	l.records[rec.TicketNumber] = rec
	return rec, nil
}

// Get returns a copy of the record linked to the ticket.
func (l *Ledger) Get(ticketNumber string) (model.BillingRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[ticketNumber]
	return rec, ok
}

// Update applies fn to the record under the ledger lock.
func (l *Ledger) Update(ticketNumber string, fn func(*model.BillingRecord)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[ticketNumber]
	if !ok {
		return fmt.Errorf("billing record for ticket %s not found", ticketNumber)
	}
	fn(&rec)
	l.records[ticketNumber] = rec
	return nil
}

// Rekey relinks a record to a new ticket number after a staging mode change.
func (l *Ledger) Rekey(oldNumber, newNumber string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[oldNumber]
	if !ok {
		return fmt.Errorf("billing record for ticket %s not found", oldNumber)
	}
	if _, ok := l.records[newNumber]; ok {
		return fmt.Errorf("billing record for ticket %s already exists", newNumber)
	}
	delete(l.records, oldNumber)
	rec.TicketNumber = newNumber
	l.records[newNumber] = rec
	return nil
}

// ByStatus returns the records in the given status, oldest first.
func (l *Ledger) ByStatus(status model.RecordStatus) []model.BillingRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var res []model.BillingRecord
	for _, rec := range l.records {
		if rec.Status == status {
			res = append(res, rec)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res
}

// All returns a copy of every record.
func (l *Ledger) All() []model.BillingRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	res := make([]model.BillingRecord, 0, len(l.records))
	for _, rec := range l.records {
		res = append(res, rec)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res
}
