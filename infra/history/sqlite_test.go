package history

import (
	"context"
	"testing"
	"time"

	"github.com/evgrid/stationd/core/model"
)

func TestSQLiteStorePersistQuery(t *testing.T) {
	store, err := NewSQLiteStore("file:test.db?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()

	ended := time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC)
	rec := model.BillingRecord{
		Number:       "KUAI202608301200000001",
		TicketNumber: "F1",
		UserID:       "u1",
		PileID:       "F01",
		ActualEnergy: 15,
		EndedAt:      ended,
		Status:       model.RecordCompleted,
	}
	if err := store.Append(context.Background(), rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	out, err := store.Query(context.Background(), Query{UserID: "u1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].TicketNumber != "F1" {
		t.Fatalf("expected the stored record, got %v", out)
	}

	out, err = store.Query(context.Background(), Query{Start: ended.Add(time.Hour)})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("time filter should exclude the record, got %d", len(out))
	}
}
