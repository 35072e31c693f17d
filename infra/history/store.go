// Package history persists finalized billing records so past sessions
// survive a restart and stay queryable for user billing detail pages.
package history

import (
	"context"
	"time"

	"github.com/evgrid/stationd/core/model"
)

// Query defines filters for retrieving billing records.
type Query struct {
	Start  time.Time
	End    time.Time
	UserID string
	PileID string
}

// Store persists billing records and supports querying.
type Store interface {
	Append(ctx context.Context, rec model.BillingRecord) error
	Query(ctx context.Context, q Query) ([]model.BillingRecord, error)
	Close() error
}

func matches(rec model.BillingRecord, q Query) bool {
	if !q.Start.IsZero() && rec.EndedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && rec.EndedAt.After(q.End) {
		return false
	}
	if q.UserID != "" && rec.UserID != q.UserID {
		return false
	}
	if q.PileID != "" && rec.PileID != q.PileID {
		return false
	}
	return true
}
