// Package events defines the notifications published on the engine event bus.
package events

import "github.com/evgrid/stationd/core/model"

// TicketSubmitted is published when a charging request is admitted to the
// staging area.
type TicketSubmitted struct {
	Ticket model.Ticket
}

// TicketQueued is published when a ticket is seated at a pile queue.
type TicketQueued struct {
	Ticket model.Ticket
	PileID string
}

// ChargeStarted is published when a queued ticket is promoted to charging.
type ChargeStarted struct {
	Ticket model.Ticket
	PileID string
}

// SessionFinalized is published when a charging session terminates, whatever
// the cause.
type SessionFinalized struct {
	Ticket model.Ticket
	Record model.BillingRecord
	Reason string // "completed", "manual_stop", "cancelled", "time_expired"
}

// TicketCancelled is published when a staging or queued ticket is cancelled.
type TicketCancelled struct {
	Ticket model.Ticket
}

// PileFaulted is published when a pile is declared faulty.
type PileFaulted struct {
	PileID   string
	Strategy string
	Affected int
}

// PileRecovered is published when a faulted pile returns to service.
type PileRecovered struct {
	PileID string
}
