package model

import (
	"strconv"
	"time"
)

// TicketStatus is the lifecycle state of a charging request.
type TicketStatus int

const (
	TicketStaging TicketStatus = iota
	TicketQueued
	TicketCharging
	TicketFaultSuspended
	TicketCompleted
	TicketCancelled
)

// String returns a human-readable representation of the status.
func (s TicketStatus) String() string {
	switch s {
	case TicketStaging:
		return "staging"
	case TicketQueued:
		return "queued"
	case TicketCharging:
		return "charging"
	case TicketFaultSuspended:
		return "fault_suspended"
	case TicketCompleted:
		return "completed"
	case TicketCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final. Terminal tickets are kept as
// history and never scheduled again.
func (s TicketStatus) Terminal() bool {
	return s == TicketCompleted || s == TicketCancelled
}

// Ticket is one vehicle's charging request and its lifecycle state.
type Ticket struct {
	Number    string // mode-prefixed sequence, e.g. "F12"
	Seq       int64  // submission sequence, assigned atomically at admission
	UserID    string
	VehicleID string
	Mode      PileMode
	Energy    float64 // requested energy in kWh
	PileID    string  // empty until queued at a pile
	Status    TicketStatus

	SubmittedAt   time.Time
	EnqueuedAt    time.Time // when seated at a pile queue
	StartedAt     time.Time // when charging began
	EstimatedDone time.Time
}

// NumberSuffix returns the numeric part of the ticket number, or 0 when the
// number is malformed.
func (t Ticket) NumberSuffix() int {
	if len(t.Number) < 2 {
		return 0
	}
	n, err := strconv.Atoi(t.Number[1:])
	if err != nil {
		return 0
	}
	return n
}
