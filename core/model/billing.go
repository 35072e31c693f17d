package model

import "time"

// RecordStatus is the lifecycle state of a billing record. It moves in
// lock-step with the linked ticket.
type RecordStatus int

const (
	RecordCreated RecordStatus = iota
	RecordAssigned
	RecordCharging
	RecordSuspended
	RecordCompleted
)

// String returns a human-readable representation of the status.
func (s RecordStatus) String() string {
	switch s {
	case RecordCreated:
		return "created"
	case RecordAssigned:
		return "assigned"
	case RecordCharging:
		return "charging"
	case RecordSuspended:
		return "suspended"
	case RecordCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// BillingRecord tracks planned versus actual energy, fees and timing for one
// ticket. Created at submission, finalized when the session terminates, never
// deleted.
type BillingRecord struct {
	ID           string `json:"id"`            // internal uuid
	Number       string `json:"number"`        // order number, mode prefix + date + time + sequence
	TicketNumber string `json:"ticket_number"` // link to the ticket
	UserID       string `json:"user_id"`
	VehicleID    string `json:"vehicle_id"`
	Mode         PileMode `json:"mode"`
	PileID       string   `json:"pile_id"` // empty until assigned

	// Planned figures, estimated at submission using the current tariff hour.
	PlannedEnergy         float64 `json:"planned_energy"`
	PlannedElectricityFee float64 `json:"planned_electricity_fee"`
	PlannedServiceFee     float64 `json:"planned_service_fee"`
	PlannedTotalFee       float64 `json:"planned_total_fee"`

	// Billed tariff, fixed at the session start hour.
	UnitRate float64 `json:"unit_rate"`
	Band     string  `json:"band"`

	// Actual figures, advanced by the monitor while charging and frozen at
	// termination.
	ActualEnergy         float64 `json:"actual_energy"`
	DurationHours        float64 `json:"duration_hours"`
	ActualElectricityFee float64 `json:"actual_electricity_fee"`
	ActualServiceFee     float64 `json:"actual_service_fee"`
	ActualTotalFee       float64 `json:"actual_total_fee"`

	RemainingMinutes int `json:"remaining_minutes"`

	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at"`
	CreatedAt time.Time    `json:"created_at"`
	Status    RecordStatus `json:"status"`
}
