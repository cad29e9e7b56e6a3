package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventRentalCreated          = "rental_created"
	EventRentalConfirmed        = "rental_confirmed"
	EventRentalPaymentFailed    = "rental_payment_failed"
	EventRentalStatusChanged    = "rental_status_changed"
	EventRentalCancelled        = "rental_cancelled"
	EventRentalExpired          = "rental_expired"
	EventRentalDeleted          = "rental_deleted"
	EventAvailabilitySyncFailed = "availability_sync_failed"
)

// RentalEvent is the payload published on the rental events topic/queue.
type RentalEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	RentalID   int64           `json:"rental_id"`
	VehicleID  int64           `json:"vehicle_id"`
	ClientID   int64           `json:"client_id"`
	Status     RentalStatus    `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	PaymentID  *int64          `json:"payment_id,omitempty"`
	Stage      Stage           `json:"stage,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Attempt    int             `json:"attempt,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}
