package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RentalStatus string

const (
	RentalStatusPending    RentalStatus = "PENDING"
	RentalStatusConfirmed  RentalStatus = "CONFIRMED"
	RentalStatusInProgress RentalStatus = "IN_PROGRESS"
	RentalStatusCompleted  RentalStatus = "COMPLETED"
	RentalStatusCancelled  RentalStatus = "CANCELLED"
)

// ActiveRentalStatuses are the statuses that hold a vehicle's calendar.
var ActiveRentalStatuses = []RentalStatus{
	RentalStatusPending,
	RentalStatusConfirmed,
	RentalStatusInProgress,
}

type Rental struct {
	ID          int64           `json:"id"`
	VehicleID   int64           `json:"vehicle_id"`
	ClientID    int64           `json:"client_id"`
	StartDate   time.Time       `json:"start_date"`
	EndDate     time.Time       `json:"end_date"`
	Status      RentalStatus    `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaymentID   *int64          `json:"payment_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RentalDetails joins a rental with its client and vehicle projections.
type RentalDetails struct {
	Rental  Rental   `json:"rental"`
	Client  *Client  `json:"client,omitempty"`
	Vehicle *Vehicle `json:"vehicle,omitempty"`
	Days    int      `json:"days"`
}

type RentalFilter struct {
	ClientID  int64
	VehicleID int64
	Status    RentalStatus
	From      time.Time
	To        time.Time
}

func ParseRentalStatus(s string) (RentalStatus, bool) {
	switch st := RentalStatus(s); st {
	case RentalStatusPending, RentalStatusConfirmed, RentalStatusInProgress, RentalStatusCompleted, RentalStatusCancelled:
		return st, true
	}
	return "", false
}

func (s RentalStatus) IsActive() bool {
	switch s {
	case RentalStatusPending, RentalStatusConfirmed, RentalStatusInProgress:
		return true
	}
	return false
}

func (s RentalStatus) IsTerminal() bool {
	return s == RentalStatusCompleted || s == RentalStatusCancelled
}

// HoldsVehicle reports whether a rental in this status keeps the vehicle RENTED.
func (s RentalStatus) HoldsVehicle() bool {
	return s == RentalStatusConfirmed || s == RentalStatusInProgress
}

var rentalTransitions = map[RentalStatus][]RentalStatus{
	RentalStatusPending:    {RentalStatusConfirmed, RentalStatusCancelled},
	RentalStatusConfirmed:  {RentalStatusInProgress, RentalStatusCancelled},
	RentalStatusInProgress: {RentalStatusCompleted},
}

func (s RentalStatus) CanTransitionTo(target RentalStatus) bool {
	for _, next := range rentalTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// ValidateTransition returns ErrInvalidTransition for any edge outside the lifecycle table.
func ValidateTransition(from, to RentalStatus) error {
	if !from.CanTransitionTo(to) {
		return &SagaError{Kind: ErrInvalidTransition, Stage: StageTransition, Err: transitionError{from: from, to: to}}
	}
	return nil
}

type transitionError struct {
	from, to RentalStatus
}

func (e transitionError) Error() string {
	return string(e.from) + " -> " + string(e.to)
}

type AvailabilityAction int

const (
	AvailabilityNone AvailabilityAction = iota
	AvailabilitySetRented
	AvailabilitySetAvailable
)

// AvailabilityActionFor returns the vehicle side effect owed once a rental reaches status.
func AvailabilityActionFor(status RentalStatus) AvailabilityAction {
	switch status {
	case RentalStatusConfirmed, RentalStatusInProgress:
		return AvailabilitySetRented
	case RentalStatusCancelled, RentalStatusCompleted:
		return AvailabilitySetAvailable
	default:
		return AvailabilityNone
	}
}

func (a AvailabilityAction) String() string {
	switch a {
	case AvailabilitySetRented:
		return "set_rented"
	case AvailabilitySetAvailable:
		return "set_available"
	default:
		return "none"
	}
}
