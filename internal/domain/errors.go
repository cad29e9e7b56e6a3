package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidRange       = errors.New("invalid date range")
	ErrVehicleNotFound    = errors.New("vehicle not found")
	ErrVehicleUnavailable = errors.New("vehicle unavailable")
	ErrDateRangeConflict  = errors.New("date range conflicts with an existing rental")
	ErrPaymentFailed      = errors.New("payment failed")
	ErrPaymentUnavailable = errors.New("payment provider unavailable")
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrRefundFailed       = errors.New("refund failed")
	ErrHasActivePayment   = errors.New("rental has an active payment, cancel it first")
	ErrRemote             = errors.New("remote service error")
)

// Stage names the saga step an error was raised in.
type Stage string

const (
	StageValidate     Stage = "validate"
	StageLock         Stage = "lock"
	StageVehicle      Stage = "vehicle"
	StageReserve      Stage = "reserve"
	StagePayment      Stage = "payment"
	StageConfirm      Stage = "confirm"
	StageTransition   Stage = "transition"
	StageRefund       Stage = "refund"
	StagePersist      Stage = "persist"
	StageAvailability Stage = "availability"
	StageDelete       Stage = "delete"
)

// SagaError carries the error kind (one of the sentinels above) plus enough context
// to retry or reconcile the failed stage by hand.
type SagaError struct {
	Kind      error
	Stage     Stage
	RentalID  int64
	VehicleID int64
	Err       error
}

func (e *SagaError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Stage != "" {
		fmt.Fprintf(&b, " (stage=%s", e.Stage)
		if e.RentalID != 0 {
			fmt.Fprintf(&b, " rental=%d", e.RentalID)
		}
		if e.VehicleID != 0 {
			fmt.Fprintf(&b, " vehicle=%d", e.VehicleID)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *SagaError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Fail builds a SagaError of the given kind.
func Fail(kind error, stage Stage, rentalID, vehicleID int64, cause error) *SagaError {
	return &SagaError{Kind: kind, Stage: stage, RentalID: rentalID, VehicleID: vehicleID, Err: cause}
}

// AsSagaError extracts the SagaError from err's chain, if any.
func AsSagaError(err error) (*SagaError, bool) {
	var se *SagaError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
