package rental

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/carrental/internal/domain"
	"github.com/Domenick1991/carrental/internal/service/payments"
)

// SettlePayment confirms a transfer or cash payment awaiting confirmation and moves the
// rental to CONFIRMED.
func (s *RentalService) SettlePayment(ctx context.Context, id int64) (*domain.Rental, error) {
	rental, err := s.load(ctx, id, domain.StageConfirm)
	if err != nil {
		return nil, err
	}
	if rental.Status != domain.RentalStatusPending {
		return nil, domain.Fail(domain.ErrInvalidTransition, domain.StageConfirm, id, rental.VehicleID,
			fmt.Errorf("rental is %s, only %s rentals can be settled", rental.Status, domain.RentalStatusPending))
	}

	list, err := s.payments.ListByRental(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list payments of rental %d: %w", id, err)
	}
	var awaiting *domain.Payment
	for i := range list {
		if list[i].Status == domain.PaymentStatusAwaiting {
			awaiting = &list[i]
			break
		}
	}
	if awaiting == nil {
		return nil, domain.Fail(domain.ErrValidation, domain.StagePayment, id, rental.VehicleID,
			errors.New("no payment awaiting confirmation"))
	}

	payment, err := s.payments.ConfirmManual(ctx, awaiting.ID)
	if err != nil {
		return nil, domain.Fail(domain.ErrPaymentFailed, domain.StagePayment, id, rental.VehicleID, err)
	}
	return s.confirm(ctx, rental, payment)
}

// RetryPayment captures payment again for a PENDING rental whose earlier attempt was
// declined or never reached the provider. The reservation is reused as is.
func (s *RentalService) RetryPayment(ctx context.Context, id int64, method domain.PaymentMethod) (*domain.Rental, error) {
	if method != "" {
		if _, ok := domain.ParsePaymentMethod(string(method)); !ok {
			return nil, domain.Fail(domain.ErrValidation, domain.StagePayment, id, 0,
				fmt.Errorf("unknown payment method %s", method))
		}
	}
	rental, err := s.load(ctx, id, domain.StagePayment)
	if err != nil {
		return nil, err
	}
	if rental.Status != domain.RentalStatusPending || rental.PaymentID != nil {
		return nil, domain.Fail(domain.ErrInvalidTransition, domain.StagePayment, id, rental.VehicleID,
			fmt.Errorf("rental is %s, only unpaid %s rentals can be paid", rental.Status, domain.RentalStatusPending))
	}

	list, err := s.payments.ListByRental(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list payments of rental %d: %w", id, err)
	}
	for _, p := range list {
		switch p.Status {
		case domain.PaymentStatusAwaiting:
			return nil, domain.Fail(domain.ErrValidation, domain.StagePayment, id, rental.VehicleID,
				fmt.Errorf("payment %d is awaiting manual confirmation", p.ID))
		case domain.PaymentStatusSucceeded, domain.PaymentStatusInProgress:
			return nil, domain.Fail(domain.ErrHasActivePayment, domain.StagePayment, id, rental.VehicleID,
				fmt.Errorf("payment %d is %s", p.ID, p.Status))
		}
	}

	s.log.InfoContext(ctx, "retrying rental payment",
		"rental_id", id, "vehicle_id", rental.VehicleID, "attempt", len(list)+1, "method", method)
	payment, err := s.payments.Capture(ctx, payments.CaptureInput{
		RentalID: rental.ID,
		ClientID: rental.ClientID,
		Amount:   rental.TotalAmount,
		Method:   method,
	})
	return s.settleCapture(ctx, rental, payment, err)
}

// ExpireStalePending cancels unpaid PENDING rentals older than the hold period so they
// stop blocking the vehicle's calendar. A pending rental never marked the vehicle RENTED,
// so no availability write is owed.
func (s *RentalService) ExpireStalePending(ctx context.Context) ([]domain.Rental, error) {
	deadline := s.now().Add(-s.pendingHold)
	expired, err := s.rentals.ExpirePendingBefore(ctx, deadline)
	if err != nil {
		return nil, fmt.Errorf("expire pending rentals: %w", err)
	}
	for i := range expired {
		s.publish(ctx, s.newEvent(domain.EventRentalExpired, &expired[i]))
	}
	if len(expired) > 0 {
		s.log.InfoContext(ctx, "expired stale pending rentals", "count", len(expired), "deadline", deadline)
	}
	return expired, nil
}

// ReconcileAvailability replays a failed availability write. The desired state is derived
// from the vehicle's current rentals, not from the event, so stale events are harmless.
func (s *RentalService) ReconcileAvailability(ctx context.Context, event domain.RentalEvent) error {
	if event.Type != domain.EventAvailabilitySyncFailed || event.VehicleID <= 0 {
		return nil
	}

	active, err := s.rentals.ListActiveByVehicle(ctx, event.VehicleID)
	if err != nil {
		return fmt.Errorf("list rentals of vehicle %d: %w", event.VehicleID, err)
	}
	held := false
	for _, r := range active {
		if r.Status.HoldsVehicle() {
			held = true
			break
		}
	}

	if err := s.vehicles.SetAvailability(ctx, event.VehicleID, !held); err != nil {
		return domain.Fail(domain.ErrRemote, domain.StageAvailability, event.RentalID, event.VehicleID, err)
	}
	s.log.InfoContext(ctx, "vehicle availability reconciled",
		"vehicle_id", event.VehicleID, "rental_id", event.RentalID, "rented", held)
	return nil
}
