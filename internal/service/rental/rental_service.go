package rental

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/Domenick1991/carrental/internal/domain"
	"github.com/Domenick1991/carrental/internal/logger"
	"github.com/Domenick1991/carrental/internal/repository"
	"github.com/Domenick1991/carrental/internal/service/payments"
)

type RentalUseCase interface {
	CreateRental(ctx context.Context, input CreateRentalInput) (*domain.Rental, error)
	ChangeStatus(ctx context.Context, id int64, target domain.RentalStatus, refund bool) (*domain.Rental, error)
	DeleteRental(ctx context.Context, id int64) error
	IsVehicleAvailable(ctx context.Context, vehicleID int64, start, end time.Time) (bool, error)
	GetRental(ctx context.Context, id int64) (*domain.Rental, error)
	ListRentals(ctx context.Context, filter domain.RentalFilter) ([]domain.Rental, error)
	ActiveRentals(ctx context.Context) ([]domain.Rental, error)
	RentalDetails(ctx context.Context, id int64) (*domain.RentalDetails, error)
	SettlePayment(ctx context.Context, id int64) (*domain.Rental, error)
	RetryPayment(ctx context.Context, id int64, method domain.PaymentMethod) (*domain.Rental, error)
	ExpireStalePending(ctx context.Context) ([]domain.Rental, error)
	ReconcileAvailability(ctx context.Context, event domain.RentalEvent) error
}

type VehicleClient interface {
	GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error)
	SetAvailability(ctx context.Context, id int64, available bool) error
}

type ClientDirectory interface {
	GetClient(ctx context.Context, id int64) (*domain.Client, error)
}

type Cache interface {
	AcquireVehicleLock(ctx context.Context, vehicleID int64, ttl time.Duration) (bool, error)
	ReleaseVehicleLock(ctx context.Context, vehicleID int64) error
	GetClient(ctx context.Context, id int64) (*domain.Client, error)
	SetClient(ctx context.Context, client *domain.Client) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value any) error
	PublishWithRetry(ctx context.Context, topic, key string, value any, maxRetries int) error
}

const publishRetries = 3

type RentalService struct {
	rentals            repository.RentalRepository
	payments           payments.PaymentUseCase
	vehicles           VehicleClient
	clients            ClientDirectory
	cache              Cache
	producer           Producer
	eventsTopic        string
	notificationsTopic string
	lockTTL            time.Duration
	pendingHold        time.Duration
	now                func() time.Time
	clientLookups      singleflight.Group
	log                *slog.Logger
}

type CreateRentalInput struct {
	VehicleID int64                `json:"vehicle_id"`
	ClientID  int64                `json:"client_id"`
	StartDate time.Time            `json:"start_date"`
	EndDate   time.Time            `json:"end_date"`
	Method    domain.PaymentMethod `json:"payment_method"`
}

type RentalServiceOption func(*RentalService)

func WithNotificationsTopic(topic string) RentalServiceOption {
	return func(s *RentalService) {
		s.notificationsTopic = topic
	}
}

func WithLockTTL(ttl time.Duration) RentalServiceOption {
	return func(s *RentalService) {
		s.lockTTL = ttl
	}
}

func WithPendingHold(hold time.Duration) RentalServiceOption {
	return func(s *RentalService) {
		s.pendingHold = hold
	}
}

func WithClock(now func() time.Time) RentalServiceOption {
	return func(s *RentalService) {
		s.now = now
	}
}

// NewRentalService wires the orchestrator. cache, clients and producer may be nil; the
// saga then skips the distributed lock, detail projections of clients and events.
func NewRentalService(
	rentals repository.RentalRepository,
	payments payments.PaymentUseCase,
	vehicles VehicleClient,
	clients ClientDirectory,
	cache Cache,
	producer Producer,
	eventsTopic string,
	opts ...RentalServiceOption,
) *RentalService {
	service := &RentalService{
		rentals:     rentals,
		payments:    payments,
		vehicles:    vehicles,
		clients:     clients,
		cache:       cache,
		producer:    producer,
		eventsTopic: eventsTopic,
		lockTTL:     30 * time.Second,
		pendingHold: 30 * time.Minute,
		now:         time.Now,
		log:         logger.WithService("rental"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// CreateRental runs the reservation saga: lock, vehicle check, conflict-checked insert,
// payment and the vehicle side effect. Payment failures leave the rental PENDING with
// no payment attached; the returned error carries its id.
func (s *RentalService) CreateRental(ctx context.Context, input CreateRentalInput) (*domain.Rental, error) {
	start, end, err := s.validateCreate(input)
	if err != nil {
		return nil, err
	}
	log := s.log.With("vehicle_id", input.VehicleID, "client_id", input.ClientID)

	unlock, err := s.lockVehicle(ctx, input.VehicleID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	vehicle, err := s.vehicles.GetVehicle(ctx, input.VehicleID)
	if err != nil {
		if errors.Is(err, domain.ErrVehicleNotFound) {
			return nil, domain.Fail(domain.ErrVehicleNotFound, domain.StageVehicle, 0, input.VehicleID, nil)
		}
		return nil, domain.Fail(domain.ErrRemote, domain.StageVehicle, 0, input.VehicleID, err)
	}
	if vehicle.IsRented() {
		return nil, domain.Fail(domain.ErrVehicleUnavailable, domain.StageVehicle, 0, input.VehicleID, nil)
	}

	rental := &domain.Rental{
		VehicleID:   input.VehicleID,
		ClientID:    input.ClientID,
		StartDate:   start,
		EndDate:     end,
		TotalAmount: domain.TotalAmount(vehicle.PricePerDay, start, end),
	}
	err = s.rentals.CreatePending(ctx, rental, func(active []domain.Rental) error {
		if domain.HasConflict(input.VehicleID, start, end, active) {
			return domain.Fail(domain.ErrDateRangeConflict, domain.StageReserve, 0, input.VehicleID,
				fmt.Errorf("%s..%s overlaps an active rental", start.Format(domain.DateLayout), end.Format(domain.DateLayout)))
		}
		return nil
	})
	unlock()
	if err != nil {
		if _, ok := domain.AsSagaError(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("reserve vehicle %d: %w", input.VehicleID, err)
	}
	log = log.With("rental_id", rental.ID)
	log.InfoContext(ctx, "rental reserved", "stage", domain.StageReserve, "amount", rental.TotalAmount.StringFixed(2))
	s.publish(ctx, s.newEvent(domain.EventRentalCreated, rental))

	payment, err := s.payments.Capture(ctx, payments.CaptureInput{
		RentalID: rental.ID,
		ClientID: rental.ClientID,
		Amount:   rental.TotalAmount,
		Method:   input.Method,
	})
	return s.settleCapture(ctx, rental, payment, err)
}

// settleCapture applies a capture outcome to a PENDING rental: a succeeded payment
// confirms it, a manual one leaves it awaiting settlement, anything else fails the
// payment stage and keeps the reservation for a retry.
func (s *RentalService) settleCapture(ctx context.Context, rental *domain.Rental, payment *domain.Payment, err error) (*domain.Rental, error) {
	if err != nil {
		kind := domain.ErrPaymentFailed
		if errors.Is(err, domain.ErrPaymentUnavailable) {
			kind = domain.ErrPaymentUnavailable
		}
		return nil, s.paymentFailed(ctx, rental, kind, err)
	}

	switch payment.Status {
	case domain.PaymentStatusSucceeded:
		return s.confirm(ctx, rental, payment)
	case domain.PaymentStatusAwaiting:
		s.log.InfoContext(ctx, "rental awaiting manual payment",
			"rental_id", rental.ID, "payment_id", payment.ID, "method", payment.Method)
		return rental, nil
	default:
		return nil, s.paymentFailed(ctx, rental, domain.ErrPaymentFailed, fmt.Errorf("payment %d declined", payment.ID))
	}
}

func (s *RentalService) validateCreate(input CreateRentalInput) (time.Time, time.Time, error) {
	invalid := func(kind error, msg string) error {
		return domain.Fail(kind, domain.StageValidate, 0, input.VehicleID, errors.New(msg))
	}
	if input.VehicleID <= 0 || input.ClientID <= 0 {
		return time.Time{}, time.Time{}, invalid(domain.ErrValidation, "vehicle_id and client_id must be positive")
	}
	if input.StartDate.IsZero() || input.EndDate.IsZero() {
		return time.Time{}, time.Time{}, invalid(domain.ErrValidation, "start_date and end_date are required")
	}
	if input.Method != "" {
		if _, ok := domain.ParsePaymentMethod(string(input.Method)); !ok {
			return time.Time{}, time.Time{}, invalid(domain.ErrValidation, "unknown payment method "+string(input.Method))
		}
	}

	start, end := domain.Day(input.StartDate), domain.Day(input.EndDate)
	if end.Before(start) {
		return time.Time{}, time.Time{}, invalid(domain.ErrInvalidRange, "end_date is before start_date")
	}
	if start.Before(domain.Day(s.now())) {
		return time.Time{}, time.Time{}, invalid(domain.ErrInvalidRange, "start_date is in the past")
	}
	return start, end, nil
}

// lockVehicle takes the cross-instance reservation lock. Redis trouble fails open: the
// advisory lock inside CreatePending still serialises the reservation.
func (s *RentalService) lockVehicle(ctx context.Context, vehicleID int64) (func(), error) {
	noop := func() {}
	if s.cache == nil {
		return noop, nil
	}

	ok, err := s.cache.AcquireVehicleLock(ctx, vehicleID, s.lockTTL)
	if err != nil {
		s.log.WarnContext(ctx, "vehicle lock unavailable, continuing without it", "vehicle_id", vehicleID, "error", err)
		return noop, nil
	}
	if !ok {
		return nil, domain.Fail(domain.ErrVehicleUnavailable, domain.StageLock, 0, vehicleID,
			errors.New("another reservation for this vehicle is in progress"))
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		if err := s.cache.ReleaseVehicleLock(context.WithoutCancel(ctx), vehicleID); err != nil {
			s.log.WarnContext(ctx, "release vehicle lock", "vehicle_id", vehicleID, "error", err)
		}
	}, nil
}

func (s *RentalService) paymentFailed(ctx context.Context, rental *domain.Rental, kind error, cause error) error {
	s.log.WarnContext(ctx, "rental payment failed, rental left pending",
		"rental_id", rental.ID, "vehicle_id", rental.VehicleID, "stage", domain.StagePayment, "error", cause)
	event := s.newEvent(domain.EventRentalPaymentFailed, rental)
	event.Stage = domain.StagePayment
	event.Reason = cause.Error()
	s.publish(ctx, event)
	return domain.Fail(kind, domain.StagePayment, rental.ID, rental.VehicleID, cause)
}

// confirm stamps the captured payment on the rental. If the rental can no longer be
// confirmed the capture is refunded so money never sits on an unconfirmed rental.
func (s *RentalService) confirm(ctx context.Context, rental *domain.Rental, payment *domain.Payment) (*domain.Rental, error) {
	confirmed, err := s.rentals.Confirm(ctx, rental.ID, payment.ID)
	if err != nil {
		s.compensateCapture(ctx, rental, payment)
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, domain.Fail(domain.ErrInvalidTransition, domain.StageConfirm, rental.ID, rental.VehicleID, err)
		}
		return nil, fmt.Errorf("confirm rental %d: %w", rental.ID, err)
	}

	s.log.InfoContext(ctx, "rental confirmed",
		"rental_id", confirmed.ID, "vehicle_id", confirmed.VehicleID, "payment_id", payment.ID, "stage", domain.StageConfirm)
	s.syncAvailability(ctx, confirmed)
	s.publish(ctx, s.newEvent(domain.EventRentalConfirmed, confirmed))
	return confirmed, nil
}

func (s *RentalService) compensateCapture(ctx context.Context, rental *domain.Rental, payment *domain.Payment) {
	if payment.TransactionID == nil {
		return
	}
	if _, err := s.payments.Refund(context.WithoutCancel(ctx), *payment.TransactionID, decimal.Zero); err != nil {
		s.log.ErrorContext(ctx, "compensating refund failed, manual reconciliation required",
			"rental_id", rental.ID, "payment_id", payment.ID, "transaction_id", *payment.TransactionID, "error", err)
	}
}

// ChangeStatus moves a rental along its lifecycle. Cancelling with refund returns a
// succeeded payment; a failed refund does not undo the cancellation, the updated rental
// is returned together with ErrRefundFailed.
func (s *RentalService) ChangeStatus(ctx context.Context, id int64, target domain.RentalStatus, refund bool) (*domain.Rental, error) {
	current, err := s.load(ctx, id, domain.StageTransition)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateTransition(current.Status, target); err != nil {
		se, _ := domain.AsSagaError(err)
		se.RentalID, se.VehicleID = current.ID, current.VehicleID
		return nil, se
	}

	updated, err := s.rentals.UpdateStatus(ctx, id, current.Status, target)
	if err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, domain.Fail(domain.ErrInvalidTransition, domain.StagePersist, id, current.VehicleID,
				fmt.Errorf("rental is no longer %s", current.Status))
		}
		return nil, fmt.Errorf("update rental %d status: %w", id, err)
	}
	s.log.InfoContext(ctx, "rental status changed",
		"rental_id", id, "vehicle_id", updated.VehicleID, "from", current.Status, "to", target)

	var refundErr error
	if target == domain.RentalStatusCancelled && refund {
		refundErr = s.refund(ctx, updated)
	}

	// A rental that never held the vehicle has nothing to release.
	if current.Status.HoldsVehicle() || domain.AvailabilityActionFor(target) != domain.AvailabilitySetAvailable {
		s.syncAvailability(ctx, updated)
	}

	event := s.newEvent(domain.EventRentalStatusChanged, updated)
	if target == domain.RentalStatusCancelled {
		event.Type = domain.EventRentalCancelled
		if refundErr != nil {
			event.Stage = domain.StageRefund
			event.Reason = "refund failed, contact support"
		}
	}
	s.publish(ctx, event)

	return updated, refundErr
}

// refund returns the rental's payment if it succeeded. Nothing to refund is not an error.
func (s *RentalService) refund(ctx context.Context, rental *domain.Rental) error {
	if rental.PaymentID == nil {
		return nil
	}
	payment, err := s.payments.GetByID(ctx, *rental.PaymentID)
	if err != nil {
		return domain.Fail(domain.ErrRefundFailed, domain.StageRefund, rental.ID, rental.VehicleID, err)
	}
	if payment.Status == domain.PaymentStatusInProgress {
		return domain.Fail(domain.ErrRefundFailed, domain.StageRefund, rental.ID, rental.VehicleID,
			fmt.Errorf("payment %d outcome was never recorded", payment.ID))
	}
	if !payment.Succeeded() || payment.TransactionID == nil {
		return nil
	}

	if _, err := s.payments.Refund(ctx, *payment.TransactionID, decimal.Zero); err != nil {
		s.log.WarnContext(ctx, "refund failed, rental cancelled anyway",
			"rental_id", rental.ID, "payment_id", payment.ID, "stage", domain.StageRefund, "error", err)
		return domain.Fail(domain.ErrRefundFailed, domain.StageRefund, rental.ID, rental.VehicleID, err)
	}
	s.log.InfoContext(ctx, "rental refunded", "rental_id", rental.ID, "payment_id", payment.ID)
	return nil
}

// DeleteRental removes a rental that carries no live money. Availability is restored only
// when the rental was holding the vehicle.
func (s *RentalService) DeleteRental(ctx context.Context, id int64) error {
	current, err := s.load(ctx, id, domain.StageDelete)
	if err != nil {
		return err
	}
	if current.Status == domain.RentalStatusInProgress {
		return domain.Fail(domain.ErrHasActivePayment, domain.StageDelete, id, current.VehicleID,
			errors.New("rental is in progress"))
	}
	if !current.Status.IsTerminal() && current.PaymentID != nil {
		payment, err := s.payments.GetByID(ctx, *current.PaymentID)
		if err != nil {
			return fmt.Errorf("load payment %d: %w", *current.PaymentID, err)
		}
		// EN_COURS on a linked payment means the capture went through but its outcome
		// was never persisted.
		if payment.Succeeded() || payment.Status == domain.PaymentStatusInProgress {
			return domain.Fail(domain.ErrHasActivePayment, domain.StageDelete, id, current.VehicleID,
				fmt.Errorf("payment %d is %s", payment.ID, payment.Status))
		}
	}

	if err := s.rentals.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Fail(domain.ErrNotFound, domain.StageDelete, id, current.VehicleID, nil)
		}
		return fmt.Errorf("delete rental %d: %w", id, err)
	}
	s.log.InfoContext(ctx, "rental deleted", "rental_id", id, "vehicle_id", current.VehicleID, "status", current.Status)

	if current.Status.HoldsVehicle() {
		s.setAvailability(ctx, current, true)
	}
	s.publish(ctx, s.newEvent(domain.EventRentalDeleted, current))
	return nil
}

func (s *RentalService) load(ctx context.Context, id int64, stage domain.Stage) (*domain.Rental, error) {
	if id <= 0 {
		return nil, domain.Fail(domain.ErrValidation, stage, id, 0, errors.New("rental id must be positive"))
	}
	rental, err := s.rentals.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Fail(domain.ErrNotFound, stage, id, 0, nil)
		}
		return nil, fmt.Errorf("load rental %d: %w", id, err)
	}
	return rental, nil
}

// syncAvailability applies the side effect the rental's status calls for.
func (s *RentalService) syncAvailability(ctx context.Context, rental *domain.Rental) {
	switch domain.AvailabilityActionFor(rental.Status) {
	case domain.AvailabilitySetRented:
		s.setAvailability(ctx, rental, false)
	case domain.AvailabilitySetAvailable:
		s.setAvailability(ctx, rental, true)
	}
}

// setAvailability is best effort: the rental has already committed, so a failure is
// logged and published for the worker to reconcile, never returned.
func (s *RentalService) setAvailability(ctx context.Context, rental *domain.Rental, available bool) {
	ctx = context.WithoutCancel(ctx)
	if err := s.vehicles.SetAvailability(ctx, rental.VehicleID, available); err != nil {
		s.log.WarnContext(ctx, "vehicle availability out of sync, reconciliation needed",
			"rental_id", rental.ID, "vehicle_id", rental.VehicleID, "status", rental.Status,
			"available", available, "stage", domain.StageAvailability, "error", err)
		event := s.newEvent(domain.EventAvailabilitySyncFailed, rental)
		event.Stage = domain.StageAvailability
		event.Reason = err.Error()
		s.publishForReconciliation(ctx, event)
	}
}

// publishForReconciliation retries: the worker only repairs what it hears about.
func (s *RentalService) publishForReconciliation(ctx context.Context, event domain.RentalEvent) {
	if s.producer == nil || s.eventsTopic == "" {
		return
	}
	key := fmt.Sprintf("%d", event.RentalID)
	if err := s.producer.PublishWithRetry(ctx, s.eventsTopic, key, event, publishRetries); err != nil {
		s.log.ErrorContext(ctx, "reconciliation event lost, vehicle availability needs a manual fix",
			"rental_id", event.RentalID, "vehicle_id", event.VehicleID, "error", err)
	}
}

func (s *RentalService) newEvent(eventType string, rental *domain.Rental) domain.RentalEvent {
	return domain.RentalEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		RentalID:   rental.ID,
		VehicleID:  rental.VehicleID,
		ClientID:   rental.ClientID,
		Status:     rental.Status,
		Amount:     rental.TotalAmount,
		PaymentID:  rental.PaymentID,
		OccurredAt: s.now().UTC(),
	}
}

// publish never fails the saga; events are informational for the worker.
func (s *RentalService) publish(ctx context.Context, event domain.RentalEvent) {
	if s.producer == nil || s.eventsTopic == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	key := fmt.Sprintf("%d", event.RentalID)
	if err := s.producer.Publish(ctx, s.eventsTopic, key, event); err != nil {
		s.log.WarnContext(ctx, "failed to publish rental event", "type", event.Type, "rental_id", event.RentalID, "error", err)
		return
	}
	if s.notificationsTopic != "" && event.Type != domain.EventAvailabilitySyncFailed {
		if err := s.producer.Publish(ctx, s.notificationsTopic, key, event); err != nil {
			s.log.WarnContext(ctx, "failed to publish notification event", "type", event.Type, "rental_id", event.RentalID, "error", err)
		}
	}
}

var _ RentalUseCase = (*RentalService)(nil)
