package rental

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/Domenick1991/carrental/internal/domain"
	"github.com/Domenick1991/carrental/internal/repository"
	"github.com/Domenick1991/carrental/internal/service/payments"
)

type MockRentalRepository struct {
	mock.Mock
}

// CreatePending runs the reservation check against the active rentals given to Return,
// then assigns id 11 like the database would.
func (m *MockRentalRepository) CreatePending(ctx context.Context, rental *domain.Rental, check repository.ReservationCheck) error {
	args := m.Called(ctx, rental, check)
	if active, ok := args.Get(0).([]domain.Rental); ok && check != nil {
		if err := check(active); err != nil {
			return err
		}
	}
	if err := args.Error(1); err != nil {
		return err
	}
	rental.ID = 11
	rental.Status = domain.RentalStatusPending
	return nil
}

func (m *MockRentalRepository) GetByID(ctx context.Context, id int64) (*domain.Rental, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Rental), args.Error(1)
}

func (m *MockRentalRepository) ListActiveByVehicle(ctx context.Context, vehicleID int64) ([]domain.Rental, error) {
	args := m.Called(ctx, vehicleID)
	return args.Get(0).([]domain.Rental), args.Error(1)
}

func (m *MockRentalRepository) List(ctx context.Context, filter domain.RentalFilter) ([]domain.Rental, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Rental), args.Error(1)
}

func (m *MockRentalRepository) ListCurrent(ctx context.Context, day time.Time) ([]domain.Rental, error) {
	args := m.Called(ctx, day)
	return args.Get(0).([]domain.Rental), args.Error(1)
}

func (m *MockRentalRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.RentalStatus) (*domain.Rental, error) {
	args := m.Called(ctx, id, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Rental), args.Error(1)
}

func (m *MockRentalRepository) Confirm(ctx context.Context, id, paymentID int64) (*domain.Rental, error) {
	args := m.Called(ctx, id, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Rental), args.Error(1)
}

func (m *MockRentalRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRentalRepository) ExpirePendingBefore(ctx context.Context, deadline time.Time) ([]domain.Rental, error) {
	args := m.Called(ctx, deadline)
	return args.Get(0).([]domain.Rental), args.Error(1)
}

type MockPayments struct {
	mock.Mock
}

func (m *MockPayments) Capture(ctx context.Context, input payments.CaptureInput) (*domain.Payment, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPayments) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (domain.PaymentStatus, error) {
	args := m.Called(ctx, transactionID, amount)
	return args.Get(0).(domain.PaymentStatus), args.Error(1)
}

func (m *MockPayments) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPayments) ListByRental(ctx context.Context, rentalID int64) ([]domain.Payment, error) {
	args := m.Called(ctx, rentalID)
	return args.Get(0).([]domain.Payment), args.Error(1)
}

func (m *MockPayments) ConfirmManual(ctx context.Context, id int64) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPayments) TotalRevenue(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockVehicles struct {
	mock.Mock
}

func (m *MockVehicles) GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Vehicle), args.Error(1)
}

func (m *MockVehicles) SetAvailability(ctx context.Context, id int64, available bool) error {
	args := m.Called(ctx, id, available)
	return args.Error(0)
}

type MockClients struct {
	mock.Mock
}

func (m *MockClients) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Client), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) AcquireVehicleLock(ctx context.Context, vehicleID int64, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, vehicleID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) ReleaseVehicleLock(ctx context.Context, vehicleID int64) error {
	args := m.Called(ctx, vehicleID)
	return args.Error(0)
}

func (m *MockCache) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Client), args.Error(1)
}

func (m *MockCache) SetClient(ctx context.Context, client *domain.Client) error {
	args := m.Called(ctx, client)
	return args.Error(0)
}

// recordingProducer keeps every published rental event.
type recordingProducer struct {
	mu      sync.Mutex
	topics  []string
	events  []domain.RentalEvent
	retried []string
	fail    bool
}

func (p *recordingProducer) Publish(_ context.Context, topic, _ string, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, value.(domain.RentalEvent))
	return nil
}

func (p *recordingProducer) PublishWithRetry(ctx context.Context, topic, key string, value any, maxRetries int) error {
	p.mu.Lock()
	p.retried = append(p.retried, value.(domain.RentalEvent).Type)
	p.mu.Unlock()
	return p.Publish(ctx, topic, key, value)
}

func (p *recordingProducer) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingProducer) find(eventType string) (domain.RentalEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.Type == eventType {
			return e, true
		}
	}
	return domain.RentalEvent{}, false
}
