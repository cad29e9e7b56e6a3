package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Domenick1991/carrental/internal/domain"
	"github.com/Domenick1991/carrental/internal/gateway"
	"github.com/Domenick1991/carrental/internal/logger"
	"github.com/Domenick1991/carrental/internal/repository"
)

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	args := m.Called(ctx, payment)
	if args.Error(0) == nil {
		payment.ID = 42
	}
	return args.Error(0)
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) ListByRental(ctx context.Context, rentalID int64) ([]domain.Payment, error) {
	args := m.Called(ctx, rentalID)
	return args.Get(0).([]domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) RecordOutcome(ctx context.Context, id int64, status domain.PaymentStatus, transactionID string, paidAt *time.Time) error {
	args := m.Called(ctx, id, status, transactionID, paidAt)
	return args.Error(0)
}

func (m *MockPaymentRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.PaymentStatus, paidAt *time.Time) (*domain.Payment, error) {
	args := m.Called(ctx, id, from, to, paidAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}

func (m *MockPaymentRepository) TotalRevenue(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Capture(ctx context.Context, amount decimal.Decimal, method domain.PaymentMethod, reference string) (string, bool, error) {
	args := m.Called(ctx, amount, method, reference)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (bool, error) {
	args := m.Called(ctx, transactionID, amount)
	return args.Bool(0), args.Error(1)
}

var (
	fixedNow = time.Date(2024, 1, 9, 12, 0, 0, 0, time.UTC)
	amount   = decimal.RequireFromString("200.00")
)

func newTestService(repo *MockPaymentRepository, gw *MockGateway) *PaymentService {
	return &PaymentService{
		payments: repo,
		gateway:  gw,
		timeout:  time.Second,
		now:      func() time.Time { return fixedNow },
		log:      logger.WithService("payments-test"),
	}
}

func TestPaymentService_Capture_Success(t *testing.T) {
	repo := &MockPaymentRepository{}
	gw := &MockGateway{}
	service := newTestService(repo, gw)
	ctx := context.Background()

	repo.On("Create", ctx, mock.MatchedBy(func(p *domain.Payment) bool {
		return p.Status == domain.PaymentStatusInProgress && p.RentalID == 7
	})).Return(nil).Once()
	gw.On("Capture", mock.Anything, amount, domain.PaymentMethodCard, "rental-7").Return("PAY-1", true, nil).Once()
	repo.On("RecordOutcome", ctx, int64(42), domain.PaymentStatusSucceeded, "PAY-1", &fixedNow).Return(nil).Once()

	p, err := service.Capture(ctx, CaptureInput{RentalID: 7, ClientID: 3, Amount: amount, Method: domain.PaymentMethodCard})

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSucceeded, p.Status)
	assert.Equal(t, "PAY-1", *p.TransactionID)
	assert.Equal(t, fixedNow, *p.PaidAt)
	repo.AssertExpectations(t)
	gw.AssertExpectations(t)
}

func TestPaymentService_Capture_Declined(t *testing.T) {
	repo := &MockPaymentRepository{}
	gw := &MockGateway{}
	service := newTestService(repo, gw)
	ctx := context.Background()

	repo.On("Create", ctx, mock.Anything).Return(nil).Once()
	gw.On("Capture", mock.Anything, amount, domain.PaymentMethodCard, "rental-7").Return("PAY-2", false, nil).Once()
	repo.On("RecordOutcome", ctx, int64(42), domain.PaymentStatusFailed, "PAY-2", (*time.Time)(nil)).Return(nil).Once()

	p, err := service.Capture(ctx, CaptureInput{RentalID: 7, ClientID: 3, Amount: amount})

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
	assert.Nil(t, p.PaidAt)
	repo.AssertExpectations(t)
}

func TestPaymentService_Capture_Unreachable(t *testing.T) {
	repo := &MockPaymentRepository{}
	gw := &MockGateway{}
	service := newTestService(repo, gw)
	ctx := context.Background()

	repo.On("Create", ctx, mock.Anything).Return(nil).Once()
	gw.On("Capture", mock.Anything, amount, domain.PaymentMethodCard, "rental-7").Return("", false, gateway.ErrUnavailable).Once()
	repo.On("RecordOutcome", ctx, int64(42), domain.PaymentStatusFailed, "", (*time.Time)(nil)).Return(nil).Once()

	p, err := service.Capture(ctx, CaptureInput{RentalID: 7, ClientID: 3, Amount: amount})

	assert.True(t, errors.Is(err, domain.ErrPaymentUnavailable))
	assert.True(t, errors.Is(err, gateway.ErrUnavailable))
	assert.Equal(t, domain.PaymentStatusFailed, p.Status)
}

func TestPaymentService_Capture_ManualAwaitsConfirmation(t *testing.T) {
	repo := &MockPaymentRepository{}
	gw := &MockGateway{}
	service := newTestService(repo, gw)
	ctx := context.Background()

	repo.On("Create", ctx, mock.Anything).Return(nil).Once()
	repo.On("RecordOutcome", ctx, int64(42), domain.PaymentStatusAwaiting, "MANUAL-42", (*time.Time)(nil)).Return(nil).Once()

	p, err := service.Capture(ctx, CaptureInput{RentalID: 7, ClientID: 3, Amount: amount, Method: domain.PaymentMethodTransfer})

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusAwaiting, p.Status)
	gw.AssertNotCalled(t, "Capture", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_Capture_Validation(t *testing.T) {
	service := newTestService(&MockPaymentRepository{}, &MockGateway{})

	testCases := []struct {
		name  string
		input CaptureInput
	}{
		{"missing rental", CaptureInput{ClientID: 1, Amount: amount}},
		{"missing client", CaptureInput{RentalID: 1, Amount: amount}},
		{"zero amount", CaptureInput{RentalID: 1, ClientID: 1, Amount: decimal.Zero}},
		{"negative amount", CaptureInput{RentalID: 1, ClientID: 1, Amount: decimal.NewFromInt(-5)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Capture(context.Background(), tc.input)
			assert.True(t, errors.Is(err, domain.ErrValidation))
		})
	}
}

func succeededPayment(method domain.PaymentMethod) *domain.Payment {
	txID := "PAY-1"
	return &domain.Payment{ID: 42, RentalID: 7, Amount: amount, Method: method, Status: domain.PaymentStatusSucceeded, TransactionID: &txID}
}

func TestPaymentService_Refund_Success(t *testing.T) {
	repo := &MockPaymentRepository{}
	gw := &MockGateway{}
	service := newTestService(repo, gw)
	ctx := context.Background()

	refunded := succeededPayment(domain.PaymentMethodCard)
	refunded.Status = domain.PaymentStatusRefunded

	repo.On("GetByTransactionID", ctx, "PAY-1").Return(succeededPayment(domain.PaymentMethodCard), nil).Once()
	gw.On("Refund", mock.Anything, "PAY-1", amount).Return(true, nil).Once()
	repo.On("UpdateStatus", ctx, int64(42), domain.PaymentStatusSucceeded, domain.PaymentStatusRefunded, (*time.Time)(nil)).Return(refunded, nil).Once()

	status, err := service.Refund(ctx, "PAY-1", amount)

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, status)
	repo.AssertExpectations(t)
	gw.AssertExpectations(t)
}

func TestPaymentService_Refund_Declined(t *testing.T) {
	repo := &MockPaymentRepository{}
	gw := &MockGateway{}
	service := newTestService(repo, gw)
	ctx := context.Background()

	repo.On("GetByTransactionID", ctx, "PAY-1").Return(succeededPayment(domain.PaymentMethodCard), nil).Once()
	gw.On("Refund", mock.Anything, "PAY-1", amount).Return(false, nil).Once()

	status, err := service.Refund(ctx, "PAY-1", amount)

	assert.True(t, errors.Is(err, domain.ErrRefundFailed))
	assert.Equal(t, domain.PaymentStatusSucceeded, status)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_Refund_Unreachable(t *testing.T) {
	repo := &MockPaymentRepository{}
	gw := &MockGateway{}
	service := newTestService(repo, gw)
	ctx := context.Background()

	repo.On("GetByTransactionID", ctx, "PAY-1").Return(succeededPayment(domain.PaymentMethodCard), nil).Once()
	gw.On("Refund", mock.Anything, "PAY-1", amount).Return(false, gateway.ErrUnavailable).Once()

	_, err := service.Refund(ctx, "PAY-1", amount)

	assert.True(t, errors.Is(err, domain.ErrRefundFailed))
	assert.True(t, errors.Is(err, domain.ErrPaymentUnavailable))
}

func TestPaymentService_Refund_OnlySucceeded(t *testing.T) {
	repo := &MockPaymentRepository{}
	service := newTestService(repo, &MockGateway{})
	ctx := context.Background()

	p := succeededPayment(domain.PaymentMethodCard)
	p.Status = domain.PaymentStatusRefunded
	repo.On("GetByTransactionID", ctx, "PAY-1").Return(p, nil).Once()

	status, err := service.Refund(ctx, "PAY-1", amount)

	assert.True(t, errors.Is(err, domain.ErrRefundFailed))
	assert.Equal(t, domain.PaymentStatusRefunded, status)
}

func TestPaymentService_Refund_ManualSkipsGateway(t *testing.T) {
	repo := &MockPaymentRepository{}
	gw := &MockGateway{}
	service := newTestService(repo, gw)
	ctx := context.Background()

	refunded := succeededPayment(domain.PaymentMethodCash)
	refunded.Status = domain.PaymentStatusRefunded
	repo.On("GetByTransactionID", ctx, "PAY-1").Return(succeededPayment(domain.PaymentMethodCash), nil).Once()
	repo.On("UpdateStatus", ctx, int64(42), domain.PaymentStatusSucceeded, domain.PaymentStatusRefunded, (*time.Time)(nil)).Return(refunded, nil).Once()

	status, err := service.Refund(ctx, "PAY-1", decimal.Zero)

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, status)
	gw.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentService_ConfirmManual(t *testing.T) {
	repo := &MockPaymentRepository{}
	service := newTestService(repo, &MockGateway{})
	ctx := context.Background()

	confirmed := succeededPayment(domain.PaymentMethodTransfer)
	repo.On("UpdateStatus", ctx, int64(42), domain.PaymentStatusAwaiting, domain.PaymentStatusSucceeded, &fixedNow).Return(confirmed, nil).Once()
	repo.On("UpdateStatus", ctx, int64(43), domain.PaymentStatusAwaiting, domain.PaymentStatusSucceeded, &fixedNow).Return(nil, repository.ErrStatusChanged).Once()

	p, err := service.ConfirmManual(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSucceeded, p.Status)

	_, err = service.ConfirmManual(ctx, 43)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestPaymentService_Capture_SucceededButNotRecorded(t *testing.T) {
	t.Run("second attempt persists", func(t *testing.T) {
		repo := &MockPaymentRepository{}
		gw := &MockGateway{}
		service := newTestService(repo, gw)

		repo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
		gw.On("Capture", mock.Anything, amount, domain.PaymentMethodCard, "rental-7").Return("PAY-1", true, nil).Once()
		repo.On("RecordOutcome", mock.Anything, int64(42), domain.PaymentStatusSucceeded, "PAY-1", &fixedNow).
			Return(errors.New("conn reset")).Once()
		repo.On("RecordOutcome", mock.Anything, int64(42), domain.PaymentStatusSucceeded, "PAY-1", &fixedNow).
			Return(nil).Once()

		p, err := service.Capture(context.Background(), CaptureInput{RentalID: 7, ClientID: 3, Amount: amount})

		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusSucceeded, p.Status)
		repo.AssertExpectations(t)
	})

	t.Run("row stays EN_COURS but the capture is reported", func(t *testing.T) {
		repo := &MockPaymentRepository{}
		gw := &MockGateway{}
		service := newTestService(repo, gw)

		repo.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
		gw.On("Capture", mock.Anything, amount, domain.PaymentMethodCard, "rental-7").Return("PAY-1", true, nil).Once()
		repo.On("RecordOutcome", mock.Anything, int64(42), domain.PaymentStatusSucceeded, "PAY-1", &fixedNow).
			Return(errors.New("db down")).Twice()

		p, err := service.Capture(context.Background(), CaptureInput{RentalID: 7, ClientID: 3, Amount: amount})

		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusSucceeded, p.Status)
		assert.Equal(t, "PAY-1", *p.TransactionID)
		repo.AssertExpectations(t)
	})
}
