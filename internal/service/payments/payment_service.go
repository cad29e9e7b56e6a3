package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Domenick1991/carrental/internal/domain"
	"github.com/Domenick1991/carrental/internal/gateway"
	"github.com/Domenick1991/carrental/internal/logger"
	"github.com/Domenick1991/carrental/internal/repository"
)

type PaymentUseCase interface {
	Capture(ctx context.Context, input CaptureInput) (*domain.Payment, error)
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (domain.PaymentStatus, error)
	GetByID(ctx context.Context, id int64) (*domain.Payment, error)
	ListByRental(ctx context.Context, rentalID int64) ([]domain.Payment, error)
	ConfirmManual(ctx context.Context, id int64) (*domain.Payment, error)
	TotalRevenue(ctx context.Context) (decimal.Decimal, error)
}

type CaptureInput struct {
	RentalID int64
	ClientID int64
	Amount   decimal.Decimal
	Method   domain.PaymentMethod
}

type PaymentService struct {
	payments repository.PaymentRepository
	gateway  gateway.Gateway
	timeout  time.Duration
	now      func() time.Time
	log      *slog.Logger
}

func NewPaymentService(payments repository.PaymentRepository, gw gateway.Gateway, timeout time.Duration) *PaymentService {
	return &PaymentService{
		payments: payments,
		gateway:  gw,
		timeout:  timeout,
		now:      time.Now,
		log:      logger.WithService("payments"),
	}
}

// Capture records a payment in EN_COURS and drives it to its outcome. Manual methods
// stop at EN_ATTENTE until ConfirmManual. A declined capture returns the ECHOUE payment
// with a nil error; only an unreachable provider yields ErrPaymentUnavailable.
func (s *PaymentService) Capture(ctx context.Context, input CaptureInput) (*domain.Payment, error) {
	if input.RentalID <= 0 || input.ClientID <= 0 {
		return nil, fmt.Errorf("%w: rental and client ids are required", domain.ErrValidation)
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if input.Method == "" {
		input.Method = domain.PaymentMethodCard
	}

	payment := &domain.Payment{
		RentalID: input.RentalID,
		ClientID: input.ClientID,
		Amount:   input.Amount,
		Method:   input.Method,
		Status:   domain.PaymentStatusInProgress,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	if input.Method.IsManual() {
		return s.record(ctx, payment, domain.PaymentStatusAwaiting, fmt.Sprintf("MANUAL-%d", payment.ID), nil)
	}

	callCtx, cancel := s.withTimeout(ctx)
	txID, ok, err := s.gateway.Capture(callCtx, payment.Amount, payment.Method, fmt.Sprintf("rental-%d", payment.RentalID))
	cancel()
	if err != nil {
		s.log.WarnContext(ctx, "payment capture unreachable", "payment_id", payment.ID, "rental_id", payment.RentalID, "error", err)
		if _, recErr := s.record(ctx, payment, domain.PaymentStatusFailed, "", nil); recErr != nil {
			s.log.ErrorContext(ctx, "failed to record payment outcome", "payment_id", payment.ID, "error", recErr)
		}
		return payment, fmt.Errorf("%w: %w", domain.ErrPaymentUnavailable, err)
	}

	if !ok {
		s.log.InfoContext(ctx, "payment declined", "payment_id", payment.ID, "transaction_id", txID)
		return s.record(ctx, payment, domain.PaymentStatusFailed, txID, nil)
	}

	paidAt := s.now()
	p, err := s.record(ctx, payment, domain.PaymentStatusSucceeded, txID, &paidAt)
	if err != nil {
		s.log.WarnContext(ctx, "recording captured payment failed, retrying", "payment_id", payment.ID, "error", err)
		p, err = s.record(context.WithoutCancel(ctx), payment, domain.PaymentStatusSucceeded, txID, &paidAt)
	}
	if err != nil {
		// The money is captured, so the rental still confirms. The row stays EN_COURS,
		// which blocks deletion and refunds until it is reconciled by transaction id.
		s.log.ErrorContext(ctx, "captured payment not persisted, reconcile by transaction id",
			"payment_id", payment.ID, "transaction_id", txID, "error", err)
		return payment, nil
	}
	return p, nil
}

func (s *PaymentService) record(ctx context.Context, p *domain.Payment, status domain.PaymentStatus, txID string, paidAt *time.Time) (*domain.Payment, error) {
	p.Status = status
	if txID != "" {
		p.TransactionID = &txID
	}
	p.PaidAt = paidAt
	if err := s.payments.RecordOutcome(ctx, p.ID, status, txID, paidAt); err != nil {
		return p, fmt.Errorf("record payment %d outcome: %w", p.ID, err)
	}
	return p, nil
}

// Refund returns a succeeded payment's money. The returned status is the payment's
// status after the call.
func (s *PaymentService) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (domain.PaymentStatus, error) {
	payment, err := s.payments.GetByTransactionID(ctx, transactionID)
	if err != nil {
		return "", fmt.Errorf("%w: load payment %s: %w", domain.ErrRefundFailed, transactionID, err)
	}
	if payment.Status != domain.PaymentStatusSucceeded {
		return payment.Status, fmt.Errorf("%w: payment %d is %s, only %s payments can be refunded",
			domain.ErrRefundFailed, payment.ID, payment.Status, domain.PaymentStatusSucceeded)
	}
	if amount.IsZero() {
		amount = payment.Amount
	}

	ok := true
	if !payment.Method.IsManual() {
		callCtx, cancel := s.withTimeout(ctx)
		ok, err = s.gateway.Refund(callCtx, transactionID, amount)
		cancel()
		if err != nil {
			return payment.Status, fmt.Errorf("%w: %w: %w", domain.ErrRefundFailed, domain.ErrPaymentUnavailable, err)
		}
	}
	if !ok {
		return payment.Status, fmt.Errorf("%w: declined by provider", domain.ErrRefundFailed)
	}

	updated, err := s.payments.UpdateStatus(ctx, payment.ID, domain.PaymentStatusSucceeded, domain.PaymentStatusRefunded, nil)
	if err != nil {
		s.log.ErrorContext(ctx, "refund issued but not persisted, reconcile by transaction id",
			"payment_id", payment.ID, "transaction_id", transactionID, "error", err)
		return domain.PaymentStatusRefunded, nil
	}
	s.log.InfoContext(ctx, "payment refunded", "payment_id", updated.ID, "amount", amount.StringFixed(2))
	return updated.Status, nil
}

func (s *PaymentService) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	return s.payments.GetByID(ctx, id)
}

func (s *PaymentService) ListByRental(ctx context.Context, rentalID int64) ([]domain.Payment, error) {
	return s.payments.ListByRental(ctx, rentalID)
}

// ConfirmManual settles a transfer or cash payment awaiting confirmation.
func (s *PaymentService) ConfirmManual(ctx context.Context, id int64) (*domain.Payment, error) {
	paidAt := s.now()
	p, err := s.payments.UpdateStatus(ctx, id, domain.PaymentStatusAwaiting, domain.PaymentStatusSucceeded, &paidAt)
	if err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, fmt.Errorf("%w: payment %d is not awaiting confirmation", domain.ErrValidation, id)
		}
		return nil, err
	}
	return p, nil
}

func (s *PaymentService) TotalRevenue(ctx context.Context) (decimal.Decimal, error) {
	return s.payments.TotalRevenue(ctx)
}

func (s *PaymentService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

var _ PaymentUseCase = (*PaymentService)(nil)
