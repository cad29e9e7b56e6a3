package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Domenick1991/carrental/internal/domain"
)

type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByID(ctx context.Context, id int64) (*domain.Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error)
	ListByRental(ctx context.Context, rentalID int64) ([]domain.Payment, error)
	RecordOutcome(ctx context.Context, id int64, status domain.PaymentStatus, transactionID string, paidAt *time.Time) error
	UpdateStatus(ctx context.Context, id int64, from, to domain.PaymentStatus, paidAt *time.Time) (*domain.Payment, error)
	TotalRevenue(ctx context.Context) (decimal.Decimal, error)
}

type PGPaymentRepository struct {
	db DB
}

func NewPaymentRepository(db DB) PaymentRepository {
	return &PGPaymentRepository{db: db}
}

const paymentColumns = `id, rental_id, client_id, amount, method, status, transaction_id, paid_at, created_at`

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	if err := row.Scan(&p.ID, &p.RentalID, &p.ClientID, &p.Amount, &p.Method, &p.Status, &p.TransactionID, &p.PaidAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PGPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	return r.db.QueryRow(ctx, `INSERT INTO payments (rental_id, client_id, amount, method, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`, payment.RentalID, payment.ClientID, payment.Amount, payment.Method, payment.Status).
		Scan(&payment.ID, &payment.CreatedAt)
}

func (r *PGPaymentRepository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *PGPaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id=$1`, transactionID))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *PGPaymentRepository) ListByRental(ctx context.Context, rentalID int64) ([]domain.Payment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE rental_id=$1 ORDER BY created_at DESC, id DESC`, rentalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (r *PGPaymentRepository) RecordOutcome(ctx context.Context, id int64, status domain.PaymentStatus, transactionID string, paidAt *time.Time) error {
	var txID *string
	if transactionID != "" {
		txID = &transactionID
	}
	cmd, err := r.db.Exec(ctx, `UPDATE payments SET status=$1, transaction_id=$2, paid_at=$3 WHERE id=$4`, status, txID, paidAt, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateStatus moves a payment from one status to another; paidAt is kept when nil.
func (r *PGPaymentRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.PaymentStatus, paidAt *time.Time) (*domain.Payment, error) {
	row := r.db.QueryRow(ctx, `UPDATE payments SET status=$1, paid_at=COALESCE($2, paid_at) WHERE id=$3 AND status=$4 RETURNING `+paymentColumns, to, paidAt, id, from)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatusChanged
		}
		return nil, err
	}
	return p, nil
}

func (r *PGPaymentRepository) TotalRevenue(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	if err := r.db.QueryRow(ctx, `SELECT SUM(amount) FROM payments WHERE status=$1`, domain.PaymentStatusSucceeded).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

var _ PaymentRepository = (*PGPaymentRepository)(nil)
