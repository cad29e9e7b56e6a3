package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Domenick1991/carrental/internal/domain"
)

// ReservationCheck inspects the vehicle's active rentals before a new one is inserted.
// A non-nil error aborts the reservation.
type ReservationCheck func(active []domain.Rental) error

type RentalRepository interface {
	CreatePending(ctx context.Context, rental *domain.Rental, check ReservationCheck) error
	GetByID(ctx context.Context, id int64) (*domain.Rental, error)
	ListActiveByVehicle(ctx context.Context, vehicleID int64) ([]domain.Rental, error)
	List(ctx context.Context, filter domain.RentalFilter) ([]domain.Rental, error)
	ListCurrent(ctx context.Context, day time.Time) ([]domain.Rental, error)
	UpdateStatus(ctx context.Context, id int64, from, to domain.RentalStatus) (*domain.Rental, error)
	Confirm(ctx context.Context, id, paymentID int64) (*domain.Rental, error)
	Delete(ctx context.Context, id int64) error
	ExpirePendingBefore(ctx context.Context, deadline time.Time) ([]domain.Rental, error)
}

type PGRentalRepository struct {
	db DB
}

func NewRentalRepository(db DB) RentalRepository {
	return &PGRentalRepository{db: db}
}

const rentalColumns = `id, vehicle_id, client_id, start_date, end_date, status, total_amount, payment_id, created_at, updated_at`

func scanRental(row rowScanner) (*domain.Rental, error) {
	var r domain.Rental
	if err := row.Scan(&r.ID, &r.VehicleID, &r.ClientID, &r.StartDate, &r.EndDate, &r.Status, &r.TotalAmount, &r.PaymentID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRentals(rows pgx.Rows) ([]domain.Rental, error) {
	defer rows.Close()

	rentals := make([]domain.Rental, 0)
	for rows.Next() {
		r, err := scanRental(rows)
		if err != nil {
			return nil, err
		}
		rentals = append(rentals, *r)
	}
	return rentals, rows.Err()
}

// CreatePending serialises check-then-reserve per vehicle: the advisory lock is held
// until the transaction ends, so two sagas for the same vehicle cannot both pass check.
func (r *PGRentalRepository) CreatePending(ctx context.Context, rental *domain.Rental, check ReservationCheck) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, rental.VehicleID); err != nil {
		return fmt.Errorf("lock vehicle %d: %w", rental.VehicleID, err)
	}

	rows, err := tx.Query(ctx, `SELECT `+rentalColumns+` FROM rentals WHERE vehicle_id=$1 AND status = ANY($2)`, rental.VehicleID, activeStatuses())
	if err != nil {
		return err
	}
	active, err := collectRentals(rows)
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(active); err != nil {
			return err
		}
	}

	rental.Status = domain.RentalStatusPending
	if err := tx.QueryRow(ctx, `INSERT INTO rentals (vehicle_id, client_id, start_date, end_date, status, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`, rental.VehicleID, rental.ClientID, rental.StartDate, rental.EndDate, rental.Status, rental.TotalAmount).
		Scan(&rental.ID, &rental.CreatedAt, &rental.UpdatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PGRentalRepository) GetByID(ctx context.Context, id int64) (*domain.Rental, error) {
	rental, err := scanRental(r.db.QueryRow(ctx, `SELECT `+rentalColumns+` FROM rentals WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return rental, nil
}

func (r *PGRentalRepository) ListActiveByVehicle(ctx context.Context, vehicleID int64) ([]domain.Rental, error) {
	rows, err := r.db.Query(ctx, `SELECT `+rentalColumns+` FROM rentals WHERE vehicle_id=$1 AND status = ANY($2) ORDER BY start_date`, vehicleID, activeStatuses())
	if err != nil {
		return nil, err
	}
	return collectRentals(rows)
}

func (r *PGRentalRepository) List(ctx context.Context, filter domain.RentalFilter) ([]domain.Rental, error) {
	query, args := buildListQuery(filter)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRentals(rows)
}

func buildListQuery(filter domain.RentalFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if filter.ClientID != 0 {
		add("client_id=$%d", filter.ClientID)
	}
	if filter.VehicleID != 0 {
		add("vehicle_id=$%d", filter.VehicleID)
	}
	if filter.Status != "" {
		add("status=$%d", filter.Status)
	}
	if !filter.From.IsZero() {
		add("start_date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("end_date <= $%d", filter.To)
	}

	query := `SELECT ` + rentalColumns + ` FROM rentals`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	return query + ` ORDER BY start_date, id`, args
}

// ListCurrent returns rentals holding a vehicle on day.
func (r *PGRentalRepository) ListCurrent(ctx context.Context, day time.Time) ([]domain.Rental, error) {
	rows, err := r.db.Query(ctx, `SELECT `+rentalColumns+` FROM rentals
		WHERE status IN ('CONFIRMED', 'IN_PROGRESS') AND start_date <= $1 AND end_date >= $1
		ORDER BY vehicle_id`, day)
	if err != nil {
		return nil, err
	}
	return collectRentals(rows)
}

func (r *PGRentalRepository) UpdateStatus(ctx context.Context, id int64, from, to domain.RentalStatus) (*domain.Rental, error) {
	row := r.db.QueryRow(ctx, `UPDATE rentals SET status=$1, updated_at=now() WHERE id=$2 AND status=$3 RETURNING `+rentalColumns, to, id, from)
	rental, err := scanRental(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatusChanged
		}
		return nil, err
	}
	return rental, nil
}

func (r *PGRentalRepository) Confirm(ctx context.Context, id, paymentID int64) (*domain.Rental, error) {
	row := r.db.QueryRow(ctx, `UPDATE rentals SET status=$1, payment_id=$2, updated_at=now() WHERE id=$3 AND status=$4 RETURNING `+rentalColumns,
		domain.RentalStatusConfirmed, paymentID, id, domain.RentalStatusPending)
	rental, err := scanRental(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStatusChanged
		}
		return nil, err
	}
	return rental, nil
}

func (r *PGRentalRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM rentals WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ExpirePendingBefore cancels unpaid PENDING rentals created before deadline. Rentals
// with a manual payment awaiting confirmation are left alone.
func (r *PGRentalRepository) ExpirePendingBefore(ctx context.Context, deadline time.Time) ([]domain.Rental, error) {
	rows, err := r.db.Query(ctx, `UPDATE rentals SET status=$1, updated_at=now()
		WHERE status=$2 AND payment_id IS NULL AND created_at <= $3
		AND NOT EXISTS (SELECT 1 FROM payments p WHERE p.rental_id = rentals.id AND p.status=$4)
		RETURNING `+rentalColumns,
		domain.RentalStatusCancelled, domain.RentalStatusPending, deadline, domain.PaymentStatusAwaiting)
	if err != nil {
		return nil, err
	}
	return collectRentals(rows)
}

func activeStatuses() []string {
	out := make([]string, len(domain.ActiveRentalStatuses))
	for i, s := range domain.ActiveRentalStatuses {
		out[i] = string(s)
	}
	return out
}

var _ RentalRepository = (*PGRentalRepository)(nil)
