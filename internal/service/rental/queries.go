package rental

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Domenick1991/carrental/internal/domain"
)

// IsVehicleAvailable reports whether [start, end] is free of active rentals for the vehicle.
// The vehicle's own RENTED flag is not consulted.
func (s *RentalService) IsVehicleAvailable(ctx context.Context, vehicleID int64, start, end time.Time) (bool, error) {
	if vehicleID <= 0 {
		return false, domain.Fail(domain.ErrValidation, domain.StageValidate, 0, vehicleID, errors.New("vehicle id must be positive"))
	}
	if start.IsZero() || end.IsZero() {
		return false, domain.Fail(domain.ErrValidation, domain.StageValidate, 0, vehicleID, errors.New("both dates are required"))
	}
	if domain.Day(end).Before(domain.Day(start)) {
		return false, domain.Fail(domain.ErrInvalidRange, domain.StageValidate, 0, vehicleID, errors.New("end date is before start date"))
	}

	active, err := s.rentals.ListActiveByVehicle(ctx, vehicleID)
	if err != nil {
		return false, fmt.Errorf("list rentals of vehicle %d: %w", vehicleID, err)
	}
	return !domain.HasConflict(vehicleID, start, end, active), nil
}

func (s *RentalService) GetRental(ctx context.Context, id int64) (*domain.Rental, error) {
	return s.load(ctx, id, "")
}

func (s *RentalService) ListRentals(ctx context.Context, filter domain.RentalFilter) ([]domain.Rental, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("%w: period end is before its start", domain.ErrInvalidRange)
	}
	return s.rentals.List(ctx, filter)
}

// ActiveRentals lists rentals holding a vehicle today.
func (s *RentalService) ActiveRentals(ctx context.Context) ([]domain.Rental, error) {
	return s.rentals.ListCurrent(ctx, domain.Day(s.now()))
}

// RentalDetails joins the rental with its vehicle and client, fetched concurrently.
// A vehicle or client that no longer exists leaves its projection empty.
func (s *RentalService) RentalDetails(ctx context.Context, id int64) (*domain.RentalDetails, error) {
	rental, err := s.load(ctx, id, "")
	if err != nil {
		return nil, err
	}
	details := &domain.RentalDetails{
		Rental: *rental,
		Days:   domain.BillableDays(rental.StartDate, rental.EndDate),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vehicle, err := s.vehicles.GetVehicle(gctx, rental.VehicleID)
		switch {
		case errors.Is(err, domain.ErrVehicleNotFound):
			return nil
		case err != nil:
			return domain.Fail(domain.ErrRemote, domain.StageVehicle, rental.ID, rental.VehicleID, err)
		}
		details.Vehicle = vehicle
		return nil
	})
	if s.clients != nil {
		g.Go(func() error {
			client, err := s.lookupClient(gctx, rental.ClientID)
			switch {
			case errors.Is(err, domain.ErrNotFound):
				return nil
			case err != nil:
				return domain.Fail(domain.ErrRemote, "", rental.ID, rental.VehicleID, err)
			}
			details.Client = client
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return details, nil
}

// lookupClient is a cache-aside read; concurrent misses for the same client share one
// remote call.
func (s *RentalService) lookupClient(ctx context.Context, id int64) (*domain.Client, error) {
	if s.cache != nil {
		cached, err := s.cache.GetClient(ctx, id)
		if err != nil {
			s.log.WarnContext(ctx, "client cache read failed", "client_id", id, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	v, err, _ := s.clientLookups.Do(strconv.FormatInt(id, 10), func() (any, error) {
		client, err := s.clients.GetClient(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.SetClient(ctx, client); err != nil {
				s.log.WarnContext(ctx, "client cache write failed", "client_id", id, "error", err)
			}
		}
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Client), nil
}
