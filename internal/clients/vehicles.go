package clients

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Domenick1991/carrental/internal/domain"
)

// VehicleClient talks to the car service. Nothing is cached: availability is owned
// remotely and every read goes to the source.
type VehicleClient struct {
	remote
}

func NewVehicleClient(baseURL string, timeout time.Duration, hc *http.Client) *VehicleClient {
	return &VehicleClient{remote: newRemote("vehicles", baseURL, timeout, hc)}
}

type vehicleDTO struct {
	ID          int64           `json:"id"`
	Brand       string          `json:"brand"`
	Model       string          `json:"model"`
	Year        int             `json:"year"`
	PricePerDay decimal.Decimal `json:"pricePerDay"`
	Status      string          `json:"status"`
}

func (d vehicleDTO) toDomain() *domain.Vehicle {
	availability := domain.AvailabilityAvailable
	if d.Status == string(domain.AvailabilityRented) {
		availability = domain.AvailabilityRented
	}
	return &domain.Vehicle{
		ID:           d.ID,
		Brand:        d.Brand,
		Model:        d.Model,
		Year:         d.Year,
		PricePerDay:  d.PricePerDay,
		Availability: availability,
	}
}

func (c *VehicleClient) GetVehicle(ctx context.Context, id int64) (*domain.Vehicle, error) {
	var dto vehicleDTO
	status, err := c.do(ctx, http.MethodGet, "/api/cars/"+strconv.FormatInt(id, 10), &dto)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, domain.ErrVehicleNotFound
	}
	return dto.toDomain(), nil
}

// SetAvailability flips the vehicle's flag. It is idempotent on the car service side:
// setting the current value again is a no-op.
func (c *VehicleClient) SetAvailability(ctx context.Context, id int64, available bool) error {
	path := fmt.Sprintf("/api/cars/%d/availability?availability=%t", id, available)
	status, err := c.do(ctx, http.MethodPatch, path, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return domain.ErrVehicleNotFound
	}
	return nil
}
