package domain

import "github.com/shopspring/decimal"

type Availability string

const (
	AvailabilityAvailable Availability = "AVAILABLE"
	AvailabilityRented    Availability = "RENTED"
)

type Vehicle struct {
	ID           int64           `json:"id"`
	Brand        string          `json:"brand"`
	Model        string          `json:"model"`
	Year         int             `json:"year"`
	PricePerDay  decimal.Decimal `json:"price_per_day"`
	Availability Availability    `json:"availability"`
}

func (v *Vehicle) IsRented() bool {
	return v.Availability == AvailabilityRented
}
