package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// DaysBetween is the whole number of days from start to end; negative when end precedes start.
func DaysBetween(start, end time.Time) int {
	return int(Day(end).Sub(Day(start)).Hours() / 24)
}

// BillableDays floors the rental length at one day so same-day rentals are charged.
func BillableDays(start, end time.Time) int {
	return max(1, DaysBetween(start, end))
}

// TotalAmount is pricePerDay × billable days, rounded to cents.
func TotalAmount(pricePerDay decimal.Decimal, start, end time.Time) decimal.Decimal {
	days := decimal.NewFromInt(int64(BillableDays(start, end)))
	return pricePerDay.Mul(days).Round(2)
}
