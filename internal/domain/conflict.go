package domain

import "time"

// HasConflict reports whether the candidate range [start, end] overlaps any active
// rental of vehicleID. Ranges are inclusive: a rental ending on the day another
// starts is a conflict.
func HasConflict(vehicleID int64, start, end time.Time, existing []Rental) bool {
	start, end = Day(start), Day(end)
	for i := range existing {
		r := &existing[i]
		if r.VehicleID != vehicleID || !r.Status.IsActive() {
			continue
		}
		if !Day(r.StartDate).After(end) && !Day(r.EndDate).Before(start) {
			return true
		}
	}
	return false
}
