package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Domenick1991/carrental/internal/domain"
	"github.com/Domenick1991/carrental/internal/logger"
)

// problem is an RFC 9457 style error body, extended with the saga coordinates.
type problem struct {
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Stage     string `json:"stage,omitempty"`
	RentalID  int64  `json:"rental_id,omitempty"`
	VehicleID int64  `json:"vehicle_id,omitempty"`
}

// mapError converts a service error into the response body and status.
func mapError(err error) problem {
	p := problem{Detail: err.Error()}
	if se, ok := domain.AsSagaError(err); ok {
		p.Stage = string(se.Stage)
		p.RentalID = se.RentalID
		p.VehicleID = se.VehicleID
	}

	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidRange):
		p.Status, p.Title = http.StatusBadRequest, "Invalid request"
	case errors.Is(err, domain.ErrVehicleNotFound):
		p.Status, p.Title = http.StatusNotFound, "Vehicle not found"
	case errors.Is(err, domain.ErrNotFound):
		p.Status, p.Title = http.StatusNotFound, "Not found"
	case errors.Is(err, domain.ErrDateRangeConflict),
		errors.Is(err, domain.ErrVehicleUnavailable),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrHasActivePayment):
		p.Status, p.Title = http.StatusConflict, "Conflict"
	case errors.Is(err, domain.ErrPaymentFailed):
		p.Status, p.Title = http.StatusPaymentRequired, "Payment failed"
	case errors.Is(err, domain.ErrRefundFailed):
		p.Status, p.Title = http.StatusBadGateway, "Refund failed"
	case errors.Is(err, domain.ErrPaymentUnavailable):
		p.Status, p.Title = http.StatusServiceUnavailable, "Payment provider unavailable"
	case errors.Is(err, domain.ErrRemote):
		p.Status, p.Title = http.StatusBadGateway, "Upstream service error"
	default:
		p.Status, p.Title, p.Detail = http.StatusInternalServerError, "Internal error", ""
	}
	return p
}

func writeError(c *gin.Context, err error) {
	p := mapError(err)
	if p.Status >= http.StatusInternalServerError {
		logger.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "path", c.FullPath(), "status", p.Status, "error", err)
	}
	c.Header("Content-Type", "application/problem+json")
	c.JSON(p.Status, p)
}

func badRequest(c *gin.Context, detail string) {
	c.JSON(http.StatusBadRequest, problem{Title: "Invalid request", Status: http.StatusBadRequest, Detail: detail})
}
