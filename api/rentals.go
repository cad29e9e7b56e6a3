package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Domenick1991/carrental/internal/domain"
	"github.com/Domenick1991/carrental/internal/service/rental"
)

type RentalHandler struct {
	service rental.RentalUseCase
}

type createRentalRequest struct {
	VehicleID     int64  `json:"vehicle_id"`
	ClientID      int64  `json:"client_id"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	PaymentMethod string `json:"payment_method"`
}

type payRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type statusChangeResponse struct {
	*domain.Rental
	Warning string `json:"warning,omitempty"`
}

type availabilityResponse struct {
	VehicleID int64  `json:"vehicle_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Available bool   `json:"available"`
}

func NewRentalHandler(service rental.RentalUseCase) *RentalHandler {
	return &RentalHandler{service: service}
}

func (h *RentalHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("", h.list)
	router.GET("/active", h.active)
	router.GET("/check-availability", h.checkAvailability)
	router.GET("/:id", h.get)
	router.GET("/:id/details", h.details)
	router.PATCH("/:id/status", h.changeStatus)
	router.POST("/:id/settle", h.settle)
	router.POST("/:id/pay", h.pay)
	router.DELETE("/:id", h.delete)
}

func (h *RentalHandler) create(c *gin.Context) {
	var req createRentalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	start, err := parseDate(req.StartDate, "start_date")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	end, err := parseDate(req.EndDate, "end_date")
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	created, err := h.service.CreateRental(c.Request.Context(), rental.CreateRentalInput{
		VehicleID: req.VehicleID,
		ClientID:  req.ClientID,
		StartDate: start,
		EndDate:   end,
		Method:    domain.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	if created.Status == domain.RentalStatusPending {
		status = http.StatusAccepted
	}
	c.JSON(status, created)
}

func (h *RentalHandler) list(c *gin.Context) {
	var filter domain.RentalFilter
	var err error
	if filter.ClientID, err = optionalID(c.Query("client_id")); err != nil {
		badRequest(c, "invalid client_id")
		return
	}
	if filter.VehicleID, err = optionalID(c.Query("vehicle_id")); err != nil {
		badRequest(c, "invalid vehicle_id")
		return
	}
	if s := c.Query("status"); s != "" {
		status, ok := domain.ParseRentalStatus(s)
		if !ok {
			badRequest(c, "unknown status "+s)
			return
		}
		filter.Status = status
	}
	if s := c.Query("from"); s != "" {
		if filter.From, err = parseDate(s, "from"); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if s := c.Query("to"); s != "" {
		if filter.To, err = parseDate(s, "to"); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	rentals, err := h.service.ListRentals(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rentals)
}

func (h *RentalHandler) active(c *gin.Context) {
	rentals, err := h.service.ActiveRentals(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rentals)
}

func (h *RentalHandler) checkAvailability(c *gin.Context) {
	vehicleID, err := strconv.ParseInt(c.Query("vehicle_id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid vehicle_id")
		return
	}
	start, err := parseDate(c.Query("start_date"), "start_date")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	end, err := parseDate(c.Query("end_date"), "end_date")
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	available, err := h.service.IsVehicleAvailable(c.Request.Context(), vehicleID, start, end)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, availabilityResponse{
		VehicleID: vehicleID,
		StartDate: start.Format(domain.DateLayout),
		EndDate:   end.Format(domain.DateLayout),
		Available: available,
	})
}

func (h *RentalHandler) get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	found, err := h.service.GetRental(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, found)
}

func (h *RentalHandler) details(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	details, err := h.service.RentalDetails(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// changeStatus takes ?status=CANCELLED&refund=true. A cancellation whose refund failed
// still answers 200 with a warning: the rental did change.
func (h *RentalHandler) changeStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	target, ok := domain.ParseRentalStatus(c.Query("status"))
	if !ok {
		badRequest(c, "unknown status "+c.Query("status"))
		return
	}
	refund := false
	if s := c.Query("refund"); s != "" {
		var err error
		if refund, err = strconv.ParseBool(s); err != nil {
			badRequest(c, "invalid refund flag")
			return
		}
	}

	updated, err := h.service.ChangeStatus(c.Request.Context(), id, target, refund)
	if err != nil {
		if updated != nil && errors.Is(err, domain.ErrRefundFailed) {
			c.JSON(http.StatusOK, statusChangeResponse{Rental: updated, Warning: err.Error()})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusChangeResponse{Rental: updated})
}

func (h *RentalHandler) settle(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	settled, err := h.service.SettlePayment(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settled)
}

// pay retries the payment of a PENDING rental; the body is optional and defaults to CARD.
func (h *RentalHandler) pay(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req payRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	paid, err := h.service.RetryPayment(c.Request.Context(), id, domain.PaymentMethod(req.PaymentMethod))
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if paid.Status == domain.RentalStatusPending {
		status = http.StatusAccepted
	}
	c.JSON(status, paid)
}

func (h *RentalHandler) delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteRental(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
