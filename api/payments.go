package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Domenick1991/carrental/internal/service/payments"
)

type PaymentHandler struct {
	service payments.PaymentUseCase
}

type revenueResponse struct {
	TotalRevenue string `json:"total_revenue"`
}

func NewPaymentHandler(service payments.PaymentUseCase) *PaymentHandler {
	return &PaymentHandler{service: service}
}

func (h *PaymentHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.listByRental)
	router.GET("/revenue", h.revenue)
	router.GET("/:id", h.get)
}

func (h *PaymentHandler) listByRental(c *gin.Context) {
	rentalID, err := strconv.ParseInt(c.Query("rental_id"), 10, 64)
	if err != nil || rentalID <= 0 {
		badRequest(c, "rental_id is required")
		return
	}
	list, err := h.service.ListByRental(c.Request.Context(), rentalID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *PaymentHandler) revenue(c *gin.Context) {
	total, err := h.service.TotalRevenue(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, revenueResponse{TotalRevenue: total.StringFixed(2)})
}

func (h *PaymentHandler) get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	payment, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}
