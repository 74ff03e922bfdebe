package v1

import (
	"net/http"

	"github.com/gepvi/gepvi-users/internal/api/dto"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/service"
	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	service service.PaymentService
	logger  *logger.Logger
}

func NewPaymentHandler(service service.PaymentService, logger *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		logger:  logger,
	}
}

// @Summary Create a payment
// @Description Registers a payment intent and returns the gateway confirmation url
// @Tags Payments
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param payment body dto.CreatePaymentRequest true "Payment to create"
// @Success 201 {object} dto.CreatePaymentResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 503 {object} ierr.ErrorResponse
// @Router /payments/create [post]
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateIntent(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a payment intent
// @Tags Payments
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Intent ID"
// @Success 200 {object} dto.PaymentIntentResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /payments/intents/{id} [get]
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	resp, err := h.service.GetIntent(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary List packages
// @Tags Payments
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} dto.ListResponse[dto.PackageResponse]
// @Router /payments/packages [get]
func (h *PaymentHandler) ListPackages(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.ListPackages(c.Request.Context()))
}
