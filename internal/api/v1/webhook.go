package v1

import (
	"io"
	"net/http"
	"time"

	"github.com/gepvi/gepvi-users/internal/api/dto"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/service"
	"github.com/gin-gonic/gin"
)

// maxWebhookBodyBytes caps the payload read from a notification
const maxWebhookBodyBytes = 1 << 20

// WebhookHandler receives payment gateway notifications and exposes the
// delivery audit log
type WebhookHandler struct {
	webhookService service.WebhookService
	auditService   service.AuditService
	logger         *logger.Logger
}

func NewWebhookHandler(
	webhookService service.WebhookService,
	auditService service.AuditService,
	logger *logger.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		webhookService: webhookService,
		auditService:   auditService,
		logger:         logger,
	}
}

// @Summary Receive a payment notification
// @Description Reconciles a gateway notification. The status code tells the gateway whether to redeliver.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param provider_id path string true "Provider ID"
// @Success 200 {object} dto.SuccessResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 401 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 503 {object} ierr.ErrorResponse
// @Router /webhook/{provider_id} [post]
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	receivedAt := time.Now().UTC()

	// Whatever was read of an oversized or broken body is still handed over,
	// so the delivery is audited and rejected as malformed.
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		h.logger.Warnw("failed to read webhook body",
			"provider_id", c.Param("provider_id"),
			"bytes_read", len(body),
			"error", err,
		)
	}

	result := h.webhookService.HandleWebhook(c.Request.Context(), &service.WebhookDelivery{
		ProviderName: c.Param("provider_id"),
		Payload:      body,
		Headers:      c.Request.Header.Clone(),
		RemoteIP:     c.ClientIP(),
		ReceivedAt:   receivedAt,
	})

	c.JSON(result.StatusCode, result.Body)
}

// ListRecordsQuery filters the delivery audit log
type ListRecordsQuery struct {
	Limit    int    `form:"limit"`
	IntentID string `form:"intent_id"`
}

// @Summary List webhook deliveries
// @Description Lists audited webhook deliveries, newest first, optionally for one intent
// @Tags Webhooks
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "Max records (default 50, max 500)"
// @Param intent_id query string false "Intent ID"
// @Success 200 {object} dto.ListResponse[dto.WebhookRecordResponse]
// @Failure 400 {object} ierr.ErrorResponse
// @Router /webhooks/records [get]
func (h *WebhookHandler) ListRecords(c *gin.Context) {
	var query ListRecordsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	var (
		resp *dto.ListResponse[dto.WebhookRecordResponse]
		err  error
	)
	if query.IntentID != "" {
		resp, err = h.auditService.ListByIntent(c.Request.Context(), query.IntentID)
	} else {
		resp, err = h.auditService.ListRecent(c.Request.Context(), query.Limit)
	}
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
