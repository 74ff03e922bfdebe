package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/postgres"
	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	db     postgres.IClient
	logger *logger.Logger
}

func NewHealthHandler(
	db postgres.IClient,
	logger *logger.Logger,
) *HealthHandler {
	return &HealthHandler{
		db:     db,
		logger: logger,
	}
}

// @Summary Health check
// @Description Reports whether the service can reach its database
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warnw("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
