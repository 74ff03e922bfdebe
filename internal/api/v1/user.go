package v1

import (
	"net/http"

	"github.com/gepvi/gepvi-users/internal/api/dto"
	ierr "github.com/gepvi/gepvi-users/internal/errors"
	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/service"
	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	entitlementService service.EntitlementService
	quotaService       service.QuotaService
	logger             *logger.Logger
}

func NewUserHandler(
	entitlementService service.EntitlementService,
	quotaService service.QuotaService,
	logger *logger.Logger,
) *UserHandler {
	return &UserHandler{
		entitlementService: entitlementService,
		quotaService:       quotaService,
		logger:             logger,
	}
}

// @Summary Get or create a user
// @Description Resolves a user by id, external alias or both, creating the entitlement on first contact
// @Tags Users
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param user body dto.GetOrCreateUserRequest true "User identity"
// @Success 200 {object} dto.EntitlementResponse
// @Success 201 {object} dto.EntitlementResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Failure 503 {object} ierr.ErrorResponse
// @Router /users/get_or_create [post]
func (h *UserHandler) GetOrCreate(c *gin.Context) {
	var req dto.GetOrCreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.entitlementService.GetOrCreate(c.Request.Context(), req)
	if err != nil {
		c.Error(err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

// @Summary Get a user
// @Tags Users
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "User ID"
// @Success 200 {object} dto.EntitlementResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	resp, err := h.entitlementService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Consume a free unit
// @Description Atomically takes one unit of the user's free quota. An exhausted quota is a denial, not an error.
// @Tags Users
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "User ID"
// @Success 200 {object} dto.ConsumeQuotaResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 503 {object} ierr.ErrorResponse
// @Router /users/{id}/quota/consume [post]
func (h *UserHandler) ConsumeQuota(c *gin.Context) {
	resp, err := h.quotaService.ConsumeFreeUnit(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
