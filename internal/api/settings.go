package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/killthenoise/killthenoise/internal/models"
)

// SettingsHandler serves per-tenant AI instruction settings.
type SettingsHandler struct {
	store SettingsRepository
	log   *logrus.Logger
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(store SettingsRepository, log *logrus.Logger) *SettingsHandler {
	return &SettingsHandler{store: store, log: log}
}

// Get handles GET /api/v1/settings.
func (h *SettingsHandler) Get(c *gin.Context) {
	tenantID := getTenantID(c)
	if tenantID == "" {
		return
	}

	settings, err := h.store.Get(c.Request.Context(), tenantID)
	if err != nil {
		h.log.WithError(err).Error("getting tenant settings")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, settings)
}

// Update handles PUT /api/v1/settings: a partial update where omitted fields
// keep their stored values.
func (h *SettingsHandler) Update(c *gin.Context) {
	tenantID := getTenantID(c)
	if tenantID == "" {
		return
	}

	var req models.TenantSettingsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

		return
	}

	if err := req.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())

		return
	}

	settings, err := h.store.Upsert(c.Request.Context(), tenantID, req)
	if err != nil {
		h.log.WithError(err).Error("updating tenant settings")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, settings)
}
