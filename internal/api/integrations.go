package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/killthenoise/killthenoise/internal/models"
)

// IntegrationHandler serves the provider connection lifecycle endpoints.
// Every route is mounted under a provider group, so the provider name comes
// from the registered group rather than a path parameter.
type IntegrationHandler struct {
	svc IntegrationManager
	log *logrus.Logger
}

// NewIntegrationHandler creates an IntegrationHandler.
func NewIntegrationHandler(svc IntegrationManager, log *logrus.Logger) *IntegrationHandler {
	return &IntegrationHandler{svc: svc, log: log}
}

// AuthStatus handles GET /api/v1/{provider}/auth-status.
func (h *IntegrationHandler) AuthStatus(providerType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := getTenantID(c)
		if tenantID == "" {
			return
		}

		status, err := h.svc.AuthStatus(c.Request.Context(), tenantID, providerType)
		if err != nil {
			h.log.WithError(err).Error("checking auth status")
			respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

			return
		}

		c.JSON(http.StatusOK, status)
	}
}

// Authorize handles POST /api/v1/{provider}/authorize. Returns the consent
// redirect URL, or 409 when an active integration already exists.
func (h *IntegrationHandler) Authorize(providerType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := getTenantID(c)
		if tenantID == "" {
			return
		}

		result, err := h.svc.Authorize(c.Request.Context(), tenantID, providerType)
		if err != nil {
			h.log.WithError(err).WithField("provider", providerType).Error("starting oauth flow")
			respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

			return
		}

		if result.NeedsDisconnect {
			c.JSON(http.StatusConflict, result)

			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// OAuthCallback handles GET /api/v1/{provider}/oauth/callback. The provider
// redirects the browser here; the state parameter identifies the pending
// integration, so the route carries no API key.
func (h *IntegrationHandler) OAuthCallback(providerType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Query("code")
		state := c.Query("state")

		if errParam := c.Query("error"); errParam != "" {
			respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "authorization denied: "+errParam)

			return
		}

		integration, err := h.svc.HandleCallback(c.Request.Context(), providerType, code, state)
		if err != nil {
			switch {
			case errors.Is(err, models.ErrIntegrationNotFound):
				respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "unknown or expired oauth state")
			case errors.Is(err, models.ErrDuplicateActive):
				respondError(c, http.StatusConflict, ErrCodeConflict, "an active integration already exists")
			case errors.Is(err, models.ErrNotConnected):
				respondError(c, http.StatusBadGateway, ErrCodeNotConnected, "token exchange failed")
			default:
				h.log.WithError(err).WithField("provider", providerType).Error("completing oauth callback")
				respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
			}

			return
		}

		c.JSON(http.StatusOK, gin.H{
			"connected":      true,
			"provider":       providerType,
			"integration_id": integration.ID,
		})
	}
}

// Disconnect handles DELETE /api/v1/{provider}/disconnect.
func (h *IntegrationHandler) Disconnect(providerType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := getTenantID(c)
		if tenantID == "" {
			return
		}

		removed, err := h.svc.Disconnect(c.Request.Context(), tenantID, providerType)
		if err != nil {
			h.log.WithError(err).WithField("provider", providerType).Error("disconnecting integration")
			respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

			return
		}

		c.JSON(http.StatusOK, gin.H{"disconnected": true, "removed": removed})
	}
}

// CleanupDuplicates handles POST /api/v1/{provider}/cleanup-duplicates.
func (h *IntegrationHandler) CleanupDuplicates(providerType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := getTenantID(c)
		if tenantID == "" {
			return
		}

		result, err := h.svc.CleanupDuplicates(c.Request.Context(), tenantID, providerType)
		if err != nil {
			h.log.WithError(err).WithField("provider", providerType).Error("cleaning up duplicates")
			respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// Status handles GET /api/v1/{provider}/status.
func (h *IntegrationHandler) Status(providerType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := getTenantID(c)
		if tenantID == "" {
			return
		}

		c.JSON(http.StatusOK, h.svc.Status(c.Request.Context(), tenantID, providerType))
	}
}

// ConnectSlack handles POST /api/v1/slack/connect with a legacy bot token.
func (h *IntegrationHandler) ConnectSlack(c *gin.Context) {
	tenantID := getTenantID(c)
	if tenantID == "" {
		return
	}

	var req models.CreateSlackIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

		return
	}

	integration, err := h.svc.ConnectSlackToken(c.Request.Context(), tenantID, req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrMissingToken), errors.Is(err, models.ErrInvalidSlackToken):
			respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())
		case errors.Is(err, models.ErrNotConnected):
			respondError(c, http.StatusBadGateway, ErrCodeNotConnected, "slack rejected the token")
		case errors.Is(err, models.ErrDuplicateActive):
			respondError(c, http.StatusConflict, ErrCodeConflict, "an active slack integration already exists")
		default:
			h.log.WithError(err).Error("connecting slack token")
			respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
		}

		return
	}

	c.JSON(http.StatusCreated, integration)
}

// ListSlackChannels handles GET /api/v1/slack/channels.
func (h *IntegrationHandler) ListSlackChannels(c *gin.Context) {
	tenantID := getTenantID(c)
	if tenantID == "" {
		return
	}

	channels, err := h.svc.ListSlackChannels(c.Request.Context(), tenantID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrIntegrationNotFound):
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "slack is not connected")
		case errors.Is(err, models.ErrNotConnected):
			respondError(c, http.StatusBadGateway, ErrCodeNotConnected, "slack rejected the stored token")
		default:
			h.log.WithError(err).Error("listing slack channels")
			respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
		}

		return
	}

	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

// UpdateSlackChannels handles PUT /api/v1/slack/channels.
func (h *IntegrationHandler) UpdateSlackChannels(c *gin.Context) {
	tenantID := getTenantID(c)
	if tenantID == "" {
		return
	}

	var req models.UpdateSlackChannelsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")

		return
	}

	integration, err := h.svc.UpdateSlackChannels(c.Request.Context(), tenantID, req)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrMissingChannels):
			respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())
		case errors.Is(err, models.ErrIntegrationNotFound):
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "slack is not connected")
		default:
			h.log.WithError(err).Error("updating slack channels")
			respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
		}

		return
	}

	c.JSON(http.StatusOK, integration)
}
