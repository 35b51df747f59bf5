package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/killthenoise/killthenoise/internal/models"
	"github.com/killthenoise/killthenoise/internal/service"
)

// SyncHandler serves sync triggers and the sync audit endpoints.
type SyncHandler struct {
	integrations IntegrationManager
	syncs        SyncManager
	queue        SyncEnqueuer
	log          *logrus.Logger
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(integrations IntegrationManager, syncs SyncManager, queue SyncEnqueuer, log *logrus.Logger) *SyncHandler {
	return &SyncHandler{integrations: integrations, syncs: syncs, queue: queue, log: log}
}

// Trigger handles POST /api/v1/{provider}/sync. The sync runs in the
// background; the response is 202 with the queued job description.
func (h *SyncHandler) Trigger(providerType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := getTenantID(c)
		if tenantID == "" {
			return
		}

		req := models.SyncRequest{Type: c.Query("type")}
		if err := req.Validate(); err != nil {
			respondError(c, http.StatusBadRequest, ErrCodeValidationError, err.Error())

			return
		}

		integration, err := h.integrations.Active(c.Request.Context(), tenantID, providerType)
		if err != nil {
			if errors.Is(err, models.ErrIntegrationNotFound) {
				respondError(c, http.StatusNotFound, ErrCodeNotFound, providerType+" is not connected")

				return
			}

			h.log.WithError(err).Error("resolving integration for sync")
			respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

			return
		}

		err = h.queue.Enqueue(service.SyncJob{
			TenantID:      tenantID,
			IntegrationID: integration.ID,
			Provider:      providerType,
			SyncType:      req.Type,
		})
		if err != nil {
			if errors.Is(err, models.ErrSyncInProgress) {
				respondError(c, http.StatusConflict, ErrCodeSyncInProgress, "a sync is already running for this integration")

				return
			}

			h.log.WithError(err).Warn("enqueueing sync job")
			respondError(c, http.StatusServiceUnavailable, ErrCodeInternalError, "sync queue unavailable")

			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"queued":         true,
			"provider":       providerType,
			"sync_type":      req.Type,
			"integration_id": integration.ID,
		})
	}
}

// Events handles GET /api/v1/sync/events.
func (h *SyncHandler) Events(c *gin.Context) {
	tenantID := getTenantID(c)
	if tenantID == "" {
		return
	}

	limit := parseInt(c.DefaultQuery("limit", "50"), 50)
	integrationID := parseUUIDQuery(c, "integration_id")

	events, err := h.syncs.Events(c.Request.Context(), tenantID, integrationID, limit)
	if err != nil {
		h.log.WithError(err).Error("listing sync events")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// Metrics handles GET /api/v1/sync/metrics.
func (h *SyncHandler) Metrics(c *gin.Context) {
	tenantID := getTenantID(c)
	if tenantID == "" {
		return
	}

	days := parseInt(c.DefaultQuery("days", "7"), 7)

	metrics, err := h.syncs.Metrics(c.Request.Context(), tenantID, days)
	if err != nil {
		h.log.WithError(err).Error("aggregating sync metrics")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, metrics)
}
