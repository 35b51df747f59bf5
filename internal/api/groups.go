package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GroupHandler serves clustered issue groups.
type GroupHandler struct {
	svc GroupManager
	log *logrus.Logger
}

// NewGroupHandler creates a GroupHandler.
func NewGroupHandler(svc GroupManager, log *logrus.Logger) *GroupHandler {
	return &GroupHandler{svc: svc, log: log}
}

// List handles GET /api/v1/groups.
func (h *GroupHandler) List(c *gin.Context) {
	tenantID := getTenantID(c)
	if tenantID == "" {
		return
	}

	limit := parseInt(c.DefaultQuery("limit", "50"), 50)

	groups, err := h.svc.List(c.Request.Context(), tenantID, limit)
	if err != nil {
		h.log.WithError(err).Error("listing issue groups")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// Recluster handles POST /api/v1/groups/recluster: rebuilds the tenant's
// groups from the current issue set.
func (h *GroupHandler) Recluster(c *gin.Context) {
	tenantID := getTenantID(c)
	if tenantID == "" {
		return
	}

	if err := h.svc.Recluster(c.Request.Context(), tenantID); err != nil {
		h.log.WithError(err).Error("reclustering issues")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	groups, err := h.svc.List(c.Request.Context(), tenantID, 50)
	if err != nil {
		h.log.WithError(err).Error("listing issue groups")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, gin.H{"reclustered": true, "groups": groups})
}
