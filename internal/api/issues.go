package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/killthenoise/killthenoise/internal/models"
)

// IssueHandler serves the normalized issue store.
type IssueHandler struct {
	repo IssueRepository
	log  *logrus.Logger
}

// NewIssueHandler creates an IssueHandler.
func NewIssueHandler(repo IssueRepository, log *logrus.Logger) *IssueHandler {
	return &IssueHandler{repo: repo, log: log}
}

// List handles GET /api/v1/issues, and GET /api/v1/{provider}/issues when
// source is pinned by the route group.
func (h *IssueHandler) List(source string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := getTenantID(c)
		if tenantID == "" {
			return
		}

		filter := models.IssueFilter{
			Source:        source,
			Status:        c.Query("status"),
			IntegrationID: parseUUIDQuery(c, "integration_id"),
			Limit:         parseInt(c.DefaultQuery("limit", "50"), 50),
			Offset:        parseOffset(c.DefaultQuery("offset", "0")),
		}

		if filter.Source == "" {
			filter.Source = c.Query("source")
		}

		if raw := c.Query("min_severity"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v >= models.MinSeverity && v <= models.MaxSeverity {
				filter.MinSeverity = v
			}
		}

		issues, hasMore, err := h.repo.List(c.Request.Context(), tenantID, filter)
		if err != nil {
			h.log.WithError(err).Error("listing issues")
			respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

			return
		}

		c.JSON(http.StatusOK, gin.H{"issues": issues, "has_more": hasMore})
	}
}

// Get handles GET /api/v1/issues/:id.
func (h *IssueHandler) Get(c *gin.Context) {
	tenantID := getTenantID(c)
	if tenantID == "" {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid issue id")

		return
	}

	issue, err := h.repo.Get(c.Request.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, models.ErrIssueNotFound) {
			respondError(c, http.StatusNotFound, ErrCodeNotFound, "issue not found")

			return
		}

		h.log.WithError(err).Error("getting issue")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, issue)
}

// Top handles GET /api/v1/issues/top: highest severity first.
func (h *IssueHandler) Top(c *gin.Context) {
	tenantID := getTenantID(c)
	if tenantID == "" {
		return
	}

	limit := parseInt(c.DefaultQuery("limit", "10"), 10)

	minSeverity := 0
	if raw := c.Query("min_severity"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= models.MinSeverity && v <= models.MaxSeverity {
			minSeverity = v
		}
	}

	issues, err := h.repo.Top(c.Request.Context(), tenantID, limit, minSeverity)
	if err != nil {
		h.log.WithError(err).Error("listing top issues")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, gin.H{"issues": issues})
}
