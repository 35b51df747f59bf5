package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/killthenoise/killthenoise/internal/models"
)

// AnalyticsHandler serves the dashboard aggregation endpoints.
type AnalyticsHandler struct {
	repo   AnalyticsRepository
	issues IssueRepository
	log    *logrus.Logger
}

// NewAnalyticsHandler creates an AnalyticsHandler.
func NewAnalyticsHandler(repo AnalyticsRepository, issues IssueRepository, log *logrus.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{repo: repo, issues: issues, log: log}
}

func analyticsDays(c *gin.Context) int {
	return parseInt(c.DefaultQuery("days", "30"), 30)
}

// Dashboard handles GET /api/v1/analytics/dashboard: every view in one
// response, aggregations fanned out in parallel.
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	tenantID := getTenantID(c)
	if tenantID == "" {
		return
	}

	days := analyticsDays(c)
	dash := models.Dashboard{TimeRangeDays: days}

	g, ctx := errgroup.WithContext(c.Request.Context())

	g.Go(func() error {
		m, err := h.repo.Metrics(ctx, tenantID, days)
		if err != nil {
			return err
		}
		dash.Metrics = *m

		return nil
	})
	g.Go(func() (err error) {
		dash.SourceComparison, err = h.repo.SourceComparison(ctx, tenantID, days)

		return err
	})
	g.Go(func() (err error) {
		dash.Trends, err = h.repo.Trends(ctx, tenantID, days)

		return err
	})
	g.Go(func() (err error) {
		dash.SeverityDistribution, err = h.repo.SeverityDistribution(ctx, tenantID, days)

		return err
	})
	g.Go(func() (err error) {
		dash.StatusDistribution, err = h.repo.StatusDistribution(ctx, tenantID, days)

		return err
	})
	g.Go(func() (err error) {
		dash.TopIssues, err = h.issues.Top(ctx, tenantID, 10, 0)

		return err
	})
	g.Go(func() (err error) {
		dash.ChangeVelocity, err = h.repo.ChangeVelocity(ctx, tenantID, days)

		return err
	})

	if err := g.Wait(); err != nil {
		h.log.WithError(err).Error("building analytics dashboard")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, dash)
}

// Metrics handles GET /api/v1/analytics/metrics.
func (h *AnalyticsHandler) Metrics(c *gin.Context) {
	tenantID := getTenantID(c)
	if tenantID == "" {
		return
	}

	m, err := h.repo.Metrics(c.Request.Context(), tenantID, analyticsDays(c))
	if err != nil {
		h.log.WithError(err).Error("aggregating issue metrics")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, m)
}

// Sources handles GET /api/v1/analytics/sources.
func (h *AnalyticsHandler) Sources(c *gin.Context) {
	tenantID := getTenantID(c)
	if tenantID == "" {
		return
	}

	sources, err := h.repo.SourceComparison(c.Request.Context(), tenantID, analyticsDays(c))
	if err != nil {
		h.log.WithError(err).Error("comparing sources")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, gin.H{"sources": sources})
}

// Trends handles GET /api/v1/analytics/trends.
func (h *AnalyticsHandler) Trends(c *gin.Context) {
	tenantID := getTenantID(c)
	if tenantID == "" {
		return
	}

	trends, err := h.repo.Trends(c.Request.Context(), tenantID, analyticsDays(c))
	if err != nil {
		h.log.WithError(err).Error("querying trends")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, gin.H{"trends": trends})
}

// Distributions handles GET /api/v1/analytics/distributions.
func (h *AnalyticsHandler) Distributions(c *gin.Context) {
	tenantID := getTenantID(c)
	if tenantID == "" {
		return
	}

	days := analyticsDays(c)

	severity, err := h.repo.SeverityDistribution(c.Request.Context(), tenantID, days)
	if err != nil {
		h.log.WithError(err).Error("querying severity distribution")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	status, err := h.repo.StatusDistribution(c.Request.Context(), tenantID, days)
	if err != nil {
		h.log.WithError(err).Error("querying status distribution")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, gin.H{"severity": severity, "status": status})
}

// Velocity handles GET /api/v1/analytics/velocity.
func (h *AnalyticsHandler) Velocity(c *gin.Context) {
	tenantID := getTenantID(c)
	if tenantID == "" {
		return
	}

	velocity, err := h.repo.ChangeVelocity(c.Request.Context(), tenantID, analyticsDays(c))
	if err != nil {
		h.log.WithError(err).Error("querying change velocity")
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")

		return
	}

	c.JSON(http.StatusOK, gin.H{"velocity": velocity})
}
