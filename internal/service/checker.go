package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/killthenoise/killthenoise/internal/models"
)

// connectionProbeTimeout bounds each probe.
const connectionProbeTimeout = 5 * time.Second

// DBPinger verifies database connectivity.
type DBPinger interface {
	HealthCheck(ctx context.Context) error
}

// AIProber verifies the summarization API is reachable.
type AIProber interface {
	Probe(ctx context.Context) error
}

// ConnectionChecker probes the database, every provider's live connection,
// and the AI API for a tenant.
type ConnectionChecker struct {
	integrations *IntegrationService
	db           DBPinger
	ai           AIProber
}

// NewConnectionChecker creates a ConnectionChecker. ai may be nil when no
// AI key is configured; the AI entry is omitted in that case.
func NewConnectionChecker(integrations *IntegrationService, db DBPinger, ai AIProber) *ConnectionChecker {
	return &ConnectionChecker{integrations: integrations, db: db, ai: ai}
}

// CheckAll runs every probe in parallel and returns one status per service:
// the database first, then providers in registration order, then the AI API.
// Probes never fail the whole check; a broken service is reported in its own
// entry with its response time.
func (c *ConnectionChecker) CheckAll(ctx context.Context, tenantID string) []ConnectionStatus {
	n := 1 + len(models.Providers)
	if c.ai != nil {
		n++
	}
	statuses := make([]ConnectionStatus, n)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		statuses[0] = c.probe(ctx, "database", func(probeCtx context.Context) error {
			return c.db.HealthCheck(probeCtx)
		})

		return nil
	})

	for i, providerType := range models.Providers {
		i, providerType := i, providerType
		g.Go(func() error {
			start := time.Now()

			probeCtx, cancel := context.WithTimeout(ctx, connectionProbeTimeout)
			defer cancel()

			status := *c.integrations.Status(probeCtx, tenantID, providerType)
			status.LatencyMS = time.Since(start).Milliseconds()
			statuses[i+1] = status

			return nil
		})
	}

	if c.ai != nil {
		g.Go(func() error {
			statuses[n-1] = c.probe(ctx, "ai", c.ai.Probe)

			return nil
		})
	}

	g.Wait() //nolint:errcheck // probes report errors in their own status entry.

	return statuses
}

func (c *ConnectionChecker) probe(ctx context.Context, name string, fn func(context.Context) error) ConnectionStatus {
	probeCtx, cancel := context.WithTimeout(ctx, connectionProbeTimeout)
	defer cancel()

	start := time.Now()
	err := fn(probeCtx)

	status := ConnectionStatus{
		Provider:  name,
		Connected: err == nil,
		Status:    "ok",
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		status.Status = "unreachable"
		status.Error = err.Error()
	}

	return status
}
