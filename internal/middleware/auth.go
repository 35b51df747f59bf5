package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// authTimingFloor is the minimum response time for failed auth so response
// timing cannot distinguish valid from invalid API keys.
const authTimingFloor = 50 * time.Millisecond

// TenantLookup is the interface for looking up a tenant by API key.
type TenantLookup interface {
	GetTenantByAPIKey(ctx context.Context, apiKey string) (string, error)
}

// Auth returns Gin middleware that authenticates requests via Bearer API key
// and stores the resolved tenant ID on the context. Keys that keep failing
// are locked out by the guard before any lookup happens.
func Auth(lookup TenantLookup, guard *LockoutGuard, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if c.Writer.Status() == http.StatusUnauthorized {
				enforceTimingFloor(start)
			}
		}()

		apiKey := ExtractBearerToken(c)
		if apiKey == "" {
			respondError(c, http.StatusUnauthorized, "unauthorized", "missing or invalid authorization header")
			return
		}

		if guard.Locked(apiKey) {
			respondError(c, http.StatusUnauthorized, "unauthorized", "too many failed attempts, try again later")
			return
		}

		tenantID, err := lookup.GetTenantByAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			guard.Failure(apiKey)
			log.WithFields(logrus.Fields{
				"client_ip":  c.ClientIP(),
				"method":     c.Request.Method,
				"path":       c.Request.URL.Path,
				"request_id": c.GetString("request_id"),
				"key_prefix": truncateKey(apiKey),
			}).Warn("authentication failed: invalid api key")

			respondError(c, http.StatusUnauthorized, "unauthorized", "invalid api key")
			return
		}

		guard.Success(apiKey)
		c.Set("tenant_id", tenantID)
		c.Next()
	}
}

// ExtractBearerToken extracts the API key from the Authorization header.
func ExtractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// truncateKey returns at most the first 4 characters of key followed by "...".
func truncateKey(key string) string {
	if len(key) > 4 {
		return key[:4] + "..."
	}
	return key
}

// enforceTimingFloor sleeps if needed so the response takes at least authTimingFloor.
func enforceTimingFloor(start time.Time) {
	if elapsed := time.Since(start); elapsed < authTimingFloor {
		time.Sleep(authTimingFloor - elapsed)
	}
}
