package middleware_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/killthenoise/killthenoise/internal/middleware"
)

type staticLookup struct {
	keys map[string]string
}

func (l *staticLookup) GetTenantByAPIKey(_ context.Context, apiKey string) (string, error) {
	if tid, ok := l.keys[apiKey]; ok {
		return tid, nil
	}

	return "", errors.New("unknown key")
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func authRouter(ctx context.Context, lookup middleware.TenantLookup) *gin.Engine {
	log := quietLogger()
	r := gin.New()
	r.Use(middleware.Auth(lookup, middleware.NewLockoutGuard(ctx, log), log))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tenant_id": c.GetString("tenant_id")})
	})

	return r
}

func getWithKey(r *gin.Engine, key string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", http.NoBody)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	r.ServeHTTP(w, req)

	return w
}

func TestAuth_MissingHeader(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := authRouter(ctx, &staticLookup{keys: map[string]string{}})

	if w := getWithKey(r, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ValidKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := authRouter(ctx, &staticLookup{keys: map[string]string{"ktn-good": "tenant-1"}})

	w := getWithKey(r, "ktn-good")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAuth_LocksOutAfterRepeatedFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lookup := &staticLookup{keys: map[string]string{"ktn-good": "tenant-1"}}
	r := authRouter(ctx, lookup)

	for n := 0; n < 5; n++ {
		if w := getWithKey(r, "ktn-bad"); w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for bad key, got %d", w.Code)
		}
	}

	// Even if the key were suddenly valid, the lockout holds.
	lookup.keys["ktn-bad"] = "tenant-2"

	if w := getWithKey(r, "ktn-bad"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected lockout 401, got %d", w.Code)
	}
}

func TestAuth_SuccessClearsFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lookup := &staticLookup{keys: map[string]string{}}
	r := authRouter(ctx, lookup)

	// Four failures, a success, then four more failures. Without the reset
	// on success the cumulative count would have crossed the threshold.
	for n := 0; n < 4; n++ {
		getWithKey(r, "ktn-flaky")
	}

	lookup.keys["ktn-flaky"] = "tenant-1"
	if w := getWithKey(r, "ktn-flaky"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	delete(lookup.keys, "ktn-flaky")
	for n := 0; n < 4; n++ {
		getWithKey(r, "ktn-flaky")
	}

	lookup.keys["ktn-flaky"] = "tenant-1"
	if w := getWithKey(r, "ktn-flaky"); w.Code != http.StatusOK {
		t.Fatalf("expected key to stay unlocked, got %d", w.Code)
	}
}

func TestLockoutGuard_IndependentKeys(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := middleware.NewLockoutGuard(ctx, quietLogger())

	for n := 0; n < 5; n++ {
		g.Failure("key-a")
	}

	if !g.Locked("key-a") {
		t.Fatal("expected key-a to be locked")
	}
	if g.Locked("key-b") {
		t.Fatal("key-b should be unaffected")
	}
}
