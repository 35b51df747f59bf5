package middleware

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// lockoutThreshold failures within lockoutWindow lock a key out
	// for lockoutDuration.
	lockoutThreshold = 5
	lockoutWindow    = 15 * time.Minute
	lockoutDuration  = 5 * time.Minute

	lockoutSweepEvery = time.Minute
	lockoutMaxTracked = 10_000
)

type keyFailures struct {
	count     int
	firstSeen time.Time
	lockedAt  time.Time
}

// LockoutGuard tracks failed API key authentications by key hash and
// temporarily locks out keys that keep failing. Keys are hashed before
// tracking so raw credentials never sit in memory longer than a request.
type LockoutGuard struct {
	mu     sync.Mutex
	failed map[string]*keyFailures
	log    *logrus.Logger
}

// NewLockoutGuard creates a guard whose sweep goroutine runs until ctx is
// cancelled.
func NewLockoutGuard(ctx context.Context, log *logrus.Logger) *LockoutGuard {
	g := &LockoutGuard{
		failed: make(map[string]*keyFailures),
		log:    log,
	}
	go g.sweep(ctx)

	return g
}

// Locked reports whether the key is currently locked out.
func (g *LockoutGuard) Locked(apiKey string) bool {
	kh := hashKey(apiKey)

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.failed[kh]

	return ok && !rec.lockedAt.IsZero() && time.Since(rec.lockedAt) < lockoutDuration
}

// Failure records a failed authentication for the key.
func (g *LockoutGuard) Failure(apiKey string) {
	kh := hashKey(apiKey)
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.failed[kh]
	if !ok || now.Sub(rec.firstSeen) > lockoutWindow {
		g.failed[kh] = &keyFailures{count: 1, firstSeen: now}

		return
	}

	rec.count++
	if rec.count >= lockoutThreshold && rec.lockedAt.IsZero() {
		rec.lockedAt = now
		g.log.WithField("key_hash", kh[:16]).Warn("api key locked out after repeated auth failures")
	}
}

// Success clears failure tracking for the key.
func (g *LockoutGuard) Success(apiKey string) {
	g.mu.Lock()
	delete(g.failed, hashKey(apiKey))
	g.mu.Unlock()
}

func (g *LockoutGuard) sweep(ctx context.Context) {
	ticker := time.NewTicker(lockoutSweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.mu.Lock()
			for kh, rec := range g.failed {
				expired := !rec.lockedAt.IsZero() && now.Sub(rec.lockedAt) >= lockoutDuration
				stale := now.Sub(rec.firstSeen) >= lockoutWindow
				if expired || stale {
					delete(g.failed, kh)
				}
			}
			if excess := len(g.failed) - lockoutMaxTracked; excess > 0 {
				g.dropOldest(excess)
			}
			g.mu.Unlock()
		}
	}
}

// dropOldest removes the n entries with the oldest first failure.
// Caller holds g.mu.
func (g *LockoutGuard) dropOldest(n int) {
	type aged struct {
		kh string
		at time.Time
	}

	all := make([]aged, 0, len(g.failed))
	for kh, rec := range g.failed {
		all = append(all, aged{kh, rec.firstSeen})
	}

	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })

	for i := 0; i < n && i < len(all); i++ {
		delete(g.failed, all[i].kh)
	}
}
