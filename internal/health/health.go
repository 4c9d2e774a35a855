// Package health tracks subsystem health and serves the liveness and
// readiness probes.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// DefaultCheckTimeout bounds a single readiness sweep.
const DefaultCheckTimeout = 2 * time.Second

// Status represents the health of a single subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker reports the health of one subsystem.
type Checker func(ctx context.Context) Status

type namedChecker struct {
	name  string
	check Checker
}

// Registry holds named checkers plus the process-wide ready and alive flags.
// A new Registry is alive but not ready.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker

	ready   atomic.Bool
	alive   atomic.Bool
	timeout time.Duration
}

// NewRegistry creates a new health registry.
func NewRegistry() *Registry {
	r := &Registry{timeout: DefaultCheckTimeout}
	r.alive.Store(true)
	return r
}

// Register adds a named checker. Checkers run in registration order.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
	r.mu.Unlock()
}

// SetReady flips the readiness gate. The server sets it once it is
// listening and clears it when shutdown begins.
func (r *Registry) SetReady(ready bool) { r.ready.Store(ready) }

// Ready reports the readiness gate.
func (r *Registry) Ready() bool { return r.ready.Load() }

// SetAlive flips the liveness flag.
func (r *Registry) SetAlive(alive bool) { r.alive.Store(alive) }

// CheckAll runs every checker and reports whether all of them are healthy.
// A checker that leaves Name empty gets its registered name.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	healthy = true
	statuses = make([]Status, len(checkers))
	for i, nc := range checkers {
		st := nc.check(ctx)
		if st.Name == "" {
			st.Name = nc.name
		}
		statuses[i] = st
		if !st.Healthy {
			healthy = false
		}
	}
	return healthy, statuses
}

// LiveHandler serves GET /health/live.
func (r *Registry) LiveHandler(c *gin.Context) {
	if !r.alive.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// ReadyHandler serves GET /health/ready: 503 until the gate is open or while
// any subsystem is unhealthy.
func (r *Registry) ReadyHandler(c *gin.Context) {
	if !r.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}

	healthy, statuses := r.CheckAll(c.Request.Context())
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": statuses})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": statuses})
}

// PingHandler serves the plain GET /health probe: {"ok":true,"ts":<epoch ms>}.
func PingHandler(now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "ts": now().UnixMilli()})
	}
}
