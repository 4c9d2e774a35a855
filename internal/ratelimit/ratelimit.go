// Package ratelimit provides the per-client request governor for the
// guardian API's mutating endpoints.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safewalk/guardian/internal/metrics"
)

// UnknownClient is the shared bucket for requests with no usable address.
const UnknownClient = "unknown"

// Config configures rate limiting
type Config struct {
	// MaxRequests is the number of requests admitted per client per window
	MaxRequests int
	// Window is the length of a counting window
	Window time.Duration
	// CleanupInterval is how often stale entries are reaped. Defaults to Window.
	CleanupInterval time.Duration
}

// DefaultConfig returns 30 requests per rolling minute.
func DefaultConfig() Config {
	return Config{
		MaxRequests:     30,
		Window:          time.Minute,
		CleanupInterval: time.Minute,
	}
}

// Limiter counts requests per client key in fixed windows that start at the
// client's first request.
type Limiter struct {
	cfg     Config
	now     func() time.Time
	mu      sync.Mutex
	clients map[string]*windowEntry
	stop    chan struct{}
	once    sync.Once
}

type windowEntry struct {
	count       int
	windowStart time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter and starts its reaper goroutine. Call Stop when done.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultConfig().MaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = cfg.Window
	}

	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		clients: make(map[string]*windowEntry),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.cleanup()
	return l
}

// cleanup removes stale entries periodically
func (l *Limiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.reap()
		case <-l.stop:
			return
		}
	}
}

// reap drops entries whose window started more than two windows ago.
func (l *Limiter) reap() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-2 * l.cfg.Window)
	removed := 0
	for key, entry := range l.clients {
		if entry.windowStart.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// Allow records a request for key and reports whether it is admitted.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, exists := l.clients[key]

	if !exists || now.Sub(entry.windowStart) > l.cfg.Window {
		l.clients[key] = &windowEntry{count: 1, windowStart: now}
		return true
	}

	entry.count++
	return entry.count <= l.cfg.MaxRequests
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// ClientKey derives the rate-limit key for a request: the first hop of
// X-Forwarded-For, else the peer address, else the shared unknown bucket.
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return UnknownClient
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		if host == "" {
			return UnknownClient
		}
		return host
	}
	return addr
}

// Middleware returns a Gin middleware that rate limits by client key.
func (l *Limiter) Middleware() gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(l.cfg.Window.Round(time.Second) / time.Second))

	return func(c *gin.Context) {
		if !l.Allow(ClientKey(c.Request)) {
			metrics.RateLimitRejectionsTotal.Inc()
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate_limited",
			})
			return
		}

		c.Next()
	}
}
