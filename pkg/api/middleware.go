package api

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/atomhq/hive/pkg/log"
	"github.com/atomhq/hive/pkg/metrics"
)

// RateLimitConfig bounds request rates per client IP.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

// DefaultRateLimitConfig allows 50 req/s with a burst of 100 per client.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 50,
		Burst:             100,
	}
}

// middleware applies authentication, rate limiting, and request
// accounting to every route.
type middleware struct {
	authToken string
	rlConfig  RateLimitConfig
	logger    zerolog.Logger

	limiters   map[string]*rate.Limiter
	limitersMu sync.Mutex
}

func newMiddleware(authToken string, rlConfig RateLimitConfig) *middleware {
	return &middleware{
		authToken: authToken,
		rlConfig:  rlConfig,
		logger:    log.WithComponent("api"),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the underlying writer so SSE streaming keeps working.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (m *middleware) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		clientIP := clientIP(r)

		if !m.allow(clientIP) {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			metrics.APIRequestsTotal.WithLabelValues(r.Method, "429").Inc()
			return
		}

		if !m.authorized(r) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			metrics.APIRequestsTotal.WithLabelValues(r.Method, "401").Inc()
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		duration := timer.Duration()
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.Method).Observe(duration.Seconds())

		m.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("client_ip", clientIP).
			Int("status", rec.status).
			Dur("duration", duration).
			Msg("request")
	})
}

// authorized checks the bearer token. Health and metrics endpoints stay
// open so probes and scrapers never need credentials. With no token
// configured, everything is open.
func (m *middleware) authorized(r *http.Request) bool {
	if m.authToken == "" {
		return true
	}
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(m.authToken)) == 1
}

// allow checks the per-client rate limiter, creating one on first sight.
func (m *middleware) allow(clientIP string) bool {
	if !m.rlConfig.Enabled {
		return true
	}

	m.limitersMu.Lock()
	limiter, exists := m.limiters[clientIP]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(m.rlConfig.RequestsPerSecond), m.rlConfig.Burst)
		m.limiters[clientIP] = limiter
	}
	// Crude bound on limiter map growth under IP churn
	if len(m.limiters) > 10000 {
		m.limiters = map[string]*rate.Limiter{clientIP: limiter}
	}
	m.limitersMu.Unlock()

	return limiter.Allow()
}

// clientIP extracts the caller's address, preferring X-Forwarded-For
// when a proxy sits in front of the server.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
