package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/pinionos/x402-client/internal/config"
	"github.com/pinionos/x402-client/internal/metrics"
)

// Config holds rate limiting configuration for the status server.
type Config struct {
	// Global rate limiting (across all callers)
	GlobalEnabled bool
	GlobalLimit   int           // requests per window
	GlobalWindow  time.Duration // time window

	// Per-IP rate limiting
	PerIPEnabled bool
	PerIPLimit   int
	PerIPWindow  time.Duration

	// Metrics collector (optional)
	Metrics *metrics.Metrics
}

// rateLimitResponse represents the JSON error response for rate limit exceeded.
type rateLimitResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// DefaultConfig returns the limits used when nothing is configured. The
// status server is a local operator surface, so they are modest.
func DefaultConfig() Config {
	return Config{
		GlobalEnabled: true,
		GlobalLimit:   300,
		GlobalWindow:  1 * time.Minute,

		PerIPEnabled: true,
		PerIPLimit:   60,
		PerIPWindow:  1 * time.Minute,
	}
}

// FromConfig converts application config.
func FromConfig(cfg config.RateLimitConfig, m *metrics.Metrics) Config {
	return Config{
		GlobalEnabled: cfg.GlobalEnabled,
		GlobalLimit:   cfg.GlobalLimit,
		GlobalWindow:  cfg.GlobalWindow.Duration,
		PerIPEnabled:  cfg.PerIPEnabled,
		PerIPLimit:    cfg.PerIPLimit,
		PerIPWindow:   cfg.PerIPWindow.Duration,
		Metrics:       m,
	}
}

// createRateLimitHandler creates the 429 handler shared by both limiters.
func createRateLimitHandler(limitType string, window time.Duration, metricsCollector *metrics.Metrics) func(http.ResponseWriter, *http.Request) {
	windowSeconds := int(window.Seconds())
	if windowSeconds < 1 {
		windowSeconds = 1
	}

	message := "Rate limit exceeded. Please try again later."
	if limitType == "per_ip" {
		message = "IP rate limit exceeded. Please try again later."
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if metricsCollector != nil {
			metricsCollector.ObserveRateLimit(limitType)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", fmt.Sprintf("%d", windowSeconds))
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(rateLimitResponse{
			Error:             "rate_limit_exceeded",
			Message:           message,
			RetryAfterSeconds: windowSeconds,
		})
	}
}

// GlobalLimiter creates a global rate limiter middleware.
func GlobalLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.GlobalEnabled {
		return passthrough
	}
	return httprate.Limit(
		cfg.GlobalLimit,
		cfg.GlobalWindow,
		httprate.WithKeyFuncs(func(*http.Request) (string, error) { return "global", nil }),
		httprate.WithLimitHandler(createRateLimitHandler("global", cfg.GlobalWindow, cfg.Metrics)),
	)
}

// IPLimiter creates a per-IP rate limiter middleware.
func IPLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerIPEnabled {
		return passthrough
	}
	return httprate.Limit(
		cfg.PerIPLimit,
		cfg.PerIPWindow,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(createRateLimitHandler("per_ip", cfg.PerIPWindow, cfg.Metrics)),
	)
}

func passthrough(next http.Handler) http.Handler {
	return next
}
