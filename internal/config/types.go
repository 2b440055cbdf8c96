package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Logging        LoggingConfig        `yaml:"logging"`
	Pinion         PinionConfig         `yaml:"pinion"`
	HTTP           HTTPConfig           `yaml:"http"`
	Server         ServerConfig         `yaml:"server"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// PinionConfig holds the payment session settings.
type PinionConfig struct {
	PrivateKey string `yaml:"private_key"` // Hex secp256k1 key; prefer PINION_PRIVATE_KEY over the file
	APIKey     string `yaml:"api_key"`     // Optional pre-purchased key; enables bypass mode
	APIURL     string `yaml:"api_url"`     // Skill API base URL (default: https://pinionos.com/skill)
	Network    string `yaml:"network"`     // base or base-sepolia (default: base)
	MaxBudget  string `yaml:"max_budget"`  // Optional decimal USDC session budget, e.g. "5.00"

	// PayServiceMaxAmount is the default per-call ceiling, in atomic units,
	// for payments to arbitrary x402 URLs (default: 1000000, i.e. $1.00).
	PayServiceMaxAmount string `yaml:"pay_service_max_amount"`
}

// HTTPConfig configures the outbound HTTP client.
type HTTPConfig struct {
	Timeout   Duration `yaml:"timeout"`    // Per-request timeout (default: 30s)
	UserAgent string   `yaml:"user_agent"` // Sent on every outbound request
}

// ServerConfig holds the optional status server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	RoutePrefix        string   `yaml:"route_prefix"`          // Optional prefix for all routes (e.g., "/pinion")
	AdminAPIKey        string   `yaml:"admin_api_key"`         // Optional key protecting /metrics and /spend/reset
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`      // json, console (default: json)
	Environment string `yaml:"environment"` // production, staging, development
}

// RateLimitConfig holds the status server's rate limits.
type RateLimitConfig struct {
	GlobalEnabled bool     `yaml:"global_enabled"` // Enable global rate limiting
	GlobalLimit   int      `yaml:"global_limit"`   // Requests allowed per global window
	GlobalWindow  Duration `yaml:"global_window"`  // Time window for global limit
	PerIPEnabled  bool     `yaml:"per_ip_enabled"` // Enable per-IP rate limiting
	PerIPLimit    int      `yaml:"per_ip_limit"`   // Requests allowed per IP per window
	PerIPWindow   Duration `yaml:"per_ip_window"`  // Time window for per-IP limit
}

// CircuitBreakerConfig holds circuit breaker configuration for outbound calls.
type CircuitBreakerConfig struct {
	Enabled     bool                 `yaml:"enabled"`      // Enable circuit breakers (default: true)
	SkillAPI    BreakerServiceConfig `yaml:"skill_api"`    // Skill API circuit breaker
	PaidService BreakerServiceConfig `yaml:"paid_service"` // Arbitrary x402 service circuit breaker
}

// BreakerServiceConfig configures a circuit breaker for a specific external service.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`         // Max requests in half-open state (default: 3)
	Interval            Duration `yaml:"interval"`             // Stats reset interval in closed state (default: 60s)
	Timeout             Duration `yaml:"timeout"`              // Open state timeout before half-open (default: 30s)
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"` // Consecutive failures to trip (default: 5)
	FailureRatio        float64  `yaml:"failure_ratio"`        // Failure ratio to trip 0.0-1.0 (default: 0.5)
	MinRequests         uint32   `yaml:"min_requests"`         // Minimum requests before checking ratio (default: 10)
}
