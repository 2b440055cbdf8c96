package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names for the payment session.
const (
	EnvPrivateKey = "PINION_PRIVATE_KEY"
	EnvAPIKey     = "PINION_API_KEY"
	EnvAPIURL     = "PINION_API_URL"
	EnvNetwork    = "PINION_NETWORK"
	EnvMaxBudget  = "PINION_MAX_BUDGET"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
// All env vars use PINION_ prefix for namespace isolation.
func (c *Config) applyEnvOverrides() {
	// Session config
	setIfEnv(&c.Pinion.PrivateKey, EnvPrivateKey)
	setIfEnv(&c.Pinion.APIKey, EnvAPIKey)
	setIfEnv(&c.Pinion.APIURL, EnvAPIURL)
	setIfEnv(&c.Pinion.Network, EnvNetwork)
	setIfEnv(&c.Pinion.MaxBudget, EnvMaxBudget)
	setIfEnv(&c.Pinion.PayServiceMaxAmount, "PINION_PAY_SERVICE_MAX_AMOUNT")

	// HTTP client
	setDurationIfEnv(&c.HTTP.Timeout, "PINION_HTTP_TIMEOUT")
	setIfEnv(&c.HTTP.UserAgent, "PINION_HTTP_USER_AGENT")

	// Logging
	setIfEnv(&c.Logging.Level, "PINION_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "PINION_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "PINION_ENVIRONMENT")

	// Status server
	setIfEnv(&c.Server.Address, "PINION_SERVER_ADDRESS")
	setIfEnv(&c.Server.RoutePrefix, "PINION_ROUTE_PREFIX")
	setIfEnv(&c.Server.AdminAPIKey, "PINION_ADMIN_API_KEY")
	if v := os.Getenv("PINION_CORS_ALLOWED_ORIGINS"); v != "" {
		c.Server.CORSAllowedOrigins = splitList(v)
	}

	// Normalize route prefix: ensure it starts with / and doesn't end with /
	if c.Server.RoutePrefix != "" {
		c.Server.RoutePrefix = normalizeRoutePrefix(c.Server.RoutePrefix)
	}

	setBoolIfEnv(&c.RateLimit.GlobalEnabled, "PINION_RATE_LIMIT_ENABLED")
	if v := os.Getenv("PINION_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.GlobalLimit = n
		}
	}
	setDurationIfEnv(&c.RateLimit.GlobalWindow, "PINION_RATE_LIMIT_WINDOW")
	setBoolIfEnv(&c.RateLimit.PerIPEnabled, "PINION_RATE_LIMIT_PER_IP_ENABLED")
	if v := os.Getenv("PINION_RATE_LIMIT_PER_IP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RateLimit.PerIPLimit = n
		}
	}

	setBoolIfEnv(&c.CircuitBreaker.Enabled, "PINION_CIRCUIT_BREAKER_ENABLED")
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable.
// Uses time.ParseDuration to parse values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// normalizeRoutePrefix ensures the prefix starts with / and doesn't end with /.
// Examples: "api" -> "/api", "/api/" -> "/api", "pinion" -> "/pinion"
func normalizeRoutePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return prefix
}
