package config

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/pinionos/x402-client/internal/money"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	// Apply defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Pinion.APIURL == "" {
		c.Pinion.APIURL = DefaultAPIURL
	}
	c.Pinion.APIURL = NormalizeAPIURL(c.Pinion.APIURL)
	if c.Pinion.Network == "" {
		c.Pinion.Network = DefaultNetwork
	}
	if c.Pinion.PayServiceMaxAmount == "" {
		c.Pinion.PayServiceMaxAmount = DefaultPayServiceMaxAmount
	}
	c.Pinion.PrivateKey = strings.TrimSpace(c.Pinion.PrivateKey)
	c.Pinion.APIKey = strings.TrimSpace(c.Pinion.APIKey)

	return c.validate()
}

// validate checks that configuration fields are set correctly. A missing
// private key is not an error: the session simply stays unconfigured.
func (c *Config) validate() error {
	var errs []string

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q must be json or console", c.Logging.Format))
	}

	if err := validateAPIURL(c.Pinion.APIURL); err != nil {
		errs = append(errs, fmt.Sprintf("pinion.api_url: %v", err))
	}
	if c.Pinion.MaxBudget != "" {
		if _, err := money.FromMajor(money.USDC, c.Pinion.MaxBudget); errors.Is(err, money.ErrNegativeAmount) {
			errs = append(errs, "pinion.max_budget cannot be negative")
		} else if err != nil {
			errs = append(errs, fmt.Sprintf("pinion.max_budget %q is not a plain decimal number within uint256", c.Pinion.MaxBudget))
		}
	}
	if v, ok := new(big.Int).SetString(c.Pinion.PayServiceMaxAmount, 10); !ok || v.Sign() <= 0 {
		errs = append(errs, fmt.Sprintf("pinion.pay_service_max_amount %q must be a positive integer of atomic units", c.Pinion.PayServiceMaxAmount))
	}

	if c.HTTP.Timeout.Duration <= 0 {
		errs = append(errs, "http.timeout must be positive")
	}
	if c.RateLimit.GlobalEnabled && c.RateLimit.GlobalLimit <= 0 {
		errs = append(errs, "rate_limit.global_limit must be positive when rate limiting is enabled")
	}
	if c.RateLimit.PerIPEnabled && c.RateLimit.PerIPLimit <= 0 {
		errs = append(errs, "rate_limit.per_ip_limit must be positive when per-IP limiting is enabled")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// NormalizeAPIURL trims whitespace and trailing slashes.
func NormalizeAPIURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

func validateAPIURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
