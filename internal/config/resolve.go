package config

import (
	"os"
	"strings"
)

// Lookup returns a setting by name, or "" when unset. Host runtimes that
// carry their own settings store (agent frameworks, CLIs) provide one.
type Lookup func(key string) string

// Session holds the resolved settings for one payment session.
type Session struct {
	PrivateKey string
	APIKey     string
	APIURL     string
	Network    string
	MaxBudget  string
}

// ResolveSetting applies the settings precedence: an explicit runtime value
// wins, then the process environment, then def.
func ResolveSetting(runtime Lookup, key, def string) string {
	if runtime != nil {
		if v := strings.TrimSpace(runtime(key)); v != "" {
			return v
		}
	}
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// ResolveSession resolves session settings against runtime, falling back to
// the loaded configuration.
func (c *Config) ResolveSession(runtime Lookup) Session {
	return Session{
		PrivateKey: ResolveSetting(runtime, EnvPrivateKey, c.Pinion.PrivateKey),
		APIKey:     ResolveSetting(runtime, EnvAPIKey, c.Pinion.APIKey),
		APIURL:     NormalizeAPIURL(ResolveSetting(runtime, EnvAPIURL, c.Pinion.APIURL)),
		Network:    ResolveSetting(runtime, EnvNetwork, c.Pinion.Network),
		MaxBudget:  ResolveSetting(runtime, EnvMaxBudget, c.Pinion.MaxBudget),
	}
}
