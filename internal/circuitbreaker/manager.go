package circuitbreaker

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/pinionos/x402-client/internal/config"
	"github.com/pinionos/x402-client/pkg/x402"
)

// ServiceType identifies different external services for circuit breaker isolation.
type ServiceType string

const (
	ServiceSkillAPI    ServiceType = "skill_api"
	ServicePaidService ServiceType = "paid_service"
)

// StateChangeFunc is notified of every breaker transition.
type StateChangeFunc func(service ServiceType, from, to string)

// Manager manages circuit breakers for different external services.
// Each service has its own breaker so a failing third-party x402 endpoint
// cannot trip calls to the skill API.
type Manager struct {
	breakers map[ServiceType]*gobreaker.CircuitBreaker
	config   Config
	logger   zerolog.Logger
	onChange StateChangeFunc
}

// Config holds circuit breaker configuration for all services.
type Config struct {
	// Global enable/disable toggle
	Enabled bool

	// Skill API circuit breaker config
	SkillAPI BreakerConfig

	// Arbitrary x402 service circuit breaker config
	PaidService BreakerConfig
}

// BreakerConfig configures a single circuit breaker.
type BreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed to pass through
	// when the circuit breaker is half-open.
	MaxRequests uint32

	// Interval is the cyclic period in closed state to clear the internal counts.
	// If 0, never clears.
	Interval time.Duration

	// Timeout is the period of the open state after which the state becomes half-open.
	Timeout time.Duration

	// Trip after ConsecutiveFailures, or once FailureRatio is reached over at
	// least MinRequests requests.
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger logs state transitions.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithStateChange registers a transition callback.
func WithStateChange(fn StateChangeFunc) Option {
	return func(m *Manager) {
		m.onChange = fn
	}
}

// NewManagerFromConfig creates a circuit breaker manager from application config.
func NewManagerFromConfig(cfg config.CircuitBreakerConfig, opts ...Option) *Manager {
	return NewManager(Config{
		Enabled:     cfg.Enabled,
		SkillAPI:    fromServiceConfig(cfg.SkillAPI),
		PaidService: fromServiceConfig(cfg.PaidService),
	}, opts...)
}

func fromServiceConfig(c config.BreakerServiceConfig) BreakerConfig {
	return BreakerConfig{
		MaxRequests:         c.MaxRequests,
		Interval:            c.Interval.Duration,
		Timeout:             c.Timeout.Duration,
		ConsecutiveFailures: c.ConsecutiveFailures,
		FailureRatio:        c.FailureRatio,
		MinRequests:         c.MinRequests,
	}
}

// NewManager creates a circuit breaker manager with the given configuration.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		breakers: make(map[ServiceType]*gobreaker.CircuitBreaker),
		config:   cfg,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if !cfg.Enabled {
		return m
	}

	m.breakers[ServiceSkillAPI] = gobreaker.NewCircuitBreaker(m.settings(ServiceSkillAPI, cfg.SkillAPI))
	m.breakers[ServicePaidService] = gobreaker.NewCircuitBreaker(m.settings(ServicePaidService, cfg.PaidService))

	return m
}

// Execute wraps a function call with circuit breaker protection.
// If circuit breaker is disabled or not configured for the service, executes directly.
func (m *Manager) Execute(service ServiceType, fn func() (interface{}, error)) (interface{}, error) {
	breaker, ok := m.breakers[service]
	if !m.config.Enabled || !ok {
		return fn()
	}
	return breaker.Execute(fn)
}

// Breaker returns an x402.Breaker bound to service.
func (m *Manager) Breaker(service ServiceType) x402.Breaker {
	return serviceBreaker{manager: m, service: service}
}

type serviceBreaker struct {
	manager *Manager
	service ServiceType
}

func (b serviceBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return b.manager.Execute(b.service, fn)
}

// State returns the current state of a circuit breaker.
// Returns "disabled" if circuit breakers are not enabled or service not found.
func (m *Manager) State(service ServiceType) string {
	if !m.config.Enabled {
		return "disabled"
	}

	breaker, ok := m.breakers[service]
	if !ok {
		return "not_configured"
	}

	return breaker.State().String()
}

// Counts returns the current counts for a circuit breaker.
func (m *Manager) Counts(service ServiceType) Counts {
	breaker, ok := m.breakers[service]
	if !m.config.Enabled || !ok {
		return Counts{}
	}

	c := breaker.Counts()
	return Counts{
		Requests:             c.Requests,
		TotalSuccesses:       c.TotalSuccesses,
		TotalFailures:        c.TotalFailures,
		ConsecutiveSuccesses: c.ConsecutiveSuccesses,
		ConsecutiveFailures:  c.ConsecutiveFailures,
	}
}

// Counts represents circuit breaker statistics.
type Counts struct {
	Requests             uint32 `json:"requests"`
	TotalSuccesses       uint32 `json:"totalSuccesses"`
	TotalFailures        uint32 `json:"totalFailures"`
	ConsecutiveSuccesses uint32 `json:"consecutiveSuccesses"`
	ConsecutiveFailures  uint32 `json:"consecutiveFailures"`
}

// settings converts our config to gobreaker.Settings.
func (m *Manager) settings(service ServiceType, cfg BreakerConfig) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        string(service),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if cfg.FailureRatio > 0 && cfg.MinRequests > 0 && counts.Requests >= cfg.MinRequests {
				failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
				if failureRate >= cfg.FailureRatio {
					return true
				}
			}
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			m.logger.Warn().
				Str("service", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit_breaker.state_changed")
			if m.onChange != nil {
				m.onChange(service, from.String(), to.String())
			}
		},
	}
}

// DefaultConfig returns sensible defaults for circuit breaker configuration.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		SkillAPI: BreakerConfig{
			MaxRequests:         3,
			Interval:            60 * time.Second,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
			FailureRatio:        0.5,
			MinRequests:         10,
		},
		PaidService: BreakerConfig{
			MaxRequests:         1,
			Interval:            60 * time.Second,
			Timeout:             60 * time.Second,
			ConsecutiveFailures: 3,
			FailureRatio:        0.6,
			MinRequests:         5,
		},
	}
}
