package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the payment client.
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorsTotal     *prometheus.CounterVec

	// Payment metrics
	PaymentsTotal      *prometheus.CounterVec
	PaymentAtomicTotal *prometheus.CounterVec

	// Session ledger
	SessionSpentAtomic prometheus.Gauge
	SessionCallCount   prometheus.Gauge

	// Circuit breakers
	CircuitBreakerState *prometheus.GaugeVec

	// Status server
	RateLimitHitsTotal *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinion_x402_requests_total",
				Help: "Total number of x402 client operations by outcome (direct, paid, bypass, failed)",
			},
			[]string{"operation", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pinion_x402_request_duration_seconds",
				Help:    "End-to-end operation time including the paid retry",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinion_x402_errors_total",
				Help: "Total number of failed operations by error code",
			},
			[]string{"operation", "code"},
		),
		PaymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinion_x402_payments_total",
				Help: "Total number of signed payments sent",
			},
			[]string{"network", "scheme"},
		),
		PaymentAtomicTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinion_x402_payment_atomic_total",
				Help: "Total authorized value in token atomic units",
			},
			[]string{"network", "asset"},
		),
		SessionSpentAtomic: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pinion_session_spent_atomic",
				Help: "Spend recorded by the session ledger in USDC atomic units",
			},
		),
		SessionCallCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pinion_session_paid_calls",
				Help: "Number of paid calls recorded by the session ledger",
			},
		),
		CircuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pinion_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"service"},
		),
		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pinion_rate_limit_hits_total",
				Help: "Total number of status server requests rejected by rate limiting",
			},
			[]string{"limit"},
		),
	}
}

// ObserveRequest records a finished operation.
func (m *Metrics) ObserveRequest(operation, outcome string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(operation, outcome).Inc()
	m.RequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveError records a failed operation by its error code.
func (m *Metrics) ObserveError(operation, code string) {
	m.ErrorsTotal.WithLabelValues(operation, code).Inc()
}

// ObservePayment records a payment that was sent.
func (m *Metrics) ObservePayment(network, scheme, asset string, atomic float64) {
	m.PaymentsTotal.WithLabelValues(network, scheme).Inc()
	m.PaymentAtomicTotal.WithLabelValues(network, asset).Add(atomic)
}

// SetSessionSpend mirrors the ledger totals.
func (m *Metrics) SetSessionSpend(spentAtomic float64, calls int) {
	m.SessionSpentAtomic.Set(spentAtomic)
	m.SessionCallCount.Set(float64(calls))
}

// SetCircuitBreakerState records a breaker transition.
func (m *Metrics) SetCircuitBreakerState(service string, state int) {
	m.CircuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// ObserveRateLimit records a rate limit hit for limitType ("global" or "per_ip").
func (m *Metrics) ObserveRateLimit(limitType string) {
	m.RateLimitHitsTotal.WithLabelValues(limitType).Inc()
}
