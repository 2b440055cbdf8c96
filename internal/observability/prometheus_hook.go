package observability

import (
	"context"
	"math/big"

	"github.com/pinionos/x402-client/internal/errors"
	"github.com/pinionos/x402-client/internal/metrics"
	"github.com/pinionos/x402-client/pkg/x402"
)

// PrometheusHook adapts the Prometheus metrics to the hook interfaces.
type PrometheusHook struct {
	metrics *metrics.Metrics
}

// NewPrometheusHook creates a hook that emits events to Prometheus metrics.
func NewPrometheusHook(m *metrics.Metrics) *PrometheusHook {
	return &PrometheusHook{metrics: m}
}

func (h *PrometheusHook) Name() string {
	return "prometheus"
}

func (h *PrometheusHook) OnExchange(ctx context.Context, event x402.Exchange) {
	h.metrics.ObserveRequest(event.Operation, string(event.Outcome), event.Duration)

	if event.Err != nil {
		h.metrics.ObserveError(event.Operation, string(errors.CodeOf(event.Err)))
		return
	}
	if event.Outcome == x402.OutcomePaid {
		amount, _ := new(big.Float).SetString(event.PaidAmount)
		var atomic float64
		if amount != nil {
			atomic, _ = amount.Float64()
		}
		h.metrics.ObservePayment(event.Network, event.Scheme, event.Asset, atomic)
	}
}

func (h *PrometheusHook) OnBreakerStateChange(ctx context.Context, event BreakerStateEvent) {
	h.metrics.SetCircuitBreakerState(event.Service, breakerStateValue(event.To))
}

func (h *PrometheusHook) OnSpendChanged(ctx context.Context, event SpendChangedEvent) {
	h.metrics.SetSessionSpend(event.SpentAtomic, event.CallCount)
}

func breakerStateValue(state string) int {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
