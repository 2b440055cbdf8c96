package observability

import (
	"context"
	"time"

	"github.com/pinionos/x402-client/pkg/x402"
)

// Hook is the base interface for all observability hooks.
// Implementations can emit events to DataDog, New Relic, OpenTelemetry, etc.
type Hook interface {
	// Name returns the hook's identifier for logging/debugging
	Name() string
}

// ExchangeHook receives one event per finished x402 client operation.
type ExchangeHook interface {
	Hook

	// OnExchange is called after the operation resolved, successfully or not.
	OnExchange(ctx context.Context, event x402.Exchange)
}

// BreakerHook receives circuit breaker transitions.
type BreakerHook interface {
	Hook

	// OnBreakerStateChange is called when a breaker changes state.
	OnBreakerStateChange(ctx context.Context, event BreakerStateEvent)
}

// SpendHook receives ledger snapshots after every paid call and operator reset.
type SpendHook interface {
	Hook

	// OnSpendChanged is called with the ledger totals after they change.
	OnSpendChanged(ctx context.Context, event SpendChangedEvent)
}

// BreakerStateEvent is emitted when a circuit breaker transitions.
type BreakerStateEvent struct {
	Timestamp time.Time
	Service   string // "skill_api" or "paid_service"
	From      string // "closed", "half-open", "open"
	To        string
}

// SpendChangedEvent carries the ledger totals after a change.
type SpendChangedEvent struct {
	Timestamp   time.Time
	SpentAtomic float64
	CallCount   int
	Reason      string // "payment" or "reset"
}
