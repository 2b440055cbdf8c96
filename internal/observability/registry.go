package observability

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pinionos/x402-client/pkg/x402"
)

// Registry manages a collection of observability hooks.
// It safely dispatches events to all registered hooks with error handling.
// Registry implements x402.Observer so it can be handed to the client directly.
type Registry struct {
	exchangeHooks []ExchangeHook
	breakerHooks  []BreakerHook
	spendHooks    []SpendHook
	logger        zerolog.Logger
	mu            sync.RWMutex
}

// NewRegistry creates a new hook registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		logger: logger,
	}
}

// Register adds hook under every hook interface it implements.
func (r *Registry) Register(hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()

	registered := false
	if h, ok := hook.(ExchangeHook); ok {
		r.exchangeHooks = append(r.exchangeHooks, h)
		registered = true
	}
	if h, ok := hook.(BreakerHook); ok {
		r.breakerHooks = append(r.breakerHooks, h)
		registered = true
	}
	if h, ok := hook.(SpendHook); ok {
		r.spendHooks = append(r.spendHooks, h)
		registered = true
	}
	if !registered {
		r.logger.Warn().Str("hook", hook.Name()).Msg("observability.hook_ignored")
		return
	}
	r.logger.Debug().Str("hook", hook.Name()).Msg("observability.hook_registered")
}

// ObserveExchange dispatches the event to all exchange hooks.
func (r *Registry) ObserveExchange(ctx context.Context, event x402.Exchange) {
	r.mu.RLock()
	hooks := r.exchangeHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer r.recoverPanic("OnExchange", hook.Name())
			hook.OnExchange(ctx, event)
		}()
	}
}

// EmitBreakerStateChange dispatches the event to all breaker hooks.
func (r *Registry) EmitBreakerStateChange(ctx context.Context, event BreakerStateEvent) {
	r.mu.RLock()
	hooks := r.breakerHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer r.recoverPanic("OnBreakerStateChange", hook.Name())
			hook.OnBreakerStateChange(ctx, event)
		}()
	}
}

// EmitSpendChanged dispatches the event to all spend hooks.
func (r *Registry) EmitSpendChanged(ctx context.Context, event SpendChangedEvent) {
	r.mu.RLock()
	hooks := r.spendHooks
	r.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer r.recoverPanic("OnSpendChanged", hook.Name())
			hook.OnSpendChanged(ctx, event)
		}()
	}
}

// recoverPanic recovers from panics in hook implementations.
func (r *Registry) recoverPanic(method, hookName string) {
	if err := recover(); err != nil {
		r.logger.Error().
			Str("hook", hookName).
			Str("method", method).
			Interface("panic", err).
			Msg("observability.hook_panicked")
	}
}

var _ x402.Observer = (*Registry)(nil)
