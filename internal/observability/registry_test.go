package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	apierrors "github.com/pinionos/x402-client/internal/errors"
	"github.com/pinionos/x402-client/internal/metrics"
	"github.com/pinionos/x402-client/pkg/x402"
)

// Mock hook implementations for testing

type mockExchangeHook struct {
	mu          sync.Mutex
	events      []x402.Exchange
	shouldPanic bool
}

func (h *mockExchangeHook) Name() string { return "mock_exchange" }

func (h *mockExchangeHook) OnExchange(ctx context.Context, event x402.Exchange) {
	if h.shouldPanic {
		panic("intentional panic for testing")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
}

func (h *mockExchangeHook) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

type mockBreakerHook struct {
	events []BreakerStateEvent
}

func (h *mockBreakerHook) Name() string { return "mock_breaker" }

func (h *mockBreakerHook) OnBreakerStateChange(ctx context.Context, event BreakerStateEvent) {
	h.events = append(h.events, event)
}

type nameOnlyHook struct{}

func (nameOnlyHook) Name() string { return "name_only" }

func TestRegistry_DispatchesByInterface(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())
	exchange := &mockExchangeHook{}
	breaker := &mockBreakerHook{}
	registry.Register(exchange)
	registry.Register(breaker)
	registry.Register(nameOnlyHook{})

	ctx := context.Background()
	registry.ObserveExchange(ctx, x402.Exchange{Operation: "balance", Outcome: x402.OutcomeDirect})
	registry.ObserveExchange(ctx, x402.Exchange{Operation: "price", Outcome: x402.OutcomePaid})
	registry.EmitBreakerStateChange(ctx, BreakerStateEvent{Service: "skill_api", From: "closed", To: "open"})

	if exchange.count() != 2 {
		t.Errorf("expected 2 exchange events, got %d", exchange.count())
	}
	if len(breaker.events) != 1 || breaker.events[0].To != "open" {
		t.Errorf("unexpected breaker events %+v", breaker.events)
	}
}

func TestRegistry_PanicRecovery(t *testing.T) {
	var buf bytes.Buffer
	registry := NewRegistry(zerolog.New(&buf))

	panicky := &mockExchangeHook{shouldPanic: true}
	healthy := &mockExchangeHook{}
	registry.Register(panicky)
	registry.Register(healthy)

	registry.ObserveExchange(context.Background(), x402.Exchange{Operation: "chat"})

	if healthy.count() != 1 {
		t.Error("healthy hook should still receive the event after a panic")
	}
	if !strings.Contains(buf.String(), "observability.hook_panicked") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestRegistry_ConcurrentDispatch(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())
	hook := &mockExchangeHook{}
	registry.Register(hook)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.ObserveExchange(context.Background(), x402.Exchange{Operation: "tx"})
		}()
	}
	wg.Wait()

	if hook.count() != 20 {
		t.Errorf("expected 20 events, got %d", hook.count())
	}
}

func TestPrometheusHook(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	registry := NewRegistry(zerolog.Nop())
	registry.Register(NewPrometheusHook(m))

	ctx := context.Background()
	registry.ObserveExchange(ctx, x402.Exchange{
		Operation:  "balance",
		Outcome:    x402.OutcomePaid,
		PaidAmount: "10000",
		Network:    "base",
		Scheme:     "exact",
		Asset:      "0xUSDC",
		Duration:   200 * time.Millisecond,
	})
	registry.ObserveExchange(ctx, x402.Exchange{
		Operation:  "trade",
		Outcome:    x402.OutcomeFailed,
		PaidAmount: "0",
		Err:        x402.NewError(x402.KindBudgetExceeded, apierrors.ErrCodeSpendLimitReached, "", "", errors.New("limit")),
	})
	registry.EmitBreakerStateChange(ctx, BreakerStateEvent{Service: "skill_api", From: "closed", To: "open"})
	registry.EmitSpendChanged(ctx, SpendChangedEvent{SpentAtomic: 10000, CallCount: 1, Reason: "payment"})

	if got := promtest.ToFloat64(m.RequestsTotal.WithLabelValues("balance", "paid")); got != 1 {
		t.Errorf("paid requests = %.0f", got)
	}
	if got := promtest.ToFloat64(m.PaymentAtomicTotal.WithLabelValues("base", "0xUSDC")); got != 10000 {
		t.Errorf("paid atomic = %.0f", got)
	}
	if got := promtest.ToFloat64(m.ErrorsTotal.WithLabelValues("trade", "spend_limit_reached")); got != 1 {
		t.Errorf("errors = %.0f", got)
	}
	if got := promtest.ToFloat64(m.CircuitBreakerState.WithLabelValues("skill_api")); got != 2 {
		t.Errorf("breaker state = %.0f", got)
	}
	if got := promtest.ToFloat64(m.SessionSpentAtomic); got != 10000 {
		t.Errorf("session spent = %.0f", got)
	}
}

func TestLoggingHook(t *testing.T) {
	var buf bytes.Buffer
	registry := NewRegistry(zerolog.Nop())
	registry.Register(NewLoggingHook(zerolog.New(&buf)))

	registry.ObserveExchange(context.Background(), x402.Exchange{Operation: "price"})
	if buf.Len() != 0 {
		t.Errorf("successful exchange should not be logged: %s", buf.String())
	}

	registry.ObserveExchange(context.Background(), x402.Exchange{Operation: "price", Err: errors.New("boom")})
	registry.EmitBreakerStateChange(context.Background(), BreakerStateEvent{Service: "paid_service", From: "closed", To: "open"})

	out := buf.String()
	if !strings.Contains(out, "observability.exchange_failed") || !strings.Contains(out, "circuit_breaker.state_changed") {
		t.Errorf("unexpected log output: %s", out)
	}
}
