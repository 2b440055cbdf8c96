package observability

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/pinionos/x402-client/pkg/x402"
)

// LoggingHook logs breaker transitions and failed exchanges with zerolog.
// Successful exchanges are already logged by the client itself.
type LoggingHook struct {
	logger zerolog.Logger
}

// NewLoggingHook creates a hook that logs events.
func NewLoggingHook(logger zerolog.Logger) *LoggingHook {
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) Name() string {
	return "logging"
}

func (h *LoggingHook) OnExchange(ctx context.Context, event x402.Exchange) {
	if event.Err == nil {
		return
	}
	h.logger.Warn().
		Err(event.Err).
		Str("operation", event.Operation).
		Str("url", event.URL).
		Dur("duration", event.Duration).
		Msg("observability.exchange_failed")
}

func (h *LoggingHook) OnBreakerStateChange(ctx context.Context, event BreakerStateEvent) {
	log := h.logger.Info()
	if event.To == "open" {
		log = h.logger.Warn()
	}
	log.Str("service", event.Service).
		Str("from", event.From).
		Str("to", event.To).
		Msg("circuit_breaker.state_changed")
}
