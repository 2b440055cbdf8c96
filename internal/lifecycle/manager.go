package lifecycle

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Manager closes the resources a long-running command opens (the status
// server, pooled HTTP connections, the observability registry) in reverse
// order of registration.
type Manager struct {
	mu        sync.Mutex
	logger    zerolog.Logger
	resources []resource
	closed    bool
}

type resource struct {
	name  string
	close func(context.Context) error
}

// NewManager creates a new resource lifecycle manager.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{logger: logger}
}

// Register adds a resource to be closed when the manager is closed.
func (m *Manager) Register(name string, closer io.Closer) {
	m.RegisterShutdown(name, func(context.Context) error { return closer.Close() })
}

// RegisterFunc wraps a cleanup function that ignores the shutdown context.
func (m *Manager) RegisterFunc(name string, fn func()) {
	m.RegisterShutdown(name, func(context.Context) error {
		fn()
		return nil
	})
}

// RegisterShutdown adds a context-aware cleanup, e.g. http.Server.Shutdown.
func (m *Manager) RegisterShutdown(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources = append(m.resources, resource{name: name, close: fn})
}

// Close runs every cleanup, last registered first, and joins their errors.
// A second call is a no-op.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for i := len(m.resources) - 1; i >= 0; i-- {
		res := m.resources[i]
		if err := res.close(ctx); err != nil {
			m.logger.Error().
				Err(err).
				Str("resource", res.name).
				Msg("lifecycle.close_resource_failed")
			errs = append(errs, err)
			continue
		}
		m.logger.Debug().Str("resource", res.name).Msg("lifecycle.resource_closed")
	}
	return errors.Join(errs...)
}
