// Package pinion assembles the x402 paying client for embedding in agent
// runtimes, CLIs and services.
package pinion

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/pinionos/x402-client/internal/circuitbreaker"
	"github.com/pinionos/x402-client/internal/config"
	"github.com/pinionos/x402-client/internal/httpserver"
	"github.com/pinionos/x402-client/internal/httputil"
	"github.com/pinionos/x402-client/internal/lifecycle"
	"github.com/pinionos/x402-client/internal/logger"
	"github.com/pinionos/x402-client/internal/metrics"
	"github.com/pinionos/x402-client/internal/observability"
	"github.com/pinionos/x402-client/internal/service"
)

// Version is reported in logs and the User-Agent.
const Version = "0.1.0"

// App wires the payment session with its logging, metrics and breakers.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Service  *service.Service
	Metrics  *metrics.Metrics
	Registry *observability.Registry
	Breakers *circuitbreaker.Manager

	gatherer        prometheus.Gatherer
	runtime         config.Lookup
	resourceManager *lifecycle.Manager
}

// Option configures App construction.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
	httpClient *http.Client
	logOutput  io.Writer
	runtime    config.Lookup
}

// WithPrometheus registers metrics on reg and serves them from gatherer.
func WithPrometheus(reg prometheus.Registerer, gatherer prometheus.Gatherer) Option {
	return func(o *options) {
		o.registerer = reg
		o.gatherer = gatherer
	}
}

// WithHTTPClient replaces the pooled outbound client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithLogOutput redirects logs, which default to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) {
		o.logOutput = w
	}
}

// WithRuntimeSettings gives host settings precedence over the environment
// when the session is resolved.
func WithRuntimeSettings(lookup config.Lookup) Option {
	return func(o *options) {
		o.runtime = lookup
	}
}

// NewApp assembles the components. The session is not configured until Start.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("pinion: config required")
	}

	optState := options{}
	for _, opt := range opts {
		opt(&optState)
	}
	if optState.registerer == nil {
		optState.registerer = prometheus.DefaultRegisterer
		optState.gatherer = prometheus.DefaultGatherer
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "pinion",
		Version:     Version,
		Environment: cfg.Logging.Environment,
		Output:      optState.logOutput,
	})

	app := &App{
		Config:          cfg,
		Logger:          appLogger,
		Metrics:         metrics.New(optState.registerer),
		Registry:        observability.NewRegistry(appLogger),
		gatherer:        optState.gatherer,
		runtime:         optState.runtime,
		resourceManager: lifecycle.NewManager(appLogger),
	}
	app.Registry.Register(observability.NewPrometheusHook(app.Metrics))
	app.Registry.Register(observability.NewLoggingHook(appLogger))

	app.Breakers = circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker,
		circuitbreaker.WithStateChange(func(svc circuitbreaker.ServiceType, from, to string) {
			app.Registry.EmitBreakerStateChange(context.Background(), observability.BreakerStateEvent{
				Timestamp: time.Now(),
				Service:   string(svc),
				From:      from,
				To:        to,
			})
		}),
	)

	hc := optState.httpClient
	if hc == nil {
		userAgent := cfg.HTTP.UserAgent
		if userAgent == "" {
			userAgent = "pinion-x402/" + Version
		}
		hc = httputil.NewClient(cfg.HTTP.Timeout.Duration, userAgent)
	}

	app.Service = service.New(service.Options{
		HTTPClient:          hc,
		Logger:              appLogger,
		Registry:            app.Registry,
		Breakers:            app.Breakers,
		PayServiceMaxAmount: cfg.Pinion.PayServiceMaxAmount,
	})
	app.resourceManager.Register("http-client", app.Service)

	return app, nil
}

// Start resolves settings and configures the session when a key is present.
func (a *App) Start() error {
	return a.Service.Start(a.Config, a.runtime)
}

// StatusServer builds the operator HTTP server and closes it with the app.
func (a *App) StatusServer() *httpserver.Server {
	srv := httpserver.New(a.Config, httpserver.Deps{
		Session:  a.Service,
		Breakers: a.Breakers,
		Metrics:  a.Metrics,
		Gatherer: a.gatherer,
		Logger:   a.Logger,
	})
	a.resourceManager.RegisterShutdown("status-server", srv.Shutdown)
	return srv
}

// Close releases resources owned by the app.
func (a *App) Close(ctx context.Context) error {
	return a.resourceManager.Close(ctx)
}

// Config is an exported alias of the internal configuration struct for embedding use.
type Config = config.Config

// LoadConfig wraps the internal loader for consumers embedding the client.
func LoadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}
