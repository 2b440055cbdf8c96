package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pinionos/x402-client/internal/circuitbreaker"
	"github.com/pinionos/x402-client/internal/config"
	"github.com/pinionos/x402-client/internal/logger"
	"github.com/pinionos/x402-client/internal/metrics"
	"github.com/pinionos/x402-client/internal/ratelimit"
	"github.com/pinionos/x402-client/internal/service"
)

var (
	serverStartTime = time.Now()
)

// Session is the part of the service facade the status server drives.
type Session interface {
	Status() service.Status
	SetBudget(amount string) error
	ClearBudget()
	ResetSpend()
}

// Deps are the collaborators of the status server.
type Deps struct {
	Session  Session
	Breakers *circuitbreaker.Manager // optional
	Metrics  *metrics.Metrics        // optional, counts rate limit hits
	Gatherer prometheus.Gatherer     // defaults to prometheus.DefaultGatherer
	Logger   zerolog.Logger
}

// Server wires handlers, middleware, and dependencies.
type Server struct {
	httpServer *http.Server
}

type handlers struct {
	session  Session
	breakers *circuitbreaker.Manager
	logger   zerolog.Logger
}

// New builds the HTTP server with configured router.
func New(cfg *config.Config, deps Deps) *Server {
	router := chi.NewRouter()
	ConfigureRouter(router, cfg, deps)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}
}

func newHandlers(deps Deps) handlers {
	return handlers{
		session:  deps.Session,
		breakers: deps.Breakers,
		logger:   deps.Logger,
	}
}

// ConfigureRouter attaches the status routes to an existing router.
func ConfigureRouter(router chi.Router, cfg *config.Config, deps Deps) {
	if router == nil {
		return
	}
	handler := newHandlers(deps)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	router.Use(securityHeadersMiddleware)
	router.Use(logger.Middleware(deps.Logger))
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	limits := ratelimit.FromConfig(cfg.RateLimit, deps.Metrics)
	router.Use(ratelimit.GlobalLimiter(limits))
	router.Use(ratelimit.IPLimiter(limits))

	prefix := cfg.Server.RoutePrefix
	admin := adminAuth(cfg.Server.AdminAPIKey)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get(prefix+"/health", handler.health)
		r.Get(prefix+"/status", handler.status)
		r.With(admin).Handle(prefix+"/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Use(admin)
		r.Post(prefix+"/spend/reset", handler.resetSpend)
		r.Put(prefix+"/spend/limit", handler.setLimit)
		r.Delete(prefix+"/spend/limit", handler.clearLimit)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
