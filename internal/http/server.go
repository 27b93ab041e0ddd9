// Package http exposes the store over a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"finscope/internal/core"
	"finscope/internal/log"
	"finscope/internal/metrics"
	"finscope/internal/middleware/ratelimit"
	"finscope/internal/middleware/security"
	"finscope/internal/middleware/trace"
	"finscope/internal/services"
)

// TimeseriesService appends and queries observations.
type TimeseriesService interface {
	Ingest(ctx context.Context, payloads []core.PointPayload) (services.IngestResult, error)
	Query(ctx context.Context, metric, start, end string) (core.Series, error)
}

// TransactionService upserts transactions and summarizes spend.
type TransactionService interface {
	StoreBatch(ctx context.Context, payloads []map[string]any) (services.BatchResult, error)
	Summarize(ctx context.Context, windowDays int) (core.SpendSummary, error)
}

// HealthChecker reports whether the catalog is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Config holds server tuning
type Config struct {
	Addr               string
	DefaultSummaryDays int
	MaxBodyBytes       int64
	RateLimit          ratelimit.Config
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Addr:               ":8000",
		DefaultSummaryDays: core.DefaultWindowDays,
		MaxBodyBytes:       10 << 20,
		RateLimit:          ratelimit.DefaultConfig(),
	}
}

// Deps are the collaborators the handlers call into
type Deps struct {
	Timeseries   TimeseriesService
	Transactions TransactionService
	Health       HealthChecker
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Logger       *log.Logger
}

type Server struct {
	http.Server
	cfg          Config
	timeseries   TimeseriesService
	transactions TransactionService
	health       HealthChecker
	logger       *log.Logger
	rateLimiter  *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer builds the router and wraps it in an http.Server listening on cfg.Addr
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.DefaultSummaryDays <= 0 {
		cfg.DefaultSummaryDays = core.DefaultWindowDays
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:          cfg,
		timeseries:   deps.Timeseries,
		transactions: deps.Transactions,
		health:       deps.Health,
		logger:       logger.WithComponent(log.ComponentHTTP),
		rateLimiter:  ratelimit.NewLimiter(cfg.RateLimit),
	}

	tracer := trace.NewMiddleware(extractClientIP, logger, deps.Metrics)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(headers.Middleware)
	r.Use(tracer.Middleware)
	r.Use(log.Middleware(s.logger, trace.RequestIDFromRequest))
	r.Use(s.rateLimiter.Middleware(extractClientIP, func(w http.ResponseWriter, r *http.Request) {
		render.Render(w, r, errRateLimited)
	}))

	s.mountOps(r, gatherer)

	r.Route("/timeseries", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Post("/ingest", s.handleIngestPoints)
		r.Get("/query", s.handleQuerySeries)
	})
	r.Route("/bank", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Post("/transactions", s.handleStoreTransactions)
		r.Get("/summary", s.handleSummary)
	})

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// NewOpsServer serves only health and metrics endpoints, for processes
// without a public API such as the queue worker.
func NewOpsServer(addr string, health HealthChecker, gatherer prometheus.Gatherer, logger *log.Logger) *http.Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{health: health, logger: logger.WithComponent(log.ComponentHTTP)}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(log.Middleware(s.logger, nil))
	s.mountOps(r, gatherer)

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *Server) mountOps(r chi.Router, gatherer prometheus.Gatherer) {
	r.Get("/healthz", s.handleLiveness)
	r.Get("/readyz", s.handleHealth)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

// Shutdown stops background goroutines and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(s.rateLimiter.Stop)
	return s.Server.Shutdown(ctx)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]bool{"ok": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	render.JSON(w, r, map[string]bool{"ok": true})
}
