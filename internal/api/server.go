package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ledger"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/telemetry"
)

// Dependencies are the collaborators the HTTP layer serves.
type Dependencies struct {
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Ledger   *ledger.Service
	Analyzer Analyzer
	Policy   *rules.Policy

	// Jobs enables the async analysis endpoints when set.
	Jobs JobStore

	Metrics        *telemetry.Metrics
	MetricsHandler http.Handler
	MetricsPath    string

	RateLimit      domain.RateLimitConfig
	IdempotencyTTL time.Duration
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Dependencies, version string) *Server {
	handler := NewHandler(deps, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)                  // CORS for browser clients
	router.Use(RecoverMiddleware)               // Recover from panics
	router.Use(TracingMiddleware)               // OpenTelemetry tracing
	router.Use(LoggingMiddleware)               // Request logging
	router.Use(middleware.RealIP)               // Extract real IP
	router.Use(MetricsMiddleware(deps.Metrics)) // Route metrics
	router.Use(middleware.Compress(5))          // Gzip compression

	// Operational endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if deps.MetricsHandler != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.Handle(path, deps.MetricsHandler)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimitMiddleware(deps.Cache, deps.RateLimit))
		r.Use(IdempotencyMiddleware(deps.Cache, deps.IdempotencyTTL))

		// Sellers
		r.Post("/seller", handler.CreateSeller)
		r.Put("/seller", handler.UpdateSeller)
		r.Get("/seller", handler.ListSellers)
		r.Get("/seller/{id}", handler.GetSeller)
		r.Delete("/seller/{id}", handler.DeleteSeller)

		// Analysis
		r.Get("/seller/most-productive", handler.MostProductiveSeller)
		r.Get("/seller/below-threshold", handler.SellersBelowThreshold)
		r.Get("/seller/best-period", handler.BestPeriod)
		if deps.Jobs != nil && deps.Bus != nil {
			r.Post("/analysis", handler.SubmitAnalysis)
			r.Get("/analysis/{jobId}", handler.GetAnalysis)
		}

		// Transactions
		r.Post("/transaction", handler.RecordTransaction)
		r.Get("/transaction", handler.ListTransactions)
		r.Get("/transaction/{id}", handler.GetTransaction)

		// Admission policy
		if deps.Policy != nil {
			r.Get("/policy", handler.GetPolicy)
			r.Put("/policy", handler.ReloadPolicy)
		}
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
