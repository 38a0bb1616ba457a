package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-insurance/kestrel/internal/audit"
	"github.com/opensource-insurance/kestrel/internal/domain"
	"github.com/opensource-insurance/kestrel/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, service *audit.Service, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, service, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant resolved from header, defaulting for
	// single-tenant deployments)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Document auditing
		r.Post("/audit", handler.Audit)
		r.Post("/check", handler.Check)

		// Audit retrieval
		r.Get("/audits", handler.ListAudits)
		r.Get("/audits/{id}", handler.GetAudit)
		r.Get("/audits/{id}/report", handler.GetReport)

		// Negative list management
		r.Get("/rules", handler.ListNegativeRules)
		r.Get("/rules/{id}", handler.GetNegativeRule)
		r.Post("/rules", handler.CreateNegativeRule)
		r.Delete("/rules/{id}", handler.DeleteNegativeRule)
		r.Post("/rules/reload", handler.ReloadRules)

		// Product rule management
		r.Get("/product-rules", handler.ListProductRules)
		r.Post("/product-rules", handler.CreateProductRule)
		r.Post("/product-rules/reload", handler.ReloadProductRules)
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
