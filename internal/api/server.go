package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/credbud/internal/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Dependencies, opts Options) *Server {
	handler := NewHandler(deps, opts)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware(cfg.CORSOrigins)) // CORS for the web client
	router.Use(RecoverMiddleware)               // Recover from panics
	router.Use(TracingMiddleware)               // OpenTelemetry tracing
	router.Use(LoggingMiddleware)               // Request logging and metrics
	router.Use(middleware.RealIP)               // Extract real IP
	router.Use(middleware.Compress(5))          // Gzip compression

	// Public endpoints
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/banks", func(r chi.Router) {
		r.Get("/", handler.ListBanks)
		r.Get("/top", handler.TopBanks)
		r.Get("/trusted", handler.TrustedBanks)
		r.Get("/{id}", handler.GetBank)
	})

	// API routes (user required)
	router.Route("/api", func(r chi.Router) {
		r.Use(UserMiddleware)

		// Profile
		r.Post("/users", handler.RegisterUser)
		r.Get("/users/me", handler.GetCurrentUser)

		// Loan applications
		r.Post("/loans", handler.ApplyForLoan)
		r.Get("/loans", handler.ListLoans)
		r.Get("/loans/stats", handler.LoanStats)
		r.Get("/loans/{id}", handler.GetLoan)
		r.Put("/loans/{id}", handler.UpdateLoan)
		r.Delete("/loans/{id}", handler.DeleteLoan)
		r.Post("/score", handler.ScorePreview)

		// Statements and behaviour
		r.Post("/statements", handler.UploadStatement)
		r.Get("/statements", handler.ListStatements)
		r.Get("/statements/{id}", handler.GetStatement)
		r.Get("/behavior", handler.GetBehavior)

		// Policy management
		r.Get("/policies", handler.ListPolicies)
		r.Post("/policies", handler.CreatePolicy)
		r.Post("/policies/reload", handler.ReloadPolicies)
		r.Delete("/policies/{id}", handler.DeletePolicy)
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
