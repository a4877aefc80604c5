package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opensource-finance/fraudlens/internal/batch"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/metrics"
	"github.com/opensource-finance/fraudlens/internal/scoring"
	"github.com/opensource-finance/fraudlens/internal/session"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server. cache and bus may be nil.
func NewServer(cfg domain.ServerConfig, engine *scoring.Engine, sessions *session.Manager, processor *batch.Processor, cache domain.Cache, bus domain.EventBus, version string) *Server {
	handler := NewHandler(engine, sessions, processor, cache, bus, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(metrics.Middleware)
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))
	router.Use(BodyLimitMiddleware(cfg.MaxBodyBytes))

	// Health, metrics, and lookup endpoints (no session)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())
	router.Get("/rules", handler.ListRules)
	router.Get("/labels/{score}", handler.GetLabel)

	// Batch scoring is stateless
	router.Post("/batch", handler.ScoreBatch)

	// Interactive routes (session required)
	router.Group(func(r chi.Router) {
		r.Use(SessionMiddleware)

		r.Post("/score", handler.Score)
		r.Get("/history", handler.GetHistory)
		r.Get("/history/export", handler.ExportHistory)
		r.Delete("/history", handler.ResetHistory)
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
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.config.ReadTimeout) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
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
