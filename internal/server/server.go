package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/forts-trader/internal/modules/advisor"
	"github.com/aristath/forts-trader/internal/modules/stats"
)

// requestTimeout bounds a single request. Must stay above the advice
// long-poll window or polls are cut short.
const requestTimeout = 150 * time.Second

// Config holds server configuration
type Config struct {
	Port     int
	Log      zerolog.Logger
	Advisors *advisor.Handlers
	Reports  *stats.ReportService
}

// Server represents the HTTP server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	reports *stats.ReportService
	log     zerolog.Logger
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		reports: cfg.Reports,
		log:     cfg.Log.With().Str("component", "server").Logger(),
	}

	s.setupMiddleware()
	s.setupRoutes(cfg.Advisors)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(requestTimeout))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(advisors *advisor.Handlers) {
	s.router.Get("/health", s.handleHealth)

	advisors.Register(s.router)

	if s.reports != nil {
		s.router.Get("/api/report", s.handleReport)
		s.router.Get("/api/monitoring", s.handleMonitoring)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReport runs the full glued-contract backtest. Slow; the history data
// must already be synced.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.Report()
	if err != nil {
		s.log.Error().Err(err).Msg("Report failed")
		http.Error(w, "Report failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(report))
}

// handleMonitoring refreshes live contracts and reports current positions.
func (s *Server) handleMonitoring(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.Monitoring()
	if err != nil {
		s.log.Error().Err(err).Msg("Monitoring failed")
		http.Error(w, "Monitoring failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(report))
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
