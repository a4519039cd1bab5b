package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	models "billtrack/database/models_pkg"
	"billtrack/logger"
	"billtrack/recurring"
	"billtrack/service"
)

// BillRunner is the bill service surface exposed over HTTP
type BillRunner interface {
	Regenerate(ctx context.Context, userID string, dryRun bool) (*service.RegenerateReport, error)
	Scan(ctx context.Context, userID string) (*service.ScanReport, error)
	ScanAll(ctx context.Context) (*service.ScanAllReport, error)
	ListBills(ctx context.Context, userID string) ([]recurring.DetectedBill, error)
	ListEvents(ctx context.Context, userID string, limit int) ([]models.BillEvent, error)
}

// HealthCheck reports whether one dependency is reachable
type HealthCheck func(ctx context.Context) error

// Server handles HTTP API requests
type Server struct {
	bills  BillRunner
	log    zerolog.Logger
	http   *http.Server
	checks map[string]HealthCheck
}

// NewServer creates a new API server instance
func NewServer(bills BillRunner, log zerolog.Logger) *Server {
	return &Server{
		bills:  bills,
		log:    log,
		checks: make(map[string]HealthCheck),
	}
}

// SetHealthCheck registers a dependency probed by GET /health
func (s *Server) SetHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/users/{id}/regenerate", s.handleRegenerate)
	mux.HandleFunc("POST /api/users/{id}/scan", s.handleScanUser)
	mux.HandleFunc("POST /api/scan", s.handleScanAll)
	mux.HandleFunc("GET /api/users/{id}/bills", s.handleGetBills)
	mux.HandleFunc("GET /api/users/{id}/events", s.handleGetEvents)

	mux.HandleFunc("GET /health", s.handleHealth)

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Start starts the HTTP server on the specified port and blocks until it
// stops. A graceful Shutdown makes Start return nil.
func (s *Server) Start(port int) error {
	serverAddr := fmt.Sprintf("0.0.0.0:%d", port)
	s.http = &http.Server{
		Addr:              serverAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info().Str("addr", serverAddr).Msg("🚀 API Server starting")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware tags every request with an id and stores the request
// logger in the context for the service layer
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLog := s.log.With().Str("request_id", uuid.NewString()).Logger()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r.WithContext(logger.WithContext(r.Context(), reqLog)))

		reqLog.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Handlers live in handlers_bills.go
