// Package api assembles the HTTP server: routing, middleware order and
// lifecycle.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lendflow/backend/internal/config"
	"github.com/lendflow/backend/internal/copilot"
	"github.com/lendflow/backend/internal/database"
	"github.com/lendflow/backend/internal/events"
	"github.com/lendflow/backend/internal/handlers"
	"github.com/lendflow/backend/internal/ingest"
	"github.com/lendflow/backend/internal/middleware"
	"github.com/lendflow/backend/internal/monitoring"
	"github.com/lendflow/backend/internal/storage"
)

// HealthChecker is the optional extra probe surface (Redis).
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// Deps carries everything the server wires into routes.
type Deps struct {
	Config   *config.Config
	Store    *database.Store
	Blobs    storage.BlobStore
	Ingester *ingest.Ingester
	Copilot  *copilot.Copilot
	Bus      *events.Bus
	Metrics  *monitoring.Metrics
	Limiter  middleware.Limiter // nil disables HTTP rate limiting
	Redis    HealthChecker      // nil when running without Redis
}

// Server is the HTTP front of the service.
type Server struct {
	deps   Deps
	srv    *http.Server
	logger *log.Logger
}

func NewServer(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		logger: log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
	s.srv = &http.Server{
		Addr:         ":" + deps.Config.Server.Port,
		Handler:      s.router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()

	// Unauthenticated surface.
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	auth := middleware.NewAuth(s.deps.Config.Server.APIKeys)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(func(next http.Handler) http.Handler {
		return middleware.Metrics(s.deps.Metrics, next)
	})
	v1.Use(auth.Middleware)
	v1.Use(middleware.Logging)
	if s.deps.Limiter != nil {
		v1.Use(func(next http.Handler) http.Handler {
			return middleware.RateLimitMiddleware(s.deps.Limiter, next)
		})
	}

	cases := handlers.NewCaseHandlers(s.deps.Store)
	docs := handlers.NewDocumentHandlers(s.deps.Store, s.deps.Ingester,
		s.deps.Metrics, s.deps.Config.Upload.MaxCaseBytes)
	extraction := handlers.NewExtractionHandlers(s.deps.Store)
	eligibility := handlers.NewEligibilityHandlers(s.deps.Store)
	reports := handlers.NewReportHandlers(s.deps.Store, s.deps.Blobs)
	cp := handlers.NewCopilotHandlers(s.deps.Store, s.deps.Copilot, s.deps.Metrics)
	jobsH := handlers.NewJobHandlers(s.deps.Store)
	lenders := handlers.NewLenderHandlers(s.deps.Store)
	progress := handlers.NewProgressSocket(s.deps.Store, s.deps.Bus)

	v1.HandleFunc("/cases", cases.Create).Methods(http.MethodPost)
	v1.HandleFunc("/cases", cases.List).Methods(http.MethodGet)
	v1.HandleFunc("/cases/{case_id}", cases.Get).Methods(http.MethodGet)
	v1.HandleFunc("/cases/{case_id}", cases.Delete).Methods(http.MethodDelete)
	v1.HandleFunc("/cases/{case_id}/overrides", cases.SetOverrides).Methods(http.MethodPatch)

	v1.HandleFunc("/cases/{case_id}/documents", docs.Upload).Methods(http.MethodPost)
	v1.HandleFunc("/cases/{case_id}/documents", docs.List).Methods(http.MethodGet)
	v1.HandleFunc("/cases/{case_id}/checklist", docs.Checklist).Methods(http.MethodGet)

	v1.HandleFunc("/cases/{case_id}/extract", extraction.Run).Methods(http.MethodPost)
	v1.HandleFunc("/cases/{case_id}/fields", extraction.Fields).Methods(http.MethodGet)
	v1.HandleFunc("/cases/{case_id}/features", extraction.Features).Methods(http.MethodGet)

	v1.HandleFunc("/cases/{case_id}/score", eligibility.Score).Methods(http.MethodPost)
	v1.HandleFunc("/cases/{case_id}/eligibility", eligibility.Results).Methods(http.MethodGet)

	v1.HandleFunc("/cases/{case_id}/report", reports.Generate).Methods(http.MethodPost)
	v1.HandleFunc("/cases/{case_id}/report", reports.Get).Methods(http.MethodGet)
	v1.HandleFunc("/cases/{case_id}/report/pdf", reports.PDF).Methods(http.MethodGet)
	v1.HandleFunc("/cases/{case_id}/report/whatsapp", reports.WhatsApp).Methods(http.MethodGet)

	v1.HandleFunc("/cases/{case_id}/progress", jobsH.Progress).Methods(http.MethodGet)
	v1.HandleFunc("/cases/{case_id}/progress/ws", progress.Serve).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{job_id}/cancel", jobsH.Cancel).Methods(http.MethodPost)

	v1.HandleFunc("/copilot/ask", cp.Ask).Methods(http.MethodPost)
	v1.HandleFunc("/copilot/history", cp.History).Methods(http.MethodGet)

	v1.HandleFunc("/lenders", lenders.List).Methods(http.MethodGet)

	return r
}

// handleHealth reports dependency health. Degraded Redis does not fail
// the probe; a dead database does.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := map[string]interface{}{
		"status":   "ok",
		"database": "ok",
	}
	code := http.StatusOK

	if err := s.deps.Store.Ping(ctx); err != nil {
		status["status"] = "degraded"
		status["database"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if s.deps.Redis != nil {
		if s.deps.Redis.Healthy(ctx) {
			status["redis"] = "ok"
		} else {
			status["redis"] = "unreachable"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}

// Start serves until ctx is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.logger.Printf("shutting down")
	return s.srv.Shutdown(shutdownCtx)
}
