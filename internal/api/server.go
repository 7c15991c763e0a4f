// internal/api/server.go

// Package api is the HTTP surface over the workflow engine. Handlers stay
// thin: decode, delegate, render; all business rules live in the inner
// packages.
package api

import (
	"context"
	"net/http"

	"eservices-portal/internal/audit"
	"eservices-portal/internal/common/auth"
	"eservices-portal/internal/common/logger"
	"eservices-portal/internal/common/observability"
	"eservices-portal/internal/models"
	"eservices-portal/internal/notify"
	"eservices-portal/internal/services"
	"eservices-portal/internal/stats"
	"eservices-portal/internal/store"
	"eservices-portal/internal/workflow"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Assigner picks a reviewing officer for a new application. Assignment is
// best-effort at creation time; a nil officer with nil error means no one was
// available and the application stays in the submission queue.
type Assigner interface {
	Assign(ctx context.Context, applicationID, serviceCategory string) (*models.Officer, error)
	Reassign(ctx context.Context, applicationID, officerID, actorID string) error
}

type Server struct {
	router     chi.Router
	workflow   *workflow.Engine
	assigner   Assigner
	trail      *audit.Trail
	dispatcher *notify.Dispatcher
	aggregator *stats.Aggregator
	catalog    *services.Catalog
	store      store.Store
	verifier   *auth.Verifier
	logger     logger.Logger
}

type Deps struct {
	Workflow   *workflow.Engine
	Assigner   Assigner
	Trail      *audit.Trail
	Dispatcher *notify.Dispatcher
	Aggregator *stats.Aggregator
	Catalog    *services.Catalog
	Store      store.Store
	Verifier   *auth.Verifier
	Obs        *observability.Observability
	Logger     logger.Logger
}

func NewServer(d Deps) *Server {
	s := &Server{
		workflow:   d.Workflow,
		assigner:   d.Assigner,
		trail:      d.Trail,
		dispatcher: d.Dispatcher,
		aggregator: d.Aggregator,
		catalog:    d.Catalog,
		store:      d.Store,
		verifier:   d.Verifier,
		logger:     d.Logger.WithFields(map[string]interface{}{"component": "api"}),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(instrument(s.logger, d.Obs))
	if s.verifier != nil {
		r.Use(s.verifier.Middleware)
	}

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/applications", func(r chi.Router) {
		r.Post("/", s.handleCreateApplication)
		r.Get("/", s.handleListApplications)
		r.Get("/{id}", s.handleGetApplication)
		r.Patch("/{id}/status", s.handleTransition)
		r.Patch("/{id}/assignee", s.handleReassign)
		r.Post("/{id}/comments", s.handleAddComment)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", s.handleListNotifications)
		r.Patch("/{id}/read", s.handleMarkRead)
	})

	r.Get("/audit", s.handleListAudit)
	r.Get("/stats", s.handleStats)
	r.Post("/stats/rebuild", s.handleStatsRebuild)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
