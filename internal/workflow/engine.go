// internal/workflow/engine.go

// Package workflow implements the application-lifecycle state machine. The
// record-store mutation is the single source of truth; audit, notification and
// statistics run as post-commit hooks that can never fail the primary
// operation.
package workflow

import (
	"context"
	"fmt"
	"time"

	"eservices-portal/internal/common/errors"
	"eservices-portal/internal/common/logger"
	"eservices-portal/internal/common/metrics"
	"eservices-portal/internal/models"
	"eservices-portal/internal/services"
	"eservices-portal/internal/store"

	"github.com/google/uuid"
)

// Event describes one committed lifecycle change, handed to every hook.
// FromStatus is empty when the application was just created.
type Event struct {
	Application *models.Application
	FromStatus  string
	ToStatus    string
	ActorID     string
	Remarks     string
	Timestamp   time.Time
}

// Hook runs after the primary mutation has committed. Hook errors are logged
// and counted, never propagated.
type Hook struct {
	Name string
	Run  func(ctx context.Context, ev Event) error
}

// Result reports the outcome of a successful transition.
type Result struct {
	ApplicationID string    `json:"applicationId"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

type Engine struct {
	store   store.Store
	catalog *services.Catalog
	hooks   []Hook
	logger  logger.Logger
}

func NewEngine(st store.Store, catalog *services.Catalog, log logger.Logger, hooks ...Hook) *Engine {
	return &Engine{
		store:   st,
		catalog: catalog,
		hooks:   hooks,
		logger:  log.WithFields(map[string]interface{}{"component": "workflow"}),
	}
}

// Create builds a new application from the service catalog entry and persists
// it in status submitted, with the history seeded by a matching entry.
func (e *Engine) Create(ctx context.Context, applicantID, serviceType string, formData map[string]interface{}, documents []string) (*models.Application, error) {
	if applicantID == "" {
		return nil, errors.NewValidationError("applicantId is required")
	}
	svc, ok := e.catalog.Lookup(serviceType)
	if !ok {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown service type: %s", serviceType))
	}
	if err := e.catalog.ValidateForm(serviceType, formData); err != nil {
		return nil, errors.NewValidationError(err.Error())
	}

	now := time.Now().UTC()
	app := &models.Application{
		ID:          uuid.New().String(),
		ServiceType: serviceType,
		ApplicantID: applicantID,
		Status:      models.StatusSubmitted,
		StatusHistory: []models.StatusHistoryEntry{{
			Status:    models.StatusSubmitted,
			Timestamp: now,
			Actor:     applicantID,
		}},
		Fee:                  svc.Fee,
		Priority:             svc.DefaultPriority,
		ExpectedCompletionAt: now.AddDate(0, 0, svc.ProcessingDays),
		FormData:             formData,
		Documents:            documents,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := e.store.Create(ctx, store.CollectionApplications, app); err != nil {
		return nil, errors.NewStorageError("create application", err)
	}

	metrics.TransitionsTotal.WithLabelValues(serviceType, models.StatusSubmitted).Inc()
	e.logger.Info("application created", map[string]interface{}{
		"applicationId": app.ID,
		"serviceType":   serviceType,
		"applicantId":   applicantID,
	})

	e.runHooks(ctx, Event{
		Application: app,
		ToStatus:    models.StatusSubmitted,
		ActorID:     applicantID,
		Timestamp:   now,
	})
	return app, nil
}

// Get loads one application.
func (e *Engine) Get(ctx context.Context, applicationID string) (*models.Application, error) {
	var app models.Application
	if err := e.store.Get(ctx, store.CollectionApplications, applicationID, &app); err != nil {
		if err == store.ErrNotFound {
			return nil, errors.NewNotFoundError("application", applicationID)
		}
		return nil, errors.NewStorageError("get application", err)
	}
	return &app, nil
}

// Transition moves an application to newStatus. All checks run before any
// mutation; on success the status field and the history entry are written in
// one atomic store update, then the post-commit hooks fire.
//
// Re-invoking with the application's current status is a success no-op so a
// caller retrying after a timeout cannot double-append history.
func (e *Engine) Transition(ctx context.Context, applicationID, newStatus, actorID, remarks string) (*Result, error) {
	app, err := e.Get(ctx, applicationID)
	if err != nil {
		metrics.TransitionsRejected.WithLabelValues(string(errors.CodeOf(err))).Inc()
		return nil, err
	}

	if app.Status == newStatus {
		return &Result{ApplicationID: app.ID, Status: app.Status, Timestamp: app.UpdatedAt}, nil
	}

	if !CanTransition(app.Status, newStatus) {
		metrics.TransitionsRejected.WithLabelValues(string(errors.ErrCodeInvalidTransition)).Inc()
		return nil, errors.NewInvalidTransitionError(app.Status, newStatus)
	}

	if newStatus == models.StatusRejected && remarks == "" {
		metrics.TransitionsRejected.WithLabelValues(string(errors.ErrCodeValidationFailed)).Inc()
		return nil, errors.NewValidationError("remarks are required when rejecting an application")
	}

	now := time.Now().UTC()
	entry := models.StatusHistoryEntry{
		Status:    newStatus,
		Timestamp: now,
		Actor:     actorID,
		Remarks:   remarks,
	}
	// The write is conditional on the status just read, so a concurrent
	// transition of the same application cannot double-append history.
	err = e.store.UpdateAndAppend(ctx, store.CollectionApplications, applicationID,
		map[string]interface{}{"status": app.Status},
		map[string]interface{}{"status": newStatus}, "statusHistory", entry)
	if err == store.ErrStale {
		current, getErr := e.Get(ctx, applicationID)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == newStatus {
			// a concurrent retry already committed this transition
			return &Result{ApplicationID: current.ID, Status: current.Status, Timestamp: current.UpdatedAt}, nil
		}
		metrics.TransitionsRejected.WithLabelValues(string(errors.ErrCodeInvalidTransition)).Inc()
		return nil, errors.NewInvalidTransitionError(current.Status, newStatus)
	}
	if err != nil {
		if err == store.ErrNotFound {
			return nil, errors.NewNotFoundError("application", applicationID)
		}
		metrics.TransitionsRejected.WithLabelValues(string(errors.ErrCodeStorageFailed)).Inc()
		return nil, errors.NewStorageError("update application status", err)
	}

	metrics.TransitionsTotal.WithLabelValues(app.ServiceType, newStatus).Inc()
	e.logger.Info("status transition", map[string]interface{}{
		"applicationId": applicationID,
		"from":          app.Status,
		"to":            newStatus,
		"actor":         actorID,
	})

	fromStatus := app.Status
	app.Status = newStatus
	app.StatusHistory = append(app.StatusHistory, entry)
	app.UpdatedAt = now

	e.runHooks(ctx, Event{
		Application: app,
		FromStatus:  fromStatus,
		ToStatus:    newStatus,
		ActorID:     actorID,
		Remarks:     remarks,
		Timestamp:   now,
	})

	return &Result{ApplicationID: applicationID, Status: newStatus, Timestamp: now}, nil
}

// runHooks executes every hook in order, isolating each one: an error or panic
// in one hook is logged and counted without affecting the rest.
func (e *Engine) runHooks(ctx context.Context, ev Event) {
	for _, h := range e.hooks {
		e.runHook(ctx, h, ev)
	}
}

func (e *Engine) runHook(ctx context.Context, h Hook, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SideEffectFailures.WithLabelValues(h.Name).Inc()
			e.logger.Error("post-commit hook panicked", map[string]interface{}{
				"hook":          h.Name,
				"panic":         fmt.Sprintf("%v", r),
				"applicationId": ev.Application.ID,
			})
		}
	}()

	if err := h.Run(ctx, ev); err != nil {
		metrics.SideEffectFailures.WithLabelValues(h.Name).Inc()
		sideErr := errors.NewSideEffectError(h.Name, err)
		e.logger.Error("post-commit hook failed", map[string]interface{}{
			"error":         sideErr,
			"hook":          h.Name,
			"applicationId": ev.Application.ID,
		})
	}
}
