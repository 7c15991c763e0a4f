// internal/assignment/engine.go

// Package assignment picks a reviewing officer for freshly submitted
// applications from the relational officer directory.
package assignment

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"

	"eservices-portal/internal/common/errors"
	"eservices-portal/internal/common/logger"
	"eservices-portal/internal/common/metrics"
	"eservices-portal/internal/models"
	"eservices-portal/internal/notify"
	"eservices-portal/internal/store"
	"eservices-portal/internal/workflow"
)

// Notifier is the slice of the dispatcher the assignment engine needs.
type Notifier interface {
	Dispatch(ctx context.Context, in notify.Input)
}

// Auditor records assignment actions on the trail.
type Auditor interface {
	Record(ctx context.Context, action, actorID, resourceType, resourceID string, details map[string]interface{}, success bool) string
}

type Engine struct {
	db       *sql.DB
	store    store.Store
	workflow *workflow.Engine
	notifier Notifier
	auditor  Auditor
	logger   logger.Logger
}

func NewEngine(db *sql.DB, st store.Store, wf *workflow.Engine, n Notifier, a Auditor, log logger.Logger) *Engine {
	return &Engine{
		db:       db,
		store:    st,
		workflow: wf,
		notifier: n,
		auditor:  a,
		logger:   log.WithFields(map[string]interface{}{"component": "assignment"}),
	}
}

// eligibleOfficers returns the active officers handling the given category.
func (e *Engine) eligibleOfficers(ctx context.Context, category string) ([]models.Officer, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT id, name, email, phone FROM officers WHERE active = true AND category = $1`,
		category)
	if err != nil {
		return nil, fmt.Errorf("query officers: %w", err)
	}
	defer rows.Close()

	var officers []models.Officer
	for rows.Next() {
		o := models.Officer{Category: category, Active: true}
		if err := rows.Scan(&o.ID, &o.Name, &o.Email, &o.Phone); err != nil {
			return nil, fmt.Errorf("scan officer: %w", err)
		}
		officers = append(officers, o)
	}
	return officers, rows.Err()
}

// Assign picks a uniformly random active officer for the application's service
// category, records the assignment and moves the application to under review.
//
// An empty pool is not an error: the application stays submitted and
// unassigned, and (nil, nil) is returned so the caller can retry later.
func (e *Engine) Assign(ctx context.Context, applicationID, serviceCategory string) (*models.Officer, error) {
	// Validate the application before touching anything: a failed assignment
	// must not leave assignedTo mutated.
	var app models.Application
	if err := e.store.Get(ctx, store.CollectionApplications, applicationID, &app); err != nil {
		metrics.AssignmentsTotal.WithLabelValues("error").Inc()
		if err == store.ErrNotFound {
			return nil, errors.NewNotFoundError("application", applicationID)
		}
		return nil, errors.NewStorageError("get application", err)
	}
	if app.Status != models.StatusSubmitted {
		metrics.AssignmentsTotal.WithLabelValues("invalid_state").Inc()
		return nil, errors.NewInvalidTransitionError(app.Status, models.StatusUnderReview)
	}

	officers, err := e.eligibleOfficers(ctx, serviceCategory)
	if err != nil {
		metrics.AssignmentsTotal.WithLabelValues("error").Inc()
		return nil, errors.NewStorageError("list eligible officers", err)
	}
	if len(officers) == 0 {
		metrics.AssignmentsTotal.WithLabelValues("none_available").Inc()
		e.logger.Warn("no eligible officer", map[string]interface{}{
			"applicationId": applicationID,
			"category":      serviceCategory,
		})
		return nil, nil
	}

	// package-level Intn is internally locked, safe for concurrent requests
	officer := officers[rand.Intn(len(officers))]

	if err := e.store.UpdateFields(ctx, store.CollectionApplications, applicationID,
		map[string]interface{}{"assignedTo": officer.ID}); err != nil {
		metrics.AssignmentsTotal.WithLabelValues("error").Inc()
		if err == store.ErrNotFound {
			return nil, errors.NewNotFoundError("application", applicationID)
		}
		return nil, errors.NewStorageError("set assignee", err)
	}

	if _, err := e.workflow.Transition(ctx, applicationID, models.StatusUnderReview, "system", ""); err != nil {
		metrics.AssignmentsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.AssignmentsTotal.WithLabelValues("assigned").Inc()
	e.auditor.Record(ctx, models.ActionApplicationAssigned, "system",
		models.ResourceApplication, applicationID,
		map[string]interface{}{"officerId": officer.ID, "category": serviceCategory}, true)
	e.notifier.Dispatch(ctx, notify.Input{
		UserID:    officer.ID,
		Title:     "New application assigned",
		Message:   fmt.Sprintf("Application %s has been assigned to you for review", applicationID),
		Type:      models.NotificationAssignment,
		RelatedID: applicationID,
		Priority:  models.PriorityNormal,
	})

	e.logger.Info("application assigned", map[string]interface{}{
		"applicationId": applicationID,
		"officerId":     officer.ID,
	})
	return &officer, nil
}

// Reassign hands an application to a specific officer. The status does not
// change; only assignedTo moves, with an audit entry naming the actor.
func (e *Engine) Reassign(ctx context.Context, applicationID, officerID, actorID string) error {
	if officerID == "" {
		return errors.NewValidationError("officerId is required")
	}

	var app models.Application
	if err := e.store.Get(ctx, store.CollectionApplications, applicationID, &app); err != nil {
		if err == store.ErrNotFound {
			return errors.NewNotFoundError("application", applicationID)
		}
		return errors.NewStorageError("get application", err)
	}
	if models.IsTerminalStatus(app.Status) {
		return errors.NewInvalidTransitionError(app.Status, app.Status)
	}

	if err := e.store.UpdateFields(ctx, store.CollectionApplications, applicationID,
		map[string]interface{}{"assignedTo": officerID}); err != nil {
		return errors.NewStorageError("set assignee", err)
	}

	e.auditor.Record(ctx, models.ActionApplicationReassigned, actorID,
		models.ResourceApplication, applicationID,
		map[string]interface{}{"from": app.AssignedTo, "to": officerID}, true)
	e.notifier.Dispatch(ctx, notify.Input{
		UserID:    officerID,
		Title:     "Application reassigned to you",
		Message:   fmt.Sprintf("Application %s has been reassigned to you", applicationID),
		Type:      models.NotificationAssignment,
		RelatedID: applicationID,
		Priority:  app.Priority,
	})
	return nil
}
