// internal/audit/trail.go

// Package audit maintains the append-only trail of administrative actions,
// independent of any single application's status history.
package audit

import (
	"context"
	"time"

	"eservices-portal/internal/common/logger"
	"eservices-portal/internal/models"
	"eservices-portal/internal/store"

	"github.com/google/uuid"
)

type Trail struct {
	store  store.Store
	logger logger.Logger
}

func NewTrail(st store.Store, log logger.Logger) *Trail {
	return &Trail{
		store:  st,
		logger: log.WithFields(map[string]interface{}{"component": "audit"}),
	}
}

// Record appends one entry to the trail. It never fails the caller's primary
// operation: a storage failure is logged and swallowed so audit logging cannot
// block business operations. The entry id is returned best-effort.
func (t *Trail) Record(ctx context.Context, action, actorID, resourceType, resourceID string, details map[string]interface{}, success bool) string {
	entry := models.AuditEntry{
		ID:           uuid.New().String(),
		Action:       action,
		ActorID:      actorID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		Success:      success,
		CreatedAt:    time.Now().UTC(),
	}

	if err := t.store.Create(ctx, store.CollectionAuditLogs, entry); err != nil {
		t.logger.Error("audit write failed", map[string]interface{}{
			"error":      err,
			"action":     action,
			"resourceId": resourceID,
		})
	}
	return entry.ID
}

// Filter selects audit entries. All fields are combinable; zero values are ignored.
type Filter struct {
	ActorID      string
	Action       string
	ResourceType string
	Since        *time.Time
	Until        *time.Time
	Cursor       string
	Limit        int64
}

// Page is one newest-first page of the trail with a continuation cursor.
// NextCursor is empty on the last page.
type Page struct {
	Entries    []models.AuditEntry `json:"entries"`
	NextCursor string              `json:"nextCursor,omitempty"`
}

// List returns entries newest-first, paginated via a continuation cursor so
// pages stay stable under concurrent inserts.
func (t *Trail) List(ctx context.Context, f Filter) (*Page, error) {
	q := store.Query{
		Filters: map[string]interface{}{},
		Since:   f.Since,
		Until:   f.Until,
		Cursor:  f.Cursor,
		Limit:   f.Limit,
	}
	if f.ActorID != "" {
		q.Filters["actorId"] = f.ActorID
	}
	if f.Action != "" {
		q.Filters["action"] = f.Action
	}
	if f.ResourceType != "" {
		q.Filters["resourceType"] = f.ResourceType
	}
	q.Normalize()

	var entries []models.AuditEntry
	if err := t.store.Find(ctx, store.CollectionAuditLogs, q, &entries); err != nil {
		return nil, err
	}

	page := &Page{}
	if int64(len(entries)) > q.Limit {
		entries = entries[:q.Limit]
		last := entries[len(entries)-1]
		page.NextCursor = store.EncodeCursor(last.CreatedAt, last.ID)
	}
	page.Entries = entries
	return page, nil
}
