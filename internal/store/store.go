// internal/store/store.go

// Package store defines the record-store contract the workflow engine runs on.
// Implementations are injected into every component constructor; there is no
// ambient datastore handle.
package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Collections
const (
	CollectionApplications  = "applications"
	CollectionAuditLogs     = "auditLogs"
	CollectionNotifications = "notifications"
)

var ErrNotFound = errors.New("document not found")

// ErrStale reports that the document exists but no longer matches the guard
// fields a conditional update was predicated on. Callers re-read and decide.
var ErrStale = errors.New("document changed since it was read")

// Query describes a filtered, cursor-paginated read. Results are always
// newest-first on createdAt with the document id as tiebreak; the cursor stays
// stable under concurrent inserts, which offset pagination would not.
type Query struct {
	Filters map[string]interface{}
	Since   *time.Time
	Until   *time.Time
	Cursor  string
	Limit   int64
}

// Normalize applies sane defaults and bounds
func (q *Query) Normalize() {
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}
}

// Store is the persistence contract for Application, AuditEntry and
// Notification documents.
type Store interface {
	// Get decodes the document with the given id into out.
	Get(ctx context.Context, collection, id string, out interface{}) error
	// Create inserts a new document.
	Create(ctx context.Context, collection string, doc interface{}) error
	// UpdateFields sets the given top-level fields and refreshes updatedAt.
	UpdateFields(ctx context.Context, collection, id string, fields map[string]interface{}) error
	// AppendToArray atomically appends entry to the named array field and
	// refreshes updatedAt in the same storage-level update. Never implemented
	// as read-modify-write of the whole array.
	AppendToArray(ctx context.Context, collection, id, field string, entry interface{}) error
	// UpdateAndAppend combines UpdateFields and AppendToArray in one atomic
	// update command, so the array and the scalar fields cannot diverge. A
	// non-nil guard makes the update conditional: every guard field must still
	// hold its given value or the update matches nothing and ErrStale is
	// returned (ErrNotFound when the document does not exist at all).
	UpdateAndAppend(ctx context.Context, collection, id string, guard, fields map[string]interface{}, field string, entry interface{}) error
	// Find decodes all matching documents, newest-first, into out (a pointer
	// to a slice). Fetch one more than Query.Limit to detect a next page.
	Find(ctx context.Context, collection string, q Query, out interface{}) error
}

// EncodeCursor builds the opaque continuation cursor for a page ending at the
// document with the given createdAt and id.
func EncodeCursor(createdAt time.Time, id string) string {
	raw := fmt.Sprintf("%s|%s", createdAt.UTC().Format(time.RFC3339Nano), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a continuation cursor produced by EncodeCursor.
func DecodeCursor(cursor string) (time.Time, string, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("malformed cursor")
	}
	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("malformed cursor timestamp: %w", err)
	}
	return t, parts[1], nil
}
