// internal/audit/trail_test.go
package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"eservices-portal/internal/common/logger"
	"eservices-portal/internal/models"
	"eservices-portal/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_AppendsEntry(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	trail := NewTrail(st, logger.NewTestLogger(t))

	id := trail.Record(ctx, models.ActionStatusChanged, "staff-1",
		models.ResourceApplication, "app-1",
		map[string]interface{}{"from": "submitted", "to": "under_review"}, true)
	require.NotEmpty(t, id)

	var got models.AuditEntry
	require.NoError(t, st.Get(ctx, store.CollectionAuditLogs, id, &got))
	assert.Equal(t, models.ActionStatusChanged, got.Action)
	assert.Equal(t, "staff-1", got.ActorID)
	assert.True(t, got.Success)
}

func TestRecord_SwallowsStorageFailure(t *testing.T) {
	st := store.NewMemStore()
	st.FailCreate[store.CollectionAuditLogs] = errors.New("store down")
	trail := NewTrail(st, logger.NewNoOpLogger())

	// Must not panic or propagate; the caller's primary operation is unaffected.
	id := trail.Record(context.Background(), models.ActionCommentAdded, "staff-1",
		models.ResourceApplication, "app-1", nil, true)
	assert.NotEmpty(t, id)
}

func TestList_FiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	trail := NewTrail(st, logger.NewNoOpLogger())

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 6; i++ {
		actor := "staff-1"
		if i%2 == 0 {
			actor = "staff-2"
		}
		entry := models.AuditEntry{
			ID:           string(rune('a' + i)),
			Action:       models.ActionStatusChanged,
			ActorID:      actor,
			ResourceType: models.ResourceApplication,
			ResourceID:   "app-1",
			Success:      true,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, st.Create(ctx, store.CollectionAuditLogs, entry))
	}

	page, err := trail.List(ctx, Filter{ActorID: "staff-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.NotEmpty(t, page.NextCursor)
	// newest first
	assert.True(t, page.Entries[0].CreatedAt.After(page.Entries[1].CreatedAt))
	for _, e := range page.Entries {
		assert.Equal(t, "staff-1", e.ActorID)
	}

	rest, err := trail.List(ctx, Filter{ActorID: "staff-1", Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Entries, 1)
	assert.Empty(t, rest.NextCursor)
}

func TestList_TimeRange(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	trail := NewTrail(st, logger.NewNoOpLogger())

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, st.Create(ctx, store.CollectionAuditLogs, models.AuditEntry{
			ID:        string(rune('a' + i)),
			Action:    models.ActionCommentAdded,
			ActorID:   "staff-1",
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	since := base.Add(30 * time.Minute)
	until := base.Add(150 * time.Minute)
	page, err := trail.List(ctx, Filter{Since: &since, Until: &until})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "c", page.Entries[0].ID)
	assert.Equal(t, "b", page.Entries[1].ID)
}
