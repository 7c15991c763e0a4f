// internal/workflow/engine_test.go
package workflow

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"eservices-portal/internal/common/errors"
	"eservices-portal/internal/common/logger"
	"eservices-portal/internal/models"
	"eservices-portal/internal/services"
	"eservices-portal/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *services.Catalog {
	return services.NewCatalog(
		models.ServiceConfig{
			Type:            "birth-certificate",
			Name:            "Birth Certificate",
			Category:        "civil-registration",
			Fee:             25,
			DefaultPriority: models.PriorityNormal,
			ProcessingDays:  7,
		},
		models.ServiceConfig{
			Type:            "trade-license",
			Name:            "Trade License",
			Category:        "business",
			Fee:             150,
			DefaultPriority: models.PriorityHigh,
			ProcessingDays:  21,
			FormSchema: map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"businessName"},
				"properties": map[string]interface{}{
					"businessName": map[string]interface{}{"type": "string"},
				},
			},
		},
	)
}

func newTestEngine(t *testing.T, hooks ...Hook) (*Engine, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	return NewEngine(st, testCatalog(), logger.NewTestLogger(t), hooks...), st
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{models.StatusSubmitted, models.StatusUnderReview, true},
		{models.StatusSubmitted, models.StatusApproved, false},
		{models.StatusUnderReview, models.StatusApproved, true},
		{models.StatusUnderReview, models.StatusRejected, true},
		{models.StatusUnderReview, models.StatusDocumentsRequired, true},
		{models.StatusDocumentsRequired, models.StatusUnderReview, true},
		{models.StatusDocumentsRequired, models.StatusApproved, false},
		{models.StatusApproved, models.StatusCompleted, true},
		{models.StatusApproved, models.StatusUnderReview, false},
		// cancellable from every non-terminal state
		{models.StatusSubmitted, models.StatusCancelled, true},
		{models.StatusUnderReview, models.StatusCancelled, true},
		{models.StatusDocumentsRequired, models.StatusCancelled, true},
		{models.StatusApproved, models.StatusCancelled, true},
		// terminal states are dead ends
		{models.StatusCompleted, models.StatusUnderReview, false},
		{models.StatusRejected, models.StatusUnderReview, false},
		{models.StatusCancelled, models.StatusSubmitted, false},
		// unknown statuses are unreachable
		{models.StatusSubmitted, "archived", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"_to_"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCreate_BuildsFromCatalog(t *testing.T) {
	ctx := context.Background()
	eng, st := newTestEngine(t)

	app, err := eng.Create(ctx, "user-1", "birth-certificate",
		map[string]interface{}{"childName": "Asha"}, []string{"doc-1"})
	require.NoError(t, err)

	assert.Equal(t, models.StatusSubmitted, app.Status)
	assert.Equal(t, float64(25), app.Fee)
	assert.Equal(t, models.PriorityNormal, app.Priority)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 7), app.ExpectedCompletionAt, time.Minute)
	require.Len(t, app.StatusHistory, 1)
	assert.Equal(t, models.StatusSubmitted, app.StatusHistory[0].Status)
	assert.Equal(t, "user-1", app.StatusHistory[0].Actor)

	var stored models.Application
	require.NoError(t, st.Get(ctx, store.CollectionApplications, app.ID, &stored))
	assert.Equal(t, app.ID, stored.ID)
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	_, err := eng.Create(ctx, "", "birth-certificate", nil, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))

	_, err = eng.Create(ctx, "user-1", "dog-license", nil, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))

	// schema-backed service rejects a form missing a required field
	_, err = eng.Create(ctx, "user-1", "trade-license", map[string]interface{}{}, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))

	_, err = eng.Create(ctx, "user-1", "trade-license",
		map[string]interface{}{"businessName": "Corner Shop"}, nil)
	assert.NoError(t, err)
}

// Full review lifecycle: submit, move to review, reject without remarks fails
// closed, reject with remarks lands terminally, and nothing moves after that.
func TestTransition_ReviewLifecycle(t *testing.T) {
	ctx := context.Background()
	eng, st := newTestEngine(t)

	app, err := eng.Create(ctx, "user-1", "birth-certificate", nil, nil)
	require.NoError(t, err)

	res, err := eng.Transition(ctx, app.ID, models.StatusUnderReview, "officer-1", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, res.Status)
	assert.False(t, res.Timestamp.IsZero())

	_, err = eng.Transition(ctx, app.ID, models.StatusRejected, "officer-1", "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))

	// failed attempt must not have touched the record
	var mid models.Application
	require.NoError(t, st.Get(ctx, store.CollectionApplications, app.ID, &mid))
	assert.Equal(t, models.StatusUnderReview, mid.Status)
	assert.Len(t, mid.StatusHistory, 2)

	res, err = eng.Transition(ctx, app.ID, models.StatusRejected, "officer-1", "incomplete documents")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, res.Status)

	_, err = eng.Transition(ctx, app.ID, models.StatusCompleted, "officer-1", "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))

	var final models.Application
	require.NoError(t, st.Get(ctx, store.CollectionApplications, app.ID, &final))
	assert.Equal(t, models.StatusRejected, final.Status)
	require.Len(t, final.StatusHistory, 3)
	assert.Equal(t, models.StatusRejected, final.StatusHistory[2].Status)
	assert.Equal(t, "incomplete documents", final.StatusHistory[2].Remarks)
}

func TestTransition_UnknownApplication(t *testing.T) {
	eng, _ := newTestEngine(t)

	_, err := eng.Transition(context.Background(), "no-such-app", models.StatusUnderReview, "officer-1", "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestTransition_SameStatusIsIdempotentNoOp(t *testing.T) {
	ctx := context.Background()
	hookRuns := 0
	eng, st := newTestEngine(t, Hook{
		Name: "counter",
		Run: func(ctx context.Context, ev Event) error {
			hookRuns++
			return nil
		},
	})

	app, err := eng.Create(ctx, "user-1", "birth-certificate", nil, nil)
	require.NoError(t, err)
	_, err = eng.Transition(ctx, app.ID, models.StatusUnderReview, "officer-1", "")
	require.NoError(t, err)
	runsAfterTransition := hookRuns

	// retry of the same transition after a client timeout
	res, err := eng.Transition(ctx, app.ID, models.StatusUnderReview, "officer-1", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, res.Status)

	assert.Equal(t, runsAfterTransition, hookRuns, "no hooks on the no-op path")
	var got models.Application
	require.NoError(t, st.Get(ctx, store.CollectionApplications, app.ID, &got))
	assert.Len(t, got.StatusHistory, 2, "no history append on the no-op path")
}

// contendedStore lets another writer slip in between the engine's read and
// its conditional update, the window a concurrent retry would hit.
type contendedStore struct {
	*store.MemStore
	before func()
}

func (c *contendedStore) UpdateAndAppend(ctx context.Context, collection, id string, guard, fields map[string]interface{}, field string, entry interface{}) error {
	if f := c.before; f != nil {
		c.before = nil
		f()
	}
	return c.MemStore.UpdateAndAppend(ctx, collection, id, guard, fields, field, entry)
}

func TestTransition_ConcurrentIdenticalRetryAppendsOnce(t *testing.T) {
	ctx := context.Background()
	hookRuns := 0
	mem := store.NewMemStore()
	cs := &contendedStore{MemStore: mem}
	counter := Hook{Name: "counter", Run: func(ctx context.Context, ev Event) error {
		hookRuns++
		return nil
	}}
	eng := NewEngine(cs, testCatalog(), logger.NewNoOpLogger(), counter)
	rival := NewEngine(mem, testCatalog(), logger.NewNoOpLogger(), counter)

	app, err := eng.Create(ctx, "user-1", "birth-certificate", nil, nil)
	require.NoError(t, err)
	hookRuns = 0

	// the rival commits the same transition after this engine's read
	cs.before = func() {
		_, err := rival.Transition(ctx, app.ID, models.StatusUnderReview, "officer-1", "")
		require.NoError(t, err)
	}

	res, err := eng.Transition(ctx, app.ID, models.StatusUnderReview, "officer-1", "")
	require.NoError(t, err, "losing an identical race is still success")
	assert.Equal(t, models.StatusUnderReview, res.Status)

	var got models.Application
	require.NoError(t, mem.Get(ctx, store.CollectionApplications, app.ID, &got))
	assert.Len(t, got.StatusHistory, 2, "only the winning write appends history")
	assert.Equal(t, 1, hookRuns, "only the winning write fires hooks")
}

func TestTransition_ConcurrentConflictingWriteIsRejected(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemStore()
	cs := &contendedStore{MemStore: mem}
	eng := NewEngine(cs, testCatalog(), logger.NewNoOpLogger())
	rival := NewEngine(mem, testCatalog(), logger.NewNoOpLogger())

	app, err := eng.Create(ctx, "user-1", "birth-certificate", nil, nil)
	require.NoError(t, err)

	// the applicant cancels while the officer's transition is in flight
	cs.before = func() {
		_, err := rival.Transition(ctx, app.ID, models.StatusCancelled, "user-1", "")
		require.NoError(t, err)
	}

	_, err = eng.Transition(ctx, app.ID, models.StatusUnderReview, "officer-1", "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))

	var got models.Application
	require.NoError(t, mem.Get(ctx, store.CollectionApplications, app.ID, &got))
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Len(t, got.StatusHistory, 2)
}

func TestTransition_HooksReceiveCommittedEvent(t *testing.T) {
	ctx := context.Background()
	var events []Event
	eng, _ := newTestEngine(t, Hook{
		Name: "capture",
		Run: func(ctx context.Context, ev Event) error {
			events = append(events, ev)
			return nil
		},
	})

	app, err := eng.Create(ctx, "user-1", "birth-certificate", nil, nil)
	require.NoError(t, err)
	_, err = eng.Transition(ctx, app.ID, models.StatusUnderReview, "officer-1", "")
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Empty(t, events[0].FromStatus)
	assert.Equal(t, models.StatusSubmitted, events[0].ToStatus)
	assert.Equal(t, models.StatusSubmitted, events[1].FromStatus)
	assert.Equal(t, models.StatusUnderReview, events[1].ToStatus)
	assert.Equal(t, "officer-1", events[1].ActorID)
	assert.Equal(t, models.StatusUnderReview, events[1].Application.Status)
}

func TestTransition_HookFailureDoesNotSurface(t *testing.T) {
	ctx := context.Background()
	laterHookRan := false
	eng, st := newTestEngine(t,
		Hook{Name: "broken", Run: func(ctx context.Context, ev Event) error {
			return stderrors.New("downstream unavailable")
		}},
		Hook{Name: "panicky", Run: func(ctx context.Context, ev Event) error {
			panic("boom")
		}},
		Hook{Name: "healthy", Run: func(ctx context.Context, ev Event) error {
			laterHookRan = true
			return nil
		}},
	)

	app, err := eng.Create(ctx, "user-1", "birth-certificate", nil, nil)
	require.NoError(t, err)

	res, err := eng.Transition(ctx, app.ID, models.StatusUnderReview, "officer-1", "")
	require.NoError(t, err, "hook failures never fail the transition")
	assert.Equal(t, models.StatusUnderReview, res.Status)
	assert.True(t, laterHookRan, "hooks after a failing one still run")

	var got models.Application
	require.NoError(t, st.Get(ctx, store.CollectionApplications, app.ID, &got))
	assert.Equal(t, models.StatusUnderReview, got.Status)
}

func TestTransition_ResubmissionPath(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	app, err := eng.Create(ctx, "user-1", "birth-certificate", nil, nil)
	require.NoError(t, err)

	for _, step := range []struct{ to, actor string }{
		{models.StatusUnderReview, "officer-1"},
		{models.StatusDocumentsRequired, "officer-1"},
		{models.StatusUnderReview, "user-1"},
		{models.StatusApproved, "officer-1"},
		{models.StatusCompleted, "officer-1"},
	} {
		res, err := eng.Transition(ctx, app.ID, step.to, step.actor, "")
		require.NoError(t, err, "to %s", step.to)
		assert.Equal(t, step.to, res.Status)
	}

	got, err := eng.Get(ctx, app.ID)
	require.NoError(t, err)
	assert.Len(t, got.StatusHistory, 6)
	assert.Equal(t, models.StatusCompleted, got.StatusHistory[5].Status)
}

func TestTransition_StorageFailureAborts(t *testing.T) {
	ctx := context.Background()
	hookRuns := 0
	st := store.NewMemStore()
	eng := NewEngine(st, testCatalog(), logger.NewNoOpLogger(), Hook{
		Name: "counter",
		Run: func(ctx context.Context, ev Event) error {
			hookRuns++
			return nil
		},
	})

	app, err := eng.Create(ctx, "user-1", "birth-certificate", nil, nil)
	require.NoError(t, err)
	hookRuns = 0

	st.FailUpdate[store.CollectionApplications] = stderrors.New("mongo down")
	_, err = eng.Transition(ctx, app.ID, models.StatusUnderReview, "officer-1", "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeStorageFailed))
	assert.Zero(t, hookRuns, "no hooks when the primary mutation fails")
}
