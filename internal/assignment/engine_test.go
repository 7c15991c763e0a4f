// internal/assignment/engine_test.go
package assignment

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"eservices-portal/internal/common/errors"
	"eservices-portal/internal/common/logger"
	"eservices-portal/internal/models"
	"eservices-portal/internal/notify"
	"eservices-portal/internal/services"
	"eservices-portal/internal/store"
	"eservices-portal/internal/workflow"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	inputs []notify.Input
}

func (r *recordingNotifier) Dispatch(ctx context.Context, in notify.Input) {
	r.inputs = append(r.inputs, in)
}

type recordingAuditor struct {
	actions []string
	details []map[string]interface{}
}

func (r *recordingAuditor) Record(ctx context.Context, action, actorID, resourceType, resourceID string, details map[string]interface{}, success bool) string {
	r.actions = append(r.actions, action)
	r.details = append(r.details, details)
	return "audit-1"
}

const officerQuery = `SELECT id, name, email, phone FROM officers WHERE active = true AND category = \$1`

func newFixture(t *testing.T) (*Engine, sqlmock.Sqlmock, *store.MemStore, *recordingNotifier, *recordingAuditor, string) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st := store.NewMemStore()
	catalog := services.NewCatalog(models.ServiceConfig{
		Type:            "birth-certificate",
		Category:        "civil-registration",
		Fee:             25,
		DefaultPriority: models.PriorityNormal,
		ProcessingDays:  7,
	})
	wf := workflow.NewEngine(st, catalog, logger.NewNoOpLogger())
	app, err := wf.Create(context.Background(), "user-1", "birth-certificate", nil, nil)
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	auditor := &recordingAuditor{}
	eng := NewEngine(db, st, wf, notifier, auditor, logger.NewTestLogger(t))
	return eng, mock, st, notifier, auditor, app.ID
}

func TestAssign_PicksOfficerFromPool(t *testing.T) {
	ctx := context.Background()
	eng, mock, st, notifier, auditor, appID := newFixture(t)

	mock.ExpectQuery(officerQuery).
		WithArgs("civil-registration").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone"}).
			AddRow("off-1", "Officer One", "one@portal.gov", "+15550101").
			AddRow("off-2", "Officer Two", "two@portal.gov", "+15550102"))

	officer, err := eng.Assign(ctx, appID, "civil-registration")
	require.NoError(t, err)
	require.NotNil(t, officer)
	assert.Contains(t, []string{"off-1", "off-2"}, officer.ID)

	var app models.Application
	require.NoError(t, st.Get(ctx, store.CollectionApplications, appID, &app))
	assert.Equal(t, officer.ID, app.AssignedTo)
	assert.Equal(t, models.StatusUnderReview, app.Status)
	require.Len(t, app.StatusHistory, 2)
	assert.Equal(t, "system", app.StatusHistory[1].Actor)

	require.Len(t, notifier.inputs, 1)
	assert.Equal(t, officer.ID, notifier.inputs[0].UserID)
	assert.Equal(t, models.NotificationAssignment, notifier.inputs[0].Type)

	require.Len(t, auditor.actions, 1)
	assert.Equal(t, models.ActionApplicationAssigned, auditor.actions[0])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssign_NoEligibleOfficer(t *testing.T) {
	ctx := context.Background()
	eng, mock, st, notifier, _, appID := newFixture(t)

	mock.ExpectQuery(officerQuery).
		WithArgs("civil-registration").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone"}))

	officer, err := eng.Assign(ctx, appID, "civil-registration")
	require.NoError(t, err, "empty pool is not an error")
	assert.Nil(t, officer)

	// application untouched: still submitted and unassigned
	var app models.Application
	require.NoError(t, st.Get(ctx, store.CollectionApplications, appID, &app))
	assert.Equal(t, models.StatusSubmitted, app.Status)
	assert.Empty(t, app.AssignedTo)
	assert.Empty(t, notifier.inputs)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssign_UnknownApplication(t *testing.T) {
	eng, _, _, _, _, _ := newFixture(t)

	// rejected before the officer directory is ever queried
	_, err := eng.Assign(context.Background(), "no-such-app", "civil-registration")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestAssign_TerminalStateLeavesApplicationUntouched(t *testing.T) {
	ctx := context.Background()
	eng, _, st, notifier, _, appID := newFixture(t)

	_, err := eng.workflow.Transition(ctx, appID, models.StatusCancelled, "user-1", "")
	require.NoError(t, err)

	_, err = eng.Assign(ctx, appID, "civil-registration")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))

	// failed assignment must not leave assignedTo set
	var app models.Application
	require.NoError(t, st.Get(ctx, store.CollectionApplications, appID, &app))
	assert.Empty(t, app.AssignedTo)
	assert.Equal(t, models.StatusCancelled, app.Status)
	assert.Empty(t, notifier.inputs)
}

func TestAssign_ConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.MatchExpectationsInOrder(false)

	st := store.NewMemStore()
	catalog := services.NewCatalog(models.ServiceConfig{
		Type:            "birth-certificate",
		Category:        "civil-registration",
		DefaultPriority: models.PriorityNormal,
		ProcessingDays:  7,
	})
	wf := workflow.NewEngine(st, catalog, logger.NewNoOpLogger())
	eng := NewEngine(db, st, wf, &recordingNotifier{}, &recordingAuditor{}, logger.NewNoOpLogger())

	const n = 8
	appIDs := make([]string, n)
	for i := 0; i < n; i++ {
		app, err := wf.Create(ctx, fmt.Sprintf("user-%d", i), "birth-certificate", nil, nil)
		require.NoError(t, err)
		appIDs[i] = app.ID

		mock.ExpectQuery(officerQuery).
			WithArgs("civil-registration").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone"}).
				AddRow("off-1", "Officer One", "one@portal.gov", "+15550101").
				AddRow("off-2", "Officer Two", "two@portal.gov", "+15550102"))
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Assign(ctx, appIDs[i], "civil-registration")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "assign %d", i)
		var app models.Application
		require.NoError(t, st.Get(ctx, store.CollectionApplications, appIDs[i], &app))
		assert.Contains(t, []string{"off-1", "off-2"}, app.AssignedTo)
		assert.Equal(t, models.StatusUnderReview, app.Status)
	}
}

func TestReassign(t *testing.T) {
	ctx := context.Background()
	eng, mock, st, notifier, auditor, appID := newFixture(t)

	mock.ExpectQuery(officerQuery).
		WithArgs("civil-registration").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "phone"}).
			AddRow("off-1", "Officer One", "one@portal.gov", "+15550101"))
	_, err := eng.Assign(ctx, appID, "civil-registration")
	require.NoError(t, err)

	require.NoError(t, eng.Reassign(ctx, appID, "off-9", "admin-1"))

	var app models.Application
	require.NoError(t, st.Get(ctx, store.CollectionApplications, appID, &app))
	assert.Equal(t, "off-9", app.AssignedTo)
	assert.Equal(t, models.StatusUnderReview, app.Status, "reassignment does not change status")

	require.Len(t, auditor.actions, 2)
	assert.Equal(t, models.ActionApplicationReassigned, auditor.actions[1])
	assert.Equal(t, "off-1", auditor.details[1]["from"])
	assert.Equal(t, "off-9", auditor.details[1]["to"])

	require.Len(t, notifier.inputs, 2)
	assert.Equal(t, "off-9", notifier.inputs[1].UserID)
}

func TestReassign_Validation(t *testing.T) {
	ctx := context.Background()
	eng, _, _, _, _, appID := newFixture(t)

	err := eng.Reassign(ctx, appID, "", "admin-1")
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidationFailed))

	err = eng.Reassign(ctx, "no-such-app", "off-1", "admin-1")
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}
