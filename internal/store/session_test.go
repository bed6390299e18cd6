package store_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tracklane/catalog-importer/internal/config"
	"github.com/tracklane/catalog-importer/internal/store"
	"github.com/tracklane/catalog-importer/internal/store/model"
)

func newStore(t *testing.T) store.Store {
	t.Helper()

	db, err := store.InitDB(config.NewDefault())
	require.NoError(t, err)

	s := store.NewStore(db)
	require.NoError(t, s.InitialMigration())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newSession(username, orgID string) model.ImportSession {
	return model.ImportSession{
		ID:        uuid.New(),
		Status:    model.SessionStatusPending,
		FileName:  "catalog.csv",
		TotalRows: 100,
		CreatedBy: username,
		OrgID:     orgID,
	}
}

func TestSessionCreate(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	created, err := s.ImportSession().Create(ctx, newSession("admin", "internal"))
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusPending, created.Status)
	assert.Equal(t, 0, created.RowsProcessed)

	got, err := s.ImportSession().Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestSessionCreateSecondActiveRejected(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	first, err := s.ImportSession().Create(ctx, newSession("admin", "internal"))
	require.NoError(t, err)

	_, err = s.ImportSession().Create(ctx, newSession("admin", "internal"))
	require.ErrorIs(t, err, store.ErrDuplicateKey)

	// a different owner gets its own slot
	_, err = s.ImportSession().Create(ctx, newSession("other", "internal"))
	require.NoError(t, err)

	// a terminal session frees the slot
	_, err = s.ImportSession().UpdateStatus(ctx, first.ID, model.NonTerminalStatuses, model.SessionStatusCancelled, nil)
	require.NoError(t, err)

	_, err = s.ImportSession().Create(ctx, newSession("admin", "internal"))
	require.NoError(t, err)
}

func TestSessionAdvanceCheckpoint(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	created, err := s.ImportSession().Create(ctx, newSession("admin", "internal"))
	require.NoError(t, err)

	updated, err := s.ImportSession().AdvanceCheckpoint(ctx, created.ID, 0, 50, model.SessionStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, 50, updated.RowsProcessed)
	assert.Equal(t, model.SessionStatusInProgress, updated.Status)

	// replaying the same advance affects nothing
	_, err = s.ImportSession().AdvanceCheckpoint(ctx, created.ID, 0, 50, model.SessionStatusInProgress)
	require.ErrorIs(t, err, store.ErrStaleCheckpoint)

	got, err := s.ImportSession().Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.RowsProcessed)
}

func TestSessionAdvanceCheckpointConsumesPauseFlag(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	created, err := s.ImportSession().Create(ctx, newSession("admin", "internal"))
	require.NoError(t, err)

	require.NoError(t, s.ImportSession().SetPauseRequested(ctx, created.ID, true))

	updated, err := s.ImportSession().AdvanceCheckpoint(ctx, created.ID, 0, 50, model.SessionStatusPaused)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusPaused, updated.Status)
	assert.False(t, updated.PauseRequested)
}

func TestSessionAdvanceCheckpointKeepsUnappliedPauseFlag(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	created, err := s.ImportSession().Create(ctx, newSession("admin", "internal"))
	require.NoError(t, err)

	// the pause lands after the caller already decided on in_progress
	require.NoError(t, s.ImportSession().SetPauseRequested(ctx, created.ID, true))

	updated, err := s.ImportSession().AdvanceCheckpoint(ctx, created.ID, 0, 50, model.SessionStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusInProgress, updated.Status)
	assert.True(t, updated.PauseRequested, "an unapplied pause request must survive the commit")
}

func TestSessionAdvanceCheckpointTerminalRejected(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	created, err := s.ImportSession().Create(ctx, newSession("admin", "internal"))
	require.NoError(t, err)

	_, err = s.ImportSession().UpdateStatus(ctx, created.ID, model.NonTerminalStatuses, model.SessionStatusCancelled, nil)
	require.NoError(t, err)

	_, err = s.ImportSession().AdvanceCheckpoint(ctx, created.ID, 0, 50, model.SessionStatusInProgress)
	require.ErrorIs(t, err, store.ErrStaleCheckpoint)
}

func TestSessionUpdateStatusGuard(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	created, err := s.ImportSession().Create(ctx, newSession("admin", "internal"))
	require.NoError(t, err)

	// wrong source state
	_, err = s.ImportSession().UpdateStatus(ctx, created.ID, []string{model.SessionStatusPaused}, model.SessionStatusInProgress, nil)
	require.ErrorIs(t, err, store.ErrPreconditionFailed)

	updated, err := s.ImportSession().UpdateStatus(ctx, created.ID, []string{model.SessionStatusPending}, model.SessionStatusInProgress, nil)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusInProgress, updated.Status)

	errMsg := "storage gone"
	updated, err = s.ImportSession().UpdateStatus(ctx, created.ID, model.NonTerminalStatuses, model.SessionStatusFailed, &errMsg)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusFailed, updated.Status)
	require.NotNil(t, updated.Error)
	assert.Equal(t, errMsg, *updated.Error)

	// unknown id surfaces not found, not a precondition failure
	_, err = s.ImportSession().UpdateStatus(ctx, uuid.New(), nil, model.SessionStatusFailed, nil)
	require.ErrorIs(t, err, store.ErrRecordNotFound)
}

func TestSessionGetActiveForOwner(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	_, err := s.ImportSession().GetActiveForOwner(ctx, "admin", "internal")
	require.ErrorIs(t, err, store.ErrRecordNotFound)

	created, err := s.ImportSession().Create(ctx, newSession("admin", "internal"))
	require.NoError(t, err)

	got, err := s.ImportSession().GetActiveForOwner(ctx, "admin", "internal")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	// same username in another org does not match
	_, err = s.ImportSession().GetActiveForOwner(ctx, "admin", "partner")
	require.ErrorIs(t, err, store.ErrRecordNotFound)

	_, err = s.ImportSession().UpdateStatus(ctx, created.ID, nil, model.SessionStatusCompleted, nil)
	require.NoError(t, err)

	_, err = s.ImportSession().GetActiveForOwner(ctx, "admin", "internal")
	require.ErrorIs(t, err, store.ErrRecordNotFound)
}

func TestSessionMappingRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	target := "artist_name"
	session := newSession("admin", "internal")
	session.Mapping = model.MakeJSONField([]model.ColumnMapping{
		{CSVColumn: "Artist", FieldType: model.FieldTypeSubmission, TargetField: &target},
	})

	created, err := s.ImportSession().Create(ctx, session)
	require.NoError(t, err)

	got, err := s.ImportSession().Get(ctx, created.ID)
	require.NoError(t, err)

	mapping := got.MappingConfig()
	require.Len(t, mapping, 1)
	assert.Equal(t, "Artist", mapping[0].CSVColumn)
	require.NotNil(t, mapping[0].TargetField)
	assert.Equal(t, target, *mapping[0].TargetField)
}

func TestSessionDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.TODO()

	created, err := s.ImportSession().Create(ctx, newSession("admin", "internal"))
	require.NoError(t, err)

	require.NoError(t, s.ImportSession().Delete(ctx, created.ID))

	_, err = s.ImportSession().Get(ctx, created.ID)
	require.ErrorIs(t, err, store.ErrRecordNotFound)

	// deleting a missing session is not an error
	require.NoError(t, s.ImportSession().Delete(ctx, uuid.New()))
}
