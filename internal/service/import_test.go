package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tracklane/catalog-importer/internal/auth"
	"github.com/tracklane/catalog-importer/internal/config"
	"github.com/tracklane/catalog-importer/internal/store"
	"github.com/tracklane/catalog-importer/internal/store/model"
)

func newImportService(t *testing.T) (*ImportService, store.Store) {
	t.Helper()
	s := newTestStore(t)
	return NewImportService(s, config.NewDefault()), s
}

// makeRows produces n data rows shaped for submissionMapping. Rows listed in
// badRows get an empty artist name and fail validation.
func makeRows(n int, badRows ...int) [][]string {
	bad := map[int]bool{}
	for _, r := range badRows {
		bad[r] = true
	}

	rows := make([][]string, 0, n)
	for i := 1; i <= n; i++ {
		artist := "Nightloop"
		if bad[i] {
			artist = ""
		}
		rows = append(rows, []string{
			artist,
			fmt.Sprintf("Release %04d", i),
			"single",
			fmt.Sprintf("Track %04d", i),
			"Nightloop",
			"",
			"yes",
		})
	}
	return rows
}

func createSession(t *testing.T, svc *ImportService, user auth.User, totalRows int) *model.ImportSession {
	t.Helper()
	session, err := svc.CreateSession(context.TODO(), user, SessionCreateForm{
		FileName:  "catalog.csv",
		FileSize:  1024,
		TotalRows: totalRows,
		Mapping:   submissionMapping(),
	})
	require.NoError(t, err)
	require.Equal(t, model.SessionStatusPending, session.Status)
	return session
}

func TestImportFullRun(t *testing.T) {
	svc, _ := newImportService(t)
	ctx := context.TODO()

	const totalRows = 1000
	rows := makeRows(totalRows, 517)
	session := createSession(t, svc, testUser, totalRows)

	advances := 0
	for start := 0; start < totalRows; start += 50 {
		result, err := svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{
			StartRow: start,
			Rows:     rows[start : start+50],
		})
		require.NoError(t, err)
		advances++

		assert.Equal(t, start+50, result.RowsProcessed)
		assert.Equal(t, totalRows, result.TotalRows)
		if start+50 < totalRows {
			assert.True(t, result.NeedsMore)
			assert.False(t, result.Completed)
		}
	}
	assert.Equal(t, 20, advances)

	progress, err := svc.GetProgress(ctx, testUser, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCompletedWithErrors, progress.Status)
	assert.Equal(t, totalRows, progress.RowsProcessed)
	assert.Equal(t, 100, progress.Percentage)

	stats, err := svc.GetStats(ctx, testUser, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFailed)
	assert.Equal(t, 999, stats.SuccessCount)
	assert.Equal(t, "99.9", stats.SuccessRate)
	assert.Equal(t, map[string]int{model.ErrorCategoryValidation: 1}, stats.ByCategory)

	failed, total, err := svc.ListFailedRows(ctx, testUser, session.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, failed, 1)
	assert.Equal(t, 517, failed[0].RowNumber)
	assert.Equal(t, model.ErrorCategoryValidation, failed[0].ErrorCategory)
}

func TestImportCleanRunCompletes(t *testing.T) {
	svc, _ := newImportService(t)
	ctx := context.TODO()

	rows := makeRows(80)
	session := createSession(t, svc, testUser, 80)

	result, err := svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{StartRow: 0, Rows: rows[:50]})
	require.NoError(t, err)
	assert.Equal(t, 50, result.RowsProcessed)
	assert.True(t, result.NeedsMore)

	result, err = svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{StartRow: 50, Rows: rows[50:]})
	require.NoError(t, err)
	assert.Equal(t, 80, result.RowsProcessed)
	assert.True(t, result.Completed)
	assert.Equal(t, model.SessionStatusCompleted, result.Status)
}

func TestImportDuplicateSliceIsRejected(t *testing.T) {
	svc, s := newImportService(t)
	ctx := context.TODO()

	rows := makeRows(100)
	session := createSession(t, svc, testUser, 100)

	_, err := svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{StartRow: 0, Rows: rows[:50]})
	require.NoError(t, err)

	artists, err := s.Catalog().ListArtists(ctx, testUser.Organization)
	require.NoError(t, err)
	require.Len(t, artists, 1)
	releases, err := s.Catalog().ListReleases(ctx, artists[0].ID)
	require.NoError(t, err)
	require.Len(t, releases, 50)

	// a network retry re-submits the same slice
	_, err = svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{StartRow: 0, Rows: rows[:50]})
	require.Error(t, err)
	staleErr, ok := err.(*ErrStaleCheckpoint)
	require.True(t, ok, "expected a stale checkpoint error, got %T", err)
	assert.Equal(t, 50, staleErr.RowsProcessed)

	// no row was processed twice
	releases, err = s.Catalog().ListReleases(ctx, artists[0].ID)
	require.NoError(t, err)
	assert.Len(t, releases, 50)

	progress, err := svc.GetProgress(ctx, testUser, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, progress.RowsProcessed)
}

func TestImportSingleActiveSessionPerOwner(t *testing.T) {
	svc, _ := newImportService(t)
	ctx := context.TODO()

	session := createSession(t, svc, testUser, 10)

	_, err := svc.CreateSession(ctx, testUser, SessionCreateForm{
		FileName:  "second.csv",
		TotalRows: 10,
		Mapping:   submissionMapping(),
	})
	require.Error(t, err)
	_, ok := err.(*ErrSessionConflict)
	assert.True(t, ok, "expected a session conflict, got %T", err)

	// another owner is unaffected
	other := auth.User{Username: "other", Organization: "internal"}
	_, err = svc.CreateSession(ctx, other, SessionCreateForm{
		FileName:  "other.csv",
		TotalRows: 10,
		Mapping:   submissionMapping(),
	})
	require.NoError(t, err)

	// cancelling frees the slot
	_, err = svc.Cancel(ctx, testUser, session.ID)
	require.NoError(t, err)

	_, err = svc.CreateSession(ctx, testUser, SessionCreateForm{
		FileName:  "third.csv",
		TotalRows: 10,
		Mapping:   submissionMapping(),
	})
	require.NoError(t, err)
}

func TestImportPauseResume(t *testing.T) {
	svc, _ := newImportService(t)
	ctx := context.TODO()

	rows := makeRows(150)
	session := createSession(t, svc, testUser, 150)

	_, err := svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{StartRow: 0, Rows: rows[:50]})
	require.NoError(t, err)

	// the pause is requested mid-run and applied at the next batch boundary
	paused, err := svc.Pause(ctx, testUser, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusInProgress, paused.Status)
	assert.True(t, paused.PauseRequested)

	result, err := svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{StartRow: 50, Rows: rows[50:100]})
	require.NoError(t, err)
	assert.True(t, result.Paused)
	assert.Equal(t, 100, result.RowsProcessed)

	// pausing a paused session is a no-op
	paused, err = svc.Pause(ctx, testUser, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusPaused, paused.Status)

	resumed, err := svc.Resume(ctx, testUser, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusInProgress, resumed.Status)
	assert.False(t, resumed.PauseRequested)

	// resuming again is a no-op
	resumed, err = svc.Resume(ctx, testUser, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusInProgress, resumed.Status)

	result, err = svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{StartRow: 100, Rows: rows[100:]})
	require.NoError(t, err)
	assert.True(t, result.Completed)
}

func TestImportAdvanceWhilePausedIsNoOp(t *testing.T) {
	svc, s := newImportService(t)
	ctx := context.TODO()

	rows := makeRows(150)
	session := createSession(t, svc, testUser, 150)

	_, err := svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{StartRow: 0, Rows: rows[:50]})
	require.NoError(t, err)
	_, err = svc.Pause(ctx, testUser, session.ID)
	require.NoError(t, err)
	result, err := svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{StartRow: 50, Rows: rows[50:100]})
	require.NoError(t, err)
	require.True(t, result.Paused)

	// a driver that missed the pause keeps pushing slices; nothing moves
	// until the session is resumed
	result, err = svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{StartRow: 100, Rows: rows[100:]})
	require.NoError(t, err)
	assert.True(t, result.Paused)
	assert.Equal(t, model.SessionStatusPaused, result.Status)
	assert.Equal(t, 100, result.RowsProcessed)
	assert.False(t, result.Completed)

	artists, err := s.Catalog().ListArtists(ctx, testUser.Organization)
	require.NoError(t, err)
	require.Len(t, artists, 1)
	releases, err := s.Catalog().ListReleases(ctx, artists[0].ID)
	require.NoError(t, err)
	assert.Len(t, releases, 100)

	_, err = svc.Resume(ctx, testUser, session.ID)
	require.NoError(t, err)
	result, err = svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{StartRow: 100, Rows: rows[100:]})
	require.NoError(t, err)
	assert.True(t, result.Completed)
}

func TestImportEmptySliceMidRun(t *testing.T) {
	svc, _ := newImportService(t)
	ctx := context.TODO()

	session := createSession(t, svc, testUser, 10)

	_, err := svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{StartRow: 0, Rows: nil})
	require.Error(t, err)
	_, ok := err.(*ErrInvalidSlice)
	assert.True(t, ok, "expected an invalid slice error, got %T", err)
}

func TestImportCancelFreezesCheckpoint(t *testing.T) {
	svc, _ := newImportService(t)
	ctx := context.TODO()

	rows := makeRows(1000)
	session := createSession(t, svc, testUser, 1000)

	for start := 0; start < 150; start += 50 {
		_, err := svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{StartRow: start, Rows: rows[start : start+50]})
		require.NoError(t, err)
	}

	cancelled, err := svc.Cancel(ctx, testUser, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, cancelled.Status)
	assert.Equal(t, 150, cancelled.RowsProcessed)

	// cancelling again is a no-op
	cancelled, err = svc.Cancel(ctx, testUser, session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, cancelled.Status)

	// a driver unaware of the cancellation gets a terminal no-op back
	result, err := svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{StartRow: 150, Rows: rows[150:200]})
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusCancelled, result.Status)
	assert.Equal(t, 150, result.RowsProcessed)
	assert.False(t, result.NeedsMore)

	progress, err := svc.GetProgress(ctx, testUser, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 150, progress.RowsProcessed)
	assert.Equal(t, 15, progress.Percentage)
}

func TestImportEmptyFileCompletes(t *testing.T) {
	svc, _ := newImportService(t)
	ctx := context.TODO()

	session := createSession(t, svc, testUser, 0)

	result, err := svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{StartRow: 0, Rows: nil})
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Equal(t, model.SessionStatusCompleted, result.Status)

	progress, err := svc.GetProgress(ctx, testUser, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, progress.Percentage)
}

func TestImportOwnershipChecks(t *testing.T) {
	svc, _ := newImportService(t)
	ctx := context.TODO()

	session := createSession(t, svc, testUser, 10)

	intruder := auth.User{Username: "intruder", Organization: "internal"}
	_, err := svc.GetProgress(ctx, intruder, session.ID)
	require.Error(t, err)
	_, ok := err.(*ErrSessionAccessForbidden)
	assert.True(t, ok, "expected a forbidden error, got %T", err)

	_, err = svc.GetProgress(ctx, testUser, uuid.New())
	require.Error(t, err)
	_, ok = err.(*ErrSessionNotFound)
	assert.True(t, ok, "expected a not found error, got %T", err)
}

func TestImportRetryFailedRows(t *testing.T) {
	svc, s := newImportService(t)
	ctx := context.TODO()

	rows := makeRows(4, 3)
	session := createSession(t, svc, testUser, 4)

	_, err := svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{StartRow: 0, Rows: rows})
	require.NoError(t, err)

	// a ledger entry whose underlying cause was transient: its raw row is
	// valid and translates cleanly on retry
	_, err = s.FailedRow().Create(ctx, model.FailedRow{
		SessionID:     session.ID,
		RowNumber:     2,
		RawRowData:    model.MakeJSONField(rows[1]),
		ErrorMessage:  "insert failed: connection reset",
		ErrorCategory: model.ErrorCategoryStorage,
	})
	require.NoError(t, err)

	result, err := svc.RetryFailedRows(ctx, testUser, session.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempted)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	// row 2 is resolved; row 3 failed again and its old entry was
	// superseded, so the ledger holds exactly one live entry for it
	failed, total, err := svc.ListFailedRows(ctx, testUser, session.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].RowNumber)

	stats, err := svc.GetStats(ctx, testUser, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFailed)
	assert.Equal(t, 3, stats.SuccessCount)

	// a second retry pass still attempts the row exactly once
	result, err = svc.RetryFailedRows(ctx, testUser, session.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempted)
	assert.Equal(t, 1, result.Failed)
}

func TestImportRetryBlockedWhileRunning(t *testing.T) {
	svc, _ := newImportService(t)
	ctx := context.TODO()

	session := createSession(t, svc, testUser, 10)

	_, err := svc.RetryFailedRows(ctx, testUser, session.ID, nil)
	require.Error(t, err)
	_, ok := err.(*ErrInvalidTransition)
	assert.True(t, ok, "expected an invalid transition error, got %T", err)
}

func TestImportActiveSessionLookup(t *testing.T) {
	svc, _ := newImportService(t)
	ctx := context.TODO()

	active, err := svc.GetActiveSessionForOwner(ctx, testUser)
	require.NoError(t, err)
	assert.Nil(t, active)

	session := createSession(t, svc, testUser, 10)

	active, err = svc.GetActiveSessionForOwner(ctx, testUser)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, session.ID, active.ID)

	other := auth.User{Username: "other", Organization: "internal"}
	active, err = svc.GetActiveSessionForOwner(ctx, other)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestImportDeleteSessionKeepsCatalog(t *testing.T) {
	svc, s := newImportService(t)
	ctx := context.TODO()

	rows := makeRows(4, 2)
	session := createSession(t, svc, testUser, 4)

	_, err := svc.AdvanceBatch(ctx, testUser, session.ID, SliceRows{StartRow: 0, Rows: rows})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSession(ctx, testUser, session.ID))

	_, err = svc.GetProgress(ctx, testUser, session.ID)
	require.Error(t, err)
	_, ok := err.(*ErrSessionNotFound)
	assert.True(t, ok)

	// imported entities survive the session record
	artists, err := s.Catalog().ListArtists(ctx, testUser.Organization)
	require.NoError(t, err)
	assert.Len(t, artists, 1)
}

func TestImportRejectsInvalidMapping(t *testing.T) {
	svc, _ := newImportService(t)

	_, err := svc.CreateSession(context.TODO(), testUser, SessionCreateForm{
		FileName:  "bad.csv",
		TotalRows: 1,
		Mapping: []model.ColumnMapping{
			{CSVColumn: "a", FieldType: model.FieldTypeSubmission, TargetField: strPtr(FieldArtistName)},
			{CSVColumn: "b", FieldType: model.FieldTypeSubmission, TargetField: strPtr(FieldArtistName)},
		},
	})
	require.Error(t, err)
	_, ok := err.(*ErrInvalidMapping)
	assert.True(t, ok, "expected an invalid mapping error, got %T", err)
}
