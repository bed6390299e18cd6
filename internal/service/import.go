package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tracklane/catalog-importer/internal/auth"
	"github.com/tracklane/catalog-importer/internal/config"
	"github.com/tracklane/catalog-importer/internal/store"
	"github.com/tracklane/catalog-importer/internal/store/model"
	"github.com/tracklane/catalog-importer/pkg/metrics"
	"go.uber.org/zap"
)

// SessionCreateForm is the inbound shape for a new import session.
type SessionCreateForm struct {
	FileName  string
	FileSize  int64
	TotalRows int
	Mapping   []model.ColumnMapping
}

// SliceRows carries the source rows for one advance call. StartRow is the
// zero-based offset of Rows[0] within the source file's data rows and must
// equal the session's committed checkpoint.
type SliceRows struct {
	StartRow int
	Rows     [][]string
}

// BatchResult reports the session state after one advance call.
type BatchResult struct {
	RowsProcessed int
	TotalRows     int
	Completed     bool
	NeedsMore     bool
	Paused        bool
	Status        string
}

// ProgressSnapshot is the read-only projection served to polling clients.
// It always reflects the last committed checkpoint.
type ProgressSnapshot struct {
	Status        string
	RowsProcessed int
	TotalRows     int
	Percentage    int
}

// FailureStats is the aggregate failure view for one session.
type FailureStats struct {
	TotalFailed   int
	ByCategory    map[string]int
	SampleErrors  []string
	SuccessCount  int
	SuccessRate   string
	RowsProcessed int
}

// RetryResult summarizes one operator-triggered retry pass.
type RetryResult struct {
	Attempted int
	Succeeded int
	Failed    int
}

// ImportService drives the resumable CSV import pipeline. It owns no
// background workers: every batch runs synchronously inside one bounded
// AdvanceBatch call and all progress lives in the session row, so the
// import survives any number of short-lived driver invocations.
type ImportService struct {
	store           store.Store
	translator      *Translator
	batchSize       int
	maxSampleErrors int
	logger          *zap.SugaredLogger
}

func NewImportService(s store.Store, cfg *config.Config) *ImportService {
	return &ImportService{
		store:           s,
		translator:      NewTranslator(s, cfg.Import.DefaultReleaseType),
		batchSize:       cfg.Import.BatchSize,
		maxSampleErrors: cfg.Import.MaxSampleErrors,
		logger:          zap.S().Named("import_service"),
	}
}

// CreateSession registers a new import in the pending state. At most one
// non-terminal session may exist per owner; a second attempt is rejected
// without persisting anything.
func (s *ImportService) CreateSession(ctx context.Context, user auth.User, form SessionCreateForm) (*model.ImportSession, error) {
	if form.TotalRows < 0 {
		return nil, NewErrInvalidMapping("total rows cannot be negative")
	}
	if err := ValidateMapping(form.Mapping); err != nil {
		return nil, err
	}

	session := model.ImportSession{
		ID:        uuid.New(),
		Status:    model.SessionStatusPending,
		FileName:  form.FileName,
		FileSize:  form.FileSize,
		TotalRows: form.TotalRows,
		Mapping:   model.MakeJSONField(form.Mapping),
		CreatedBy: user.Username,
		OrgID:     user.Organization,
	}

	created, err := s.store.ImportSession().Create(ctx, session)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, NewErrSessionConflict(user.Username)
		}
		return nil, fmt.Errorf("failed to create import session: %w", err)
	}

	s.logger.Infow("import session created",
		"session_id", created.ID,
		"total_rows", created.TotalRows,
		"file_name", created.FileName,
		"user", user.Username,
	)
	metrics.IncreaseImportSessionsTotal()
	return created, nil
}

// PreviewMapping returns the advisory default mapping for a header row.
func (s *ImportService) PreviewMapping(header []string, sampleRows [][]string) []model.ColumnMapping {
	return PreviewMapping(header, sampleRows)
}

// AdvanceBatch processes one bounded slice of rows and commits the new
// checkpoint with a single compare-and-set write. Invoking it again with an
// already committed slice never double-processes a row.
func (s *ImportService) AdvanceBatch(ctx context.Context, user auth.User, sessionID uuid.UUID, slice SliceRows) (*BatchResult, error) {
	session, err := s.getOwnedSession(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}

	// Terminal sessions, including ones cancelled between invocations,
	// make the call a no-op. So do paused ones: a paused session only
	// moves again through Resume.
	if session.IsTerminal() || session.Status == model.SessionStatusPaused {
		return s.batchResult(session), nil
	}

	if session.Status == model.SessionStatusPending {
		session, err = s.markInProgress(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session.IsTerminal() {
			return s.batchResult(session), nil
		}
	}

	checkpoint := session.RowsProcessed
	if slice.StartRow != checkpoint {
		return nil, NewErrStaleCheckpoint(sessionID, slice.StartRow, checkpoint)
	}

	remaining := session.TotalRows - checkpoint
	batch := s.batchSize
	if remaining < batch {
		batch = remaining
	}
	if len(slice.Rows) < batch {
		batch = len(slice.Rows)
	}
	if batch < 0 {
		batch = 0
	}
	if batch == 0 && remaining > 0 {
		return nil, NewErrInvalidSlice(sessionID, checkpoint)
	}

	mapping := session.MappingConfig()
	failures := 0
	for i := 0; i < batch; i++ {
		rowNumber := checkpoint + i + 1
		_, err := s.translator.Translate(ctx, user, rowNumber, slice.Rows[i], mapping)
		if err != nil {
			var rowErr *RowError
			if !errors.As(err, &rowErr) {
				// Session-scoped failure: record it and halt for good.
				return nil, s.failSession(ctx, sessionID, err)
			}
			if ferr := s.recordRowFailure(ctx, sessionID, rowErr, slice.Rows[i]); ferr != nil {
				return nil, s.failSession(ctx, sessionID, ferr)
			}
			failures++
			metrics.IncreaseImportedRowsTotal(metrics.RowOutcomeFailed)
			continue
		}
		metrics.IncreaseImportedRowsTotal(metrics.RowOutcomeSuccess)
	}

	newCheckpoint := checkpoint + batch
	newStatus, err := s.nextStatus(ctx, sessionID, newCheckpoint, session.TotalRows)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.ImportSession().AdvanceCheckpoint(ctx, sessionID, checkpoint, newCheckpoint, newStatus)
	if err != nil {
		if errors.Is(err, store.ErrStaleCheckpoint) {
			// Either a duplicate advance won the race or the session
			// was cancelled under us. Both resolve through the
			// committed state.
			current, gerr := s.store.ImportSession().Get(ctx, sessionID)
			if gerr != nil {
				return nil, gerr
			}
			if current.IsTerminal() {
				return s.batchResult(current), nil
			}
			return nil, NewErrStaleCheckpoint(sessionID, checkpoint, current.RowsProcessed)
		}
		return nil, fmt.Errorf("failed to commit checkpoint: %w", err)
	}

	s.logger.Debugw("batch advanced",
		"session_id", sessionID,
		"rows_processed", updated.RowsProcessed,
		"total_rows", updated.TotalRows,
		"batch_failures", failures,
		"status", updated.Status,
	)
	return s.batchResult(updated), nil
}

// nextStatus decides the state committed together with the checkpoint:
// completion wins over a pending pause, the pause flag wins over staying
// in progress.
func (s *ImportService) nextStatus(ctx context.Context, sessionID uuid.UUID, newCheckpoint, totalRows int) (string, error) {
	if newCheckpoint >= totalRows {
		stats, err := s.store.FailedRow().Stats(ctx, sessionID, 0)
		if err != nil {
			return "", fmt.Errorf("failed to read failure ledger: %w", err)
		}
		if stats.TotalFailed > 0 {
			return model.SessionStatusCompletedWithErrors, nil
		}
		return model.SessionStatusCompleted, nil
	}

	// Re-read for the pause flag set while this slice was running.
	current, err := s.store.ImportSession().Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if current.PauseRequested {
		return model.SessionStatusPaused, nil
	}
	return model.SessionStatusInProgress, nil
}

// Pause requests a cooperative pause. The transition is applied at the next
// batch boundary, never mid-row. Pausing an already paused session is a
// no-op.
func (s *ImportService) Pause(ctx context.Context, user auth.User, sessionID uuid.UUID) (*model.ImportSession, error) {
	session, err := s.getOwnedSession(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case model.SessionStatusPaused:
		return session, nil
	case model.SessionStatusInProgress:
		if err := s.store.ImportSession().SetPauseRequested(ctx, sessionID, true); err != nil {
			return nil, err
		}
		return s.store.ImportSession().Get(ctx, sessionID)
	default:
		return nil, NewErrInvalidTransition(sessionID, session.Status, model.SessionStatusPaused)
	}
}

// Resume clears the pause request and returns the session to in_progress.
// Resuming a session that is already in progress is a no-op.
func (s *ImportService) Resume(ctx context.Context, user auth.User, sessionID uuid.UUID) (*model.ImportSession, error) {
	session, err := s.getOwnedSession(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case model.SessionStatusInProgress:
		if session.PauseRequested {
			if err := s.store.ImportSession().SetPauseRequested(ctx, sessionID, false); err != nil {
				return nil, err
			}
			return s.store.ImportSession().Get(ctx, sessionID)
		}
		return session, nil
	case model.SessionStatusPaused:
		if _, err := s.store.ImportSession().UpdateStatus(ctx, sessionID, []string{model.SessionStatusPaused}, model.SessionStatusInProgress, nil); err != nil {
			if errors.Is(err, store.ErrPreconditionFailed) {
				return s.store.ImportSession().Get(ctx, sessionID)
			}
			return nil, err
		}
		if err := s.store.ImportSession().SetPauseRequested(ctx, sessionID, false); err != nil {
			return nil, err
		}
		return s.store.ImportSession().Get(ctx, sessionID)
	default:
		return nil, NewErrInvalidTransition(sessionID, session.Status, model.SessionStatusInProgress)
	}
}

// Cancel terminally stops the session. Subsequent advance calls become
// no-ops; the checkpoint stays frozen at its last committed value.
func (s *ImportService) Cancel(ctx context.Context, user auth.User, sessionID uuid.UUID) (*model.ImportSession, error) {
	session, err := s.getOwnedSession(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status == model.SessionStatusCancelled {
		return session, nil
	}
	if session.IsTerminal() {
		return nil, NewErrInvalidTransition(sessionID, session.Status, model.SessionStatusCancelled)
	}

	updated, err := s.store.ImportSession().UpdateStatus(ctx, sessionID, model.NonTerminalStatuses, model.SessionStatusCancelled, nil)
	if err != nil {
		if errors.Is(err, store.ErrPreconditionFailed) {
			current, gerr := s.store.ImportSession().Get(ctx, sessionID)
			if gerr != nil {
				return nil, gerr
			}
			if current.Status == model.SessionStatusCancelled {
				return current, nil
			}
			return nil, NewErrInvalidTransition(sessionID, current.Status, model.SessionStatusCancelled)
		}
		return nil, err
	}

	s.logger.Infow("import session cancelled", "session_id", sessionID, "rows_processed", updated.RowsProcessed)
	return updated, nil
}

// GetProgress serves the committed checkpoint, never an in-flight one.
func (s *ImportService) GetProgress(ctx context.Context, user auth.User, sessionID uuid.UUID) (*ProgressSnapshot, error) {
	session, err := s.getOwnedSession(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}

	percentage := 0
	if session.TotalRows > 0 {
		percentage = 100 * session.RowsProcessed / session.TotalRows
	}
	return &ProgressSnapshot{
		Status:        session.Status,
		RowsProcessed: session.RowsProcessed,
		TotalRows:     session.TotalRows,
		Percentage:    percentage,
	}, nil
}

func (s *ImportService) GetStats(ctx context.Context, user auth.User, sessionID uuid.UUID) (*FailureStats, error) {
	session, err := s.getOwnedSession(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}

	ledger, err := s.store.FailedRow().Stats(ctx, sessionID, s.maxSampleErrors)
	if err != nil {
		return nil, fmt.Errorf("failed to read failure ledger: %w", err)
	}

	stats := &FailureStats{
		TotalFailed:   ledger.TotalFailed,
		ByCategory:    ledger.ByCategory,
		SampleErrors:  ledger.SampleErrors,
		RowsProcessed: session.RowsProcessed,
		SuccessRate:   "0.0",
	}
	stats.SuccessCount = session.RowsProcessed - ledger.TotalFailed
	if stats.SuccessCount < 0 {
		stats.SuccessCount = 0
	}
	if session.RowsProcessed > 0 {
		stats.SuccessRate = fmt.Sprintf("%.1f", 100*float64(stats.SuccessCount)/float64(session.RowsProcessed))
	}
	return stats, nil
}

// ListFailedRows pages through the currently-failing view of the ledger.
func (s *ImportService) ListFailedRows(ctx context.Context, user auth.User, sessionID uuid.UUID, limit, offset int) (model.FailedRowList, int, error) {
	if _, err := s.getOwnedSession(ctx, user, sessionID); err != nil {
		return nil, 0, err
	}

	filter := store.NewFailedRowQueryFilter().BySessionID(sessionID).ByUnresolved()
	return s.store.FailedRow().List(ctx, filter, limit, offset)
}

// RetryFailedRows re-runs the translator against the stored raw rows using
// the session's original frozen mapping. Each outcome is recorded again: a
// success resolves the ledger entry, a repeat failure supersedes it with a
// fresh one so the row is never counted twice.
func (s *ImportService) RetryFailedRows(ctx context.Context, user auth.User, sessionID uuid.UUID, rowNumbers []int) (*RetryResult, error) {
	session, err := s.getOwnedSession(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}
	switch session.Status {
	case model.SessionStatusPending, model.SessionStatusInProgress:
		return nil, NewErrInvalidTransition(sessionID, session.Status, "retry")
	}

	filter := store.NewFailedRowQueryFilter().
		BySessionID(sessionID).
		ByUnresolved().
		ByRowNumbers(rowNumbers)
	rows, _, err := s.store.FailedRow().List(ctx, filter, 0, 0)
	if err != nil {
		return nil, err
	}

	mapping := session.MappingConfig()
	result := &RetryResult{}
	for _, failed := range rows {
		raw := failed.RawRow()
		if raw == nil {
			continue
		}
		result.Attempted++

		_, terr := s.translator.Translate(ctx, user, failed.RowNumber, raw, mapping)
		if terr != nil {
			var rowErr *RowError
			if !errors.As(terr, &rowErr) {
				return nil, terr
			}
			// Retire the old entry before appending the new one, so the
			// ledger keeps exactly one unresolved entry per failing row.
			if err := s.store.FailedRow().MarkResolved(ctx, sessionID, failed.RowNumber); err != nil {
				return nil, err
			}
			if ferr := s.recordRowFailure(ctx, sessionID, rowErr, raw); ferr != nil {
				return nil, ferr
			}
			result.Failed++
			continue
		}

		if err := s.store.FailedRow().MarkResolved(ctx, sessionID, failed.RowNumber); err != nil {
			return nil, err
		}
		result.Succeeded++
	}

	s.logger.Infow("retry pass finished",
		"session_id", sessionID,
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	return result, nil
}

// GetActiveSessionForOwner finds the owner's non-terminal session, if any.
func (s *ImportService) GetActiveSessionForOwner(ctx context.Context, user auth.User) (*model.ImportSession, error) {
	session, err := s.store.ImportSession().GetActiveForOwner(ctx, user.Username, user.Organization)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return session, nil
}

// DeleteSession removes the session record and its ledger. Catalog entities
// produced by the import are left untouched.
func (s *ImportService) DeleteSession(ctx context.Context, user auth.User, sessionID uuid.UUID) error {
	if _, err := s.getOwnedSession(ctx, user, sessionID); err != nil {
		return err
	}
	if err := s.store.FailedRow().DeleteBySession(ctx, sessionID); err != nil {
		return err
	}
	return s.store.ImportSession().Delete(ctx, sessionID)
}

func (s *ImportService) getOwnedSession(ctx context.Context, user auth.User, sessionID uuid.UUID) (*model.ImportSession, error) {
	session, err := s.store.ImportSession().Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrSessionNotFound(sessionID)
		}
		return nil, err
	}
	if session.CreatedBy != user.Username || session.OrgID != user.Organization {
		return nil, NewErrSessionAccessForbidden(sessionID, user.Username)
	}
	return session, nil
}

func (s *ImportService) markInProgress(ctx context.Context, sessionID uuid.UUID) (*model.ImportSession, error) {
	updated, err := s.store.ImportSession().UpdateStatus(ctx, sessionID, []string{model.SessionStatusPending}, model.SessionStatusInProgress, nil)
	if err != nil {
		if errors.Is(err, store.ErrPreconditionFailed) {
			return s.store.ImportSession().Get(ctx, sessionID)
		}
		return nil, err
	}
	return updated, nil
}

func (s *ImportService) recordRowFailure(ctx context.Context, sessionID uuid.UUID, rowErr *RowError, raw []string) error {
	_, err := s.store.FailedRow().Create(ctx, model.FailedRow{
		SessionID:     sessionID,
		RowNumber:     rowErr.RowNumber,
		RawRowData:    model.MakeJSONField(raw),
		ErrorMessage:  rowErr.Message,
		ErrorCategory: rowErr.Category,
	})
	if err != nil {
		return fmt.Errorf("failed to record row failure: %w", err)
	}
	return nil
}

func (s *ImportService) failSession(ctx context.Context, sessionID uuid.UUID, cause error) error {
	msg := cause.Error()
	if _, err := s.store.ImportSession().UpdateStatus(ctx, sessionID, model.NonTerminalStatuses, model.SessionStatusFailed, &msg); err != nil {
		s.logger.Errorw("failed to mark session as failed", "session_id", sessionID, "error", err)
	}
	s.logger.Errorw("import session failed", "session_id", sessionID, "error", msg)
	return NewErrSessionFailed(sessionID, cause)
}

func (s *ImportService) batchResult(session *model.ImportSession) *BatchResult {
	completed := session.Status == model.SessionStatusCompleted ||
		session.Status == model.SessionStatusCompletedWithErrors
	return &BatchResult{
		RowsProcessed: session.RowsProcessed,
		TotalRows:     session.TotalRows,
		Completed:     completed,
		NeedsMore:     session.Status == model.SessionStatusInProgress && session.RowsProcessed < session.TotalRows,
		Paused:        session.Status == model.SessionStatusPaused,
		Status:        session.Status,
	}
}
