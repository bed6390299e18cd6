package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tracklane/catalog-importer/internal/store/model"
	"gorm.io/gorm"
)

type ImportSession interface {
	InitialMigration() error
	Create(ctx context.Context, session model.ImportSession) (*model.ImportSession, error)
	Get(ctx context.Context, id uuid.UUID) (*model.ImportSession, error)
	GetActiveForOwner(ctx context.Context, username, orgID string) (*model.ImportSession, error)
	List(ctx context.Context, filter *SessionQueryFilter) (model.ImportSessionList, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from []string, to string, errMsg *string) (*model.ImportSession, error)
	SetPauseRequested(ctx context.Context, id uuid.UUID, requested bool) error
	AdvanceCheckpoint(ctx context.Context, id uuid.UUID, fromRows, toRows int, newStatus string) (*model.ImportSession, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type ImportSessionStore struct {
	db *gorm.DB
}

// Make sure we conform to ImportSession interface
var _ ImportSession = (*ImportSessionStore)(nil)

func NewImportSessionStore(db *gorm.DB) ImportSession {
	return &ImportSessionStore{db: db}
}

func (s *ImportSessionStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.ImportSession{})
}

// Create inserts a new session, enforcing the one-active-session-per-owner
// invariant inside a single transaction. A second concurrent creator either
// observes the first session or collides on the insert; it never ends up
// with two live imports for the same user.
func (s *ImportSessionStore) Create(ctx context.Context, session model.ImportSession) (*model.ImportSession, error) {
	err := s.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		result := tx.Model(&model.ImportSession{}).
			Where("created_by = ? AND org_id = ?", session.CreatedBy, session.OrgID).
			Where("status IN ?", model.NonTerminalStatuses).
			Count(&count)
		if result.Error != nil {
			return fmt.Errorf("counting active sessions: %w", result.Error)
		}
		if count > 0 {
			return ErrDuplicateKey
		}
		if result := tx.Create(&session); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("creating session: %w", result.Error)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *ImportSessionStore) Get(ctx context.Context, id uuid.UUID) (*model.ImportSession, error) {
	var session model.ImportSession
	result := s.getDB(ctx).First(&session, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying session: %w", result.Error)
	}
	return &session, nil
}

// GetActiveForOwner is an indexed query, not in-memory state, so "find my
// active session" stays correct across process restarts.
func (s *ImportSessionStore) GetActiveForOwner(ctx context.Context, username, orgID string) (*model.ImportSession, error) {
	var session model.ImportSession
	result := s.getDB(ctx).
		Where("created_by = ? AND org_id = ?", username, orgID).
		Where("status IN ?", model.NonTerminalStatuses).
		Order("created_at DESC").
		First(&session)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying active session: %w", result.Error)
	}
	return &session, nil
}

func (s *ImportSessionStore) List(ctx context.Context, filter *SessionQueryFilter) (model.ImportSessionList, error) {
	var sessions model.ImportSessionList
	tx := s.getDB(ctx)
	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}
	result := tx.Order("created_at").Find(&sessions)
	if result.Error != nil {
		return nil, result.Error
	}
	return sessions, nil
}

// UpdateStatus transitions the session from one of the expected source
// states. The guard rejects writers that observed a stale status.
func (s *ImportSessionStore) UpdateStatus(ctx context.Context, id uuid.UUID, from []string, to string, errMsg *string) (*model.ImportSession, error) {
	updates := map[string]any{"status": to, "updated_at": time.Now()}
	if errMsg != nil {
		updates["error"] = *errMsg
	}

	tx := s.getDB(ctx).Model(&model.ImportSession{}).Where("id = ?", id)
	if len(from) > 0 {
		tx = tx.Where("status IN ?", from)
	}
	result := tx.Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("updating session status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrPreconditionFailed
	}
	return s.Get(ctx, id)
}

func (s *ImportSessionStore) SetPauseRequested(ctx context.Context, id uuid.UUID, requested bool) error {
	result := s.getDB(ctx).Model(&model.ImportSession{}).
		Where("id = ?", id).
		Updates(map[string]any{"pause_requested": requested, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("updating pause flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// AdvanceCheckpoint commits one processed slice. The update is keyed on the
// previously observed checkpoint: a retried call for an already committed
// slice affects zero rows and surfaces ErrStaleCheckpoint instead of
// double-applying the slice. The pause flag is consumed by the same write
// only when the commit honors it: a pause that lands after the caller read
// the flag stays set and takes effect at the next boundary.
func (s *ImportSessionStore) AdvanceCheckpoint(ctx context.Context, id uuid.UUID, fromRows, toRows int, newStatus string) (*model.ImportSession, error) {
	updates := map[string]any{
		"rows_processed": toRows,
		"status":         newStatus,
		"updated_at":     time.Now(),
	}
	if newStatus == model.SessionStatusPaused {
		updates["pause_requested"] = false
	}
	result := s.getDB(ctx).Model(&model.ImportSession{}).
		Where("id = ? AND rows_processed = ?", id, fromRows).
		Where("status IN ?", model.NonTerminalStatuses).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("advancing checkpoint: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrStaleCheckpoint
	}
	return s.Get(ctx, id)
}

func (s *ImportSessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.getDB(ctx).Delete(&model.ImportSession{}, "id = ?", id)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return fmt.Errorf("deleting session: %w", result.Error)
	}
	return nil
}

func (s *ImportSessionStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
