package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tracklane/catalog-importer/internal/store/model"
	"gorm.io/gorm"
)

type FailedRow interface {
	InitialMigration() error
	Create(ctx context.Context, row model.FailedRow) (*model.FailedRow, error)
	List(ctx context.Context, filter *FailedRowQueryFilter, limit, offset int) (model.FailedRowList, int, error)
	MarkResolved(ctx context.Context, sessionID uuid.UUID, rowNumber int) error
	Stats(ctx context.Context, sessionID uuid.UUID, sampleLimit int) (*model.FailureStats, error)
	DeleteBySession(ctx context.Context, sessionID uuid.UUID) error
}

type FailedRowStore struct {
	db *gorm.DB
}

// Make sure we conform to FailedRow interface
var _ FailedRow = (*FailedRowStore)(nil)

func NewFailedRowStore(db *gorm.DB) FailedRow {
	return &FailedRowStore{db: db}
}

func (s *FailedRowStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.FailedRow{})
}

func (s *FailedRowStore) Create(ctx context.Context, row model.FailedRow) (*model.FailedRow, error) {
	if result := s.getDB(ctx).Create(&row); result.Error != nil {
		return nil, fmt.Errorf("recording failed row: %w", result.Error)
	}
	return &row, nil
}

// List returns one page of the ledger plus the total count for the same
// filter. Ordering follows the source file.
func (s *FailedRowStore) List(ctx context.Context, filter *FailedRowQueryFilter, limit, offset int) (model.FailedRowList, int, error) {
	base := s.getDB(ctx).Model(&model.FailedRow{})
	if filter != nil {
		for _, fn := range filter.QueryFn {
			base = fn(base)
		}
	}

	var total int64
	if result := base.Session(&gorm.Session{}).Count(&total); result.Error != nil {
		return nil, 0, fmt.Errorf("counting failed rows: %w", result.Error)
	}

	var rows model.FailedRowList
	query := base.Session(&gorm.Session{}).Order("row_number")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if result := query.Find(&rows); result.Error != nil {
		return nil, 0, fmt.Errorf("listing failed rows: %w", result.Error)
	}
	return rows, int(total), nil
}

// MarkResolved flips the ledger entry out of the currently-failing view.
// The record itself is retained for audit.
func (s *FailedRowStore) MarkResolved(ctx context.Context, sessionID uuid.UUID, rowNumber int) error {
	now := time.Now()
	result := s.getDB(ctx).Model(&model.FailedRow{}).
		Where("session_id = ? AND row_number = ?", sessionID, rowNumber).
		Where("resolved IS NOT TRUE").
		Updates(map[string]any{"resolved": true, "resolved_at": now})
	if result.Error != nil {
		return fmt.Errorf("resolving failed row: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *FailedRowStore) Stats(ctx context.Context, sessionID uuid.UUID, sampleLimit int) (*model.FailureStats, error) {
	type categoryCount struct {
		ErrorCategory string
		Count         int
	}
	var counts []categoryCount
	result := s.getDB(ctx).Model(&model.FailedRow{}).
		Select("error_category, COUNT(*) as count").
		Where("session_id = ?", sessionID).
		Where("resolved IS NOT TRUE").
		Group("error_category").
		Find(&counts)
	if result.Error != nil {
		return nil, fmt.Errorf("aggregating failed rows: %w", result.Error)
	}

	stats := &model.FailureStats{ByCategory: make(map[string]int)}
	for _, c := range counts {
		stats.ByCategory[c.ErrorCategory] = c.Count
		stats.TotalFailed += c.Count
	}

	if sampleLimit > 0 {
		var samples []string
		result := s.getDB(ctx).Model(&model.FailedRow{}).
			Select("error_message").
			Where("session_id = ?", sessionID).
			Where("resolved IS NOT TRUE").
			Order("row_number").
			Limit(sampleLimit).
			Find(&samples)
		if result.Error != nil {
			return nil, fmt.Errorf("sampling failed rows: %w", result.Error)
		}
		stats.SampleErrors = samples
	}

	return stats, nil
}

func (s *FailedRowStore) DeleteBySession(ctx context.Context, sessionID uuid.UUID) error {
	result := s.getDB(ctx).Delete(&model.FailedRow{}, "session_id = ?", sessionID)
	return result.Error
}

func (s *FailedRowStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
