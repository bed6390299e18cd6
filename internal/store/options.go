package store

import (
	"github.com/google/uuid"
	"github.com/tracklane/catalog-importer/internal/store/model"
	"gorm.io/gorm"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type SessionQueryFilter BaseQuerier

func NewSessionQueryFilter() *SessionQueryFilter {
	return &SessionQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *SessionQueryFilter) ByOwner(username, orgID string) *SessionQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("created_by = ? AND org_id = ?", username, orgID)
	})
	return qf
}

func (qf *SessionQueryFilter) ByNonTerminal() *SessionQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status IN ?", model.NonTerminalStatuses)
	})
	return qf
}

func (qf *SessionQueryFilter) ByStatus(status string) *SessionQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ?", status)
	})
	return qf
}

type FailedRowQueryFilter BaseQuerier

func NewFailedRowQueryFilter() *FailedRowQueryFilter {
	return &FailedRowQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *FailedRowQueryFilter) BySessionID(sessionID uuid.UUID) *FailedRowQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("session_id = ?", sessionID)
	})
	return qf
}

func (qf *FailedRowQueryFilter) ByUnresolved() *FailedRowQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("resolved IS NOT TRUE")
	})
	return qf
}

// ByRowNumbers restricts the ledger to the given source rows. An empty
// selection means no restriction.
func (qf *FailedRowQueryFilter) ByRowNumbers(rowNumbers []int) *FailedRowQueryFilter {
	if len(rowNumbers) == 0 {
		return qf
	}
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("row_number IN ?", rowNumbers)
	})
	return qf
}
