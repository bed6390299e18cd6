package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Failure categories recorded in the ledger.
const (
	ErrorCategoryValidation = "validation"
	ErrorCategoryDuplicate  = "duplicate"
	ErrorCategoryStorage    = "storage"
	ErrorCategoryUnknown    = "unknown"
)

// FailedRow is one row-scoped failure. Records are append-only: a successful
// retry marks the record resolved but never deletes it.
type FailedRow struct {
	ID            uint                  `gorm:"primaryKey;autoIncrement"`
	SessionID     uuid.UUID             `gorm:"not null;index:failed_rows_session_idx"`
	RowNumber     int                   `gorm:"not null"`
	RawRowData    *JSONField[[]string]  `gorm:"type:jsonb"`
	ErrorMessage  string                `gorm:"not null"`
	ErrorCategory string                `gorm:"not null;type:VARCHAR(50)"`
	Resolved      bool                  `gorm:"not null;default:false"`
	ResolvedAt    *time.Time
	CreatedAt     time.Time `gorm:"not null;autoCreateTime"`
}

type FailedRowList []FailedRow

func (f FailedRow) String() string {
	val, _ := json.Marshal(f)
	return string(val)
}

// RawRow returns the original source values, nil when not retained.
func (f FailedRow) RawRow() []string {
	if f.RawRowData == nil {
		return nil
	}
	return f.RawRowData.Data
}

// FailureStats is the aggregate projection computed from the ledger.
type FailureStats struct {
	TotalFailed  int
	ByCategory   map[string]int
	SampleErrors []string
}
