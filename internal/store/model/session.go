package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Import session statuses.
const (
	SessionStatusPending             = "pending"
	SessionStatusInProgress          = "in_progress"
	SessionStatusPaused              = "paused"
	SessionStatusCompleted           = "completed"
	SessionStatusCompletedWithErrors = "completed_with_errors"
	SessionStatusFailed              = "failed"
	SessionStatusCancelled           = "cancelled"
)

// NonTerminalStatuses are the statuses in which a session still owns the
// per-user active-import slot.
var NonTerminalStatuses = []string{
	SessionStatusPending,
	SessionStatusInProgress,
	SessionStatusPaused,
}

// Column mapping field types.
const (
	FieldTypeSubmission = "submission"
	FieldTypeSong       = "song"
	FieldTypeIgnore     = "ignore"
)

// ColumnMapping assigns one CSV column to a destination field. The mapping
// set is frozen into the session row as jsonb once processing starts.
type ColumnMapping struct {
	CSVColumn   string  `json:"csvColumn"`
	FieldType   string  `json:"fieldType"`
	TargetField *string `json:"targetField,omitempty"`
	SongIndex   *int    `json:"songIndex,omitempty"`
}

type ImportSession struct {
	ID            uuid.UUID `gorm:"primaryKey;"`
	Status        string    `gorm:"not null;type:VARCHAR(50);index:import_sessions_owner_status_idx,priority:3"`
	FileName      string
	FileSize      int64
	TotalRows     int                          `gorm:"not null"`
	RowsProcessed int                          `gorm:"not null;default:0"`
	Mapping       *JSONField[[]ColumnMapping]  `gorm:"type:jsonb"`
	CreatedBy     string                       `gorm:"not null;index:import_sessions_owner_status_idx,priority:2"`
	OrgID         string                       `gorm:"not null;index:import_sessions_owner_status_idx,priority:1"`
	PauseRequested bool                        `gorm:"not null;default:false"`
	Error         *string
	CreatedAt     time.Time `gorm:"not null;autoCreateTime"`
	UpdatedAt     *time.Time
}

type ImportSessionList []ImportSession

func (s ImportSession) String() string {
	val, _ := json.Marshal(s)
	return string(val)
}

// IsTerminal reports whether the session can never process another row.
func (s ImportSession) IsTerminal() bool {
	switch s.Status {
	case SessionStatusCompleted, SessionStatusCompletedWithErrors, SessionStatusFailed, SessionStatusCancelled:
		return true
	}
	return false
}

// MappingConfig returns the frozen column mapping set, nil when none was
// recorded.
func (s ImportSession) MappingConfig() []ColumnMapping {
	if s.Mapping == nil {
		return nil
	}
	return s.Mapping.Data
}
