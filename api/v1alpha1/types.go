// Package v1alpha1 holds the wire types of the import API.
package v1alpha1

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusPending             SessionStatus = "pending"
	SessionStatusInProgress          SessionStatus = "in_progress"
	SessionStatusPaused              SessionStatus = "paused"
	SessionStatusCompleted           SessionStatus = "completed"
	SessionStatusCompletedWithErrors SessionStatus = "completed_with_errors"
	SessionStatusFailed              SessionStatus = "failed"
	SessionStatusCancelled           SessionStatus = "cancelled"
)

type FieldType string

const (
	FieldTypeSubmission FieldType = "submission"
	FieldTypeSong       FieldType = "song"
	FieldTypeIgnore     FieldType = "ignore"
)

type ColumnMapping struct {
	CSVColumn   string    `json:"csvColumn"`
	FieldType   FieldType `json:"fieldType" validate:"oneof=submission song ignore"`
	TargetField *string   `json:"targetField,omitempty"`
	SongIndex   *int      `json:"songIndex,omitempty" validate:"omitempty,gt=0"`
}

type SessionCreateRequest struct {
	FileName  string          `json:"fileName"`
	FileSize  int64           `json:"fileSize,omitempty"`
	TotalRows int             `json:"totalRows" validate:"gte=0"`
	Mapping   []ColumnMapping `json:"mapping" validate:"required,dive"`
}

type Session struct {
	Id            uuid.UUID       `json:"id"`
	Status        SessionStatus   `json:"status"`
	FileName      string          `json:"fileName,omitempty"`
	TotalRows     int             `json:"totalRows"`
	RowsProcessed int             `json:"rowsProcessed"`
	Mapping       []ColumnMapping `json:"mapping,omitempty"`
	CreatedBy     string          `json:"createdBy,omitempty"`
	Error         *string         `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type PreviewMappingRequest struct {
	Header     []string   `json:"header" validate:"required"`
	SampleRows [][]string `json:"sampleRows,omitempty"`
}

// AdvanceBatchRequest carries the source rows for one slice. StartRow is the
// absolute, zero-based offset of the first row in Rows and must match the
// session's committed checkpoint.
type AdvanceBatchRequest struct {
	StartRow int        `json:"startRow" validate:"gte=0"`
	Rows     [][]string `json:"rows"`
}

type BatchResult struct {
	RowsProcessed int           `json:"rowsProcessed"`
	TotalRows     int           `json:"totalRows"`
	Completed     bool          `json:"completed"`
	NeedsMore     bool          `json:"needsMore"`
	Paused        bool          `json:"paused"`
	Status        SessionStatus `json:"status"`
}

type ProgressSnapshot struct {
	Status        SessionStatus `json:"status"`
	RowsProcessed int           `json:"rowsProcessed"`
	TotalRows     int           `json:"totalRows"`
	Percentage    int           `json:"percentage"`
}

type FailureStats struct {
	TotalFailed   int            `json:"totalFailed"`
	ByCategory    map[string]int `json:"errorCountsByCategory"`
	SampleErrors  []string       `json:"sampleErrors"`
	SuccessCount  int            `json:"successCount"`
	SuccessRate   string         `json:"successRate"`
	RowsProcessed int            `json:"rowsProcessed"`
}

type FailedRow struct {
	RowNumber     int       `json:"rowNumber"`
	RawRowData    []string  `json:"rawRowData"`
	ErrorMessage  string    `json:"errorMessage"`
	ErrorCategory string    `json:"errorCategory"`
	CreatedAt     time.Time `json:"createdAt"`
}

type FailedRowList struct {
	Items []FailedRow `json:"items"`
	Total int         `json:"total"`
}

// RetryRequest selects the failed rows to retry. An empty selection retries
// every currently-failing row.
type RetryRequest struct {
	RowNumbers []int `json:"rowNumbers,omitempty"`
}

type RetryResult struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type Error struct {
	Message   string  `json:"error"`
	RequestId *string `json:"request_id,omitempty"`
}
