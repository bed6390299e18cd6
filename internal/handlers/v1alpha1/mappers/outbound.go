package mappers

import (
	api "github.com/tracklane/catalog-importer/api/v1alpha1"
	"github.com/tracklane/catalog-importer/internal/service"
	"github.com/tracklane/catalog-importer/internal/store/model"
)

func SessionToApi(s *model.ImportSession) api.Session {
	out := api.Session{
		Id:            s.ID,
		Status:        api.SessionStatus(s.Status),
		FileName:      s.FileName,
		TotalRows:     s.TotalRows,
		RowsProcessed: s.RowsProcessed,
		Mapping:       MappingToApi(s.MappingConfig()),
		CreatedBy:     s.CreatedBy,
		Error:         s.Error,
		CreatedAt:     s.CreatedAt,
	}
	if s.UpdatedAt != nil {
		out.UpdatedAt = *s.UpdatedAt
	}
	return out
}

func MappingToApi(mappings []model.ColumnMapping) []api.ColumnMapping {
	out := make([]api.ColumnMapping, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, api.ColumnMapping{
			CSVColumn:   m.CSVColumn,
			FieldType:   api.FieldType(m.FieldType),
			TargetField: m.TargetField,
			SongIndex:   m.SongIndex,
		})
	}
	return out
}

func BatchResultToApi(r *service.BatchResult) api.BatchResult {
	return api.BatchResult{
		RowsProcessed: r.RowsProcessed,
		TotalRows:     r.TotalRows,
		Completed:     r.Completed,
		NeedsMore:     r.NeedsMore,
		Paused:        r.Paused,
		Status:        api.SessionStatus(r.Status),
	}
}

func ProgressToApi(p *service.ProgressSnapshot) api.ProgressSnapshot {
	return api.ProgressSnapshot{
		Status:        api.SessionStatus(p.Status),
		RowsProcessed: p.RowsProcessed,
		TotalRows:     p.TotalRows,
		Percentage:    p.Percentage,
	}
}

func StatsToApi(s *service.FailureStats) api.FailureStats {
	return api.FailureStats{
		TotalFailed:   s.TotalFailed,
		ByCategory:    s.ByCategory,
		SampleErrors:  s.SampleErrors,
		SuccessCount:  s.SuccessCount,
		SuccessRate:   s.SuccessRate,
		RowsProcessed: s.RowsProcessed,
	}
}

func FailedRowsToApi(rows model.FailedRowList, total int) api.FailedRowList {
	items := make([]api.FailedRow, 0, len(rows))
	for _, r := range rows {
		items = append(items, api.FailedRow{
			RowNumber:     r.RowNumber,
			RawRowData:    r.RawRow(),
			ErrorMessage:  r.ErrorMessage,
			ErrorCategory: r.ErrorCategory,
			CreatedAt:     r.CreatedAt,
		})
	}
	return api.FailedRowList{Items: items, Total: total}
}

func RetryResultToApi(r *service.RetryResult) api.RetryResult {
	return api.RetryResult{
		Attempted: r.Attempted,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
	}
}
