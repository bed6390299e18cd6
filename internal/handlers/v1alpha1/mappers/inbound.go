package mappers

import (
	api "github.com/tracklane/catalog-importer/api/v1alpha1"
	"github.com/tracklane/catalog-importer/internal/service"
	"github.com/tracklane/catalog-importer/internal/store/model"
)

func MappingFromApi(mappings []api.ColumnMapping) []model.ColumnMapping {
	out := make([]model.ColumnMapping, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, model.ColumnMapping{
			CSVColumn:   m.CSVColumn,
			FieldType:   string(m.FieldType),
			TargetField: m.TargetField,
			SongIndex:   m.SongIndex,
		})
	}
	return out
}

func SessionCreateFormFromApi(req api.SessionCreateRequest) service.SessionCreateForm {
	return service.SessionCreateForm{
		FileName:  req.FileName,
		FileSize:  req.FileSize,
		TotalRows: req.TotalRows,
		Mapping:   MappingFromApi(req.Mapping),
	}
}

func SliceFromApi(req api.AdvanceBatchRequest) service.SliceRows {
	return service.SliceRows{
		StartRow: req.StartRow,
		Rows:     req.Rows,
	}
}
