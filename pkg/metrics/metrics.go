package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	catalogImporter = "catalog_importer"

	importedRowsTotal   = "imported_rows_total"
	importSessionsTotal = "import_sessions_total"

	rowOutcomeLabel = "outcome"
)

// Row outcomes.
const (
	RowOutcomeSuccess = "success"
	RowOutcomeFailed  = "failed"
)

var importedRowsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: catalogImporter,
		Name:      importedRowsTotal,
		Help:      "number of CSV rows processed by the import pipeline, by outcome",
	},
	[]string{rowOutcomeLabel},
)

var importSessionsTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: catalogImporter,
		Name:      importSessionsTotal,
		Help:      "number of import sessions created",
	},
)

func IncreaseImportedRowsTotal(outcome string) {
	importedRowsTotalMetric.With(prometheus.Labels{rowOutcomeLabel: outcome}).Inc()
}

func IncreaseImportSessionsTotal() {
	importSessionsTotalMetric.Inc()
}

func init() {
	prometheus.MustRegister(importedRowsTotalMetric)
	prometheus.MustRegister(importSessionsTotalMetric)
}
