package pipeline

import "github.com/jobrunner/envextract/internal/graph"

// ShapeExport drops rows whose statistic is null and strips geometry.
func ShapeExport(rows graph.Features, column string) graph.Features {
	return rows.Filter(graph.NotNull(column)).Select([]string{".*"}, false)
}
