package output

import (
	"context"
	"encoding/json"

	"github.com/jobrunner/envextract/internal/graph"
)

// FileFormatCSV is the only table export format in use.
const FileFormatCSV = "CSV"

// TableExport describes a batch export of a feature collection.
type TableExport struct {
	Collection  *graph.Node // Feature collection to export
	Description string      // Export name, also the file name
	Folder      string      // Destination folder
	FileFormat  string      // FileFormatCSV
	Selectors   []string    // Columns to write, all when empty
}

// ComputeService defines the secondary port for the remote compute
// platform. Implementations evaluate graphs remotely; nothing is computed
// on the client.
type ComputeService interface {
	// Compute evaluates expr synchronously and returns its JSON value.
	Compute(ctx context.Context, expr *graph.Node) (json.RawMessage, error)

	// ExportTable starts a batch export and returns the remote task id.
	// The call returns once the task is accepted.
	ExportTable(ctx context.Context, export TableExport) (string, error)
}
