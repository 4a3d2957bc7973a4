// Package input defines the primary/driving ports of the application.
package input

import (
	"context"

	"github.com/jobrunner/envextract/internal/domain"
)

// Extractor defines the primary port for extraction requests.
type Extractor interface {
	// Extract builds and submits one export per combination of the request.
	// On failure the tasks submitted before the error are still returned.
	Extract(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResult, error)

	// Plan builds the exports of a request without submitting them.
	Plan(ctx context.Context, req domain.ExtractionRequest) ([]domain.PlannedExport, error)

	// Products lists the catalogue.
	Products() []domain.ProductInfo

	// Product returns one catalogue entry.
	Product(name string) (*domain.ProductInfo, error)
}

// TaskQuery defines the primary port for reading the task ledger.
type TaskQuery interface {
	// ListTasks returns the recorded tasks matching filter.
	ListTasks(ctx context.Context, filter domain.TaskFilter) ([]domain.TaskRecord, error)

	// GetTask returns one recorded task.
	GetTask(ctx context.Context, id string) (*domain.TaskRecord, error)
}

// ResultReader defines the primary port for reading exported tables.
type ResultReader interface {
	// ListResults returns the keys of the exported tables.
	ListResults(ctx context.Context) ([]string, error)

	// ReadResult parses an exported table, dropping null rows.
	ReadResult(ctx context.Context, key string) (*domain.ResultTable, error)

	// ReadAspect combines the aspect component tables of a geometry suffix
	// into circular means.
	ReadAspect(ctx context.Context, suffix string) (*domain.ResultTable, error)
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy    bool              // Overall health status
	Ready      bool              // Ready to accept requests
	Products   int               // Number of catalogue products
	Components map[string]string // Component statuses
}
