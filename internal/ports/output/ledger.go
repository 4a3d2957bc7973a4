package output

import (
	"context"

	"github.com/jobrunner/envextract/internal/domain"
)

// TaskLedger defines the secondary port for persisting submitted exports.
type TaskLedger interface {
	// Record stores a task record.
	Record(ctx context.Context, rec domain.TaskRecord) error

	// Get returns the record with the given id.
	Get(ctx context.Context, id string) (*domain.TaskRecord, error)

	// List returns the records matching filter, newest first.
	List(ctx context.Context, filter domain.TaskFilter) ([]domain.TaskRecord, error)

	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// Close releases the database connection.
	Close() error
}
