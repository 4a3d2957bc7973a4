package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/ports/output"
)

// defaultTaskLimit caps listings that do not set a limit.
const defaultTaskLimit = 100

// TaskService reads the task ledger.
type TaskService struct {
	ledger output.TaskLedger
}

// errLedgerDisabled is returned when no ledger is configured.
var errLedgerDisabled = fmt.Errorf("task ledger disabled: %w", domain.ErrNotReady)

// NewTaskService creates a new task service. A nil ledger makes every
// query fail as unavailable.
func NewTaskService(ledger output.TaskLedger) *TaskService {
	return &TaskService{ledger: ledger}
}

// ListTasks returns the recorded tasks matching filter, newest first.
func (s *TaskService) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]domain.TaskRecord, error) {
	if s.ledger == nil {
		return nil, errLedgerDisabled
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultTaskLimit
	}
	tasks, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return tasks, nil
}

// GetTask returns one recorded task.
func (s *TaskService) GetTask(ctx context.Context, id string) (*domain.TaskRecord, error) {
	if s.ledger == nil {
		return nil, errLedgerDisabled
	}
	rec, err := s.ledger.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("reading task %s: %w", id, err)
	}
	return rec, nil
}
