package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jobrunner/envextract/internal/domain"
)

func TestTaskService(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ledger := &mockLedger{records: []domain.TaskRecord{
		{ID: "1", Product: "lai", State: domain.TaskSubmitted, SubmittedAt: now.Add(-48 * time.Hour)},
		{ID: "2", Product: "lai", State: domain.TaskFailed, SubmittedAt: now},
		{ID: "3", Product: "maca", State: domain.TaskSubmitted, SubmittedAt: now},
	}}
	service := NewTaskService(ledger)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter domain.TaskFilter
		want   int
	}{
		{name: "all", filter: domain.TaskFilter{}, want: 3},
		{name: "by product", filter: domain.TaskFilter{Product: "lai"}, want: 2},
		{name: "by state", filter: domain.TaskFilter{State: domain.TaskFailed}, want: 1},
		{name: "since", filter: domain.TaskFilter{Since: now.Add(-time.Hour)}, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := service.ListTasks(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListTasks() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d tasks, want %d", len(got), tt.want)
			}
			if ledger.lastLimit != defaultTaskLimit {
				t.Errorf("limit = %d, want the default %d", ledger.lastLimit, defaultTaskLimit)
			}
		})
	}

	rec, err := service.GetTask(ctx, "3")
	if err != nil || rec.Product != "maca" {
		t.Errorf("GetTask(3) = %+v, %v", rec, err)
	}
	if _, err := service.GetTask(ctx, "9"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Errorf("GetTask(9) error = %v, want ErrTaskNotFound", err)
	}
}

func TestTaskServiceWithoutLedger(t *testing.T) {
	service := NewTaskService(nil)

	if _, err := service.ListTasks(context.Background(), domain.TaskFilter{}); !errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("ListTasks() error = %v, want unavailable", err)
	}
	if _, err := service.GetTask(context.Background(), "1"); !errors.Is(err, domain.ErrUnavailable) {
		t.Errorf("GetTask() error = %v, want unavailable", err)
	}
}
