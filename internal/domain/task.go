package domain

import "time"

// TaskState is the client-side view of an export task. Once submitted the
// task is owned by the remote platform.
type TaskState string

// Task states.
const (
	TaskSubmitted TaskState = "submitted"
	TaskFailed    TaskState = "failed"
)

// TaskRecord is the ledger entry written for every export submission.
type TaskRecord struct {
	ID          string    `json:"id"`
	RemoteID    string    `json:"remote_id,omitempty"`
	Description string    `json:"description"`
	Folder      string    `json:"folder"`
	Product     string    `json:"product"`
	Metric      string    `json:"metric"`
	Scenario    string    `json:"scenario,omitempty"`
	Model       string    `json:"model,omitempty"`
	Sensor      string    `json:"sensor,omitempty"`
	StartYear   int       `json:"start_year,omitempty"`
	EndYear     int       `json:"end_year,omitempty"`
	Geometry    string    `json:"geometry"`
	State       TaskState `json:"state"`
	Error       string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// TaskFilter narrows a ledger listing. Zero values match everything.
type TaskFilter struct {
	Product string
	State   TaskState
	Since   time.Time
	Limit   int
}

// Matches reports whether r passes the filter.
func (f TaskFilter) Matches(r TaskRecord) bool {
	if f.Product != "" && r.Product != f.Product {
		return false
	}
	if f.State != "" && r.State != f.State {
		return false
	}
	if !f.Since.IsZero() && r.SubmittedAt.Before(f.Since) {
		return false
	}
	return true
}
