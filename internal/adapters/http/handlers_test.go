package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jobrunner/envextract/internal/application"
	"github.com/jobrunner/envextract/internal/config"
	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/ports/input"
)

// mockExtractor implements input.Extractor for testing.
type mockExtractor struct {
	products []domain.ProductInfo
	result   *domain.ExtractionResult
	planned  []domain.PlannedExport
	err      error

	lastRequest domain.ExtractionRequest
	planCalls   int
	extractCall int
}

func (m *mockExtractor) Extract(_ context.Context, req domain.ExtractionRequest) (*domain.ExtractionResult, error) {
	m.lastRequest = req
	m.extractCall++
	return m.result, m.err
}

func (m *mockExtractor) Plan(_ context.Context, req domain.ExtractionRequest) ([]domain.PlannedExport, error) {
	m.lastRequest = req
	m.planCalls++
	return m.planned, m.err
}

func (m *mockExtractor) Products() []domain.ProductInfo {
	return m.products
}

func (m *mockExtractor) Product(name string) (*domain.ProductInfo, error) {
	for i := range m.products {
		if m.products[i].Name == name {
			return &m.products[i], nil
		}
	}
	return nil, domain.ErrProductNotFound
}

// mockTasks implements input.TaskQuery for testing.
type mockTasks struct {
	tasks      []domain.TaskRecord
	err        error
	lastFilter domain.TaskFilter
}

func (m *mockTasks) ListTasks(_ context.Context, filter domain.TaskFilter) ([]domain.TaskRecord, error) {
	m.lastFilter = filter
	return m.tasks, m.err
}

func (m *mockTasks) GetTask(_ context.Context, id string) (*domain.TaskRecord, error) {
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			return &m.tasks[i], nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

// mockResults implements input.ResultReader for testing.
type mockResults struct {
	tables map[string]*domain.ResultTable
}

func (m *mockResults) ListResults(_ context.Context) ([]string, error) {
	keys := make([]string, 0, len(m.tables))
	for k := range m.tables {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *mockResults) ReadResult(_ context.Context, key string) (*domain.ResultTable, error) {
	if t, ok := m.tables[key]; ok {
		return t, nil
	}
	return nil, domain.ErrResultNotFound
}

func (m *mockResults) ReadAspect(_ context.Context, suffix string) (*domain.ResultTable, error) {
	return m.ReadResult(context.Background(), "aspect_"+suffix)
}

// mockHealth implements input.HealthChecker for testing.
type mockHealth struct {
	healthy bool
	ready   bool
}

func (m *mockHealth) IsHealthy(_ context.Context) bool { return m.healthy }
func (m *mockHealth) IsReady(_ context.Context) bool   { return m.ready }

func (m *mockHealth) GetHealthDetails(_ context.Context) input.HealthDetails {
	return input.HealthDetails{
		Healthy:    m.healthy,
		Ready:      m.ready,
		Products:   16,
		Components: map[string]string{"ledger": "ok"},
	}
}

// mockInbox implements InboxScanner for testing.
type mockInbox struct {
	result application.ScanResult
	err    error
}

func (m *mockInbox) TriggerScan(_ context.Context) (application.ScanResult, error) {
	return m.result, m.err
}

func (m *mockInbox) Interval() time.Duration { return time.Minute }

type testDeps struct {
	extractor *mockExtractor
	tasks     *mockTasks
	results   *mockResults
	health    *mockHealth
	opts      Options
}

func newTestDeps() *testDeps {
	return &testDeps{
		extractor: &mockExtractor{
			products: []domain.ProductInfo{
				{Name: "terraclimate", Metrics: []string{"tmmx", "tmmn"}},
				{Name: "lst", Metrics: []string{"day", "night"}},
			},
		},
		tasks:   &mockTasks{},
		results: &mockResults{tables: map[string]*domain.ResultTable{}},
		health:  &mockHealth{healthy: true, ready: true},
	}
}

func (d *testDeps) server() *Server {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewServer(
		config.ServerConfig{
			Host:         "localhost",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			MaxBodyBytes: 1 << 16,
			DocsEnabled:  true,
		},
		d.extractor,
		d.tasks,
		d.results,
		d.health,
		logger,
		d.opts,
	)
}

func serve(s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, rr.Body.String())
	}
	return body
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		healthy    bool
		ready      bool
		wantStatus int
	}{
		{"health ok", "/health", true, true, http.StatusOK},
		{"health unhealthy", "/health", false, false, http.StatusServiceUnavailable},
		{"live", "/health/live", true, false, http.StatusOK},
		{"not live", "/health/live", false, false, http.StatusServiceUnavailable},
		{"ready", "/health/ready", true, true, http.StatusOK},
		{"not ready", "/health/ready", true, false, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDeps()
			d.health = &mockHealth{healthy: tt.healthy, ready: tt.ready}
			rr := serve(d.server(), http.MethodGet, tt.path, nil)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleHealthDetails(t *testing.T) {
	rr := serve(newTestDeps().server(), http.MethodGet, "/health", nil)
	body := decodeBody(t, rr)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["products"] != float64(16) {
		t.Errorf("products = %v, want 16", body["products"])
	}
}

func TestHandleProducts(t *testing.T) {
	s := newTestDeps().server()

	rr := serve(s, http.MethodGet, "/api/v1/products", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}

	rr = serve(s, http.MethodGet, "/api/v1/products/lst", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["name"] != "lst" {
		t.Errorf("name = %v, want lst", body["name"])
	}

	rr = serve(s, http.MethodGet, "/api/v1/products/nope", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("unknown product status = %d, want 404", rr.Code)
	}
}

func TestHandleExtract(t *testing.T) {
	d := newTestDeps()
	d.extractor.result = &domain.ExtractionResult{
		Product: "terraclimate",
		Tasks:   []domain.TaskRecord{{ID: "t1", State: domain.TaskSubmitted}},
	}
	s := d.server()

	body := []byte(`{"product":"terraclimate","metrics":["tmmx"],"time_step":"year",` +
		`"start_year":2001,"end_year":2010,"buffer":500,` +
		`"geometry":{"account":"fieldteam","asset":"sites"}}`)
	rr := serve(s, http.MethodPost, "/api/v1/extractions", body)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", rr.Code, rr.Body.String())
	}
	got := d.extractor.lastRequest
	if got.Product != "terraclimate" || got.StartYear != 2001 || got.Buffer != 500 {
		t.Errorf("request = %+v", got)
	}
	if got.Geometry.Asset != "sites" {
		t.Errorf("geometry = %+v", got.Geometry)
	}
	if d.extractor.planCalls != 0 {
		t.Error("submission should not only plan")
	}
}

func TestHandleExtractDryRun(t *testing.T) {
	d := newTestDeps()
	d.extractor.planned = []domain.PlannedExport{
		{Description: "terraclimate_tmmx_sites", Metric: "tmmx", Expression: json.RawMessage(`{"result":"0"}`)},
	}
	s := d.server()

	rr := serve(s, http.MethodPost, "/api/v1/extractions?dry_run=true",
		[]byte(`{"product":"terraclimate","geometry":{"account":"a","asset":"b"}}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rr.Code, rr.Body.String())
	}
	if d.extractor.extractCall != 0 {
		t.Error("dry run should not submit")
	}
	body := decodeBody(t, rr)
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
	exports := body["exports"].([]interface{})
	expr := exports[0].(map[string]interface{})["expression"].(map[string]interface{})
	if expr["result"] != "0" {
		t.Errorf("expression should be embedded as JSON, got %v", expr)
	}
}

func TestHandleExtractErrors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		body       string
		err        error
		result     *domain.ExtractionResult
		wantStatus int
		wantTasks  int
	}{
		{
			name:       "malformed body",
			target:     "/api/v1/extractions",
			body:       `{"product":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			target:     "/api/v1/extractions",
			body:       `{"product":"lst","colour":"red"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid dry_run",
			target:     "/api/v1/extractions?dry_run=maybe",
			body:       `{"product":"lst"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "validation error",
			target: "/api/v1/extractions",
			body:   `{"product":"lst"}`,
			err: &domain.ValidationError{
				Field: "metrics", Constraint: "non-empty", Message: "at least one metric is required",
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown product",
			target:     "/api/v1/extractions",
			body:       `{"product":"nope"}`,
			err:        domain.ErrProductNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:   "remote failure after partial submission",
			target: "/api/v1/extractions",
			body:   `{"product":"lst"}`,
			err:    &domain.RemoteServiceError{Operation: "export", StatusCode: 429},
			result: &domain.ExtractionResult{
				Product: "lst",
				Tasks:   []domain.TaskRecord{{ID: "t1"}, {ID: "t2", State: domain.TaskFailed}},
			},
			wantStatus: http.StatusBadGateway,
			wantTasks:  2,
		},
		{
			name:       "unexpected failure",
			target:     "/api/v1/extractions",
			body:       `{"product":"lst"}`,
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDeps()
			d.extractor.err = tt.err
			d.extractor.result = tt.result
			rr := serve(d.server(), http.MethodPost, tt.target, []byte(tt.body))

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
			body := decodeBody(t, rr)
			if body["message"] == "" {
				t.Error("error response should carry a message")
			}
			if tt.wantTasks > 0 {
				tasks, _ := body["tasks"].([]interface{})
				if len(tasks) != tt.wantTasks {
					t.Errorf("tasks = %d, want %d", len(tasks), tt.wantTasks)
				}
			}
		})
	}
}

func TestHandleExtractBodyLimit(t *testing.T) {
	d := newTestDeps()
	s := d.server()

	big := `{"product":"lst","folder":"` + strings.Repeat("x", 1<<17) + `"}`
	rr := serve(s, http.MethodPost, "/api/v1/extractions", []byte(big))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if d.extractor.extractCall != 0 {
		t.Error("oversized body should not be submitted")
	}
}

func TestHandleTasks(t *testing.T) {
	d := newTestDeps()
	d.tasks.tasks = []domain.TaskRecord{
		{ID: "t1", Product: "lst", State: domain.TaskSubmitted},
	}
	s := d.server()

	rr := serve(s, http.MethodGet, "/api/v1/tasks?product=LST&state=submitted&since=2024-01-02T00:00:00Z&limit=5", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", rr.Code, rr.Body.String())
	}
	f := d.tasks.lastFilter
	if f.Product != "lst" || f.State != domain.TaskSubmitted || f.Limit != 5 {
		t.Errorf("filter = %+v", f)
	}
	if !f.Since.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("since = %v", f.Since)
	}

	if rr := serve(s, http.MethodGet, "/api/v1/tasks/t1", nil); rr.Code != http.StatusOK {
		t.Errorf("get status = %d", rr.Code)
	}
	if rr := serve(s, http.MethodGet, "/api/v1/tasks/t9", nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing task status = %d, want 404", rr.Code)
	}
}

func TestParseTaskFilterErrors(t *testing.T) {
	for _, query := range []string{
		"state=running",
		"since=yesterday",
		"limit=0",
		"limit=ten",
	} {
		t.Run(query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks?"+query, nil)
			if _, err := parseTaskFilter(req); err == nil {
				t.Errorf("parseTaskFilter(%q) should fail", query)
			}
		})
	}
}

func TestHandleTasksUnavailable(t *testing.T) {
	d := newTestDeps()
	d.tasks.err = domain.ErrNotReady
	rr := serve(d.server(), http.MethodGet, "/api/v1/tasks", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestHandleResults(t *testing.T) {
	d := newTestDeps()
	v := 12.5
	d.results.tables["lst_day_sites.csv"] = &domain.ResultTable{
		Key:    "lst_day_sites.csv",
		Column: "mean",
		Rows:   []domain.ResultRow{{ID: "a", Values: map[string]*float64{"mean": &v}}},
	}
	d.results.tables["aspect_sites"] = &domain.ResultTable{Key: "aspect_sites", Column: "aspect"}
	s := d.server()

	rr := serve(s, http.MethodGet, "/api/v1/results", nil)
	if body := decodeBody(t, rr); body["count"] != float64(2) {
		t.Errorf("count = %v, want 2", body["count"])
	}

	rr = serve(s, http.MethodGet, "/api/v1/results/lst_day_sites.csv", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["column"] != "mean" {
		t.Errorf("column = %v", body["column"])
	}

	rr = serve(s, http.MethodGet, "/api/v1/results/aspect/sites", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("aspect status = %d", rr.Code)
	}

	rr = serve(s, http.MethodGet, "/api/v1/results/missing.csv", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rr.Code)
	}
}

func TestHandleInboxScan(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"scan", nil, http.StatusOK},
		{"rate limited", application.ErrRateLimited, http.StatusTooManyRequests},
		{"storage down", &domain.StorageError{Operation: "list", Err: domain.ErrStorageUnavailable}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDeps()
			d.opts.Inbox = &mockInbox{result: application.ScanResult{Processed: 1, Tasks: 3}, err: tt.err}
			rr := serve(d.server(), http.MethodPost, "/api/v1/inbox/scan", nil)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusTooManyRequests && rr.Header().Get("Retry-After") == "" {
				t.Error("rate limited response should set Retry-After")
			}
		})
	}
}

func TestInboxRouteRequiresInbox(t *testing.T) {
	rr := serve(newTestDeps().server(), http.MethodPost, "/api/v1/inbox/scan", nil)
	if rr.Code != http.StatusNotFound && rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want the route to be absent", rr.Code)
	}
}

func TestHandleOpenAPI(t *testing.T) {
	rr := serve(newTestDeps().server(), http.MethodGet, "/openapi.json", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	paths, ok := body["paths"].(map[string]interface{})
	if !ok {
		t.Fatal("document has no paths")
	}
	for _, p := range []string{"/api/v1/extractions", "/api/v1/tasks", "/api/v1/results/{key}"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("path %s missing", p)
		}
	}
}

func TestHandleDocs(t *testing.T) {
	rr := serve(newTestDeps().server(), http.MethodGet, "/docs", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "/openapi.json") {
		t.Error("docs page should load the OpenAPI document")
	}
}

func TestMetricsRoute(t *testing.T) {
	d := newTestDeps()
	d.opts.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	rr := serve(d.server(), http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "# metrics" {
		t.Errorf("metrics route = %d %q", rr.Code, rr.Body.String())
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	d := newTestDeps()
	d.opts.Middleware = func(http.Handler) http.Handler {
		return http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("handler bug") })
	}
	rr := serve(d.server(), http.MethodGet, "/health", nil)
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rr.Code)
	}
}

func TestBoolToStatus(t *testing.T) {
	if boolToStatus(true) != "ok" || boolToStatus(false) != "unhealthy" {
		t.Error("boolToStatus mapping changed")
	}
}
