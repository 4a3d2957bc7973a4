package application

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/ports/output"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockStorage implements output.ObjectStorage for testing.
type mockStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	listErr error
	readErr error
	putErr  error
}

func newMockStorage() *mockStorage {
	return &mockStorage{objects: map[string][]byte{}}
}

func (m *mockStorage) List(_ context.Context, prefix string) ([]output.StorageObject, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []output.StorageObject
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, output.StorageObject{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *mockStorage) GetReader(_ context.Context, key string) (io.ReadCloser, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockStorage) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *mockStorage) Put(_ context.Context, key string, data []byte, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

// mockLedger implements output.TaskLedger for testing.
type mockLedger struct {
	mu        sync.Mutex
	records   []domain.TaskRecord
	recordErr error
	pingErr   error
	lastLimit int
}

func (m *mockLedger) Record(_ context.Context, rec domain.TaskRecord) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *mockLedger) Get(_ context.Context, id string) (*domain.TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

func (m *mockLedger) List(_ context.Context, filter domain.TaskFilter) ([]domain.TaskRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = filter.Limit
	var out []domain.TaskRecord
	for _, r := range m.records {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockLedger) Ping(_ context.Context) error {
	return m.pingErr
}

func (m *mockLedger) Close() error {
	return nil
}

// mockExtractor implements input.Extractor for testing.
type mockExtractor struct {
	mu       sync.Mutex
	requests []domain.ExtractionRequest
	err      error
}

func (m *mockExtractor) Extract(_ context.Context, req domain.ExtractionRequest) (*domain.ExtractionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.ExtractionResult{
		Product: req.Product,
		Tasks:   []domain.TaskRecord{{ID: "t1", Product: req.Product, State: domain.TaskSubmitted}},
	}, nil
}

func (m *mockExtractor) Plan(_ context.Context, _ domain.ExtractionRequest) ([]domain.PlannedExport, error) {
	return nil, nil
}

func (m *mockExtractor) Products() []domain.ProductInfo {
	return nil
}

func (m *mockExtractor) Product(_ string) (*domain.ProductInfo, error) {
	return nil, domain.ErrProductNotFound
}
