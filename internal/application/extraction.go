// Package application contains the application services.
package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/graph"
	"github.com/jobrunner/envextract/internal/pipeline"
	"github.com/jobrunner/envextract/internal/ports/output"
	"github.com/jobrunner/envextract/internal/products"
)

// ExtractionConfig holds the defaults applied to every request.
type ExtractionConfig struct {
	Account        string // owner of stored geometry tables
	Folder         string // export destination folder
	IDField        string // geometry identifier property
	ManifestPrefix string // object storage prefix of export manifests
}

// Manifest is the document written to object storage for every submitted
// export.
type Manifest struct {
	Task       domain.TaskRecord `json:"task"`
	Column     string            `json:"column"`
	Expression json.RawMessage   `json:"expression"`
}

// ExtractionService plans, builds and submits exports.
type ExtractionService struct {
	catalogue *products.Catalogue
	compute   output.ComputeService
	ledger    output.TaskLedger
	storage   output.ObjectStorage
	metrics   output.MetricsCollector
	logger    *slog.Logger
	cfg       ExtractionConfig
	now       func() time.Time
}

// NewExtractionService creates a new extraction service. ledger and storage
// may be nil, in which case submissions are neither recorded nor
// manifested.
func NewExtractionService(
	catalogue *products.Catalogue,
	compute output.ComputeService,
	ledger output.TaskLedger,
	storage output.ObjectStorage,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg ExtractionConfig,
) *ExtractionService {
	if cfg.Folder == "" {
		cfg.Folder = "envextract"
	}
	if cfg.ManifestPrefix == "" {
		cfg.ManifestPrefix = "manifests"
	}

	return &ExtractionService{
		catalogue: catalogue,
		compute:   compute,
		ledger:    ledger,
		storage:   storage,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Products lists the catalogue.
func (s *ExtractionService) Products() []domain.ProductInfo {
	all := s.catalogue.All()
	out := make([]domain.ProductInfo, len(all))
	for i, p := range all {
		out[i] = p.Info()
	}
	return out
}

// Product returns one catalogue entry.
func (s *ExtractionService) Product(name string) (*domain.ProductInfo, error) {
	p, err := s.catalogue.Lookup(name)
	if err != nil {
		return nil, err
	}
	info := p.Info()
	return &info, nil
}

// Extract submits one export per combination of req. Every combination is
// validated before the first remote call. When a combination fails, the
// tasks already submitted are returned together with the error.
func (s *ExtractionService) Extract(ctx context.Context, req domain.ExtractionRequest) (*domain.ExtractionResult, error) {
	req = s.withDefaults(req)

	jobs, env, err := s.prepare(&req)
	if err != nil {
		return nil, err
	}

	result := &domain.ExtractionResult{Product: req.Product, Tasks: []domain.TaskRecord{}}
	for _, job := range jobs {
		rec, err := s.submit(ctx, req, job, env)
		if rec != nil && rec.State == domain.TaskSubmitted {
			result.Tasks = append(result.Tasks, *rec)
		}
		if err != nil {
			return result, extractionError(req, job, err)
		}
	}

	s.logger.Info("extraction submitted",
		"product", req.Product,
		"tasks", len(result.Tasks),
		"geometry", req.Mode().String(),
	)
	return result, nil
}

// Plan builds the exports of req without submitting them. Series products
// still probe their remote extent.
func (s *ExtractionService) Plan(ctx context.Context, req domain.ExtractionRequest) ([]domain.PlannedExport, error) {
	req = s.withDefaults(req)

	jobs, env, err := s.prepare(&req)
	if err != nil {
		return nil, err
	}

	planned := make([]domain.PlannedExport, 0, len(jobs))
	for _, job := range jobs {
		exp, err := s.build(ctx, req.Product, job, env)
		if err != nil {
			return nil, extractionError(req, job, err)
		}
		expr, err := graph.Marshal(exp.Rows.Node)
		if err != nil {
			return nil, extractionError(req, job, err)
		}
		planned = append(planned, domain.PlannedExport{
			Description: exp.Description,
			Metric:      job.Metric,
			Scenario:    job.Scenario,
			Model:       job.Model,
			Sensor:      job.Sensor,
			Years:       exp.Years,
			Column:      exp.Column,
			Expression:  expr,
			PlannedAt:   s.now().UTC(),
		})
	}
	return planned, nil
}

func (s *ExtractionService) withDefaults(req domain.ExtractionRequest) domain.ExtractionRequest {
	if req.Geometry.Account == "" {
		req.Geometry.Account = s.cfg.Account
	}
	if req.Geometry.IDField == "" {
		req.Geometry.IDField = s.cfg.IDField
	}
	if req.Folder == "" {
		req.Folder = s.cfg.Folder
	}
	return req
}

// prepare plans every combination and resolves the geometries once. The
// product name of req is normalized to its catalogue name.
func (s *ExtractionService) prepare(req *domain.ExtractionRequest) ([]products.Job, products.Env, error) {
	product, err := s.catalogue.Lookup(req.Product)
	if err != nil {
		return nil, products.Env{}, err
	}
	req.Product = product.Info().Name

	jobs, err := product.Plan(*req)
	if err != nil {
		return nil, products.Env{}, err
	}

	geoms, err := pipeline.ResolveGeometry(req.Geometry, req.Mode())
	if err != nil {
		return nil, products.Env{}, err
	}
	return jobs, products.Env{Computer: s.compute, Geometries: geoms}, nil
}

func (s *ExtractionService) build(ctx context.Context, product string, job products.Job, env products.Env) (*products.Export, error) {
	start := time.Now()
	exp, err := job.Build(ctx, env)
	s.metrics.ObserveBuildDuration(product, time.Since(start))
	return exp, err
}

// submit builds and exports one combination. A record is returned for every
// export that reached the platform, whether or not it was accepted.
func (s *ExtractionService) submit(ctx context.Context, req domain.ExtractionRequest, job products.Job, env products.Env) (*domain.TaskRecord, error) {
	exp, err := s.build(ctx, req.Product, job, env)
	if err != nil {
		return nil, err
	}

	rec := domain.TaskRecord{
		ID:          uuid.NewString(),
		Description: exp.Description,
		Folder:      req.Folder,
		Product:     req.Product,
		Metric:      job.Metric,
		Scenario:    job.Scenario,
		Model:       job.Model,
		Sensor:      job.Sensor,
		Geometry:    req.Mode().Suffix(),
		SubmittedAt: s.now().UTC(),
	}
	if exp.Years != nil {
		rec.StartYear, rec.EndYear = exp.Years.Start, exp.Years.End
	}

	taskID, err := s.compute.ExportTable(ctx, output.TableExport{
		Collection:  exp.Rows.Node,
		Description: exp.Description,
		Folder:      req.Folder,
		FileFormat:  output.FileFormatCSV,
	})
	s.metrics.IncExports(req.Product, err == nil)
	if err != nil {
		rec.State = domain.TaskFailed
		rec.Error = err.Error()
		s.record(ctx, rec)
		return &rec, err
	}

	rec.RemoteID = taskID
	rec.State = domain.TaskSubmitted
	s.record(ctx, rec)
	s.writeManifest(ctx, rec, exp)

	s.logger.Info("export submitted",
		"product", rec.Product,
		"metric", rec.Metric,
		"description", rec.Description,
		"task", rec.RemoteID,
	)
	return &rec, nil
}

// record writes rec to the ledger. The export is owned by the platform once
// submitted, so ledger failures are logged only.
func (s *ExtractionService) record(ctx context.Context, rec domain.TaskRecord) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.Record(ctx, rec); err != nil {
		s.logger.Warn("failed to record task", "description", rec.Description, "error", err)
		return
	}
	s.metrics.IncLedgerRecords(string(rec.State))
}

func (s *ExtractionService) writeManifest(ctx context.Context, rec domain.TaskRecord, exp *products.Export) {
	if s.storage == nil {
		return
	}

	expr, err := graph.Marshal(exp.Rows.Node)
	if err != nil {
		s.logger.Warn("failed to encode manifest expression", "description", rec.Description, "error", err)
		return
	}
	data, err := json.MarshalIndent(Manifest{Task: rec, Column: exp.Column, Expression: expr}, "", "  ")
	if err != nil {
		s.logger.Warn("failed to encode manifest", "description", rec.Description, "error", err)
		return
	}

	key := ManifestKey(s.cfg.ManifestPrefix, rec.Description)
	start := time.Now()
	err = s.storage.Put(ctx, key, data, "application/json")
	s.metrics.IncStorageOperations("put", err == nil)
	s.metrics.ObserveStorageDuration("put", time.Since(start))
	if err != nil {
		s.logger.Warn("failed to write manifest", "key", key, "error", err)
	}
}

// ManifestKey is the object key of the manifest of an export.
func ManifestKey(prefix, description string) string {
	return path.Join(prefix, description+".json")
}

func extractionError(req domain.ExtractionRequest, job products.Job, err error) error {
	var ee *domain.ExtractionError
	if errors.As(err, &ee) {
		return err
	}
	return &domain.ExtractionError{
		Product:  req.Product,
		Metric:   job.Metric,
		Scenario: job.Scenario,
		Model:    job.Model,
		Sensor:   job.Sensor,
		Years:    job.Years,
		Err:      err,
	}
}
