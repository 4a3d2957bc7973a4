package application

import (
	"context"
	"time"

	"github.com/jobrunner/envextract/internal/ports/input"
	"github.com/jobrunner/envextract/internal/ports/output"
	"github.com/jobrunner/envextract/internal/products"
)

// healthTimeout bounds each component check.
const healthTimeout = 3 * time.Second

// HealthService provides health check functionality.
type HealthService struct {
	catalogue *products.Catalogue
	ledger    output.TaskLedger
	storage   output.ObjectStorage
	prefix    string
}

// NewHealthService creates a new health service. ledger and storage may be
// nil when not configured.
func NewHealthService(catalogue *products.Catalogue, ledger output.TaskLedger, storage output.ObjectStorage, prefix string) *HealthService {
	return &HealthService{
		catalogue: catalogue,
		ledger:    ledger,
		storage:   storage,
		prefix:    prefix,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *HealthService) IsHealthy(_ context.Context) bool {
	return true // Basic health check
}

// IsReady returns true when the catalogue is loaded and every configured
// component answers.
func (s *HealthService) IsReady(ctx context.Context) bool {
	if len(s.catalogue.All()) == 0 {
		return false
	}
	for _, status := range s.components(ctx) {
		if status != "ok" && status != "disabled" {
			return false
		}
	}
	return true
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	components := s.components(ctx)

	ready := len(s.catalogue.All()) > 0
	for _, status := range components {
		if status != "ok" && status != "disabled" {
			ready = false
		}
	}

	return input.HealthDetails{
		Healthy:    s.IsHealthy(ctx),
		Ready:      ready,
		Products:   len(s.catalogue.All()),
		Components: components,
	}
}

func (s *HealthService) components(ctx context.Context) map[string]string {
	components := map[string]string{
		"ledger":  "disabled",
		"storage": "disabled",
	}

	if s.ledger != nil {
		cctx, cancel := context.WithTimeout(ctx, healthTimeout)
		components["ledger"] = status(s.ledger.Ping(cctx))
		cancel()
	}
	if s.storage != nil {
		cctx, cancel := context.WithTimeout(ctx, healthTimeout)
		_, err := s.storage.List(cctx, s.prefix)
		components["storage"] = status(err)
		cancel()
	}
	return components
}

func status(err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}
