// Package products is the catalogue of extractable datasets. Every product
// turns a request into jobs, one per metric, sensor, scenario and model
// combination; a job builds the export graph of its combination.
package products

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/graph"
	"github.com/jobrunner/envextract/internal/pipeline"
)

// Product plans extractions for one dataset.
type Product interface {
	// Info describes the product.
	Info() domain.ProductInfo

	// Plan validates req and returns its jobs. No remote call is made.
	Plan(req domain.ExtractionRequest) ([]Job, error)
}

// Env is what a job needs to build its graph.
type Env struct {
	Computer   pipeline.Computer // for extent probes
	Geometries graph.Features    // resolved input locations
}

// Export is the graph of one export, ready to submit.
type Export struct {
	Description string
	Column      string
	Years       *domain.YearSpan // labels, nil for static products
	Rows        graph.Features
}

// Job builds the export of one combination.
type Job struct {
	Metric   string
	Scenario string
	Model    string
	Sensor   string
	Years    *domain.YearSpan // requested years, if any

	build func(ctx context.Context, env Env) (*Export, error)
}

// Build builds the export graph. Series products may probe the remote
// extent.
func (j Job) Build(ctx context.Context, env Env) (*Export, error) {
	return j.build(ctx, env)
}

// Options configure the catalogue.
type Options struct {
	// AssetOwner is the account holding the soil rasters.
	AssetOwner string
}

// DefaultAssetOwner owns the soil rasters unless configured otherwise.
const DefaultAssetOwner = "aschwantes"

// Catalogue holds the products by name.
type Catalogue struct {
	products map[string]Product
}

// NewCatalogue builds the catalogue.
func NewCatalogue(opts Options) *Catalogue {
	if opts.AssetOwner == "" {
		opts.AssetOwner = DefaultAssetOwner
	}
	c := &Catalogue{products: make(map[string]Product)}
	for _, p := range catalogue(opts) {
		c.products[p.Info().Name] = p
	}
	return c
}

// Lookup returns the named product.
func (c *Catalogue) Lookup(name string) (Product, error) {
	p, ok := c.products[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, domain.ErrProductNotFound)
	}
	return p, nil
}

// All returns the products sorted by name.
func (c *Catalogue) All() []Product {
	names := make([]string, 0, len(c.products))
	for name := range c.products {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Product, len(names))
	for i, name := range names {
		out[i] = c.products[name]
	}
	return out
}

// chooseMetrics validates the requested metrics. A product with a single
// metric defaults to it.
func chooseMetrics(product string, allowed, requested []string) ([]string, error) {
	if len(requested) == 0 {
		if len(allowed) == 1 {
			return allowed, nil
		}
		return nil, &domain.ValidationError{
			Field:      "metrics",
			Value:      requested,
			Constraint: "non-empty",
			Message:    "at least one metric is required",
		}
	}
	for _, m := range requested {
		if !slices.Contains(allowed, m) {
			return nil, &domain.UnknownMetricError{Product: product, Metric: m, Allowed: allowed}
		}
	}
	return requested, nil
}

// chooseOptions validates an enumerated option list. An empty request
// selects all allowed values unless required.
func chooseOptions(product, kind string, allowed, requested []string, required bool) ([]string, error) {
	if len(requested) == 0 {
		if required {
			return nil, &domain.ValidationError{
				Field:      kind,
				Value:      requested,
				Constraint: "non-empty",
				Message:    fmt.Sprintf("at least one %s is required", kind),
			}
		}
		return allowed, nil
	}
	for _, v := range requested {
		if !slices.Contains(allowed, v) {
			return nil, &domain.UnknownPolicyError{Product: product, Kind: kind, Value: v, Allowed: allowed}
		}
	}
	return requested, nil
}

// requireSpan returns the requested years or fails when none were given.
func requireSpan(req domain.ExtractionRequest) (*domain.YearSpan, error) {
	span, err := req.Span()
	if err != nil {
		return nil, err
	}
	if span == nil {
		return nil, &domain.ValidationError{
			Field:      "start_year/end_year",
			Value:      nil,
			Constraint: "required",
			Message:    "this product needs a start and end year",
		}
	}
	return span, nil
}

func scaleOf(req domain.ExtractionRequest, fallback float64) float64 {
	if req.Scale > 0 {
		return req.Scale
	}
	return fallback
}

func policyNames(policies []pipeline.Policy) []string {
	out := make([]string, len(policies))
	for i, p := range policies {
		out[i] = p.Name
	}
	return out
}
