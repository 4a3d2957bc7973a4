package products

import (
	"context"
	"fmt"
	"slices"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/graph"
	"github.com/jobrunner/envextract/internal/pipeline"
)

// Scenario and model selectors used by the downscaled projections.
const (
	propScenario = "scenario"
	propModel    = "model"
)

// rangeKind tells how a series finds its date range.
type rangeKind int

const (
	// rangeProbed probes the extent; the caller's years are optional.
	rangeProbed rangeKind = iota
	// rangeProbedRequired probes the extent and clamps the caller's years.
	rangeProbedRequired
	// rangeFixed composites exactly the caller's years.
	rangeFixed
)

// metric is one band of a series and how to turn it into a statistic.
type metric struct {
	Band       string
	Collection string // overrides the series collection
	Tag        string // overrides the series tag
	Convert    pipeline.Conversion
	Temporal   domain.Reducer    // month and year composites, mean if empty
	Policies   []pipeline.Policy // overrides the series policies
}

// stepSpec is the name prefix of a time step and whether the series
// already has that cadence.
type stepSpec struct {
	Abbrev string
	Native bool
}

// sensor is one platform of a multi-sensor series.
type sensor struct {
	Name       string
	Collection string
	Pairs      map[string][2]string // metric -> normalized difference bands
}

// series is a time-series product.
type series struct {
	name       string
	title      string
	collection string
	tag        string
	scale      float64
	metricList []string
	metrics    map[string]metric
	steps      map[domain.TimeStep]stepSpec
	policies   []pipeline.Policy
	mask       pipeline.Policy // applied before any policy
	rng        rangeKind
	trustStart bool
	scenarios  []string
	models     []string
	sensors    []sensor
}

// Info describes the product.
func (s *series) Info() domain.ProductInfo {
	steps := make([]domain.TimeStep, 0, len(s.steps))
	for _, st := range []domain.TimeStep{domain.StepLowest, domain.StepDay, domain.StepMonth, domain.StepYear} {
		if _, ok := s.steps[st]; ok {
			steps = append(steps, st)
		}
	}

	info := domain.ProductInfo{
		Name:         s.name,
		Title:        s.title,
		Collection:   s.collection,
		Metrics:      slices.Clone(s.metricList),
		TimeSteps:    steps,
		Scenarios:    slices.Clone(s.scenarios),
		Models:       slices.Clone(s.models),
		DefaultScale: s.scale,
		RangeProbed:  s.rng != rangeFixed,
		RangeNeeded:  s.rng != rangeProbed,
	}
	if names := s.policyNames(); len(names) > 0 {
		info.Policies = names
	}
	for _, sn := range s.sensors {
		info.Sensors = append(info.Sensors, sn.Name)
	}
	return info
}

func (s *series) policyNames() []string {
	if len(s.policies) > 0 {
		return policyNames(s.policies)
	}
	for _, name := range s.metricList {
		if p := s.metrics[name].Policies; len(p) > 0 {
			return policyNames(p)
		}
	}
	return nil
}

func (s *series) stepNames() []string {
	out := make([]string, 0, len(s.steps))
	for _, st := range s.Info().TimeSteps {
		out = append(out, string(st))
	}
	return out
}

// Plan validates req and returns one job per combination.
func (s *series) Plan(req domain.ExtractionRequest) ([]Job, error) {
	metrics, err := chooseMetrics(s.name, s.metricList, req.Metrics)
	if err != nil {
		return nil, err
	}

	step, spec, err := s.chooseStep(req.TimeStep)
	if err != nil {
		return nil, err
	}

	span, err := req.Span()
	if err != nil {
		return nil, err
	}
	if span == nil && s.rng != rangeProbed {
		if span, err = requireSpan(req); err != nil {
			return nil, err
		}
	}
	if span != nil && span.Empty() {
		return nil, &domain.EmptyRangeError{Series: s.name, Requested: *span}
	}

	scenarios, models, sensors := []string{""}, []string{""}, []sensor{{}}
	if len(s.scenarios) > 0 {
		if scenarios, err = chooseOptions(s.name, "scenario", s.scenarios, req.Scenarios, true); err != nil {
			return nil, err
		}
		if models, err = chooseOptions(s.name, "model", s.models, req.Models, false); err != nil {
			return nil, err
		}
	}
	if len(s.sensors) > 0 {
		if sensors, err = s.chooseSensors(req.Sensors); err != nil {
			return nil, err
		}
	}

	policies := make(map[string]pipeline.Policy, len(metrics))
	for _, m := range metrics {
		p, err := pipeline.LookupPolicy(s.name, s.metricPolicies(m), req.Quality)
		if err != nil {
			return nil, err
		}
		policies[m] = p
	}

	mode := req.Mode()
	scale := scaleOf(req, s.scale)

	var jobs []Job
	for _, m := range metrics {
		for _, sn := range sensors {
			for _, sc := range scenarios {
				for _, md := range models {
					c := combination{
						metric:   m,
						sensor:   sn,
						scenario: sc,
						model:    md,
						step:     step,
						spec:     spec,
						policy:   policies[m],
						span:     span,
						mode:     mode,
						scale:    scale,
					}
					jobs = append(jobs, Job{
						Metric:   m,
						Scenario: sc,
						Model:    md,
						Sensor:   sn.Name,
						Years:    span,
						build: func(ctx context.Context, env Env) (*Export, error) {
							return s.build(ctx, env, c)
						},
					})
				}
			}
		}
	}
	return jobs, nil
}

func (s *series) chooseStep(requested domain.TimeStep) (domain.TimeStep, stepSpec, error) {
	if requested == "" {
		if len(s.steps) == 1 {
			for st, spec := range s.steps {
				return st, spec, nil
			}
		}
		return "", stepSpec{}, &domain.ValidationError{
			Field:      "time_step",
			Value:      requested,
			Constraint: "required",
			Message:    fmt.Sprintf("%s needs one of %v", s.name, s.stepNames()),
		}
	}
	spec, ok := s.steps[requested]
	if !ok {
		return "", stepSpec{}, &domain.UnknownPolicyError{
			Product: s.name,
			Kind:    "time step",
			Value:   string(requested),
			Allowed: s.stepNames(),
		}
	}
	return requested, spec, nil
}

func (s *series) chooseSensors(requested []string) ([]sensor, error) {
	names := make([]string, len(s.sensors))
	for i, sn := range s.sensors {
		names[i] = sn.Name
	}
	chosen, err := chooseOptions(s.name, "sensor", names, requested, false)
	if err != nil {
		return nil, err
	}
	out := make([]sensor, 0, len(chosen))
	for _, name := range chosen {
		out = append(out, s.sensors[slices.Index(names, name)])
	}
	return out, nil
}

func (s *series) metricPolicies(name string) []pipeline.Policy {
	if p := s.metrics[name].Policies; len(p) > 0 {
		return p
	}
	return s.policies
}

// combination carries the loop values of one job into its builder.
type combination struct {
	metric   string
	sensor   sensor
	scenario string
	model    string
	step     domain.TimeStep
	spec     stepSpec
	policy   pipeline.Policy
	span     *domain.YearSpan
	mode     domain.GeometryMode
	scale    float64
}

// source returns the collection id and loaded series of c.
func (s *series) source(c combination) (string, graph.Collection) {
	id := s.collection
	if m := s.metrics[c.metric]; m.Collection != "" {
		id = m.Collection
	}
	if c.sensor.Collection != "" {
		id = c.sensor.Collection
	}

	coll := graph.LoadCollection(id)
	if c.scenario != "" {
		coll = coll.Filter(graph.Equals(propScenario, c.scenario))
	}
	if c.model != "" {
		coll = coll.Filter(graph.Equals(propModel, c.model))
	}
	return id, coll
}

// dateRange resolves the windows of c, probing the remote extent when the
// series is not fixed.
func (s *series) dateRange(ctx context.Context, env Env, id string, coll graph.Collection, c combination) (domain.DateRange, error) {
	if s.rng == rangeFixed {
		return domain.FixedRange(*c.span)
	}
	ext, err := pipeline.ProbeExtent(ctx, env.Computer, id, coll)
	if err != nil {
		return domain.DateRange{}, err
	}
	return pipeline.ResolveRange(id, ext, c.span, s.trustStart)
}

// prepare masks, selects and converts the raw series.
func (s *series) prepare(coll graph.Collection, c combination) graph.Collection {
	m := s.metrics[c.metric]

	coll = s.mask.ApplySeries(coll)
	coll = c.policy.ApplySeries(coll)

	if pair, ok := c.sensor.Pairs[c.metric]; ok {
		return pipeline.NormalizedDifference(pair[0], pair[1], c.metric).ApplySeries(coll)
	}
	return m.Convert.ApplySeries(coll.Select(m.Band))
}

func (s *series) build(ctx context.Context, env Env, c combination) (*Export, error) {
	id, raw := s.source(c)

	r, err := s.dateRange(ctx, env, id, raw, c)
	if err != nil {
		return nil, err
	}

	m := s.metrics[c.metric]
	temporal := m.Temporal
	if temporal == "" {
		temporal = domain.ReduceMean
	}

	composites, err := pipeline.Composite(s.prepare(raw, c), r, pipeline.Step{
		TimeStep: c.step,
		Reducer:  temporal,
		Native:   c.spec.Native,
	})
	if err != nil {
		return nil, err
	}

	rows, err := pipeline.ReduceSeries(composites, env.Geometries, domain.ReduceMean, c.scale)
	if err != nil {
		return nil, err
	}

	tag := s.tag
	if m.Tag != "" {
		tag = m.Tag
	}
	if c.sensor.Name != "" {
		tag = c.sensor.Name
	}

	labels := r.Labels
	desc := domain.Description{
		Prefix:   c.spec.Abbrev,
		Tag:      tag,
		Metric:   c.metric,
		Scenario: c.scenario,
		Model:    c.model,
		Years:    &labels,
		Suffix:   c.mode.Suffix(),
	}

	column := domain.ReduceMean.Column()
	return &Export{
		Description: desc.String(),
		Column:      column,
		Years:       &labels,
		Rows:        pipeline.ShapeExport(rows, column),
	}, nil
}
