package domain

import (
	"encoding/json"
	"time"
)

// ExtractionRequest asks for one product's statistics over a set of
// locations.
type ExtractionRequest struct {
	Product   string   `json:"product" yaml:"product"`
	Metrics   []string `json:"metrics" yaml:"metrics"`
	TimeStep  TimeStep `json:"time_step,omitempty" yaml:"time_step,omitempty"`
	StartYear int      `json:"start_year,omitempty" yaml:"start_year,omitempty"`
	EndYear   int      `json:"end_year,omitempty" yaml:"end_year,omitempty"`
	Year      int      `json:"year,omitempty" yaml:"year,omitempty"`
	Quality   string   `json:"quality,omitempty" yaml:"quality,omitempty"`
	Sensors   []string `json:"sensors,omitempty" yaml:"sensors,omitempty"`
	Scenarios []string `json:"scenarios,omitempty" yaml:"scenarios,omitempty"`
	Models    []string `json:"models,omitempty" yaml:"models,omitempty"`
	Buffer    float64  `json:"buffer,omitempty" yaml:"buffer,omitempty"`
	Polygon   bool     `json:"polygon,omitempty" yaml:"polygon,omitempty"`
	Scale     float64  `json:"scale,omitempty" yaml:"scale,omitempty"`
	Folder    string   `json:"folder,omitempty" yaml:"folder,omitempty"`

	Geometry GeometrySource `json:"geometry" yaml:"geometry"`
}

// Mode returns the geometry mode selected by Buffer and Polygon.
func (r ExtractionRequest) Mode() GeometryMode {
	return ModeFromFlags(r.Buffer, r.Polygon)
}

// Span returns the requested year range, or nil when none was given.
func (r ExtractionRequest) Span() (*YearSpan, error) {
	if r.StartYear == 0 && r.EndYear == 0 {
		return nil, nil
	}
	if r.StartYear == 0 || r.EndYear == 0 {
		return nil, &ValidationError{
			Field:      "start_year/end_year",
			Value:      YearSpan{Start: r.StartYear, End: r.EndYear},
			Constraint: "both or neither",
			Message:    "start and end year must be given together",
		}
	}
	return &YearSpan{Start: r.StartYear, End: r.EndYear}, nil
}

// ProductInfo describes a catalogue product for listings.
type ProductInfo struct {
	Name         string     `json:"name"`
	Title        string     `json:"title"`
	Collection   string     `json:"collection"`
	Metrics      []string   `json:"metrics"`
	TimeSteps    []TimeStep `json:"time_steps,omitempty"`
	Policies     []string   `json:"quality_policies,omitempty"`
	Sensors      []string   `json:"sensors,omitempty"`
	Scenarios    []string   `json:"scenarios,omitempty"`
	Models       []string   `json:"models,omitempty"`
	Years        []int      `json:"years,omitempty"`
	DefaultScale float64    `json:"default_scale"`
	RangeProbed  bool       `json:"range_probed"`
	RangeNeeded  bool       `json:"range_required"`
}

// ExtractionResult lists the export tasks submitted for a request.
type ExtractionResult struct {
	Product string       `json:"product"`
	Tasks   []TaskRecord `json:"tasks"`
}

// PlannedExport is a fully built export that has not been submitted.
type PlannedExport struct {
	Description string          `json:"description"`
	Metric      string          `json:"metric"`
	Scenario    string          `json:"scenario,omitempty"`
	Model       string          `json:"model,omitempty"`
	Sensor      string          `json:"sensor,omitempty"`
	Years       *YearSpan       `json:"years,omitempty"`
	Column      string          `json:"column"`
	Expression  json.RawMessage `json:"expression"`
	PlannedAt   time.Time       `json:"planned_at"`
}
