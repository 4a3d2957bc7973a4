package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/enginetest"
	"github.com/jobrunner/envextract/internal/graph"
)

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func span(start, end int) *domain.YearSpan {
	return &domain.YearSpan{Start: start, End: end}
}

func lastMonth(r domain.DateRange) string {
	windows := r.MonthWindows()
	if len(windows) == 0 {
		return ""
	}
	return windows[len(windows)-1].String()
}

func firstMonth(r domain.DateRange) string {
	windows := r.MonthWindows()
	if len(windows) == 0 {
		return ""
	}
	return windows[0].String()
}

func TestResolveRangeClamping(t *testing.T) {
	ext := domain.SeriesExtent{First: date(2000, 2, 18), End: date(2019, 6, 15)}

	tests := []struct {
		name       string
		requested  *domain.YearSpan
		wantLabels domain.YearSpan
		wantEmpty  bool
	}{
		{"inside", span(2005, 2010), domain.YearSpan{Start: 2005, End: 2010}, false},
		{"before start", span(1990, 2003), domain.YearSpan{Start: 2000, End: 2003}, false},
		{"after end", span(2015, 2030), domain.YearSpan{Start: 2015, End: 2019}, false},
		{"covering", span(1990, 2030), domain.YearSpan{Start: 2000, End: 2019}, false},
		{"single year", span(2019, 2019), domain.YearSpan{Start: 2019, End: 2019}, false},
		{"entirely before", span(1980, 1999), domain.YearSpan{}, true},
		{"entirely after", span(2020, 2025), domain.YearSpan{}, true},
		{"reversed", span(2010, 2005), domain.YearSpan{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ResolveRange("MODIS/006/MOD11A2", ext, tt.requested, false)
			if tt.wantEmpty {
				var rangeErr *domain.EmptyRangeError
				if !errors.As(err, &rangeErr) {
					t.Fatalf("ResolveRange() error = %v, want EmptyRangeError", err)
				}
				if rangeErr.Available != (domain.YearSpan{Start: 2000, End: 2019}) {
					t.Errorf("Available = %v", rangeErr.Available)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveRange() error = %v", err)
			}
			if r.Labels != tt.wantLabels {
				t.Errorf("Labels = %v, want %v", r.Labels, tt.wantLabels)
			}
			if r.Days != tt.wantLabels {
				t.Errorf("Days = %v, want %v", r.Days, tt.wantLabels)
			}
		})
	}
}

func TestResolveRangeBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		ext        domain.SeriesExtent
		requested  *domain.YearSpan
		trustStart bool
		wantLabels domain.YearSpan
		wantYears  domain.YearSpan
		wantFirst  string
		wantLast   string
	}{
		{
			name:       "request past the end drops the partial month",
			ext:        domain.SeriesExtent{First: date(2000, 2, 18), End: date(2019, 6, 15)},
			requested:  span(2010, 2020),
			wantLabels: domain.YearSpan{Start: 2010, End: 2019},
			wantYears:  domain.YearSpan{Start: 2010, End: 2018},
			wantFirst:  "2010-01",
			wantLast:   "2019-05",
		},
		{
			name:       "whole extent",
			ext:        domain.SeriesExtent{First: date(2000, 2, 18), End: date(2019, 6, 15)},
			wantLabels: domain.YearSpan{Start: 2000, End: 2018},
			wantYears:  domain.YearSpan{Start: 2001, End: 2018},
			wantFirst:  "2000-03",
			wantLast:   "2019-05",
		},
		{
			name:       "request before the start drops the partial first month",
			ext:        domain.SeriesExtent{First: date(2000, 2, 18), End: date(2019, 6, 15)},
			requested:  span(1990, 2005),
			wantLabels: domain.YearSpan{Start: 2000, End: 2005},
			wantYears:  domain.YearSpan{Start: 2001, End: 2005},
			wantFirst:  "2000-03",
			wantLast:   "2005-12",
		},
		{
			name:       "aligned start keeps first month and year",
			ext:        domain.SeriesExtent{First: date(2000, 1, 1), End: date(2001, 1, 1)},
			wantLabels: domain.YearSpan{Start: 2000, End: 2000},
			wantYears:  domain.YearSpan{Start: 2000, End: 2000},
			wantFirst:  "2000-01",
			wantLast:   "2000-12",
		},
		{
			name:       "interior request is not trimmed",
			ext:        domain.SeriesExtent{First: date(2000, 2, 18), End: date(2019, 6, 15)},
			requested:  span(2005, 2006),
			wantLabels: domain.YearSpan{Start: 2005, End: 2006},
			wantYears:  domain.YearSpan{Start: 2005, End: 2006},
			wantFirst:  "2005-01",
			wantLast:   "2006-12",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ResolveRange("series", tt.ext, tt.requested, tt.trustStart)
			if err != nil {
				t.Fatalf("ResolveRange() error = %v", err)
			}
			if r.Labels != tt.wantLabels {
				t.Errorf("Labels = %v, want %v", r.Labels, tt.wantLabels)
			}
			if r.YearBuckets != tt.wantYears {
				t.Errorf("YearBuckets = %v, want %v", r.YearBuckets, tt.wantYears)
			}
			if got := firstMonth(r); got != tt.wantFirst {
				t.Errorf("first month = %s, want %s", got, tt.wantFirst)
			}
			if got := lastMonth(r); got != tt.wantLast {
				t.Errorf("last month = %s, want %s", got, tt.wantLast)
			}
		})
	}
}

// A series whose last image ends on 31 December covers that whole year but
// nothing of the next.
func TestResolveRangeYearEnd(t *testing.T) {
	ext := domain.SeriesExtent{
		First: date(2000, 1, 1),
		Last:  date(2019, 12, 1),
		End:   date(2020, 1, 1),
	}

	if got := ext.Years(); got != (domain.YearSpan{Start: 2000, End: 2019}) {
		t.Fatalf("Years() = %v, want 2000-2019", got)
	}

	_, err := ResolveRange("IDAHO_EPSCOR/TERRACLIMATE", ext, span(2020, 2020), false)
	var rangeErr *domain.EmptyRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("ResolveRange(2020-2020) error = %v, want EmptyRangeError", err)
	}
	if rangeErr.Available != (domain.YearSpan{Start: 2000, End: 2019}) {
		t.Errorf("Available = %v, want 2000-2019", rangeErr.Available)
	}

	tests := []struct {
		name       string
		requested  *domain.YearSpan
		wantLabels domain.YearSpan
		wantYears  domain.YearSpan
		wantLast   string
	}{
		{"past the end", span(2015, 2025), domain.YearSpan{Start: 2015, End: 2019}, domain.YearSpan{Start: 2015, End: 2019}, "2019-12"},
		{"last year only", span(2019, 2019), domain.YearSpan{Start: 2019, End: 2019}, domain.YearSpan{Start: 2019, End: 2019}, "2019-12"},
		{"whole extent", nil, domain.YearSpan{Start: 2000, End: 2018}, domain.YearSpan{Start: 2000, End: 2019}, "2019-12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ResolveRange("IDAHO_EPSCOR/TERRACLIMATE", ext, tt.requested, false)
			if err != nil {
				t.Fatalf("ResolveRange() error = %v", err)
			}
			if r.Labels != tt.wantLabels {
				t.Errorf("Labels = %v, want %v", r.Labels, tt.wantLabels)
			}
			if r.YearBuckets != tt.wantYears {
				t.Errorf("YearBuckets = %v, want %v", r.YearBuckets, tt.wantYears)
			}
			if got := lastMonth(r); got != tt.wantLast {
				t.Errorf("last month = %s, want %s", got, tt.wantLast)
			}
		})
	}
}

// Without the start of the latest image the year comes from the instant
// before the exclusive end.
func TestSeriesExtentLastImage(t *testing.T) {
	tests := []struct {
		name string
		ext  domain.SeriesExtent
		want time.Time
	}{
		{"known", domain.SeriesExtent{First: date(2000, 1, 1), Last: date(2019, 12, 31), End: date(2020, 1, 1)}, date(2019, 12, 31)},
		{"from end", domain.SeriesExtent{First: date(2000, 1, 1), End: date(2020, 1, 1)}, date(2020, 1, 1).Add(-time.Nanosecond)},
		{"instant", domain.SeriesExtent{First: date(2000, 1, 1), End: date(2000, 1, 1)}, date(2000, 1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ext.LastImage(); !got.Equal(tt.want) {
				t.Errorf("LastImage() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Soil moisture trusts its series start: the first month is kept even when
// the series starts mid-month.
func TestResolveRangeTrustedStart(t *testing.T) {
	ext := domain.SeriesExtent{First: date(2015, 4, 2), End: date(2020, 1, 1)}

	plain, err := ResolveRange("series", ext, nil, false)
	if err != nil {
		t.Fatalf("ResolveRange() error = %v", err)
	}
	trusted, err := ResolveRange("NASA_USDA/HSL/soil_moisture", ext, nil, true)
	if err != nil {
		t.Fatalf("ResolveRange() error = %v", err)
	}

	if plain.MonthFrom != 4 {
		t.Errorf("plain MonthFrom = %d, want 4", plain.MonthFrom)
	}
	if trusted.MonthFrom != 3 {
		t.Errorf("trusted MonthFrom = %d, want 3", trusted.MonthFrom)
	}
	if firstMonth(trusted) != "2015-04" {
		t.Errorf("trusted first month = %s, want 2015-04", firstMonth(trusted))
	}
	if plain.YearBuckets.Start != 2016 || trusted.YearBuckets.Start != 2015 {
		t.Errorf("year buckets start = %d / %d, want 2016 / 2015", plain.YearBuckets.Start, trusted.YearBuckets.Start)
	}
}

func TestProbeExtent(t *testing.T) {
	engine := enginetest.New()
	engine.AddCollection("series",
		enginetest.Frame(date(2000, 2, 1), date(2000, 3, 1), "v", nil),
		enginetest.Frame(date(2000, 1, 1), date(2000, 2, 1), "v", nil),
	)
	engine.AddCollection("empty")

	ext, err := ProbeExtent(context.Background(), engine, "series", graph.LoadCollection("series"))
	if err != nil {
		t.Fatalf("ProbeExtent() error = %v", err)
	}
	if !ext.First.Equal(date(2000, 1, 1)) {
		t.Errorf("First = %v, want 2000-01-01", ext.First)
	}
	if !ext.Last.Equal(date(2000, 2, 1)) {
		t.Errorf("Last = %v, want 2000-02-01", ext.Last)
	}
	if !ext.End.Equal(date(2000, 3, 1)) {
		t.Errorf("End = %v, want 2000-03-01", ext.End)
	}
	if engine.ComputeCalls() != 1 {
		t.Errorf("ComputeCalls() = %d, want 1", engine.ComputeCalls())
	}

	_, err = ProbeExtent(context.Background(), engine, "empty", graph.LoadCollection("empty"))
	if !errors.Is(err, domain.ErrEmptyRange) {
		t.Errorf("ProbeExtent(empty) error = %v, want ErrEmptyRange", err)
	}
}

func TestProbeExtentRemoteFailure(t *testing.T) {
	engine := enginetest.New()
	engine.FailCompute = &domain.RemoteServiceError{Operation: "compute", StatusCode: 500}

	_, err := ProbeExtent(context.Background(), engine, "series", graph.LoadCollection("series"))
	if !errors.Is(err, domain.ErrRemoteService) {
		t.Errorf("ProbeExtent() error = %v, want ErrRemoteService", err)
	}
}
