package domain

import (
	"fmt"
	"time"
)

// TimeStep is the bucketing granularity of a time-series extraction.
type TimeStep string

// Time steps.
const (
	StepDay    TimeStep = "day"
	StepMonth  TimeStep = "month"
	StepYear   TimeStep = "year"
	StepLowest TimeStep = "lowest" // native cadence of the series
	StepStatic TimeStep = ""       // products without a time dimension
)

// Composites reports whether the step aggregates images into calendar
// windows.
func (s TimeStep) Composites() bool {
	return s == StepMonth || s == StepYear
}

// YearSpan is an inclusive range of calendar years.
type YearSpan struct {
	Start int `json:"start_year" yaml:"start_year"`
	End   int `json:"end_year" yaml:"end_year"`
}

// Empty reports whether the span contains no year.
func (s YearSpan) Empty() bool { return s.Start > s.End }

// Contains reports whether year lies in the span.
func (s YearSpan) Contains(year int) bool { return year >= s.Start && year <= s.End }

// Years lists the years of the span in order.
func (s YearSpan) Years() []int {
	if s.Empty() {
		return nil
	}
	out := make([]int, 0, s.End-s.Start+1)
	for y := s.Start; y <= s.End; y++ {
		out = append(out, y)
	}
	return out
}

// String returns the string representation of the span.
func (s YearSpan) String() string {
	return fmt.Sprintf("%d-%d", s.Start, s.End)
}

// SeriesExtent is the temporal coverage of an image series: the start of
// its earliest image, the start of its latest image and the instant its
// latest image ends. End is exclusive.
type SeriesExtent struct {
	First time.Time
	Last  time.Time
	End   time.Time
}

// LastImage returns the start of the latest image. When it is unknown the
// last instant before End is used.
func (e SeriesExtent) LastImage() time.Time {
	switch {
	case !e.Last.IsZero():
		return e.Last
	case e.End.After(e.First):
		return e.End.Add(-time.Nanosecond)
	default:
		return e.End
	}
}

// Years returns the calendar years from the earliest to the latest image.
func (e SeriesExtent) Years() YearSpan {
	return YearSpan{Start: e.First.Year(), End: e.LastImage().Year()}
}

// MonthOf maps a zero-based month index relative to January of baseYear to
// a calendar (year, month).
func MonthOf(baseYear, index int) (year, month int) {
	return baseYear + index/12, 1 + index%12
}

// TimeWindow is one bucket of a composite: a calendar month or year.
type TimeWindow struct {
	Step  TimeStep
	Year  int
	Month int // 1-12 for month windows, 0 for year windows
}

// Start returns the first instant of the window in UTC.
func (w TimeWindow) Start() time.Time {
	if w.Step == StepMonth {
		return time.Date(w.Year, time.Month(w.Month), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(w.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant after the window in UTC.
func (w TimeWindow) End() time.Time {
	if w.Step == StepMonth {
		return w.Start().AddDate(0, 1, 0)
	}
	return w.Start().AddDate(1, 0, 0)
}

// String returns the string representation of the window.
func (w TimeWindow) String() string {
	if w.Step == StepMonth {
		return fmt.Sprintf("%04d-%02d", w.Year, w.Month)
	}
	return fmt.Sprintf("%04d", w.Year)
}

// DateRange is the resolved temporal extent of an extraction.
type DateRange struct {
	// Labels are the first and last year written into export file names.
	Labels YearSpan
	// YearBuckets are the years composited at year level.
	YearBuckets YearSpan
	// MonthBase is the year of month index 0.
	MonthBase int
	// MonthFrom and MonthTo delimit the half-open month index range.
	MonthFrom int
	MonthTo   int
	// Days is the year span passed through at day and lowest level.
	Days YearSpan
}

// FixedRange is the range of a catalogue series whose coverage is known in
// advance: every year and month of the requested span is composited.
func FixedRange(span YearSpan) (DateRange, error) {
	if span.Empty() {
		return DateRange{}, &EmptyRangeError{Requested: span, Available: span}
	}
	return DateRange{
		Labels:      span,
		YearBuckets: span,
		MonthBase:   span.Start,
		MonthFrom:   0,
		MonthTo:     12 * (span.End - span.Start + 1),
		Days:        span,
	}, nil
}

// YearWindows lists the year buckets.
func (r DateRange) YearWindows() []TimeWindow {
	years := r.YearBuckets.Years()
	out := make([]TimeWindow, len(years))
	for i, y := range years {
		out[i] = TimeWindow{Step: StepYear, Year: y}
	}
	return out
}

// MonthWindows lists the month buckets.
func (r DateRange) MonthWindows() []TimeWindow {
	if r.MonthTo <= r.MonthFrom {
		return nil
	}
	out := make([]TimeWindow, 0, r.MonthTo-r.MonthFrom)
	for i := r.MonthFrom; i < r.MonthTo; i++ {
		y, m := MonthOf(r.MonthBase, i)
		out = append(out, TimeWindow{Step: StepMonth, Year: y, Month: m})
	}
	return out
}
