package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/graph"
)

// Computer evaluates an expression and returns its JSON value.
type Computer interface {
	Compute(ctx context.Context, expr *graph.Node) (json.RawMessage, error)
}

// ExtentExpression evaluates to [first start, last end, last start] in
// milliseconds since the epoch.
func ExtentExpression(series graph.Collection) *graph.Node {
	first := series.Sort(graph.PropTimeStart, true).First()
	last := series.Sort(graph.PropTimeStart, false).First()
	return graph.List(
		first.Get(graph.PropTimeStart),
		last.Get(graph.PropTimeEnd),
		last.Get(graph.PropTimeStart),
	)
}

// ProbeExtent fetches the temporal coverage of series in one round trip.
// The extent ends when the last image ends; images without an end time are
// treated as instants.
func ProbeExtent(ctx context.Context, c Computer, id string, series graph.Collection) (domain.SeriesExtent, error) {
	raw, err := c.Compute(ctx, ExtentExpression(series))
	if err != nil {
		return domain.SeriesExtent{}, fmt.Errorf("probing extent of %s: %w", id, err)
	}

	var values []*float64
	if err := json.Unmarshal(raw, &values); err != nil || len(values) != 3 {
		return domain.SeriesExtent{}, &domain.RemoteServiceError{
			Operation: "compute",
			Message:   fmt.Sprintf("unexpected extent value for %s: %s", id, string(raw)),
			Err:       err,
		}
	}

	if values[0] == nil {
		return domain.SeriesExtent{}, &domain.EmptyRangeError{Series: id}
	}
	last := values[2]
	if last == nil {
		last = values[0]
	}
	end := values[1]
	if end == nil {
		end = last
	}

	return domain.SeriesExtent{
		First: time.UnixMilli(int64(*values[0])).UTC(),
		Last:  time.UnixMilli(int64(*last)).UTC(),
		End:   time.UnixMilli(int64(*end)).UTC(),
	}, nil
}

// ResolveRange clamps the requested years to the extent and works out the
// composite windows. A nil request covers the whole extent.
//
// The requested years are clamped to the years of the earliest and latest
// image. Windows at a boundary the caller reached are only kept when the
// series covers them completely: months and years ending after the extent
// end are dropped, as are the first month and year when the series starts
// inside them. trustStart keeps the first month and year regardless.
func ResolveRange(id string, ext domain.SeriesExtent, requested *domain.YearSpan, trustStart bool) (domain.DateRange, error) {
	first, end := ext.First.UTC(), ext.End.UTC()
	available := ext.Years()

	span := available
	labels := domain.YearSpan{Start: available.Start, End: max(available.Start, available.End-1)}
	startTouched := true

	if requested != nil {
		span = domain.YearSpan{
			Start: max(available.Start, requested.Start),
			End:   min(available.End, requested.End),
		}
		if span.Empty() {
			return domain.DateRange{}, &domain.EmptyRangeError{
				Series:    id,
				Available: available,
				Requested: *requested,
			}
		}
		labels = span
		startTouched = requested.Start <= available.Start
	}

	monthAligned := trustStart || isMonthStart(first)
	yearAligned := trustStart || (monthAligned && first.Month() == time.January)

	r := domain.DateRange{
		Labels:      labels,
		YearBuckets: span,
		MonthBase:   span.Start,
		MonthFrom:   0,
		MonthTo:     12 * (span.End - span.Start + 1),
		Days:        span,
	}

	if startTouched {
		r.MonthFrom = int(first.Month()) - 1
		if !monthAligned {
			r.MonthFrom++
		}
		if !yearAligned {
			r.YearBuckets.Start++
		}
	}
	// months and years before the one holding end are complete
	r.MonthTo = min(r.MonthTo, 12*(end.Year()-span.Start)+int(end.Month())-1)
	r.YearBuckets.End = min(r.YearBuckets.End, end.Year()-1)

	return r, nil
}

func isMonthStart(t time.Time) bool {
	return t.Day() == 1 && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}
