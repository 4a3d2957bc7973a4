package pipeline

import (
	"fmt"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/graph"
)

// Step describes how a series is bucketed in time.
type Step struct {
	TimeStep domain.TimeStep
	Reducer  domain.Reducer // mean, sum or first
	// Native marks a series whose cadence already equals TimeStep.
	Native bool
}

// Composite buckets series into one image per window of r. Day and lowest
// steps, and native steps, pass the series through restricted to r.Days.
func Composite(series graph.Collection, r domain.DateRange, step Step) (graph.Collection, error) {
	if step.Native || step.TimeStep == domain.StepDay || step.TimeStep == domain.StepLowest {
		return series.Filter(graph.CalendarRange(r.Days.Start, r.Days.End, graph.FieldYear)), nil
	}

	var windows []domain.TimeWindow
	switch step.TimeStep {
	case domain.StepYear:
		windows = r.YearWindows()
	case domain.StepMonth:
		windows = r.MonthWindows()
	default:
		return graph.Collection{}, fmt.Errorf("compositing by %q: %w", step.TimeStep, domain.ErrUnsupported)
	}

	var reducer graph.Reducer
	if step.Reducer != domain.ReduceFirst {
		red, err := ReducerOf(step.Reducer)
		if err != nil {
			return graph.Collection{}, err
		}
		reducer = red
	}

	images := make([]graph.Image, len(windows))
	for i, w := range windows {
		images[i] = compositeWindow(series, w, reducer)
	}
	return graph.FromImages(images), nil
}

// WindowMembers restricts series to the images starting in w.
func WindowMembers(series graph.Collection, w domain.TimeWindow) graph.Collection {
	if w.Step == domain.StepMonth {
		return series.
			Filter(graph.CalendarRange(w.Month, w.Month, graph.FieldMonth)).
			Filter(graph.CalendarRange(w.Year, w.Year, graph.FieldYear))
	}
	return series.Filter(graph.CalendarRange(w.Year, w.Year, graph.FieldYear))
}

// compositeWindow reduces the members of one window. A zero reducer keeps
// the first member as is.
func compositeWindow(series graph.Collection, w domain.TimeWindow, reducer graph.Reducer) graph.Image {
	members := WindowMembers(series, w)
	if reducer.Node == nil {
		return members.First()
	}
	return members.Reduce(reducer).CopyProperties(members.First(), graph.PropTimeStart, graph.PropTimeEnd)
}
