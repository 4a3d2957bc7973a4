package pipeline

import (
	"fmt"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/graph"
)

// StartDateField is the row property holding the start of the window a
// statistic was computed over.
const StartDateField = "startDate"

// ReducerOf maps a reducer name to its graph node.
func ReducerOf(r domain.Reducer) (graph.Reducer, error) {
	switch r {
	case domain.ReduceMean:
		return graph.MeanReducer(), nil
	case domain.ReduceSum:
		return graph.SumReducer(), nil
	case domain.ReduceMode:
		return graph.ModeReducer(), nil
	case domain.ReduceHistogram:
		return graph.HistogramReducer(), nil
	}
	return graph.Reducer{}, fmt.Errorf("reducer %q: %w", r, domain.ErrUnsupported)
}

// ReduceImage computes one statistic per geometry of a static image.
func ReduceImage(img graph.Image, geoms graph.Features, r domain.Reducer, scale float64) (graph.Features, error) {
	red, err := ReducerOf(r)
	if err != nil {
		return graph.Features{}, err
	}
	return img.ReduceRegions(geoms, red, scale), nil
}

// ReduceSeries computes one statistic per geometry and composite, tagging
// each row with the composite's start date.
func ReduceSeries(composites graph.Collection, geoms graph.Features, r domain.Reducer, scale float64) (graph.Features, error) {
	red, err := ReducerOf(r)
	if err != nil {
		return graph.Features{}, err
	}
	return composites.MapToFeatures(func(img graph.Image) graph.Features {
		start := graph.Date(img.Get(graph.PropTimeStart))
		return img.ReduceRegions(geoms, red, scale).Map(func(f graph.Feature) graph.Feature {
			return f.Set(StartDateField, start)
		})
	}), nil
}
