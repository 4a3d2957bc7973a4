package domain

// Reducer names an aggregation over pixels or images.
type Reducer string

// Reducers.
const (
	ReduceMean      Reducer = "mean"
	ReduceSum       Reducer = "sum"
	ReduceMode      Reducer = "mode"
	ReduceHistogram Reducer = "histogram"
	// ReduceFirst keeps the first image of a window. Temporal only.
	ReduceFirst Reducer = "first"
)

// Column is the result column written by a spatial reduction.
func (r Reducer) Column() string {
	return string(r)
}
