package graph

// Filter and reducer operations.
const (
	OpFilterCalendarRange       = "Filter.calendarRange"
	OpFilterEquals              = "Filter.equals"
	OpFilterNotEquals           = "Filter.neq"
	OpFilterAnd                 = "Filter.and"
	OpReducerMean               = "Reducer.mean"
	OpReducerSum                = "Reducer.sum"
	OpReducerMode               = "Reducer.mode"
	OpReducerFrequencyHistogram = "Reducer.frequencyHistogram"
)

// Calendar fields accepted by CalendarRange.
const (
	FieldYear  = "year"
	FieldMonth = "month"
)

// Filter is a predicate over collection elements.
type Filter struct{ *Node }

// CalendarRange matches elements whose start time falls in [start, end] of
// the given calendar field.
func CalendarRange(start, end int, field string) Filter {
	return Filter{invoke(OpFilterCalendarRange, map[string]any{
		"start": start,
		"end":   end,
		"field": field,
	})}
}

// Equals matches elements whose property equals value.
func Equals(property string, value any) Filter {
	return Filter{invoke(OpFilterEquals, map[string]any{"leftField": property, "rightValue": value})}
}

// NotNull matches elements whose property is present and not null.
func NotNull(property string) Filter {
	return Filter{invoke(OpFilterNotEquals, map[string]any{"leftField": property, "rightValue": nil})}
}

// And combines filters.
func And(filters ...Filter) Filter {
	items := make([]any, len(filters))
	for i, f := range filters {
		items[i] = f.Node
	}
	return Filter{invoke(OpFilterAnd, map[string]any{"filters": items})}
}

// Reducer is an aggregation function.
type Reducer struct{ *Node }

// MeanReducer averages the input.
func MeanReducer() Reducer { return Reducer{invoke(OpReducerMean, nil)} }

// SumReducer sums the input.
func SumReducer() Reducer { return Reducer{invoke(OpReducerSum, nil)} }

// ModeReducer returns the most frequent value.
func ModeReducer() Reducer { return Reducer{invoke(OpReducerMode, nil)} }

// HistogramReducer counts occurrences per class value.
func HistogramReducer() Reducer { return Reducer{invoke(OpReducerFrequencyHistogram, nil)} }
