package domain

import "time"

// ResultRow is one exported record: a geometry identifier, its statistics
// and the start of the time window they were computed over.
type ResultRow struct {
	ID        string              `json:"id"`
	Values    map[string]*float64 `json:"values"`        // nil value means null
	Raw       map[string]string   `json:"raw,omitempty"` // non-numeric columns such as histograms
	StartDate *time.Time          `json:"start_date,omitempty"`
}

// ResultTable is a parsed export.
type ResultTable struct {
	Key     string      `json:"key"`
	Column  string      `json:"column"`
	Columns []string    `json:"columns"`
	Rows    []ResultRow `json:"rows"`
	Dropped int         `json:"dropped"`
}

// Value returns the named statistic and whether it is present.
func (r ResultRow) Value(column string) (float64, bool) {
	v, ok := r.Values[column]
	if !ok || v == nil {
		_, raw := r.Raw[column]
		return 0, raw && r.Raw[column] != ""
	}
	return *v, true
}

// FilterNullRows drops the rows whose statistic column is null or missing.
// Applying it more than once yields the same rows.
func FilterNullRows(rows []ResultRow, column string) []ResultRow {
	out := make([]ResultRow, 0, len(rows))
	for _, r := range rows {
		if _, ok := r.Value(column); ok {
			out = append(out, r)
		}
	}
	return out
}
