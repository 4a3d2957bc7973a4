package domain

import (
	"strconv"
	"strings"
)

// Description is the deterministic export name:
//
//	<prefix>_<tag>_<metric>[_<scenario>_<model>]_<start>_<end>_<suffix>
//
// Empty parts are skipped.
type Description struct {
	Prefix   string // time-step abbreviation or static prefix
	Tag      string // product or source tag
	Metric   string
	Scenario string
	Model    string
	Years    *YearSpan
	Suffix   string // geometry mode suffix
}

// String returns the export name.
func (d Description) String() string {
	parts := []string{d.Prefix, d.Tag, d.Metric, d.Scenario, d.Model}
	if d.Years != nil {
		parts = append(parts, strconv.Itoa(d.Years.Start), strconv.Itoa(d.Years.End))
	}
	parts = append(parts, d.Suffix)
	return JoinName(parts...)
}

// JoinName joins the non-empty parts with underscores.
func JoinName(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "_")
}
