package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultIDField is the property that identifies every input geometry.
const DefaultIDField = "geeID"

// GeometryKind selects how statistics are gathered around each location.
type GeometryKind int

// Geometry kinds.
const (
	GeometryPoint GeometryKind = iota
	GeometryBuffered
	GeometryPolygon
)

// String returns the string representation of the kind.
func (k GeometryKind) String() string {
	switch k {
	case GeometryPoint:
		return "point"
	case GeometryBuffered:
		return "buffered"
	case GeometryPolygon:
		return "polygon"
	default:
		return "unknown"
	}
}

// GeometryMode is a tagged variant: Point, Buffered(radius) or Polygon.
type GeometryMode struct {
	Kind   GeometryKind
	Radius float64 // meters, Buffered only
}

// PointMode reduces at the point location.
func PointMode() GeometryMode { return GeometryMode{Kind: GeometryPoint} }

// BufferedMode reduces within a circle of the given radius in meters.
func BufferedMode(radius float64) GeometryMode {
	return GeometryMode{Kind: GeometryBuffered, Radius: radius}
}

// PolygonMode reduces over the supplied polygon.
func PolygonMode() GeometryMode { return GeometryMode{Kind: GeometryPolygon} }

// ModeFromFlags maps a buffer radius and polygon flag to a mode. Any non-zero
// buffer wins over the polygon flag; a negative radius is kept so that
// geometry resolution rejects it.
func ModeFromFlags(buffer float64, polygon bool) GeometryMode {
	switch {
	case buffer != 0:
		return BufferedMode(buffer)
	case polygon:
		return PolygonMode()
	default:
		return PointMode()
	}
}

// Suffix is the geometry part of export file names.
func (m GeometryMode) Suffix() string {
	switch m.Kind {
	case GeometryBuffered:
		return "ptsB"
	case GeometryPolygon:
		return "poly1"
	default:
		return "pts1"
	}
}

// Aggregates reports whether a reduction covers more than one pixel.
func (m GeometryMode) Aggregates() bool {
	return m.Kind != GeometryPoint
}

// String returns the string representation of the mode.
func (m GeometryMode) String() string {
	if m.Kind == GeometryBuffered {
		return fmt.Sprintf("buffered(%gm)", m.Radius)
	}
	return m.Kind.String()
}

// GeometrySource identifies where the input locations come from: either a
// table stored under an account on the remote platform, or an inline GeoJSON
// FeatureCollection.
type GeometrySource struct {
	Account     string          `json:"account,omitempty" yaml:"account,omitempty"`
	Asset       string          `json:"asset,omitempty" yaml:"asset,omitempty"`
	IDField     string          `json:"id_field,omitempty" yaml:"id_field,omitempty"`
	GeoJSON     json.RawMessage `json:"geojson,omitempty" yaml:"-"`
	GeoJSONFile string          `json:"-" yaml:"geojson_file,omitempty"`
}

// TableID returns the remote identifier of the stored table.
func (s GeometrySource) TableID() string {
	return "users/" + s.Account + "/" + s.Asset
}

// Field returns the identifier property name.
func (s GeometrySource) Field() string {
	if s.IDField == "" {
		return DefaultIDField
	}
	return s.IDField
}

// Validate checks that the source can be resolved.
func (s GeometrySource) Validate() error {
	if len(s.GeoJSON) > 0 {
		return nil
	}
	if strings.TrimSpace(s.Asset) == "" {
		return &ValidationError{
			Field:      "geometry.asset",
			Value:      s.Asset,
			Constraint: "required",
			Message:    "a stored table or inline GeoJSON is required",
		}
	}
	if strings.TrimSpace(s.Account) == "" {
		return &ValidationError{
			Field:      "geometry.account",
			Value:      s.Account,
			Constraint: "required",
			Message:    "the account owning the table is required",
		}
	}
	return nil
}
