package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/graph"
)

// InlineGeometry is a locally validated GeoJSON FeatureCollection.
type InlineGeometry struct {
	Document  json.RawMessage
	Features  int
	Polygonal bool // every feature is a polygon or multipolygon
}

// ParseGeoJSON validates an inline FeatureCollection: every feature needs a
// geometry and a non-null idField property. The returned document is the
// re-encoded collection.
func ParseGeoJSON(data []byte, idField string) (*InlineGeometry, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, &domain.ValidationError{
			Field:      "geometry.geojson",
			Value:      len(data),
			Constraint: "FeatureCollection",
			Message:    err.Error(),
		}
	}
	if len(fc.Features) == 0 {
		return nil, &domain.ValidationError{
			Field:      "geometry.geojson",
			Value:      0,
			Constraint: "non-empty",
			Message:    "feature collection has no features",
		}
	}

	polygonal := true
	for i, f := range fc.Features {
		if f.Geometry == nil {
			return nil, &domain.ValidationError{
				Field:      fmt.Sprintf("geometry.geojson.features[%d]", i),
				Value:      nil,
				Constraint: "geometry",
				Message:    "feature has no geometry",
			}
		}
		if v, ok := f.Properties[idField]; !ok || v == nil {
			return nil, &domain.ValidationError{
				Field:      fmt.Sprintf("geometry.geojson.features[%d].properties.%s", i, idField),
				Value:      v,
				Constraint: "required",
				Message:    "feature has no identifier",
			}
		}
		switch f.Geometry.GeoJSONType() {
		case "Polygon", "MultiPolygon":
		default:
			polygonal = false
		}
	}

	doc, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding feature collection: %w", err)
	}
	return &InlineGeometry{Document: doc, Features: len(fc.Features), Polygonal: polygonal}, nil
}

// ResolveGeometry loads the input locations, buffers them when mode asks
// for it and keeps only the identifier property.
func ResolveGeometry(src domain.GeometrySource, mode domain.GeometryMode) (graph.Features, error) {
	if err := src.Validate(); err != nil {
		return graph.Features{}, err
	}
	if mode.Kind == domain.GeometryBuffered && mode.Radius <= 0 {
		return graph.Features{}, &domain.ValidationError{
			Field:      "buffer",
			Value:      mode.Radius,
			Constraint: "> 0",
			Message:    "buffer radius must be positive",
		}
	}

	var fc graph.Features
	alreadyPolygonal := false
	if len(src.GeoJSON) > 0 {
		inline, err := ParseGeoJSON(src.GeoJSON, src.Field())
		if err != nil {
			return graph.Features{}, err
		}
		fc = graph.FromGeoJSON(inline.Document)
		alreadyPolygonal = inline.Polygonal
	} else {
		fc = graph.LoadTable(src.TableID())
	}

	if mode.Kind == domain.GeometryBuffered && !alreadyPolygonal {
		radius := mode.Radius
		fc = fc.Map(func(f graph.Feature) graph.Feature { return f.Buffer(radius) })
	}

	return fc.Select([]string{src.Field()}, true), nil
}
