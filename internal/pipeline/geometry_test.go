package pipeline

import (
	"errors"
	"math"
	"testing"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/enginetest"
	"github.com/jobrunner/envextract/internal/graph"
)

func nan() float64 { return math.NaN() }

const pointsDoc = `{"type":"FeatureCollection","features":[
	{"type":"Feature","geometry":{"type":"Point","coordinates":[-105.1,40.5]},"properties":{"geeID":"site-1","name":"north"}},
	{"type":"Feature","geometry":{"type":"Point","coordinates":[-105.2,40.6]},"properties":{"geeID":"site-2"}}
]}`

const polygonDoc = `{"type":"FeatureCollection","features":[
	{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"properties":{"geeID":"plot"}}
]}`

func TestParseGeoJSON(t *testing.T) {
	tests := []struct {
		name          string
		doc           string
		wantFeatures  int
		wantPolygonal bool
		wantErr       bool
	}{
		{"points", pointsDoc, 2, false, false},
		{"polygons", polygonDoc, 1, true, false},
		{"missing id", `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":{}}]}`, 0, false, true},
		{"empty", `{"type":"FeatureCollection","features":[]}`, 0, false, true},
		{"not json", `nope`, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGeoJSON([]byte(tt.doc), domain.DefaultIDField)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidInput) {
					t.Errorf("ParseGeoJSON() error = %v, want ErrInvalidInput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseGeoJSON() error = %v", err)
			}
			if got.Features != tt.wantFeatures || got.Polygonal != tt.wantPolygonal {
				t.Errorf("ParseGeoJSON() = %d features polygonal=%v", got.Features, got.Polygonal)
			}
		})
	}
}

func TestResolveGeometry(t *testing.T) {
	engine := enginetest.New()
	engine.AddTable("users/aschwantes/sites", "a", "b")

	tests := []struct {
		name       string
		src        domain.GeometrySource
		mode       domain.GeometryMode
		wantCount  int
		wantBuffer float64
	}{
		{"table points", domain.GeometrySource{Account: "aschwantes", Asset: "sites"}, domain.PointMode(), 2, 0},
		{"table buffered", domain.GeometrySource{Account: "aschwantes", Asset: "sites"}, domain.BufferedMode(500), 2, 500},
		{"inline buffered", domain.GeometrySource{GeoJSON: []byte(pointsDoc)}, domain.BufferedMode(250), 2, 250},
		{"inline polygons are not buffered", domain.GeometrySource{GeoJSON: []byte(polygonDoc)}, domain.BufferedMode(250), 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc, err := ResolveGeometry(tt.src, tt.mode)
			if err != nil {
				t.Fatalf("ResolveGeometry() error = %v", err)
			}
			v, err := engine.Evaluate(fc.Node)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			features := v.([]*enginetest.Feature)
			if len(features) != tt.wantCount {
				t.Fatalf("got %d features, want %d", len(features), tt.wantCount)
			}
			for _, f := range features {
				if f.Buffer != tt.wantBuffer {
					t.Errorf("buffer = %v, want %v", f.Buffer, tt.wantBuffer)
				}
				if len(f.Props) != 1 || f.Props[domain.DefaultIDField] == nil {
					t.Errorf("properties = %v, want only %s", f.Props, domain.DefaultIDField)
				}
				if !f.HasGeometry {
					t.Error("geometry should be retained")
				}
			}
		})
	}
}

func TestResolveGeometryInvalid(t *testing.T) {
	if _, err := ResolveGeometry(domain.GeometrySource{}, domain.PointMode()); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("ResolveGeometry(empty) error = %v, want ErrInvalidInput", err)
	}
	src := domain.GeometrySource{Account: "a", Asset: "b"}
	if _, err := ResolveGeometry(src, domain.GeometryMode{Kind: domain.GeometryBuffered}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("ResolveGeometry(zero radius) error = %v, want ErrInvalidInput", err)
	}
	var valErr *domain.ValidationError
	if _, err := ResolveGeometry(src, domain.ModeFromFlags(-50, false)); !errors.As(err, &valErr) || valErr.Field != "buffer" {
		t.Errorf("ResolveGeometry(negative radius) error = %v, want a buffer ValidationError", err)
	}
	fc, err := ResolveGeometry(src, domain.PolygonMode())
	if err != nil {
		t.Fatalf("ResolveGeometry() error = %v", err)
	}
	if fc.Ref("input").Op != graph.OpCollectionLoadTable {
		t.Error("polygon mode should select straight from the table")
	}
}
