package pipeline

import (
	"math"
	"testing"

	"github.com/jobrunner/envextract/internal/enginetest"
	"github.com/jobrunner/envextract/internal/graph"
)

func TestConversionApply(t *testing.T) {
	engine := enginetest.New()
	engine.AddImage("img", enginetest.Static("a", map[string][]float64{"p": {15000}}).
		With("b", map[string][]float64{"p": {5000}}))

	tests := []struct {
		name string
		conv Conversion
		band string
		want float64
	}{
		{"identity", Identity(), "a", 15000},
		{"float", Float(), "a", 15000},
		{"scale", Scaled(0.0001), "a", 1.5},
		{"divide", Divided(100), "a", 150},
		{"kelvin to celsius", Affine(0.02, -273.15), "a", 26.85},
		{"radians", Radians(), "b", 5000 * math.Pi / 180},
		{"normalized difference", NormalizedDifference("a", "b", "NDVI"), "NDVI", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := engine.Evaluate(tt.conv.Apply(graph.LoadImage("img")).Select(tt.band).Node)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			got := v.(*enginetest.Raster).Bands[0].Pixels["p"][0]
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConversionKeepsTimestamps(t *testing.T) {
	engine := enginetest.New()
	engine.AddCollection("series", enginetest.Frame(date(2001, 1, 1), date(2001, 1, 9), "v", enginetest.Uniform(2, "p")))

	v, err := engine.Evaluate(Scaled(2).ApplySeries(graph.LoadCollection("series")).Node)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	images := v.([]*enginetest.Raster)
	if len(images) != 1 {
		t.Fatalf("got %d images, want 1", len(images))
	}
	if _, ok := images[0].Props[graph.PropTimeStart]; !ok {
		t.Error("converted image lost its start time")
	}
	if got := images[0].Bands[0].Pixels["p"][0]; got != 4 {
		t.Errorf("pixel = %v, want 4", got)
	}
}

func TestCircularComponents(t *testing.T) {
	engine := enginetest.New()
	engine.AddImage("aspect", enginetest.Static("aspect", map[string][]float64{"p": {90}}))

	sin, cos := CircularComponents(Radians().Apply(graph.LoadImage("aspect")))
	sv, err := engine.Evaluate(sin.Node)
	if err != nil {
		t.Fatalf("Evaluate(sin) error = %v", err)
	}
	cv, err := engine.Evaluate(cos.Node)
	if err != nil {
		t.Fatalf("Evaluate(cos) error = %v", err)
	}
	s := sv.(*enginetest.Raster).Bands[0].Pixels["p"][0]
	c := cv.(*enginetest.Raster).Bands[0].Pixels["p"][0]
	if math.Abs(s-1) > 1e-9 || math.Abs(c) > 1e-9 {
		t.Errorf("sin, cos = %v, %v, want 1, 0", s, c)
	}
}
