package pipeline

import (
	"testing"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/enginetest"
	"github.com/jobrunner/envextract/internal/graph"
)

func TestReduceImage(t *testing.T) {
	engine := enginetest.New()
	engine.AddImage("lc", enginetest.Static("landcover", map[string][]float64{
		"a": {41, 41, 42},
		"b": {11},
	}))
	engine.AddTable("users/test/sites", "a", "b")
	geoms := graph.LoadTable("users/test/sites")

	tests := []struct {
		reducer domain.Reducer
		wantA   any
	}{
		{domain.ReduceMean, (41.0 + 41 + 42) / 3},
		{domain.ReduceSum, 124.0},
		{domain.ReduceMode, 41.0},
	}

	for _, tt := range tests {
		t.Run(string(tt.reducer), func(t *testing.T) {
			rows, err := ReduceImage(graph.LoadImage("lc"), geoms, tt.reducer, 30)
			if err != nil {
				t.Fatalf("ReduceImage() error = %v", err)
			}
			out, err := engine.Rows(rows.Node)
			if err != nil {
				t.Fatalf("Rows() error = %v", err)
			}
			if out[0][tt.reducer.Column()] != tt.wantA {
				t.Errorf("%s = %v, want %v", tt.reducer.Column(), out[0][tt.reducer.Column()], tt.wantA)
			}
		})
	}

	rows, err := ReduceImage(graph.LoadImage("lc"), geoms, domain.ReduceHistogram, 30)
	if err != nil {
		t.Fatalf("ReduceImage() error = %v", err)
	}
	out, err := engine.Rows(rows.Node)
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	hist := out[0]["histogram"].(map[string]any)
	if hist["41"] != 2.0 || hist["42"] != 1.0 {
		t.Errorf("histogram = %v", hist)
	}
}

func TestReduceUnknownReducer(t *testing.T) {
	if _, err := ReduceImage(graph.LoadImage("x"), graph.LoadTable("t"), "median", 30); err == nil {
		t.Error("ReduceImage() with an unknown reducer should fail")
	}
	if _, err := ReduceSeries(graph.LoadCollection("x"), graph.LoadTable("t"), domain.ReduceFirst, 30); err == nil {
		t.Error("ReduceSeries() with a temporal-only reducer should fail")
	}
}

func TestShapeExportDropsNullRows(t *testing.T) {
	engine := enginetest.New()
	engine.AddImage("img", enginetest.Static("v", map[string][]float64{"a": {1}, "b": {nan()}}))
	engine.AddTable("users/test/sites", "a", "b")

	rows, err := ReduceImage(graph.LoadImage("img"), graph.LoadTable("users/test/sites"), domain.ReduceMean, 30)
	if err != nil {
		t.Fatalf("ReduceImage() error = %v", err)
	}
	shaped := ShapeExport(rows, "mean")
	out, err := engine.Rows(shaped.Node)
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(out) != 1 || out[0][domain.DefaultIDField] != "a" {
		t.Errorf("rows = %v, want only a", out)
	}

	again, err := engine.Rows(ShapeExport(shaped, "mean").Node)
	if err != nil {
		t.Fatalf("Rows() error = %v", err)
	}
	if len(again) != len(out) {
		t.Errorf("second filter kept %d rows, want %d", len(again), len(out))
	}
}
