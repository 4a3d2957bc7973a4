package domain

import "testing"

func TestDescriptionString(t *testing.T) {
	tests := []struct {
		name string
		desc Description
		want string
	}{
		{
			name: "climate projection",
			desc: Description{
				Prefix:   "projm",
				Tag:      "MACA",
				Metric:   "tasmax",
				Scenario: "rcp85",
				Model:    "CCSM4",
				Years:    &YearSpan{Start: 2020, End: 2030},
				Suffix:   BufferedMode(500).Suffix(),
			},
			want: "projm_MACA_tasmax_rcp85_CCSM4_2020_2030_ptsB",
		},
		{
			name: "empty tag",
			desc: Description{
				Prefix: "gm",
				Metric: "pr",
				Years:  &YearSpan{Start: 1979, End: 2018},
				Suffix: PointMode().Suffix(),
			},
			want: "gm_pr_1979_2018_pts1",
		},
		{
			name: "static",
			desc: Description{Prefix: "s", Tag: "tc", Metric: "2011", Suffix: PolygonMode().Suffix()},
			want: "s_tc_2011_poly1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.desc.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModeFromFlags(t *testing.T) {
	tests := []struct {
		name    string
		buffer  float64
		polygon bool
		want    GeometryKind
		suffix  string
	}{
		{"point", 0, false, GeometryPoint, "pts1"},
		{"buffered", 250, false, GeometryBuffered, "ptsB"},
		{"buffer wins", 250, true, GeometryBuffered, "ptsB"},
		{"polygon", 0, true, GeometryPolygon, "poly1"},
		{"negative buffer is not a point", -10, false, GeometryBuffered, "ptsB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ModeFromFlags(tt.buffer, tt.polygon)
			if m.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", m.Kind, tt.want)
			}
			if m.Suffix() != tt.suffix {
				t.Errorf("Suffix() = %q, want %q", m.Suffix(), tt.suffix)
			}
			if m.Aggregates() != (tt.want != GeometryPoint) {
				t.Errorf("Aggregates() = %v", m.Aggregates())
			}
		})
	}
}

func TestGeometrySourceValidate(t *testing.T) {
	tests := []struct {
		name    string
		src     GeometrySource
		wantErr bool
	}{
		{"table", GeometrySource{Account: "aschwantes", Asset: "sites"}, false},
		{"inline", GeometrySource{GeoJSON: []byte(`{"type":"FeatureCollection","features":[]}`)}, false},
		{"missing asset", GeometrySource{Account: "aschwantes"}, true},
		{"missing account", GeometrySource{Asset: "sites"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.src.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	src := GeometrySource{Account: "aschwantes", Asset: "sites"}
	if src.TableID() != "users/aschwantes/sites" {
		t.Errorf("TableID() = %q", src.TableID())
	}
	if src.Field() != DefaultIDField {
		t.Errorf("Field() = %q, want %q", src.Field(), DefaultIDField)
	}
}

func TestRequestSpan(t *testing.T) {
	if s, err := (ExtractionRequest{}).Span(); s != nil || err != nil {
		t.Errorf("Span() = %v, %v, want nil, nil", s, err)
	}
	if _, err := (ExtractionRequest{StartYear: 2000}).Span(); err == nil {
		t.Error("Span() with only a start year should fail")
	}
	s, err := (ExtractionRequest{StartYear: 2000, EndYear: 2010}).Span()
	if err != nil || *s != (YearSpan{Start: 2000, End: 2010}) {
		t.Errorf("Span() = %v, %v", s, err)
	}
}
