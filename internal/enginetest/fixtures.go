// Package enginetest evaluates expression graphs in memory over synthetic
// fixtures. A raster band stores, for every input location, the pixels that
// location covers; NaN marks a masked pixel. The engine implements
// output.ComputeService so services can be exercised end to end.
package enginetest

import (
	"maps"
	"math"
	"time"

	"github.com/jobrunner/envextract/internal/graph"
)

// Band is one raster band.
type Band struct {
	Name   string
	Pixels map[string][]float64 // location key → covered pixels
}

// Raster is an image with properties.
type Raster struct {
	Bands  []Band
	Props  map[string]any
	scalar *float64
}

// Feature is a vector feature. Key selects the pixels it covers.
type Feature struct {
	Key         string
	Props       map[string]any
	Buffer      float64
	HasGeometry bool
}

// Date is a date value in milliseconds since the epoch.
type Date float64

// Time returns the date as a UTC time.
func (d Date) Time() time.Time { return time.UnixMilli(int64(d)).UTC() }

// Frame is an image covering [start, end) with a single band.
func Frame(start, end time.Time, band string, pixels map[string][]float64) *Raster {
	return &Raster{
		Bands: []Band{{Name: band, Pixels: pixels}},
		Props: map[string]any{
			graph.PropTimeStart: float64(start.UnixMilli()),
			graph.PropTimeEnd:   float64(end.UnixMilli()),
		},
	}
}

// Static is an image without time properties.
func Static(band string, pixels map[string][]float64) *Raster {
	return &Raster{Bands: []Band{{Name: band, Pixels: pixels}}, Props: map[string]any{}}
}

// Uniform assigns the same single pixel value to every key.
func Uniform(v float64, keys ...string) map[string][]float64 {
	out := make(map[string][]float64, len(keys))
	for _, k := range keys {
		out[k] = []float64{v}
	}
	return out
}

// With adds a band.
func (r *Raster) With(band string, pixels map[string][]float64) *Raster {
	r.Bands = append(r.Bands, Band{Name: band, Pixels: pixels})
	return r
}

func (r *Raster) band(name string) (Band, bool) {
	for _, b := range r.Bands {
		if b.Name == name {
			return b, true
		}
	}
	return Band{}, false
}

func (r *Raster) withBands(bands []Band) *Raster {
	p := maps.Clone(r.Props)
	if p == nil {
		p = map[string]any{}
	}
	return &Raster{Bands: bands, Props: p}
}

func (f *Feature) clone() *Feature {
	c := *f
	c.Props = maps.Clone(f.Props)
	if c.Props == nil {
		c.Props = map[string]any{}
	}
	return &c
}

func mapPixels(b Band, fn func(float64) float64) Band {
	out := Band{Name: b.Name, Pixels: make(map[string][]float64, len(b.Pixels))}
	for k, px := range b.Pixels {
		vals := make([]float64, len(px))
		for i, v := range px {
			if math.IsNaN(v) {
				vals[i] = math.NaN()
				continue
			}
			vals[i] = fn(v)
		}
		out.Pixels[k] = vals
	}
	return out
}

func timeStart(props map[string]any) (time.Time, bool) {
	v, ok := props[graph.PropTimeStart].(float64)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(v)).UTC(), true
}
