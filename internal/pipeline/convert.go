package pipeline

import (
	"math"

	"github.com/jobrunner/envextract/internal/graph"
)

// ConversionKind selects how raw band values are turned into physical units.
type ConversionKind int

// Conversion kinds.
const (
	ConvertIdentity ConversionKind = iota
	ConvertFloat
	ConvertScale
	ConvertDivide
	ConvertAffine
	ConvertNormalizedDifference
	ConvertRadians
)

// Conversion is a per-image unit conversion.
type Conversion struct {
	Kind   ConversionKind
	Scale  float64
	Offset float64
	BandA  string // normalized difference (a - b) / (a + b)
	BandB  string
	Name   string // output band name, normalized difference only
}

// Identity keeps values as stored.
func Identity() Conversion { return Conversion{Kind: ConvertIdentity} }

// Float casts values to floating point.
func Float() Conversion { return Conversion{Kind: ConvertFloat} }

// Scaled multiplies by factor.
func Scaled(factor float64) Conversion { return Conversion{Kind: ConvertScale, Scale: factor} }

// Divided divides by divisor.
func Divided(divisor float64) Conversion { return Conversion{Kind: ConvertDivide, Scale: divisor} }

// Affine computes v*scale + offset.
func Affine(scale, offset float64) Conversion {
	return Conversion{Kind: ConvertAffine, Scale: scale, Offset: offset}
}

// NormalizedDifference computes (a - b) / (a + b) into band name.
func NormalizedDifference(a, b, name string) Conversion {
	return Conversion{Kind: ConvertNormalizedDifference, BandA: a, BandB: b, Name: name}
}

// Radians converts degrees to radians.
func Radians() Conversion { return Conversion{Kind: ConvertRadians} }

// Apply converts a single image.
func (c Conversion) Apply(img graph.Image) graph.Image {
	switch c.Kind {
	case ConvertFloat:
		return img.ToFloat()
	case ConvertScale:
		return img.ToFloat().Multiply(c.Scale)
	case ConvertDivide:
		return img.ToFloat().Divide(c.Scale)
	case ConvertAffine:
		return img.ToFloat().Multiply(c.Scale).Add(c.Offset)
	case ConvertNormalizedDifference:
		return img.NormalizedDifference(c.BandA, c.BandB).Rename(c.Name)
	case ConvertRadians:
		return img.ToFloat().Multiply(math.Pi / 180)
	default:
		return img
	}
}

// ApplySeries converts every image of series, keeping its timestamps.
func (c Conversion) ApplySeries(series graph.Collection) graph.Collection {
	if c.Kind == ConvertIdentity {
		return series
	}
	return series.Map(func(img graph.Image) graph.Image {
		return c.Apply(img).CopyProperties(img, graph.PropTimeStart, graph.PropTimeEnd)
	})
}

// CircularComponents splits an angle image in radians into its sine and
// cosine, to be summed separately and recombined with atan2.
func CircularComponents(radians graph.Image) (sin, cos graph.Image) {
	return radians.Sin(), radians.Cos()
}
