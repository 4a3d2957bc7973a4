package graph

// Image operations.
const (
	OpImageLoad                 = "Image.load"
	OpImageConstant             = "Image.constant"
	OpImageSelect               = "Image.select"
	OpImageRename               = "Image.rename"
	OpImageToFloat              = "Image.toFloat"
	OpImageAdd                  = "Image.add"
	OpImageSubtract             = "Image.subtract"
	OpImageMultiply             = "Image.multiply"
	OpImageDivide               = "Image.divide"
	OpImageNormalizedDifference = "Image.normalizedDifference"
	OpImageAddBands             = "Image.addBands"
	OpImageBitwiseAnd           = "Image.bitwiseAnd"
	OpImageRightShift           = "Image.rightShift"
	OpImageEq                   = "Image.eq"
	OpImageNeq                  = "Image.neq"
	OpImageLt                   = "Image.lt"
	OpImageLte                  = "Image.lte"
	OpImageGt                   = "Image.gt"
	OpImageGte                  = "Image.gte"
	OpImageAnd                  = "Image.and"
	OpImageUpdateMask           = "Image.updateMask"
	OpImageSin                  = "Image.sin"
	OpImageCos                  = "Image.cos"
	OpImageReduceRegions        = "Image.reduceRegions"
	OpTerrainSlope              = "Terrain.slope"
	OpTerrainAspect             = "Terrain.aspect"
	OpElementCopyProperties     = "Element.copyProperties"
	OpElementGet                = "Element.get"
	OpElementSet                = "Element.set"
	OpDate                      = "Date"
)

// Well-known image properties.
const (
	PropTimeStart = "system:time_start"
	PropTimeEnd   = "system:time_end"
	PropIndex     = "system:index"
)

// Image is a raster expression.
type Image struct{ *Node }

// LoadImage references a stored image asset.
func LoadImage(id string) Image {
	return Image{invoke(OpImageLoad, map[string]any{"id": id})}
}

// Constant is an image with the same value everywhere.
func Constant(v float64) Image {
	return Image{invoke(OpImageConstant, map[string]any{"value": v})}
}

// Select keeps the named bands.
func (i Image) Select(bands ...string) Image {
	return Image{invoke(OpImageSelect, map[string]any{"input": i.Node, "bandSelectors": bands})}
}

// Rename renames the bands positionally.
func (i Image) Rename(names ...string) Image {
	return Image{invoke(OpImageRename, map[string]any{"input": i.Node, "names": names})}
}

// ToFloat casts every band to float.
func (i Image) ToFloat() Image {
	return Image{invoke(OpImageToFloat, map[string]any{"value": i.Node})}
}

func (i Image) binary(op string, other Image) Image {
	return Image{invoke(op, map[string]any{"image1": i.Node, "image2": other.Node})}
}

// Add adds a constant.
func (i Image) Add(v float64) Image { return i.binary(OpImageAdd, Constant(v)) }

// Subtract subtracts a constant.
func (i Image) Subtract(v float64) Image { return i.binary(OpImageSubtract, Constant(v)) }

// Multiply multiplies by a constant.
func (i Image) Multiply(v float64) Image { return i.binary(OpImageMultiply, Constant(v)) }

// Divide divides by a constant.
func (i Image) Divide(v float64) Image { return i.binary(OpImageDivide, Constant(v)) }

// Eq compares against a constant.
func (i Image) Eq(v float64) Image { return i.binary(OpImageEq, Constant(v)) }

// Neq compares against a constant.
func (i Image) Neq(v float64) Image { return i.binary(OpImageNeq, Constant(v)) }

// Lt compares against a constant.
func (i Image) Lt(v float64) Image { return i.binary(OpImageLt, Constant(v)) }

// Lte compares against a constant.
func (i Image) Lte(v float64) Image { return i.binary(OpImageLte, Constant(v)) }

// Gt compares against a constant.
func (i Image) Gt(v float64) Image { return i.binary(OpImageGt, Constant(v)) }

// Gte compares against a constant.
func (i Image) Gte(v float64) Image { return i.binary(OpImageGte, Constant(v)) }

// And is the pixel-wise logical and of two images.
func (i Image) And(other Image) Image { return i.binary(OpImageAnd, other) }

// BitwiseAnd masks the integer pixel values.
func (i Image) BitwiseAnd(mask int64) Image {
	return i.binary(OpImageBitwiseAnd, Constant(float64(mask)))
}

// RightShift shifts the integer pixel values right.
func (i Image) RightShift(bits int) Image {
	return i.binary(OpImageRightShift, Constant(float64(bits)))
}

// NormalizedDifference computes (a - b) / (a + b).
func (i Image) NormalizedDifference(a, b string) Image {
	return Image{invoke(OpImageNormalizedDifference, map[string]any{
		"input":     i.Node,
		"bandNames": []string{a, b},
	})}
}

// AddBands appends the bands of other.
func (i Image) AddBands(other Image) Image {
	return Image{invoke(OpImageAddBands, map[string]any{"dstImg": i.Node, "srcImg": other.Node})}
}

// UpdateMask hides every pixel where mask is zero.
func (i Image) UpdateMask(mask Image) Image {
	return Image{invoke(OpImageUpdateMask, map[string]any{"image": i.Node, "mask": mask.Node})}
}

// Sin applies the sine to radian values.
func (i Image) Sin() Image {
	return Image{invoke(OpImageSin, map[string]any{"value": i.Node})}
}

// Cos applies the cosine to radian values.
func (i Image) Cos() Image {
	return Image{invoke(OpImageCos, map[string]any{"value": i.Node})}
}

// Slope derives terrain slope in degrees from an elevation image.
func Slope(elevation Image) Image {
	return Image{invoke(OpTerrainSlope, map[string]any{"input": elevation.Node})}
}

// Aspect derives terrain aspect in degrees from an elevation image.
func Aspect(elevation Image) Image {
	return Image{invoke(OpTerrainAspect, map[string]any{"input": elevation.Node})}
}

// CopyProperties copies the named properties of source onto i.
func (i Image) CopyProperties(source Image, properties ...string) Image {
	return Image{invoke(OpElementCopyProperties, map[string]any{
		"destination": i.Node,
		"source":      source.Node,
		"properties":  properties,
	})}
}

// Get reads an image property.
func (i Image) Get(property string) *Node {
	return invoke(OpElementGet, map[string]any{"object": i.Node, "property": property})
}

// ReduceRegions reduces the image over every feature of fc at the given
// pixel scale in meters. Each output feature carries the reducer output.
func (i Image) ReduceRegions(fc Features, reducer Reducer, scale float64) Features {
	return Features{invoke(OpImageReduceRegions, map[string]any{
		"image":      i.Node,
		"collection": fc.Node,
		"reducer":    reducer.Node,
		"scale":      scale,
	})}
}

// Date converts a millisecond timestamp expression into a date.
func Date(value *Node) *Node {
	return invoke(OpDate, map[string]any{"value": value})
}
