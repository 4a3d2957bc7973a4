package graph

import "encoding/json"

// Collection operations.
const (
	OpImageCollectionLoad       = "ImageCollection.load"
	OpImageCollectionFromImages = "ImageCollection.fromImages"
	OpImageCollectionSelect     = "ImageCollection.select"
	OpImageCollectionReduce     = "ImageCollection.reduce"
	OpCollectionLoadTable       = "Collection.loadTable"
	OpCollectionFromGeoJSON     = "FeatureCollection.fromGeoJSON"
	OpCollectionSelect          = "FeatureCollection.select"
	OpCollectionFilter          = "Collection.filter"
	OpCollectionMap             = "Collection.map"
	OpCollectionLimit           = "Collection.limit"
	OpCollectionFirst           = "Collection.first"
	OpCollectionFlatten         = "Collection.flatten"
	OpFeatureBuffer             = "Feature.buffer"
)

// Collection is a time-ordered image series.
type Collection struct{ *Node }

// LoadCollection references a catalogue image series.
func LoadCollection(id string) Collection {
	return Collection{invoke(OpImageCollectionLoad, map[string]any{"id": id})}
}

// FromImages builds a series from individual image expressions.
func FromImages(images []Image) Collection {
	items := make([]any, len(images))
	for i, img := range images {
		items[i] = img.Node
	}
	return Collection{invoke(OpImageCollectionFromImages, map[string]any{"images": items})}
}

// Select keeps the named bands of every image.
func (c Collection) Select(bands ...string) Collection {
	return Collection{invoke(OpImageCollectionSelect, map[string]any{"input": c.Node, "bandSelectors": bands})}
}

// Filter keeps the images matching f.
func (c Collection) Filter(f Filter) Collection {
	return Collection{invoke(OpCollectionFilter, map[string]any{"collection": c.Node, "filter": f.Node})}
}

// Sort orders the series by a property.
func (c Collection) Sort(key string, ascending bool) Collection {
	return Collection{invoke(OpCollectionLimit, map[string]any{
		"collection": c.Node,
		"key":        key,
		"ascending":  ascending,
	})}
}

// First returns the first image of the series. Evaluates to null when the
// series is empty.
func (c Collection) First() Image {
	return Image{invoke(OpCollectionFirst, map[string]any{"collection": c.Node})}
}

// Reduce composites the series into a single image.
func (c Collection) Reduce(r Reducer) Image {
	return Image{invoke(OpImageCollectionReduce, map[string]any{"collection": c.Node, "reducer": r.Node})}
}

// Map applies fn to every image.
func (c Collection) Map(fn func(Image) Image) Collection {
	f := lambda(func(arg *Node) *Node { return fn(Image{arg}).Node })
	return Collection{invoke(OpCollectionMap, map[string]any{"collection": c.Node, "baseAlgorithm": f})}
}

// MapToFeatures applies fn to every image and flattens the resulting
// feature collections into one.
func (c Collection) MapToFeatures(fn func(Image) Features) Features {
	f := lambda(func(arg *Node) *Node { return fn(Image{arg}).Node })
	mapped := invoke(OpCollectionMap, map[string]any{"collection": c.Node, "baseAlgorithm": f})
	return Features{invoke(OpCollectionFlatten, map[string]any{"collection": mapped})}
}

// Features is a collection of vector features with properties.
type Features struct{ *Node }

// Feature is a single vector feature.
type Feature struct{ *Node }

// LoadTable references a stored feature table.
func LoadTable(id string) Features {
	return Features{invoke(OpCollectionLoadTable, map[string]any{"tableId": id})}
}

// FromGeoJSON embeds a GeoJSON FeatureCollection document in the graph.
func FromGeoJSON(doc json.RawMessage) Features {
	return Features{invoke(OpCollectionFromGeoJSON, map[string]any{"geojson": string(doc)})}
}

// Filter keeps the features matching f.
func (fc Features) Filter(f Filter) Features {
	return Features{invoke(OpCollectionFilter, map[string]any{"collection": fc.Node, "filter": f.Node})}
}

// Map applies fn to every feature.
func (fc Features) Map(fn func(Feature) Feature) Features {
	f := lambda(func(arg *Node) *Node { return fn(Feature{arg}).Node })
	return Features{invoke(OpCollectionMap, map[string]any{"collection": fc.Node, "baseAlgorithm": f})}
}

// Select keeps the properties matching the given regular expressions.
func (fc Features) Select(properties []string, retainGeometry bool) Features {
	return Features{invoke(OpCollectionSelect, map[string]any{
		"input":             fc.Node,
		"propertySelectors": properties,
		"retainGeometry":    retainGeometry,
	})}
}

// Buffer expands the feature geometry by distance meters.
func (f Feature) Buffer(distance float64) Feature {
	return Feature{invoke(OpFeatureBuffer, map[string]any{"feature": f.Node, "distance": distance})}
}

// Set assigns a property.
func (f Feature) Set(key string, value *Node) Feature {
	return Feature{invoke(OpElementSet, map[string]any{"object": f.Node, "key": key, "value": value})}
}
