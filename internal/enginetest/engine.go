package enginetest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/graph"
	"github.com/jobrunner/envextract/internal/ports/output"
)

// Export is a table export accepted by the engine.
type Export struct {
	TaskID      string
	Description string
	Folder      string
	Rows        []map[string]any
}

// Engine is an in-memory compute service.
type Engine struct {
	// IDField is the property used as location key of loaded tables.
	IDField string
	// FailCompute and FailExport, when set, are returned by every call.
	FailCompute error
	FailExport  error
	// FailExportAfter fails every export after the first n when positive.
	FailExportAfter int

	mu          sync.Mutex
	collections map[string][]*Raster
	images      map[string]*Raster
	tables      map[string][]*Feature
	exports     []Export
	computes    int
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{
		IDField:     domain.DefaultIDField,
		collections: make(map[string][]*Raster),
		images:      make(map[string]*Raster),
		tables:      make(map[string][]*Feature),
	}
}

// AddCollection registers an image series.
func (e *Engine) AddCollection(id string, images ...*Raster) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.collections[id] = append(e.collections[id], images...)
}

// AddImage registers a stored image.
func (e *Engine) AddImage(id string, img *Raster) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images[id] = img
}

// AddTable registers a stored feature table with one feature per key.
func (e *Engine) AddTable(id string, keys ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	features := make([]*Feature, len(keys))
	for i, k := range keys {
		features[i] = &Feature{
			Key:         k,
			Props:       map[string]any{e.IDField: k, "extra": "dropped by select"},
			HasGeometry: true,
		}
	}
	e.tables[id] = features
}

// Exports returns the accepted exports in submission order.
func (e *Engine) Exports() []Export {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Export(nil), e.exports...)
}

// ComputeCalls returns how many times Compute was called.
func (e *Engine) ComputeCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.computes
}

// Compute implements output.ComputeService.
func (e *Engine) Compute(_ context.Context, expr *graph.Node) (json.RawMessage, error) {
	e.mu.Lock()
	e.computes++
	e.mu.Unlock()

	if e.FailCompute != nil {
		return nil, e.FailCompute
	}
	v, err := e.Evaluate(expr)
	if err != nil {
		return nil, err
	}
	return json.Marshal(toJSON(v))
}

// ExportTable implements output.ComputeService.
func (e *Engine) ExportTable(_ context.Context, export output.TableExport) (string, error) {
	if e.FailExport != nil {
		return "", e.FailExport
	}
	e.mu.Lock()
	n := len(e.exports)
	e.mu.Unlock()
	if e.FailExportAfter > 0 && n >= e.FailExportAfter {
		return "", &domain.RemoteServiceError{Operation: "export", StatusCode: 429, Message: "too many tasks"}
	}

	rows, err := e.Rows(export.Collection)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	id := "TASK" + strconv.Itoa(len(e.exports)+1)
	e.exports = append(e.exports, Export{
		TaskID:      id,
		Description: export.Description,
		Folder:      export.Folder,
		Rows:        rows,
	})
	return id, nil
}

// Rows evaluates a feature collection into property maps.
func (e *Engine) Rows(expr *graph.Node) ([]map[string]any, error) {
	v, err := e.Evaluate(expr)
	if err != nil {
		return nil, err
	}
	features, ok := v.([]*Feature)
	if !ok {
		return nil, fmt.Errorf("expected a feature collection, got %T", v)
	}
	rows := make([]map[string]any, len(features))
	for i, f := range features {
		rows[i] = f.Props
	}
	return rows, nil
}

// Evaluate computes the value of expr.
func (e *Engine) Evaluate(expr *graph.Node) (any, error) {
	return e.eval(expr, nil)
}

type closure struct {
	def *graph.Node
	env map[string]any
}

func (c closure) call(e *Engine, arg any) (any, error) {
	names := c.def.Strings("argumentNames")
	env := make(map[string]any, len(c.env)+1)
	for k, v := range c.env {
		env[k] = v
	}
	env[names[0]] = arg
	return e.eval(c.def.Ref("body"), env)
}

type filterFunc func(props map[string]any) bool

type reducerName string

func (e *Engine) eval(n *graph.Node, env map[string]any) (any, error) {
	if n == nil {
		return nil, nil
	}

	switch n.Op {
	case graph.OpArgumentRef:
		v, ok := env[n.String("name")]
		if !ok {
			return nil, fmt.Errorf("unbound argument %s", n.String("name"))
		}
		return v, nil
	case graph.OpFunction:
		return closure{def: n, env: env}, nil
	}

	args := make(map[string]any, len(n.Args))
	for k, raw := range n.Args {
		v, err := e.value(raw, env)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", n.Op, k, err)
		}
		args[k] = v
	}

	op, ok := operations[n.Op]
	if !ok {
		return nil, fmt.Errorf("%s: %w", n.Op, domain.ErrUnsupported)
	}
	return op(e, args)
}

func (e *Engine) value(raw any, env map[string]any) (any, error) {
	switch v := raw.(type) {
	case *graph.Node:
		return e.eval(v, env)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			ev, err := e.value(item, env)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return v, nil
	}
}

type operation func(e *Engine, args map[string]any) (any, error)

var operations map[string]operation

func init() {
	operations = map[string]operation{
		graph.OpList:                      func(_ *Engine, a map[string]any) (any, error) { return a["values"], nil },
		graph.OpImageLoad:                 (*Engine).imageLoad,
		graph.OpImageConstant:             opConstant,
		graph.OpImageSelect:               opSelect,
		graph.OpImageRename:               opRename,
		graph.OpImageToFloat:              unary(func(v float64) float64 { return v }),
		graph.OpImageSin:                  unary(math.Sin),
		graph.OpImageCos:                  unary(math.Cos),
		graph.OpImageAdd:                  binary(func(a, b float64) float64 { return a + b }),
		graph.OpImageSubtract:             binary(func(a, b float64) float64 { return a - b }),
		graph.OpImageMultiply:             binary(func(a, b float64) float64 { return a * b }),
		graph.OpImageDivide:               binary(func(a, b float64) float64 { return a / b }),
		graph.OpImageEq:                   binary(compare(func(a, b float64) bool { return a == b })),
		graph.OpImageNeq:                  binary(compare(func(a, b float64) bool { return a != b })),
		graph.OpImageLt:                   binary(compare(func(a, b float64) bool { return a < b })),
		graph.OpImageLte:                  binary(compare(func(a, b float64) bool { return a <= b })),
		graph.OpImageGt:                   binary(compare(func(a, b float64) bool { return a > b })),
		graph.OpImageGte:                  binary(compare(func(a, b float64) bool { return a >= b })),
		graph.OpImageAnd:                  binary(compare(func(a, b float64) bool { return a != 0 && b != 0 })),
		graph.OpImageBitwiseAnd:           binary(func(a, b float64) float64 { return float64(int64(a) & int64(b)) }),
		graph.OpImageRightShift:           binary(func(a, b float64) float64 { return float64(int64(a) >> uint(b)) }),
		graph.OpImageNormalizedDifference: opNormalizedDifference,
		graph.OpImageAddBands:             opAddBands,
		graph.OpImageUpdateMask:           opUpdateMask,
		graph.OpImageReduceRegions:        opReduceRegions,
		graph.OpElementCopyProperties:     opCopyProperties,
		graph.OpElementGet:                opGet,
		graph.OpElementSet:                opSet,
		graph.OpDate:                      opDate,

		graph.OpImageCollectionLoad:       (*Engine).collectionLoad,
		graph.OpImageCollectionFromImages: opFromImages,
		graph.OpImageCollectionSelect:     opCollectionSelect,
		graph.OpImageCollectionReduce:     opCollectionReduce,
		graph.OpCollectionLoadTable:       (*Engine).tableLoad,
		graph.OpCollectionFromGeoJSON:     (*Engine).fromGeoJSON,
		graph.OpCollectionSelect:          opFeatureSelect,
		graph.OpCollectionFilter:          opFilter,
		graph.OpCollectionMap:             (*Engine).mapCollection,
		graph.OpCollectionLimit:           opSort,
		graph.OpCollectionFirst:           opFirst,
		graph.OpCollectionFlatten:         opFlatten,
		graph.OpFeatureBuffer:             opBuffer,

		graph.OpFilterCalendarRange: opCalendarRange,
		graph.OpFilterEquals:        opEquals,
		graph.OpFilterNotEquals:     opNotEquals,
		graph.OpFilterAnd:           opAndFilter,

		graph.OpReducerMean:               reducer(domain.ReduceMean),
		graph.OpReducerSum:                reducer(domain.ReduceSum),
		graph.OpReducerMode:               reducer(domain.ReduceMode),
		graph.OpReducerFrequencyHistogram: reducer(domain.ReduceHistogram),
	}
}

func toJSON(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) {
			return nil
		}
		return x
	case Date:
		return map[string]any{"type": "Date", "value": float64(x)}
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = toJSON(item)
		}
		return out
	case *Raster, []*Raster, *Feature, []*Feature:
		return map[string]any{"type": fmt.Sprintf("%T", x)}
	default:
		return x
	}
}

func (e *Engine) imageLoad(a map[string]any) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	img, ok := e.images[str(a["id"])]
	if !ok {
		return nil, fmt.Errorf("image %s: %w", str(a["id"]), domain.ErrNotFound)
	}
	return img, nil
}

func (e *Engine) collectionLoad(a map[string]any) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	images, ok := e.collections[str(a["id"])]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", str(a["id"]), domain.ErrNotFound)
	}
	return append([]*Raster(nil), images...), nil
}

func (e *Engine) tableLoad(a map[string]any) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	features, ok := e.tables[str(a["tableId"])]
	if !ok {
		return nil, fmt.Errorf("table %s: %w", str(a["tableId"]), domain.ErrNotFound)
	}
	out := make([]*Feature, len(features))
	for i, f := range features {
		out[i] = f.clone()
	}
	return out, nil
}

func (e *Engine) fromGeoJSON(a map[string]any) (any, error) {
	fc, err := geojson.UnmarshalFeatureCollection([]byte(str(a["geojson"])))
	if err != nil {
		return nil, err
	}
	out := make([]*Feature, len(fc.Features))
	for i, f := range fc.Features {
		props := map[string]any(f.Properties.Clone())
		out[i] = &Feature{Key: fmt.Sprint(props[e.IDField]), Props: props, HasGeometry: true}
	}
	return out, nil
}

func (e *Engine) mapCollection(a map[string]any) (any, error) {
	fn, ok := a["baseAlgorithm"].(closure)
	if !ok {
		return nil, fmt.Errorf("map: baseAlgorithm is not a function")
	}
	switch c := a["collection"].(type) {
	case []*Raster:
		// Images mapped to feature collections stay nested until flattened.
		images := make([]*Raster, 0, len(c))
		var nested []any
		for _, img := range c {
			v, err := fn.call(e, img)
			if err != nil {
				return nil, err
			}
			switch r := v.(type) {
			case *Raster:
				if r != nil {
					images = append(images, r)
				}
			case []*Feature:
				nested = append(nested, r)
			}
		}
		if nested != nil {
			return nested, nil
		}
		return images, nil
	case []*Feature:
		out := make([]*Feature, 0, len(c))
		for _, f := range c {
			v, err := fn.call(e, f)
			if err != nil {
				return nil, err
			}
			if nf, ok := v.(*Feature); ok && nf != nil {
				out = append(out, nf)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("map over %T", a["collection"])
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	f, _ := v.(float64)
	return f
}

func strs(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			out = append(out, str(item))
		}
		return out
	}
	return nil
}

func raster(v any) (*Raster, error) {
	r, ok := v.(*Raster)
	if !ok || r == nil {
		return nil, fmt.Errorf("expected an image, got %T", v)
	}
	return r, nil
}

func opConstant(_ *Engine, a map[string]any) (any, error) {
	v := num(a["value"])
	return &Raster{Bands: []Band{{Name: "constant"}}, Props: map[string]any{}, scalar: &v}, nil
}

func opSelect(_ *Engine, a map[string]any) (any, error) {
	img, err := raster(a["input"])
	if err != nil {
		return nil, err
	}
	return selectBands(img, strs(a["bandSelectors"]))
}

func selectBands(img *Raster, names []string) (*Raster, error) {
	bands := make([]Band, 0, len(names))
	for _, name := range names {
		b, ok := img.band(name)
		if !ok {
			return nil, fmt.Errorf("band %s: %w", name, domain.ErrNotFound)
		}
		bands = append(bands, b)
	}
	return img.withBands(bands), nil
}

func opRename(_ *Engine, a map[string]any) (any, error) {
	img, err := raster(a["input"])
	if err != nil {
		return nil, err
	}
	names := strs(a["names"])
	bands := append([]Band(nil), img.Bands...)
	for i := range bands {
		if i < len(names) {
			bands[i].Name = names[i]
		}
	}
	return img.withBands(bands), nil
}

func unary(fn func(float64) float64) operation {
	return func(_ *Engine, a map[string]any) (any, error) {
		img, err := raster(a["value"])
		if err != nil {
			return nil, err
		}
		bands := make([]Band, len(img.Bands))
		for i, b := range img.Bands {
			bands[i] = mapPixels(b, fn)
		}
		return &Raster{Bands: bands, Props: map[string]any{}}, nil
	}
}

func compare(fn func(a, b float64) bool) func(a, b float64) float64 {
	return func(a, b float64) float64 {
		if fn(a, b) {
			return 1
		}
		return 0
	}
}

func binary(fn func(a, b float64) float64) operation {
	return func(_ *Engine, a map[string]any) (any, error) {
		left, err := raster(a["image1"])
		if err != nil {
			return nil, err
		}
		right, err := raster(a["image2"])
		if err != nil {
			return nil, err
		}

		bands := make([]Band, len(left.Bands))
		for i, b := range left.Bands {
			if right.scalar != nil {
				s := *right.scalar
				bands[i] = mapPixels(b, func(v float64) float64 { return fn(v, s) })
				continue
			}
			other := right.Bands[0]
			if i < len(right.Bands) {
				other = right.Bands[i]
			}
			bands[i] = combine(b, other, fn)
		}
		return &Raster{Bands: bands, Props: map[string]any{}}, nil
	}
}

func combine(a, b Band, fn func(a, b float64) float64) Band {
	out := Band{Name: a.Name, Pixels: make(map[string][]float64, len(a.Pixels))}
	for k, px := range a.Pixels {
		other := b.Pixels[k]
		vals := make([]float64, len(px))
		for i, v := range px {
			if i >= len(other) || math.IsNaN(v) || math.IsNaN(other[i]) {
				vals[i] = math.NaN()
				continue
			}
			vals[i] = fn(v, other[i])
		}
		out.Pixels[k] = vals
	}
	return out
}

func opNormalizedDifference(_ *Engine, a map[string]any) (any, error) {
	img, err := raster(a["input"])
	if err != nil {
		return nil, err
	}
	names := strs(a["bandNames"])
	if len(names) != 2 {
		return nil, fmt.Errorf("normalizedDifference needs two bands")
	}
	first, ok := img.band(names[0])
	if !ok {
		return nil, fmt.Errorf("band %s: %w", names[0], domain.ErrNotFound)
	}
	second, ok := img.band(names[1])
	if !ok {
		return nil, fmt.Errorf("band %s: %w", names[1], domain.ErrNotFound)
	}
	nd := combine(first, second, func(x, y float64) float64 { return (x - y) / (x + y) })
	nd.Name = "nd"
	return &Raster{Bands: []Band{nd}, Props: map[string]any{}}, nil
}

func opAddBands(_ *Engine, a map[string]any) (any, error) {
	dst, err := raster(a["dstImg"])
	if err != nil {
		return nil, err
	}
	src, err := raster(a["srcImg"])
	if err != nil {
		return nil, err
	}
	bands := append([]Band(nil), dst.Bands...)
	for _, b := range src.Bands {
		replaced := false
		for i := range bands {
			if bands[i].Name == b.Name {
				bands[i], replaced = b, true
			}
		}
		if !replaced {
			bands = append(bands, b)
		}
	}
	return dst.withBands(bands), nil
}

func opUpdateMask(_ *Engine, a map[string]any) (any, error) {
	img, err := raster(a["image"])
	if err != nil {
		return nil, err
	}
	mask, err := raster(a["mask"])
	if err != nil {
		return nil, err
	}
	bands := make([]Band, len(img.Bands))
	for i, b := range img.Bands {
		m := mask.Bands[0]
		if i < len(mask.Bands) {
			m = mask.Bands[i]
		}
		bands[i] = combine(b, m, func(v, keep float64) float64 {
			if keep == 0 {
				return math.NaN()
			}
			return v
		})
	}
	return img.withBands(bands), nil
}

func opReduceRegions(_ *Engine, a map[string]any) (any, error) {
	img, err := raster(a["image"])
	if err != nil {
		return nil, err
	}
	features, ok := a["collection"].([]*Feature)
	if !ok {
		return nil, fmt.Errorf("reduceRegions over %T", a["collection"])
	}
	name, ok := a["reducer"].(reducerName)
	if !ok {
		return nil, fmt.Errorf("reduceRegions with %T", a["reducer"])
	}

	out := make([]*Feature, len(features))
	for i, f := range features {
		nf := f.clone()
		for _, b := range img.Bands {
			column := string(name)
			if len(img.Bands) > 1 {
				column = b.Name + "_" + column
			}
			nf.Props[column] = reducePixels(domain.Reducer(name), valid(b.Pixels[f.Key]))
		}
		out[i] = nf
	}
	return out, nil
}

func valid(px []float64) []float64 {
	out := make([]float64, 0, len(px))
	for _, v := range px {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// reducePixels returns nil when no pixel is valid.
func reducePixels(r domain.Reducer, px []float64) any {
	if len(px) == 0 {
		return nil
	}
	switch r {
	case domain.ReduceSum:
		var s float64
		for _, v := range px {
			s += v
		}
		return s
	case domain.ReduceMode:
		counts := histogram(px)
		best, bestN := math.NaN(), 0.0
		for _, v := range px {
			n := counts[strconv.FormatFloat(v, 'f', -1, 64)].(float64)
			if n > bestN || (n == bestN && v < best) {
				best, bestN = v, n
			}
		}
		return best
	case domain.ReduceHistogram:
		return histogram(px)
	default:
		var s float64
		for _, v := range px {
			s += v
		}
		return s / float64(len(px))
	}
}

func histogram(px []float64) map[string]any {
	out := make(map[string]any)
	for _, v := range px {
		k := strconv.FormatFloat(v, 'f', -1, 64)
		n, _ := out[k].(float64)
		out[k] = n + 1
	}
	return out
}

func props(v any) map[string]any {
	switch x := v.(type) {
	case *Raster:
		if x != nil {
			return x.Props
		}
	case *Feature:
		if x != nil {
			return x.Props
		}
	}
	return nil
}

func opCopyProperties(_ *Engine, a map[string]any) (any, error) {
	src := props(a["source"])
	keys := strs(a["properties"])
	switch dst := a["destination"].(type) {
	case *Raster:
		out := dst.withBands(dst.Bands)
		out.scalar = dst.scalar
		for _, k := range keys {
			if v, ok := src[k]; ok {
				out.Props[k] = v
			}
		}
		return out, nil
	case *Feature:
		out := dst.clone()
		for _, k := range keys {
			if v, ok := src[k]; ok {
				out.Props[k] = v
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("copyProperties onto %T", a["destination"])
}

func opGet(_ *Engine, a map[string]any) (any, error) {
	return props(a["object"])[str(a["property"])], nil
}

func opSet(_ *Engine, a map[string]any) (any, error) {
	f, ok := a["object"].(*Feature)
	if !ok {
		return nil, fmt.Errorf("set on %T", a["object"])
	}
	out := f.clone()
	out.Props[str(a["key"])] = a["value"]
	return out, nil
}

func opDate(_ *Engine, a map[string]any) (any, error) {
	v, ok := a["value"].(float64)
	if !ok {
		return nil, nil
	}
	return Date(v), nil
}

func opFromImages(_ *Engine, a map[string]any) (any, error) {
	items, _ := a["images"].([]any)
	out := make([]*Raster, 0, len(items))
	for _, item := range items {
		if r, ok := item.(*Raster); ok && r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func opCollectionSelect(_ *Engine, a map[string]any) (any, error) {
	images, ok := a["input"].([]*Raster)
	if !ok {
		return nil, fmt.Errorf("select over %T", a["input"])
	}
	out := make([]*Raster, len(images))
	for i, img := range images {
		r, err := selectBands(img, strs(a["bandSelectors"]))
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// opCollectionReduce reduces pixel-wise across images. An empty collection
// yields an image without bands.
func opCollectionReduce(_ *Engine, a map[string]any) (any, error) {
	images, ok := a["collection"].([]*Raster)
	if !ok {
		return nil, fmt.Errorf("reduce over %T", a["collection"])
	}
	name, ok := a["reducer"].(reducerName)
	if !ok {
		return nil, fmt.Errorf("reduce with %T", a["reducer"])
	}
	if len(images) == 0 {
		return &Raster{Props: map[string]any{}}, nil
	}

	bands := make([]Band, len(images[0].Bands))
	for bi, b := range images[0].Bands {
		out := Band{Name: b.Name, Pixels: make(map[string][]float64)}
		for key, px := range b.Pixels {
			vals := make([]float64, len(px))
			for pi := range px {
				var stack []float64
				for _, img := range images {
					if bi >= len(img.Bands) {
						continue
					}
					other := img.Bands[bi].Pixels[key]
					if pi < len(other) && !math.IsNaN(other[pi]) {
						stack = append(stack, other[pi])
					}
				}
				v, _ := reducePixels(domain.Reducer(name), stack).(float64)
				if len(stack) == 0 {
					v = math.NaN()
				}
				vals[pi] = v
			}
			out.Pixels[key] = vals
		}
		bands[bi] = out
	}
	return &Raster{Bands: bands, Props: map[string]any{}}, nil
}

func opFeatureSelect(_ *Engine, a map[string]any) (any, error) {
	features, ok := a["input"].([]*Feature)
	if !ok {
		return nil, fmt.Errorf("select over %T", a["input"])
	}
	var patterns []*regexp.Regexp
	for _, s := range strs(a["propertySelectors"]) {
		re, err := regexp.Compile("^(?:" + s + ")$")
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, re)
	}
	retain, _ := a["retainGeometry"].(bool)

	out := make([]*Feature, len(features))
	for i, f := range features {
		nf := &Feature{Key: f.Key, Props: map[string]any{}, Buffer: f.Buffer, HasGeometry: retain && f.HasGeometry}
		for k, v := range f.Props {
			for _, re := range patterns {
				if re.MatchString(k) {
					nf.Props[k] = v
					break
				}
			}
		}
		out[i] = nf
	}
	return out, nil
}

func opFilter(_ *Engine, a map[string]any) (any, error) {
	fn, ok := a["filter"].(filterFunc)
	if !ok {
		return nil, fmt.Errorf("filter with %T", a["filter"])
	}
	switch c := a["collection"].(type) {
	case []*Raster:
		out := make([]*Raster, 0, len(c))
		for _, img := range c {
			if fn(img.Props) {
				out = append(out, img)
			}
		}
		return out, nil
	case []*Feature:
		out := make([]*Feature, 0, len(c))
		for _, f := range c {
			if fn(f.Props) {
				out = append(out, f)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("filter over %T", a["collection"])
}

func opSort(_ *Engine, a map[string]any) (any, error) {
	images, ok := a["collection"].([]*Raster)
	if !ok {
		return nil, fmt.Errorf("sort over %T", a["collection"])
	}
	key := str(a["key"])
	asc, _ := a["ascending"].(bool)
	out := append([]*Raster(nil), images...)
	sort.SliceStable(out, func(i, j int) bool {
		x, xok := out[i].Props[key].(float64)
		y, yok := out[j].Props[key].(float64)
		if xok != yok {
			return xok
		}
		if asc {
			return x < y
		}
		return x > y
	})
	return out, nil
}

func opFirst(_ *Engine, a map[string]any) (any, error) {
	switch c := a["collection"].(type) {
	case []*Raster:
		if len(c) == 0 {
			return nil, nil
		}
		return c[0], nil
	case []*Feature:
		if len(c) == 0 {
			return nil, nil
		}
		return c[0], nil
	}
	return nil, fmt.Errorf("first of %T", a["collection"])
}

func opFlatten(_ *Engine, a map[string]any) (any, error) {
	switch c := a["collection"].(type) {
	case []*Raster:
		return []*Feature{}, nil
	case []any:
		out := []*Feature{}
		for _, item := range c {
			if fs, ok := item.([]*Feature); ok {
				out = append(out, fs...)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("flatten of %T", a["collection"])
}

func opBuffer(_ *Engine, a map[string]any) (any, error) {
	f, ok := a["feature"].(*Feature)
	if !ok {
		return nil, fmt.Errorf("buffer of %T", a["feature"])
	}
	out := f.clone()
	out.Buffer = num(a["distance"])
	return out, nil
}

func opCalendarRange(_ *Engine, a map[string]any) (any, error) {
	start, end, field := int(num(a["start"])), int(num(a["end"])), str(a["field"])
	return filterFunc(func(p map[string]any) bool {
		t, ok := timeStart(p)
		if !ok {
			return false
		}
		v := t.Year()
		if field == graph.FieldMonth {
			v = int(t.Month())
		}
		return v >= start && v <= end
	}), nil
}

func opEquals(_ *Engine, a map[string]any) (any, error) {
	field, want := str(a["leftField"]), a["rightValue"]
	return filterFunc(func(p map[string]any) bool { return p[field] == want }), nil
}

func opNotEquals(_ *Engine, a map[string]any) (any, error) {
	field, want := str(a["leftField"]), a["rightValue"]
	return filterFunc(func(p map[string]any) bool {
		v, ok := p[field]
		if want == nil {
			return ok && v != nil
		}
		return v != want
	}), nil
}

func opAndFilter(_ *Engine, a map[string]any) (any, error) {
	items, _ := a["filters"].([]any)
	fns := make([]filterFunc, 0, len(items))
	for _, item := range items {
		fn, ok := item.(filterFunc)
		if !ok {
			return nil, fmt.Errorf("and of %T", item)
		}
		fns = append(fns, fn)
	}
	return filterFunc(func(p map[string]any) bool {
		for _, fn := range fns {
			if !fn(p) {
				return false
			}
		}
		return true
	}), nil
}

func reducer(r domain.Reducer) operation {
	return func(_ *Engine, _ map[string]any) (any, error) { return reducerName(r), nil }
}
