package products

import (
	"context"
	"slices"
	"strconv"

	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/graph"
	"github.com/jobrunner/envextract/internal/pipeline"
)

// layer is one static statistic: the image to reduce, the reducer and the
// export name.
type layer struct {
	Image   graph.Image
	Reducer domain.Reducer
	Name    string
}

// static is a product without a time dimension. Each metric expands into
// one or more layers, depending on the request.
type static struct {
	name       string
	title      string
	collection string
	scale      float64
	metricList []string
	years      []int
	layers     func(metric string, year int, mode domain.GeometryMode) ([]layer, error)
	needsYear  bool
}

// Info describes the product.
func (p *static) Info() domain.ProductInfo {
	return domain.ProductInfo{
		Name:         p.name,
		Title:        p.title,
		Collection:   p.collection,
		Metrics:      slices.Clone(p.metricList),
		Years:        slices.Clone(p.years),
		DefaultScale: p.scale,
	}
}

// Plan validates req and returns one job per layer.
func (p *static) Plan(req domain.ExtractionRequest) ([]Job, error) {
	metrics, err := chooseMetrics(p.name, p.metricList, req.Metrics)
	if err != nil {
		return nil, err
	}
	if p.needsYear && req.Year == 0 {
		return nil, &domain.ValidationError{
			Field:      "year",
			Value:      req.Year,
			Constraint: "required",
			Message:    p.name + " needs a year",
		}
	}

	mode := req.Mode()
	scale := scaleOf(req, p.scale)

	var jobs []Job
	for _, m := range metrics {
		layers, err := p.layers(m, req.Year, mode)
		if err != nil {
			return nil, err
		}
		for _, l := range layers {
			l := l
			jobs = append(jobs, Job{
				Metric: m,
				build: func(_ context.Context, env Env) (*Export, error) {
					return buildLayer(env, l, scale)
				},
			})
		}
	}
	return jobs, nil
}

func buildLayer(env Env, l layer, scale float64) (*Export, error) {
	rows, err := pipeline.ReduceImage(l.Image, env.Geometries, l.Reducer, scale)
	if err != nil {
		return nil, err
	}
	column := l.Reducer.Column()
	return &Export{
		Description: l.Name,
		Column:      column,
		Rows:        pipeline.ShapeExport(rows, column),
	}, nil
}

// NLCD layers.
const (
	nlcdTreeCover  = "tc"
	nlcdImpervious = "ic"
	nlcdLandCover  = "lc"
)

var nlcdBands = map[string]string{
	nlcdTreeCover:  "percent_tree_cover",
	nlcdImpervious: "impervious",
	nlcdLandCover:  "landcover",
}

var nlcdYears = map[string][]int{
	nlcdTreeCover:  {2001, 2011},
	nlcdImpervious: {2001, 2006, 2011},
	nlcdLandCover:  {2001, 2006, 2011},
}

func newNLCD() Product {
	p := &static{
		name:       "nlcd",
		title:      "National Land Cover Database",
		collection: "USGS/NLCD",
		scale:      30,
		metricList: []string{nlcdTreeCover, nlcdImpervious, nlcdLandCover},
		years:      []int{2001, 2006, 2011},
		needsYear:  true,
	}
	p.layers = func(m string, year int, mode domain.GeometryMode) ([]layer, error) {
		if !slices.Contains(nlcdYears[m], year) {
			allowed := make([]string, len(nlcdYears[m]))
			for i, y := range nlcdYears[m] {
				allowed[i] = strconv.Itoa(y)
			}
			return nil, &domain.UnknownPolicyError{
				Product: p.name,
				Kind:    "year",
				Value:   strconv.Itoa(year),
				Allowed: allowed,
			}
		}

		yr := strconv.Itoa(year)
		img := graph.LoadImage("USGS/NLCD/NLCD" + yr).Select(nlcdBands[m])

		// land cover classes are counted over areas, sampled at points
		if m == nlcdLandCover && mode.Aggregates() {
			return []layer{{
				Image:   img,
				Reducer: domain.ReduceHistogram,
				Name:    domain.JoinName("f", m, yr, mode.Suffix()),
			}}, nil
		}
		return []layer{{
			Image:   img,
			Reducer: domain.ReduceMean,
			Name:    domain.JoinName("s", m, yr, mode.Suffix()),
		}}, nil
	}
	return p
}

// soilAssets maps soil metrics to their stored rasters.
var soilAssets = map[string]string{
	"soilDepth":      "BDTICM_M_250m",
	"bulkDensity":    "BLDFIE_I",
	"cec":            "CECSOL_I",
	"clay":           "CLYPPT_I",
	"cfrag":          "CRFVOL_I",
	"ph":             "PHIHOX_I",
	"silt":           "SLTPPT_I",
	"sand":           "SNDPPT_I",
	"oc":             "ORCDRC_I",
	"subordersUS":    "TAXOUSDA_250m",
	"subgroupsWorld": "TAXNWRB_250m",
}

var soilMetrics = []string{
	"soilDepth", "bulkDensity", "cec", "clay", "cfrag", "ph",
	"silt", "sand", "oc", "subordersUS", "subgroupsWorld",
}

func newSoil(owner string) Product {
	p := &static{
		name:       "soil",
		title:      "SoilGrids soil properties and classes",
		collection: "users/" + owner,
		scale:      250,
		metricList: soilMetrics,
	}
	p.layers = func(m string, _ int, mode domain.GeometryMode) ([]layer, error) {
		img := graph.LoadImage("users/" + owner + "/" + soilAssets[m])
		red := domain.ReduceMean

		switch m {
		case "subordersUS", "subgroupsWorld":
			red = domain.ReduceMode
		case "soilDepth":
			img = pipeline.Float().Apply(img)
		default:
			img = pipeline.Divided(100).Apply(img)
		}
		return []layer{{
			Image:   img,
			Reducer: red,
			Name:    domain.JoinName("s", m, "soil", mode.Suffix()),
		}}, nil
	}
	return p
}

func newTopo() Product {
	p := &static{
		name:       "topo",
		title:      "SRTM elevation, slope and aspect",
		collection: "USGS/SRTMGL1_003",
		scale:      30,
		metricList: []string{"elev", "slope", "aspect"},
	}
	p.layers = func(m string, _ int, mode domain.GeometryMode) ([]layer, error) {
		elev := graph.LoadImage(p.collection).Select("elevation")
		sfx := mode.Suffix()

		switch m {
		case "slope":
			return []layer{{
				Image:   pipeline.Radians().Apply(graph.Slope(elev)),
				Reducer: domain.ReduceMean,
				Name:    domain.JoinName("s", m, "topo", sfx),
			}}, nil
		case "aspect":
			aspect := pipeline.Radians().Apply(graph.Aspect(elev))
			if !mode.Aggregates() {
				return []layer{{
					Image:   aspect,
					Reducer: domain.ReduceMean,
					Name:    domain.JoinName("s", m, "topo", sfx),
				}}, nil
			}
			// angles are summed as components and recombined when read
			sin, cos := pipeline.CircularComponents(aspect)
			return []layer{
				{Image: sin, Reducer: domain.ReduceSum, Name: domain.JoinName("s", m, "sin", sfx)},
				{Image: cos, Reducer: domain.ReduceSum, Name: domain.JoinName("s", m, "cos", sfx)},
			}, nil
		default:
			return []layer{{
				Image:   elev,
				Reducer: domain.ReduceMean,
				Name:    domain.JoinName("s", m, "topo", sfx),
			}}, nil
		}
	}
	return p
}
