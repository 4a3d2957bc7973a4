package products

import (
	"github.com/jobrunner/envextract/internal/domain"
	"github.com/jobrunner/envextract/internal/pipeline"
)

// Relative-time prefixes shared by the remote-sensing series.
var relativeSteps = map[domain.TimeStep]stepSpec{
	domain.StepLowest: {Abbrev: "rl"},
	domain.StepMonth:  {Abbrev: "rm"},
	domain.StepYear:   {Abbrev: "ry"},
}

var gridmetSteps = map[domain.TimeStep]stepSpec{
	domain.StepDay:   {Abbrev: "cd"},
	domain.StepMonth: {Abbrev: "cm"},
	domain.StepYear:  {Abbrev: "cy"},
}

func eq(band string, start, end, v int) pipeline.BitTest {
	return pipeline.BitTest{Band: band, Start: start, End: end, Cmp: pipeline.CmpEq, Value: v}
}

func lt(band string, start, end, v int) pipeline.BitTest {
	return pipeline.BitTest{Band: band, Start: start, End: end, Cmp: pipeline.CmpLt, Value: v}
}

func neq(band string, start, end, v int) pipeline.BitTest {
	return pipeline.BitTest{Band: band, Start: start, End: end, Cmp: pipeline.CmpNeq, Value: v}
}

var none = pipeline.Policy{Name: pipeline.PolicyNone}

var laiPolicies = []pipeline.Policy{
	none,
	{Name: "Op1", Tests: []pipeline.BitTest{
		eq("FparLai_QC", 0, 0, 0),
		eq("FparLai_QC", 3, 4, 0),
		eq("FparLai_QC", 5, 7, 0),
		eq("FparExtra_QC", 3, 3, 0),
	}},
	{Name: "Op2", Tests: []pipeline.BitTest{
		eq("FparLai_QC", 0, 0, 0),
	}},
	{Name: "Op3", Tests: []pipeline.BitTest{
		eq("FparLai_QC", 3, 4, 0),
		lt("FparLai_QC", 5, 7, 2),
	}},
}

func lstPolicies(qc string) []pipeline.Policy {
	return []pipeline.Policy{
		none,
		{Name: "Op1", Tests: []pipeline.BitTest{
			eq(qc, 0, 1, 0),
			eq(qc, 2, 3, 0),
			lt(qc, 4, 5, 2),
			lt(qc, 6, 7, 2),
		}},
	}
}

var viPolicies = []pipeline.Policy{
	none,
	{Name: "Op1", Tests: []pipeline.BitTest{
		lt("DetailedQA", 0, 1, 2),
		lt("DetailedQA", 2, 5, 12),
		neq("DetailedQA", 6, 7, 3),
		neq("DetailedQA", 6, 7, 0),
		eq("DetailedQA", 8, 8, 0),
		eq("DetailedQA", 10, 10, 0),
		eq("DetailedQA", 15, 15, 0),
	}},
	{Name: "Op2", Tests: []pipeline.BitTest{
		eq("DetailedQA", 0, 1, 0),
	}},
}

var landsatMask = pipeline.Policy{Name: "clear", Tests: []pipeline.BitTest{
	eq("pixel_qa", 3, 3, 0),
	eq("pixel_qa", 5, 5, 0),
}}

// Band pairs of the Landsat indices. The OLI sensor shifted its band
// numbers.
var (
	tmPairs = map[string][2]string{
		"NDVI": {"B4", "B3"},
		"NDWI": {"B4", "B5"},
		"NBR":  {"B4", "B7"},
	}
	oliPairs = map[string][2]string{
		"NDVI": {"B5", "B4"},
		"NDWI": {"B5", "B6"},
		"NBR":  {"B5", "B7"},
	}
)

// NEXScenarios are the emission pathways of the NEX-GDDP projections.
var NEXScenarios = []string{"historical", "rcp45", "rcp85"}

// NEXModels are the climate models of the NEX-GDDP projections.
var NEXModels = []string{
	"ACCESS1-0", "bcc-csm1-1", "BNU-ESM", "CanESM2", "CCSM4", "CESM1-BGC",
	"CNRM-CM5", "CSIRO-Mk3-6-0", "GFDL-CM3", "GFDL-ESM2G", "GFDL-ESM2M",
	"inmcm4", "IPSL-CM5A-LR", "IPSL-CM5A-MR", "MIROC-ESM", "MIROC-ESM-CHEM",
	"MIROC5", "MPI-ESM-LR", "MPI-ESM-MR", "MRI-CGCM3", "NorESM1-M",
}

// MACAScenarios are the emission pathways of the MACA projections.
var MACAScenarios = []string{"rcp85", "rcp45", "historical"}

// MACAModels are the climate models of the MACA projections.
var MACAModels = []string{
	"bcc-csm1-1", "bcc-csm1-1-m", "BNU-ESM", "CanESM2", "CCSM4", "CNRM-CM5",
	"CSIRO-Mk3-6-0", "GFDL-ESM2M", "GFDL-ESM2G", "HadGEM2-ES365",
	"HadGEM2-CC365", "inmcm4", "IPSL-CM5A-LR", "IPSL-CM5A-MR",
	"IPSL-CM5B-LR", "MIROC5", "MIROC-ESM", "MIROC-ESM-CHEM", "MRI-CGCM3",
	"NorESM1-M",
}

// scaled builds metrics that share a conversion and take their band from
// the metric name.
func scaled(conv pipeline.Conversion, names ...string) map[string]metric {
	out := make(map[string]metric, len(names))
	for _, n := range names {
		out[n] = metric{Band: n, Convert: conv}
	}
	return out
}

func catalogue(opts Options) []Product {
	terraclimate := map[string]metric{}
	for name, factor := range map[string]float64{
		"aet": 0.1, "def": 0.1, "pdsi": 0.01, "pet": 0.1, "soil": 0.1,
		"srad": 0.1, "tmmn": 0.1, "tmmx": 0.1, "vap": 0.001, "vpd": 0.01, "vs": 0.01,
	} {
		terraclimate[name] = metric{Band: name, Convert: pipeline.Scaled(factor)}
	}
	for _, name := range []string{"pr", "ro", "swe"} {
		terraclimate[name] = metric{Band: name, Convert: pipeline.Identity()}
	}

	maca := scaled(pipeline.Identity(), "tasmax", "tasmin", "huss", "rsds", "was")
	maca["pr"] = metric{Band: "pr", Temporal: domain.ReduceSum}

	nex := scaled(pipeline.Identity(), "tasmin", "tasmax")
	nex["pr"] = metric{Band: "pr", Temporal: domain.ReduceSum}

	lstConv := pipeline.Affine(0.02, -273.15)

	return []Product{
		newNLCD(),
		newSoil(opts.AssetOwner),
		newTopo(),
		&series{
			name:       "gridmet-avg",
			title:      "gridMET daily meteorology, averaged",
			collection: "IDAHO_EPSCOR/GRIDMET",
			scale:      4000,
			metricList: []string{"tmax", "tmin", "vpd"},
			metrics: map[string]metric{
				"tmax": {Band: "tmmx"},
				"tmin": {Band: "tmmn"},
				"vpd":  {Band: "vpd"},
			},
			steps: gridmetSteps,
			rng:   rangeProbedRequired,
		},
		&series{
			name:       "gridmet-sum",
			title:      "gridMET daily meteorology, summed",
			collection: "IDAHO_EPSCOR/GRIDMET",
			scale:      4000,
			metricList: []string{"eto", "pr"},
			metrics: map[string]metric{
				"eto": {Band: "eto", Temporal: domain.ReduceSum},
				"pr":  {Band: "pr", Temporal: domain.ReduceSum},
			},
			steps: gridmetSteps,
			rng:   rangeProbedRequired,
		},
		&series{
			name:       "phenology",
			title:      "MODIS land cover dynamics",
			collection: "MODIS/MCD12Q2",
			tag:        "MCD12Q2",
			scale:      500,
			metricList: []string{"GreenInc", "GreenMax", "GreenDec", "GreenMin"},
			metrics: map[string]metric{
				"GreenInc": {Band: "Onset_Greenness_Increase1", Temporal: domain.ReduceFirst},
				"GreenMax": {Band: "Onset_Greenness_Maximum1", Temporal: domain.ReduceFirst},
				"GreenDec": {Band: "Onset_Greenness_Decrease1", Temporal: domain.ReduceFirst},
				"GreenMin": {Band: "Onset_Greenness_Minimum1", Temporal: domain.ReduceFirst},
			},
			steps: map[domain.TimeStep]stepSpec{domain.StepYear: {Abbrev: "p"}},
			rng:   rangeFixed,
		},
		&series{
			name:       "landsat",
			title:      "Landsat surface reflectance vegetation indices",
			collection: "LANDSAT/LC08/C01/T1_SR",
			scale:      30,
			metricList: []string{"NDVI", "NDWI", "NBR"},
			metrics: map[string]metric{
				"NDVI": {}, "NDWI": {}, "NBR": {},
			},
			steps: relativeSteps,
			mask:  landsatMask,
			rng:   rangeProbed,
			sensors: []sensor{
				{Name: "L4", Collection: "LANDSAT/LT04/C01/T1_SR", Pairs: tmPairs},
				{Name: "L5", Collection: "LANDSAT/LT05/C01/T1_SR", Pairs: tmPairs},
				{Name: "L7", Collection: "LANDSAT/LE07/C01/T1_SR", Pairs: tmPairs},
				{Name: "L8", Collection: "LANDSAT/LC08/C01/T1_SR", Pairs: oliPairs},
			},
		},
		&series{
			name:       "lai",
			title:      "MODIS leaf area index and FPAR",
			collection: "MODIS/006/MCD15A3H",
			tag:        "MCD15A3H",
			scale:      500,
			metricList: []string{"Lai", "Fpar"},
			metrics: map[string]metric{
				"Lai":  {Band: "Lai", Convert: pipeline.Scaled(0.1)},
				"Fpar": {Band: "Fpar", Convert: pipeline.Scaled(0.01)},
			},
			steps:    relativeSteps,
			policies: laiPolicies,
			rng:      rangeProbed,
		},
		&series{
			name:       "lst",
			title:      "MODIS land surface temperature",
			collection: "MODIS/006/MOD11A2",
			scale:      1000,
			metricList: []string{"day1030", "day1330", "night2230", "night0130"},
			metrics: map[string]metric{
				"day1030": {Band: "LST_Day_1km", Collection: "MODIS/006/MOD11A2", Tag: "MOD11A2",
					Convert: lstConv, Policies: lstPolicies("QC_Day")},
				"day1330": {Band: "LST_Day_1km", Collection: "MODIS/006/MYD11A2", Tag: "MYD11A2",
					Convert: lstConv, Policies: lstPolicies("QC_Day")},
				"night2230": {Band: "LST_Night_1km", Collection: "MODIS/006/MOD11A2", Tag: "MOD11A2",
					Convert: lstConv, Policies: lstPolicies("QC_Night")},
				"night0130": {Band: "LST_Night_1km", Collection: "MODIS/006/MYD11A2", Tag: "MYD11A2",
					Convert: lstConv, Policies: lstPolicies("QC_Night")},
			},
			steps: relativeSteps,
			rng:   rangeProbed,
		},
		&series{
			name:       "modis-vi",
			title:      "MODIS vegetation indices",
			collection: "MODIS/006/MOD13Q1",
			tag:        "MOD13Q1",
			scale:      250,
			metricList: []string{"NDVI", "EVI"},
			metrics:    scaled(pipeline.Scaled(0.0001), "NDVI", "EVI"),
			steps:      relativeSteps,
			policies:   viPolicies,
			rng:        rangeProbed,
		},
		&series{
			name:       "soil-moisture",
			title:      "NASA-USDA SMAP soil moisture",
			collection: "NASA_USDA/HSL/soil_moisture",
			tag:        "SMOS",
			scale:      25000,
			metricList: []string{"ssm", "susm", "smp"},
			metrics:    scaled(pipeline.Identity(), "ssm", "susm", "smp"),
			steps:      relativeSteps,
			rng:        rangeProbed,
			trustStart: true,
		},
		&series{
			name:       "terraclimate",
			title:      "TerraClimate monthly climate and water balance",
			collection: "IDAHO_EPSCOR/TERRACLIMATE",
			scale:      4000,
			metricList: []string{"aet", "def", "pdsi", "pet", "pr", "ro", "soil", "srad", "swe", "tmmn", "tmmx", "vap", "vpd", "vs"},
			metrics:    terraclimate,
			steps:      map[domain.TimeStep]stepSpec{domain.StepMonth: {Abbrev: "tcy", Native: true}},
			rng:        rangeFixed,
		},
		&series{
			name:       "nex-gddp",
			title:      "NEX-GDDP downscaled climate projections",
			collection: "NASA/NEX-GDDP",
			tag:        "NEX",
			scale:      25000,
			metricList: []string{"pr", "tasmin", "tasmax"},
			metrics:    nex,
			steps: map[domain.TimeStep]stepSpec{
				domain.StepDay:   {Abbrev: "projd"},
				domain.StepMonth: {Abbrev: "projm"},
				domain.StepYear:  {Abbrev: "projy"},
			},
			rng:       rangeFixed,
			scenarios: NEXScenarios,
			models:    NEXModels,
		},
		&series{
			name:       "trmm",
			title:      "TRMM monthly precipitation",
			collection: "TRMM/3B43V7",
			tag:        "TRMM",
			scale:      25000,
			metricList: []string{"pr"},
			metrics:    map[string]metric{"pr": {Band: "precipitation"}},
			steps:      map[domain.TimeStep]stepSpec{domain.StepMonth: {Abbrev: "rm", Native: true}},
			rng:        rangeFixed,
		},
		&series{
			name:       "prism",
			title:      "PRISM monthly climate",
			collection: "OREGONSTATE/PRISM/AN81m",
			scale:      4000,
			metricList: []string{"ppt", "tmean", "tmin", "tmax", "tdmean", "vpdmin", "vpdmax"},
			metrics:    scaled(pipeline.Identity(), "ppt", "tmean", "tmin", "tmax", "tdmean", "vpdmin", "vpdmax"),
			steps:      map[domain.TimeStep]stepSpec{domain.StepMonth: {Abbrev: "pri", Native: true}},
			rng:        rangeFixed,
		},
		&series{
			name:       "maca",
			title:      "MACAv2 downscaled monthly climate projections",
			collection: "IDAHO_EPSCOR/MACAv2_METDATA_MONTHLY",
			tag:        "MACA",
			scale:      4000,
			metricList: []string{"tasmax", "tasmin", "huss", "pr", "rsds", "was"},
			metrics:    maca,
			steps: map[domain.TimeStep]stepSpec{
				domain.StepMonth: {Abbrev: "projm", Native: true},
				domain.StepYear:  {Abbrev: "projy"},
			},
			rng:       rangeFixed,
			scenarios: MACAScenarios,
			models:    MACAModels,
		},
	}
}
