/*
Copyright © 2024 the ChocoForestWatch authors.
This file is part of forestwatch-core.

forestwatch-core is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

forestwatch-core is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with forestwatch-core.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package features implements the band-to-feature transforms of the
// Feature Engineer (C2): a closed registry of named, pure extractors that
// the Trainer and Predictor apply identically, byte-for-byte, to turn a
// base band stack into the fixed-width row fed to the classifier.
package features

import (
	"fmt"
	"math"
	"time"
)

// epsilon guards every division against a zero denominator. It is small
// enough that it does not move a well-conditioned ratio (e.g. NDVI of
// (1000, 3000)) outside the ±1e-9 tolerance used in tests.
const epsilon = 1e-9

// defaultSAVISoilFactor is the "L" term in the SAVI formula.
const defaultSAVISoilFactor = 0.5

// Input is the per-pixel context an extractor operates on: the four base
// bands in Blue, Green, Red, NIR order, plus the temporal metadata needed
// by the "temporal" extractor.
type Input struct {
	Bands     [4]float64 // Blue, Green, Red, NIR
	Month     int        // 1-12
	Year      int
	DayOfYear int // 1-366
}

// MidMonthDayOfYear returns the day-of-year of the 15th of (year, month),
// the fixed convention used to populate Input.DayOfYear from a Pixel
// Record's (year, month) at both training and prediction time, so the
// "temporal" extractor's doy_sin column is computed identically by both.
func MidMonthDayOfYear(year, month int) int {
	return time.Date(year, time.Month(month), 15, 0, 0, 0, 0, time.UTC).YearDay()
}

func (in Input) blue() float64 { return in.Bands[0] }
func (in Input) green() float64 { return in.Bands[1] }
func (in Input) red() float64 { return in.Bands[2] }
func (in Input) nir() float64 { return in.Bands[3] }

// Extractor is a pure, named band-to-feature transform with a declared
// output arity and column names.
type Extractor struct {
	Name        string
	Columns     []string
	Apply       func(Input) []float64
}

// Arity returns the number of columns this extractor produces.
func (e Extractor) Arity() int { return len(e.Columns) }

var registry = map[string]Extractor{
	"ndvi":            ndviExtractor,
	"evi":             eviExtractor,
	"savi":            saviExtractor,
	"ndwi":            ndwiExtractor,
	"water_detection": waterDetectionExtractor,
	"brightness":      brightnessExtractor,
	"shadow":          shadowExtractor,
	"temporal":        temporalExtractor,
}

// Names returns the closed set of valid extractor names.
func Names() []string {
	return []string{"ndvi", "evi", "savi", "ndwi", "water_detection", "brightness", "shadow", "temporal"}
}

// Lookup returns the named extractor from the closed registry.
func Lookup(name string) (Extractor, error) {
	e, ok := registry[name]
	if !ok {
		return Extractor{}, fmt.Errorf("features: unknown extractor %q", name)
	}
	return e, nil
}

var ndviExtractor = Extractor{
	Name:    "ndvi",
	Columns: []string{"ndvi"},
	Apply: func(in Input) []float64 {
		return []float64{ndvi(in.red(), in.nir())}
	},
}

func ndvi(red, nir float64) float64 {
	return (nir - red) / (nir + red + epsilon)
}

var eviExtractor = Extractor{
	Name:    "evi",
	Columns: []string{"evi"},
	Apply: func(in Input) []float64 {
		red, nir, blue := in.red(), in.nir(), in.blue()
		denom := nir + 6*red - 7.5*blue + 1 + epsilon
		return []float64{2.5 * (nir - red) / denom}
	},
}

var saviExtractor = Extractor{
	Name:    "savi",
	Columns: []string{"savi"},
	Apply: func(in Input) []float64 {
		red, nir := in.red(), in.nir()
		const l = defaultSAVISoilFactor
		return []float64{(nir - red) * (1 + l) / (nir + red + l + epsilon)}
	},
}

var ndwiExtractor = Extractor{
	Name:    "ndwi",
	Columns: []string{"ndwi"},
	Apply: func(in Input) []float64 {
		return []float64{ndwi(in.green(), in.nir())}
	},
}

func ndwi(green, nir float64) float64 {
	return (green - nir) / (green + nir + epsilon)
}

var brightnessExtractor = Extractor{
	Name:    "brightness",
	Columns: []string{"brightness_mean", "brightness_nir", "brightness_std"},
	Apply: func(in Input) []float64 {
		b, g, r, n := in.blue(), in.green(), in.red(), in.nir()
		mean := (b + g + r + n) / 4
		var sumSq float64
		for _, v := range in.Bands {
			d := v - mean
			sumSq += d * d
		}
		std := math.Sqrt(sumSq / 4)
		return []float64{mean, n, std}
	},
}

var shadowExtractor = Extractor{
	Name:    "shadow",
	Columns: []string{"shadow_inverse_brightness", "shadow_blue_dominance"},
	Apply: func(in Input) []float64 {
		b, g, r, n := in.blue(), in.green(), in.red(), in.nir()
		total := b + g + r + n
		inverse := 1 / (total + epsilon)
		dominance := b / (total + epsilon)
		return []float64{inverse, dominance}
	},
}

var waterDetectionExtractor = Extractor{
	Name:    "water_detection",
	Columns: []string{"water_blue_nir_log_ratio", "water_ndwi", "water_mask"},
	Apply: func(in Input) []float64 {
		blue, nir := in.blue(), in.nir()
		logRatio := math.Log((blue + epsilon) / (nir + epsilon))
		w := ndwi(in.green(), nir)
		var mask float64
		if w > 0 {
			mask = 1
		}
		return []float64{logRatio, w, mask}
	},
}

var temporalExtractor = Extractor{
	Name:    "temporal",
	Columns: []string{"month_sin", "month_cos", "year_normalized", "doy_sin"},
	Apply: func(in Input) []float64 {
		monthPhase := 2 * math.Pi * float64(in.Month-1) / 12
		// Years are normalized relative to a fixed epoch so the feature
		// stays well-scaled across the lifetime of the project, rather
		// than drifting with whatever year range a given run happens to
		// span (which would make the column not byte-comparable across
		// runs covering different years).
		const epochYear = 2000.0
		const yearSpan = 50.0
		yearNorm := (float64(in.Year) - epochYear) / yearSpan
		doyPhase := 2 * math.Pi * float64(in.DayOfYear-1) / 365
		return []float64{math.Sin(monthPhase), math.Cos(monthPhase), yearNorm, math.Sin(doyPhase)}
	},
}

// Engineer holds an ordered list of named extractors and concatenates base
// bands with every extractor's output into one fixed-width row. The
// ordered name list must byte-equal the list recorded in a Monthly Model
// bundle at prediction time; mismatches are the caller's responsibility to
// detect via ferrors.IntegrityError.
type Engineer struct {
	Names      []string
	extractors []Extractor
}

// NewEngineer validates names against the closed registry and returns an
// Engineer that applies them in the given order.
func NewEngineer(names []string) (*Engineer, error) {
	extractors := make([]Extractor, len(names))
	for i, n := range names {
		e, err := Lookup(n)
		if err != nil {
			return nil, err
		}
		extractors[i] = e
	}
	cp := make([]string, len(names))
	copy(cp, names)
	return &Engineer{Names: cp, extractors: extractors}, nil
}

// Width returns the total row width: 4 base bands plus every extractor's
// arity.
func (e *Engineer) Width() int {
	w := 4
	for _, ex := range e.extractors {
		w += ex.Arity()
	}
	return w
}

// ColumnNames returns the names of every column in a Transform row, in
// order: blue, green, red, nir, then each extractor's declared columns.
func (e *Engineer) ColumnNames() []string {
	cols := []string{"blue", "green", "red", "nir"}
	for _, ex := range e.extractors {
		cols = append(cols, ex.Columns...)
	}
	return cols
}

// Transform concatenates the base bands and every extractor's derived
// columns into a single fixed-width row.
func (e *Engineer) Transform(in Input) []float64 {
	row := make([]float64, 0, e.Width())
	row = append(row, in.Bands[0], in.Bands[1], in.Bands[2], in.Bands[3])
	for _, ex := range e.extractors {
		row = append(row, ex.Apply(in)...)
	}
	return row
}

// Equal reports whether two ordered extractor-name lists are identical:
// the extractor list recorded in a Monthly Model must equal the list used
// at prediction time.
func Equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
