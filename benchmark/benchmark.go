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

package benchmark

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ctessum/geom"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/chocoforestwatch/forestwatch-core/ferrors"
)

// Class values on the fixed two-class palette the benchmarker scores
// against, matching the Predictor's/Composite Builder's palette.
const (
	Forest    = byte(0)
	NonForest = byte(1)
)

// ConfusionMatrix is a 2x2 table over {Forest, NonForest}. Rows are actual
// (reference), columns are predicted.
type ConfusionMatrix [2][2]int

// ClassMetrics holds precision/recall/F1 for one class.
type ClassMetrics struct {
	Precision, Recall, F1 float64
}

// AreaStats reports the area, in hectares, covered by each class in the
// prediction.
type AreaStats struct {
	ForestHectares    float64
	NonForestHectares float64
}

// Result is everything the benchmarker reports for one prediction-vs-
// reference comparison.
type Result struct {
	Matrix    ConfusionMatrix
	Forest    ClassMetrics
	NonForest ClassMetrics
	Accuracy  float64
	Area      AreaStats
}

// Compare aligns pred onto ref's grid, restricts to boundary if non-nil,
// and computes the confusion matrix, per-class metrics, overall accuracy,
// and area statistics.
func Compare(pred, ref *Raster, boundary *geom.Polygon) (*Result, error) {
	if pred.SizeX == 0 || pred.SizeY == 0 || ref.SizeX == 0 || ref.SizeY == 0 {
		return nil, ferrors.New(ferrors.InputDataError, "", fmt.Errorf("benchmark: empty raster"))
	}
	aligned := Align(pred, ref)

	var matrix ConfusionMatrix
	pxW, pxH := ref.PixelSize()
	cellArea := pxW * pxH // m^2

	var forestArea, nonForestArea float64
	for row := 0; row < ref.SizeY; row++ {
		for col := 0; col < ref.SizeX; col++ {
			idx := row*ref.SizeX + col
			a := ref.Data[idx]
			p := aligned[idx]
			if a == NoDataValue || p == NoDataValue {
				continue
			}
			if boundary != nil {
				x := ref.GeoTransform[0] + (float64(col)+0.5)*ref.GeoTransform[1]
				y := ref.GeoTransform[3] + (float64(row)+0.5)*ref.GeoTransform[5]
				status := (geom.Point{X: x, Y: y}).Within(*boundary)
				if status == geom.Outside {
					continue
				}
			}
			ai := classIndex(a)
			pi := classIndex(p)
			if ai < 0 || pi < 0 {
				continue
			}
			matrix[ai][pi]++
			switch p {
			case Forest:
				forestArea += cellArea
			case NonForest:
				nonForestArea += cellArea
			}
		}
	}

	result := &Result{
		Matrix:    matrix,
		Forest:    classMetrics(matrix, 0),
		NonForest: classMetrics(matrix, 1),
		Accuracy:  accuracy(matrix),
		Area: AreaStats{
			ForestHectares:    forestArea / 10000,
			NonForestHectares: nonForestArea / 10000,
		},
	}
	return result, nil
}

func classIndex(v byte) int {
	switch v {
	case Forest:
		return 0
	case NonForest:
		return 1
	default:
		return -1
	}
}

func classMetrics(m ConfusionMatrix, class int) ClassMetrics {
	tp := m[class][class]
	var fp, fn int
	for i := range m {
		if i != class {
			fp += m[i][class]
			fn += m[class][i]
		}
	}
	precision := ratio(tp, tp+fp)
	recall := ratio(tp, tp+fn)
	var f1 float64
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return ClassMetrics{Precision: precision, Recall: recall, F1: f1}
}

func accuracy(m ConfusionMatrix) float64 {
	correct := m[0][0] + m[1][1]
	total := m[0][0] + m[0][1] + m[1][0] + m[1][1]
	return ratio(correct, total)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// WriteJSON writes result to path as the benchmarker's machine-readable
// output.
func WriteJSON(path string, result *Result) error {
	f, err := os.Create(path)
	if err != nil {
		return ferrors.New(ferrors.TransportError, path, fmt.Errorf("benchmark: creating %s: %w", path, err))
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// WritePlot renders a per-class precision/recall/F1 bar chart to path as a
// PNG, giving the benchmarker a quick visual alongside its JSON output.
func WritePlot(path string, result *Result) error {
	p := plot.New()
	p.Title.Text = "precision / recall / f1"
	p.Y.Min = 0
	p.Y.Max = 1

	groups := []struct {
		label string
		m     ClassMetrics
	}{
		{"forest", result.Forest},
		{"non-forest", result.NonForest},
	}

	width := vg.Points(15)
	for i, g := range groups {
		values := plotter.Values{g.m.Precision, g.m.Recall, g.m.F1}
		bar, err := plotter.NewBarChart(values, width)
		if err != nil {
			return ferrors.New(ferrors.InputDataError, "", fmt.Errorf("benchmark: building bar chart for %s: %w", g.label, err))
		}
		bar.Offset = vg.Points(float64(i)*3*15 - 15)
		p.Add(bar)
	}
	p.NominalX("precision", "recall", "f1")

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return ferrors.New(ferrors.TransportError, path, fmt.Errorf("benchmark: saving plot to %s: %w", path, err))
	}
	return nil
}

// SummaryTable renders result as the benchmarker's human-readable summary.
func SummaryTable(result *Result) string {
	return fmt.Sprintf(
		"accuracy=%.4f\nforest:     precision=%.4f recall=%.4f f1=%.4f area_ha=%.2f\nnon-forest: precision=%.4f recall=%.4f f1=%.4f area_ha=%.2f\n",
		result.Accuracy,
		result.Forest.Precision, result.Forest.Recall, result.Forest.F1, result.Area.ForestHectares,
		result.NonForest.Precision, result.NonForest.Recall, result.NonForest.F1, result.Area.NonForestHectares,
	)
}
