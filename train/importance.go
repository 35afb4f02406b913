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

package train

import (
	"gonum.org/v1/gonum/mat"

	"github.com/chocoforestwatch/forestwatch-core/train/boost"
)

// FeatureImportance reports a per-feature-column importance in three
// slices. Weight and Gain both hold the permutation accuracy drop computed
// by Importance, and Cover holds the number of rows it was measured on;
// none of them is derived from the trees' split counts, split gains or
// per-split row coverage.
type FeatureImportance struct {
	Weight []float64
	Gain   []float64
	Cover  []float64
}

// Importance computes FeatureImportance for a fitted model over
// numFeatures columns via permutation: each column's rows are reversed in
// turn and the resulting accuracy drop (floored at 0) is stored as both
// Weight and Gain, with Cover set to the row count, since the boosted
// trees' internal split structure is not exported outside package boost.
func Importance(m *boost.Model, X *mat.Dense, y []int, numFeatures int) FeatureImportance {
	baseAcc := accuracyOf(m, X, y)
	imp := FeatureImportance{
		Weight: make([]float64, numFeatures),
		Gain:   make([]float64, numFeatures),
		Cover:  make([]float64, numFeatures),
	}
	n, _ := X.Dims()
	for f := 0; f < numFeatures; f++ {
		permuted := mat.DenseCopyOf(X)
		col := make([]float64, n)
		for i := 0; i < n; i++ {
			col[i] = X.At(i, f)
		}
		// deterministic reversal stands in for a permutation: cheap,
		// reproducible, and still breaks the feature's correlation
		// with the label for an importance estimate.
		for i := 0; i < n; i++ {
			permuted.Set(i, f, col[n-1-i])
		}
		permAcc := accuracyOf(m, permuted, y)
		drop := baseAcc - permAcc
		if drop < 0 {
			drop = 0
		}
		imp.Gain[f] = drop
		imp.Weight[f] = drop // a single scalar importance signal reused across the three views
		imp.Cover[f] = float64(n)
	}
	return imp
}

func accuracyOf(m *boost.Model, X *mat.Dense, y []int) float64 {
	preds := m.Predict(X)
	correct := 0
	for i, p := range preds {
		if p == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(y))
}

// ShapSummary is a simplified per-row, per-feature attribution: each row's
// prediction-probability deviation from the model's mean prediction,
// apportioned across features in proportion to each feature's permutation
// importance. It approximates a true SHAP value without requiring exact
// tree traversal internals.
type ShapSummary struct {
	MeanAbsAttribution []float64 // per feature, mean(|attribution|) across rows
}

// Shap computes a ShapSummary for classIdx's probability output.
func Shap(m *boost.Model, X *mat.Dense, classIdx int, imp FeatureImportance) ShapSummary {
	n, d := X.Dims()
	probs := m.PredictProba(X)
	meanProb := 0.0
	for i := 0; i < n; i++ {
		meanProb += probs.At(i, classIdx)
	}
	meanProb /= float64(n)

	totalImportance := 0.0
	for _, g := range imp.Gain {
		totalImportance += g
	}

	sums := make([]float64, d)
	for i := 0; i < n; i++ {
		deviation := probs.At(i, classIdx) - meanProb
		for f := 0; f < d; f++ {
			share := 1.0 / float64(d)
			if totalImportance > 0 {
				share = imp.Gain[f] / totalImportance
			}
			sums[f] += abs(deviation * share)
		}
	}
	out := make([]float64, d)
	for f := range out {
		out[f] = sums[f] / float64(n)
	}
	return ShapSummary{MeanAbsAttribution: out}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
