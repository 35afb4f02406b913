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

package boost

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Params holds the model's gradient-boosting hyperparameters: estimators,
// depth, learning rate, subsample, colsample, reg_alpha, reg_lambda, gamma,
// min_child_weight.
type Params struct {
	NumClasses          int
	Estimators          int
	MaxDepth            int
	LearningRate        float64
	Subsample           float64
	ColSample           float64
	RegAlpha            float64
	RegLambda           float64
	Gamma               float64
	MinChildWeight      float64
	EarlyStoppingRounds int
	RandomState         int64
	// ClassWeights, if non-nil, scales each row's gradient and Hessian by
	// its label's entry (index by class index), implementing
	// class_weighting=balanced. A nil slice means every class is weighted
	// 1 (class_weighting=none).
	ClassWeights []float64
}

// BalancedClassWeights returns the inverse-frequency class weight vector
// used for class_weighting=balanced: weight_k = n / (numClasses * count_k),
// so the average weight across rows is 1 and rarer classes are upweighted.
func BalancedClassWeights(y []int, numClasses int) []float64 {
	counts := make([]float64, numClasses)
	for _, c := range y {
		if c >= 0 && c < numClasses {
			counts[c]++
		}
	}
	n := float64(len(y))
	weights := make([]float64, numClasses)
	for k, c := range counts {
		if c == 0 {
			weights[k] = 1
			continue
		}
		weights[k] = n / (float64(numClasses) * c)
	}
	return weights
}

// DefaultParams returns reasonable defaults, overridden by tuner presets.
func DefaultParams(numClasses int) Params {
	return Params{
		NumClasses:     numClasses,
		Estimators:     200,
		MaxDepth:       4,
		LearningRate:   0.1,
		Subsample:      0.8,
		ColSample:      0.8,
		RegAlpha:       0,
		RegLambda:      1,
		Gamma:          0,
		MinChildWeight: 1,
		RandomState:    0,
	}
}

// Model is a fitted gradient-boosted multiclass classifier: NumClasses
// additive ensembles of regression trees plus the class bias (log-prior).
type Model struct {
	Params Params
	Bias   []float64
	Trees  [][]*node // Trees[round][class]
}

// Fit trains a Model on X (n x d) with integer labels y (n), early-stopping
// against an optional validation set (valX/valY, may be nil/empty).
func Fit(X *mat.Dense, y []int, valX *mat.Dense, valY []int, p Params) (*Model, error) {
	n, _ := X.Dims()
	if n != len(y) {
		return nil, fmt.Errorf("boost: X has %d rows but y has %d labels", n, len(y))
	}
	if p.NumClasses < 2 {
		return nil, fmt.Errorf("boost: need at least 2 classes, got %d", p.NumClasses)
	}

	m := &Model{Params: p, Bias: classLogPriors(y, p.NumClasses)}
	rng := rand.New(rand.NewSource(p.RandomState))

	F := initScores(n, m.Bias)
	var valF *mat.Dense
	if valX != nil {
		vn, _ := valX.Dims()
		valF = initScores(vn, m.Bias)
	}

	bestLoss := math.Inf(1)
	roundsSinceImprovement := 0

	for round := 0; round < p.Estimators; round++ {
		probs := softmaxRows(F)
		idx := sampleRows(n, p.Subsample, rng)

		roundTrees := make([]*node, p.NumClasses)
		for k := 0; k < p.NumClasses; k++ {
			grad := make([]float64, n)
			hess := make([]float64, n)
			for i := 0; i < n; i++ {
				target := 0.0
				if y[i] == k {
					target = 1
				}
				pk := probs.At(i, k)
				w := 1.0
				if p.ClassWeights != nil && y[i] >= 0 && y[i] < len(p.ClassWeights) {
					w = p.ClassWeights[y[i]]
				}
				grad[i] = w * (pk - target)
				hess[i] = w * math.Max(pk*(1-pk), 1e-6)
			}
			newtonTarget := make([]float64, n)
			for i := 0; i < n; i++ {
				newtonTarget[i] = -grad[i] / hess[i]
			}
			tree := fitTree(X, newtonTarget, hess, idx, treeParams{
				MaxDepth:       p.MaxDepth,
				MinChildWeight: p.MinChildWeight,
				Lambda:         p.RegLambda,
				Gamma:          p.Gamma,
				ColSample:      p.ColSample,
				rng:            rng,
			})
			roundTrees[k] = tree
			addTreePredictions(F, X, tree, k, p.LearningRate)
		}
		m.Trees = append(m.Trees, roundTrees)

		if valX != nil && len(valY) > 0 {
			for k := 0; k < p.NumClasses; k++ {
				addTreePredictions(valF, valX, roundTrees[k], k, p.LearningRate)
			}
			loss := logLoss(valF, valY)
			if loss < bestLoss-1e-6 {
				bestLoss = loss
				roundsSinceImprovement = 0
			} else {
				roundsSinceImprovement++
				if p.EarlyStoppingRounds > 0 && roundsSinceImprovement >= p.EarlyStoppingRounds {
					break
				}
			}
		}
	}
	return m, nil
}

// PredictProba returns per-row class probabilities.
func (m *Model) PredictProba(X *mat.Dense) *mat.Dense {
	n, _ := X.Dims()
	F := initScores(n, m.Bias)
	for _, round := range m.Trees {
		for k, tree := range round {
			if tree == nil {
				continue
			}
			addTreePredictions(F, X, tree, k, m.Params.LearningRate)
		}
	}
	return softmaxRows(F)
}

// Predict returns the argmax class index per row.
func (m *Model) Predict(X *mat.Dense) []int {
	probs := m.PredictProba(X)
	n, k := probs.Dims()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		best, bestVal := 0, probs.At(i, 0)
		for c := 1; c < k; c++ {
			if v := probs.At(i, c); v > bestVal {
				best, bestVal = c, v
			}
		}
		out[i] = best
	}
	return out
}

func classLogPriors(y []int, numClasses int) []float64 {
	counts := make([]float64, numClasses)
	for _, c := range y {
		if c >= 0 && c < numClasses {
			counts[c]++
		}
	}
	total := float64(len(y))
	bias := make([]float64, numClasses)
	for k, c := range counts {
		p := math.Max(c/total, 1e-6)
		bias[k] = math.Log(p)
	}
	return bias
}

func initScores(n int, bias []float64) *mat.Dense {
	F := mat.NewDense(n, len(bias), nil)
	for i := 0; i < n; i++ {
		for k, b := range bias {
			F.Set(i, k, b)
		}
	}
	return F
}

func addTreePredictions(F *mat.Dense, X *mat.Dense, tree *node, class int, lr float64) {
	if tree == nil {
		return
	}
	n, d := X.Dims()
	row := make([]float64, d)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			row[j] = X.At(i, j)
		}
		F.Set(i, class, F.At(i, class)+lr*tree.predict(row))
	}
}

func softmaxRows(F *mat.Dense) *mat.Dense {
	n, k := F.Dims()
	out := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		max := F.At(i, 0)
		for c := 1; c < k; c++ {
			if v := F.At(i, c); v > max {
				max = v
			}
		}
		sum := 0.0
		exps := make([]float64, k)
		for c := 0; c < k; c++ {
			e := math.Exp(F.At(i, c) - max)
			exps[c] = e
			sum += e
		}
		for c := 0; c < k; c++ {
			out.Set(i, c, exps[c]/sum)
		}
	}
	return out
}

func logLoss(F *mat.Dense, y []int) float64 {
	probs := softmaxRows(F)
	total := 0.0
	for i, label := range y {
		p := math.Max(probs.At(i, label), 1e-12)
		total -= math.Log(p)
	}
	return total / float64(len(y))
}

func sampleRows(n int, subsample float64, rng *rand.Rand) []int {
	if subsample >= 1 || subsample <= 0 {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	var out []int
	for i := 0; i < n; i++ {
		if rng.Float64() < subsample {
			out = append(out, i)
		}
	}
	if len(out) == 0 {
		out = []int{0}
	}
	return out
}
