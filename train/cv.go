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
	"math/rand"
	"sort"

	"github.com/GaryBoone/GoStats/stats"
	"gonum.org/v1/gonum/mat"

	"github.com/chocoforestwatch/forestwatch-core/train/boost"
)

// FoldResult is one K-fold cross-validation fold's held-out accuracy.
type FoldResult struct {
	Accuracy float64
}

// CVResult is the aggregate of K folds: mean ± std, as required by the
// CV contract ("Metrics reported as mean ± std across folds").
type CVResult struct {
	Folds            []FoldResult
	AccuracyMean     float64
	AccuracyStdDev   float64
}

// CrossValidate runs K-fold cross-validation over rows (train+val
// partition), group-aware when method is SplitFeature: a feature id never
// appears in more than one fold.
func CrossValidate(X *mat.Dense, y []int, groups []string, method SplitMethod, folds int, params boost.Params, seed int64) CVResult {
	assignment := assignFolds(groups, method, folds, seed)

	var results []FoldResult
	for k := 0; k < folds; k++ {
		var trainIdx, testIdx []int
		for i, fold := range assignment {
			if fold == k {
				testIdx = append(testIdx, i)
			} else {
				trainIdx = append(trainIdx, i)
			}
		}
		if len(trainIdx) == 0 || len(testIdx) == 0 {
			continue
		}
		trainX, trainY := subset(X, y, trainIdx)
		testX, testY := subset(X, y, testIdx)

		m, err := boost.Fit(trainX, trainY, nil, nil, params)
		if err != nil {
			continue
		}
		preds := m.Predict(testX)
		correct := 0
		for i, p := range preds {
			if p == testY[i] {
				correct++
			}
		}
		results = append(results, FoldResult{Accuracy: float64(correct) / float64(len(testY))})
	}

	accs := make([]float64, len(results))
	for i, r := range results {
		accs[i] = r.Accuracy
	}
	mean := stats.StatsMean(accs)
	std := stats.StatsSampleStandardDeviation(accs)
	return CVResult{Folds: results, AccuracyMean: mean, AccuracyStdDev: std}
}

// assignFolds returns, per row index, the fold number 0..folds-1. When
// method is SplitFeature, every row sharing a group id gets the same fold.
func assignFolds(groups []string, method SplitMethod, folds int, seed int64) []int {
	out := make([]int, len(groups))
	rng := rand.New(rand.NewSource(seed))

	if method == SplitPixel {
		order := rng.Perm(len(groups))
		for rank, idx := range order {
			out[idx] = rank % folds
		}
		return out
	}

	uniqueGroups := make(map[string]bool)
	for _, g := range groups {
		uniqueGroups[g] = true
	}
	names := make([]string, 0, len(uniqueGroups))
	for g := range uniqueGroups {
		names = append(names, g)
	}
	sort.Strings(names)
	rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })

	groupFold := make(map[string]int, len(names))
	for rank, name := range names {
		groupFold[name] = rank % folds
	}
	for i, g := range groups {
		out[i] = groupFold[g]
	}
	return out
}

func subset(X *mat.Dense, y []int, idx []int) (*mat.Dense, []int) {
	_, d := X.Dims()
	out := mat.NewDense(len(idx), d, nil)
	outY := make([]int, len(idx))
	for i, row := range idx {
		for j := 0; j < d; j++ {
			out.Set(i, j, X.At(row, j))
		}
		outY[i] = y[row]
	}
	return out, outY
}
