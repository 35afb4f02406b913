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
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/chocoforestwatch/forestwatch-core/train/boost"
)

// ConfusionMatrix is a numClasses x numClasses matrix, Matrix[actual][predicted].
type ConfusionMatrix struct {
	Matrix [][]int
}

// NewConfusionMatrix builds the matrix from parallel actual/predicted slices.
func NewConfusionMatrix(numClasses int, actual, predicted []int) ConfusionMatrix {
	m := make([][]int, numClasses)
	for i := range m {
		m[i] = make([]int, numClasses)
	}
	for i := range actual {
		a, p := actual[i], predicted[i]
		if a >= 0 && a < numClasses && p >= 0 && p < numClasses {
			m[a][p]++
		}
	}
	return ConfusionMatrix{Matrix: m}
}

// ClassMetrics holds per-class precision/recall/F1.
type ClassMetrics struct {
	Precision, Recall, F1 float64
}

// PerClass computes precision/recall/F1 for every class from the matrix.
func (cm ConfusionMatrix) PerClass() []ClassMetrics {
	n := len(cm.Matrix)
	out := make([]ClassMetrics, n)
	for k := 0; k < n; k++ {
		tp := cm.Matrix[k][k]
		fp, fn := 0, 0
		for i := 0; i < n; i++ {
			if i != k {
				fp += cm.Matrix[i][k]
				fn += cm.Matrix[k][i]
			}
		}
		precision := ratio(tp, tp+fp)
		recall := ratio(tp, tp+fn)
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		out[k] = ClassMetrics{Precision: precision, Recall: recall, F1: f1}
	}
	return out
}

// Accuracy is overall correct / total.
func (cm ConfusionMatrix) Accuracy() float64 {
	correct, total := 0, 0
	for i, row := range cm.Matrix {
		for j, v := range row {
			total += v
			if i == j {
				correct += v
			}
		}
	}
	return ratio(correct, total)
}

// MacroAverage returns the unweighted mean of precision/recall/F1 across classes.
func MacroAverage(metrics []ClassMetrics) ClassMetrics {
	var sum ClassMetrics
	for _, m := range metrics {
		sum.Precision += m.Precision
		sum.Recall += m.Recall
		sum.F1 += m.F1
	}
	n := float64(len(metrics))
	if n == 0 {
		return ClassMetrics{}
	}
	return ClassMetrics{Precision: sum.Precision / n, Recall: sum.Recall / n, F1: sum.F1 / n}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// ROCPoint is one threshold's (false-positive rate, true-positive rate).
type ROCPoint struct{ FPR, TPR, Threshold float64 }

// ROCCurve computes the one-vs-rest ROC curve for classIdx from predicted
// probabilities probCol (one probability per row) and true labels.
func ROCCurve(probCol []float64, actual []int, classIdx int) []ROCPoint {
	type scored struct {
		score float64
		label bool
	}
	pairs := make([]scored, len(actual))
	posTotal, negTotal := 0, 0
	for i, a := range actual {
		isPos := a == classIdx
		pairs[i] = scored{score: probCol[i], label: isPos}
		if isPos {
			posTotal++
		} else {
			negTotal++
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })

	var points []ROCPoint
	tp, fp := 0, 0
	for _, p := range pairs {
		if p.label {
			tp++
		} else {
			fp++
		}
		points = append(points, ROCPoint{
			FPR:       ratio(fp, negTotal),
			TPR:       ratio(tp, posTotal),
			Threshold: p.score,
		})
	}
	return points
}

// PRPoint is one threshold's (recall, precision).
type PRPoint struct{ Recall, Precision, Threshold float64 }

// PRCurve computes the one-vs-rest precision/recall curve for classIdx.
func PRCurve(probCol []float64, actual []int, classIdx int) []PRPoint {
	type scored struct {
		score float64
		label bool
	}
	pairs := make([]scored, len(actual))
	posTotal := 0
	for i, a := range actual {
		isPos := a == classIdx
		pairs[i] = scored{score: probCol[i], label: isPos}
		if isPos {
			posTotal++
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })

	var points []PRPoint
	tp, fp := 0, 0
	for _, p := range pairs {
		if p.label {
			tp++
		} else {
			fp++
		}
		points = append(points, PRPoint{
			Recall:    ratio(tp, posTotal),
			Precision: ratio(tp, tp+fp),
			Threshold: p.score,
		})
	}
	return points
}

// CalibrationBin is one reliability-diagram bin.
type CalibrationBin struct {
	MeanPredicted float64
	FractionTrue  float64
	Count         int
}

// Calibration buckets predicted probabilities for classIdx into numBins
// equal-width bins and reports the observed positive fraction per bin (a
// reliability diagram).
func Calibration(probCol []float64, actual []int, classIdx int, numBins int) []CalibrationBin {
	sums := make([]float64, numBins)
	trues := make([]int, numBins)
	counts := make([]int, numBins)
	for i, p := range probCol {
		bin := int(p * float64(numBins))
		if bin >= numBins {
			bin = numBins - 1
		}
		if bin < 0 {
			bin = 0
		}
		sums[bin] += p
		counts[bin]++
		if actual[i] == classIdx {
			trues[bin]++
		}
	}
	var out []CalibrationBin
	for b := 0; b < numBins; b++ {
		if counts[b] == 0 {
			continue
		}
		out = append(out, CalibrationBin{
			MeanPredicted: sums[b] / float64(counts[b]),
			FractionTrue:  float64(trues[b]) / float64(counts[b]),
			Count:         counts[b],
		})
	}
	return out
}

// LearningCurvePoint records the training-set size and the resulting
// train/validation accuracy, used to plot a learning curve.
type LearningCurvePoint struct {
	TrainSize              int
	TrainAccuracy, ValAccuracy float64
}

// learningCurveFractions are the increasing prefixes of the training
// partition a learning curve is evaluated at.
var learningCurveFractions = []float64{0.2, 0.4, 0.6, 0.8, 1.0}

// LearningCurve refits params against increasing prefixes of trainX/trainY
// (without early stopping, since the prefix sizes themselves are the
// independent variable) and reports train and held-out validation
// accuracy at each size.
func LearningCurve(trainX *mat.Dense, trainY []int, valX *mat.Dense, valY []int, params boost.Params) []LearningCurvePoint {
	n, _ := trainX.Dims()
	if n == 0 {
		return nil
	}
	var out []LearningCurvePoint
	for _, frac := range learningCurveFractions {
		size := int(float64(n) * frac)
		if size < 1 {
			size = 1
		}
		if size > n {
			size = n
		}
		idx := make([]int, size)
		for i := range idx {
			idx[i] = i
		}
		subX, subY := subset(trainX, trainY, idx)
		m, err := boost.Fit(subX, subY, nil, nil, params)
		if err != nil {
			continue
		}
		point := LearningCurvePoint{
			TrainSize:     size,
			TrainAccuracy: accuracy(m.Predict(subX), subY),
		}
		if valX != nil && len(valY) > 0 {
			point.ValAccuracy = accuracy(m.Predict(valX), valY)
		}
		out = append(out, point)
	}
	return out
}

func accuracy(predicted, actual []int) float64 {
	correct := 0
	for i, p := range predicted {
		if p == actual[i] {
			correct++
		}
	}
	return ratio(correct, len(actual))
}
