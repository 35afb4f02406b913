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
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/chocoforestwatch/forestwatch-core/ferrors"
	"github.com/chocoforestwatch/forestwatch-core/train/boost"
)

// Diagnostics bundles everything the Fit phase emits besides the model
// bundle itself.
type Diagnostics struct {
	Confusion       ConfusionMatrix
	PerClass        []ClassMetrics
	Macro           ClassMetrics
	TestAccuracy    float64
	CV              CVResult
	ROC             []ROCPoint
	PR              []PRPoint
	Calibration     []CalibrationBin
	Importance      FeatureImportance
	Shap            ShapSummary
	LearningCurve   []LearningCurvePoint
	ObservedClasses []int
}

// FitResult is everything Fit produces: the Monthly Model bundle and its
// diagnostics.
type FitResult struct {
	Bundle      *Bundle
	Diagnostics Diagnostics
}

// Fit runs the C3 Fit phase: split, train with early stopping against the
// validation partition, cross-validate train+val, evaluate on test, and
// produce diagnostics plus a serialized model bundle.
func Fit(fc *FeatureCache, cfg Config) (*FitResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	X, err := fc.matrix()
	if err != nil {
		return nil, ferrors.New(ferrors.ModelError, fmt.Sprintf("%04d-%02d", fc.Year, fc.Month), err)
	}
	rows := fc.rows()

	observed := ObservedClasses(rows)
	if len(observed) < 2 {
		return nil, ferrors.New(ferrors.ModelError, fmt.Sprintf("%04d-%02d", fc.Year, fc.Month),
			fmt.Errorf("train: all rows belong to a single class"))
	}
	classOrder := cfg.ClassOrder
	if len(classOrder) != 0 && len(observed) < len(classOrder) {
		classOrder = reduceClassOrder(classOrder, observed)
	}

	split := MakeSplit(rows, cfg.SplitMethod, cfg.TestFraction, cfg.ValFraction, cfg.RandomState)
	if len(split.Train) == 0 || len(split.Test) == 0 {
		return nil, ferrors.New(ferrors.ModelError, fmt.Sprintf("%04d-%02d", fc.Year, fc.Month),
			fmt.Errorf("train: split produced an empty train or test partition"))
	}

	trainX, trainY := subset(X, fc.ClassIdx, split.Train)
	valX, valY := subset(X, fc.ClassIdx, split.Val)
	testX, testY := subset(X, fc.ClassIdx, split.Test)

	params := cfg.Hyperparams
	params.NumClasses = len(classOrder)
	params.EarlyStoppingRounds = cfg.EarlyStoppingRounds
	if cfg.ClassWeighting == ClassWeightBalanced {
		params.ClassWeights = boost.BalancedClassWeights(trainY, len(classOrder))
	}

	model, err := boost.Fit(trainX, trainY, valX, valY, params)
	if err != nil {
		return nil, ferrors.New(ferrors.ModelError, fmt.Sprintf("%04d-%02d", fc.Year, fc.Month), err)
	}

	cvRows := append(append([]int(nil), split.Train...), split.Val...)
	cvX, cvY := subset(X, fc.ClassIdx, cvRows)
	cvGroups := make([]string, len(cvRows))
	for i, r := range cvRows {
		cvGroups[i] = rows[r].GroupID
	}
	cv := CrossValidate(cvX, cvY, cvGroups, cfg.SplitMethod, cfg.CVFolds, params, cfg.RandomState)

	testPreds := model.Predict(testX)
	confusion := NewConfusionMatrix(len(classOrder), testY, testPreds)
	perClass := confusion.PerClass()

	probs := model.PredictProba(testX)
	probColForClass1 := columnOf(probs, minInt(1, len(classOrder)-1))

	imp := Importance(model, trainX, trainY, fc.matrixWidth())
	shap := Shap(model, testX, minInt(1, len(classOrder)-1), imp)
	learningCurve := LearningCurve(trainX, trainY, valX, valY, params)

	diag := Diagnostics{
		Confusion:       confusion,
		PerClass:        perClass,
		Macro:           MacroAverage(perClass),
		TestAccuracy:    confusion.Accuracy(),
		CV:              cv,
		ROC:             ROCCurve(probColForClass1, testY, minInt(1, len(classOrder)-1)),
		PR:              PRCurve(probColForClass1, testY, minInt(1, len(classOrder)-1)),
		Calibration:     Calibration(probColForClass1, testY, minInt(1, len(classOrder)-1), 10),
		Importance:      imp,
		Shap:            shap,
		LearningCurve:   learningCurve,
		ObservedClasses: observed,
	}

	bundle := &Bundle{
		SchemaVersion:     BundleSchemaVersion,
		Model:             model,
		FeatureExtractors: fc.Extractors,
		ClassNames:        classOrder,
		Hyperparams:       params,
	}
	return &FitResult{Bundle: bundle, Diagnostics: diag}, nil
}

func reduceClassOrder(classOrder []string, observed []int) []string {
	out := make([]string, 0, len(observed))
	for _, idx := range observed {
		if idx >= 0 && idx < len(classOrder) {
			out = append(out, classOrder[idx])
		}
	}
	return out
}

func columnOf(m *mat.Dense, col int) []float64 {
	n, _ := m.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = m.At(i, col)
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (fc *FeatureCache) matrixWidth() int {
	if len(fc.Rows) == 0 {
		return 0
	}
	return len(fc.Rows[0])
}
