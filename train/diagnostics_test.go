package train

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/chocoforestwatch/forestwatch-core/train/boost"
)

func TestConfusionMatrixAndAccuracy(t *testing.T) {
	actual := []int{0, 0, 1, 1, 1}
	predicted := []int{0, 1, 1, 1, 0}
	cm := NewConfusionMatrix(2, actual, predicted)
	require.Equal(t, 3, cm.Matrix[0][0]+cm.Matrix[1][1])
	require.InDelta(t, 0.6, cm.Accuracy(), 1e-9)
}

func TestPerClassMetrics(t *testing.T) {
	actual := []int{0, 0, 1, 1}
	predicted := []int{0, 0, 1, 1}
	cm := NewConfusionMatrix(2, actual, predicted)
	metrics := cm.PerClass()
	for _, m := range metrics {
		require.InDelta(t, 1.0, m.Precision, 1e-9)
		require.InDelta(t, 1.0, m.Recall, 1e-9)
		require.InDelta(t, 1.0, m.F1, 1e-9)
	}
}

func TestMacroAverage(t *testing.T) {
	metrics := []ClassMetrics{{Precision: 1, Recall: 0.5, F1: 0.6}, {Precision: 0, Recall: 0.5, F1: 0.4}}
	avg := MacroAverage(metrics)
	require.InDelta(t, 0.5, avg.Precision, 1e-9)
	require.InDelta(t, 0.5, avg.Recall, 1e-9)
}

func TestROCCurveMonotonic(t *testing.T) {
	probs := []float64{0.9, 0.8, 0.3, 0.1}
	actual := []int{1, 1, 0, 0}
	points := ROCCurve(probs, actual, 1)
	require.NotEmpty(t, points)
	for i := 1; i < len(points); i++ {
		require.GreaterOrEqual(t, points[i].TPR, points[i-1].TPR)
		require.GreaterOrEqual(t, points[i].FPR, points[i-1].FPR)
	}
	require.InDelta(t, 1.0, points[len(points)-1].TPR, 1e-9)
	require.InDelta(t, 1.0, points[len(points)-1].FPR, 1e-9)
}

func TestPRCurveEndsAtFullRecall(t *testing.T) {
	probs := []float64{0.9, 0.8, 0.3, 0.1}
	actual := []int{1, 1, 0, 0}
	points := PRCurve(probs, actual, 1)
	require.InDelta(t, 1.0, points[len(points)-1].Recall, 1e-9)
}

func TestLearningCurveIsIncreasingInTrainSize(t *testing.T) {
	n := 40
	X := mat.NewDense(n, 1, nil)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		v := -10.0 + float64(i)*(20.0/float64(n-1))
		X.Set(i, 0, v)
		if v < 0 {
			y[i] = 0
		} else {
			y[i] = 1
		}
	}
	params := boost.DefaultParams(2)
	params.Estimators = 20
	params.MaxDepth = 2

	points := LearningCurve(X, y, X, y, params)
	require.Len(t, points, len(learningCurveFractions))
	for i := 1; i < len(points); i++ {
		require.Greater(t, points[i].TrainSize, points[i-1].TrainSize)
	}
	require.Equal(t, n, points[len(points)-1].TrainSize)
}

func TestCalibrationBuckets(t *testing.T) {
	probs := []float64{0.05, 0.15, 0.85, 0.95}
	actual := []int{0, 0, 1, 1}
	bins := Calibration(probs, actual, 1, 10)
	require.NotEmpty(t, bins)
	for _, b := range bins {
		require.GreaterOrEqual(t, b.Count, 1)
	}
}
