package train

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/chocoforestwatch/forestwatch-core/train/boost"
)

func TestImportanceRanksInformativeFeatureHighest(t *testing.T) {
	n := 40
	X := mat.NewDense(n, 2, nil)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		informative := -10.0 + float64(i)*(20.0/float64(n-1))
		X.Set(i, 0, informative)
		X.Set(i, 1, 0) // constant, uninformative column
		if informative < 0 {
			y[i] = 0
		} else {
			y[i] = 1
		}
	}
	p := boost.DefaultParams(2)
	p.Estimators = 20
	p.MaxDepth = 2
	m, err := boost.Fit(X, y, nil, nil, p)
	require.NoError(t, err)

	imp := Importance(m, X, y, 2)
	require.Greater(t, imp.Gain[0], imp.Gain[1])
}

func TestShapSummaryHasOneEntryPerFeature(t *testing.T) {
	n := 20
	X := mat.NewDense(n, 2, nil)
	y := make([]int, n)
	for i := 0; i < n; i++ {
		v := -5.0 + float64(i)*(10.0/float64(n-1))
		X.Set(i, 0, v)
		if v < 0 {
			y[i] = 0
		} else {
			y[i] = 1
		}
	}
	p := boost.DefaultParams(2)
	p.Estimators = 10
	m, err := boost.Fit(X, y, nil, nil, p)
	require.NoError(t, err)

	imp := Importance(m, X, y, 2)
	summary := Shap(m, X, 1, imp)
	require.Len(t, summary.MeanAbsAttribution, 2)
}
