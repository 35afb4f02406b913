package train

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/chocoforestwatch/forestwatch-core/train/boost"
)

func separableDataset(n int) (*mat.Dense, []int, []string) {
	X := mat.NewDense(n, 1, nil)
	y := make([]int, n)
	groups := make([]string, n)
	for i := 0; i < n; i++ {
		v := -10.0 + float64(i)*(20.0/float64(n-1))
		X.Set(i, 0, v)
		if v < 0 {
			y[i] = 0
		} else {
			y[i] = 1
		}
		groups[i] = "g" + string(rune('a'+i%5))
	}
	return X, y, groups
}

func TestCrossValidateReportsMeanAndStdDev(t *testing.T) {
	X, y, groups := separableDataset(50)
	p := boost.DefaultParams(2)
	p.Estimators = 10
	p.MaxDepth = 2
	result := CrossValidate(X, y, groups, SplitFeature, 5, p, 0)
	require.NotEmpty(t, result.Folds)
	require.GreaterOrEqual(t, result.AccuracyMean, 0.0)
	require.LessOrEqual(t, result.AccuracyMean, 1.0)
	require.GreaterOrEqual(t, result.AccuracyStdDev, 0.0)
}

func TestAssignFoldsIsGroupAwareForFeatureSplit(t *testing.T) {
	groups := []string{"a", "a", "b", "b", "c", "c"}
	folds := assignFolds(groups, SplitFeature, 3, 1)
	seen := make(map[string]int)
	for i, g := range groups {
		if prev, ok := seen[g]; ok {
			require.Equal(t, prev, folds[i], "group %s must stay in a single fold", g)
		} else {
			seen[g] = folds[i]
		}
	}
}
