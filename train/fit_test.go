package train

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chocoforestwatch/forestwatch-core/extract"
)

func syntheticPixelCache(year, month int) *extract.PixelCache {
	pc := &extract.PixelCache{Year: year, Month: month}
	for i := 0; i < 60; i++ {
		class := i % 2
		var bands [4]float64
		if class == 0 {
			bands = [4]float64{500, 800, 400, 3500} // vegetated-looking
		} else {
			bands = [4]float64{1200, 1300, 1400, 1500} // bare/urban-looking
		}
		pc.Rows = append(pc.Rows, extract.PixelRecord{
			X: i, Y: i, Month: month, ClassIdx: class,
			Bands:     bands,
			FeatureID: "f" + string(rune('a'+i%10)),
		})
	}
	return pc
}

func TestPrepareAndFitEndToEnd(t *testing.T) {
	pc := syntheticPixelCache(2021, 3)
	fc, err := Prepare(pc, []string{"ndvi", "evi"})
	require.NoError(t, err)
	require.Len(t, fc.Rows, 60)
	require.Equal(t, []string{"blue", "green", "red", "nir", "ndvi", "evi"}, fc.ColumnNames)

	cfg := DefaultConfig([]string{"Forest", "NonForest"}, []string{"ndvi", "evi"})
	cfg.CVFolds = 3
	cfg.Hyperparams.Estimators = 15
	cfg.Hyperparams.MaxDepth = 2

	result, err := Fit(fc, cfg)
	require.NoError(t, err)
	require.Equal(t, []string{"ndvi", "evi"}, result.Bundle.FeatureExtractors)
	require.GreaterOrEqual(t, result.Diagnostics.TestAccuracy, 0.0)
	require.NotEmpty(t, result.Diagnostics.CV.Folds)
	require.NoError(t, result.Bundle.CheckExtractors([]string{"ndvi", "evi"}))
}

func TestPrepareFailsOnEmptyCache(t *testing.T) {
	pc := &extract.PixelCache{Year: 2021, Month: 3}
	_, err := Prepare(pc, []string{"ndvi"})
	require.Error(t, err)
}

func TestPrepareFailsWithSingleClass(t *testing.T) {
	pc := &extract.PixelCache{Year: 2021, Month: 3}
	for i := 0; i < 5; i++ {
		pc.Rows = append(pc.Rows, extract.PixelRecord{ClassIdx: 0, Month: 3, FeatureID: "f1", Bands: [4]float64{1, 2, 3, 4}})
	}
	_, err := Prepare(pc, []string{"ndvi"})
	require.Error(t, err)
}

func TestFeatureCacheRoundTripsThroughFile(t *testing.T) {
	pc := syntheticPixelCache(2021, 3)
	fc, err := Prepare(pc, []string{"ndvi"})
	require.NoError(t, err)

	path := t.TempDir() + "/features.gob"
	require.NoError(t, fc.Save(path))

	got, err := LoadFeatureCache(path)
	require.NoError(t, err)
	require.Equal(t, fc.Rows, got.Rows)
}
