package extract

import (
	"context"
	"fmt"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/require"

	"github.com/chocoforestwatch/forestwatch-core/catalog"
)

func square(x0, y0 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0}, {X: x0, Y: y0 + 1}, {X: x0 + 1, Y: y0 + 1}, {X: x0 + 1, Y: y0}, {X: x0, Y: y0},
	}}
}

type fakeSource struct {
	byFeature map[string][]catalog.PixelVals
}

func (f *fakeSource) Pixels(ctx context.Context, mosaicURL string, g geom.Polygon) ([]catalog.PixelVals, error) {
	return f.byFeature[mosaicURL+":"+boundsKey(g)], nil
}

// boundsKey gives the fake a stable lookup key per polygon without
// depending on any particular feature id threaded through geom.Polygon.
func boundsKey(g geom.Polygon) string {
	b := g.Bounds()
	return fmt.Sprintf("%v,%v-%v,%v", b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
}

func TestExtractorRunOrdersRowsAndAssignsGroupID(t *testing.T) {
	classes, err := NewClassSet([]string{"Forest", "NonForest"})
	require.NoError(t, err)

	polyA := square(0, 0)
	polyB := square(5, 5)
	src := &fakeSource{byFeature: map[string][]catalog.PixelVals{
		"mosaic:" + boundsKey(polyA): {{X: 0, Y: 0, Bands: [4]float64{100, 200, 300, 400}}},
		"mosaic:" + boundsKey(polyB): {{X: 5, Y: 5, Bands: [4]float64{10, 20, 30, 40}}},
	}}

	e := &Extractor{
		Classes: classes,
		Source:  src,
		Mosaics: func(year, m int) (string, error) { return "mosaic", nil },
		CacheDir: t.TempDir(),
		FeatureSetHash: "hash1",
	}

	features := []TrainingFeature{
		{ID: "f2", Class: "NonForest", Year: 2021, Month: 3, Polygon: polyB},
		{ID: "f1", Class: "Forest", Year: 2021, Month: 3, Polygon: polyA},
	}

	pc, err := e.Run(context.Background(), "run-1", 2021, 3, features)
	require.NoError(t, err)
	require.NoError(t, pc.Validate())
	require.Len(t, pc.Rows, 2)
	require.Equal(t, "f1", pc.Rows[0].FeatureID, "features are processed in ascending feature id order")
	require.Equal(t, 0, pc.Rows[0].ClassIdx)
	require.Equal(t, "f2", pc.Rows[1].FeatureID)
	require.Equal(t, 1, pc.Rows[1].ClassIdx)
	require.NotEmpty(t, pc.Checksum)
}

func TestExtractorRunSkipsPolygonOutsideMosaic(t *testing.T) {
	classes, err := NewClassSet([]string{"Forest", "NonForest"})
	require.NoError(t, err)
	src := &fakeSource{byFeature: map[string][]catalog.PixelVals{}} // no pixels for any polygon

	e := &Extractor{
		Classes: classes,
		Source:  src,
		Mosaics: func(year, m int) (string, error) { return "mosaic", nil },
		CacheDir: t.TempDir(),
		FeatureSetHash: "hash1",
	}

	features := []TrainingFeature{{ID: "f1", Class: "Forest", Year: 2021, Month: 3, Polygon: square(100, 100)}}
	pc, err := e.Run(context.Background(), "run-1", 2021, 3, features)
	require.NoError(t, err, "a polygon entirely outside the mosaic is skipped, not fatal")
	require.Empty(t, pc.Rows)
}

func TestExtractorRunDropsNoDataPixels(t *testing.T) {
	classes, err := NewClassSet([]string{"Forest", "NonForest"})
	require.NoError(t, err)
	poly := square(0, 0)
	src := &fakeSource{byFeature: map[string][]catalog.PixelVals{
		"mosaic:" + boundsKey(poly): {
			{X: 0, Y: 0, Bands: [4]float64{1, 2, 3, 4}},
			{X: 0, Y: 1, NoData: true},
		},
	}}

	e := &Extractor{
		Classes: classes,
		Source:  src,
		Mosaics: func(year, m int) (string, error) { return "mosaic", nil },
		CacheDir: t.TempDir(),
		FeatureSetHash: "hash1",
	}
	features := []TrainingFeature{{ID: "f1", Class: "Forest", Year: 2021, Month: 3, Polygon: poly}}
	pc, err := e.Run(context.Background(), "run-1", 2021, 3, features)
	require.NoError(t, err)
	require.Len(t, pc.Rows, 1)
}

func TestExtractorRunFailsFastOnUnknownClass(t *testing.T) {
	classes, err := NewClassSet([]string{"Forest", "NonForest"})
	require.NoError(t, err)
	poly := square(0, 0)
	src := &fakeSource{byFeature: map[string][]catalog.PixelVals{
		"mosaic:" + boundsKey(poly): {{X: 0, Y: 0, Bands: [4]float64{1, 2, 3, 4}}},
	}}
	e := &Extractor{
		Classes: classes,
		Source:  src,
		Mosaics: func(year, m int) (string, error) { return "mosaic", nil },
		CacheDir: t.TempDir(),
		FeatureSetHash: "hash1",
	}
	features := []TrainingFeature{{ID: "f1", Class: "Haze", Year: 2021, Month: 3, Polygon: poly}}
	_, err = e.Run(context.Background(), "run-1", 2021, 3, features)
	require.Error(t, err)
}

func TestValidateFlagsMonthWithTooFewClasses(t *testing.T) {
	features := []TrainingFeature{
		{ID: "f1", Class: "Forest", Year: 2021, Month: 1},
		{ID: "f2", Class: "Forest", Year: 2021, Month: 1},
	}
	report := Validate(features, 2)
	require.Len(t, report.Warnings, 1)
	require.Contains(t, report.Warnings[0], "2021-01")
}

func TestValidateAcceptsMonthWithEnoughClasses(t *testing.T) {
	features := []TrainingFeature{
		{ID: "f1", Class: "Forest", Year: 2021, Month: 1},
		{ID: "f2", Class: "NonForest", Year: 2021, Month: 1},
	}
	report := Validate(features, 2)
	require.Empty(t, report.Warnings)
	require.Contains(t, report.String(), "2021-01")
}
