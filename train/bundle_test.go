package train

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/chocoforestwatch/forestwatch-core/train/boost"
)

func fitTinyModel(t *testing.T) *boost.Model {
	t.Helper()
	X := mat.NewDense(6, 1, []float64{-3, -2, -1, 1, 2, 3})
	y := []int{0, 0, 0, 1, 1, 1}
	p := boost.DefaultParams(2)
	p.Estimators = 5
	p.MaxDepth = 2
	m, err := boost.Fit(X, y, nil, nil, p)
	require.NoError(t, err)
	return m
}

func TestBundleRoundTripsThroughFile(t *testing.T) {
	m := fitTinyModel(t)
	b := &Bundle{
		SchemaVersion:     BundleSchemaVersion,
		Model:             m,
		FeatureExtractors: []string{"ndvi", "evi"},
		ClassNames:        []string{"Forest", "NonForest"},
		Hyperparams:       m.Params,
	}
	path := filepath.Join(t.TempDir(), "model.bundle")
	require.NoError(t, b.Save(path))

	got, err := LoadBundle(path)
	require.NoError(t, err)
	require.Equal(t, b.FeatureExtractors, got.FeatureExtractors)
	require.Equal(t, b.ClassNames, got.ClassNames)
	if diff := cmp.Diff(b.Hyperparams, got.Hyperparams); diff != "" {
		t.Errorf("hyperparams changed across the round trip (-want +got):\n%s", diff)
	}

	X := mat.NewDense(2, 1, []float64{-5, 5})
	require.Equal(t, m.Predict(X), got.Model.Predict(X), "round-tripped model predicts identically to the original")
}

func TestBundleRoundTripsThroughBytes(t *testing.T) {
	m := fitTinyModel(t)
	b := &Bundle{SchemaVersion: BundleSchemaVersion, Model: m, FeatureExtractors: []string{"ndvi"}, ClassNames: []string{"Forest", "NonForest"}}
	data, err := b.Bytes()
	require.NoError(t, err)

	got, err := BundleFromBytes(data)
	require.NoError(t, err)
	require.Equal(t, b.FeatureExtractors, got.FeatureExtractors)
}

func TestCheckExtractorsRejectsMismatch(t *testing.T) {
	b := &Bundle{FeatureExtractors: []string{"ndvi", "evi"}}
	require.NoError(t, b.CheckExtractors([]string{"ndvi", "evi"}))
	require.Error(t, b.CheckExtractors([]string{"ndvi"}))
	require.Error(t, b.CheckExtractors([]string{"evi", "ndvi"}))
}

func TestLoadBundleRejectsWrongSchemaVersion(t *testing.T) {
	b := &Bundle{SchemaVersion: 999, Model: fitTinyModel(t)}
	path := filepath.Join(t.TempDir(), "model.bundle")
	require.NoError(t, b.Save(path))
	_, err := LoadBundle(path)
	require.Error(t, err)
}
