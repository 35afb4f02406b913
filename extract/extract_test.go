package extract

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClassSetRejectsFewerThanTwoClasses(t *testing.T) {
	_, err := NewClassSet([]string{"Forest"})
	require.Error(t, err)
}

func TestClassSetIndexUnknownIsFatal(t *testing.T) {
	cs, err := NewClassSet([]string{"Forest", "NonForest"})
	require.NoError(t, err)
	_, err = cs.Index("Cloud")
	require.Error(t, err)
}

func TestClassSetIndexKnown(t *testing.T) {
	cs, err := NewClassSet([]string{"Forest", "NonForest", "Cloud"})
	require.NoError(t, err)
	idx, err := cs.Index("Cloud")
	require.NoError(t, err)
	require.Equal(t, 2, idx)
}

func TestPixelCacheValidateCatchesMultiClassGroup(t *testing.T) {
	pc := &PixelCache{
		Year: 2021, Month: 3,
		Rows: []PixelRecord{
			{FeatureID: "f1", ClassIdx: 0, Month: 3},
			{FeatureID: "f1", ClassIdx: 1, Month: 3},
		},
	}
	require.Error(t, pc.Validate())
}

func TestPixelCacheValidateCatchesWrongMonth(t *testing.T) {
	pc := &PixelCache{
		Year: 2021, Month: 3,
		Rows: []PixelRecord{{FeatureID: "f1", ClassIdx: 0, Month: 4}},
	}
	require.Error(t, pc.Validate())
}

func TestPixelCacheValidateAcceptsConsistentCache(t *testing.T) {
	pc := &PixelCache{
		Year: 2021, Month: 3,
		Rows: []PixelRecord{
			{FeatureID: "f1", ClassIdx: 0, Month: 3},
			{FeatureID: "f1", ClassIdx: 0, Month: 3},
			{FeatureID: "f2", ClassIdx: 1, Month: 3},
		},
	}
	require.NoError(t, pc.Validate())
}

func TestPixelCacheRoundTripsThroughFile(t *testing.T) {
	pc := &PixelCache{
		RunID: "run-1", Year: 2021, Month: 3, FeatureSetHash: "abc123",
		Rows: []PixelRecord{{X: 1, Y: 2, Month: 3, ClassIdx: 0, Bands: [4]float64{1, 2, 3, 4}, FeatureID: "f1"}},
	}
	path := filepath.Join(t.TempDir(), "cache.gob")
	require.NoError(t, pc.WriteFile(path))

	got, err := ReadCacheFile(path)
	require.NoError(t, err)
	require.Equal(t, pc.RunID, got.RunID)
	require.Equal(t, pc.Rows, got.Rows)
}

func TestCacheFilePathIsDeterministic(t *testing.T) {
	a := CacheFilePath("/tmp/x", "run-1", 2021, 3, "hash1")
	b := CacheFilePath("/tmp/x", "run-1", 2021, 3, "hash1")
	require.Equal(t, a, b)
}
