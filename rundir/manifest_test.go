package rundir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManifestRoundTrip(t *testing.T) {
	r, err := New(t.TempDir(), "run-005")
	require.NoError(t, err)

	m := &Manifest{
		Stage: "training",
		RunID: r.ID,
		Units: []UnitResult{
			{Unit: "2021-01", Status: "succeeded"},
			{Unit: "2021-02", Status: "failed", Message: "zero rows", Retry: "forestwatch training --run-id run-005 --start-month 2 --end-month 2"},
		},
		Artifacts: []Artifact{
			{Stage: "training", Unit: "2021-01", Path: "runs/run-005/2021_01/saved_models/model.bin", Checksum: "abc123", Bytes: 42},
		},
	}
	require.NoError(t, r.WriteManifest(m))

	got, err := r.ReadManifest("training")
	require.NoError(t, err)
	require.Equal(t, m, got)
	require.Equal(t, 1, got.Succeeded())
	require.Equal(t, 1, got.Failed())
	require.Equal(t, 0, got.Skipped())
}

func TestManifestDiff(t *testing.T) {
	a := &Manifest{Artifacts: []Artifact{
		{Path: "a", Checksum: "1"},
		{Path: "b", Checksum: "2"},
	}}
	b := &Manifest{Artifacts: []Artifact{
		{Path: "a", Checksum: "1"},
		{Path: "b", Checksum: "3"},
		{Path: "c", Checksum: "4"},
	}}

	d := Diff(a, b)
	require.Equal(t, []string{"c"}, d.Added)
	require.Empty(t, d.Removed)
	require.Equal(t, []string{"b"}, d.Changed)
	require.False(t, d.Empty())

	same := Diff(a, a)
	require.True(t, same.Empty())
}
