package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testItem(id string) Item {
	return Item{
		ID:           id,
		CollectionID: "cfw-predictions",
		AssetURL:     "file:///runs/run-1/" + id + ".tif",
		Checksum:     "deadbeef",
		BBoxMinX:     -79.1, BBoxMinY: -1.2, BBoxMaxX: -78.9, BBoxMaxY: -1.0,
		Year:      2021,
		Month:     3,
		CreatedAt: time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSQLiteRegisterAndGet(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "stac.db"))
	require.NoError(t, err)
	defer db.Close()

	item := testItem(ItemID("run-1", 2021, 3))
	require.NoError(t, db.RegisterItem(ctx, item))

	got, err := db.Item(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, item.Checksum, got.Checksum)
	require.Equal(t, item.AssetURL, got.AssetURL)
}

func TestSQLiteRegisterIsIdempotentOnMatchingChecksum(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "stac.db"))
	require.NoError(t, err)
	defer db.Close()

	item := testItem(ItemID("run-1", 2021, 3))
	require.NoError(t, db.RegisterItem(ctx, item))
	require.NoError(t, db.RegisterItem(ctx, item)) // last write wins after checksum match
}

func TestSQLiteRegisterFailsOnChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "stac.db"))
	require.NoError(t, err)
	defer db.Close()

	item := testItem(ItemID("run-1", 2021, 3))
	require.NoError(t, db.RegisterItem(ctx, item))

	changed := item
	changed.Checksum = "different"
	err = db.RegisterItem(ctx, changed)
	require.Error(t, err)

	var mismatch *ErrChecksumMismatch
	require.ErrorAs(t, err, &mismatch)
}

func TestSQLiteItemsByCollectionOrdering(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "stac.db"))
	require.NoError(t, err)
	defer db.Close()

	for _, m := range []int{3, 1, 2} {
		it := testItem(ItemID("run-1", 2021, m))
		it.Month = m
		require.NoError(t, db.RegisterItem(ctx, it))
	}

	items, err := db.ItemsByCollection(ctx, "cfw-predictions")
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, []int{1, 2, 3}, []int{items[0].Month, items[1].Month, items[2].Month})
}

func TestItemIDFormat(t *testing.T) {
	require.Equal(t, "cfw-run-1-2021-03", ItemID("run-1", 2021, 3))
	require.Equal(t, "cfw-run-1-2021", ItemID("run-1", 2021, 0))
}
