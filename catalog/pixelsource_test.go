package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/require"
)

func samplePolygon() geom.Polygon {
	return geom.Polygon{{
		{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0},
	}}
}

func TestTileStatSourceSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"pixels": []map[string]interface{}{
				{"x": 0, "y": 0, "bands": []float64{100, 200, 300, 400}},
			},
		})
	}))
	defer srv.Close()

	src := NewTileStatSource(srv.URL, nil)
	pixels, err := src.Pixels(context.Background(), "https://example.com/mosaic.tif", samplePolygon())
	require.NoError(t, err)
	require.Len(t, pixels, 1)
	require.Equal(t, [4]float64{100, 200, 300, 400}, pixels[0].Bands)
}

func TestTileStatSourcePermanentOn4xx(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	src := NewTileStatSource(srv.URL, nil)
	_, err := src.Pixels(context.Background(), "https://example.com/mosaic.tif", samplePolygon())
	require.Error(t, err)
	require.Equal(t, 1, calls, "4xx must not be retried")
}

// trianglePolygon returns a non-rectangular polygon: a right triangle
// with legs along the axes, used to exercise polygon masking beyond a
// simple bounding-box rectangle.
func trianglePolygon() geom.Polygon {
	return geom.Polygon{{
		{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 0, Y: 4}, {X: 0, Y: 0},
	}}
}

// TestPixelSourceIdentityPropertyTriangularPolygon verifies the identity
// property required by spec §4.1: for a non-rectangular polygon, t1
// (TileStatSource, masked server-side) and t2 (RangeReadSource's
// maskToPolygon helper) yield the same pixel population.
func TestPixelSourceIdentityPropertyTriangularPolygon(t *testing.T) {
	tri := trianglePolygon()
	gt := [6]float64{0, 1, 0, 0, 0, 1} // identity transform, pixel centers at (col+0.5, row+0.5)

	// Independently compute the expected masked population using the
	// geometry library directly, without going through production code.
	type coord struct{ x, y int }
	var expected []coord
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			cx, cy := float64(col)+0.5, float64(row)+0.5
			if (geom.Point{X: cx, Y: cy}).Within(tri) != geom.Outside {
				expected = append(expected, coord{col, row})
			}
		}
	}
	require.NotEmpty(t, expected)
	require.Less(t, len(expected), 16, "triangle must exclude at least one bounding-box pixel")

	// t2: RangeReadSource's masking helper over a synthetic 4x4 band grid.
	planes := make([][]float64, 4)
	for i := range planes {
		planes[i] = make([]float64, 16)
		for j := range planes[i] {
			planes[i][j] = float64(i*100 + j)
		}
	}
	t2Pixels := maskToPolygon(gt, 0, 0, 4, 4, planes, tri)
	var t2Coords []coord
	for _, p := range t2Pixels {
		t2Coords = append(t2Coords, coord{p.X, p.Y})
	}
	require.ElementsMatch(t, expected, t2Coords, "t2 (range read) population must match the independently-computed mask")

	// t1: TileStatSource, mocked as a server that applies the same
	// server-side polygon mask and returns only the pixels within it.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		pixels := make([]map[string]interface{}, 0, len(expected))
		for _, c := range expected {
			pixels = append(pixels, map[string]interface{}{
				"x": c.x, "y": c.y,
				"bands": []float64{1, 2, 3, 4},
			})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"pixels": pixels})
	}))
	defer srv.Close()

	src := NewTileStatSource(srv.URL, nil)
	t1Pixels, err := src.Pixels(context.Background(), "https://example.com/mosaic.tif", tri)
	require.NoError(t, err)
	var t1Coords []coord
	for _, p := range t1Pixels {
		t1Coords = append(t1Coords, coord{p.X, p.Y})
	}
	require.ElementsMatch(t, expected, t1Coords, "t1 (tile/stat) population must match the independently-computed mask")

	require.ElementsMatch(t, t1Coords, t2Coords, "t1 and t2 must yield identical pixel populations for a non-rectangular polygon")
}

func TestTileStatSourceRetriesOn5xx(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"pixels": []map[string]interface{}{
				{"x": 1, "y": 1, "bands": []float64{1, 2, 3, 4}},
			},
		})
	}))
	defer srv.Close()

	src := NewTileStatSource(srv.URL, nil)
	pixels, err := src.Pixels(context.Background(), "https://example.com/mosaic.tif", samplePolygon())
	require.NoError(t, err)
	require.Len(t, pixels, 1)
	require.GreaterOrEqual(t, calls, 2)
}
