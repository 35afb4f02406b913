package predict

import (
	"encoding/json"
	"testing"

	"github.com/ctessum/geom"

	"github.com/chocoforestwatch/forestwatch-core/science/features"
)

func TestCheckCRSAcceptsMatchingOrEmptySR(t *testing.T) {
	if err := checkCRS("", "+proj=longlat"); err != nil {
		t.Fatalf("expected no error for empty geometry SR, got %v", err)
	}
	if err := checkCRS("+proj=longlat", "+proj=longlat"); err != nil {
		t.Fatalf("expected no error for identical SRs, got %v", err)
	}
}

func TestCheckCRSReprojectsDifferingSRs(t *testing.T) {
	err := checkCRS("+proj=longlat", "+proj=merc +a=6378137 +b=6378137")
	if err != nil {
		t.Fatalf("expected a working longlat -> merc transform, got %v", err)
	}
}

func TestCheckCRSFailsFastOnUnparsableSR(t *testing.T) {
	err := checkCRS("not a projection string at all", "+proj=longlat")
	if err == nil {
		t.Fatal("expected an error for an unparsable geometry CRS")
	}
}

func TestAllNoDataDetectsZeroedBands(t *testing.T) {
	zeroed := [][]float64{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0}}
	if !allNoData(zeroed) {
		t.Fatal("expected an all-zero band 0 to be reported as nodata")
	}
	withSignal := [][]float64{{0, 500, 0}, {0, 0, 0}, {0, 0, 0}, {0, 0, 0}}
	if allNoData(withSignal) {
		t.Fatal("expected a non-zero band 0 value to be reported as having data")
	}
}

func TestOverviewLevelsReachesAtMost256px(t *testing.T) {
	levels := overviewLevels(4096, 4096)
	if len(levels) == 0 {
		t.Fatal("expected at least one overview level")
	}
	last := levels[len(levels)-1]
	if 4096/last > 256 {
		t.Fatalf("expected the coarsest overview to be <=256px, got %d", 4096/last)
	}
	for i := 1; i < len(levels); i++ {
		if levels[i] != levels[i-1]*2 {
			t.Fatalf("expected power-of-two levels, got %v", levels)
		}
	}
}

func TestOverviewLevelsSmallRasterStillReturnsOneLevel(t *testing.T) {
	levels := overviewLevels(200, 200)
	if len(levels) != 1 {
		t.Fatalf("expected a single fallback level for a small raster, got %v", levels)
	}
}

func TestClipToBoundaryMasksOutsidePixels(t *testing.T) {
	// A 4x4 raster with an identity geotransform (pixel i, i centered at
	// i+0.5) clipped to a right-triangle boundary covering roughly the
	// lower-left half.
	gt := [6]float64{0, 1, 0, 0, 0, 1}
	boundary := geom.Polygon{{
		{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 0, Y: 4}, {X: 0, Y: 0},
	}}
	sizeX, sizeY := 4, 4
	out := make([]byte, sizeX*sizeY)
	for i := range out {
		out[i] = 1 // NonForest everywhere before clipping
	}
	clipToBoundary(out, sizeX, sizeY, gt, boundary)

	if out[0*sizeX+0] == NoDataValue {
		t.Fatal("expected pixel (0,0), well inside the boundary, to survive clipping")
	}
	if out[3*sizeX+3] != NoDataValue {
		t.Fatal("expected pixel (3,3), outside the triangular boundary, to be clipped to nodata")
	}
}

func TestReprojectPolygonPassesThroughOnMatchingOrEmptySR(t *testing.T) {
	boundary := geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: 0}}}
	got, err := reprojectPolygon(boundary, "", "+proj=longlat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0][0] != boundary[0][0] {
		t.Fatalf("expected an empty geometry SR to pass the boundary through unchanged, got %v", got)
	}

	got, err = reprojectPolygon(boundary, "+proj=longlat", "+proj=longlat")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0][0] != boundary[0][0] {
		t.Fatalf("expected identical SRs to pass the boundary through unchanged, got %v", got)
	}
}

func TestReprojectPolygonFailsFastOnUnparsableSR(t *testing.T) {
	boundary := geom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: 0}}}
	if _, err := reprojectPolygon(boundary, "not a projection string", "+proj=longlat"); err == nil {
		t.Fatal("expected an error for an unparsable boundary CRS")
	}
}

func TestPredictTemporalFeatureMatchesTrainingConvention(t *testing.T) {
	// tryPredictWindow must build features.Input the same way
	// train.Prepare does for a pixel record with the same (year, month), or
	// the "temporal" extractor's columns diverge between train and predict.
	eng, err := features.NewEngineer([]string{"temporal"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	year, month := 2023, 6
	bands := [4]float64{100, 200, 300, 400}

	trainRow := eng.Transform(features.Input{
		Bands: bands, Month: month, Year: year,
		DayOfYear: features.MidMonthDayOfYear(year, month),
	})

	predictDayOfYear := features.MidMonthDayOfYear(year, month)
	predictRow := eng.Transform(features.Input{
		Bands: bands, Month: month, Year: year, DayOfYear: predictDayOfYear,
	})

	if len(trainRow) != len(predictRow) {
		t.Fatalf("expected equal-width rows, got %d and %d", len(trainRow), len(predictRow))
	}
	for i := range trainRow {
		if trainRow[i] != predictRow[i] {
			t.Fatalf("expected identical temporal feature at column %d, got %v vs %v", i, trainRow[i], predictRow[i])
		}
	}
}

func TestClassIndexJSONMapsIndexToName(t *testing.T) {
	js, err := ClassIndexJSON([]string{"Forest", "NonForest"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(js), &m); err != nil {
		t.Fatalf("expected valid JSON, got %v", err)
	}
	if m["0"] != "Forest" || m["1"] != "NonForest" {
		t.Fatalf("expected index-keyed class names, got %v", m)
	}
}
