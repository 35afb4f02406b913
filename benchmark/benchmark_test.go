package benchmark

import (
	"math"
	"testing"

	"github.com/ctessum/geom"
)

func squareRaster(sizeX, sizeY int, pixelSize float64, fill func(col, row int) byte) *Raster {
	data := make([]byte, sizeX*sizeY)
	for row := 0; row < sizeY; row++ {
		for col := 0; col < sizeX; col++ {
			data[row*sizeX+col] = fill(col, row)
		}
	}
	return &Raster{
		Data: data, SizeX: sizeX, SizeY: sizeY,
		GeoTransform: [6]float64{0, pixelSize, 0, float64(sizeY) * pixelSize, 0, -pixelSize},
	}
}

func TestCompareSameResolutionPerfectMatch(t *testing.T) {
	pred := squareRaster(4, 4, 10, func(col, row int) byte { return Forest })
	ref := squareRaster(4, 4, 10, func(col, row int) byte { return Forest })

	result, err := Compare(pred, ref, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Accuracy != 1.0 {
		t.Fatalf("expected perfect accuracy, got %f", result.Accuracy)
	}
	if result.Matrix[0][0] != 16 {
		t.Fatalf("expected 16 true-positive forest cells, got %+v", result.Matrix)
	}
}

func TestCompareCountsConfusion(t *testing.T) {
	pred := squareRaster(2, 2, 10, func(col, row int) byte {
		if col == 0 {
			return Forest
		}
		return NonForest
	})
	ref := squareRaster(2, 2, 10, func(col, row int) byte { return Forest })

	result, err := Compare(pred, ref, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Matrix[0][0] != 2 || result.Matrix[0][1] != 2 {
		t.Fatalf("expected 2 correct and 2 misclassified forest cells, got %+v", result.Matrix)
	}
	if result.Forest.Recall != 0.5 {
		t.Fatalf("expected forest recall 0.5, got %f", result.Forest.Recall)
	}
}

func TestCompareSkipsNoDataPixels(t *testing.T) {
	pred := squareRaster(2, 2, 10, func(col, row int) byte { return Forest })
	ref := squareRaster(2, 2, 10, func(col, row int) byte {
		if col == 0 && row == 0 {
			return NoDataValue
		}
		return Forest
	})
	result, err := Compare(pred, ref, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	total := result.Matrix[0][0] + result.Matrix[0][1] + result.Matrix[1][0] + result.Matrix[1][1]
	if total != 3 {
		t.Fatalf("expected 3 scored cells (one nodata excluded), got %d", total)
	}
}

func TestCompareRejectsEmptyRaster(t *testing.T) {
	pred := &Raster{}
	ref := squareRaster(2, 2, 10, func(col, row int) byte { return Forest })
	if _, err := Compare(pred, ref, nil); err == nil {
		t.Fatal("expected an error for an empty prediction raster")
	}
}

func TestCompareRestrictsToBoundaryPolygon(t *testing.T) {
	pred := squareRaster(4, 4, 10, func(col, row int) byte { return Forest })
	ref := squareRaster(4, 4, 10, func(col, row int) byte {
		if col < 2 {
			return Forest
		}
		return NonForest
	})
	boundary := geom.Polygon{{{X: 0, Y: 0}, {X: 20, Y: 0}, {X: 20, Y: 40}, {X: 0, Y: 40}, {X: 0, Y: 0}}}

	result, err := Compare(pred, ref, &boundary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	total := result.Matrix[0][0] + result.Matrix[0][1] + result.Matrix[1][0] + result.Matrix[1][1]
	if total != 8 {
		t.Fatalf("expected only the left half (8 cells) scored, got %d", total)
	}
}

func TestAlignUsesMajorityVoteWhenReferenceIsCoarser(t *testing.T) {
	pred := squareRaster(4, 4, 10, func(col, row int) byte {
		if col < 3 {
			return Forest
		}
		return NonForest
	})
	ref := squareRaster(1, 1, 40, func(col, row int) byte { return NoDataValue })

	aligned := Align(pred, ref)
	if len(aligned) != 1 {
		t.Fatalf("expected a single aligned cell, got %d", len(aligned))
	}
	if aligned[0] != Forest {
		t.Fatalf("expected majority-vote Forest (12 of 16 source cells), got %d", aligned[0])
	}
}

func TestAlignUsesNearestNeighborAtSameResolution(t *testing.T) {
	pred := squareRaster(4, 4, 10, func(col, row int) byte {
		if col < 2 {
			return Forest
		}
		return NonForest
	})
	ref := squareRaster(4, 4, 10, func(col, row int) byte { return NoDataValue })

	aligned := Align(pred, ref)
	if len(aligned) != 16 {
		t.Fatalf("expected 16 aligned cells, got %d", len(aligned))
	}
}

func TestAreaStatsConvertSquareMetersToHectares(t *testing.T) {
	pred := squareRaster(2, 2, 100, func(col, row int) byte { return Forest })
	ref := squareRaster(2, 2, 100, func(col, row int) byte { return Forest })

	result, err := Compare(pred, ref, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 4.0 // 4 cells * 100m * 100m = 40000 m^2 = 4 ha
	if math.Abs(result.Area.ForestHectares-want) > 1e-9 {
		t.Fatalf("expected %f ha of forest, got %f", want, result.Area.ForestHectares)
	}
}

func TestSummaryTableIsNonEmpty(t *testing.T) {
	result := &Result{Accuracy: 0.9}
	s := SummaryTable(result)
	if s == "" {
		t.Fatal("expected a non-empty summary table")
	}
}
