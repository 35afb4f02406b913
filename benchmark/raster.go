/*
Copyright © 2024 the ChocoForestWatch authors.
This file is part of forestwatch-core.

forestwatch-core is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

forestwatch-core is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with forestwatch-core.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package benchmark implements the Benchmarker (C7): aligning a prediction
// or composite raster against one or more reference rasters, building a
// confusion matrix over {Forest, NonForest}, and reporting per-class
// precision/recall/F1 and area statistics.
package benchmark

import (
	"fmt"

	"github.com/airbusgeo/godal"

	"github.com/chocoforestwatch/forestwatch-core/ferrors"
)

// NoDataValue is the shared nodata sentinel across prediction, composite
// and reference rasters.
const NoDataValue = 255

// Raster is a single-band byte grid read into memory, with enough
// georeferencing to resample and align it against another Raster.
type Raster struct {
	Data        []byte
	SizeX, SizeY int
	GeoTransform [6]float64
}

// PixelSize returns the raster's (x, y) ground-sample distance.
func (r Raster) PixelSize() (float64, float64) {
	return r.GeoTransform[1], -r.GeoTransform[5]
}

// At returns the class value at (col, row), or NoDataValue if out of
// bounds.
func (r Raster) At(col, row int) byte {
	if col < 0 || row < 0 || col >= r.SizeX || row >= r.SizeY {
		return NoDataValue
	}
	return r.Data[row*r.SizeX+col]
}

// ReadRaster opens path (a local file or a /vsicurl/ URL) and reads its
// first band fully into memory.
func ReadRaster(path string) (*Raster, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, ferrors.New(ferrors.TransportError, path, fmt.Errorf("benchmark: opening %s: %w", path, err))
	}
	defer ds.Close()

	structure := ds.Structure()
	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, ferrors.New(ferrors.InputDataError, path, fmt.Errorf("benchmark: %s has no bands", path))
	}
	buf := make([]float64, structure.SizeX*structure.SizeY)
	if err := bands[0].Read(0, 0, buf, structure.SizeX, structure.SizeY); err != nil {
		return nil, ferrors.New(ferrors.TransportError, path, fmt.Errorf("benchmark: reading %s: %w", path, err))
	}
	data := make([]byte, len(buf))
	for i, v := range buf {
		data[i] = byte(v)
	}
	return &Raster{Data: data, SizeX: structure.SizeX, SizeY: structure.SizeY, GeoTransform: ds.GeoTransform()}, nil
}

// Align resamples pred onto ref's grid, choosing the resampling rule by
// comparing pixel sizes: when ref is coarser than pred (its pixel is more
// than 1.5x pred's on either axis, a judgment-call threshold), every reference
// cell's value is the majority vote of the prediction cells it covers
// (never nearest-neighbor down-sampling of the reference itself, since the
// confusion matrix must be computed at the coarser, authoritative grid);
// when the two share resolution but differ in origin, nearest-neighbor
// alignment is used instead.
func Align(pred, ref *Raster) []byte {
	predPX, predPY := pred.PixelSize()
	refPX, refPY := ref.PixelSize()

	aligned := make([]byte, ref.SizeX*ref.SizeY)
	coarser := refPX > predPX*1.5 || refPY > predPY*1.5
	for row := 0; row < ref.SizeY; row++ {
		for col := 0; col < ref.SizeX; col++ {
			x := ref.GeoTransform[0] + (float64(col)+0.5)*ref.GeoTransform[1]
			y := ref.GeoTransform[3] + (float64(row)+0.5)*ref.GeoTransform[5]
			if coarser {
				aligned[row*ref.SizeX+col] = majorityWithinCell(pred, x, y, refPX, refPY)
			} else {
				aligned[row*ref.SizeX+col] = nearestNeighbor(pred, x, y)
			}
		}
	}
	return aligned
}

func nearestNeighbor(pred *Raster, x, y float64) byte {
	col := int((x - pred.GeoTransform[0]) / pred.GeoTransform[1])
	row := int((y - pred.GeoTransform[3]) / pred.GeoTransform[5])
	return pred.At(col, row)
}

func majorityWithinCell(pred *Raster, centerX, centerY, cellW, cellH float64) byte {
	minX, maxX := centerX-cellW/2, centerX+cellW/2
	minY, maxY := centerY-cellH/2, centerY+cellH/2
	minCol := int((minX - pred.GeoTransform[0]) / pred.GeoTransform[1])
	maxCol := int((maxX - pred.GeoTransform[0]) / pred.GeoTransform[1])
	minRow := int((maxY - pred.GeoTransform[3]) / pred.GeoTransform[5])
	maxRow := int((minY - pred.GeoTransform[3]) / pred.GeoTransform[5])

	counts := make(map[byte]int)
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			v := pred.At(col, row)
			if v == NoDataValue {
				continue
			}
			counts[v]++
		}
	}
	if len(counts) == 0 {
		return NoDataValue
	}
	var best byte = NoDataValue
	bestCount := -1
	for v, c := range counts {
		if c > bestCount || (c == bestCount && v < best) {
			best, bestCount = v, c
		}
	}
	return best
}
