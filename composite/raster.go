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

package composite

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/chocoforestwatch/forestwatch-core/ferrors"
)

// MonthlyRaster is one input to the Composite Builder: a Prediction
// Raster's path paired with the calendar month it represents, so months
// can be sorted before their class vectors are built.
type MonthlyRaster struct {
	Month int
	Path  string
}

// Build reads up to twelve monthly Prediction Rasters (already aligned:
// same CRS, grid, and extent; misalignment is fatal), reduces each output
// pixel with the named algorithm after mapping ancillary classes to
// Missing, and writes the result to outputPath as a single-band COG with
// the same geotransform as the inputs.
func Build(months []MonthlyRaster, algorithm string, ancillary map[uint8]bool, outputPath string) error {
	if len(months) == 0 {
		return ferrors.New(ferrors.InputDataError, "", fmt.Errorf("composite: no monthly rasters supplied"))
	}
	if len(months) > 12 {
		return ferrors.New(ferrors.InputDataError, "", fmt.Errorf("composite: %d monthly rasters supplied, max is 12", len(months)))
	}
	if _, err := Lookup(algorithm); err != nil {
		return ferrors.New(ferrors.ConfigError, "", err)
	}

	sortByMonth(months)

	bands, sizeX, sizeY, gt, closers, err := openAligned(months)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	out := make([]uint8, sizeX*sizeY)
	nprocs := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			defer wg.Done()
			v := make([]uint8, len(months))
			for idx := pp; idx < sizeX*sizeY; idx += nprocs {
				for m := range bands {
					v[m] = bands[m][idx]
				}
				masked := ApplyAncillary(v, ancillary)
				label, _, err := Reduce(algorithm, masked)
				if err != nil {
					label = Missing
				}
				out[idx] = label
			}
		}(pp)
	}
	wg.Wait()

	return writeCompositeCOG(outputPath, out, sizeX, sizeY, gt)
}

// openAligned opens every monthly raster, verifies they share identical
// extent and geotransform, and returns each one's pixel band as a flat
// uint8 slice in raster order.
func openAligned(months []MonthlyRaster) ([][]uint8, int, int, [6]float64, []*godal.Dataset, error) {
	bands := make([][]uint8, len(months))
	var sizeX, sizeY int
	var gt [6]float64
	datasets := make([]*godal.Dataset, len(months))

	for i, m := range months {
		ds, err := godal.Open(m.Path)
		if err != nil {
			return nil, 0, 0, gt, datasets, ferrors.New(ferrors.TransportError, m.Path, fmt.Errorf("composite: opening %s: %w", m.Path, err))
		}
		datasets[i] = ds
		structure := ds.Structure()
		dsGT := ds.GeoTransform()
		if i == 0 {
			sizeX, sizeY, gt = structure.SizeX, structure.SizeY, dsGT
		} else if structure.SizeX != sizeX || structure.SizeY != sizeY || dsGT != gt {
			return nil, 0, 0, gt, datasets, ferrors.New(ferrors.IntegrityError, m.Path,
				fmt.Errorf("composite: %s is not aligned with the first input raster (grid/extent mismatch)", m.Path))
		}

		rasterBands := ds.Bands()
		if len(rasterBands) == 0 {
			return nil, 0, 0, gt, datasets, ferrors.New(ferrors.InputDataError, m.Path, fmt.Errorf("composite: %s has no bands", m.Path))
		}
		buf := make([]float64, sizeX*sizeY)
		if err := rasterBands[0].Read(0, 0, buf, sizeX, sizeY); err != nil {
			return nil, 0, 0, gt, datasets, ferrors.New(ferrors.TransportError, m.Path, fmt.Errorf("composite: reading %s: %w", m.Path, err))
		}
		flat := make([]uint8, len(buf))
		for j, v := range buf {
			flat[j] = uint8(v)
		}
		bands[i] = flat
	}
	return bands, sizeX, sizeY, gt, datasets, nil
}

func sortByMonth(months []MonthlyRaster) {
	for i := 1; i < len(months); i++ {
		for j := i; j > 0 && months[j].Month < months[j-1].Month; j-- {
			months[j], months[j-1] = months[j-1], months[j]
		}
	}
}

const compositeWindowSize = 512

// overviewLevels returns the power-of-two decimation factors down to a
// level whose longest side is at most 256 pixels, matching the Prediction
// Raster writer's convention (predict.writeCOG) so every COG this pipeline
// produces carries the same overview structure.
func overviewLevels(sizeX, sizeY int) []int {
	var levels []int
	longest := sizeX
	if sizeY > longest {
		longest = sizeY
	}
	for factor := 2; longest/(factor/2) > 256; factor *= 2 {
		levels = append(levels, factor)
	}
	if len(levels) == 0 {
		levels = []int{2}
	}
	return levels
}

func writeCompositeCOG(path string, data []uint8, sizeX, sizeY int, gt [6]float64) error {
	opts := []godal.DatasetCreateOption{
		godal.CreationOption("TILED=YES"),
		godal.CreationOption(fmt.Sprintf("BLOCKXSIZE=%d", compositeWindowSize)),
		godal.CreationOption(fmt.Sprintf("BLOCKYSIZE=%d", compositeWindowSize)),
		godal.CreationOption("COMPRESS=LZW"),
	}
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Byte, sizeX, sizeY, opts...)
	if err != nil {
		return ferrors.New(ferrors.TransportError, path, fmt.Errorf("composite: creating %s: %w", path, err))
	}
	defer ds.Close()

	if err := ds.SetGeoTransform(gt); err != nil {
		return ferrors.New(ferrors.IntegrityError, path, fmt.Errorf("composite: setting geotransform: %w", err))
	}
	bands := ds.Bands()
	if err := bands[0].SetNoData(float64(Missing)); err != nil {
		return ferrors.New(ferrors.IntegrityError, path, fmt.Errorf("composite: setting nodata: %w", err))
	}
	if err := bands[0].Write(0, 0, data, sizeX, sizeY); err != nil {
		return ferrors.New(ferrors.TransportError, path, fmt.Errorf("composite: writing raster data: %w", err))
	}
	if err := ds.BuildOverviews(godal.Levels(overviewLevels(sizeX, sizeY)...)); err != nil {
		return ferrors.New(ferrors.IntegrityError, path, fmt.Errorf("composite: building overviews: %w", err))
	}
	return nil
}
