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

package predict

import (
	"encoding/json"
	"fmt"

	"github.com/airbusgeo/godal"

	"github.com/chocoforestwatch/forestwatch-core/ferrors"
)

// overviewLevels returns the power-of-two decimation factors down to a
// level whose longest side is at most 256 pixels.
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

// writeCOG writes data (row-major, sizeX by sizeY, one byte per pixel) as
// a tiled, overviewed, LZW-compressed, single-band Cloud-Optimized GeoTIFF
// with nodata=255 and the raster format's embedded tags.
func writeCOG(path string, data []byte, sizeX, sizeY int, gt [6]float64, srWKT string, tags Tags) error {
	creationOpts := []string{
		"TILED=YES",
		fmt.Sprintf("BLOCKXSIZE=%d", DefaultWindowSize),
		fmt.Sprintf("BLOCKYSIZE=%d", DefaultWindowSize),
		"COMPRESS=LZW",
	}
	opts := make([]godal.DatasetCreateOption, 0, len(creationOpts))
	for _, c := range creationOpts {
		opts = append(opts, godal.CreationOption(c))
	}
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Byte, sizeX, sizeY, opts...)
	if err != nil {
		return ferrors.New(ferrors.TransportError, path, fmt.Errorf("predict: creating COG %s: %w", path, err))
	}
	defer ds.Close()

	if err := ds.SetGeoTransform(gt); err != nil {
		return ferrors.New(ferrors.IntegrityError, path, fmt.Errorf("predict: setting geotransform: %w", err))
	}
	if srWKT != "" {
		if err := ds.SetProjection(srWKT); err != nil {
			return ferrors.New(ferrors.IntegrityError, path, fmt.Errorf("predict: setting projection: %w", err))
		}
	}

	bands := ds.Bands()
	if len(bands) != 1 {
		return ferrors.New(ferrors.IntegrityError, path, fmt.Errorf("predict: expected 1 output band, got %d", len(bands)))
	}
	if err := bands[0].SetNoData(float64(NoDataValue)); err != nil {
		return ferrors.New(ferrors.IntegrityError, path, fmt.Errorf("predict: setting nodata: %w", err))
	}
	if err := bands[0].Write(0, 0, data, sizeX, sizeY); err != nil {
		return ferrors.New(ferrors.TransportError, path, fmt.Errorf("predict: writing raster data: %w", err))
	}

	classIdxJSON := tags.ClassIndexJSON
	if classIdxJSON == "" {
		classIdxJSON = "{}"
	}
	for key, val := range map[string]string{
		"FORESTWATCH_SOFTWARE_VERSION": tags.SoftwareVersion,
		"FORESTWATCH_RUN_ID":           tags.RunID,
		"FORESTWATCH_MODEL_ID":         tags.ModelID,
		"FORESTWATCH_FEATURE_SET_HASH": tags.FeatureSetHash,
		"FORESTWATCH_SOURCE_MOSAIC_ID": tags.SourceMosaicID,
		"FORESTWATCH_CLASS_INDEX":      classIdxJSON,
	} {
		if err := ds.SetMetadataItem(key, val, ""); err != nil {
			return ferrors.New(ferrors.IntegrityError, path, fmt.Errorf("predict: setting tag %s: %w", key, err))
		}
	}

	if err := ds.BuildOverviews(godal.Levels(overviewLevels(sizeX, sizeY)...)); err != nil {
		return ferrors.New(ferrors.IntegrityError, path, fmt.Errorf("predict: building overviews: %w", err))
	}
	return nil
}

// ClassIndexJSON marshals a class-name list into the JSON object a
// Prediction Raster's FORESTWATCH_CLASS_INDEX tag carries, mapping each
// class index (as a string key) to its name.
func ClassIndexJSON(classNames []string) (string, error) {
	m := make(map[string]string, len(classNames))
	for i, name := range classNames {
		m[fmt.Sprintf("%d", i)] = name
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
