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
	"os"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"

	"github.com/chocoforestwatch/forestwatch-core/ferrors"
)

type boundaryDoc struct {
	Type     string           `json:"type"`
	Geometry geojson.Geometry `json:"geometry"`
	Features []struct {
		Geometry geojson.Geometry `json:"geometry"`
	} `json:"features"`
}

// LoadBoundary reads the --boundary-geojson clip geometry, accepting a
// bare Geometry, a single Feature, or a FeatureCollection (its first
// feature is used). Its geometry must decode to a Polygon; a MultiPolygon
// or other shape is rejected, matching the single-clip-region contract
// used by cfw-processing.
func LoadBoundary(path string) (*geom.Polygon, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.New(ferrors.ConfigError, "", fmt.Errorf("predict: reading boundary geojson %s: %w", path, err))
	}

	var doc boundaryDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, ferrors.New(ferrors.ConfigError, "", fmt.Errorf("predict: parsing boundary geojson %s: %w", path, err))
	}

	var g geojson.Geometry
	switch doc.Type {
	case "FeatureCollection":
		if len(doc.Features) == 0 {
			return nil, ferrors.New(ferrors.ConfigError, "", fmt.Errorf("predict: boundary geojson %s has no features", path))
		}
		g = doc.Features[0].Geometry
	case "Feature":
		g = doc.Geometry
	default:
		if err := json.Unmarshal(b, &g); err != nil {
			return nil, ferrors.New(ferrors.ConfigError, "", fmt.Errorf("predict: parsing boundary geometry %s: %w", path, err))
		}
	}

	decoded, err := geojson.FromGeoJSON(&g)
	if err != nil {
		return nil, ferrors.New(ferrors.ConfigError, "", fmt.Errorf("predict: decoding boundary geometry %s: %w", path, err))
	}
	poly, ok := decoded.(geom.Polygon)
	if !ok {
		return nil, ferrors.New(ferrors.ConfigError, "", fmt.Errorf("predict: boundary geojson %s must be a Polygon, got %T", path, decoded))
	}
	return &poly, nil
}
