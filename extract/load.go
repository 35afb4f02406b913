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

package extract

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"

	"github.com/chocoforestwatch/forestwatch-core/ferrors"
)

type featureCollection struct {
	Features []struct {
		ID         string          `json:"id"`
		Properties struct {
			Class string `json:"class"`
			Year  int    `json:"year"`
			Month int    `json:"month"`
		} `json:"properties"`
		Geometry geojson.Geometry `json:"geometry"`
	} `json:"features"`
}

// LoadTrainingFeatures reads a GeoJSON FeatureCollection of labeled
// training polygons from path. Each feature's geometry must decode to a
// Polygon or MultiPolygon; MultiPolygons are split into one TrainingFeature
// per ring set, sharing the feature's declared id, class, year and month.
func LoadTrainingFeatures(path string) ([]TrainingFeature, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.New(ferrors.ConfigError, "", fmt.Errorf("extract: reading training features %s: %w", path, err))
	}
	var fc featureCollection
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, ferrors.New(ferrors.ConfigError, "", fmt.Errorf("extract: parsing training features %s: %w", path, err))
	}

	var out []TrainingFeature
	for _, f := range fc.Features {
		g, err := geojson.FromGeoJSON(&f.Geometry)
		if err != nil {
			return nil, ferrors.New(ferrors.ConfigError, f.ID, fmt.Errorf("extract: decoding geometry for feature %s: %w", f.ID, err))
		}
		switch geo := g.(type) {
		case geom.Polygon:
			out = append(out, TrainingFeature{
				ID: f.ID, Class: f.Properties.Class,
				Year: f.Properties.Year, Month: f.Properties.Month,
				Polygon: geo,
			})
		case geom.MultiPolygon:
			for i, p := range geo {
				out = append(out, TrainingFeature{
					ID: fmt.Sprintf("%s_%d", f.ID, i), Class: f.Properties.Class,
					Year: f.Properties.Year, Month: f.Properties.Month,
					Polygon: p,
				})
			}
		default:
			return nil, ferrors.New(ferrors.ConfigError, f.ID, fmt.Errorf("extract: feature %s has unsupported geometry type %T", f.ID, g))
		}
	}
	return out, nil
}
