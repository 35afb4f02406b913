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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFeatureFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "features.geojson")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const polygonFeatureCollection = `{
	"type": "FeatureCollection",
	"features": [
		{
			"type": "Feature",
			"id": "f1",
			"properties": {"class": "Forest", "year": 2021, "month": 3},
			"geometry": {
				"type": "Polygon",
				"coordinates": [[[0,0],[0,1],[1,1],[1,0],[0,0]]]
			}
		}
	]
}`

func TestLoadTrainingFeaturesDecodesPolygon(t *testing.T) {
	path := writeFeatureFile(t, polygonFeatureCollection)
	got, err := LoadTrainingFeatures(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "f1", got[0].ID)
	require.Equal(t, "Forest", got[0].Class)
	require.Equal(t, 2021, got[0].Year)
	require.Equal(t, 3, got[0].Month)
	require.Len(t, got[0].Polygon, 1)
}

const multiPolygonFeatureCollection = `{
	"type": "FeatureCollection",
	"features": [
		{
			"type": "Feature",
			"id": "f2",
			"properties": {"class": "NonForest", "year": 2020, "month": 7},
			"geometry": {
				"type": "MultiPolygon",
				"coordinates": [
					[[[0,0],[0,1],[1,1],[1,0],[0,0]]],
					[[[5,5],[5,6],[6,6],[6,5],[5,5]]]
				]
			}
		}
	]
}`

func TestLoadTrainingFeaturesSplitsMultiPolygon(t *testing.T) {
	path := writeFeatureFile(t, multiPolygonFeatureCollection)
	got, err := LoadTrainingFeatures(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "f2_0", got[0].ID)
	require.Equal(t, "f2_1", got[1].ID)
	for _, f := range got {
		require.Equal(t, "NonForest", f.Class)
		require.Equal(t, 2020, f.Year)
		require.Equal(t, 7, f.Month)
	}
}

const pointFeatureCollection = `{
	"type": "FeatureCollection",
	"features": [
		{
			"type": "Feature",
			"id": "f3",
			"properties": {"class": "Forest", "year": 2021, "month": 1},
			"geometry": {"type": "Point", "coordinates": [0, 0]}
		}
	]
}`

func TestLoadTrainingFeaturesRejectsUnsupportedGeometry(t *testing.T) {
	path := writeFeatureFile(t, pointFeatureCollection)
	_, err := LoadTrainingFeatures(path)
	require.Error(t, err)
}

func TestLoadTrainingFeaturesRejectsMalformedFile(t *testing.T) {
	path := writeFeatureFile(t, "not json")
	_, err := LoadTrainingFeatures(path)
	require.Error(t, err)
}

func TestLoadTrainingFeaturesRejectsMissingFile(t *testing.T) {
	_, err := LoadTrainingFeatures(filepath.Join(t.TempDir(), "absent.geojson"))
	require.Error(t, err)
}
