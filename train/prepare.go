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

package train

import (
	"encoding/gob"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/chocoforestwatch/forestwatch-core/extract"
	"github.com/chocoforestwatch/forestwatch-core/ferrors"
	"github.com/chocoforestwatch/forestwatch-core/science/features"
)

// FeatureCache is the Prepare phase's output: engineered feature rows for
// one month, ready for Fit to split, cross-validate and train on.
type FeatureCache struct {
	Year, Month int
	ColumnNames []string
	Extractors  []string
	Rows        [][]float64
	ClassIdx    []int
	GroupID     []string
}

// Prepare loads a month's Pixel Cache, applies the Feature Engineer, and
// returns the resulting FeatureCache. It fails with ModelError if fewer
// than 2 distinct classes are present, surfaced here since Prepare is
// where the row set is first fully known.
func Prepare(pc *extract.PixelCache, extractorNames []string) (*FeatureCache, error) {
	if len(pc.Rows) == 0 {
		return nil, ferrors.New(ferrors.InputDataError, fmt.Sprintf("%04d-%02d", pc.Year, pc.Month),
			fmt.Errorf("train: month %04d-%02d has zero training features, producing no cache", pc.Year, pc.Month))
	}
	eng, err := features.NewEngineer(extractorNames)
	if err != nil {
		return nil, ferrors.New(ferrors.ConfigError, "", err)
	}

	fc := &FeatureCache{
		Year: pc.Year, Month: pc.Month,
		ColumnNames: eng.ColumnNames(),
		Extractors:  extractorNames,
	}
	classesSeen := make(map[int]bool)
	for _, row := range pc.Rows {
		in := features.Input{
			Bands: row.Bands, Month: row.Month, Year: pc.Year,
			DayOfYear: features.MidMonthDayOfYear(pc.Year, row.Month),
		}
		fc.Rows = append(fc.Rows, eng.Transform(in))
		fc.ClassIdx = append(fc.ClassIdx, row.ClassIdx)
		fc.GroupID = append(fc.GroupID, row.FeatureID)
		classesSeen[row.ClassIdx] = true
	}
	if len(classesSeen) < 2 {
		return nil, ferrors.New(ferrors.ModelError, fmt.Sprintf("%04d-%02d", pc.Year, pc.Month),
			fmt.Errorf("train: month %04d-%02d has rows from only %d class(es)", pc.Year, pc.Month, len(classesSeen)))
	}
	return fc, nil
}

// Save gob-encodes the cache to path.
func (fc *FeatureCache) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return ferrors.New(ferrors.TransportError, "", fmt.Errorf("train: creating feature cache %s: %w", path, err))
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(fc)
}

// LoadFeatureCache gob-decodes a FeatureCache previously written by Save.
func LoadFeatureCache(path string) (*FeatureCache, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ferrors.New(ferrors.StageDependencyError, "", fmt.Errorf("train: opening feature cache %s: %w", path, err))
	}
	defer f.Close()
	var fc FeatureCache
	if err := gob.NewDecoder(f).Decode(&fc); err != nil {
		return nil, ferrors.New(ferrors.IntegrityError, "", fmt.Errorf("train: decoding feature cache %s: %w", path, err))
	}
	return &fc, nil
}

// rows returns fc as a Row slice for splitting.
func (fc *FeatureCache) rows() []Row {
	out := make([]Row, len(fc.ClassIdx))
	for i := range out {
		out[i] = Row{ClassIdx: fc.ClassIdx[i], GroupID: fc.GroupID[i]}
	}
	return out
}

// matrix converts fc's feature rows into a gonum Dense matrix.
func (fc *FeatureCache) matrix() (*mat.Dense, error) {
	if len(fc.Rows) == 0 {
		return nil, fmt.Errorf("train: feature cache has no rows")
	}
	width := len(fc.Rows[0])
	data := make([]float64, 0, len(fc.Rows)*width)
	for _, row := range fc.Rows {
		data = append(data, row...)
	}
	return mat.NewDense(len(fc.Rows), width, data), nil
}
