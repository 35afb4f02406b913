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
	"encoding/gob"
	"fmt"
	"os"

	"github.com/chocoforestwatch/forestwatch-core/ferrors"
)

// PixelCache is the Pixel Cache file produced by an Extractor for one
// (run_id, month, feature-set hash) key. Rows for a single feature id
// never span multiple months: a cache file is always scoped to one month.
type PixelCache struct {
	RunID          string
	Year, Month    int
	FeatureSetHash string
	Rows           []PixelRecord
	Checksum       string
}

// GroupClasses returns the set of distinct class indices observed under
// each feature (group) id, for checking that a group id maps to exactly
// one class index across the whole cache.
func (pc *PixelCache) GroupClasses() map[string]map[int]bool {
	out := make(map[string]map[int]bool)
	for _, r := range pc.Rows {
		classes, ok := out[r.FeatureID]
		if !ok {
			classes = make(map[int]bool)
			out[r.FeatureID] = classes
		}
		classes[r.ClassIdx] = true
	}
	return out
}

// Validate checks structural invariants local to the cache: every row
// belongs to the declared month, and no feature id maps to more than one
// class index.
func (pc *PixelCache) Validate() error {
	for group, classes := range pc.GroupClasses() {
		if len(classes) > 1 {
			return ferrors.New(ferrors.IntegrityError, group,
				fmt.Errorf("extract: feature %s has rows with %d distinct class indices", group, len(classes)))
		}
	}
	for _, r := range pc.Rows {
		if r.Month != pc.Month {
			return ferrors.New(ferrors.IntegrityError, pc.RunID,
				fmt.Errorf("extract: pixel row for feature %s has month %d, cache is scoped to month %d", r.FeatureID, r.Month, pc.Month))
		}
	}
	return nil
}

// WriteFile gob-encodes pc to path.
func (pc *PixelCache) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return ferrors.New(ferrors.TransportError, pc.RunID, fmt.Errorf("extract: creating cache file %s: %w", path, err))
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(pc); err != nil {
		return ferrors.New(ferrors.IntegrityError, pc.RunID, fmt.Errorf("extract: encoding cache file %s: %w", path, err))
	}
	return nil
}

// ReadCacheFile gob-decodes a PixelCache previously written by WriteFile.
func ReadCacheFile(path string) (*PixelCache, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ferrors.New(ferrors.StageDependencyError, "", fmt.Errorf("extract: opening cache file %s: %w", path, err))
	}
	defer f.Close()
	var pc PixelCache
	if err := gob.NewDecoder(f).Decode(&pc); err != nil {
		return nil, ferrors.New(ferrors.IntegrityError, "", fmt.Errorf("extract: decoding cache file %s: %w", path, err))
	}
	return &pc, nil
}
