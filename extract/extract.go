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

// Package extract reads labeled training polygons, fetches the pixels that
// intersect each one from a month's mosaic, and writes the result as a
// Pixel Cache file consumed by package train.
package extract

import (
	"context"
	"encoding/gob"
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/requestcache"

	"github.com/chocoforestwatch/forestwatch-core/catalog"
	"github.com/chocoforestwatch/forestwatch-core/ferrors"
	"github.com/chocoforestwatch/forestwatch-core/rundir/checksum"
)

func init() {
	gob.Register([]PixelRecord{})
}

// TrainingFeature is a labeled polygon with an associated month tag.
type TrainingFeature struct {
	ID      string // stable feature id, used as the grouping key
	Class   string
	Year    int
	Month   int
	Polygon geom.Polygon
}

// PixelRecord is one extracted pixel: (x, y, month, class_idx, band_values, feature_id).
type PixelRecord struct {
	X, Y      int
	Month     int
	ClassIdx  int
	Bands     [4]float64 // Blue, Green, Red, NIR
	FeatureID string
}

// ClassSet is the project-wide class order. Indices 0 and 1 are reserved
// for Forest/Non-Forest; any additional entries are ancillary classes
// (Cloud, Shadow, Water, Haze, Sensor Error).
type ClassSet struct {
	order []string
	index map[string]int
}

// NewClassSet builds a ClassSet from an ordered, non-empty name list with
// at least two entries (project class-set minimum cardinality).
func NewClassSet(names []string) (*ClassSet, error) {
	if len(names) < 2 {
		return nil, ferrors.New(ferrors.ConfigError, "", fmt.Errorf("extract: class set needs at least 2 classes, got %d", len(names)))
	}
	cs := &ClassSet{order: append([]string(nil), names...), index: make(map[string]int, len(names))}
	for i, n := range names {
		cs.index[n] = i
	}
	return cs, nil
}

// Index returns the class index for name, or an error if name is not a
// member of the project's class set. Unknown labels are fatal per the
// extractor's edge-case contract.
func (cs *ClassSet) Index(name string) (int, error) {
	idx, ok := cs.index[name]
	if !ok {
		return 0, ferrors.New(ferrors.InputDataError, "", fmt.Errorf("extract: class %q is not in the project's class set", name))
	}
	return idx, nil
}

// Names returns the class set in its declared order.
func (cs *ClassSet) Names() []string { return cs.order }

// MosaicResolver returns the COG URL of the mosaic covering (year, month).
type MosaicResolver func(year, month int) (string, error)

// Extractor reads TrainingFeatures for one month, fetches their pixels via
// a PixelSource, and assembles a PixelCache.
type Extractor struct {
	Classes   *ClassSet
	Source    catalog.PixelSource
	Mosaics   MosaicResolver
	CacheDir  string // data_cache directory for the target month
	FeatureSetHash string // hash of the feature-extractor list, part of the cache key
}

// Run extracts all pixels for features in month (year, m), in ascending
// feature id order, and returns the resulting cache tagged with run id,
// month and feature-set hash; it does not write that cache to disk. Each
// feature's pixels are cached under CacheDir keyed by run id, year, month
// and feature id.
func (e *Extractor) Run(ctx context.Context, runID string, year, m int, features []TrainingFeature) (*PixelCache, error) {
	sorted := make([]TrainingFeature, len(features))
	copy(sorted, features)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	mosaicURL, err := e.Mosaics(year, m)
	if err != nil {
		return nil, ferrors.New(ferrors.ConfigError, fmt.Sprintf("%04d-%02d", year, m), err)
	}

	processor := func(ctx context.Context, request interface{}) (interface{}, error) {
		tf := request.(TrainingFeature)
		return e.extractOne(ctx, mosaicURL, tf)
	}
	cache := requestcache.NewCache(processor, runtime.GOMAXPROCS(0),
		requestcache.Disk(e.CacheDir, requestcache.MarshalGob, requestcache.UnmarshalGob))

	var rows []PixelRecord
	for _, tf := range sorted {
		key := fmt.Sprintf("%s_%04d_%02d_%s", runID, year, m, tf.ID)
		req := cache.NewRequest(ctx, tf, key)
		result, err := req.Result()
		if err != nil {
			return nil, fmt.Errorf("extract: feature %s: %w", tf.ID, err)
		}
		if result == nil {
			continue // entirely outside the mosaic: logged and skipped by extractOne
		}
		rows = append(rows, result.([]PixelRecord)...)
	}

	pc := &PixelCache{
		RunID:          runID,
		Year:           year,
		Month:          m,
		FeatureSetHash: e.FeatureSetHash,
		Rows:           rows,
	}
	pc.Checksum = checksum.Of(pc.Rows)
	return pc, nil
}

// extractOne fetches and converts the pixels for a single training feature.
// It returns (nil, nil) when the polygon falls entirely outside the
// mosaic, per edge case (c): logged and skipped, not fatal.
func (e *Extractor) extractOne(ctx context.Context, mosaicURL string, tf TrainingFeature) ([]PixelRecord, error) {
	classIdx, err := e.Classes.Index(tf.Class)
	if err != nil {
		return nil, err
	}
	pixels, err := e.Source.Pixels(ctx, mosaicURL, tf.Polygon)
	if err != nil {
		return nil, err
	}
	if len(pixels) == 0 {
		log.Printf("extract: feature %s (%s) has no pixels in %04d-%02d mosaic, skipping", tf.ID, tf.Class, tf.Year, tf.Month)
		return nil, nil
	}
	out := make([]PixelRecord, 0, len(pixels))
	for _, p := range pixels {
		if p.NoData {
			continue // edge case (b): nodata pixels dropped
		}
		out = append(out, PixelRecord{
			X: p.X, Y: p.Y, Month: tf.Month, ClassIdx: classIdx,
			Bands: p.Bands, FeatureID: tf.ID,
		})
	}
	return out, nil
}

// CacheFilePath returns the on-disk path a PixelCache for (runID, year, m,
// featureSetHash) would be written to under dir.
func CacheFilePath(dir, runID string, year, m int, featureSetHash string) string {
	name := fmt.Sprintf("%s_%04d_%02d_%s.cache", runID, year, m, featureSetHash)
	return filepath.Join(dir, name)
}
