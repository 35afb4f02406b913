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
	"context"
	"fmt"

	"github.com/chocoforestwatch/forestwatch-core/catalog"
	"github.com/chocoforestwatch/forestwatch-core/ferrors"
	"github.com/chocoforestwatch/forestwatch-core/objectstore"
	"github.com/chocoforestwatch/forestwatch-core/rundir"
	"github.com/chocoforestwatch/forestwatch-core/train"
)

// PublishConfig carries everything Publish needs beyond the prediction
// itself: where to upload the COG, and which catalog to register it in.
type PublishConfig struct {
	RunID        string
	Year, Month  int
	CollectionID string
	BucketURL    string
	Bounds       [4]float64 // minX, minY, maxX, maxY in the mosaic's CRS
}

// Publish runs one month's prediction, uploads the resulting COG to object
// storage at a deterministic key, and registers a STAC item for it. It is
// the full C5 operation the orchestrator invokes per unit.
func Publish(ctx context.Context, run *rundir.Run, bundle *train.Bundle, cfg Config, pub PublishConfig, cat catalog.Catalog) (*Result, error) {
	dir, err := run.PredictionCOGsDir(pub.Year, pub.Month)
	if err != nil {
		return nil, ferrors.New(ferrors.ConfigError, "", err)
	}
	outputPath := fmt.Sprintf("%s/%04d-%02d.tif", dir, pub.Year, pub.Month)

	classIdxJSON, err := ClassIndexJSON(bundle.ClassNames)
	if err != nil {
		return nil, ferrors.New(ferrors.IntegrityError, "", err)
	}
	tags := Tags{
		SoftwareVersion: "forestwatch-core",
		RunID:           pub.RunID,
		ModelID:         catalog.ItemID(pub.RunID, pub.Year, pub.Month),
		FeatureSetHash:  fmt.Sprintf("%x", bundle.FeatureExtractors),
		SourceMosaicID:  cfg.MosaicURL,
		ClassIndexJSON:  classIdxJSON,
	}

	result, err := Run(ctx, bundle, cfg, tags, outputPath)
	if err != nil {
		return nil, err
	}

	bucket, err := objectstore.Open(ctx, pub.BucketURL)
	if err != nil {
		return nil, err
	}
	defer bucket.Close()

	key := objectstore.Key(pub.RunID, fmt.Sprintf("%04d-%02d", pub.Year, pub.Month), "prediction.tif")
	if err := objectstore.PutFile(ctx, bucket, key, outputPath); err != nil {
		return nil, err
	}

	item := catalog.Item{
		ID:           catalog.ItemID(pub.RunID, pub.Year, pub.Month),
		CollectionID: pub.CollectionID,
		AssetURL:     pub.BucketURL + "/" + key,
		Checksum:     result.Checksum,
		BBoxMinX:     pub.Bounds[0],
		BBoxMinY:     pub.Bounds[1],
		BBoxMaxX:     pub.Bounds[2],
		BBoxMaxY:     pub.Bounds[3],
		Year:         pub.Year,
		Month:        pub.Month,
	}
	if err := cat.RegisterItem(ctx, item); err != nil {
		return nil, err
	}
	return result, nil
}
