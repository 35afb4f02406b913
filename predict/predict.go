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

// Package predict runs a trained Monthly Model over a mosaic to produce a
// single-band Prediction Raster, tiling the source into fixed windows and
// predicting each on a GOMAXPROCS-striped worker pool.
package predict

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"

	"github.com/chocoforestwatch/forestwatch-core/ferrors"
	"github.com/chocoforestwatch/forestwatch-core/rundir/checksum"
	"github.com/chocoforestwatch/forestwatch-core/science/features"
	"github.com/chocoforestwatch/forestwatch-core/train"
)

// NoDataValue is the output band's nodata sentinel: a window that fails
// twice, or a pixel with no valid source data, is written as 255.
const NoDataValue = 255

// Tags are the metadata values embedded in a Prediction Raster, as listed
// in the raster format's tag set.
type Tags struct {
	SoftwareVersion string
	RunID           string
	ModelID         string
	FeatureSetHash  string
	SourceMosaicID  string
	ClassIndexJSON  string
}

// Config controls one month's prediction pass.
type Config struct {
	MosaicURL      string
	MosaicSR       string // the mosaic's spatial reference, as a proj4/WKT string
	GeometrySR     string // the AOI/boundary geometry's declared spatial reference, if different
	Boundary       *geom.Polygon // optional clip geometry, in GeometrySR (or MosaicSR if GeometrySR is empty)
	Year, Month    int           // must match the values used to build the bundle's temporal feature at training time
	WindowSize     int
	MaxWindowRetry int
}

// Result is what Run produces: the COG written to OutputPath plus its
// content checksum, recorded with the STAC registration and in the stage
// manifest. The object-store upload key does not depend on it.
type Result struct {
	OutputPath string
	Checksum   string
	Failed     []Window
}

// Run predicts every window of cfg.MosaicURL using bundle, writes a
// tiled/overviewed/LZW-compressed single-band COG to outputPath, and
// returns its checksum. A window that fails twice is written as 255 and
// logged (never aborts the month); Run itself only returns an error for
// whole-month failures (opening the mosaic, or every window failing).
func Run(ctx context.Context, bundle *train.Bundle, cfg Config, tags Tags, outputPath string) (*Result, error) {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.MaxWindowRetry <= 0 {
		cfg.MaxWindowRetry = 2
	}

	if err := checkCRS(cfg.GeometrySR, cfg.MosaicSR); err != nil {
		return nil, err
	}

	eng, err := features.NewEngineer(bundle.FeatureExtractors)
	if err != nil {
		return nil, ferrors.New(ferrors.IntegrityError, "", err)
	}

	vsiPath := "/vsicurl/" + cfg.MosaicURL
	ds, err := godal.Open(vsiPath)
	if err != nil {
		return nil, ferrors.New(ferrors.TransportError, cfg.MosaicURL, fmt.Errorf("predict: opening mosaic: %w", err))
	}
	defer ds.Close()

	structure := ds.Structure()
	if structure.SizeX <= 0 || structure.SizeY <= 0 {
		return nil, ferrors.New(ferrors.InputDataError, cfg.MosaicURL, fmt.Errorf("predict: mosaic has zero extent"))
	}
	gt := ds.GeoTransform()
	srcBands := ds.Bands()
	if len(srcBands) < 4 {
		return nil, ferrors.New(ferrors.InputDataError, cfg.MosaicURL, fmt.Errorf("predict: mosaic has %d bands, need 4", len(srcBands)))
	}

	windows := tileWindows(structure.SizeX, structure.SizeY, cfg.WindowSize)
	out := make([]byte, structure.SizeX*structure.SizeY)
	for i := range out {
		out[i] = NoDataValue
	}

	var mu sync.Mutex
	var failed []Window
	nprocs := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			defer wg.Done()
			for i := pp; i < len(windows); i += nprocs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				w := windows[i]
				ok := predictWindow(ds, srcBands, eng, bundle, w, structure.SizeX, out, cfg.MaxWindowRetry, cfg.Year, cfg.Month)
				if !ok {
					mu.Lock()
					failed = append(failed, w)
					mu.Unlock()
					log.Printf("predict: window col=%d row=%d failed after %d attempts, writing nodata", w.Col, w.Row, cfg.MaxWindowRetry)
				}
			}
		}(pp)
	}
	wg.Wait()

	if len(windows) > 0 && len(failed) == len(windows) {
		return nil, ferrors.New(ferrors.TransportError, cfg.MosaicURL, fmt.Errorf("predict: every window failed for %s", cfg.MosaicURL))
	}

	if cfg.Boundary != nil {
		clip, err := reprojectPolygon(*cfg.Boundary, cfg.GeometrySR, cfg.MosaicSR)
		if err != nil {
			return nil, err
		}
		clipToBoundary(out, structure.SizeX, structure.SizeY, gt, clip)
	}

	if err := writeCOG(outputPath, out, structure.SizeX, structure.SizeY, gt, cfg.MosaicSR, tags); err != nil {
		return nil, err
	}
	sum, err := checksum.File(outputPath)
	if err != nil {
		return nil, ferrors.New(ferrors.IntegrityError, outputPath, err)
	}
	return &Result{OutputPath: outputPath, Checksum: sum, Failed: failed}, nil
}

// predictWindow reads w's band stack, predicts its pixels, and writes the
// classes into out. It is retried once on transport failure before being
// counted as a failed window.
func predictWindow(ds *godal.Dataset, bands []godal.Band, eng *features.Engineer, bundle *train.Bundle, w Window, stride int, out []byte, maxRetry, year, month int) bool {
	var lastErr error
	for attempt := 0; attempt < maxRetry; attempt++ {
		if err := tryPredictWindow(bands, eng, bundle, w, stride, out, year, month); err != nil {
			lastErr = err
			continue
		}
		return true
	}
	if lastErr != nil {
		log.Printf("predict: window col=%d row=%d: %v", w.Col, w.Row, lastErr)
	}
	return false
}

func tryPredictWindow(bands []godal.Band, eng *features.Engineer, bundle *train.Bundle, w Window, stride int, out []byte, year, month int) error {
	planes := make([][]float64, 4)
	for i := 0; i < 4; i++ {
		buf := make([]float64, w.Width*w.Height)
		if err := bands[i].Read(w.Col, w.Row, buf, w.Width, w.Height); err != nil {
			return fmt.Errorf("predict: reading band %d: %w", i, err)
		}
		planes[i] = buf
	}

	if allNoData(planes) {
		return nil // fully-nodata window: leave out[] at its 255 default
	}

	n := w.Width * w.Height
	dayOfYear := features.MidMonthDayOfYear(year, month)
	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		in := features.Input{
			Bands: [4]float64{planes[0][i], planes[1][i], planes[2][i], planes[3][i]},
			Month: month, Year: year, DayOfYear: dayOfYear,
		}
		rows[i] = eng.Transform(in)
	}

	X := rowsToMatrix(rows)
	preds := bundle.Model.Predict(X)

	for i := 0; i < n; i++ {
		row, col := i/w.Width, i%w.Width
		idx := (w.Row+row)*stride + (w.Col + col)
		out[idx] = byte(preds[i])
	}
	return nil
}

func allNoData(planes [][]float64) bool {
	for _, p := range planes[0] {
		if p != 0 {
			return false
		}
	}
	return true
}

// reprojectPolygon reprojects boundary's points from geometrySR into
// mosaicSR, mirroring benchmark.Compare's boundary-restriction pattern but
// applied to the clip geometry itself rather than to sample points: the
// AOI/boundary geometry is never silently assumed to share the mosaic's
// CRS. If geometrySR is empty or equal to mosaicSR, boundary is returned
// unchanged.
func reprojectPolygon(boundary geom.Polygon, geometrySR, mosaicSR string) (geom.Polygon, error) {
	if geometrySR == "" || geometrySR == mosaicSR {
		return boundary, nil
	}
	src, err := proj.Parse(geometrySR)
	if err != nil {
		return nil, ferrors.New(ferrors.InputDataError, "", fmt.Errorf("predict: parsing boundary CRS %q: %w", geometrySR, err))
	}
	dst, err := proj.Parse(mosaicSR)
	if err != nil {
		return nil, ferrors.New(ferrors.InputDataError, "", fmt.Errorf("predict: parsing mosaic CRS %q: %w", mosaicSR, err))
	}
	transform, err := src.NewTransform(dst)
	if err != nil {
		return nil, ferrors.New(ferrors.InputDataError, "", fmt.Errorf("predict: building transform %s -> %s: %w", geometrySR, mosaicSR, err))
	}
	out := make(geom.Polygon, len(boundary))
	for i, ring := range boundary {
		newRing := make([]geom.Point, len(ring))
		for j, pt := range ring {
			x, y, err := transform(pt.X, pt.Y)
			if err != nil {
				return nil, ferrors.New(ferrors.InputDataError, "",
					fmt.Errorf("predict: reprojecting boundary CRS %q to mosaic CRS %q: %w", geometrySR, mosaicSR, err))
			}
			newRing[j] = geom.Point{X: x, Y: y}
		}
		out[i] = newRing
	}
	return out, nil
}

// clipToBoundary sets every pixel of out whose center falls outside
// boundary to NoDataValue, restricting the Prediction Raster to the
// configured AOI/boundary clip (--boundary-geojson).
func clipToBoundary(out []byte, sizeX, sizeY int, gt [6]float64, boundary geom.Polygon) {
	for row := 0; row < sizeY; row++ {
		cy := gt[3] + (float64(row)+0.5)*gt[5]
		for col := 0; col < sizeX; col++ {
			cx := gt[0] + (float64(col)+0.5)*gt[1]
			if (geom.Point{X: cx, Y: cy}).Within(boundary) == geom.Outside {
				out[row*sizeX+col] = NoDataValue
			}
		}
	}
}

// checkCRS reprojects a test point between geometrySR and mosaicSR to
// confirm a working transform exists before any geometry-raster operation
// proceeds; a failure to build the transform is fatal, per the rule that
// CRS equality is never silently assumed.
func checkCRS(geometrySR, mosaicSR string) error {
	if geometrySR == "" || geometrySR == mosaicSR {
		return nil
	}
	src, err := proj.Parse(geometrySR)
	if err != nil {
		return ferrors.New(ferrors.InputDataError, "", fmt.Errorf("predict: parsing geometry CRS %q: %w", geometrySR, err))
	}
	dst, err := proj.Parse(mosaicSR)
	if err != nil {
		return ferrors.New(ferrors.InputDataError, "", fmt.Errorf("predict: parsing mosaic CRS %q: %w", mosaicSR, err))
	}
	forward, err := src.NewTransform(dst)
	if err != nil {
		return ferrors.New(ferrors.InputDataError, "", fmt.Errorf("predict: building transform %s -> %s: %w", geometrySR, mosaicSR, err))
	}
	if _, _, err := forward(0, 0); err != nil {
		return ferrors.New(ferrors.InputDataError, "", fmt.Errorf("predict: reprojecting geometry CRS %q to mosaic CRS %q: %w", geometrySR, mosaicSR, err))
	}
	return nil
}
