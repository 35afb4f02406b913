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

package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/cenkalti/backoff/v4"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"

	"github.com/chocoforestwatch/forestwatch-core/ferrors"
)

// PixelVals holds the per-band pixel values read for one geometry,
// ordered [Blue, Green, Red, NIR].
type PixelVals struct {
	X, Y   int
	Bands  [4]float64
	NoData bool
}

// PixelSource fetches pixel values intersecting a geometry from a month's
// mosaic. Both transports (t1 tile/stat service, t2 direct range reads)
// must yield identical pixel populations for the same (mosaicURL, geom)
// pair, per the extractor's identity property.
type PixelSource interface {
	Pixels(ctx context.Context, mosaicURL string, g geom.Polygon) ([]PixelVals, error)
}

// TileStatSource is transport t1: a tile/stat HTTP service queried when no
// direct object credentials exist.
type TileStatSource struct {
	BaseURL string
	Client  *http.Client
}

// NewTileStatSource returns a TileStatSource against baseURL (the
// TITILER_URL environment value), with a default HTTP client if client is
// nil.
func NewTileStatSource(baseURL string, client *http.Client) *TileStatSource {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &TileStatSource{BaseURL: baseURL, Client: client}
}

type statResponse struct {
	Pixels []struct {
		X     int       `json:"x"`
		Y     int       `json:"y"`
		Bands []float64 `json:"bands"`
	} `json:"pixels"`
}

// Pixels implements PixelSource by POSTing the geometry to the
// /statistics endpoint, retrying transient (5xx) failures with capped
// exponential backoff and treating 4xx as permanent.
func (s *TileStatSource) Pixels(ctx context.Context, mosaicURL string, g geom.Polygon) ([]PixelVals, error) {
	body, err := geojson.Encode(g)
	if err != nil {
		return nil, ferrors.New(ferrors.InputDataError, "", fmt.Errorf("tilestat: encoding geometry: %w", err))
	}
	b, err := json.Marshal(body)
	if err != nil {
		return nil, ferrors.New(ferrors.InputDataError, "", fmt.Errorf("tilestat: marshaling geojson: %w", err))
	}

	var resp statResponse
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			fmt.Sprintf("%s/statistics?url=%s", s.BaseURL, mosaicURL), bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		httpResp, err := s.Client.Do(req)
		if err != nil {
			return err // network errors are retriable
		}
		defer httpResp.Body.Close()
		if httpResp.StatusCode >= 400 && httpResp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("tilestat: permanent error status %d", httpResp.StatusCode))
		}
		if httpResp.StatusCode >= 500 {
			return fmt.Errorf("tilestat: transient error status %d", httpResp.StatusCode)
		}
		return json.NewDecoder(httpResp.Body).Decode(&resp)
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, ferrors.New(ferrors.TransportError, "", err)
	}

	out := make([]PixelVals, 0, len(resp.Pixels))
	for _, p := range resp.Pixels {
		if len(p.Bands) != 4 {
			return nil, ferrors.New(ferrors.InputDataError, "", fmt.Errorf("tilestat: expected 4 bands, got %d", len(p.Bands)))
		}
		out = append(out, PixelVals{X: p.X, Y: p.Y, Bands: [4]float64{p.Bands[0], p.Bands[1], p.Bands[2], p.Bands[3]}})
	}
	return out, nil
}

// RangeReadSource is transport t2: direct windowed range reads against
// the COG URL using its own internal tile index, used when object
// credentials are available.
type RangeReadSource struct{}

// Pixels implements PixelSource by opening mosaicURL with godal (which
// performs HTTP range requests via GDAL's /vsicurl/ virtual filesystem)
// and reading only the window covering g's bounding box.
func (s *RangeReadSource) Pixels(ctx context.Context, mosaicURL string, g geom.Polygon) ([]PixelVals, error) {
	vsiPath := "/vsicurl/" + mosaicURL
	ds, err := godal.Open(vsiPath)
	if err != nil {
		return nil, ferrors.New(ferrors.TransportError, "", fmt.Errorf("rangeread: opening %s: %w", mosaicURL, err))
	}
	defer ds.Close()

	bounds := g.Bounds()
	structure := ds.Structure()
	gt := ds.GeoTransform()
	minCol, minRow := geoToPixel(gt, bounds.Min.X, bounds.Max.Y)
	maxCol, maxRow := geoToPixel(gt, bounds.Max.X, bounds.Min.Y)
	minCol, maxCol = clampOrder(minCol, maxCol, structure.SizeX)
	minRow, maxRow = clampOrder(minRow, maxRow, structure.SizeY)
	width, height := maxCol-minCol, maxRow-minRow
	if width <= 0 || height <= 0 {
		return nil, nil // polygon entirely outside the mosaic: caller logs and skips
	}

	bands := ds.Bands()
	if len(bands) < 4 {
		return nil, ferrors.New(ferrors.InputDataError, "", fmt.Errorf("rangeread: mosaic has %d bands, need 4", len(bands)))
	}

	planes := make([][]float64, 4)
	for i := 0; i < 4; i++ {
		buf := make([]float64, width*height)
		if err := bands[i].Read(minCol, minRow, buf, width, height); err != nil {
			return nil, ferrors.New(ferrors.TransportError, "", fmt.Errorf("rangeread: reading band %d: %w", i, err))
		}
		planes[i] = buf
	}

	return maskToPolygon(gt, minCol, minRow, width, height, planes, g), nil
}

// maskToPolygon filters the width*height pixel grid read starting at
// (minCol, minRow) down to the pixels whose center falls inside (or on
// the edge of) g, matching the server-side polygon masking that
// TileStatSource relies on so both transports yield the same pixel
// population for the same geometry.
func maskToPolygon(gt [6]float64, minCol, minRow, width, height int, planes [][]float64, g geom.Polygon) []PixelVals {
	out := make([]PixelVals, 0, width*height)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			idx := row*width + col
			x, y := minCol+col, minRow+row
			cx, cy := pixelCenter(gt, x, y)
			if (geom.Point{X: cx, Y: cy}).Within(g) == geom.Outside {
				continue
			}
			out = append(out, PixelVals{
				X:     x,
				Y:     y,
				Bands: [4]float64{planes[0][idx], planes[1][idx], planes[2][idx], planes[3][idx]},
			})
		}
	}
	return out
}

// geoToPixel converts a georeferenced (x, y) to (col, row) using a GDAL
// affine geotransform, assuming no rotation (gt[2] == gt[4] == 0).
func geoToPixel(gt [6]float64, x, y float64) (int, int) {
	col := int((x - gt[0]) / gt[1])
	row := int((y - gt[3]) / gt[5])
	return col, row
}

func clampOrder(a, b, max int) (int, int) {
	if a > b {
		a, b = b, a
	}
	if a < 0 {
		a = 0
	}
	if b > max {
		b = max
	}
	return a, b
}

// pixelCenter converts a (col, row) pixel index to the georeferenced
// coordinate of its center, the inverse of geoToPixel plus a half-pixel
// offset, assuming no rotation (gt[2] == gt[4] == 0).
func pixelCenter(gt [6]float64, col, row int) (float64, float64) {
	x := gt[0] + (float64(col)+0.5)*gt[1]
	y := gt[3] + (float64(row)+0.5)*gt[5]
	return x, y
}
