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
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/chocoforestwatch/forestwatch-core/ferrors"
)

// PostgresCatalog is the PostGIS-backed STAC database used for
// "--db-host remote" runs, supporting many concurrent writers with
// single-statement commits.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

// OpenPostgres dials dsn, retrying the initial connection with capped
// exponential backoff, then ensures the catalog's schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresCatalog, error) {
	var pool *pgxpool.Pool
	err := backoff.Retry(func() error {
		p, err := pgxpool.Connect(ctx, dsn)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx))
	if err != nil {
		return nil, ferrors.New(ferrors.TransportError, "", fmt.Errorf("catalog: connecting to postgres: %w", err))
	}

	if _, err := pool.Exec(ctx, postgresSchemaSQL); err != nil {
		pool.Close()
		return nil, ferrors.New(ferrors.ConfigError, "", fmt.Errorf("catalog: creating schema: %w", err))
	}
	return &PostgresCatalog{pool: pool}, nil
}

const postgresSchemaSQL = `
CREATE EXTENSION IF NOT EXISTS postgis;
CREATE TABLE IF NOT EXISTS stac_items (
	id TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL,
	asset_url TEXT NOT NULL,
	checksum TEXT NOT NULL,
	geom GEOMETRY(Polygon, 4326),
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stac_items_collection ON stac_items(collection_id);
`

func (c *PostgresCatalog) RegisterItem(ctx context.Context, item Item) error {
	existing, err := c.Item(ctx, item.ID)
	if err == nil {
		if existing.Checksum != item.Checksum {
			return &ErrChecksumMismatch{ID: item.ID, Old: existing.Checksum, New: item.Checksum}
		}
		return nil
	}
	_, err = c.pool.Exec(ctx, `
		INSERT INTO stac_items (id, collection_id, asset_url, checksum, geom, year, month, created_at)
		VALUES ($1, $2, $3, $4, ST_MakeEnvelope($5, $6, $7, $8, 4326), $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		item.ID, item.CollectionID, item.AssetURL, item.Checksum,
		item.BBoxMinX, item.BBoxMinY, item.BBoxMaxX, item.BBoxMaxY,
		item.Year, item.Month, item.CreatedAt)
	if err != nil {
		return ferrors.New(ferrors.TransportError, item.ID, fmt.Errorf("catalog: inserting item: %w", err))
	}
	return nil
}

func (c *PostgresCatalog) Item(ctx context.Context, id string) (Item, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT id, collection_id, asset_url, checksum,
			ST_XMin(geom), ST_YMin(geom), ST_XMax(geom), ST_YMax(geom), year, month, created_at
		FROM stac_items WHERE id = $1`, id)
	var it Item
	if err := row.Scan(&it.ID, &it.CollectionID, &it.AssetURL, &it.Checksum,
		&it.BBoxMinX, &it.BBoxMinY, &it.BBoxMaxX, &it.BBoxMaxY, &it.Year, &it.Month, &it.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return Item{}, ferrors.New(ferrors.StageDependencyError, id, fmt.Errorf("catalog: item %s not found", id))
		}
		return Item{}, ferrors.New(ferrors.TransportError, id, err)
	}
	return it, nil
}

func (c *PostgresCatalog) ItemsByCollection(ctx context.Context, collectionID string) ([]Item, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, collection_id, asset_url, checksum,
			ST_XMin(geom), ST_YMin(geom), ST_XMax(geom), ST_YMax(geom), year, month, created_at
		FROM stac_items WHERE collection_id = $1 ORDER BY year, month`, collectionID)
	if err != nil {
		return nil, ferrors.New(ferrors.TransportError, collectionID, err)
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.CollectionID, &it.AssetURL, &it.Checksum,
			&it.BBoxMinX, &it.BBoxMinY, &it.BBoxMaxX, &it.BBoxMaxY, &it.Year, &it.Month, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scanning item row: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (c *PostgresCatalog) Close() error {
	c.pool.Close()
	return nil
}
