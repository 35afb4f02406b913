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
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/chocoforestwatch/forestwatch-core/ferrors"
)

// SQLiteCatalog is the embedded, zero-external-services STAC backend used
// for "--db-host local" runs.
type SQLiteCatalog struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) a sqlite STAC database at path.
func OpenSQLite(path string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ferrors.New(ferrors.ConfigError, "", fmt.Errorf("catalog: opening sqlite database %s: %w", path, err))
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, ferrors.New(ferrors.ConfigError, "", fmt.Errorf("catalog: creating schema: %w", err))
	}
	return &SQLiteCatalog{db: db}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS stac_items (
	id TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL,
	asset_url TEXT NOT NULL,
	checksum TEXT NOT NULL,
	bbox_min_x REAL, bbox_min_y REAL, bbox_max_x REAL, bbox_max_y REAL,
	year INTEGER NOT NULL,
	month INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stac_items_collection ON stac_items(collection_id);
`

func (c *SQLiteCatalog) RegisterItem(ctx context.Context, item Item) error {
	existing, err := c.Item(ctx, item.ID)
	if err == nil {
		if existing.Checksum != item.Checksum {
			return &ErrChecksumMismatch{ID: item.ID, Old: existing.Checksum, New: item.Checksum}
		}
		return nil // last write wins after checksum match: no-op
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO stac_items (id, collection_id, asset_url, checksum, bbox_min_x, bbox_min_y, bbox_max_x, bbox_max_y, year, month, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.CollectionID, item.AssetURL, item.Checksum,
		item.BBoxMinX, item.BBoxMinY, item.BBoxMaxX, item.BBoxMaxY,
		item.Year, item.Month, item.CreatedAt)
	if err != nil {
		return ferrors.New(ferrors.TransportError, item.ID, fmt.Errorf("catalog: inserting item: %w", err))
	}
	return nil
}

func (c *SQLiteCatalog) Item(ctx context.Context, id string) (Item, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, collection_id, asset_url, checksum, bbox_min_x, bbox_min_y, bbox_max_x, bbox_max_y, year, month, created_at
		FROM stac_items WHERE id = ?`, id)
	var it Item
	if err := row.Scan(&it.ID, &it.CollectionID, &it.AssetURL, &it.Checksum,
		&it.BBoxMinX, &it.BBoxMinY, &it.BBoxMaxX, &it.BBoxMaxY, &it.Year, &it.Month, &it.CreatedAt); err != nil {
		return Item{}, ferrors.New(ferrors.StageDependencyError, id, fmt.Errorf("catalog: item %s not found: %w", id, err))
	}
	return it, nil
}

func (c *SQLiteCatalog) ItemsByCollection(ctx context.Context, collectionID string) ([]Item, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, collection_id, asset_url, checksum, bbox_min_x, bbox_min_y, bbox_max_x, bbox_max_y, year, month, created_at
		FROM stac_items WHERE collection_id = ? ORDER BY year, month`, collectionID)
	if err != nil {
		return nil, ferrors.New(ferrors.TransportError, collectionID, fmt.Errorf("catalog: querying collection: %w", err))
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

func (c *SQLiteCatalog) Close() error { return c.db.Close() }
