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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chocoforestwatch/forestwatch-core/internal/postgis"
)

// TestPostgresRegisterAndGet exercises the "--db-host remote" backend
// against a disposable PostGIS container. It requires Docker and is
// skipped in short mode.
func TestPostgresRegisterAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()
	dsn, container := postgis.SetupTestDB(ctx, t)
	defer container.Terminate(ctx)

	cat, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer cat.Close()

	item := testItem(ItemID("run-1", 2021, 3))
	require.NoError(t, cat.RegisterItem(ctx, item))

	got, err := cat.Item(ctx, item.ID)
	require.NoError(t, err)
	require.Equal(t, item.Checksum, got.Checksum)
	require.Equal(t, item.AssetURL, got.AssetURL)
}
