//go:build integration

package database_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"upandup/internal/platform/database"
	"upandup/migrations"
	"upandup/pkg/testutil/containers"
)

func TestMigrateIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()

	// The container already ran every migration on startup.
	applied, err := database.Migrate(ctx, pg.DB, migrations.FS)
	require.NoError(t, err)
	require.Empty(t, applied)

	n, err := pg.CountRows(ctx, "schema_migrations")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
