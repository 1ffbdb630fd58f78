package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/catering/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}

	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	_, err := RunMigrations(nil)
	assert.ErrorIs(t, err, errNilHandle)

	_, err = Apply(nil, "postgres")
	assert.ErrorIs(t, err, errNilHandle)
}

func TestApplyAutoMigratesNonPostgres(t *testing.T) {
	conn := dbtest.Open(t)

	result, err := Apply(conn, "sqlite")
	require.NoError(t, err)
	assert.Equal(t, ModeAutoMigrate, result.Mode)
	assert.Contains(t, result.Tables, "job_cursors")
	assert.Contains(t, result.Tables, "notification_outbox")

	for _, table := range result.Tables {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestMigrationFilesCoverModelTables(t *testing.T) {
	body, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000002_notifications.up.sql")
	require.NoError(t, err)
	catalog, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_catalog.up.sql")
	require.NoError(t, err)

	schema := string(catalog) + string(body)
	for _, table := range tableNames() {
		assert.Contains(t, schema, table)
	}
}
