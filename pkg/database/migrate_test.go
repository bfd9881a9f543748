package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNamesSortedSQLOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_jobs.sql":   {Data: []byte("SELECT 1")},
		"migrations/001_schema.sql": {Data: []byte("SELECT 1")},
		"migrations/README.md":      {Data: []byte("notes")},
	}
	names, err := migrationNames(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_schema.sql", "002_jobs.sql"}, names)
}

func TestEmbeddedSchemaDefinesPipelineTables(t *testing.T) {
	names, err := migrationNames(migrationsFS)
	require.NoError(t, err)
	require.NotEmpty(t, names)

	raw, err := migrationsFS.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), "CREATE TABLE IF NOT EXISTS videos")
	assert.Contains(t, string(raw), "CREATE TABLE IF NOT EXISTS transcode_jobs")
}
