package db

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_ValidationErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		dbPath      string
		expectedErr string
	}{
		{"empty_path", "", "empty database path"},
		{"whitespace_path", "   ", "empty database path"},
		{"tabs_path", "\t\t", "empty database path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(ctx, tt.dbPath)
			assert.Nil(t, store)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestOpen_DirectoryCreation(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "deep", "test.db")

	store, err := Open(ctx, dbPath)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Dir(dbPath))
	assert.NoError(t, store.Close())
}

func TestOpen_FilePermissions(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := Open(ctx, dbPath)
	require.NoError(t, err)
	defer store.Close()

	info, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestOpen_ExistingFile(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "existing.db")

	store1, err := Open(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	store2, err := Open(ctx, dbPath)
	require.NoError(t, err)
	ver, err := store2.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), ver)
	assert.NoError(t, store2.Close())
}

func TestClose_Nil(t *testing.T) {
	var store *Store
	assert.NoError(t, store.Close())
	assert.NoError(t, (&Store{db: nil}).Close())
}

func TestDB_Getter(t *testing.T) {
	store := openTestStore(t)
	assert.IsType(t, &sql.DB{}, store.DB())
}

func TestMigrations_CreateTables(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for _, table := range []string{"runs", "results", "run_exclusions"} {
		var name string
		err := store.db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	var index string
	err := store.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_results_definition'").Scan(&index)
	assert.NoError(t, err)
}
