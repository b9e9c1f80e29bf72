package driver

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDriver(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		wantErr bool
	}{
		{"sqlite", DialectSQLite, false},
		{"postgres", DialectPostgres, false},
		{"invalid", Dialect("invalid"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv, err := New(tt.dialect)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, drv.Dialect())
		})
	}
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		input   string
		want    Dialect
		wantErr bool
	}{
		{"sqlite", DialectSQLite, false},
		{"sqlite3", DialectSQLite, false},
		{"postgres", DialectPostgres, false},
		{"postgresql", DialectPostgres, false},
		{"pg", DialectPostgres, false},
		{"mysql", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDialect(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"SELECT * FROM tasks WHERE id = ?", "SELECT * FROM tasks WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT '?' FROM t WHERE a = ?", "SELECT '?' FROM t WHERE a = $1"},
	}

	pg := NewPostgres()
	lite := NewSQLite()
	for _, tt := range tests {
		assert.Equal(t, tt.want, pg.Rebind(tt.in))
		assert.Equal(t, tt.in, lite.Rebind(tt.in))
	}
}

func TestExtractVersion(t *testing.T) {
	assert.Equal(t, 1, extractVersion("store_001.sql", "store_"))
	assert.Equal(t, 12, extractVersion("store_012.sql", "store_"))
	assert.Equal(t, 0, extractVersion("store_abc.sql", "store_"))
}

func TestSQLiteDriver(t *testing.T) {
	drv := NewSQLite()
	require.NoError(t, drv.Open(filepath.Join(t.TempDir(), "test.db")))
	t.Cleanup(func() { _ = drv.Close() })

	ctx := context.Background()
	_, err := drv.Exec(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)

	_, err = drv.Exec(ctx, "INSERT INTO test (name) VALUES (?)", "hello")
	require.NoError(t, err)

	var name string
	require.NoError(t, drv.QueryRow(ctx, "SELECT name FROM test WHERE id = ?", 1).Scan(&name))
	assert.Equal(t, "hello", name)

	tx, err := drv.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, "INSERT INTO test (name) VALUES (?)", "world")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx2, err := drv.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx2.Exec(ctx, "INSERT INTO test (name) VALUES (?)", "rollback")
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback())

	var count int
	require.NoError(t, drv.QueryRow(ctx, "SELECT COUNT(*) FROM test").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestSQLiteDriver_MemorySharesOneDatabase(t *testing.T) {
	drv := NewSQLite()
	require.NoError(t, drv.Open(":memory:"))
	t.Cleanup(func() { _ = drv.Close() })

	ctx := context.Background()
	_, err := drv.Exec(ctx, "CREATE TABLE t (v TEXT)")
	require.NoError(t, err)

	// A second statement must see the table created by the first.
	_, err = drv.Exec(ctx, "INSERT INTO t (v) VALUES (?)", "x")
	require.NoError(t, err)
	assert.Equal(t, 1, drv.DB().Stats().MaxOpenConnections)
}

func TestDriver_CloseWithoutOpen(t *testing.T) {
	assert.NoError(t, NewSQLite().Close())
	assert.NoError(t, NewPostgres().Close())
}

func TestSQLiteMigrate(t *testing.T) {
	drv := NewSQLite()
	require.NoError(t, drv.Open(filepath.Join(t.TempDir(), "migrate.db")))
	t.Cleanup(func() { _ = drv.Close() })

	schema := fstest.MapFS{
		"schema/test_001.sql":  {Data: []byte(`CREATE TABLE one (id INTEGER PRIMARY KEY);`)},
		"schema/test_002.sql":  {Data: []byte(`ALTER TABLE one ADD COLUMN name TEXT;`)},
		"schema/other_001.sql": {Data: []byte(`CREATE TABLE not_applied (id INTEGER);`)},
	}

	ctx := context.Background()
	require.NoError(t, drv.Migrate(ctx, schema, "test"))

	_, err := drv.Exec(ctx, "INSERT INTO one (name) VALUES (?)", "a")
	require.NoError(t, err)

	var n int
	require.NoError(t, drv.QueryRow(ctx, "SELECT COUNT(*) FROM _migrations").Scan(&n))
	assert.Equal(t, 2, n)

	err = drv.QueryRow(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='not_applied'").Scan(new(string))
	assert.Error(t, err, "migrations of another schema type must not run")

	// second run is a no-op
	require.NoError(t, drv.Migrate(ctx, schema, "test"))
}
