package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"testing/fstest"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func migrationFile(body string) *fstest.MapFile {
	return &fstest.MapFile{Data: []byte(body)}
}

func TestLoadMigrationsFromFS_SortsAndPairs(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(fstest.MapFS{
		"sql/migrations/0002_stock.up.sql":     migrationFile("ALTER TABLE products ADD COLUMN sku TEXT;"),
		"sql/migrations/0002_stock.down.sql":   migrationFile("ALTER TABLE products DROP COLUMN sku;"),
		"sql/migrations/0001_catalog.up.sql":   migrationFile("CREATE TABLE products (id TEXT);"),
		"sql/migrations/0001_catalog.down.sql": migrationFile("DROP TABLE products;"),
	})

	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, int64(1), migrations[0].Version)
	assert.Equal(t, "catalog", migrations[0].Name)
	assert.Equal(t, int64(2), migrations[1].Version)
	assert.Equal(t, "ALTER TABLE products DROP COLUMN sku;", migrations[1].DownSQL)
}

func TestLoadMigrationsFromFS_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fsys    fstest.MapFS
		wantErr string
	}{
		{
			name:    "no files",
			fsys:    fstest.MapFS{},
			wantErr: "no migration files found",
		},
		{
			name: "missing down",
			fsys: fstest.MapFS{
				"sql/migrations/0001_catalog.up.sql": migrationFile("CREATE TABLE products (id TEXT);"),
			},
			wantErr: "both up and down",
		},
		{
			name: "bad file name",
			fsys: fstest.MapFS{
				"sql/migrations/catalog.sql": migrationFile("SELECT 1;"),
			},
			wantErr: "invalid migration file name",
		},
		{
			name: "empty body",
			fsys: fstest.MapFS{
				"sql/migrations/0001_catalog.up.sql":   migrationFile("  \n"),
				"sql/migrations/0001_catalog.down.sql": migrationFile("DROP TABLE products;"),
			},
			wantErr: "migration file is empty",
		},
		{
			name: "name mismatch",
			fsys: fstest.MapFS{
				"sql/migrations/0001_catalog.up.sql":  migrationFile("CREATE TABLE products (id TEXT);"),
				"sql/migrations/0001_orders.down.sql": migrationFile("DROP TABLE orders;"),
			},
			wantErr: "name mismatch",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := loadMigrationsFromFS(tc.fsys)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestLoadMigrationsFromFS_EmbeddedSchema(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Contains(t, migrations[0].UpSQL, "CHECK (quantity >= 0)")
	assert.Contains(t, migrations[0].UpSQL, "products_name_uniq")
	assert.Contains(t, migrations[0].UpSQL, "LOWER(email)")
	assert.Equal(t, "outbox_messages", migrations[1].Name)
}

func newMigratorMock(t *testing.T) (pgxmock.PgxPoolIface, *Store) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	return mock, NewStore(mock)
}

func expectLockedTx(mock pgxmock.PgxPoolIface) {
	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WithArgs(migrationLockKey).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

func TestMigrateUp_AppliesOnlyMissingVersions(t *testing.T) {
	mock, store := newMigratorMock(t)

	expectLockedTx(mock)
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).
		WillReturnRows(mock.NewRows([]string{"version"}).AddRow(int64(1)))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS outbox_messages")).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WithArgs(int64(2), "outbox_messages").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	expectLockedTx(mock)
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).
		WillReturnRows(mock.NewRows([]string{"version"}).AddRow(int64(1)).AddRow(int64(2)))
	mock.ExpectRollback()

	require.NoError(t, store.MigrateUp(context.Background(), 0))
}

func TestMigrateUp_FailedStatementRollsBack(t *testing.T) {
	mock, store := newMigratorMock(t)

	expectLockedTx(mock)
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).
		WillReturnRows(mock.NewRows([]string{"version"}))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS customers")).
		WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := store.MigrateUp(context.Background(), 0)
	assert.ErrorContains(t, err, "execute up migration 1_init_shop")
}

func TestMigrateDown_RollsBackLatestVersion(t *testing.T) {
	mock, store := newMigratorMock(t)

	expectLockedTx(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")).
		WillReturnRows(mock.NewRows([]string{"max"}).AddRow(int64(2)))
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE IF EXISTS outbox_messages")).
		WillReturnResult(pgxmock.NewResult("DROP TABLE", 0))
	mock.ExpectExec(`DELETE FROM schema_migrations WHERE version = \$1`).
		WithArgs(int64(2)).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, store.MigrateDown(context.Background(), 0))
}

func TestMigrateDown_UnknownVersion(t *testing.T) {
	mock, store := newMigratorMock(t)

	expectLockedTx(mock)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")).
		WillReturnRows(mock.NewRows([]string{"max"}).AddRow(int64(99)))
	mock.ExpectRollback()

	err := store.MigrateDown(context.Background(), 1)
	assert.ErrorContains(t, err, "unknown migration version 99")
}

func TestMigrationStatus(t *testing.T) {
	mock, store := newMigratorMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0), COUNT(*)")).
		WillReturnRows(mock.NewRows([]string{"version", "count"}).AddRow(int64(2), 2))

	version, count, err := store.MigrationStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
	assert.Equal(t, 2, count)
}

func TestMigrate_UnsupportedDirection(t *testing.T) {
	_, store := newMigratorMock(t)

	err := store.migrate(context.Background(), migrationDirection("sideways"), 0)
	assert.ErrorContains(t, err, "unsupported migration direction")
}
