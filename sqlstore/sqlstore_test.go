package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrEthical07/eduAuth/refresh"
	"github.com/MrEthical07/eduAuth/refresh/refreshtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eduauth.db")
	db, err := Open(context.Background(), DriverSQLite, path+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	assert.Error(t, err)
	_, err = Open(context.Background(), DriverSQLite, " ")
	assert.Error(t, err)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eduauth.db")
	ctx := context.Background()

	db, err := Open(ctx, DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(ctx, DriverSQLite, path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.queryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &DB{driver: DriverSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}

func TestExtractUpMigration(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id INT);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (id INT);\n", extractUpMigration(content))
	assert.Equal(t, "SELECT 1;", extractUpMigration("SELECT 1;"))
}

func TestRefreshTokensContract(t *testing.T) {
	refreshtest.Run(t, func(t *testing.T) refresh.Store {
		return NewRefreshTokens(openTestDB(t))
	})
}

func TestRefreshTokensStoreOnlyHashes(t *testing.T) {
	db := openTestDB(t)
	s := NewRefreshTokens(db)
	ctx := context.Background()

	_, err := s.Create(ctx, "u1", "raw-secret-token", time.Now().Add(time.Hour))
	require.NoError(t, err)

	var hash string
	require.NoError(t, db.queryRow(ctx, `SELECT token_hash FROM refresh_tokens`).Scan(&hash))
	assert.NotContains(t, hash, "raw-secret-token")
	assert.Len(t, hash, 64)
}

func TestRefreshTokensUnavailableAfterClose(t *testing.T) {
	db := openTestDB(t)
	s := NewRefreshTokens(db)
	require.NoError(t, db.Close())

	_, err := s.FindByToken(context.Background(), "tok")
	assert.ErrorIs(t, err, refresh.ErrUnavailable)
	_, err = s.InvalidateAllForUser(context.Background(), "u1")
	assert.ErrorIs(t, err, refresh.ErrUnavailable)
}
