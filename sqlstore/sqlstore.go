package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrDuplicate is returned when an insert or update violates a unique
// constraint (email, provider identity, token hash).
var ErrDuplicate = errors.New("duplicate record")

// DB is an opened, migrated database shared by [Accounts] and [RefreshTokens].
type DB struct {
	sqlDB  *sql.DB
	driver string
	now    func() time.Time
}

// Open connects to driver/dsn, pings it, and applies the embedded schema.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("dsn is required")
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer keeps conditional updates serialised without SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}

	db := &DB{sqlDB: sqlDB, driver: driver, now: time.Now}
	if err := db.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// WithClock overrides the clock used for created/updated timestamps.
func (db *DB) WithClock(now func() time.Time) *DB {
	if now != nil {
		db.now = now
	}
	return db
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	if db == nil || db.sqlDB == nil {
		return nil
	}
	return db.sqlDB.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.sqlDB.PingContext(ctx)
}

// Driver returns the driver name the DB was opened with.
func (db *DB) Driver() string { return db.driver }

// rebind rewrites ? placeholders to $n for postgres.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (db *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.sqlDB.ExecContext(ctx, db.rebind(query), args...)
}

func (db *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return db.sqlDB.QueryRowContext(ctx, db.rebind(query), args...)
}

func (db *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.sqlDB.QueryContext(ctx, db.rebind(query), args...)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
