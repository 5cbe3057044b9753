package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Driver names registered with database/sql.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

const sqliteScheme = "sqlite://"

// DriverFor picks the database/sql driver for a DATABASE_URL and returns the
// DSN that driver expects. sqlite://path selects SQLite, anything else Postgres.
func DriverFor(databaseURL string) (driver, dsn string) {
	if path, ok := strings.CutPrefix(databaseURL, sqliteScheme); ok {
		return DriverSQLite, path
	}
	return DriverPostgres, databaseURL
}

// OpenSQL opens and verifies a database/sql handle for databaseURL.
func OpenSQL(ctx context.Context, databaseURL string) (*sql.DB, string, error) {
	driver, dsn := DriverFor(databaseURL)

	handle, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("sql.Open(%s): %w", driver, err)
	}

	if driver == DriverSQLite {
		// SQLite has a single writer; one connection avoids SQLITE_BUSY.
		handle.SetMaxOpenConns(1)
		handle.SetMaxIdleConns(1)
		if err := handle.PingContext(ctx); err != nil {
			handle.Close()
			return nil, "", fmt.Errorf("sqlite ping failed: %w", err)
		}
		return handle, driver, nil
	}

	if err := retry(ctx, func() error { return handle.PingContext(ctx) }); err != nil {
		handle.Close()
		return nil, "", fmt.Errorf("postgres ping failed: %w", err)
	}
	return handle, driver, nil
}
