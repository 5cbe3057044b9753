// Package store is the transactional datastore of the fulfillment core.
//
// One implementation serves both Postgres (via the pgx database/sql driver)
// and SQLite; queries are written with ? placeholders and rebound per dialect.
// The one-booking-per-request invariant is a partial UNIQUE index in both
// schemas, not application logic.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"jobmate/fulfillment-service/internal/db"
)

//go:embed schema_postgres.sql
var schemaPostgres string

//go:embed schema_sqlite.sql
var schemaSQLite string

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the database handle.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to databaseURL and applies the schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	handle, driver, err := db.OpenSQL(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	s, err := New(ctx, handle, driver)
	if err != nil {
		handle.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already-open handle and applies the schema. It is idempotent.
func New(ctx context.Context, handle *sql.DB, driver string) (*Store, error) {
	s := &Store{db: handle, driver: driver}
	if err := s.applySchema(ctx); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for tests and maintenance commands.
func (s *Store) DB() *sql.DB { return s.db }

// Queries returns a non-transactional query set.
func (s *Store) Queries() *Queries {
	return &Queries{q: s.db, postgres: s.driver == db.DriverPostgres}
}

// InTx runs fn inside a transaction. fn's error rolls the transaction back;
// a nil return commits it.
func (s *Store) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&Queries{q: tx, postgres: s.driver == db.DriverPostgres, inTx: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) applySchema(ctx context.Context) error {
	schema := schemaSQLite
	if s.driver == db.DriverPostgres {
		schema = schemaPostgres
	} else {
		for _, pragma := range []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA foreign_keys = ON",
		} {
			if _, err := s.db.ExecContext(ctx, pragma); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}

	for _, stmt := range strings.Split(schema, ";\n") {
		if strings.TrimSpace(stripComments(stmt)) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// Queries is the set of statements the core runs, bound to either the pool or
// an open transaction.
type Queries struct {
	q        querier
	postgres bool
	inTx     bool
	savepts  int
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.q.ExecContext(ctx, q.rebind(query), args...)
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.q.QueryContext(ctx, q.rebind(query), args...)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.q.QueryRowContext(ctx, q.rebind(query), args...)
}

// lockClause is appended to reads that precede a write in the same tx.
// SQLite serialises writers already.
func (q *Queries) lockClause() string {
	if q.postgres && q.inTx {
		return " FOR UPDATE"
	}
	return ""
}

// rebind rewrites ? placeholders to $n for Postgres.
func (q *Queries) rebind(query string) string {
	if !q.postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// BestEffort runs fn under a savepoint: if fn fails, its writes are undone
// but the enclosing transaction stays usable and the error is returned for
// logging. Outside a transaction fn runs as-is.
func (q *Queries) BestEffort(ctx context.Context, fn func() error) error {
	if !q.inTx {
		return fn()
	}
	q.savepts++
	name := "sp_" + strconv.Itoa(q.savepts)
	if _, err := q.q.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := q.q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		return err
	}
	if _, err := q.q.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// IsUniqueViolation reports whether err is a UNIQUE constraint failure from
// either backend.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func stripComments(stmt string) string {
	var b strings.Builder
	for _, line := range strings.Split(stmt, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stripComments(stmt))
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
