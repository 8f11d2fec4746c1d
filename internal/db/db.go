package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" driver
	"github.com/rs/zerolog"
	"github.com/yigit/problemportal/internal/pkg/apperrors"
	"github.com/yigit/problemportal/internal/pkg/dberrors"
)

var returningClause = regexp.MustCompile(`\bRETURNING\b`)

// Options selects and tunes the backend.
type Options struct {
	// URL is the server connection string. When set, Path is ignored.
	URL string
	// Path is the local database file, created if absent.
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// BusyTimeout bounds how long the local engine waits on its write lock.
	BusyTimeout time.Duration
}

// DB is the process-wide handle. Operations borrow a Conn from it and give
// it back when done.
type DB struct {
	sqlDB   *sql.DB
	dialect Dialect
	logger  zerolog.Logger
}

// Connect opens the configured backend and verifies it is reachable. A
// failure is returned as ErrStorageUnavailable; there is no fallback from the
// server backend to the local file.
func Connect(ctx context.Context, opts Options, lgr zerolog.Logger) (*DB, error) {
	var (
		dialect Dialect
		dsn     string
	)

	if strings.TrimSpace(opts.URL) != "" {
		dialect = postgresDialect{}
		dsn = opts.URL
	} else {
		dialect = sqliteDialect{}
		if opts.Path == "" {
			return nil, fmt.Errorf("database path is required when no connection string is set")
		}
		if dir := filepath.Dir(opts.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				return nil, apperrors.NewStorageUnavailableError(fmt.Errorf("failed to create database directory %s: %w", dir, err))
			}
		}
		busy := opts.BusyTimeout
		if busy <= 0 {
			busy = 5 * time.Second
		}
		dsn = fmt.Sprintf("%s?_busy_timeout=%d&_foreign_keys=on", opts.Path, busy.Milliseconds())
	}

	sqlDB, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError(fmt.Errorf("failed to open %s database: %w", dialect.Name(), err))
	}

	if dialect.Name() == BackendSQLite {
		// single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		if opts.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
		}
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		lgr.Error().Err(err).Str("backend", dialect.Name()).Msg("Database is unreachable")
		return nil, apperrors.NewStorageUnavailableError(fmt.Errorf("failed to establish %s connection: %w", dialect.Name(), err))
	}

	lgr.Info().Str("backend", dialect.Name()).Msg("Database connection established")
	return &DB{sqlDB: sqlDB, dialect: dialect, logger: lgr}, nil
}

// Dialect returns the active backend dialect.
func (d *DB) Dialect() Dialect { return d.dialect }

// Backend returns the active backend name.
func (d *DB) Backend() string { return d.dialect.Name() }

// Ping checks reachability.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.sqlDB.PingContext(ctx); err != nil {
		return apperrors.NewStorageUnavailableError(err)
	}
	return nil
}

// Close releases the underlying pool.
func (d *DB) Close() error {
	if d.sqlDB == nil {
		return nil
	}
	return d.sqlDB.Close()
}

// Conn borrows a connection for one operation. The caller must Close it on
// every exit path.
func (d *DB) Conn(ctx context.Context) (*Conn, error) {
	c, err := d.sqlDB.Conn(ctx)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError(err)
	}
	return &Conn{conn: c, dialect: d.dialect, logger: d.logger}, nil
}

// ConnFn is an operation run on a borrowed connection.
type ConnFn func(ctx context.Context, conn *Conn) error

// WithConn borrows a connection, runs fn, commits when fn succeeds and
// always releases the connection.
func (d *DB) WithConn(ctx context.Context, fn ConnFn) error {
	conn, err := d.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Rollback on panic
	defer func() {
		if r := recover(); r != nil {
			_ = conn.Rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, conn); err != nil {
		return err
	}
	return conn.Commit()
}

// Conn is a borrowed connection. Statements run inside a transaction that
// starts with the first Execute and ends at Commit; Close discards anything
// not committed.
type Conn struct {
	conn    *sql.Conn
	tx      *sql.Tx
	dialect Dialect
	logger  zerolog.Logger
	closed  bool
}

// Dialect returns the backend dialect of this connection.
func (c *Conn) Dialect() Dialect { return c.dialect }

// Cursor returns a new cursor bound to this connection.
func (c *Conn) Cursor() *Cursor {
	return &Cursor{conn: c}
}

// Execute runs a statement on a fresh cursor and returns it.
func (c *Conn) Execute(ctx context.Context, query string, args ...interface{}) (*Cursor, error) {
	cur := c.Cursor()
	if err := cur.Execute(ctx, query, args...); err != nil {
		return nil, err
	}
	return cur, nil
}

// Commit commits the open transaction, if any.
func (c *Conn) Commit() error {
	if c.tx == nil {
		return nil
	}
	err := c.tx.Commit()
	c.tx = nil
	if err != nil {
		return wrapErr(fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

// Rollback discards the open transaction, if any.
func (c *Conn) Rollback() error {
	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback()
	c.tx = nil
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Close rolls back uncommitted work and returns the connection to the pool.
// It is safe to call more than once.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.Rollback(); err != nil {
		c.logger.Warn().Err(err).Msg("Rollback on close failed")
	}
	return c.conn.Close()
}

// TableColumns lists the column names of table.
func (c *Conn) TableColumns(ctx context.Context, table string) ([]string, error) {
	query, args, nameColumn, err := c.dialect.TableColumnsQuery(table)
	if err != nil {
		return nil, err
	}
	cur, err := c.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var cols []string
	for _, row := range cur.FetchAll() {
		cols = append(cols, row.String(nameColumn))
	}
	return cols, nil
}

func (c *Conn) begin(ctx context.Context) error {
	if c.closed {
		return sql.ErrConnDone
	}
	if c.tx != nil {
		return nil
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	c.tx = tx
	return nil
}

// Cursor executes statements and buffers their results.
type Cursor struct {
	conn      *Conn
	rows      []Row
	pos       int
	lastID    int64
	hasLastID bool
	affected  int64
}

// Execute rewrites `?` placeholders for the active backend and runs the
// statement. Statements that produce rows are fully buffered.
func (cur *Cursor) Execute(ctx context.Context, query string, args ...interface{}) error {
	cur.rows, cur.pos = nil, 0
	cur.lastID, cur.hasLastID, cur.affected = 0, false, 0

	native, err := cur.conn.dialect.Rebind(query)
	if err != nil {
		return fmt.Errorf("failed to rebind statement: %w", err)
	}
	if err := cur.conn.begin(ctx); err != nil {
		return wrapErr(err)
	}

	if returnsRows(native) {
		rows, err := cur.conn.tx.QueryContext(ctx, native, args...)
		if err != nil {
			return wrapErr(err)
		}
		defer rows.Close()

		buffered, err := scanAll(rows)
		if err != nil {
			return wrapErr(err)
		}
		cur.rows = buffered
		cur.affected = int64(len(buffered))
		return nil
	}

	res, err := cur.conn.tx.ExecContext(ctx, native, args...)
	if err != nil {
		return wrapErr(err)
	}
	if n, err := res.RowsAffected(); err == nil {
		cur.affected = n
	}
	if cur.conn.dialect.SupportsLastInsertID() {
		if id, err := res.LastInsertId(); err == nil {
			cur.lastID, cur.hasLastID = id, true
		}
	}
	return nil
}

// FetchOne returns the next buffered row, or false when exhausted.
func (cur *Cursor) FetchOne() (Row, bool) {
	if cur.pos >= len(cur.rows) {
		return Row{}, false
	}
	r := cur.rows[cur.pos]
	cur.pos++
	return r, true
}

// FetchAll returns every remaining buffered row.
func (cur *Cursor) FetchAll() []Row {
	if cur.pos >= len(cur.rows) {
		return nil
	}
	rest := cur.rows[cur.pos:]
	cur.pos = len(cur.rows)
	return rest
}

// LastRowID reports the key of the most recent insert. On backends that do
// not expose it the second result is false and the caller must look the row
// up itself.
func (cur *Cursor) LastRowID() (int64, bool) {
	return cur.lastID, cur.hasLastID
}

// RowsAffected returns the affected (or fetched) row count.
func (cur *Cursor) RowsAffected() int64 { return cur.affected }

func scanAll(rows *sql.Rows) ([]Row, error) {
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	cols := newColumnSet(names)

	var out []Row
	for rows.Next() {
		values := make([]interface{}, len(names))
		ptrs := make([]interface{}, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalize(v)
		}
		out = append(out, Row{cols: cols, values: values})
	}
	return out, rows.Err()
}

// returnsRows decides between Query and Exec from the statement text.
func returnsRows(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	for _, prefix := range []string{"SELECT", "WITH", "PRAGMA", "VALUES", "SHOW", "EXPLAIN"} {
		if strings.HasPrefix(q, prefix) {
			return true
		}
	}
	return returningClause.MatchString(q)
}

// wrapErr tags connectivity failures as ErrStorageUnavailable and leaves
// statement errors untouched for the caller to classify.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if dberrors.IsConnectivityError(err) {
		return apperrors.NewStorageUnavailableError(err)
	}
	return err
}
