package db

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/squirrel"
	"github.com/yigit/problemportal/internal/pkg/dberrors"
)

// Backend names
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Dialect captures everything that differs between the local file engine and
// the client/server engine. Call sites never branch on the backend name.
type Dialect interface {
	// Name returns BackendSQLite or BackendPostgres.
	Name() string
	// DriverName is the database/sql driver to open.
	DriverName() string
	// Rebind converts a statement written with `?` placeholders into the
	// native placeholder syntax.
	Rebind(query string) (string, error)
	// SupportsLastInsertID reports whether sql.Result.LastInsertId works.
	SupportsLastInsertID() bool
	// AutoIncrementPK is the column definition for an integer surrogate key.
	AutoIncrementPK() string
	// TableColumnsQuery returns a `?`-style statement listing the columns of
	// table, and the result column holding each column name.
	TableColumnsQuery(table string) (query string, args []interface{}, nameColumn string, err error)
	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation(err error) bool
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string       { return BackendSQLite }
func (sqliteDialect) DriverName() string { return "sqlite3" }

// Rebind is a no-op: `?` is already native.
func (sqliteDialect) Rebind(query string) (string, error) { return query, nil }

func (sqliteDialect) SupportsLastInsertID() bool { return true }

func (sqliteDialect) AutoIncrementPK() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

func (sqliteDialect) TableColumnsQuery(table string) (string, []interface{}, string, error) {
	if !identifierPattern.MatchString(table) {
		return "", nil, "", fmt.Errorf("invalid table name %q", table)
	}
	// PRAGMA does not accept bound parameters.
	return "PRAGMA table_info(" + table + ")", nil, "name", nil
}

func (sqliteDialect) IsUniqueViolation(err error) bool {
	return dberrors.IsDuplicateConstraintError(err, "")
}

type postgresDialect struct{}

func (postgresDialect) Name() string       { return BackendPostgres }
func (postgresDialect) DriverName() string { return "pgx" }

func (postgresDialect) Rebind(query string) (string, error) {
	return squirrel.Dollar.ReplacePlaceholders(query)
}

// pgx does not implement LastInsertId; callers fall back to a lookup.
func (postgresDialect) SupportsLastInsertID() bool { return false }

func (postgresDialect) AutoIncrementPK() string { return "SERIAL PRIMARY KEY" }

func (postgresDialect) TableColumnsQuery(table string) (string, []interface{}, string, error) {
	if !identifierPattern.MatchString(table) {
		return "", nil, "", fmt.Errorf("invalid table name %q", table)
	}
	return `SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ?
		ORDER BY ordinal_position`, []interface{}{table}, "column_name", nil
}

func (postgresDialect) IsUniqueViolation(err error) bool {
	return dberrors.IsDuplicateConstraintError(err, "")
}

// DialectFor returns the dialect for a backend name.
func DialectFor(backend string) (Dialect, error) {
	switch backend {
	case BackendSQLite:
		return sqliteDialect{}, nil
	case BackendPostgres:
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unknown database backend %q", backend)
	}
}
