package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/yigit/problemportal/internal/db"
)

// column is one column the current code expects on an existing table.
type column struct {
	name string
	ddl  string
}

// tableDef describes a table as created fresh (baseline) plus the columns
// added since the baseline shipped.
type tableDef struct {
	name     string
	baseline func(d db.Dialect) string
	additive []column
}

var tables = []tableDef{
	{
		name: "students",
		baseline: func(db.Dialect) string {
			return `CREATE TABLE IF NOT EXISTS students (
				roll_no TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				branch TEXT,
				batch TEXT,
				dob TEXT,
				email TEXT UNIQUE,
				password TEXT
			)`
		},
		additive: []column{
			{"password_changed", "INTEGER NOT NULL DEFAULT 0"},
		},
	},
	{
		name: "admin",
		baseline: func(db.Dialect) string {
			return `CREATE TABLE IF NOT EXISTS admin (
				id TEXT PRIMARY KEY,
				password TEXT NOT NULL
			)`
		},
	},
	{
		name: "problems",
		baseline: func(d db.Dialect) string {
			return `CREATE TABLE IF NOT EXISTS problems (
				id ` + d.AutoIncrementPK() + `,
				title TEXT UNIQUE NOT NULL,
				description TEXT,
				skill TEXT,
				category TEXT,
				branch TEXT,
				external_link TEXT,
				created_by_name TEXT,
				created_by_roll TEXT,
				created_by_branch TEXT,
				created_by_batch TEXT,
				status TEXT DEFAULT 'pending'
			)`
		},
		additive: []column{
			{"created_at", "TEXT"},
			{"synopsis_path", "TEXT"},
			{"certificate_path", "TEXT"},
			{"report_path", "TEXT"},
			{"rejection_reason", "TEXT"},
			{"student_id", "TEXT"},
		},
	},
}

// Migrator brings the schema up to the shape the code expects. It only ever
// creates tables and adds columns.
type Migrator struct {
	db     *db.DB
	logger zerolog.Logger
}

// NewMigrator creates a new migrator
func NewMigrator(database *db.DB, lgr zerolog.Logger) *Migrator {
	return &Migrator{
		db:     database,
		logger: lgr,
	}
}

// EnsureSchema creates missing tables and adds missing columns. Running it
// again on an up-to-date schema changes nothing.
func (m *Migrator) EnsureSchema(ctx context.Context) error {
	return m.db.WithConn(ctx, func(ctx context.Context, conn *db.Conn) error {
		for _, t := range tables {
			if err := m.ensureTable(ctx, conn, t); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Migrator) ensureTable(ctx context.Context, conn *db.Conn, t tableDef) error {
	if _, err := conn.Execute(ctx, t.baseline(conn.Dialect())); err != nil {
		return fmt.Errorf("failed to create table %s: %w", t.name, err)
	}

	if len(t.additive) == 0 {
		return nil
	}

	existing, err := conn.TableColumns(ctx, t.name)
	if err != nil {
		return fmt.Errorf("failed to inspect table %s: %w", t.name, err)
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[strings.ToLower(c)] = true
	}

	for _, c := range t.additive {
		if have[c.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", t.name, c.name, c.ddl)
		if _, err := conn.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("failed to add column %s.%s: %w", t.name, c.name, err)
		}
		m.logger.Info().Str("table", t.name).Str("column", c.name).Msg("Added missing column")
	}
	return nil
}
