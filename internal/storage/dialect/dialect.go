// Package dialect hides the SQL differences between the log store backends.
package dialect

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect represents a SQL database dialect.
type Dialect interface {
	// Name returns the dialect name ("sqlite" or "postgres")
	Name() string

	// DriverName returns the database/sql driver name to use
	DriverName() string

	// Rebind converts ? placeholders to the dialect's format.
	// For example, PostgreSQL uses $1, $2, etc.
	Rebind(query string) string

	// BooleanType returns the SQL type for boolean values
	BooleanType() string

	// TimestampType returns the SQL type for timestamps
	TimestampType() string

	// JSONType returns the SQL type for JSON documents
	JSONType() string

	// InsertIgnoreClause returns the clause that makes an insert a no-op
	// when conflictColumn already holds the value
	InsertIgnoreClause(conflictColumn string) string

	// PragmaStatements returns dialect-specific initialization statements (e.g., PRAGMA for SQLite)
	PragmaStatements() []string

	// ColumnExistsQuery returns a query to check if a column exists in a table
	ColumnExistsQuery() string
}

// DialectType represents supported database types
type DialectType string

const (
	SQLite   DialectType = "sqlite"
	Postgres DialectType = "postgres"
)

// New creates a new Dialect based on the dialect type
func New(dialectType DialectType) (Dialect, error) {
	switch dialectType {
	case SQLite:
		return &sqliteDialect{}, nil
	case Postgres:
		return &postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialectType)
	}
}

// FromDriverName returns the dialect for a given driver name
func FromDriverName(driverName string) (Dialect, error) {
	switch strings.ToLower(driverName) {
	case "sqlite", "sqlite3":
		return &sqliteDialect{}, nil
	case "postgres", "postgresql", "pgx":
		return &postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driverName)
	}
}

// sqliteDialect implements Dialect for SQLite (modernc.org/sqlite)
type sqliteDialect struct{}

func (d *sqliteDialect) Name() string       { return "sqlite" }
func (d *sqliteDialect) DriverName() string { return "sqlite" }

func (d *sqliteDialect) Rebind(query string) string {
	return query // SQLite uses ?
}

func (d *sqliteDialect) BooleanType() string   { return "INTEGER" }
func (d *sqliteDialect) TimestampType() string { return "TIMESTAMP" }
func (d *sqliteDialect) JSONType() string      { return "TEXT" }

func (d *sqliteDialect) InsertIgnoreClause(conflictColumn string) string {
	return fmt.Sprintf("ON CONFLICT(%s) DO NOTHING", conflictColumn)
}

func (d *sqliteDialect) PragmaStatements() []string {
	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
}

func (d *sqliteDialect) ColumnExistsQuery() string {
	return `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`
}

// postgresDialect implements Dialect for PostgreSQL (jackc/pgx stdlib driver)
type postgresDialect struct{}

func (d *postgresDialect) Name() string       { return "postgres" }
func (d *postgresDialect) DriverName() string { return "pgx" }

func (d *postgresDialect) Rebind(query string) string {
	// Convert ? placeholders to $1, $2, etc.
	var result strings.Builder
	idx := 1
	for _, ch := range query {
		if ch == '?' {
			result.WriteByte('$')
			result.WriteString(strconv.Itoa(idx))
			idx++
		} else {
			result.WriteRune(ch)
		}
	}
	return result.String()
}

func (d *postgresDialect) BooleanType() string   { return "BOOLEAN" }
func (d *postgresDialect) TimestampType() string { return "TIMESTAMP WITH TIME ZONE" }
func (d *postgresDialect) JSONType() string      { return "JSONB" }

func (d *postgresDialect) InsertIgnoreClause(conflictColumn string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", conflictColumn)
}

func (d *postgresDialect) PragmaStatements() []string {
	return nil // PostgreSQL doesn't use pragmas
}

func (d *postgresDialect) ColumnExistsQuery() string {
	return `SELECT COUNT(*) FROM information_schema.columns WHERE table_name = ? AND column_name = ?`
}
