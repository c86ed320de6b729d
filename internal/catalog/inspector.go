// Package catalog introspects a live database into an immutable types.Schema
// and serves it as atomically swapped snapshots.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kyleking/sqlpilot/internal/errors"
	"github.com/kyleking/sqlpilot/internal/types"
)

// Inspector reads structural metadata for one database
type Inspector interface {
	// ListTables returns base table names, excluding views and system tables
	ListTables(ctx context.Context) ([]string, error)
	// ListColumns returns columns in physical order with type, nullability, default and extra flags
	ListColumns(ctx context.Context, table string) ([]types.ColumnSpec, error)
	// PrimaryKey returns primary key columns in key order
	PrimaryKey(ctx context.Context, table string) ([]string, error)
	// ListIndexes returns secondary indexes keyed by name
	ListIndexes(ctx context.Context, table string) (map[string]types.IndexSpec, error)
	// ListForeignKeys returns foreign keys keyed by local column
	ListForeignKeys(ctx context.Context, table string) (map[string]types.Reference, error)
}

// Driver names accepted by NewInspector and Open
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverMySQL    = "mysql"
	DriverDuckDB   = "duckdb"
)

// NewInspector returns the introspector for driver. schema may be empty to use
// the driver's default namespace.
func NewInspector(driver string, db *sql.DB, schema string) (Inspector, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite:
		return NewSQLiteInspector(db), nil
	case DriverPostgres, DriverPgx:
		return NewPostgresInspector(db, schema), nil
	case DriverMySQL:
		return NewMySQLInspector(db, schema), nil
	case DriverDuckDB:
		return NewDuckDBInspector(db, schema), nil
	default:
		return nil, errors.Newf(errors.ErrTypeConfig, "unsupported database driver: %s", driver).
			WithSuggestion("Use one of sqlite, postgres, pgx, mysql, duckdb")
	}
}

// introspectTable assembles one TableSchema from the inspector's per-table queries
func introspectTable(ctx context.Context, insp Inspector, name string) (*types.TableSchema, error) {
	columns, err := insp.ListColumns(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s has no visible columns", name)
	}

	pk, err := insp.PrimaryKey(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("primary key: %w", err)
	}

	indexes, err := insp.ListIndexes(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("indexes: %w", err)
	}

	fks, err := insp.ListForeignKeys(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("foreign keys: %w", err)
	}

	return &types.TableSchema{
		Name:        name,
		Columns:     columns,
		PrimaryKey:  pk,
		ForeignKeys: fks,
		Indexes:     indexes,
	}, nil
}

// queryStrings runs a single-column query and collects the values
func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string

	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}

		out = append(out, s)
	}

	return out, rows.Err()
}

// indexRow is one (index, column) pair in key order
type indexRow struct {
	name   string
	unique bool
	column string
}

// groupIndexes folds ordered index rows into IndexSpecs
func groupIndexes(rows []indexRow) map[string]types.IndexSpec {
	out := make(map[string]types.IndexSpec)

	for _, r := range rows {
		spec := out[r.name]
		spec.Unique = r.unique
		spec.Columns = append(spec.Columns, r.column)
		out[r.name] = spec
	}

	return out
}

func nullableDefault(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}

	s := v.String

	return &s
}
