package catalog

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"github.com/kyleking/sqlpilot/internal/types"
)

const defaultDuckDBSchema = "main"

// DuckDBInspector reads information_schema and the duckdb_* metadata functions
type DuckDBInspector struct {
	db     *sql.DB
	schema string
}

// NewDuckDBInspector creates an inspector for one DuckDB schema
func NewDuckDBInspector(db *sql.DB, schema string) *DuckDBInspector {
	if schema == "" {
		schema = defaultDuckDBSchema
	}

	return &DuckDBInspector{db: db, schema: schema}
}

const duckdbTablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = ? AND table_type = 'BASE TABLE'
	ORDER BY table_name`

func (d *DuckDBInspector) ListTables(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, d.db, duckdbTablesQuery, d.schema)
}

const duckdbColumnsQuery = `
	SELECT column_name, data_type, is_nullable, column_default
	FROM information_schema.columns
	WHERE table_schema = ? AND table_name = ?
	ORDER BY ordinal_position`

func (d *DuckDBInspector) ListColumns(ctx context.Context, table string) ([]types.ColumnSpec, error) {
	rows, err := d.db.QueryContext(ctx, duckdbColumnsQuery, d.schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []types.ColumnSpec

	for rows.Next() {
		var (
			col      types.ColumnSpec
			nullable string
			def      sql.NullString
		)

		if err := rows.Scan(&col.Name, &col.Type, &nullable, &def); err != nil {
			return nil, err
		}

		col.Nullable = nullable == "YES"
		col.Default = nullableDefault(def)
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

const duckdbPrimaryKeyQuery = `
	SELECT unnest(constraint_column_names)
	FROM duckdb_constraints()
	WHERE schema_name = ? AND table_name = ? AND constraint_type = 'PRIMARY KEY'`

func (d *DuckDBInspector) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	return queryStrings(ctx, d.db, duckdbPrimaryKeyQuery, d.schema, table)
}

const duckdbIndexesQuery = `
	SELECT index_name, is_unique, sql
	FROM duckdb_indexes()
	WHERE schema_name = ? AND table_name = ? AND NOT is_primary
	ORDER BY index_name`

// indexColumnList captures the column list of a CREATE INDEX statement
var indexColumnList = regexp.MustCompile(`(?is)\bON\s+[^(]+\((.*)\)`)

func (d *DuckDBInspector) ListIndexes(ctx context.Context, table string) (map[string]types.IndexSpec, error) {
	rows, err := d.db.QueryContext(ctx, duckdbIndexesQuery, d.schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]types.IndexSpec)

	for rows.Next() {
		var (
			name   string
			unique bool
			ddl    sql.NullString
		)

		if err := rows.Scan(&name, &unique, &ddl); err != nil {
			return nil, err
		}

		out[name] = types.IndexSpec{Columns: parseIndexColumns(ddl.String), Unique: unique}
	}

	return out, rows.Err()
}

// parseIndexColumns pulls plain column names out of CREATE INDEX DDL
func parseIndexColumns(ddl string) []string {
	m := indexColumnList.FindStringSubmatch(ddl)
	if m == nil {
		return nil
	}

	var columns []string

	for _, part := range strings.Split(m[1], ",") {
		col := strings.Trim(strings.TrimSpace(part), `"`)
		if col != "" {
			columns = append(columns, col)
		}
	}

	return columns
}

const duckdbForeignKeysQuery = `
	SELECT unnest(constraint_column_names), referenced_table, unnest(referenced_column_names)
	FROM duckdb_constraints()
	WHERE schema_name = ? AND table_name = ? AND constraint_type = 'FOREIGN KEY'`

func (d *DuckDBInspector) ListForeignKeys(ctx context.Context, table string) (map[string]types.Reference, error) {
	return scanReferences(ctx, d.db, duckdbForeignKeysQuery, d.schema, table)
}
