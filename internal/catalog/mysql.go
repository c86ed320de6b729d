package catalog

import (
	"context"
	"database/sql"

	"github.com/kyleking/sqlpilot/internal/types"
)

// MySQLInspector reads information_schema for one database. An empty schema
// resolves to DATABASE() on the server.
type MySQLInspector struct {
	db     *sql.DB
	schema string
}

// NewMySQLInspector creates an inspector for a MySQL database
func NewMySQLInspector(db *sql.DB, schema string) *MySQLInspector {
	return &MySQLInspector{db: db, schema: schema}
}

const mysqlTablesQuery = `
	SELECT TABLE_NAME
	FROM information_schema.TABLES
	WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
		AND TABLE_TYPE = 'BASE TABLE'
	ORDER BY TABLE_NAME`

func (m *MySQLInspector) ListTables(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, m.db, mysqlTablesQuery, m.schema)
}

const mysqlColumnsQuery = `
	SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT, EXTRA
	FROM information_schema.COLUMNS
	WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
		AND TABLE_NAME = ?
	ORDER BY ORDINAL_POSITION`

func (m *MySQLInspector) ListColumns(ctx context.Context, table string) ([]types.ColumnSpec, error) {
	rows, err := m.db.QueryContext(ctx, mysqlColumnsQuery, m.schema, table)
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
			extra    sql.NullString
		)

		if err := rows.Scan(&col.Name, &col.Type, &nullable, &def, &extra); err != nil {
			return nil, err
		}

		col.Nullable = nullable == "YES"
		col.Default = nullableDefault(def)
		col.Extra = extra.String
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

const mysqlPrimaryKeyQuery = `
	SELECT COLUMN_NAME
	FROM information_schema.KEY_COLUMN_USAGE
	WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
		AND TABLE_NAME = ?
		AND CONSTRAINT_NAME = 'PRIMARY'
	ORDER BY ORDINAL_POSITION`

func (m *MySQLInspector) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	return queryStrings(ctx, m.db, mysqlPrimaryKeyQuery, m.schema, table)
}

const mysqlIndexesQuery = `
	SELECT INDEX_NAME, NON_UNIQUE = 0, COLUMN_NAME
	FROM information_schema.STATISTICS
	WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
		AND TABLE_NAME = ?
		AND INDEX_NAME <> 'PRIMARY'
	ORDER BY INDEX_NAME, SEQ_IN_INDEX`

func (m *MySQLInspector) ListIndexes(ctx context.Context, table string) (map[string]types.IndexSpec, error) {
	rows, err := m.db.QueryContext(ctx, mysqlIndexesQuery, m.schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []indexRow

	for rows.Next() {
		var r indexRow
		if err := rows.Scan(&r.name, &r.unique, &r.column); err != nil {
			return nil, err
		}

		entries = append(entries, r)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return groupIndexes(entries), nil
}

const mysqlForeignKeysQuery = `
	SELECT COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
	FROM information_schema.KEY_COLUMN_USAGE
	WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
		AND TABLE_NAME = ?
		AND REFERENCED_TABLE_NAME IS NOT NULL
	ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION`

func (m *MySQLInspector) ListForeignKeys(ctx context.Context, table string) (map[string]types.Reference, error) {
	return scanReferences(ctx, m.db, mysqlForeignKeysQuery, m.schema, table)
}
