package catalog

import (
	"context"
	"database/sql"

	"github.com/kyleking/sqlpilot/internal/types"
)

const defaultPostgresSchema = "public"

// PostgresInspector reads pg_catalog through either the pgx or lib/pq driver
type PostgresInspector struct {
	db     *sql.DB
	schema string
}

// NewPostgresInspector creates an inspector for one Postgres schema
func NewPostgresInspector(db *sql.DB, schema string) *PostgresInspector {
	if schema == "" {
		schema = defaultPostgresSchema
	}

	return &PostgresInspector{db: db, schema: schema}
}

const pgTablesQuery = `
	SELECT c.relname
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE c.relkind IN ('r', 'p')
		AND NOT c.relispartition
		AND n.nspname = $1
	ORDER BY c.relname`

func (p *PostgresInspector) ListTables(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, p.db, pgTablesQuery, p.schema)
}

const pgColumnsQuery = `
	SELECT
		a.attname,
		format_type(a.atttypid, a.atttypmod),
		NOT a.attnotnull,
		pg_get_expr(d.adbin, d.adrelid),
		CASE WHEN a.attidentity IN ('a', 'd') THEN 'identity'
			WHEN a.attgenerated = 's' THEN 'generated'
			ELSE '' END
	FROM pg_attribute a
	JOIN pg_class c ON c.oid = a.attrelid
	JOIN pg_namespace n ON n.oid = c.relnamespace
	LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
	WHERE n.nspname = $1
		AND c.relname = $2
		AND a.attnum > 0
		AND NOT a.attisdropped
	ORDER BY a.attnum`

func (p *PostgresInspector) ListColumns(ctx context.Context, table string) ([]types.ColumnSpec, error) {
	rows, err := p.db.QueryContext(ctx, pgColumnsQuery, p.schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []types.ColumnSpec

	for rows.Next() {
		var (
			col   types.ColumnSpec
			def   sql.NullString
			extra string
		)

		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &def, &extra); err != nil {
			return nil, err
		}

		col.Default = nullableDefault(def)
		col.Extra = extra
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

const pgPrimaryKeyQuery = `
	SELECT a.attname
	FROM pg_constraint con
	JOIN pg_class c ON c.oid = con.conrelid
	JOIN pg_namespace n ON n.oid = c.relnamespace
	CROSS JOIN LATERAL unnest(con.conkey) WITH ORDINALITY AS u(attnum, ord)
	JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = u.attnum
	WHERE con.contype = 'p'
		AND n.nspname = $1
		AND c.relname = $2
	ORDER BY u.ord`

func (p *PostgresInspector) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	return queryStrings(ctx, p.db, pgPrimaryKeyQuery, p.schema, table)
}

const pgIndexesQuery = `
	SELECT i.relname, ix.indisunique, a.attname
	FROM pg_index ix
	JOIN pg_class t ON t.oid = ix.indrelid
	JOIN pg_namespace n ON n.oid = t.relnamespace
	JOIN pg_class i ON i.oid = ix.indexrelid
	CROSS JOIN LATERAL unnest(ix.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord)
	JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
	WHERE n.nspname = $1
		AND t.relname = $2
		AND NOT ix.indisprimary
	ORDER BY i.relname, k.ord`

func (p *PostgresInspector) ListIndexes(ctx context.Context, table string) (map[string]types.IndexSpec, error) {
	rows, err := p.db.QueryContext(ctx, pgIndexesQuery, p.schema, table)
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

const pgForeignKeysQuery = `
	SELECT ca.attname, pc.relname, pa.attname
	FROM pg_constraint con
	JOIN pg_class cc ON cc.oid = con.conrelid
	JOIN pg_namespace cn ON cn.oid = cc.relnamespace
	JOIN pg_class pc ON pc.oid = con.confrelid
	CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS u(child_attnum, parent_attnum, ord)
	JOIN pg_attribute ca ON ca.attrelid = cc.oid AND ca.attnum = u.child_attnum
	JOIN pg_attribute pa ON pa.attrelid = pc.oid AND pa.attnum = u.parent_attnum
	WHERE con.contype = 'f'
		AND cn.nspname = $1
		AND cc.relname = $2
	ORDER BY con.conname, u.ord`

func (p *PostgresInspector) ListForeignKeys(ctx context.Context, table string) (map[string]types.Reference, error) {
	return scanReferences(ctx, p.db, pgForeignKeysQuery, p.schema, table)
}

// scanReferences reads (column, foreign table, foreign column) rows
func scanReferences(ctx context.Context, db *sql.DB, query string, args ...any) (map[string]types.Reference, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]types.Reference)

	for rows.Next() {
		var column string

		var ref types.Reference
		if err := rows.Scan(&column, &ref.ForeignTable, &ref.ForeignColumn); err != nil {
			return nil, err
		}

		// composite keys keep the first mapping per column
		if _, exists := out[column]; !exists {
			out[column] = ref
		}
	}

	return out, rows.Err()
}
