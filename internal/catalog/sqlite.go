package catalog

import (
	"context"
	"database/sql"
	"strings"

	"github.com/kyleking/sqlpilot/internal/types"
)

// SQLiteInspector reads sqlite_master and the pragma table-valued functions
type SQLiteInspector struct {
	db *sql.DB
}

// NewSQLiteInspector creates an inspector for the main SQLite database
func NewSQLiteInspector(db *sql.DB) *SQLiteInspector {
	return &SQLiteInspector{db: db}
}

const sqliteTablesQuery = `
	SELECT name
	FROM sqlite_master
	WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
	ORDER BY name`

func (s *SQLiteInspector) ListTables(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, s.db, sqliteTablesQuery)
}

const sqliteColumnsQuery = `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`

func (s *SQLiteInspector) ListColumns(ctx context.Context, table string) ([]types.ColumnSpec, error) {
	rows, err := s.db.QueryContext(ctx, sqliteColumnsQuery, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		columns []types.ColumnSpec
		pkCols  []int
	)

	for rows.Next() {
		var (
			col     types.ColumnSpec
			notNull int
			def     sql.NullString
			pk      int
		)

		if err := rows.Scan(&col.Name, &col.Type, &notNull, &def, &pk); err != nil {
			return nil, err
		}

		col.Nullable = notNull == 0 && pk == 0
		col.Default = nullableDefault(def)

		if pk > 0 {
			pkCols = append(pkCols, len(columns))
		}

		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// a lone INTEGER PRIMARY KEY aliases the rowid
	if len(pkCols) == 1 && strings.EqualFold(columns[pkCols[0]].Type, "INTEGER") {
		columns[pkCols[0]].Extra = "autoincrement"
	}

	return columns, nil
}

const sqlitePrimaryKeyQuery = `SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`

func (s *SQLiteInspector) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	return queryStrings(ctx, s.db, sqlitePrimaryKeyQuery, table)
}

const (
	sqliteIndexListQuery = `SELECT name, "unique" FROM pragma_index_list(?) WHERE origin <> 'pk' ORDER BY name`
	sqliteIndexInfoQuery = `SELECT name FROM pragma_index_info(?) ORDER BY seqno`
)

func (s *SQLiteInspector) ListIndexes(ctx context.Context, table string) (map[string]types.IndexSpec, error) {
	rows, err := s.db.QueryContext(ctx, sqliteIndexListQuery, table)
	if err != nil {
		return nil, err
	}

	type listed struct {
		name   string
		unique bool
	}

	var indexes []listed

	for rows.Next() {
		var l listed
		if err := rows.Scan(&l.name, &l.unique); err != nil {
			rows.Close()
			return nil, err
		}

		indexes = append(indexes, l)
	}

	err = rows.Err()
	rows.Close()

	if err != nil {
		return nil, err
	}

	out := make(map[string]types.IndexSpec, len(indexes))

	for _, idx := range indexes {
		columns, err := queryStrings(ctx, s.db, sqliteIndexInfoQuery, idx.name)
		if err != nil {
			return nil, err
		}

		out[idx.name] = types.IndexSpec{Columns: columns, Unique: idx.unique}
	}

	return out, nil
}

const sqliteForeignKeysQuery = `SELECT "from", "table", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`

func (s *SQLiteInspector) ListForeignKeys(ctx context.Context, table string) (map[string]types.Reference, error) {
	rows, err := s.db.QueryContext(ctx, sqliteForeignKeysQuery, table)
	if err != nil {
		return nil, err
	}

	type fkRow struct {
		from, table string
		to          sql.NullString
	}

	var entries []fkRow

	for rows.Next() {
		var r fkRow
		if err := rows.Scan(&r.from, &r.table, &r.to); err != nil {
			rows.Close()
			return nil, err
		}

		entries = append(entries, r)
	}

	err = rows.Err()
	rows.Close()

	if err != nil {
		return nil, err
	}

	out := make(map[string]types.Reference, len(entries))

	for _, r := range entries {
		if _, exists := out[r.from]; exists {
			continue
		}

		ref := types.Reference{ForeignTable: r.table, ForeignColumn: r.to.String}

		// REFERENCES parent without a column list targets the parent's primary key
		if !r.to.Valid || r.to.String == "" {
			pk, err := s.PrimaryKey(ctx, r.table)
			if err != nil {
				return nil, err
			}

			if len(pk) > 0 {
				ref.ForeignColumn = pk[0]
			}
		}

		out[r.from] = ref
	}

	return out, nil
}
