// Package testutil provides schema fixtures, mocks and helpers shared by tests
package testutil

import (
	"github.com/kyleking/sqlpilot/internal/types"
)

// TableOption is a functional option for configuring test tables
type TableOption func(*types.TableSchema)

// WithColumn appends a NOT NULL column
func WithColumn(name, typ string) TableOption {
	return func(t *types.TableSchema) {
		t.Columns = append(t.Columns, types.ColumnSpec{Name: name, Type: typ})
	}
}

// WithNullableColumn appends a nullable column
func WithNullableColumn(name, typ string) TableOption {
	return func(t *types.TableSchema) {
		t.Columns = append(t.Columns, types.ColumnSpec{Name: name, Type: typ, Nullable: true})
	}
}

// WithDefaultColumn appends a NOT NULL column with a default expression
func WithDefaultColumn(name, typ, def string) TableOption {
	return func(t *types.TableSchema) {
		t.Columns = append(t.Columns, types.ColumnSpec{Name: name, Type: typ, Default: &def})
	}
}

// WithIDColumn appends an auto-increment integer id and makes it the primary key
func WithIDColumn() TableOption {
	return func(t *types.TableSchema) {
		t.Columns = append(t.Columns, types.ColumnSpec{Name: "id", Type: "INTEGER", Extra: "auto_increment"})
		t.PrimaryKey = []string{"id"}
	}
}

// WithPrimaryKey sets the primary key columns
func WithPrimaryKey(columns ...string) TableOption {
	return func(t *types.TableSchema) {
		t.PrimaryKey = columns
	}
}

// WithForeignKey adds a foreign key from column to table.foreignColumn
func WithForeignKey(column, table, foreignColumn string) TableOption {
	return func(t *types.TableSchema) {
		if t.ForeignKeys == nil {
			t.ForeignKeys = make(map[string]types.Reference)
		}

		t.ForeignKeys[column] = types.Reference{ForeignTable: table, ForeignColumn: foreignColumn}
	}
}

// WithIndex adds an index
func WithIndex(name string, unique bool, columns ...string) TableOption {
	return func(t *types.TableSchema) {
		if t.Indexes == nil {
			t.Indexes = make(map[string]types.IndexSpec)
		}

		t.Indexes[name] = types.IndexSpec{Columns: columns, Unique: unique}
	}
}

// NewTable creates a table with the given options applied in order
func NewTable(name string, opts ...TableOption) *types.TableSchema {
	t := &types.TableSchema{Name: name}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// UsersTable is a users table with a unique email
func UsersTable() *types.TableSchema {
	return NewTable("users",
		WithIDColumn(),
		WithColumn("email", "VARCHAR(255)"),
		WithColumn("name", "VARCHAR(100)"),
		WithDefaultColumn("created_at", "TIMESTAMP", "CURRENT_TIMESTAMP"),
		WithIndex("idx_users_email", true, "email"),
	)
}

// PostsTable is the posts table used throughout the generation tests:
// id, title, body, created_at
func PostsTable() *types.TableSchema {
	return NewTable("posts",
		WithIDColumn(),
		WithColumn("title", "VARCHAR(200)"),
		WithNullableColumn("body", "TEXT"),
		WithColumn("created_at", "TIMESTAMP"),
	)
}

// OrdersTable references users and has no column the prompts name
func OrdersTable() *types.TableSchema {
	return NewTable("orders",
		WithIDColumn(),
		WithColumn("user_id", "INTEGER"),
		WithColumn("total_cents", "BIGINT"),
		WithColumn("placed_at", "TIMESTAMP"),
		WithForeignKey("user_id", "users", "id"),
		WithIndex("idx_orders_user_id", false, "user_id"),
	)
}

// ShopSchema returns users, posts and orders in that order
func ShopSchema() *types.Schema {
	return types.NewSchema(UsersTable(), PostsTable(), OrdersTable())
}
