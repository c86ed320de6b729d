package catalog

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/sqlpilot/internal/types"
)

const blogSchema = `
CREATE TABLE users (
	id INTEGER PRIMARY KEY,
	email TEXT NOT NULL,
	name TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX idx_users_email ON users (email);
CREATE TABLE posts (
	id INTEGER PRIMARY KEY,
	user_id INTEGER NOT NULL REFERENCES users (id),
	title TEXT NOT NULL,
	body TEXT
);
CREATE INDEX idx_posts_user_title ON posts (user_id, title);
CREATE TABLE tags (
	post_id INTEGER REFERENCES posts,
	label TEXT,
	PRIMARY KEY (post_id, label)
);
`

func openBlogDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	// every pooled connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(blogSchema)
	require.NoError(t, err)

	return db
}

func TestSQLiteInspector_Introspection(t *testing.T) {
	ctx := context.Background()
	insp := NewSQLiteInspector(openBlogDB(t))

	tables, err := insp.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"posts", "tags", "users"}, tables)

	columns, err := insp.ListColumns(ctx, "users")
	require.NoError(t, err)
	require.Len(t, columns, 4)
	assert.Equal(t, "id", columns[0].Name)
	assert.True(t, columns[0].AutoIncrement())
	assert.False(t, columns[0].Nullable)
	assert.Equal(t, "email", columns[1].Name)
	assert.False(t, columns[1].Nullable)
	assert.True(t, columns[2].Nullable)
	require.NotNil(t, columns[3].Default)
	assert.Equal(t, "CURRENT_TIMESTAMP", *columns[3].Default)

	indexes, err := insp.ListIndexes(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, map[string]types.IndexSpec{
		"idx_users_email": {Columns: []string{"email"}, Unique: true},
	}, indexes)

	postIndexes, err := insp.ListIndexes(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, []string{"user_id", "title"}, postIndexes["idx_posts_user_title"].Columns)
	assert.False(t, postIndexes["idx_posts_user_title"].Unique)

	fks, err := insp.ListForeignKeys(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, map[string]types.Reference{
		"user_id": {ForeignTable: "users", ForeignColumn: "id"},
	}, fks)
}

func TestSQLiteInspector_CompositeKeyAndImplicitReference(t *testing.T) {
	ctx := context.Background()
	insp := NewSQLiteInspector(openBlogDB(t))

	pk, err := insp.PrimaryKey(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, []string{"post_id", "label"}, pk)

	columns, err := insp.ListColumns(ctx, "tags")
	require.NoError(t, err)

	for _, col := range columns {
		assert.False(t, col.AutoIncrement(), col.Name)
	}

	// REFERENCES posts without a column resolves to the parent primary key
	fks, err := insp.ListForeignKeys(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, types.Reference{ForeignTable: "posts", ForeignColumn: "id"}, fks["post_id"])
}

func TestBuildSchema_SQLite(t *testing.T) {
	insp := NewSQLiteInspector(openBlogDB(t))

	schema, skipped, err := BuildSchema(context.Background(), insp, BuildOptions{Workers: 3})
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, []string{"posts", "tags", "users"}, schema.TableNames())

	posts := schema.Table("POSTS")
	require.NotNil(t, posts)
	assert.Equal(t, []string{"id"}, posts.PrimaryKey)
	assert.Equal(t, "users", posts.ForeignKeys["user_id"].ForeignTable)
}

func TestBuildSchema_IncludeExclude(t *testing.T) {
	insp := NewSQLiteInspector(openBlogDB(t))

	schema, _, err := BuildSchema(context.Background(), insp, BuildOptions{
		Include: []string{"p*", "users"},
		Exclude: []string{"USERS"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"posts"}, schema.TableNames())
}
