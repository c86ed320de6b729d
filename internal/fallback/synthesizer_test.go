package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/sqlpilot/internal/types"
)

func postsTable() *types.TableSchema {
	return &types.TableSchema{
		Name: "posts",
		Columns: []types.ColumnSpec{
			{Name: "id", Type: "INTEGER", Extra: "autoincrement"},
			{Name: "title", Type: "TEXT"},
			{Name: "body", Type: "TEXT", Nullable: true},
			{Name: "created_at", Type: "DATETIME"},
		},
		PrimaryKey: []string{"id"},
	}
}

func logTable() *types.TableSchema {
	return &types.TableSchema{
		Name: "audit_log",
		Columns: []types.ColumnSpec{
			{Name: "actor", Type: "TEXT"},
			{Name: "action", Type: "TEXT"},
			{Name: "logged_on", Type: "date"},
		},
	}
}

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		prompt   string
		expected types.QueryType
	}{
		{"show posts", types.QueryTypeSelect},
		{"", types.QueryTypeSelect},
		{"add a post titled hello", types.QueryTypeInsert},
		{"Update the post title", types.QueryTypeUpdate},
		{"remove spam posts", types.QueryTypeDelete},
		{"borrar los comentarios", types.QueryTypeDelete},
		{"Supprimer l'article", types.QueryTypeDelete},
		{"Einträge LÖSCHEN", types.QueryTypeDelete},
		{"adicionar um usuário", types.QueryTypeInsert},
		{"actualizar el correo", types.QueryTypeUpdate},
		{"mostrar todos los usuarios", types.QueryTypeSelect},
		// ambiguous prompts stay read-only
		{"add and delete posts", types.QueryTypeSelect},
		{"find posts then delete them", types.QueryTypeSelect},
		// whole words only
		{"show the address book", types.QueryTypeSelect},
		{"list deleted_items", types.QueryTypeSelect},
	}

	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyIntent(tt.prompt))
		})
	}
}

func TestSynthesizeSelect(t *testing.T) {
	s := New()

	tests := []struct {
		name     string
		prompt   string
		expected string
	}{
		{"default limit", "show posts", "SELECT title, body FROM posts LIMIT 10"},
		{"all rows", "list all posts", "SELECT title, body FROM posts"},
		{"recency", "show the latest posts", "SELECT title, body FROM posts ORDER BY created_at DESC LIMIT 10"},
		{"recency spanish", "ver los posts recientes", "SELECT title, body FROM posts ORDER BY created_at DESC LIMIT 10"},
		{"all and recency", "every post, newest first", "SELECT title, body FROM posts ORDER BY created_at DESC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.Synthesize(tt.prompt, []*types.TableSchema{postsTable()})

			require.Equal(t, []string{tt.expected}, result.Queries)
			assert.Equal(t, types.QueryTypeSelect, result.Intent)
			assert.Equal(t, "posts", result.Table)
			assert.Empty(t, result.Warnings)
		})
	}
}

func TestSynthesizeSelectTemporalFallbackAndLimit(t *testing.T) {
	result := New(WithLimit(25)).Synthesize("most recent audit entries", []*types.TableSchema{logTable(), postsTable()})

	assert.Equal(t, []string{"SELECT actor, action, logged_on FROM audit_log ORDER BY logged_on DESC LIMIT 25"}, result.Queries)
}

func TestSynthesizeSelectOnlyManagedColumns(t *testing.T) {
	table := &types.TableSchema{
		Name:    "ticks",
		Columns: []types.ColumnSpec{{Name: "id", Type: "int"}, {Name: "created_at", Type: "timestamp"}},
	}

	result := New().Synthesize("show ticks", []*types.TableSchema{table})

	assert.Equal(t, []string{"SELECT id, created_at FROM ticks LIMIT 10"}, result.Queries)
}

func TestSynthesizeInsert(t *testing.T) {
	tests := []struct {
		style    Placeholder
		expected string
	}{
		{PlaceholderNamed, "INSERT INTO posts (title, body) VALUES (:title, :body)"},
		{PlaceholderQuestion, "INSERT INTO posts (title, body) VALUES (?, ?)"},
		{PlaceholderDollar, "INSERT INTO posts (title, body) VALUES ($1, $2)"},
	}

	for _, tt := range tests {
		t.Run(string(tt.style), func(t *testing.T) {
			result := New(WithPlaceholder(tt.style)).Synthesize("add a post", []*types.TableSchema{postsTable()})
			assert.Equal(t, []string{tt.expected}, result.Queries)
			assert.Equal(t, types.QueryTypeInsert, result.Intent)
		})
	}
}

func TestSynthesizeUpdateAndDeleteWithPrimaryKey(t *testing.T) {
	tables := []*types.TableSchema{postsTable()}

	update := New(WithPlaceholder(PlaceholderDollar)).Synthesize("update a post", tables)
	assert.Equal(t, []string{"UPDATE posts SET title = $1, body = $2 WHERE id = $3"}, update.Queries)

	del := New().Synthesize("delete a post", tables)
	assert.Equal(t, []string{"DELETE FROM posts WHERE id = :id"}, del.Queries)
}

func TestSynthesizeUpdateAndDeleteWithNamedColumn(t *testing.T) {
	tables := []*types.TableSchema{logTable()}

	del := New().Synthesize("delete audit entries by actor", tables)
	assert.Equal(t, []string{"DELETE FROM audit_log WHERE actor = :actor"}, del.Queries)

	update := New().Synthesize("change the action for an actor", tables)
	assert.Equal(t, []string{"UPDATE audit_log SET action = :action, logged_on = :logged_on WHERE actor = :actor"}, update.Queries)
}

func TestSynthesizeSkipsUnconditionedWrites(t *testing.T) {
	for _, prompt := range []string{"delete audit entries", "update audit entries"} {
		result := New().Synthesize(prompt, []*types.TableSchema{logTable()})

		assert.Empty(t, result.Queries, prompt)
		require.Len(t, result.Warnings, 1, prompt)
		assert.Contains(t, result.Warnings[0], "skipped")
	}
}

func TestSynthesizeWithoutTables(t *testing.T) {
	result := New().Synthesize("show posts", nil)

	assert.Empty(t, result.Queries)
	assert.NotEmpty(t, result.Warnings)
}

func TestPlaceholderForDriver(t *testing.T) {
	assert.Equal(t, PlaceholderDollar, PlaceholderForDriver("pgx"))
	assert.Equal(t, PlaceholderDollar, PlaceholderForDriver("Postgres"))
	assert.Equal(t, PlaceholderQuestion, PlaceholderForDriver("mysql"))
	assert.Equal(t, PlaceholderQuestion, PlaceholderForDriver("duckdb"))
	assert.Equal(t, PlaceholderNamed, PlaceholderForDriver("sqlite"))
	assert.Equal(t, PlaceholderNamed, PlaceholderForDriver(""))
}
