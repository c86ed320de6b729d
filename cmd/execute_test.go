package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/sqlpilot/internal/errors"
	"github.com/kyleking/sqlpilot/internal/formatter"
)

func TestRunExecute(t *testing.T) {
	a, out := newTestApp(t, nil)

	err := runExecute(context.Background(), a, "SELECT email FROM users WHERE name = :name", map[string]any{"name": "Ada"}, formatter.FormatText)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "ada@example.com")
	assert.NotContains(t, out.String(), "bob@example.com")
	assert.Contains(t, out.String(), "(1 rows)")
}

func TestRunExecute_Positional(t *testing.T) {
	a, out := newTestApp(t, nil)

	err := runExecute(context.Background(), a, "SELECT title FROM posts WHERE user_id = ?", []any{"1"}, formatter.FormatYAML)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "title: Hello")
}

func TestRunExecute_RefusesWrites(t *testing.T) {
	a, out := newTestApp(t, nil)

	for _, stmt := range []string{"DELETE FROM users", "SELECT 1; DELETE FROM users"} {
		err := runExecute(context.Background(), a, stmt, nil, formatter.FormatText)
		assert.True(t, errors.IsType(err, errors.ErrTypeUnsafeQuery), stmt)
		assert.Empty(t, out.String(), stmt)
	}

	var count int
	require.NoError(t, a.db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestRunExecute_DatabaseError(t *testing.T) {
	a, _ := newTestApp(t, nil)

	err := runExecute(context.Background(), a, "SELECT * FROM missing_table", nil, formatter.FormatText)
	assert.True(t, errors.IsType(err, errors.ErrTypeExecution))
}

func TestParseBindings(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected any
		wantErr  bool
	}{
		{name: "none", args: nil, expected: nil},
		{name: "positional", args: []string{"1", "bob"}, expected: []any{"1", "bob"}},
		{name: "named", args: []string{"name=bob", ":age=30"}, expected: map[string]any{"name": "bob", ":age": "30"}},
		{name: "value containing equals", args: []string{"a = b"}, expected: []any{"a = b"}},
		{name: "empty named value", args: []string{"name="}, expected: map[string]any{"name": ""}},
		{name: "mixed", args: []string{"name=bob", "30"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBindings(tt.args)
			if tt.wantErr {
				assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
