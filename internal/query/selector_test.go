package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kyleking/sqlpilot/internal/testutil"
	"github.com/kyleking/sqlpilot/internal/types"
)

func names(tables []*types.TableSchema) []string {
	out := make([]string, len(tables))
	for i, t := range tables {
		out[i] = t.Name
	}

	return out
}

func TestSelect(t *testing.T) {
	schema := testutil.ShopSchema()

	tests := []struct {
		name     string
		prompt   string
		explicit []string
		expected []string
		tier     SelectTier
	}{
		{
			name:     "explicit tables ignore the prompt",
			prompt:   "show all users and posts",
			explicit: []string{"orders"},
			expected: []string{"orders"},
			tier:     TierExplicit,
		},
		{
			name:     "explicit tables keep caller order and drop unknown names",
			prompt:   "anything",
			explicit: []string{"orders", "ghosts", "USERS"},
			expected: []string{"orders", "users"},
			tier:     TierExplicit,
		},
		{
			name:     "table name",
			prompt:   "list Posts from last week",
			expected: []string{"posts"},
			tier:     TierTableName,
		},
		{
			name:     "singular table name",
			prompt:   "find the user named bob",
			expected: []string{"users"},
			tier:     TierTableName,
		},
		{
			name:     "tables returned in schema order",
			prompt:   "orders per user",
			expected: []string{"users", "orders"},
			tier:     TierTableName,
		},
		{
			name:     "column name",
			prompt:   "what is the biggest total_cents",
			expected: []string{"orders"},
			tier:     TierColumnName,
		},
		{
			name:     "column shared by several tables",
			prompt:   "sort by created_at",
			expected: []string{"users", "posts"},
			tier:     TierColumnName,
		},
		{
			name:     "substring is not a match",
			prompt:   "show superusers and postscripts",
			expected: []string{"users", "posts", "orders"},
			tier:     TierWholeSchema,
		},
		{
			name:     "nothing matches",
			prompt:   "how is the weather",
			expected: []string{"users", "posts", "orders"},
			tier:     TierWholeSchema,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tables, tier := SelectWithTier(schema, tt.prompt, tt.explicit)
			assert.Equal(t, tt.expected, names(tables))
			assert.Equal(t, tt.tier, tier)
		})
	}
}

func TestSelectExplicitUnknownTablesIsEmpty(t *testing.T) {
	assert.Empty(t, Select(testutil.ShopSchema(), "show users", []string{"ghosts"}))
}

func TestSelectNilSchema(t *testing.T) {
	assert.Empty(t, Select(nil, "show users", nil))
}
