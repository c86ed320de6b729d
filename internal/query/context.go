package query

import (
	"fmt"
	"strings"

	"github.com/kyleking/sqlpilot/internal/types"
)

// Guidelines is appended to every rendered schema context
const Guidelines = `Guidelines:
- List the columns you need explicitly; do not use SELECT *.
- Use INNER JOIN for required relations and LEFT JOIN for optional ones.
- Always give joined tables an alias and join them with an ON clause.
- Add LIMIT 10 to a SELECT unless the request asks for a specific range or for all rows.
- Use parameter placeholders instead of literal values supplied by the user.
- Put each statement in its own fenced block starting with ` + "```sql" + `.`

// ContextBuilder renders table definitions for the prompting agent
type ContextBuilder struct {
	// Dialect is named in the header when set
	Dialect string
	// MaxChars bounds the table section. Zero disables the bound. Tables that
	// do not fit are omitted whole and listed in a trailing note.
	MaxChars int
}

// Render describes tables followed by the generation guidelines. The output
// depends only on its input.
func (b ContextBuilder) Render(tables []*types.TableSchema) string {
	var sb strings.Builder

	if b.Dialect != "" {
		fmt.Fprintf(&sb, "Database dialect: %s\n\n", b.Dialect)
	}

	var omitted []string

	used := 0

	for i, table := range tables {
		if table == nil {
			continue
		}

		block := RenderTable(table)

		// The first table is kept even when it alone exceeds the budget.
		if b.MaxChars > 0 && used > 0 && used+len(block) > b.MaxChars {
			for _, rest := range tables[i:] {
				if rest != nil {
					omitted = append(omitted, rest.Name)
				}
			}

			break
		}

		sb.WriteString(block)
		sb.WriteString("\n")

		used += len(block)
	}

	if len(omitted) > 0 {
		fmt.Fprintf(&sb, "Omitted for length: %s\n\n", strings.Join(omitted, ", "))
	}

	sb.WriteString(Guidelines)
	sb.WriteString("\n")

	return sb.String()
}

// RenderTable describes one table: columns, foreign keys and indexes
func RenderTable(table *types.TableSchema) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Table: %s\n", table.Name)
	sb.WriteString("Columns:\n")

	for _, col := range table.Columns {
		fmt.Fprintf(&sb, "  - %s %s", col.Name, col.Type)

		if col.Nullable {
			sb.WriteString(" NULL")
		} else {
			sb.WriteString(" NOT NULL")
		}

		if col.Default != nil {
			fmt.Fprintf(&sb, " DEFAULT %s", *col.Default)
		}

		if table.IsPrimaryKey(col.Name) {
			sb.WriteString(" PK")
		}

		if col.AutoIncrement() {
			sb.WriteString(" AUTO_INCREMENT")
		}

		sb.WriteString("\n")
	}

	if len(table.PrimaryKey) > 1 {
		fmt.Fprintf(&sb, "Primary key: (%s)\n", strings.Join(table.PrimaryKey, ", "))
	}

	if fks := table.ForeignKeyColumns(); len(fks) > 0 {
		sb.WriteString("Foreign keys:\n")

		for _, col := range fks {
			ref := table.ForeignKeys[col]
			fmt.Fprintf(&sb, "  - %s -> %s.%s\n", col, ref.ForeignTable, ref.ForeignColumn)
		}
	}

	if names := table.IndexNames(); len(names) > 0 {
		sb.WriteString("Indexes:\n")

		for _, name := range names {
			idx := table.Indexes[name]
			fmt.Fprintf(&sb, "  - %s (%s)", name, strings.Join(idx.Columns, ", "))

			if idx.Unique {
				sb.WriteString(" UNIQUE")
			}

			sb.WriteString("\n")
		}
	}

	return sb.String()
}
