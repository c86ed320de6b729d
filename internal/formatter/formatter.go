package formatter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"github.com/kyleking/sqlpilot/internal/catalog"
	"github.com/kyleking/sqlpilot/internal/errors"
	"github.com/kyleking/sqlpilot/internal/executor"
	"github.com/kyleking/sqlpilot/internal/query"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatText    OutputFormat = "text"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatContext OutputFormat = "context" // schema only: the text sent to the agent
)

// ParseFormat validates a --format value
func ParseFormat(s string, allowed ...OutputFormat) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatText, nil
	}

	for _, a := range allowed {
		if f == a {
			return f, nil
		}
	}

	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}

	return "", errors.Newf(errors.ErrTypeValidation, "unknown format %q", s).
		WithSuggestion("Use one of: " + strings.Join(names, ", "))
}

var (
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	successColor = color.New(color.FgGreen)
	dimColor     = color.New(color.Faint)
)

// Formatter renders command results
type Formatter struct {
	// Context renders the context format of FormatSchema
	Context query.ContextBuilder
}

// NewFormatter creates a new formatter instance
func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatGeneration renders a generation result
func (f *Formatter) FormatGeneration(result *query.GenerationResult, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return marshalJSON(result)
	case FormatYAML:
		return marshalYAML(result)
	}

	var sb strings.Builder

	if !result.Success {
		sb.WriteString(errorColor.Sprint("No SQL generated: " + result.Error))
		sb.WriteString("\n")
	}

	for _, q := range result.Queries {
		sb.WriteString(q)
		sb.WriteString(";\n")
	}

	if result.Success {
		source := "keyword fallback"
		if result.IsAIGenerated {
			source = "AI generated"
			if result.Provider != "" {
				source += " via " + result.Provider
			}
		}

		sb.WriteString(dimColor.Sprintf("\n-- %s, %s", result.QueryType, source))

		if len(result.TablesUsed) > 0 {
			sb.WriteString(dimColor.Sprintf(", tables: %s", strings.Join(result.TablesUsed, ", ")))
		}

		sb.WriteString("\n")
	}

	writeWarnings(&sb, result.Warnings)

	return sb.String(), nil
}

// FormatResultSet renders query rows
func (f *Formatter) FormatResultSet(rs *executor.ResultSet, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return marshalJSON(rs)
	case FormatYAML:
		return marshalYAML(rs)
	}

	if len(rs.Rows) == 0 {
		return dimColor.Sprint("(0 rows)") + "\n", nil
	}

	data := pterm.TableData{rs.Columns}

	for _, row := range rs.Rows {
		cells := make([]string, len(rs.Columns))
		for i, col := range rs.Columns {
			cells[i] = formatValue(row[col])
		}

		data = append(data, cells)
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrTypeInternal, "failed to render table")
	}

	var sb strings.Builder

	sb.WriteString(table)
	sb.WriteString("\n")

	summary := fmt.Sprintf("(%d rows", len(rs.Rows))
	if rs.Truncated {
		summary += ", truncated"
	}

	sb.WriteString(dimColor.Sprint(summary+")") + "\n")

	return sb.String(), nil
}

// Validation combines the local rule check with the advisory verdict
type Validation struct {
	Safe     bool           `json:"safe"               yaml:"safe"`
	Reason   string         `json:"reason,omitempty"   yaml:"reason,omitempty"`
	Advisory *query.Verdict `json:"advisory,omitempty" yaml:"advisory,omitempty"`
}

// FormatValidation renders the output of the validate command
func (f *Formatter) FormatValidation(v Validation, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return marshalJSON(v)
	case FormatYAML:
		return marshalYAML(v)
	}

	var sb strings.Builder

	if v.Safe {
		sb.WriteString(successColor.Sprint("Local rules: passed"))
	} else {
		sb.WriteString(errorColor.Sprint("Local rules: rejected: " + v.Reason))
	}

	sb.WriteString("\n")

	if a := v.Advisory; a != nil {
		fmt.Fprintf(&sb, "Advisory (display only): valid=%t type=%s destructive=%t risk=%s\n",
			a.Valid, a.Type, a.IsDestructive, a.SecurityRisk)

		if a.Message != "" {
			fmt.Fprintf(&sb, "  %s\n", a.Message)
		}

		for _, s := range a.Suggestions {
			fmt.Fprintf(&sb, "  - %s\n", s)
		}
	}

	return sb.String(), nil
}

// FormatSchema renders a catalog snapshot, optionally limited to tables
func (f *Formatter) FormatSchema(snap *catalog.Snapshot, tables []string, format OutputFormat) (string, error) {
	selected := snap.Schema.Tables()
	if len(tables) > 0 {
		selected = snap.Schema.Subset(tables)
	}

	switch format {
	case FormatJSON:
		return marshalJSON(map[string]any{"tables": selected, "built_at": snap.BuiltAt, "skipped": snap.Skipped})
	case FormatYAML:
		return marshalYAML(map[string]any{"tables": selected, "built_at": snap.BuiltAt, "skipped": snap.Skipped})
	case FormatContext:
		return f.Context.Render(selected), nil
	}

	var sb strings.Builder

	for _, t := range selected {
		sb.WriteString(query.RenderTable(t))
		sb.WriteString("\n")
	}

	sb.WriteString(dimColor.Sprintf("%d tables, introspected %s", len(selected), snap.BuiltAt.Format(time.RFC3339)))
	sb.WriteString("\n")

	skipped := make([]string, 0, len(snap.Skipped))
	for _, s := range snap.Skipped {
		skipped = append(skipped, fmt.Sprintf("skipped %s: %s", s.Table, s.Error))
	}

	sort.Strings(skipped)
	writeWarnings(&sb, skipped)

	return sb.String(), nil
}

// FormatError renders an error with its suggestions
func (f *Formatter) FormatError(err error) string {
	var sb strings.Builder

	sb.WriteString(errorColor.Sprint("Error: "))
	sb.WriteString(err.Error())
	sb.WriteString("\n")

	for _, s := range errors.SuggestionsOf(err) {
		fmt.Fprintf(&sb, "  hint: %s\n", s)
	}

	return sb.String()
}

func writeWarnings(sb *strings.Builder, warnings []string) {
	if len(warnings) == 0 {
		return
	}

	sb.WriteString(warnColor.Sprint("Warnings:"))
	sb.WriteString("\n")

	for _, w := range warnings {
		sb.WriteString(warnColor.Sprint("  ! " + w))
		sb.WriteString("\n")
	}
}

// formatValue renders a scanned column value for a table cell
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return val.Format(time.RFC3339)
	case []byte:
		return string(val)
	default:
		return fmt.Sprint(val)
	}
}

// FormatStructured encodes v as JSON or YAML
func (f *Formatter) FormatStructured(v any, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return marshalJSON(v)
	case FormatYAML:
		return marshalYAML(v)
	default:
		return "", errors.Newf(errors.ErrTypeInternal, "%s is not a structured format", format)
	}
}

func marshalJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrTypeInternal, "failed to encode JSON")
	}

	return string(data) + "\n", nil
}

func marshalYAML(v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrTypeInternal, "failed to encode YAML")
	}

	return string(data), nil
}
