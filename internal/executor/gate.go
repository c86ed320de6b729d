// Package executor runs read-only statements behind a SELECT-only gate
package executor

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/kyleking/sqlpilot/internal/errors"
	"github.com/kyleking/sqlpilot/internal/logging"
	"github.com/kyleking/sqlpilot/internal/sqlguard"
)

// Querier runs a parameterized read statement
type Querier interface {
	Select(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// DBQuerier adapts *sql.DB to Querier
type DBQuerier struct {
	DB *sql.DB
}

// Select implements Querier
func (q DBQuerier) Select(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.DB.QueryContext(ctx, query, args...)
}

// ResultSet holds the rows of one executed statement
type ResultSet struct {
	Columns   []string         `json:"columns"             yaml:"columns"`
	Rows      []map[string]any `json:"rows"                yaml:"rows"`
	Truncated bool             `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	Duration  time.Duration    `json:"-"                   yaml:"-"`
}

// Options bounds each execution. Zero values mean no bound.
type Options struct {
	Timeout time.Duration
	MaxRows int
}

// Gate executes SELECT statements and refuses everything else
type Gate struct {
	querier Querier
	opts    Options
	logger  *logging.Logger
}

// NewGate creates a gate over querier
func NewGate(querier Querier, opts Options) *Gate {
	return &Gate{
		querier: querier,
		opts:    opts,
		logger:  logging.GetLogger(),
	}
}

// IsSelect reports whether stmt starts with the SELECT keyword
func IsSelect(stmt string) bool {
	s := strings.ToUpper(strings.TrimSpace(stmt))
	if !strings.HasPrefix(s, "SELECT") {
		return false
	}

	if len(s) == len("SELECT") {
		return true
	}

	next := s[len("SELECT")]

	return !(next == '_' || (next >= 'A' && next <= 'Z') || (next >= '0' && next <= '9'))
}

// Execute runs query with bindings. Bindings may be nil, a slice of positional
// values, or a map with string keys of named values. A statement that is not a
// single SELECT fails with unsafe_query before the database is touched; database
// failures are returned as execution errors and never retried.
func (g *Gate) Execute(ctx context.Context, query string, bindings any) (*ResultSet, error) {
	if !IsSelect(query) {
		g.logger.WithField("statement", firstWord(query)).Warn("refused non-SELECT statement")
		return nil, errors.NewUnsafeQueryError(strings.TrimSpace(query))
	}

	// drivers run every statement of a batch, so a leading SELECT proves nothing
	if !sqlguard.IsSingleStatement(query) {
		g.logger.Warn("refused statement batch")
		return nil, errors.NewUnsafeQueryError(strings.TrimSpace(query))
	}

	query = sqlguard.Clean(query)

	args, err := bindArgs(bindings)
	if err != nil {
		return nil, err
	}

	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	start := time.Now()

	rows, err := g.querier.Select(ctx, query, args...)
	if err != nil {
		return nil, executionError(err, "failed to execute query")
	}
	defer rows.Close()

	result, err := g.collect(rows)
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)

	g.logger.WithFields(map[string]any{
		"rows":      len(result.Rows),
		"truncated": result.Truncated,
		"duration":  result.Duration,
	}).Debug("executed query")

	return result, nil
}

func (g *Gate) collect(rows *sql.Rows) (*ResultSet, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, executionError(err, "failed to read result columns")
	}

	result := &ResultSet{Columns: columns, Rows: []map[string]any{}}

	for rows.Next() {
		if g.opts.MaxRows > 0 && len(result.Rows) >= g.opts.MaxRows {
			result.Truncated = true
			break
		}

		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))

		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, executionError(err, "failed to scan row")
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}

		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, executionError(err, "failed while reading rows")
	}

	return result, nil
}

// bindArgs converts bindings to driver arguments. Named values are passed in
// key order as sql.Named.
func bindArgs(bindings any) ([]any, error) {
	switch b := bindings.(type) {
	case nil:
		return nil, nil
	case []any:
		return b, nil
	case []string:
		args := make([]any, len(b))
		for i, v := range b {
			args[i] = v
		}

		return args, nil
	case map[string]any:
		keys := make([]string, 0, len(b))
		for k := range b {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		args := make([]any, len(keys))
		for i, k := range keys {
			args[i] = sql.Named(strings.TrimLeft(k, ":@$"), b[k])
		}

		return args, nil
	default:
		return reflectArgs(bindings)
	}
}

// reflectArgs handles sequences and string-keyed mappings of any element type
func reflectArgs(bindings any) ([]any, error) {
	v := reflect.ValueOf(bindings)

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			break
		}

		args := make([]any, v.Len())
		for i := range args {
			args[i] = v.Index(i).Interface()
		}

		return args, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			break
		}

		named := make(map[string]any, v.Len())

		iter := v.MapRange()
		for iter.Next() {
			named[iter.Key().String()] = iter.Value().Interface()
		}

		return bindArgs(named)
	}

	return nil, errors.Newf(errors.ErrTypeExecution, "unsupported bindings type %T", bindings).
		WithSuggestion("Pass positional values as a slice or named values as a map with string keys")
}

// executionError wraps err, lifting the server message and hint out of the
// driver error types this module registers
func executionError(err error, message string) *errors.Error {
	wrapped := errors.Wrap(err, errors.ErrTypeExecution, message)

	var (
		pqErr    *pq.Error
		pgErr    *pgconn.PgError
		mysqlErr *mysql.MySQLError
	)

	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		wrapped.Message = message + ": query timed out"
		wrapped.WithSuggestion("Narrow the query or raise database.query_timeout")
	case stderrors.As(err, &pqErr):
		wrapped.Message = fmt.Sprintf("%s: SQLSTATE %s: %s", message, pqErr.Code, pqErr.Message)
		if pqErr.Hint != "" {
			wrapped.WithSuggestion(pqErr.Hint)
		}
	case stderrors.As(err, &pgErr):
		wrapped.Message = fmt.Sprintf("%s: SQLSTATE %s: %s", message, pgErr.Code, pgErr.Message)
		if pgErr.Hint != "" {
			wrapped.WithSuggestion(pgErr.Hint)
		}
	case stderrors.As(err, &mysqlErr):
		wrapped.Message = fmt.Sprintf("%s: MySQL error %d: %s", message, mysqlErr.Number, mysqlErr.Message)
	}

	return wrapped
}

func firstWord(stmt string) string {
	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return ""
	}

	return strings.ToUpper(fields[0])
}
