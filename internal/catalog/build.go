package catalog

import (
	"context"
	"path"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kyleking/sqlpilot/internal/errors"
	"github.com/kyleking/sqlpilot/internal/logging"
	"github.com/kyleking/sqlpilot/internal/types"
)

// SkippedTable records a table that could not be introspected
type SkippedTable struct {
	Table string `json:"table" yaml:"table"`
	Error string `json:"error" yaml:"error"`
}

// BuildOptions controls a single introspection pass
type BuildOptions struct {
	Workers int
	Include []string
	Exclude []string
	Logger  *logging.Logger
}

// BuildSchema introspects every visible table concurrently. A table whose
// metadata cannot be read is skipped and reported; only a failure to list
// tables fails the build.
func BuildSchema(ctx context.Context, insp Inspector, opts BuildOptions) (*types.Schema, []SkippedTable, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	names, err := insp.ListTables(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrTypeSchemaLoad, "failed to list tables")
	}

	names = filterTables(names, opts.Include, opts.Exclude)

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	tables := make([]*types.TableSchema, len(names))

	var (
		mu      sync.Mutex
		skipped []SkippedTable
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, name := range names {
		g.Go(func() error {
			table, err := introspectTable(gctx, insp, name)
			if err != nil {
				// cancellation aborts the whole build rather than skipping tables
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}

				loadErr := errors.NewSchemaLoadError(name, err)
				logger.WithError(loadErr).Warnf("skipping table %s", name)

				mu.Lock()
				skipped = append(skipped, SkippedTable{Table: name, Error: loadErr.Error()})
				mu.Unlock()

				return nil
			}

			tables[i] = table

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrTypeSchemaLoad, "schema introspection interrupted")
	}

	slices.SortFunc(skipped, func(a, b SkippedTable) int { return strings.Compare(a.Table, b.Table) })

	schema := types.NewSchema(tables...)
	logger.WithFields(map[string]any{
		"tables":  schema.Len(),
		"skipped": len(skipped),
	}).Debug("schema introspection complete")

	return schema, skipped, nil
}

// filterTables applies shell-style include and exclude patterns, matched
// case-insensitively. An empty include list admits every table.
func filterTables(names, include, exclude []string) []string {
	out := make([]string, 0, len(names))

	for _, name := range names {
		if len(include) > 0 && !matchAny(name, include) {
			continue
		}

		if matchAny(name, exclude) {
			continue
		}

		out = append(out, name)
	}

	return out
}

func matchAny(name string, patterns []string) bool {
	lower := strings.ToLower(name)

	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}

		if ok, err := path.Match(p, lower); err == nil && ok {
			return true
		}
	}

	return false
}
