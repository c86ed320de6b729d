package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sqlpilot/internal/catalog"
	"github.com/kyleking/sqlpilot/internal/errors"
	"github.com/kyleking/sqlpilot/internal/formatter"
	"github.com/kyleking/sqlpilot/internal/logging"
)

func SchemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Show the introspected database schema",
		Description: `Print the schema the generator works from. The context format shows the exact
text sent to the model. --refresh discards the cached snapshot and introspects
the database again. --clear-cache also empties the on-disk snapshot cache.`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "table", Aliases: []string{"t"}, Usage: "only show these tables"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "text", Usage: "output format: text, json, yaml, context"},
			&cli.BoolFlag{Name: "refresh", Aliases: []string{"r"}, Usage: "introspect again instead of using the cached snapshot"},
			&cli.BoolFlag{Name: "clear-cache", Usage: "remove every cached snapshot before introspecting"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format, err := formatter.ParseFormat(cmd.String("format"),
				formatter.FormatText, formatter.FormatJSON, formatter.FormatYAML, formatter.FormatContext)
			if err != nil {
				return err
			}

			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			return runSchema(ctx, a, schemaOptions{
				Tables:     cmd.StringSlice("table"),
				Refresh:    cmd.Bool("refresh"),
				ClearCache: cmd.Bool("clear-cache"),
				Format:     format,
			})
		},
	}
}

type schemaOptions struct {
	Tables     []string
	Refresh    bool
	ClearCache bool
	Format     formatter.OutputFormat
}

func runSchema(ctx context.Context, a *app, opts schemaOptions) error {
	var (
		snap *catalog.Snapshot
		err  error
	)

	tables, format := opts.Tables, opts.Format

	if opts.ClearCache && a.store != nil {
		stats, err := a.store.Stats(ctx)
		if err != nil {
			return errors.Wrap(err, errors.ErrTypeInternal, "failed to read schema cache")
		}

		if err := a.store.Clear(ctx); err != nil {
			return errors.Wrap(err, errors.ErrTypeInternal, "failed to clear schema cache")
		}

		logging.WithField("entries", stats.TotalEntries).Info("cleared schema cache")
	}

	err = withSpinner(a.interactive && format == formatter.FormatText, "Introspecting schema...", func() error {
		if opts.Refresh || opts.ClearCache {
			if err := a.catalog.Invalidate(ctx); err != nil {
				return errors.Wrap(err, errors.ErrTypeSchemaLoad, "failed to drop cached schema")
			}
		}

		snap, err = a.catalog.Snapshot(ctx)

		return err
	})
	if err != nil {
		return err
	}

	if len(tables) > 0 {
		var missing []string

		for _, t := range tables {
			if snap.Schema.Table(t) == nil {
				missing = append(missing, t)
			}
		}

		if len(missing) == len(tables) {
			return errors.Newf(errors.ErrTypeNoTables, "none of the requested tables exist: %v", missing).
				WithSuggestion("Run sqlpilot schema without --table to list the available tables")
		}
	}

	out, err := a.formatter.FormatSchema(snap, tables, format)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(a.out, out)

	return err
}
