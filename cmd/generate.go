package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sqlpilot/internal/errors"
	"github.com/kyleking/sqlpilot/internal/executor"
	"github.com/kyleking/sqlpilot/internal/formatter"
	"github.com/kyleking/sqlpilot/internal/logging"
	"github.com/kyleking/sqlpilot/internal/query"
)

func GenerateCommand() *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Generate SQL for a natural-language request",
		ArgsUsage: "<prompt>",
		Description: `Select the tables relevant to the request, ask the configured model for SQL and
screen the answer. When the model is unavailable or its answer is unusable a
keyword-based statement is synthesized instead and flagged as such.

Examples:
  sqlpilot generate "show the latest posts"
  sqlpilot generate --table orders "total order value per user"
  sqlpilot generate --execute --format json "list users"`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "table", Aliases: []string{"t"}, Usage: "restrict the request to these tables"},
			&cli.BoolFlag{Name: "execute", Aliases: []string{"x"}, Usage: "run the first statement when it is a SELECT"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "text", Usage: "output format: text, json, yaml"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format, err := formatter.ParseFormat(cmd.String("format"), formatter.FormatText, formatter.FormatJSON, formatter.FormatYAML)
			if err != nil {
				return err
			}

			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			return runGenerate(ctx, a, generateOptions{
				Prompt:  strings.Join(cmd.Args().Slice(), " "),
				Tables:  cmd.StringSlice("table"),
				Execute: cmd.Bool("execute"),
				Format:  format,
			})
		},
	}
}

type generateOptions struct {
	Prompt  string
	Tables  []string
	Execute bool
	Format  formatter.OutputFormat
}

// generateOutput is the structured form of generate --execute
type generateOutput struct {
	Generation *query.GenerationResult `json:"generation" yaml:"generation"`
	Rows       *executor.ResultSet     `json:"rows"       yaml:"rows"`
}

func runGenerate(ctx context.Context, a *app, opts generateOptions) error {
	var result *query.GenerationResult

	err := withSpinner(a.interactive && opts.Format == formatter.FormatText, "Generating SQL...", func() error {
		var err error
		result, err = a.generator.Generate(ctx, opts.Prompt, opts.Tables)

		return err
	})
	if err != nil {
		return err
	}

	logging.WithFields(map[string]any{
		"request_id": result.RequestID,
		"success":    result.Success,
		"ai":         result.IsAIGenerated,
	}).Debug("generation finished")

	var rows *executor.ResultSet

	if opts.Execute && result.Success {
		rows, err = a.gate.Execute(ctx, result.Queries[0], nil)
		if err != nil && !errors.IsType(err, errors.ErrTypeUnsafeQuery) {
			return err
		}

		if err != nil {
			result.Warnings = append(result.Warnings, "not executed: only SELECT statements can be run")
		}
	}

	if opts.Format != formatter.FormatText {
		var doc any = result
		if opts.Execute {
			doc = generateOutput{Generation: result, Rows: rows}
		}

		if err := writeStructured(a, doc, opts.Format); err != nil {
			return err
		}
	} else {
		out, err := a.formatter.FormatGeneration(result, opts.Format)
		if err != nil {
			return err
		}

		fmt.Fprint(a.out, out)
	}

	if rows != nil && opts.Format == formatter.FormatText {
		table, err := a.formatter.FormatResultSet(rows, opts.Format)
		if err != nil {
			return err
		}

		fmt.Fprint(a.out, "\n"+table)
	}

	if !result.Success {
		return errReported
	}

	return nil
}
