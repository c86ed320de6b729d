package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sqlpilot/internal/errors"
	"github.com/kyleking/sqlpilot/internal/formatter"
	"github.com/kyleking/sqlpilot/internal/llm"
	"github.com/kyleking/sqlpilot/internal/query"
	"github.com/kyleking/sqlpilot/internal/sqlguard"
)

func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Screen a statement with the local rules and ask the model for an opinion",
		ArgsUsage: "<sql>",
		Description: `Check one statement against the local rule set and, unless --local is given,
ask the configured model for an advisory verdict. The advisory verdict is shown
for information only and never changes what execute accepts.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "local", Usage: "skip the advisory model call"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "text", Usage: "output format: text, json, yaml"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format, err := formatter.ParseFormat(cmd.String("format"), formatter.FormatText, formatter.FormatJSON, formatter.FormatYAML)
			if err != nil {
				return err
			}

			cfg := getConfigFromContext(ctx)
			if cfg == nil {
				return errors.NewConfigError("configuration not loaded", "")
			}

			var agent llm.Service
			if !cmd.Bool("local") && !strings.EqualFold(cfg.LLM.Provider, llm.ProviderNone) {
				agent = llm.NewManagerFromConfig(cfg.LLM)
			}

			out := cmd.Root().Writer
			a := &app{
				cfg:         cfg,
				rules:       sqlguard.DefaultRules(),
				generator:   query.NewGenerator(nil, agent),
				formatter:   formatter.NewFormatter(),
				out:         out,
				interactive: isTerminal(out),
			}

			return runValidate(ctx, a, strings.Join(cmd.Args().Slice(), " "), agent != nil, format)
		},
	}
}

func runValidate(ctx context.Context, a *app, stmt string, advisory bool, format formatter.OutputFormat) error {
	stmt = sqlguard.Clean(stmt)
	if stmt == "" {
		return errors.New(errors.ErrTypeValidation, "no statement given").
			WithSuggestion(`Pass the statement as an argument: sqlpilot validate "SELECT 1"`)
	}

	v := formatter.Validation{Safe: true}

	if err := a.rules.Validate(stmt); err != nil {
		v.Safe = false
		v.Reason = errors.MessageOf(err)
	}

	if advisory {
		_ = withSpinner(a.interactive && format == formatter.FormatText, "Asking for an advisory verdict...", func() error {
			v.Advisory = a.generator.ValidateAdvisory(ctx, stmt)
			return nil
		})
	}

	out, err := a.formatter.FormatValidation(v, format)
	if err != nil {
		return err
	}

	fmt.Fprint(a.out, out)

	if !v.Safe {
		return errReported
	}

	return nil
}
