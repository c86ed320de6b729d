package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sqlpilot/internal/errors"
	"github.com/kyleking/sqlpilot/internal/formatter"
)

func ExecuteCommand() *cli.Command {
	return &cli.Command{
		Name:      "execute",
		Usage:     "Run a read-only SELECT statement",
		ArgsUsage: "<sql>",
		Description: `Run one SELECT statement against the configured database. Any other statement
is refused before the database is contacted. Bind values are passed with --arg;
name=value pairs bind named parameters and bare values bind positionally.

Examples:
  sqlpilot execute "SELECT id, email FROM users LIMIT 5"
  sqlpilot execute --arg email=ada@example.com "SELECT * FROM users WHERE email = :email"
  sqlpilot execute --arg 3 "SELECT * FROM orders WHERE user_id = ?"`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "arg", Aliases: []string{"a"}, Usage: "bind value, name=value or value"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "text", Usage: "output format: text, json, yaml"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format, err := formatter.ParseFormat(cmd.String("format"), formatter.FormatText, formatter.FormatJSON, formatter.FormatYAML)
			if err != nil {
				return err
			}

			bindings, err := parseBindings(cmd.StringSlice("arg"))
			if err != nil {
				return err
			}

			a, err := openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			return runExecute(ctx, a, strings.Join(cmd.Args().Slice(), " "), bindings, format)
		},
	}
}

func runExecute(ctx context.Context, a *app, stmt string, bindings any, format formatter.OutputFormat) error {
	rows, err := a.gate.Execute(ctx, stmt, bindings)
	if err != nil {
		return err
	}

	out, err := a.formatter.FormatResultSet(rows, format)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(a.out, out)

	return err
}

// parseBindings turns --arg values into positional or named bindings. Mixing
// the two styles is rejected.
func parseBindings(args []string) (any, error) {
	if len(args) == 0 {
		return nil, nil
	}

	named := make(map[string]any)
	positional := make([]any, 0, len(args))

	for _, arg := range args {
		if name, value, ok := strings.Cut(arg, "="); ok && isIdentifier(strings.TrimLeft(name, ":@$")) {
			named[name] = value
		} else {
			positional = append(positional, arg)
		}
	}

	switch {
	case len(named) > 0 && len(positional) > 0:
		return nil, errors.New(errors.ErrTypeValidation, "cannot mix named and positional --arg values").
			WithSuggestion("Use name=value for every --arg or for none")
	case len(named) > 0:
		return named, nil
	default:
		return positional, nil
	}
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}

	return true
}
