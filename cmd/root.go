package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sqlpilot/internal/config"
	"github.com/kyleking/sqlpilot/internal/formatter"
	"github.com/kyleking/sqlpilot/internal/logging"
)

type configKey struct{}

// withConfig stores the loaded configuration for subcommands
func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// getConfigFromContext returns the configuration loaded by the root Before hook
func getConfigFromContext(ctx context.Context) *config.Config {
	cfg, _ := ctx.Value(configKey{}).(*config.Config)
	return cfg
}

// overrideFlags maps global flag names to config.LoadConfigWithOverrides keys
var overrideFlags = []string{"driver", "dsn", "provider", "model", "log-level", "no-cache", "verbose", "debug"}

// NewRootCommand builds the sqlpilot command tree writing to out
func NewRootCommand(out io.Writer) *cli.Command {
	commands := []*cli.Command{
		GenerateCommand(),
		ExecuteCommand(),
		ValidateCommand(),
		SchemaCommand(),
		ConfigCommand(),
	}

	for _, c := range commands {
		c.Action = logged(c.Name, c.Action)
	}

	return &cli.Command{
		Name:  "sqlpilot",
		Usage: "Turn natural-language requests into validated SQL for a live database",
		Description: `sqlpilot introspects the configured database, asks a language model for SQL
that answers a request, screens every statement with a heuristic rule set and
falls back to keyword-based synthesis when the model is unavailable.`,
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "driver", Usage: "database driver: sqlite, postgres, pgx, mysql, duckdb"},
			&cli.StringFlag{Name: "dsn", Usage: "database connection string"},
			&cli.StringFlag{Name: "provider", Usage: "LLM provider: openai, anthropic, ollama, none"},
			&cli.StringFlag{Name: "model", Usage: "LLM model name"},
			&cli.StringFlag{Name: "log-level", Usage: "log level: debug, info, warn, error"},
			&cli.BoolFlag{Name: "no-cache", Usage: "do not read or write the schema cache"},
			&cli.BoolFlag{Name: "verbose", Usage: "verbose output"},
			&cli.BoolFlag{Name: "debug", Usage: "debug output"},
		},
		Before:   loadConfig,
		Commands: commands,
	}
}

// logged records the start, duration and outcome of a command action
func logged(name string, action cli.ActionFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		return logging.LoggerMiddleware(name, func() error {
			return action(ctx, cmd)
		})
	}
}

// loadConfig resolves configuration from file, environment and flags and
// initializes logging before any subcommand runs
func loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	overrides := make(map[string]any)

	for _, name := range overrideFlags {
		if !cmd.IsSet(name) {
			continue
		}

		switch name {
		case "no-cache", "verbose", "debug":
			overrides[name] = cmd.Bool(name)
		default:
			overrides[name] = cmd.String(name)
		}
	}

	cfg, err := config.LoadConfigWithOverrides(overrides)
	if err != nil {
		return ctx, err
	}

	if cfg.Debug.Enabled {
		cfg.Logging.Level = "debug"
	}

	if err := logging.InitializeLogger(cfg.Logging); err != nil {
		logging.SetupFallbackLogger()
		logging.WithError(err).Warn("failed to initialize logger, using fallback")
	}

	return withConfig(ctx, cfg), nil
}

// Execute runs the CLI against os.Args
func Execute() error {
	err := NewRootCommand(os.Stdout).Run(context.Background(), os.Args)
	if err != nil && !stderrors.Is(err, errReported) {
		fmt.Fprint(os.Stderr, formatter.NewFormatter().FormatError(err))
	}

	return err
}
