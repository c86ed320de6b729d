package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sqlpilot/internal/cache"
	"github.com/kyleking/sqlpilot/internal/config"
	"github.com/kyleking/sqlpilot/internal/errors"
)

func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:        "config",
		Usage:       "Display the active configuration",
		Description: `Show the active configuration after merging the config file, .env, environment variables and command-line flags. Secrets are masked.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := getConfigFromContext(ctx)
			if err := RunConfigWithConfig(cmd.Root().Writer, cfg); err != nil {
				return err
			}

			return writeCacheStats(ctx, cmd.Root().Writer, openCache(ctx, cfg.Cache))
		},
	}
}

// writeCacheStats prints what the schema cache currently holds
func writeCacheStats(ctx context.Context, w io.Writer, store cache.Cache) error {
	if store == nil {
		return nil
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeInternal, "failed to read schema cache")
	}

	fmt.Fprintln(w, "\nCache Contents:")
	fmt.Fprintf(w, "  Location: %s\n", stats.Directory)
	fmt.Fprintf(w, "  Entries: %d\n", stats.TotalEntries)
	fmt.Fprintf(w, "  Size: %d bytes\n", stats.TotalSize)

	return nil
}

// RunConfigWithConfig prints cfg with the API key and DSN password masked
func RunConfigWithConfig(w io.Writer, cfg *config.Config) error {
	if cfg == nil {
		return errors.NewConfigError("failed to load configuration", "")
	}

	c := cfg.Redacted()

	fmt.Fprintln(w, "====================")
	fmt.Fprintln(w, "Active Configuration:")

	fmt.Fprintln(w, "\nDatabase:")
	fmt.Fprintf(w, "  Driver: %s\n", c.Database.Driver)
	fmt.Fprintf(w, "  DSN: %s\n", c.Database.DSN)

	if c.Database.Schema != "" {
		fmt.Fprintf(w, "  Schema: %s\n", c.Database.Schema)
	}

	if len(c.Database.IncludeTables) > 0 {
		fmt.Fprintf(w, "  Include Tables: %s\n", strings.Join(c.Database.IncludeTables, ", "))
	}

	if len(c.Database.ExcludeTables) > 0 {
		fmt.Fprintf(w, "  Exclude Tables: %s\n", strings.Join(c.Database.ExcludeTables, ", "))
	}

	fmt.Fprintf(w, "  Max Connections: %d\n", c.Database.MaxConnections)
	fmt.Fprintf(w, "  Query Timeout: %s\n", c.Database.QueryTimeout)
	fmt.Fprintf(w, "  Max Rows: %d\n", c.Database.MaxRows)
	fmt.Fprintf(w, "  Schema TTL: %s\n", c.Database.SchemaTTL)

	fmt.Fprintln(w, "\nLLM:")
	fmt.Fprintf(w, "  Provider: %s\n", c.LLM.Provider)

	if c.LLM.Model != "" {
		fmt.Fprintf(w, "  Model: %s\n", c.LLM.Model)
	}

	if c.LLM.APIKey != "" {
		fmt.Fprintf(w, "  API Key: %s\n", c.LLM.APIKey)
	}

	if len(c.LLM.FallbackProviders) > 0 {
		fmt.Fprintf(w, "  Fallback Providers: %s\n", strings.Join(c.LLM.FallbackProviders, ", "))
	}

	fmt.Fprintf(w, "  Retry Attempts: %d\n", c.LLM.RetryAttempts)
	fmt.Fprintf(w, "  Timeout: %s\n", c.LLM.Timeout)

	fmt.Fprintln(w, "\nGeneration:")
	fmt.Fprintf(w, "  Max Context Chars: %d\n", c.Generation.MaxContextChars)
	fmt.Fprintf(w, "  Default Limit: %d\n", c.Generation.DefaultLimit)

	if c.Generation.Placeholder != "" {
		fmt.Fprintf(w, "  Placeholder: %s\n", c.Generation.Placeholder)
	}

	fmt.Fprintln(w, "\nCache:")
	fmt.Fprintf(w, "  Enabled: %t\n", c.Cache.Enabled)
	fmt.Fprintf(w, "  Directory: %s\n", c.Cache.Directory)
	fmt.Fprintf(w, "  Max Size: %d MB\n", c.Cache.MaxSizeMB)
	fmt.Fprintf(w, "  TTL: %s\n", c.Cache.TTL)

	fmt.Fprintln(w, "\nLogging:")
	fmt.Fprintf(w, "  Level: %s\n", c.Logging.Level)
	fmt.Fprintf(w, "  Format: %s\n", c.Logging.Format)
	fmt.Fprintf(w, "  Output: %s\n", c.Logging.Output)

	if c.Logging.Output == "file" {
		fmt.Fprintf(w, "  File: %s\n", c.Logging.File)
	}

	fmt.Fprintf(w, "  Add Source: %t\n", c.Logging.AddSource)

	fmt.Fprintln(w, "\nDebug:")
	fmt.Fprintf(w, "  Enabled: %t\n", c.Debug.Enabled)
	fmt.Fprintf(w, "  Verbose: %t\n", c.Debug.Verbose)

	if c.Debug.Enabled {
		fmt.Fprintln(w, "\nRaw Configuration (JSON):")
		fmt.Fprintln(w, "==========================")

		jsonData, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return errors.Wrap(err, errors.ErrTypeInternal, "failed to marshal config to JSON")
		}

		fmt.Fprintln(w, string(jsonData))
	}

	return nil
}
