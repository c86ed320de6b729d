package cmd

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/sqlpilot/internal/cache"
	"github.com/kyleking/sqlpilot/internal/catalog"
	"github.com/kyleking/sqlpilot/internal/config"
	"github.com/kyleking/sqlpilot/internal/errors"
	"github.com/kyleking/sqlpilot/internal/executor"
	"github.com/kyleking/sqlpilot/internal/fallback"
	"github.com/kyleking/sqlpilot/internal/formatter"
	"github.com/kyleking/sqlpilot/internal/llm"
	"github.com/kyleking/sqlpilot/internal/logging"
	"github.com/kyleking/sqlpilot/internal/query"
	"github.com/kyleking/sqlpilot/internal/sqlguard"
)

// app holds the components one command invocation works with
type app struct {
	cfg       *config.Config
	db        *sql.DB
	catalog   *catalog.Catalog
	generator *query.Generator
	gate      *executor.Gate
	rules     *sqlguard.Rules
	store     cache.Cache
	formatter *formatter.Formatter
	out       io.Writer
	// interactive enables the spinner while waiting on the agent
	interactive bool
}

// openApp connects to the configured database and provider
func openApp(ctx context.Context, cmd *cli.Command) (*app, error) {
	cfg := getConfigFromContext(ctx)
	if cfg == nil {
		return nil, errors.NewConfigError("configuration not loaded", "")
	}

	db, err := catalog.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	store := openCache(ctx, cfg.Cache)

	var agent llm.Service
	if !strings.EqualFold(cfg.LLM.Provider, llm.ProviderNone) {
		agent = llm.NewManagerFromConfig(cfg.LLM)
	}

	out := cmd.Root().Writer

	a, err := newApp(cfg, db, agent, store, out)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a.interactive = isTerminal(out)

	return a, nil
}

// newApp wires the catalog, generator and gate over an open database
func newApp(cfg *config.Config, db *sql.DB, agent llm.Service, store cache.Cache, out io.Writer) (*app, error) {
	insp, err := catalog.NewInspector(cfg.Database.Driver, db, cfg.Database.Schema)
	if err != nil {
		return nil, err
	}

	cat := catalog.New(insp, catalog.Options{
		TTL:      config.Duration(cfg.Database.SchemaTTL, 10*time.Minute),
		Workers:  cfg.Database.IntrospectionWorkers,
		Include:  cfg.Database.IncludeTables,
		Exclude:  cfg.Database.ExcludeTables,
		Store:    store,
		StoreKey: schemaCacheKey(cfg.Database),
	})

	placeholder := fallback.Placeholder(strings.ToLower(cfg.Generation.Placeholder))
	if placeholder == "" {
		placeholder = fallback.PlaceholderForDriver(cfg.Database.Driver)
	}

	rules := sqlguard.DefaultRules()
	builder := query.ContextBuilder{
		Dialect:  dialectName(cfg.Database.Driver),
		MaxChars: cfg.Generation.MaxContextChars,
	}

	gen := query.NewGenerator(cat, agent,
		query.WithRules(rules),
		query.WithSynthesizer(fallback.New(
			fallback.WithRules(rules),
			fallback.WithPlaceholder(placeholder),
			fallback.WithLimit(cfg.Generation.DefaultLimit),
		)),
		query.WithContextBuilder(builder),
		query.WithChatOptions(llm.Options{
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		}),
	)

	gate := executor.NewGate(executor.DBQuerier{DB: db}, executor.Options{
		Timeout: config.Duration(cfg.Database.QueryTimeout, 30*time.Second),
		MaxRows: cfg.Database.MaxRows,
	})

	return &app{
		cfg:       cfg,
		db:        db,
		catalog:   cat,
		generator: gen,
		gate:      gate,
		rules:     rules,
		store:     store,
		formatter: &formatter.Formatter{Context: builder},
		out:       out,
	}, nil
}

// openCache opens the schema cache and drops expired entries. It returns nil
// when caching is disabled or the directory cannot be used.
func openCache(ctx context.Context, cfg config.CacheConfig) cache.Cache {
	if !cfg.Enabled {
		return nil
	}

	fc, err := cache.NewFileCache(cfg.Directory, cfg.MaxSizeMB, config.Duration(cfg.TTL, time.Hour))
	if err != nil {
		logging.WithError(err).Warn("schema cache unavailable, introspecting on every run")
		return nil
	}

	if _, err := fc.Cleanup(ctx); err != nil {
		logging.WithError(err).Debug("schema cache cleanup failed")
	}

	return fc
}

func (a *app) Close() error {
	return a.db.Close()
}

// schemaCacheKey identifies one database without putting the DSN on disk
func schemaCacheKey(cfg config.DatabaseConfig) string {
	sum := sha256.Sum256([]byte(strings.ToLower(cfg.Driver) + "\x00" + cfg.DSN + "\x00" + cfg.Schema))
	return "schema:" + hex.EncodeToString(sum[:])
}

// dialectName is the human name of a driver's SQL dialect
func dialectName(driver string) string {
	switch strings.ToLower(driver) {
	case catalog.DriverPostgres, catalog.DriverPgx:
		return "PostgreSQL"
	case catalog.DriverMySQL:
		return "MySQL"
	case catalog.DriverSQLite:
		return "SQLite"
	case catalog.DriverDuckDB:
		return "DuckDB"
	default:
		return ""
	}
}
