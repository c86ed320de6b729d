package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"   // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib"   // pgx driver
	_ "github.com/lib/pq"                // Postgres driver
	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	_ "modernc.org/sqlite"               // SQLite driver

	"github.com/kyleking/sqlpilot/internal/config"
	"github.com/kyleking/sqlpilot/internal/errors"
)

// Open connects to the configured database with connection pooling and
// verifies the connection
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	driver := strings.ToLower(cfg.Driver)

	switch driver {
	case DriverSQLite, DriverPostgres, DriverPgx, DriverMySQL, DriverDuckDB:
	default:
		return nil, errors.Newf(errors.ErrTypeConfig, "unsupported database driver: %s", cfg.Driver).
			WithSuggestion("Use one of sqlite, postgres, pgx, mysql, duckdb")
	}

	if isFileDriver(driver) && cfg.DSN != "" && !strings.HasPrefix(cfg.DSN, ":memory:") && !strings.HasPrefix(cfg.DSN, "file:") {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0755); err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to create database directory")
		}
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to open database")
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(config.Duration(cfg.ConnMaxLifetime, 30*time.Minute))
	db.SetConnMaxIdleTime(config.Duration(cfg.ConnMaxIdleTime, 5*time.Minute))

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, errors.Wrap(err, errors.ErrTypeDatabase, fmt.Sprintf("failed to ping %s database", driver)).
			WithSuggestion("Check the DSN and that the database server is reachable")
	}

	return db, nil
}

func isFileDriver(driver string) bool {
	return driver == DriverSQLite || driver == DriverDuckDB
}
