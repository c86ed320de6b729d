package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable the config reads
const EnvPrefix = "SQLPILOT_"

// noDefaultTag is a tag name no field carries, so overlay parsing skips envDefault
const noDefaultTag = "envNoDefault"

// Config represents the application configuration
type Config struct {
	Database   DatabaseConfig   `json:"database"`
	LLM        LLMConfig        `json:"llm"`
	Generation GenerationConfig `json:"generation"`
	Cache      CacheConfig      `json:"cache"`
	Logging    LoggingConfig    `json:"logging"`
	Debug      DebugConfig      `json:"debug"`
}

// DatabaseConfig represents the target database and its pool settings
type DatabaseConfig struct {
	Driver               string   `json:"driver"                env:"DB_DRIVER"                envDefault:"sqlite"` // sqlite, postgres, pgx, mysql, duckdb
	DSN                  string   `json:"dsn"                   env:"DB_DSN"                   envDefault:"~/.config/sqlpilot/sqlpilot.db"`
	Schema               string   `json:"schema"                env:"DB_SCHEMA"` // empty selects the driver default (public, current database, main)
	IncludeTables        []string `json:"include_tables"        env:"DB_INCLUDE_TABLES"        envSeparator:","`
	ExcludeTables        []string `json:"exclude_tables"        env:"DB_EXCLUDE_TABLES"        envSeparator:","`
	MaxConnections       int      `json:"max_connections"       env:"DB_MAX_CONNECTIONS"       envDefault:"10"`
	MaxIdleConns         int      `json:"max_idle_conns"        env:"DB_MAX_IDLE_CONNS"        envDefault:"5"`
	ConnMaxLifetime      string   `json:"conn_max_lifetime"     env:"DB_CONN_MAX_LIFETIME"     envDefault:"30m"`
	ConnMaxIdleTime      string   `json:"conn_max_idle_time"    env:"DB_CONN_MAX_IDLE_TIME"    envDefault:"5m"`
	QueryTimeout         string   `json:"query_timeout"         env:"DB_QUERY_TIMEOUT"         envDefault:"30s"`
	MaxRows              int      `json:"max_rows"              env:"DB_MAX_ROWS"              envDefault:"1000"`
	SchemaTTL            string   `json:"schema_ttl"            env:"DB_SCHEMA_TTL"            envDefault:"10m"`
	IntrospectionWorkers int      `json:"introspection_workers" env:"DB_INTROSPECTION_WORKERS" envDefault:"4"`
}

// LLMConfig represents the prompting agent provider settings
type LLMConfig struct {
	Provider          string   `json:"provider"           env:"LLM_PROVIDER"           envDefault:"openai"` // openai, anthropic, ollama, none
	Model             string   `json:"model"              env:"LLM_MODEL"`
	APIKey            string   `json:"api_key,omitempty"  env:"LLM_API_KEY"`
	BaseURL           string   `json:"base_url,omitempty" env:"LLM_BASE_URL"`
	FallbackProviders []string `json:"fallback_providers" env:"LLM_FALLBACK_PROVIDERS" envSeparator:","`
	RetryAttempts     int      `json:"retry_attempts"     env:"LLM_RETRY_ATTEMPTS"     envDefault:"2"`
	RetryDelay        string   `json:"retry_delay"        env:"LLM_RETRY_DELAY"        envDefault:"2s"`
	Timeout           string   `json:"timeout"            env:"LLM_TIMEOUT"            envDefault:"60s"`
	Temperature       float64  `json:"temperature"        env:"LLM_TEMPERATURE"        envDefault:"0.1"`
	MaxTokens         int      `json:"max_tokens"         env:"LLM_MAX_TOKENS"         envDefault:"1024"`
}

// GenerationConfig tunes prompt rendering and fallback synthesis
type GenerationConfig struct {
	MaxContextChars int    `json:"max_context_chars" env:"GEN_MAX_CONTEXT_CHARS" envDefault:"24000"`
	DefaultLimit    int    `json:"default_limit"     env:"GEN_DEFAULT_LIMIT"     envDefault:"10"`
	Placeholder     string `json:"placeholder"       env:"GEN_PLACEHOLDER"` // named, question, dollar; empty derives from driver
}

// CacheConfig represents the persisted schema snapshot cache
type CacheConfig struct {
	Enabled   bool   `json:"enabled"     env:"CACHE_ENABLED"     envDefault:"true"`
	Directory string `json:"directory"   env:"CACHE_DIR"         envDefault:"~/.cache/sqlpilot"`
	TTL       string `json:"ttl"         env:"CACHE_TTL"         envDefault:"1h"`
	MaxSizeMB int    `json:"max_size_mb" env:"CACHE_MAX_SIZE_MB" envDefault:"50"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level     string `json:"level"      env:"LOG_LEVEL"      envDefault:"info"`                             // debug, info, warn, error
	Format    string `json:"format"     env:"LOG_FORMAT"     envDefault:"text"`                             // text, json
	Output    string `json:"output"     env:"LOG_OUTPUT"     envDefault:"stderr"`                           // stdout, stderr, file
	File      string `json:"file"       env:"LOG_FILE"       envDefault:"~/.config/sqlpilot/logs/app.log"` // log file path when output is file
	AddSource bool   `json:"add_source" env:"LOG_ADD_SOURCE" envDefault:"false"`                            // add source file and line info to logs
}

// DebugConfig represents debug configuration
type DebugConfig struct {
	Enabled bool `json:"enabled" env:"DEBUG"   envDefault:"false"`
	Verbose bool `json:"verbose" env:"VERBOSE" envDefault:"false"`
}

// DefaultConfig returns the configuration built from envDefault tags only
func DefaultConfig() *Config {
	cfg := &Config{}
	// An empty environment means only defaults are applied
	_ = env.ParseWithOptions(cfg, env.Options{
		Prefix:      EnvPrefix,
		Environment: map[string]string{},
	})

	return cfg
}

// LoadConfig loads configuration from file, .env, environment variables, and defaults
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides loads configuration with optional command-line flag overrides.
// Precedence, lowest first: defaults, config file, .env, environment, flags.
func LoadConfigWithOverrides(flagOverrides map[string]any) (*Config, error) {
	config := DefaultConfig()

	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if err := applyEnvironmentOverrides(config); err != nil {
		return nil, err
	}

	if flagOverrides != nil {
		if err := applyFlagOverrides(config, flagOverrides); err != nil {
			return nil, fmt.Errorf("failed to apply flag overrides: %w", err)
		}
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	config.ExpandAllPaths()

	return config, nil
}

// loadDotEnv reads .env from the working directory without overriding set variables
func loadDotEnv() error {
	path := os.Getenv(EnvPrefix + "ENV_FILE")
	if path == "" {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	return nil
}

// applyEnvironmentOverrides overlays variables that are actually set, leaving the rest untouched
func applyEnvironmentOverrides(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{
		Prefix:              EnvPrefix,
		DefaultValueTagName: noDefaultTag,
	}); err != nil {
		return fmt.Errorf("failed to parse environment variables: %w", err)
	}

	return nil
}

// loadConfigFromFile loads configuration from a JSON file
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeConfigs(config, &fileConfig)

	return nil
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]any) error {
	for key, value := range overrides {
		switch key {
		case "driver":
			if str, ok := value.(string); ok && str != "" {
				config.Database.Driver = str
			}
		case "dsn":
			if str, ok := value.(string); ok && str != "" {
				config.Database.DSN = str
			}
		case "provider":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Provider = str
			}
		case "model":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Model = str
			}
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "no-cache":
			if b, ok := value.(bool); ok && b {
				config.Cache.Enabled = false
			}
		case "verbose":
			if b, ok := value.(bool); ok {
				config.Debug.Verbose = b
			}
		case "debug":
			if b, ok := value.(bool); ok {
				config.Debug.Enabled = b
			}
		default:
			return fmt.Errorf("unknown override: %s", key)
		}
	}

	return nil
}

// mergeConfigs copies every non-zero field of source into target
func mergeConfigs(target, source *Config) {
	var mergeValues func(t, s reflect.Value)
	mergeValues = func(t, s reflect.Value) {
		if t.Kind() != s.Kind() {
			return
		}

		if t.Kind() == reflect.Struct {
			for i := range s.NumField() {
				mergeValues(t.Field(i), s.Field(i))
			}
		} else if !s.IsZero() {
			t.Set(s)
		}
	}

	mergeValues(reflect.ValueOf(target).Elem(), reflect.ValueOf(source).Elem())
}

var (
	validDrivers      = map[string]bool{"sqlite": true, "postgres": true, "pgx": true, "mysql": true, "duckdb": true}
	validProviders    = map[string]bool{"openai": true, "anthropic": true, "ollama": true, "none": true}
	validPlaceholders = map[string]bool{"": true, "named": true, "question": true, "dollar": true}
	validLogLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats   = map[string]bool{"text": true, "json": true}
	validLogOutputs   = map[string]bool{"stdout": true, "stderr": true, "file": true}
)

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	if !validDrivers[strings.ToLower(config.Database.Driver)] {
		return fmt.Errorf(
			"invalid database driver: %s (must be sqlite, postgres, pgx, mysql, or duckdb)",
			config.Database.Driver,
		)
	}

	if config.Database.DSN == "" {
		return errors.New("database dsn is required")
	}

	if !validProviders[strings.ToLower(config.LLM.Provider)] {
		return fmt.Errorf("invalid llm provider: %s", config.LLM.Provider)
	}

	for _, p := range config.LLM.FallbackProviders {
		if !validProviders[strings.ToLower(p)] {
			return fmt.Errorf("invalid llm fallback provider: %s", p)
		}
	}

	if !validPlaceholders[strings.ToLower(config.Generation.Placeholder)] {
		return fmt.Errorf(
			"invalid placeholder style: %s (must be named, question, or dollar)",
			config.Generation.Placeholder,
		)
	}

	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	durations := map[string]string{
		"database query timeout":      config.Database.QueryTimeout,
		"database conn max lifetime":  config.Database.ConnMaxLifetime,
		"database conn max idle time": config.Database.ConnMaxIdleTime,
		"database schema ttl":         config.Database.SchemaTTL,
		"llm retry delay":             config.LLM.RetryDelay,
		"llm timeout":                 config.LLM.Timeout,
		"cache ttl":                   config.Cache.TTL,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %s", name, value)
		}
	}

	if config.Database.MaxConnections <= 0 {
		return fmt.Errorf(
			"database max connections must be positive: %d",
			config.Database.MaxConnections,
		)
	}

	if config.Database.IntrospectionWorkers <= 0 {
		return fmt.Errorf(
			"introspection workers must be positive: %d",
			config.Database.IntrospectionWorkers,
		)
	}

	if config.LLM.RetryAttempts < 0 {
		return fmt.Errorf("llm retry attempts must not be negative: %d", config.LLM.RetryAttempts)
	}

	if config.Generation.DefaultLimit <= 0 {
		return fmt.Errorf("default limit must be positive: %d", config.Generation.DefaultLimit)
	}

	return nil
}

// Duration parses a validated duration field, returning fallback when unset or malformed
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}

	return d
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config) error {
	configPath := getConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Never persist secrets that came from the environment
	redacted := *config
	redacted.LLM.APIKey = ""

	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	if configPath := os.Getenv(EnvPrefix + "CONFIG"); configPath != "" {
		return expandPath(configPath)
	}

	return filepath.Join(GetConfigDir(), "config.json")
}

// expandPath expands ~ to home directory in file paths
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	// Only file-backed drivers take a filesystem path as DSN
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "duckdb":
		c.Database.DSN = expandPath(c.Database.DSN)
	}

	c.Cache.Directory = expandPath(c.Cache.Directory)
	c.Logging.File = expandPath(c.Logging.File)
}

// GetConfigDir returns the configuration directory
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".config/sqlpilot"
	}

	return filepath.Join(homeDir, ".config", "sqlpilot")
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() Config {
	out := *c
	if out.LLM.APIKey != "" {
		out.LLM.APIKey = "****"
	}

	out.Database.DSN = redactDSN(out.Database.DSN)

	return out
}

// redactDSN hides the password portion of URL-style or key=value DSNs
func redactDSN(dsn string) string {
	if at := strings.LastIndex(dsn, "@"); at > 0 {
		offset := 0
		if i := strings.Index(dsn[:at], "://"); i >= 0 {
			offset = i + len("://")
		}

		if colon := strings.Index(dsn[offset:at], ":"); colon >= 0 {
			return dsn[:offset+colon+1] + "****" + dsn[at:]
		}

		return dsn
	}

	fields := strings.Fields(dsn)
	for i, f := range fields {
		if strings.HasPrefix(strings.ToLower(f), "password=") {
			fields[i] = "password=****"
		}
	}

	if len(fields) > 1 {
		return strings.Join(fields, " ")
	}

	return dsn
}
