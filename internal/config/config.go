package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"zeptobook/internal/logger"
	"zeptobook/internal/source"
	"zeptobook/internal/storage/kv"
	"zeptobook/internal/types"
)

const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config is read from the environment, a .env file is loaded by the binaries before that
type Config struct {
	BindAddr  string
	LogLevel  slog.Level
	LogFormat string
	DebugMode bool

	Storage     string
	DatabaseURL string
	SQLitePath  string

	CatalogURL    *url.URL
	CatalogFormat types.FeedFormat
	CatalogPages  int
	CatalogTTL    time.Duration
	FetchTimeout  time.Duration
	FetchRPS      float64
	FetchRetries  int

	ClampPage bool
}

func getEnvOrDefault(key, default_ string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}

	return default_
}

func getBoolEnv(key string, default_ bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "yes", "on", "true", "1":
		return true
	case "no", "off", "false", "0":
		return false
	default:
		return default_
	}
}

func getIntEnv(key string, default_ int) (int, error) {
	raw := getEnvOrDefault(key, "")
	if raw == "" {
		return default_, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return val, nil
}

func getDurationEnv(key string, default_ time.Duration) (time.Duration, error) {
	raw := getEnvOrDefault(key, "")
	if raw == "" {
		return default_, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return val, nil
}

func Load() (*Config, error) {
	c := &Config{
		BindAddr:    getEnvOrDefault("BIND_ADDR", ":8080"),
		LogFormat:   strings.ToLower(getEnvOrDefault("LOG_FORMAT", "text")),
		DebugMode:   getBoolEnv("DEBUG_MODE", false),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  getEnvOrDefault("SQLITE_PATH", "data/zeptobook.db"),
		ClampPage:   getBoolEnv("CLAMP_PAGE", true),
	}

	err := c.LogLevel.UnmarshalText([]byte(getEnvOrDefault("LOG_LEVEL", "debug")))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL, one of debug, info, warn or error expected: %w", err)
	}

	c.Storage = strings.ToLower(getEnvOrDefault("STORAGE", ""))
	switch c.Storage {
	case "":
		c.Storage = StorageSQLite
		if c.DatabaseURL != "" {
			c.Storage = StoragePostgres
		}
	case StorageSQLite, StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("STORAGE=postgres needs DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("invalid STORAGE %q, one of sqlite, postgres or memory expected", c.Storage)
	}

	c.CatalogURL, err = url.Parse(getEnvOrDefault("CATALOG_URL", source.DefaultGutendexURL))
	if err != nil {
		return nil, fmt.Errorf("invalid CATALOG_URL: %w", err)
	}

	c.CatalogFormat, err = types.ParseFeedFormat(os.Getenv("CATALOG_FORMAT"))
	if err != nil {
		return nil, fmt.Errorf("invalid CATALOG_FORMAT: %w", err)
	}

	if c.CatalogPages, err = getIntEnv("CATALOG_PAGES", 1); err != nil {
		return nil, err
	}
	if c.FetchRetries, err = getIntEnv("FETCH_RETRIES", 3); err != nil {
		return nil, err
	}
	if c.CatalogTTL, err = getDurationEnv("CATALOG_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if c.FetchTimeout, err = getDurationEnv("FETCH_TIMEOUT", time.Minute); err != nil {
		return nil, err
	}

	c.FetchRPS, err = strconv.ParseFloat(getEnvOrDefault("FETCH_RPS", "1"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid FETCH_RPS: %w", err)
	}

	switch {
	case c.CatalogPages < 1:
		return nil, fmt.Errorf("invalid CATALOG_PAGES %d, at least 1 expected", c.CatalogPages)
	case c.FetchRetries < 0:
		return nil, fmt.Errorf("invalid FETCH_RETRIES %d, must not be negative", c.FetchRetries)
	case c.CatalogTTL < 0:
		return nil, fmt.Errorf("invalid CATALOG_TTL %s, must not be negative", c.CatalogTTL)
	case c.FetchTimeout < 0:
		return nil, fmt.Errorf("invalid FETCH_TIMEOUT %s, must not be negative", c.FetchTimeout)
	case !(c.FetchRPS >= 0):
		// also catches NaN, 0 means unlimited
		return nil, fmt.Errorf("invalid FETCH_RPS %v, must not be negative", c.FetchRPS)
	}

	return c, nil
}

// SetupLogging installs the slog default, rootPath is stripped from source file paths
func (c *Config) SetupLogging(rootPath string, requestIdKey any) error {
	return logger.SetupSLog(c.LogLevel, c.LogFormat, rootPath, requestIdKey)
}

func (c *Config) NewSource(l *slog.Logger) source.Source {
	f := source.NewFetcher(c.FetchRPS, c.FetchRetries)

	switch c.CatalogFormat {
	case types.FeedFormatOPDS:
		return &source.OPDS{Fetcher: f, Logger: l, URL: c.CatalogURL, MaxPages: c.CatalogPages}
	default:
		return &source.Gutendex{Fetcher: f, Logger: l, URL: c.CatalogURL, MaxPages: c.CatalogPages}
	}
}

// OpenStorage opens the configured key-value backend, the returned func releases it
func (c *Config) OpenStorage(ctx context.Context, l *slog.Logger) (kv.Repository, func(), error) {
	switch c.Storage {
	case StorageMemory:
		return kv.NewMemoryRepository(), func() {}, nil

	case StoragePostgres:
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}

		cfg.ConnConfig.Tracer = logger.NewPGXTracer(l)

		pg, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}

		repo := kv.NewPGXRepository(pg, l)
		err = repo.Migrate(ctx)
		if err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("failed to migrate postgres storage: %w", err)
		}

		return repo, pg.Close, nil

	default:
		repo, err := kv.NewSQLiteRepository(c.SQLitePath, l)
		if err != nil {
			return nil, nil, err
		}

		return repo, func() {
			if err := repo.Close(); err != nil {
				l.Error("Failed to close sqlite storage: " + err.Error())
			}
		}, nil
	}
}
