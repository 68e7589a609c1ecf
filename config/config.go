// Package config loads storefront settings from defaults, an optional
// config file and STOREFRONT_* environment variables, in rising order of
// precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-storefront/core/features"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, so store.driver is read
// from STOREFRONT_STORE_DRIVER.
const EnvPrefix = "STOREFRONT"

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
	Query  QueryConfig  `mapstructure:"query"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	DSN           string `mapstructure:"dsn"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
	TablePrefix   string `mapstructure:"table_prefix"`
}

// QueryConfig holds the pipeline defaults for list requests.
type QueryConfig struct {
	DefaultLimit int    `mapstructure:"default_limit"`
	MaxLimit     int    `mapstructure:"max_limit"`
	DefaultSort  string `mapstructure:"default_sort"`
	VersionField string `mapstructure:"version_field"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.dsn", "file:storefront.db?_foreign_keys=on")
	v.SetDefault("store.mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo_database", "storefront")
	v.SetDefault("store.table_prefix", "")

	v.SetDefault("query.default_limit", features.DefaultLimit)
	v.SetDefault("query.max_limit", 0)
	v.SetDefault("query.default_sort", features.DefaultSort)
	v.SetDefault("query.version_field", features.DefaultVersionField)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads the configuration. An empty path skips the file; a path that
// cannot be read is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings Load cannot default.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the sqlite driver")
		}
	case DriverMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			return fmt.Errorf("store.mongo_uri and store.mongo_database are required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Query.DefaultLimit < 1 {
		return fmt.Errorf("query.default_limit must be positive, got %d", c.Query.DefaultLimit)
	}
	if c.Query.MaxLimit < 0 {
		return fmt.Errorf("query.max_limit cannot be negative, got %d", c.Query.MaxLimit)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// Options maps the query settings onto pipeline options.
func (q QueryConfig) Options() []features.Option {
	return []features.Option{
		features.WithDefaultLimit(q.DefaultLimit),
		features.WithMaxLimit(q.MaxLimit),
		features.WithDefaultSort(q.DefaultSort),
		features.WithVersionField(q.VersionField),
	}
}

// NewLogger builds a zap logger at the configured level. Development mode
// uses the console encoder.
func NewLogger(c LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
