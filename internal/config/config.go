package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Import   ImportConfig   `mapstructure:"import"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// DatabaseConfig selects the store. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	Path       string `mapstructure:"path"`
	URL        string `mapstructure:"url"`
	Migrations string `mapstructure:"migrations"`
}

type ImportConfig struct {
	Provider          string `mapstructure:"provider"`
	Workers           int    `mapstructure:"workers"`
	AnomalyThreshold  string `mapstructure:"anomaly_threshold"`
	SuggestCategories bool   `mapstructure:"suggest_categories"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// MetricsConfig enables the /metrics listener when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Threshold parses AnomalyThreshold.
func (c ImportConfig) Threshold() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.AnomalyThreshold)
	if err != nil {
		return decimal.Zero, fmt.Errorf("import.anomaly_threshold: %w", err)
	}
	return d, nil
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for postgres")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Import.Workers < 1 {
		return fmt.Errorf("import.workers must be positive, got %d", c.Import.Workers)
	}
	if _, err := c.Import.Threshold(); err != nil {
		return err
	}
	return nil
}

func defaultDir(kind string) string {
	return filepath.Join(os.Getenv("HOME"), kind, "stmtsync")
}

// Path returns the config file location: STMTSYNC_CONFIG or
// ~/.config/stmtsync/config.toml.
func Path() string {
	if p := os.Getenv("STMTSYNC_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(defaultDir(".config"), "config.toml")
}

// Load reads configuration from a .env file, the config file and env.
// Env var overrides use prefix STMTSYNC_.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "stmtsync", "stmtsync.db"))
	v.SetDefault("database.url", "")
	v.SetDefault("database.migrations", "internal/database/migrations")
	v.SetDefault("import.provider", "pdf")
	v.SetDefault("import.workers", 4)
	v.SetDefault("import.anomaly_threshold", "0.5")
	v.SetDefault("import.suggest_categories", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.addr", "")

	v.SetConfigType("toml")
	v.SetConfigFile(Path())

	v.SetEnvPrefix("STMTSYNC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	if err := v.ReadInConfig(); err != nil && !missingConfig(err) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

func missingConfig(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound)
}

// Save writes cfg to Path, creating the config directory if needed.
func Save(cfg Config) error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.driver", cfg.Database.Driver)
	v.Set("database.path", cfg.Database.Path)
	v.Set("database.url", cfg.Database.URL)
	v.Set("database.migrations", cfg.Database.Migrations)
	v.Set("import.provider", cfg.Import.Provider)
	v.Set("import.workers", cfg.Import.Workers)
	v.Set("import.anomaly_threshold", cfg.Import.AnomalyThreshold)
	v.Set("import.suggest_categories", cfg.Import.SuggestCategories)
	v.Set("log.level", cfg.Log.Level)
	v.Set("metrics.addr", cfg.Metrics.Addr)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
