package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Transaction coordinator tuning. Retries apply to transient conflicts
	// only; backoff doubles from base and never exceeds the cap.
	TxMaxRetries    int `mapstructure:"TX_MAX_RETRIES"`
	TxBackoffBaseMS int `mapstructure:"TX_BACKOFF_BASE_MS"`
	TxBackoffCapMS  int `mapstructure:"TX_BACKOFF_CAP_MS"`

	// Reorder level applied to stock items created without one.
	DefaultReorderLevel int `mapstructure:"DEFAULT_REORDER_LEVEL"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("TX_MAX_RETRIES", 3)
	v.SetDefault("TX_BACKOFF_BASE_MS", 100)
	v.SetDefault("TX_BACKOFF_CAP_MS", 1000)
	v.SetDefault("DEFAULT_REORDER_LEVEL", 0)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("TX_MAX_RETRIES")
	v.BindEnv("TX_BACKOFF_BASE_MS")
	v.BindEnv("TX_BACKOFF_CAP_MS")
	v.BindEnv("DEFAULT_REORDER_LEVEL")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// TxBackoffBase returns the backoff base as a duration.
func (c *Config) TxBackoffBase() time.Duration {
	return time.Duration(c.TxBackoffBaseMS) * time.Millisecond
}

// TxBackoffCap returns the backoff ceiling as a duration.
func (c *Config) TxBackoffCap() time.Duration {
	return time.Duration(c.TxBackoffCapMS) * time.Millisecond
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.TxMaxRetries < 0 {
		return fmt.Errorf("TX_MAX_RETRIES cannot be negative, got %d", c.TxMaxRetries)
	}
	if c.TxBackoffBaseMS <= 0 {
		return fmt.Errorf("TX_BACKOFF_BASE_MS must be positive, got %d", c.TxBackoffBaseMS)
	}
	if c.TxBackoffCapMS < c.TxBackoffBaseMS {
		return fmt.Errorf("TX_BACKOFF_CAP_MS (%d) cannot be below TX_BACKOFF_BASE_MS (%d)",
			c.TxBackoffCapMS, c.TxBackoffBaseMS)
	}
	if c.DefaultReorderLevel < 0 {
		return fmt.Errorf("DEFAULT_REORDER_LEVEL cannot be negative, got %d", c.DefaultReorderLevel)
	}
	return nil
}
