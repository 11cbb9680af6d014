package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends for the terminology service.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

type Config struct {
	// Server
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	Store          string   `mapstructure:"STORE"`
	DataFile       string   `mapstructure:"DATA_FILE"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	BodyLimit      string   `mapstructure:"BODY_LIMIT"`
	MetricsEnabled bool     `mapstructure:"METRICS_ENABLED"`

	// Browser
	APIBaseURL      string        `mapstructure:"API_BASE_URL"`
	SearchDebounce  time.Duration `mapstructure:"SEARCH_DEBOUNCE"`
	SearchMinLength int           `mapstructure:"SEARCH_MIN_LENGTH"`
	HTTPTimeout     time.Duration `mapstructure:"HTTP_TIMEOUT"`
	BreakerFailures uint32        `mapstructure:"BREAKER_FAILURES"`
	BreakerCooldown time.Duration `mapstructure:"BREAKER_COOLDOWN"`
	LogFile         string        `mapstructure:"LOG_FILE"`
}

var keys = []string{
	"PORT", "ENV", "STORE", "DATA_FILE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"CORS_ORIGINS", "BODY_LIMIT", "METRICS_ENABLED",
	"API_BASE_URL", "SEARCH_DEBOUNCE", "SEARCH_MIN_LENGTH", "HTTP_TIMEOUT",
	"BREAKER_FAILURES", "BREAKER_COOLDOWN", "LOG_FILE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE", StoreFile)
	v.SetDefault("DATA_FILE", "data/terminology_data.json")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("METRICS_ENABLED", true)

	v.SetDefault("API_BASE_URL", "http://127.0.0.1:8000")
	v.SetDefault("SEARCH_DEBOUNCE", "300ms")
	v.SetDefault("SEARCH_MIN_LENGTH", 2)
	v.SetDefault("HTTP_TIMEOUT", "0s")
	v.SetDefault("BREAKER_FAILURES", 5)
	v.SetDefault("BREAKER_COOLDOWN", "30s")
	v.SetDefault("LOG_FILE", "terminology-browser.log")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if origins := v.GetString("CORS_ORIGINS"); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// UsesPostgres reports whether terms are served from the database rather than the JSON file.
func (c *Config) UsesPostgres() bool {
	return c.Store == StorePostgres
}

// Validate checks that the configuration is usable by either binary.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreFile:
		if c.DataFile == "" {
			return fmt.Errorf("DATA_FILE is required when STORE is %q", StoreFile)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE is %q", StorePostgres)
		}
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StoreFile, StorePostgres, c.Store)
	}

	if c.SearchMinLength < 1 {
		return fmt.Errorf("SEARCH_MIN_LENGTH must be at least 1, got %d", c.SearchMinLength)
	}
	if c.SearchDebounce < 0 {
		return fmt.Errorf("SEARCH_DEBOUNCE must not be negative")
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("HTTP_TIMEOUT must not be negative")
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	return nil
}
