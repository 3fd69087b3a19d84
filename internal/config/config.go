package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/drive-consolidator/internal/consolidator"
	"github.com/eugenenazirov/drive-consolidator/internal/database"
	"github.com/eugenenazirov/drive-consolidator/internal/storage"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultMaxDrives      = storage.DefaultMaxDrives
	defaultMaxCapacity    = consolidator.DefaultMaxCapacity
	defaultUnit           = "MB"
	defaultMetricsPath    = "/metrics"
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string
	LogLevel             string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	Database             database.Config
	MetricsEnabled       bool
	MetricsPath          string
	Unit                 string
	MaxDrives            int
	MaxCapacity          int
	Fleets               map[string]FleetConfig
}

// FleetConfig seeds a fleet into storage at start-up.
type FleetConfig struct {
	Used  []int `yaml:"used"`
	Total []int `yaml:"total"`
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port                 string                 `yaml:"port"`
	LogLevel             string                 `yaml:"log_level"`
	ShutdownGracePeriod  string                 `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string                 `yaml:"read_header_timeout"`
	WriteTimeout         string                 `yaml:"write_timeout"`
	IdleTimeout          string                 `yaml:"idle_timeout"`
	EnableRequestLogging *bool                  `yaml:"enable_request_logging"`
	RateLimit            yamlRateLimit          `yaml:"rate_limit"`
	Database             yamlDatabase           `yaml:"database"`
	Metrics              yamlMetrics            `yaml:"metrics"`
	Unit                 *string                `yaml:"unit"`
	MaxDrives            *int                   `yaml:"max_drives"`
	MaxCapacity          *int                   `yaml:"max_capacity"`
	Fleets               map[string]FleetConfig `yaml:"fleets"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

type yamlDatabase struct {
	Type            string `yaml:"type"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	LogLevel        string `yaml:"log_level"`
	AutoMigrate     *bool  `yaml:"auto_migrate"`
}

type yamlMetrics struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	Port           *string
	LogLevel       *string
	RateLimitRPS   *float64
	RateLimitBurst *int
	DatabaseType   *string
	DatabaseDSN    *string
	Unit           *string
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	// Apply environment variables
	applyEnvConfig(&cfg)

	// Load from YAML file if specified (overrides env)
	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	// Validate final configuration
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		LogLevel:             "info",
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		Database: database.Config{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			LogLevel:        "warn",
			AutoMigrate:     true,
		},
		MetricsEnabled: true,
		MetricsPath:    defaultMetricsPath,
		Unit:           defaultUnit,
		MaxDrives:      defaultMaxDrives,
		MaxCapacity:    defaultMaxCapacity,
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}

	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}

	durations := []struct {
		name  string
		raw   string
		field *time.Duration
	}{
		{"shutdown_grace_period", yamlCfg.ShutdownGracePeriod, &cfg.ShutdownGracePeriod},
		{"read_header_timeout", yamlCfg.ReadHeaderTimeout, &cfg.ReadHeaderTimeout},
		{"write_timeout", yamlCfg.WriteTimeout, &cfg.WriteTimeout},
		{"idle_timeout", yamlCfg.IdleTimeout, &cfg.IdleTimeout},
		{"database.conn_max_lifetime", yamlCfg.Database.ConnMaxLifetime, &cfg.Database.ConnMaxLifetime},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.field = parsed
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}

	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	db := yamlCfg.Database
	if db.Type != "" {
		cfg.Database.Type = db.Type
	}
	if db.DSN != "" {
		cfg.Database.DSN = db.DSN
	}
	if db.MaxOpenConns > 0 {
		cfg.Database.MaxOpenConns = db.MaxOpenConns
	}
	if db.MaxIdleConns > 0 {
		cfg.Database.MaxIdleConns = db.MaxIdleConns
	}
	if db.LogLevel != "" {
		cfg.Database.LogLevel = db.LogLevel
	}
	if db.AutoMigrate != nil {
		cfg.Database.AutoMigrate = *db.AutoMigrate
	}

	if yamlCfg.Metrics.Enabled != nil {
		cfg.MetricsEnabled = *yamlCfg.Metrics.Enabled
	}
	if yamlCfg.Metrics.Path != "" {
		cfg.MetricsPath = yamlCfg.Metrics.Path
	}

	if yamlCfg.Unit != nil {
		cfg.Unit = *yamlCfg.Unit
	}
	if yamlCfg.MaxDrives != nil {
		cfg.MaxDrives = *yamlCfg.MaxDrives
	}
	if yamlCfg.MaxCapacity != nil {
		cfg.MaxCapacity = *yamlCfg.MaxCapacity
	}

	if len(yamlCfg.Fleets) > 0 {
		cfg.Fleets = yamlCfg.Fleets
	}

	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Port = port
	}

	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}

	if dbType := strings.TrimSpace(os.Getenv("DATABASE_TYPE")); dbType != "" {
		cfg.Database.Type = dbType
	}

	if dsn := strings.TrimSpace(os.Getenv("DATABASE_DSN")); dsn != "" {
		cfg.Database.DSN = dsn
	}

	if enabled := strings.TrimSpace(os.Getenv("METRICS_ENABLED")); enabled != "" {
		if value, err := strconv.ParseBool(enabled); err == nil {
			cfg.MetricsEnabled = value
		}
	}

	if maxDrives := strings.TrimSpace(os.Getenv("MAX_DRIVES")); maxDrives != "" {
		if value, err := strconv.Atoi(maxDrives); err == nil && value >= 0 {
			cfg.MaxDrives = value
		}
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	if overrides.DatabaseType != nil && *overrides.DatabaseType != "" {
		cfg.Database.Type = *overrides.DatabaseType
	}

	if overrides.DatabaseDSN != nil && *overrides.DatabaseDSN != "" {
		cfg.Database.DSN = *overrides.DatabaseDSN
	}

	if overrides.Unit != nil {
		cfg.Unit = *overrides.Unit
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.MaxDrives < 0 {
		return fmt.Errorf("max drives must be >= 0")
	}
	if cfg.MaxCapacity < 0 {
		return fmt.Errorf("max capacity must be >= 0")
	}
	if cfg.MetricsEnabled && !strings.HasPrefix(cfg.MetricsPath, "/") {
		return fmt.Errorf("metrics path must start with '/', got %q", cfg.MetricsPath)
	}
	if strings.HasPrefix(cfg.MetricsPath, "/api/") {
		return fmt.Errorf("metrics path %q collides with the API", cfg.MetricsPath)
	}
	switch strings.ToLower(cfg.Database.Type) {
	case "", "sqlite", "mysql", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported database type %q", cfg.Database.Type)
	}
	return nil
}

// ParseSizes parses a comma-separated string of drive sizes into a slice of
// integers. All values must be non-negative integers.
func ParseSizes(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	sizes := make([]int, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", part)
		}
		if value < 0 {
			return nil, fmt.Errorf("size must not be negative, got %d", value)
		}
		sizes = append(sizes, value)
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no sizes provided")
	}
	return sizes, nil
}
