package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port                string `yaml:"port"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	LogLevel   string `yaml:"log_level"`
	LogFile    string `yaml:"log_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// EngineConfig represents computation engine configuration
type EngineConfig struct {
	ExecutionMode string `yaml:"execution_mode"` // auto, cpu, parallel
	Workers       int    `yaml:"workers"`        // 0 = one per CPU
	BatchSize     int    `yaml:"batch_size"`     // Max contracts per batch
}

// BumpsConfig overrides the finite-difference steps. Zero keeps the default.
type BumpsConfig struct {
	Spot float64 `yaml:"spot"`
	Time float64 `yaml:"time"`
	Rate float64 `yaml:"rate"`
}

// RatesConfig selects where the risk-free rate comes from
type RatesConfig struct {
	Source         string  `yaml:"source"` // static, treasury
	StaticRate     float64 `yaml:"static_rate"`
	TreasuryURL    string  `yaml:"treasury_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// AuditConfig represents the calculation journal configuration
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`
	Buffer  int    `yaml:"buffer"`
}

// MetricsConfig represents prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Engine  EngineConfig  `yaml:"engine"`
	Bumps   BumpsConfig   `yaml:"bumps"`
	Rates   RatesConfig   `yaml:"rates"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
}

const (
	RateSourceStatic   = "static"
	RateSourceTreasury = "treasury"
)

// Load builds the configuration from environment defaults and overlays the
// YAML file named by GREEKS_CONFIG (config.yaml when unset).
func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:                getEnv("PORT", "8080"),
			ReadTimeoutSeconds:  getEnvInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeoutSeconds: getEnvInt("SERVER_WRITE_TIMEOUT", 30),
		},
		Logging: LoggingConfig{
			LogLevel:   getEnv("LOG_LEVEL", "info"),
			LogFile:    getEnv("LOG_FILE", "greeks.log"),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 28),
			Compress:   getEnvBool("LOG_COMPRESS", false),
		},

		// Default engine configuration
		Engine: EngineConfig{
			ExecutionMode: getEnv("ENGINE_EXECUTION_MODE", "auto"),
			Workers:       getEnvInt("ENGINE_WORKERS", 0),
			BatchSize:     getEnvInt("ENGINE_BATCH_SIZE", 256),
		},
		Bumps: BumpsConfig{
			Spot: getEnvFloat("BUMP_SPOT", 0),
			Time: getEnvFloat("BUMP_TIME", 0),
			Rate: getEnvFloat("BUMP_RATE", 0),
		},
		Rates: RatesConfig{
			Source:         getEnv("RATE_SOURCE", RateSourceStatic),
			StaticRate:     getEnvFloat("RISK_FREE_RATE", 0.05),
			TreasuryURL:    getEnv("TREASURY_URL", "https://api.fiscaldata.treasury.gov/services/api/fiscal_service/v2/accounting/od/avg_interest_rates"),
			TimeoutSeconds: getEnvInt("TREASURY_TIMEOUT", 10),
		},
		Audit: AuditConfig{
			Enabled: getEnvBool("AUDIT_ENABLED", false),
			File:    getEnv("AUDIT_FILE", "audit.jsonl"),
			Buffer:  getEnvInt("AUDIT_BUFFER", 1000),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}

	if yamlCfg, switches := loadYAMLConfig(getEnv("GREEKS_CONFIG", "config.yaml")); yamlCfg != nil {
		cfg.overlay(yamlCfg)
		switches.apply(cfg)
	}

	return cfg
}

// overlay copies every non-zero YAML value over the env defaults
func (cfg *Config) overlay(y *Config) {
	if y.Server.Port != "" {
		cfg.Server.Port = y.Server.Port
	}
	if y.Server.ReadTimeoutSeconds > 0 {
		cfg.Server.ReadTimeoutSeconds = y.Server.ReadTimeoutSeconds
	}
	if y.Server.WriteTimeoutSeconds > 0 {
		cfg.Server.WriteTimeoutSeconds = y.Server.WriteTimeoutSeconds
	}

	// Logging configuration from YAML
	if y.Logging.LogLevel != "" {
		cfg.Logging.LogLevel = y.Logging.LogLevel
	}
	if y.Logging.LogFile != "" {
		cfg.Logging.LogFile = y.Logging.LogFile
	}
	if y.Logging.MaxSizeMB > 0 {
		cfg.Logging.MaxSizeMB = y.Logging.MaxSizeMB
	}
	if y.Logging.MaxBackups > 0 {
		cfg.Logging.MaxBackups = y.Logging.MaxBackups
	}
	if y.Logging.MaxAgeDays > 0 {
		cfg.Logging.MaxAgeDays = y.Logging.MaxAgeDays
	}

	// Engine configuration from YAML
	if y.Engine.ExecutionMode != "" {
		cfg.Engine.ExecutionMode = y.Engine.ExecutionMode
	}
	if y.Engine.Workers > 0 {
		cfg.Engine.Workers = y.Engine.Workers
	}
	if y.Engine.BatchSize > 0 {
		cfg.Engine.BatchSize = y.Engine.BatchSize
	}

	if y.Bumps.Spot > 0 {
		cfg.Bumps.Spot = y.Bumps.Spot
	}
	if y.Bumps.Time > 0 {
		cfg.Bumps.Time = y.Bumps.Time
	}
	if y.Bumps.Rate > 0 {
		cfg.Bumps.Rate = y.Bumps.Rate
	}

	if y.Rates.Source != "" {
		cfg.Rates.Source = y.Rates.Source
	}
	if y.Rates.TreasuryURL != "" {
		cfg.Rates.TreasuryURL = y.Rates.TreasuryURL
	}
	if y.Rates.TimeoutSeconds > 0 {
		cfg.Rates.TimeoutSeconds = y.Rates.TimeoutSeconds
	}

	if y.Audit.File != "" {
		cfg.Audit.File = y.Audit.File
	}
	if y.Audit.Buffer > 0 {
		cfg.Audit.Buffer = y.Audit.Buffer
	}

	if y.Metrics.Path != "" {
		cfg.Metrics.Path = y.Metrics.Path
	}
}

// Validate rejects values the server cannot start with
func (cfg *Config) Validate() error {
	switch strings.ToLower(cfg.Engine.ExecutionMode) {
	case "auto", "cpu", "parallel":
	default:
		return fmt.Errorf("engine.execution_mode: unknown mode %q (want auto, cpu or parallel)", cfg.Engine.ExecutionMode)
	}

	switch cfg.Rates.Source {
	case RateSourceStatic:
	case RateSourceTreasury:
		if cfg.Rates.TreasuryURL == "" {
			return fmt.Errorf("rates.treasury_url is required for the treasury source")
		}
	default:
		return fmt.Errorf("rates.source: unknown source %q (want static or treasury)", cfg.Rates.Source)
	}

	if cfg.Bumps.Spot < 0 || cfg.Bumps.Time < 0 || cfg.Bumps.Rate < 0 {
		return fmt.Errorf("bumps must not be negative: %+v", cfg.Bumps)
	}
	if cfg.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if cfg.Audit.Enabled && cfg.Audit.File == "" {
		return fmt.Errorf("audit.file is required when audit is enabled")
	}
	return nil
}

// ReadTimeout returns the server read timeout
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the server write timeout
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// Timeout returns the treasury request timeout
func (r RatesConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// yamlSwitches records values the YAML file sets explicitly, so false or a
// zero rate can override the default.
type yamlSwitches struct {
	Logging struct {
		Compress *bool `yaml:"compress"`
	} `yaml:"logging"`
	Audit struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"audit"`
	Metrics struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"metrics"`
	Rates struct {
		StaticRate *float64 `yaml:"static_rate"`
	} `yaml:"rates"`
}

func (s yamlSwitches) apply(cfg *Config) {
	if s.Logging.Compress != nil {
		cfg.Logging.Compress = *s.Logging.Compress
	}
	if s.Audit.Enabled != nil {
		cfg.Audit.Enabled = *s.Audit.Enabled
	}
	if s.Metrics.Enabled != nil {
		cfg.Metrics.Enabled = *s.Metrics.Enabled
	}
	if s.Rates.StaticRate != nil {
		cfg.Rates.StaticRate = *s.Rates.StaticRate
	}
}

func loadYAMLConfig(path string) (*Config, yamlSwitches) {
	var switches yamlSwitches

	data, err := os.ReadFile(path)
	if err != nil {
		// Could not read the file - silently return nil
		return nil, switches
	}

	var yamlCfg Config
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		// Could not parse the file - silently return nil
		return nil, switches
	}
	if err := yaml.Unmarshal(data, &switches); err != nil {
		return nil, switches
	}

	return &yamlCfg, switches
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
