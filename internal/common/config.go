package common

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Policy    PolicyConfig    `yaml:"policy"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// Cron spec for the periodic analytics summary log; empty disables it.
	AnalyticsCron string `yaml:"analytics_cron"`
}

// PolicyConfig holds the confidence thresholds (0-100).
type PolicyConfig struct {
	AutoApproveMin float64 `yaml:"auto_approve_min"`
	ReviewMin      float64 `yaml:"review_min"`
}

// ArchiveConfig holds history-ledger persistence configuration.
// DSN selects the driver: postgres:// URLs use pgx, anything else is
// treated as a sqlite file path. Empty DSN keeps the ledger memory-only.
type ArchiveConfig struct {
	DSN string `yaml:"dsn"`
}

// ExtractorConfig holds the simulated extraction service configuration.
type ExtractorConfig struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
	// MinLatency/MaxLatency bound the simulated service round-trip.
	MinLatency time.Duration `yaml:"min_latency"`
	MaxLatency time.Duration `yaml:"max_latency"`
}

// AnalyticsConfig holds the cost model used for savings estimates.
type AnalyticsConfig struct {
	ManualCostPerInvoice     float64 `yaml:"manual_cost_per_invoice"`
	AutomationCostPerInvoice float64 `yaml:"automation_cost_per_invoice"`
}

// LoadConfig loads configuration from an optional YAML file (CONFIG_PATH,
// default config.yaml) with environment variables taking precedence.
func LoadConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			ShutdownTimeout: 10 * time.Second,
			AnalyticsCron:   "0 * * * *",
		},
		Policy: PolicyConfig{
			AutoApproveMin: 85,
			ReviewMin:      60,
		},
		Extractor: ExtractorConfig{
			Workers:    4,
			QueueSize:  256,
			Timeout:    time.Minute,
			MinLatency: 400 * time.Millisecond,
			MaxLatency: 2 * time.Second,
		},
		Analytics: AnalyticsConfig{
			ManualCostPerInvoice:     38.50,
			AutomationCostPerInvoice: 2.20,
		},
	}

	configPath := getEnv("CONFIG_PATH", "config.yaml")
	if data, err := os.ReadFile(configPath); err == nil {
		_ = yaml.Unmarshal(data, cfg)
	}

	cfg.Server.HTTPAddr = getEnv("HTTP_ADDR", cfg.Server.HTTPAddr)
	cfg.Server.AnalyticsCron = getEnv("ANALYTICS_CRON", cfg.Server.AnalyticsCron)
	cfg.Policy.AutoApproveMin = getEnvAsFloat64("AUTO_APPROVE_MIN", cfg.Policy.AutoApproveMin)
	cfg.Policy.ReviewMin = getEnvAsFloat64("REVIEW_MIN", cfg.Policy.ReviewMin)
	cfg.Archive.DSN = getEnv("ARCHIVE_DSN", cfg.Archive.DSN)
	cfg.Extractor.Workers = getEnvAsInt("EXTRACT_WORKERS", cfg.Extractor.Workers)
	cfg.Extractor.QueueSize = getEnvAsInt("EXTRACT_QUEUE_SIZE", cfg.Extractor.QueueSize)
	cfg.Extractor.Timeout = getEnvAsDuration("EXTRACT_TIMEOUT", cfg.Extractor.Timeout)
	cfg.Analytics.ManualCostPerInvoice = getEnvAsFloat64("MANUAL_COST_PER_INVOICE", cfg.Analytics.ManualCostPerInvoice)
	cfg.Analytics.AutomationCostPerInvoice = getEnvAsFloat64("AUTOMATION_COST_PER_INVOICE", cfg.Analytics.AutomationCostPerInvoice)

	return cfg
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Policy.AutoApproveMin < 0 || c.Policy.AutoApproveMin > 100 {
		return NewAppError("CONFIG_ERROR", "AUTO_APPROVE_MIN must be within [0,100]", ErrInvalidInput)
	}
	if c.Policy.ReviewMin < 0 || c.Policy.ReviewMin > 100 {
		return NewAppError("CONFIG_ERROR", "REVIEW_MIN must be within [0,100]", ErrInvalidInput)
	}
	if c.Policy.AutoApproveMin < c.Policy.ReviewMin {
		return NewAppError("CONFIG_ERROR", "AUTO_APPROVE_MIN must be >= REVIEW_MIN", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Analytics.ManualCostPerInvoice < c.Analytics.AutomationCostPerInvoice {
		return NewAppError("CONFIG_ERROR", "manual cost below automation cost makes savings negative", ErrInvalidInput)
	}
	return nil
}
