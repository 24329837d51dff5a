// Package config provides environment-driven configuration for the analytics
// services. Defaults are usable out of the box; every knob can be overridden
// with an environment variable, optionally loaded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Metrics    MetricsConfig    `json:"metrics"`
	KPI        KPIConfig        `json:"kpi"`
	Trends     TrendsConfig     `json:"trends"`
	Insights   InsightsConfig   `json:"insights"`
	Reporting  ReportingConfig  `json:"reporting"`
	Cache      CacheConfig      `json:"cache"`
	Sync       SyncConfig       `json:"sync"`
	Background BackgroundConfig `json:"background"`
	Logging    LoggingConfig    `json:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"read_timeout_seconds"`
	WriteTimeout int    `json:"write_timeout_seconds"`
}

// MetricsConfig configures the unified metrics store
type MetricsConfig struct {
	ValueRingCapacity int           `json:"value_ring_capacity"`
	RefreshEvery      int           `json:"refresh_every"`
	SnapshotWindow    time.Duration `json:"snapshot_window"`
	AggregateCacheTTL time.Duration `json:"aggregate_cache_ttl"`
	ConfidenceFullAt  int           `json:"confidence_full_at"`
}

// KPIConfig configures the KPI calculator
type KPIConfig struct {
	HistoryCapacity int           `json:"history_capacity"`
	TrendLookback   time.Duration `json:"trend_lookback"`
	StableBandPct   float64       `json:"stable_band_pct"`
}

// TrendsConfig configures the trend analyzer
type TrendsConfig struct {
	MinDataPoints    int     `json:"min_data_points"`
	AnomalyZScore    float64 `json:"anomaly_z_score"`
	MaxSeasonalLag   int     `json:"max_seasonal_lag"`
	BacktestFraction float64 `json:"backtest_fraction"`
	VolatilityCV     float64 `json:"volatility_cv"`
	AnomalyAlertMin  int     `json:"anomaly_alert_min"`
}

// InsightsConfig configures the insight generator
type InsightsConfig struct {
	MaxActive       int           `json:"max_active"`
	DefaultCooldown time.Duration `json:"default_cooldown"`
}

// ReportingConfig configures report assembly
type ReportingConfig struct {
	TemplateDir string `json:"template_dir"`
	Locale      string `json:"locale"`
}

// CacheConfig configures the cache service and coordinator
type CacheConfig struct {
	Backend    string        `json:"backend"` // "redis" or "memory"
	RedisAddr  string        `json:"redis_addr"`
	RedisDB    int           `json:"redis_db"`
	DefaultTTL time.Duration `json:"default_ttl"`
}

// SyncConfig configures conflict resolution and consistency checking
type SyncConfig struct {
	DefaultPolicy     string        `json:"default_policy"`
	CheckInterval     time.Duration `json:"check_interval"`
	MaxPendingAlertAt int           `json:"max_pending_alert_at"`
}

// BackgroundConfig configures the supervised background loops
type BackgroundConfig struct {
	AggregationInterval time.Duration `json:"aggregation_interval"`
	KPIInterval         time.Duration `json:"kpi_interval"`
	TrendInterval       time.Duration `json:"trend_interval"`
	CacheStatsInterval  time.Duration `json:"cache_stats_interval"`
	CleanupInterval     time.Duration `json:"cleanup_interval"`
	IterationTimeout    time.Duration `json:"iteration_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `json:"level"`
	JSON  bool   `json:"json"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         9090,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Metrics: MetricsConfig{
			ValueRingCapacity: 10000,
			RefreshEvery:      100,
			SnapshotWindow:    5 * time.Minute,
			AggregateCacheTTL: 30 * time.Second,
			ConfidenceFullAt:  100,
		},
		KPI: KPIConfig{
			HistoryCapacity: 1000,
			TrendLookback:   7 * 24 * time.Hour,
			StableBandPct:   2.0,
		},
		Trends: TrendsConfig{
			MinDataPoints:    10,
			AnomalyZScore:    2.5,
			MaxSeasonalLag:   24,
			BacktestFraction: 0.2,
			VolatilityCV:     0.5,
			AnomalyAlertMin:  5,
		},
		Insights: InsightsConfig{
			MaxActive:       500,
			DefaultCooldown: time.Hour,
		},
		Reporting: ReportingConfig{
			TemplateDir: "",
			Locale:      "en",
		},
		Cache: CacheConfig{
			Backend:    "memory",
			RedisAddr:  "localhost:6379",
			RedisDB:    0,
			DefaultTTL: 5 * time.Minute,
		},
		Sync: SyncConfig{
			DefaultPolicy:     "last_write_wins",
			CheckInterval:     5 * time.Minute,
			MaxPendingAlertAt: 10,
		},
		Background: BackgroundConfig{
			AggregationInterval: time.Minute,
			KPIInterval:         time.Minute,
			TrendInterval:       time.Hour,
			CacheStatsInterval:  time.Minute,
			CleanupInterval:     5 * time.Minute,
			IterationTimeout:    30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
	}
}

// LoadConfig builds the configuration from defaults, .env, and environment
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := DefaultConfig()
	loadFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func loadFromEnv(config *Config) {
	config.Server.Host = getEnv("SERVER_HOST", config.Server.Host)
	config.Server.Port = getEnvInt("SERVER_PORT", config.Server.Port)
	config.Server.ReadTimeout = getEnvInt("SERVER_READ_TIMEOUT", config.Server.ReadTimeout)
	config.Server.WriteTimeout = getEnvInt("SERVER_WRITE_TIMEOUT", config.Server.WriteTimeout)

	config.Metrics.ValueRingCapacity = getEnvInt("METRICS_RING_CAPACITY", config.Metrics.ValueRingCapacity)
	config.Metrics.RefreshEvery = getEnvInt("METRICS_REFRESH_EVERY", config.Metrics.RefreshEvery)
	config.Metrics.SnapshotWindow = getEnvDuration("METRICS_SNAPSHOT_WINDOW", config.Metrics.SnapshotWindow)
	config.Metrics.AggregateCacheTTL = getEnvDuration("METRICS_AGGREGATE_CACHE_TTL", config.Metrics.AggregateCacheTTL)
	config.Metrics.ConfidenceFullAt = getEnvInt("METRICS_CONFIDENCE_FULL_AT", config.Metrics.ConfidenceFullAt)

	config.KPI.HistoryCapacity = getEnvInt("KPI_HISTORY_CAPACITY", config.KPI.HistoryCapacity)
	config.KPI.TrendLookback = getEnvDuration("KPI_TREND_LOOKBACK", config.KPI.TrendLookback)

	config.Trends.MinDataPoints = getEnvInt("TRENDS_MIN_DATA_POINTS", config.Trends.MinDataPoints)
	config.Trends.AnomalyZScore = getEnvFloat("TRENDS_ANOMALY_Z_SCORE", config.Trends.AnomalyZScore)
	config.Trends.MaxSeasonalLag = getEnvInt("TRENDS_MAX_SEASONAL_LAG", config.Trends.MaxSeasonalLag)

	config.Reporting.TemplateDir = getEnv("REPORTING_TEMPLATE_DIR", config.Reporting.TemplateDir)
	config.Reporting.Locale = getEnv("REPORTING_LOCALE", config.Reporting.Locale)

	config.Cache.Backend = getEnv("CACHE_BACKEND", config.Cache.Backend)
	config.Cache.RedisAddr = getEnv("REDIS_ADDR", config.Cache.RedisAddr)
	config.Cache.RedisDB = getEnvInt("REDIS_DB", config.Cache.RedisDB)
	config.Cache.DefaultTTL = getEnvDuration("CACHE_DEFAULT_TTL", config.Cache.DefaultTTL)

	config.Sync.DefaultPolicy = getEnv("SYNC_DEFAULT_POLICY", config.Sync.DefaultPolicy)
	config.Sync.CheckInterval = getEnvDuration("SYNC_CHECK_INTERVAL", config.Sync.CheckInterval)

	config.Background.AggregationInterval = getEnvDuration("BG_AGGREGATION_INTERVAL", config.Background.AggregationInterval)
	config.Background.KPIInterval = getEnvDuration("BG_KPI_INTERVAL", config.Background.KPIInterval)
	config.Background.TrendInterval = getEnvDuration("BG_TREND_INTERVAL", config.Background.TrendInterval)
	config.Background.IterationTimeout = getEnvDuration("BG_ITERATION_TIMEOUT", config.Background.IterationTimeout)

	config.Logging.Level = getEnv("ANALYTICS_LOG_LEVEL", config.Logging.Level)
	config.Logging.JSON = getEnvBool("LOG_JSON", config.Logging.JSON)
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Metrics.ValueRingCapacity <= 0 {
		return errors.New("metrics ring capacity must be positive")
	}
	if c.KPI.HistoryCapacity <= 0 {
		return errors.New("kpi history capacity must be positive")
	}
	if c.Trends.MinDataPoints < 3 {
		return errors.New("trend analysis needs at least 3 data points")
	}
	if c.Trends.AnomalyZScore <= 0 {
		return errors.New("anomaly z-score threshold must be positive")
	}
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
