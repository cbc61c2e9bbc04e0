package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the recommendation service
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	Cache      CacheConfig      `yaml:"cache"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Provider   ProviderConfig   `yaml:"provider"`
	Politeness PolitenessConfig `yaml:"politeness"`
	Breaker    BreakerConfig    `yaml:"breaker"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	RateLimit      int           `yaml:"rate_limit"` // requests per minute per IP, 0 disables
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DatasetConfig describes where the corpus is loaded from
type DatasetConfig struct {
	Driver        string `yaml:"driver"` // csv or sqlite
	Path          string `yaml:"path"`
	DiscoveredDir string `yaml:"discovered_dir"` // empty disables persistence of looked-up items
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// EnrichmentConfig controls poster lookups
type EnrichmentConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Workers       int           `yaml:"workers"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
	CacheSize     int           `yaml:"cache_size"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// ProviderConfig selects the external movie catalogue
type ProviderConfig struct {
	Name         string `yaml:"name"` // tmdb, tvmaze or none
	BaseURL      string `yaml:"base_url"`
	APIKey       string `yaml:"api_key"`
	ImageBaseURL string `yaml:"image_base_url"`
}

// PolitenessConfig holds outbound request etiquette
type PolitenessConfig struct {
	MinDelay            time.Duration `yaml:"min_delay"`
	RequestTimeout      time.Duration `yaml:"request_timeout"`
	RobotsCacheDuration time.Duration `yaml:"robots_cache_duration"`
	EnableRobotsCheck   bool          `yaml:"enable_robots_check"`
	UserAgent           string        `yaml:"user_agent"`
}

// BreakerConfig configures the circuit breaker around provider calls
type BreakerConfig struct {
	MaxRequests  uint32        `yaml:"max_requests"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	MinRequests  uint32        `yaml:"min_requests"`
	FailureRatio float64       `yaml:"failure_ratio"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			RateLimit:      120,
			RequestTimeout: 30 * time.Second,
		},
		Dataset: DatasetConfig{
			Driver: "csv",
			Path:   "dataset/movies.csv",
		},
		Cache: CacheConfig{
			TTL: 1 * time.Hour,
		},
		Enrichment: EnrichmentConfig{
			Enabled:       true,
			Workers:       5,
			LookupTimeout: 5 * time.Second,
			CacheSize:     2048,
			CacheTTL:      24 * time.Hour,
		},
		Provider: ProviderConfig{
			Name: "none",
		},
		Politeness: PolitenessConfig{
			MinDelay:            250 * time.Millisecond,
			RequestTimeout:      10 * time.Second,
			RobotsCacheDuration: 24 * time.Hour,
			EnableRobotsCheck:   false,
			UserAgent:           "movierec/1.0",
		},
		Breaker: BreakerConfig{
			MaxRequests:  3,
			Interval:     1 * time.Minute,
			Timeout:      2 * time.Minute,
			MinRequests:  10,
			FailureRatio: 0.6,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	cfg := Default()
	applyEnv(cfg)
	return cfg
}

// LoadFile reads a YAML file over the defaults, then applies environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Addr = GetStringEnv("SERVER_ADDR", cfg.Server.Addr)
	cfg.Server.RateLimit = GetIntEnv("SERVER_RATE_LIMIT", cfg.Server.RateLimit)
	cfg.Server.RequestTimeout = GetDurationEnv("SERVER_REQUEST_TIMEOUT", cfg.Server.RequestTimeout)

	cfg.Dataset.Driver = GetStringEnv("DATASET_DRIVER", cfg.Dataset.Driver)
	cfg.Dataset.Path = GetStringEnv("DATASET_PATH", cfg.Dataset.Path)
	cfg.Dataset.DiscoveredDir = GetStringEnv("DATASET_DISCOVERED_DIR", cfg.Dataset.DiscoveredDir)

	cfg.Cache.TTL = GetDurationEnv("CACHE_TTL", cfg.Cache.TTL)

	cfg.Enrichment.Enabled = GetBoolEnv("ENRICHMENT_ENABLED", cfg.Enrichment.Enabled)
	cfg.Enrichment.Workers = GetIntEnv("ENRICHMENT_WORKERS", cfg.Enrichment.Workers)
	cfg.Enrichment.LookupTimeout = GetDurationEnv("ENRICHMENT_LOOKUP_TIMEOUT", cfg.Enrichment.LookupTimeout)
	cfg.Enrichment.CacheSize = GetIntEnv("ENRICHMENT_CACHE_SIZE", cfg.Enrichment.CacheSize)
	cfg.Enrichment.CacheTTL = GetDurationEnv("ENRICHMENT_CACHE_TTL", cfg.Enrichment.CacheTTL)

	cfg.Provider.Name = GetStringEnv("PROVIDER_NAME", cfg.Provider.Name)
	cfg.Provider.BaseURL = GetStringEnv("PROVIDER_BASE_URL", cfg.Provider.BaseURL)
	cfg.Provider.APIKey = GetStringEnv("PROVIDER_API_KEY", cfg.Provider.APIKey)
	cfg.Provider.ImageBaseURL = GetStringEnv("PROVIDER_IMAGE_BASE_URL", cfg.Provider.ImageBaseURL)

	cfg.Politeness.MinDelay = GetDurationEnv("POLITENESS_MIN_DELAY", cfg.Politeness.MinDelay)
	cfg.Politeness.RequestTimeout = GetDurationEnv("POLITENESS_REQUEST_TIMEOUT", cfg.Politeness.RequestTimeout)
	cfg.Politeness.RobotsCacheDuration = GetDurationEnv("POLITENESS_ROBOTS_CACHE_DURATION", cfg.Politeness.RobotsCacheDuration)
	cfg.Politeness.EnableRobotsCheck = GetBoolEnv("POLITENESS_ENABLE_ROBOTS_CHECK", cfg.Politeness.EnableRobotsCheck)
	cfg.Politeness.UserAgent = GetStringEnv("POLITENESS_USER_AGENT", cfg.Politeness.UserAgent)

	cfg.Breaker.MaxRequests = uint32(GetIntEnv("BREAKER_MAX_REQUESTS", int(cfg.Breaker.MaxRequests)))
	cfg.Breaker.Interval = GetDurationEnv("BREAKER_INTERVAL", cfg.Breaker.Interval)
	cfg.Breaker.Timeout = GetDurationEnv("BREAKER_TIMEOUT", cfg.Breaker.Timeout)
	cfg.Breaker.MinRequests = uint32(GetIntEnv("BREAKER_MIN_REQUESTS", int(cfg.Breaker.MinRequests)))
	cfg.Breaker.FailureRatio = GetFloatEnv("BREAKER_FAILURE_RATIO", cfg.Breaker.FailureRatio)

	cfg.Log.Level = GetStringEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = GetStringEnv("LOG_FORMAT", cfg.Log.Format)
}

func GetStringEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
