package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	domaincfg "curricula/domain/config"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"server_address"`
	Environment   string `yaml:"environment"`

	// Durability
	DataDir          string        `yaml:"data_dir"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	LogFsync         bool          `yaml:"log_fsync"`

	// Event publishing (EventBridge is optional; in-process bus otherwise)
	AWSRegion      string `yaml:"aws_region"`
	EventBusName   string `yaml:"event_bus_name"`
	UseEventBridge bool   `yaml:"use_eventbridge"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Authentication
	JWTSecret string `yaml:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer"`

	// Feature flags
	EnableMetrics bool `yaml:"enable_metrics"`
	EnableCORS    bool `yaml:"enable_cors"`

	// Query cache TTL in seconds (mastery decays, keep this short)
	QueryCacheTTL int `yaml:"query_cache_ttl"`

	// Domain tuning
	Domain *domaincfg.DomainConfig `yaml:"-"`
}

// LoadConfig loads configuration from environment variables, with an
// optional YAML file (CONFIG_FILE) overlaying the defaults first.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		DataDir:          getEnv("DATA_DIR", "./data"),
		SnapshotInterval: getEnvDuration("SNAPSHOT_INTERVAL", 10*time.Minute),
		LogFsync:         getEnvBool("LOG_FSYNC", true),

		AWSRegion:      getEnv("AWS_REGION", "us-west-2"),
		EventBusName:   getEnv("EVENT_BUS_NAME", "curricula-events"),
		UseEventBridge: getEnvBool("USE_EVENTBRIDGE", false),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "curricula"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),

		QueryCacheTTL: getEnvInt("QUERY_CACHE_TTL", 5),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.Domain = domaincfg.LoadDomainConfig(cfg.Environment)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.DataDir == "" {
			return fmt.Errorf("DATA_DIR is required")
		}
		if c.UseEventBridge && c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required when EventBridge publishing is enabled")
		}
	}
	if c.Domain != nil {
		if err := c.Domain.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
