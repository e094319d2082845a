package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	CacheBackend       string `mapstructure:"CACHE_BACKEND"`
	CacheRetryAttempts uint   `mapstructure:"CACHE_RETRY_ATTEMPTS"`
	RepairQueueSize    int    `mapstructure:"REPAIR_QUEUE_SIZE"`

	RedisURL      string `mapstructure:"REDIS_URL"`
	Neo4jURI      string `mapstructure:"NEO4J_URI"`
	Neo4jUser     string `mapstructure:"NEO4J_USER"`
	Neo4jPassword string `mapstructure:"NEO4J_PASSWORD"`

	CORSOrigins string `mapstructure:"CORS_ORIGINS"`
}

var AppConfig *Config

var defaults = map[string]any{
	"DATABASE_URL":         "",
	"JWT_SECRET":           "",
	"HTTP_ADDR":            ":8080",
	"LOG_LEVEL":            "info",
	"LOG_FORMAT":           "json",
	"CACHE_BACKEND":        "sql",
	"CACHE_RETRY_ATTEMPTS": 5,
	"REPAIR_QUEUE_SIZE":    256,
	"REDIS_URL":            "redis://localhost:6379/0",
	"NEO4J_URI":            "neo4j://localhost:7687",
	"NEO4J_USER":           "neo4j",
	"NEO4J_PASSWORD":       "",
	"CORS_ORIGINS":         "*",
}

// Load reads the configuration from a .env file in the working directory and
// environment variables. Environment variables win. Callers validate the
// parts they need.
func Load() (*Config, error) {
	v := viper.New()
	v.AddConfigPath(".")
	v.SetConfigName(".env")
	v.SetConfigType("env")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	AppConfig = cfg
	return cfg, nil
}

// Validate checks everything the HTTP server needs.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return c.ValidateCache()
}

// ValidateCache checks the graph cache settings only.
func (c *Config) ValidateCache() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.CacheBackend {
	case "sql", "redis", "neo4j":
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q (want sql, redis or neo4j)", c.CacheBackend)
	}
	if c.CacheRetryAttempts == 0 {
		return fmt.Errorf("CACHE_RETRY_ATTEMPTS must be at least 1")
	}
	return nil
}

// Origins splits CORS_ORIGINS into a list.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
