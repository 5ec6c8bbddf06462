// Package config loads process configuration from environment variables
// (and an optional .env file), grounded on shivamshaw23-Hintro/config/config.go's
// viper-based loader shape.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the ridecore server process.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Matching MatchingConfig
	Location LocationConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"POSTGRES_HOST"`
	Port     int    `mapstructure:"POSTGRES_PORT"`
	User     string `mapstructure:"POSTGRES_USER"`
	Password string `mapstructure:"POSTGRES_PASSWORD"`
	DBName   string `mapstructure:"POSTGRES_DB"`
	SSLMode  string `mapstructure:"POSTGRES_SSLMODE"`
	MaxConns int32  `mapstructure:"POSTGRES_MAX_CONNS"`
	MinConns int32  `mapstructure:"POSTGRES_MIN_CONNS"`
}

// RedisConfig holds Redis connection settings, shared by the Geo Index,
// Lock Service and Idempotency Store backends.
type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     int    `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
	PoolSize int    `mapstructure:"REDIS_POOL_SIZE"`
}

// MatchingConfig tunes the Ride Engine's matching loop (§4.4).
type MatchingConfig struct {
	MaxAttempts    int           `mapstructure:"MATCH_MAX_ATTEMPTS"`
	SearchRadiusKM float64       `mapstructure:"MATCH_SEARCH_RADIUS_KM"`
	SearchLimit    int           `mapstructure:"MATCH_SEARCH_LIMIT"`
	Backoff        time.Duration `mapstructure:"MATCH_BACKOFF"`
	LockTTL        time.Duration `mapstructure:"MATCH_LOCK_TTL"`
	DefaultRegion  string        `mapstructure:"MATCH_DEFAULT_REGION"`
	TierTieBreakKM float64       `mapstructure:"MATCH_TIER_TIE_BREAK_KM"`
}

// LocationConfig tunes the Location Ingest Pipeline (§4.2).
type LocationConfig struct {
	BatchSize     int           `mapstructure:"LOCATION_BATCH_SIZE"`
	BatchInterval time.Duration `mapstructure:"LOCATION_BATCH_INTERVAL_MS"`
	HighWaterMark int           `mapstructure:"LOCATION_HIGH_WATER_MARK"`
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from environment variables and an optional .env
// file in the current directory.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "5s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	viper.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "ridecore")
	viper.SetDefault("POSTGRES_PASSWORD", "ridecore_secret")
	viper.SetDefault("POSTGRES_DB", "ridecore")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")
	viper.SetDefault("POSTGRES_MAX_CONNS", 50)
	viper.SetDefault("POSTGRES_MIN_CONNS", 10)

	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", 6379)
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_POOL_SIZE", 100)

	viper.SetDefault("MATCH_MAX_ATTEMPTS", 3)
	viper.SetDefault("MATCH_SEARCH_RADIUS_KM", 5.0)
	viper.SetDefault("MATCH_SEARCH_LIMIT", 10)
	viper.SetDefault("MATCH_BACKOFF", "5s")
	viper.SetDefault("MATCH_LOCK_TTL", "10s")
	viper.SetDefault("MATCH_DEFAULT_REGION", "default")
	viper.SetDefault("MATCH_TIER_TIE_BREAK_KM", 0.5)

	viper.SetDefault("LOCATION_BATCH_SIZE", 100)
	viper.SetDefault("LOCATION_BATCH_INTERVAL_MS", 10000)
	viper.SetDefault("LOCATION_HIGH_WATER_MARK", 50000)

	// Missing .env is expected outside local dev; env vars injected by the
	// container runtime are used instead.
	_ = viper.ReadInConfig()

	cfg := &Config{}

	cfg.Server = ServerConfig{
		Host:         viper.GetString("SERVER_HOST"),
		Port:         viper.GetInt("SERVER_PORT"),
		ReadTimeout:  viper.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: viper.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  viper.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	cfg.Postgres = PostgresConfig{
		Host:     viper.GetString("POSTGRES_HOST"),
		Port:     viper.GetInt("POSTGRES_PORT"),
		User:     viper.GetString("POSTGRES_USER"),
		Password: viper.GetString("POSTGRES_PASSWORD"),
		DBName:   viper.GetString("POSTGRES_DB"),
		SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
		MaxConns: viper.GetInt32("POSTGRES_MAX_CONNS"),
		MinConns: viper.GetInt32("POSTGRES_MIN_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     viper.GetString("REDIS_HOST"),
		Port:     viper.GetInt("REDIS_PORT"),
		Password: viper.GetString("REDIS_PASSWORD"),
		DB:       viper.GetInt("REDIS_DB"),
		PoolSize: viper.GetInt("REDIS_POOL_SIZE"),
	}

	cfg.Matching = MatchingConfig{
		MaxAttempts:    viper.GetInt("MATCH_MAX_ATTEMPTS"),
		SearchRadiusKM: viper.GetFloat64("MATCH_SEARCH_RADIUS_KM"),
		SearchLimit:    viper.GetInt("MATCH_SEARCH_LIMIT"),
		Backoff:        viper.GetDuration("MATCH_BACKOFF"),
		LockTTL:        viper.GetDuration("MATCH_LOCK_TTL"),
		DefaultRegion:  viper.GetString("MATCH_DEFAULT_REGION"),
		TierTieBreakKM: viper.GetFloat64("MATCH_TIER_TIE_BREAK_KM"),
	}

	cfg.Location = LocationConfig{
		BatchSize:     viper.GetInt("LOCATION_BATCH_SIZE"),
		BatchInterval: time.Duration(viper.GetInt64("LOCATION_BATCH_INTERVAL_MS")) * time.Millisecond,
		HighWaterMark: viper.GetInt("LOCATION_HIGH_WATER_MARK"),
	}

	return cfg, nil
}
