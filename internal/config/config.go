// Package config provides configuration management for the wallet insight service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database  DatabaseConfig
	Cache     CacheConfig
	Logging   LoggingConfig
	Providers ProvidersConfig
	Report    ReportConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Enabled         bool
	Host            string
	Port            string
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled        bool
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// ProviderConfig holds connection settings for one upstream data provider
type ProviderConfig struct {
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
	MaxRetries        int
	// BreakerFailures consecutive transient failures open the provider's
	// circuit for BreakerCooldown. Zero disables the breaker.
	BreakerFailures int
	BreakerCooldown time.Duration
}

// ProvidersConfig holds configuration for all upstream data providers
type ProvidersConfig struct {
	Etherscan   ProviderConfig
	BlockCypher ProviderConfig
	CoinGecko   ProviderConfig
	Moralis     ProviderConfig
}

// ReportConfig holds wallet report defaults
type ReportConfig struct {
	DefaultChain    string
	MaxTransactions int
	HistoryLimit    int
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Enabled:         getEnvAsBool("POSTGRES_ENABLED", true),
				Host:            getEnv("POSTGRES_HOST", "localhost"),
				Port:            getEnv("POSTGRES_PORT", "5432"),
				Database:        getEnv("POSTGRES_DB", "wallet_insight"),
				User:            getEnv("POSTGRES_USER", "insight"),
				Password:        getEnv("POSTGRES_PASSWORD", ""),
				SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
				MaxConnections:  getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 4),
				MinConnections:  getEnvAsInt("POSTGRES_MIN_CONNECTIONS", 0),
				MaxConnLifetime: getEnvAsDuration("POSTGRES_MAX_CONN_LIFETIME", time.Hour),
				MaxConnIdleTime: getEnvAsDuration("POSTGRES_MAX_CONN_IDLE_TIME", 5*time.Minute),
				ConnectTimeout:  getEnvAsDuration("POSTGRES_CONNECT_TIMEOUT", 5*time.Second),
			},
			Redis: RedisConfig{
				Enabled:        getEnvAsBool("REDIS_ENABLED", true),
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Providers: ProvidersConfig{
			Etherscan:   loadProvider("ETHERSCAN", "https://api.etherscan.io/api", 5),
			BlockCypher: loadProvider("BLOCKCYPHER", "https://api.blockcypher.com", 3),
			CoinGecko:   loadProvider("COINGECKO", "https://api.coingecko.com/api/v3", 0.5),
			Moralis:     loadProvider("MORALIS", "https://deep-index.moralis.io/api/v2.2", 25),
		},
		Report: ReportConfig{
			DefaultChain:    getEnv("REPORT_DEFAULT_CHAIN", "ETH"),
			MaxTransactions: getEnvAsInt("REPORT_MAX_TRANSACTIONS", 50),
			HistoryLimit:    getEnvAsInt("REPORT_HISTORY_LIMIT", 10),
		},
	}

	return config, nil
}

// loadProvider reads the <PREFIX>_* variables for one provider
func loadProvider(prefix, baseURL string, rps float64) ProviderConfig {
	return ProviderConfig{
		APIKey:            getEnv(prefix+"_API_KEY", ""),
		BaseURL:           getEnv(prefix+"_BASE_URL", baseURL),
		RequestsPerSecond: getEnvAsFloat(prefix+"_RPS", rps),
		Timeout:           getEnvAsDuration(prefix+"_TIMEOUT", 15*time.Second),
		MaxRetries:        getEnvAsInt(prefix+"_MAX_RETRIES", 3),
		BreakerFailures:   getEnvAsInt(prefix+"_BREAKER_FAILURES", 5),
		BreakerCooldown:   getEnvAsDuration(prefix+"_BREAKER_COOLDOWN", 30*time.Second),
	}
}

// ConnectionString returns the Postgres connection URL with escaped credentials.
// An empty SSLMode means disable.
func (c PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

// Addr returns the Redis host:port address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
