// Package config provides configuration management for the AMM analytics indexer.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Store backends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Store    StoreConfig
	Chain    ChainConfig
	Sync     SyncConfig
	Pricing  PricingConfig
	Logging  LoggingConfig
}

// ServerConfig holds query API configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration.
// The record sink is disabled when Host is empty.
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// StoreConfig selects the ledger backend
type StoreConfig struct {
	Backend string // memory, postgres or redis
}

// ChainConfig holds RPC and contract configuration
type ChainConfig struct {
	RPCURL         string
	FactoryAddress string
	StartBlock     uint64
	RPCRateLimit   float64 // requests per second, 0 disables limiting
	RPCBurst       int
	StaticTokens   []string // address:symbol:name:decimals overrides for token metadata
}

// SyncConfig holds sync worker configuration
type SyncConfig struct {
	PollInterval     time.Duration
	MaxBlocksPerPoll int
	MaxRetries       int
}

// PricingConfig holds the reference tokens and thresholds of the price oracle and volume accountant
type PricingConfig struct {
	NativeToken                string
	SecondaryToken             string
	Whitelist                  []string
	UntrackedPairs             []string
	StablePairs                []string
	MinimumUSDThresholdNewPair string
	MinimumLiquidityNative     string
	NativePriceUSD             string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional, environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "amm_analytics"),
				User:           getEnv("POSTGRES_USER", "indexer"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", ""),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "amm_analytics"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		},
		Chain: ChainConfig{
			RPCURL:         getEnv("RPC_URL", ""),
			FactoryAddress: getEnv("FACTORY_ADDRESS", ""),
			StartBlock:     uint64(getEnvAsInt("START_BLOCK", 0)),
			RPCRateLimit:   getEnvAsFloat("RPC_RATE_LIMIT", 10),
			RPCBurst:       getEnvAsInt("RPC_BURST", 5),
			StaticTokens:   getEnvAsList("STATIC_TOKENS"),
		},
		Sync: SyncConfig{
			PollInterval:     getEnvAsDuration("POLL_INTERVAL", 15*time.Second),
			MaxBlocksPerPoll: getEnvAsInt("SYNC_MAX_BLOCKS_PER_POLL", 500),
			MaxRetries:       getEnvAsInt("SYNC_MAX_RETRIES", 5),
		},
		Pricing: PricingConfig{
			NativeToken:                getEnv("NATIVE_TOKEN", ""),
			SecondaryToken:             getEnv("SECONDARY_TOKEN", ""),
			Whitelist:                  getEnvAsList("WHITELIST_TOKENS"),
			UntrackedPairs:             getEnvAsList("UNTRACKED_PAIRS"),
			StablePairs:                getEnvAsList("STABLE_PAIRS"),
			MinimumUSDThresholdNewPair: getEnv("MINIMUM_USD_THRESHOLD_NEW_PAIRS", "2"),
			MinimumLiquidityNative:     getEnv("MINIMUM_LIQUIDITY_THRESHOLD_NATIVE", "0"),
			NativePriceUSD:             getEnv("NATIVE_PRICE_USD", "1"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// Validate rejects malformed addresses, decimals and backend names
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory, StorePostgres, StoreRedis:
	default:
		return fmt.Errorf("STORE_BACKEND: unknown backend %q", c.Store.Backend)
	}

	if c.Chain.FactoryAddress != "" && !common.IsHexAddress(c.Chain.FactoryAddress) {
		return fmt.Errorf("FACTORY_ADDRESS: invalid address %q", c.Chain.FactoryAddress)
	}

	for name, addr := range map[string]string{
		"NATIVE_TOKEN":    c.Pricing.NativeToken,
		"SECONDARY_TOKEN": c.Pricing.SecondaryToken,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s: invalid address %q", name, addr)
		}
	}

	lists := map[string][]string{
		"WHITELIST_TOKENS": c.Pricing.Whitelist,
		"UNTRACKED_PAIRS":  c.Pricing.UntrackedPairs,
		"STABLE_PAIRS":     c.Pricing.StablePairs,
	}
	for name, list := range lists {
		for _, addr := range list {
			if !common.IsHexAddress(addr) {
				return fmt.Errorf("%s: invalid address %q", name, addr)
			}
		}
	}

	for _, def := range c.Chain.StaticTokens {
		parts := strings.Split(def, ":")
		if len(parts) != 4 || !common.IsHexAddress(parts[0]) {
			return fmt.Errorf("STATIC_TOKENS: invalid definition %q", def)
		}
		if _, err := strconv.Atoi(parts[3]); err != nil {
			return fmt.Errorf("STATIC_TOKENS: invalid decimals in %q", def)
		}
	}

	decimals := map[string]string{
		"MINIMUM_USD_THRESHOLD_NEW_PAIRS":    c.Pricing.MinimumUSDThresholdNewPair,
		"MINIMUM_LIQUIDITY_THRESHOLD_NATIVE": c.Pricing.MinimumLiquidityNative,
		"NATIVE_PRICE_USD":                   c.Pricing.NativePriceUSD,
	}
	for name, v := range decimals {
		if _, err := decimal.NewFromString(v); err != nil {
			return fmt.Errorf("%s: invalid decimal %q: %w", name, v, err)
		}
	}

	if c.Sync.MaxBlocksPerPoll <= 0 {
		return fmt.Errorf("SYNC_MAX_BLOCKS_PER_POLL must be positive")
	}
	return nil
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

// getEnvAsList splits a comma separated variable, dropping empty entries
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
