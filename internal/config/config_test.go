package config

import (
	"testing"
	"time"
)

const (
	testNative    = "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
	testSecondary = "0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POSTGRES_HOST", "testhost")
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("WHITELIST_TOKENS", testNative+", "+testSecondary+",")
	t.Setenv("STORE_BACKEND", "Redis")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}
	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}
	if cfg.Sync.PollInterval != 30*time.Second {
		t.Errorf("Sync.PollInterval = %v, want %v", cfg.Sync.PollInterval, 30*time.Second)
	}
	if len(cfg.Pricing.Whitelist) != 2 || cfg.Pricing.Whitelist[1] != testSecondary {
		t.Errorf("Pricing.Whitelist = %v, want [%s %s]", cfg.Pricing.Whitelist, testNative, testSecondary)
	}
	if cfg.Store.Backend != StoreRedis {
		t.Errorf("Store.Backend = %v, want %v", cfg.Store.Backend, StoreRedis)
	}
}

func TestLoadConfigPricingDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Pricing.MinimumUSDThresholdNewPair != "2" {
		t.Errorf("MinimumUSDThresholdNewPair = %v, want 2", cfg.Pricing.MinimumUSDThresholdNewPair)
	}
	if cfg.Pricing.MinimumLiquidityNative != "0" {
		t.Errorf("MinimumLiquidityNative = %v, want 0", cfg.Pricing.MinimumLiquidityNative)
	}
	if cfg.Pricing.NativePriceUSD != "1" {
		t.Errorf("NativePriceUSD = %v, want 1", cfg.Pricing.NativePriceUSD)
	}
}

func validConfig() *Config {
	return &Config{
		Store: StoreConfig{Backend: StoreMemory},
		Sync:  SyncConfig{MaxBlocksPerPoll: 100},
		Pricing: PricingConfig{
			NativeToken:                testNative,
			SecondaryToken:             testSecondary,
			Whitelist:                  []string{testNative, testSecondary},
			MinimumUSDThresholdNewPair: "2",
			MinimumLiquidityNative:     "0",
			NativePriceUSD:             "1",
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "sqlite" },
			wantErr: true,
		},
		{
			name:    "bad native token",
			mutate:  func(c *Config) { c.Pricing.NativeToken = "0x123" },
			wantErr: true,
		},
		{
			name:    "bad whitelist entry",
			mutate:  func(c *Config) { c.Pricing.Whitelist = append(c.Pricing.Whitelist, "weth") },
			wantErr: true,
		},
		{
			name:    "bad threshold",
			mutate:  func(c *Config) { c.Pricing.MinimumUSDThresholdNewPair = "two" },
			wantErr: true,
		},
		{
			name:    "bad factory",
			mutate:  func(c *Config) { c.Chain.FactoryAddress = "factory" },
			wantErr: true,
		},
		{
			name:    "static token",
			mutate:  func(c *Config) { c.Chain.StaticTokens = []string{testNative + ":WBNB:Wrapped BNB:18"} },
			wantErr: false,
		},
		{
			name:    "static token without decimals",
			mutate:  func(c *Config) { c.Chain.StaticTokens = []string{testNative + ":WBNB:Wrapped BNB"} },
			wantErr: true,
		},
		{
			name:    "zero poll window",
			mutate:  func(c *Config) { c.Sync.MaxBlocksPerPoll = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "NONEXISTENT_KEY",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{"returns integer when valid", "TEST_INT", 100, "200", 200},
		{"returns default when invalid", "TEST_INT_INVALID", 100, "invalid", 100},
		{"returns default when not set", "TEST_INT_NOTSET", 100, "", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnvAsInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{"returns duration when valid", "TEST_DURATION", 10 * time.Second, "30s", 30 * time.Second},
		{"returns default when invalid", "TEST_DURATION_INVALID", 10 * time.Second, "invalid", 10 * time.Second},
		{"returns default when not set", "TEST_DURATION_NOTSET", 10 * time.Second, "", 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnvAsDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("TEST_LIST", " a ,, b,c ")
	got := getEnvAsList("TEST_LIST")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("getEnvAsList() = %v, want [a b c]", got)
	}

	if got := getEnvAsList("TEST_LIST_NOTSET"); len(got) != 0 {
		t.Errorf("getEnvAsList() = %v, want empty", got)
	}
}
