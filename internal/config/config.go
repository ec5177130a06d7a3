// Package config loads the indexer configuration from a YAML file and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the quest indexer
type Config struct {
	RPC      RPCConfig      `yaml:"rpc"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	API      APIConfig      `yaml:"api"`
}

// RPCConfig holds RPC client configuration
type RPCConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path     string `yaml:"path"`
	ReadOnly bool   `yaml:"readonly"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IndexerConfig holds indexer-specific configuration
type IndexerConfig struct {
	// ContractAddress is the quest contract to index, as a hex string.
	ContractAddress string `yaml:"contract_address"`

	// DeploymentBlock is the block the contract was deployed at.
	DeploymentBlock uint64 `yaml:"deployment_block"`

	// BatchSize is the number of blocks ingested per batch.
	BatchSize uint64 `yaml:"batch_size"`

	// PollInterval is the spacing between poll ticks.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Retry configures the upstream RPC retry policy.
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig holds the retry policy for upstream RPC calls
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	EnableCORS         bool     `yaml:"enable_cors"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	EnableRateLimit    bool     `yaml:"enable_rate_limit"`
	RateLimitPerSecond float64  `yaml:"rate_limit_per_second"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	// RPC defaults
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = 30 * time.Second
	}

	// Database defaults
	if c.Database.Path == "" {
		c.Database.Path = "./data"
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	// Indexer defaults
	if c.Indexer.BatchSize == 0 {
		c.Indexer.BatchSize = 100
	}
	if c.Indexer.PollInterval == 0 {
		c.Indexer.PollInterval = 15 * time.Second
	}
	if c.Indexer.Retry.MaxAttempts == 0 {
		c.Indexer.Retry.MaxAttempts = 5
	}
	if c.Indexer.Retry.BaseDelay == 0 {
		c.Indexer.Retry.BaseDelay = time.Second
	}
	if c.Indexer.Retry.MaxDelay == 0 {
		c.Indexer.Retry.MaxDelay = 30 * time.Second
	}

	// API defaults
	if c.API.Host == "" {
		c.API.Host = "localhost"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.AllowedOrigins == nil {
		c.API.AllowedOrigins = []string{"*"}
	}
	if c.API.RateLimitPerSecond == 0 {
		c.API.RateLimitPerSecond = 1000
	}
	if c.API.RateLimitBurst == 0 {
		c.API.RateLimitBurst = 2000
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables override file values.
func (c *Config) LoadFromEnv() error {
	// RPC configuration
	if endpoint := os.Getenv("QUEST_INDEXER_RPC_ENDPOINT"); endpoint != "" {
		c.RPC.Endpoint = endpoint
	}
	if timeout := os.Getenv("QUEST_INDEXER_RPC_TIMEOUT"); timeout != "" {
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid QUEST_INDEXER_RPC_TIMEOUT: %w", err)
		}
		c.RPC.Timeout = duration
	}

	// Database configuration
	if path := os.Getenv("QUEST_INDEXER_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if readonly := os.Getenv("QUEST_INDEXER_DB_READONLY"); readonly != "" {
		val, err := strconv.ParseBool(readonly)
		if err != nil {
			return fmt.Errorf("invalid QUEST_INDEXER_DB_READONLY: %w", err)
		}
		c.Database.ReadOnly = val
	}

	// Log configuration
	if level := os.Getenv("QUEST_INDEXER_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("QUEST_INDEXER_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	// Indexer configuration
	if address := os.Getenv("QUEST_INDEXER_CONTRACT_ADDRESS"); address != "" {
		c.Indexer.ContractAddress = address
	}
	if deployBlock := os.Getenv("QUEST_INDEXER_DEPLOYMENT_BLOCK"); deployBlock != "" {
		val, err := strconv.ParseUint(deployBlock, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid QUEST_INDEXER_DEPLOYMENT_BLOCK: %w", err)
		}
		c.Indexer.DeploymentBlock = val
	}
	if batchSize := os.Getenv("QUEST_INDEXER_BATCH_SIZE"); batchSize != "" {
		val, err := strconv.ParseUint(batchSize, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid QUEST_INDEXER_BATCH_SIZE: %w", err)
		}
		c.Indexer.BatchSize = val
	}
	if interval := os.Getenv("QUEST_INDEXER_POLL_INTERVAL"); interval != "" {
		duration, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid QUEST_INDEXER_POLL_INTERVAL: %w", err)
		}
		c.Indexer.PollInterval = duration
	}
	if attempts := os.Getenv("QUEST_INDEXER_RETRY_MAX_ATTEMPTS"); attempts != "" {
		val, err := strconv.Atoi(attempts)
		if err != nil {
			return fmt.Errorf("invalid QUEST_INDEXER_RETRY_MAX_ATTEMPTS: %w", err)
		}
		c.Indexer.Retry.MaxAttempts = val
	}
	if baseDelay := os.Getenv("QUEST_INDEXER_RETRY_BASE_DELAY"); baseDelay != "" {
		duration, err := time.ParseDuration(baseDelay)
		if err != nil {
			return fmt.Errorf("invalid QUEST_INDEXER_RETRY_BASE_DELAY: %w", err)
		}
		c.Indexer.Retry.BaseDelay = duration
	}
	if maxDelay := os.Getenv("QUEST_INDEXER_RETRY_MAX_DELAY"); maxDelay != "" {
		duration, err := time.ParseDuration(maxDelay)
		if err != nil {
			return fmt.Errorf("invalid QUEST_INDEXER_RETRY_MAX_DELAY: %w", err)
		}
		c.Indexer.Retry.MaxDelay = duration
	}

	// API configuration
	if enabled := os.Getenv("QUEST_INDEXER_API_ENABLED"); enabled != "" {
		val, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid QUEST_INDEXER_API_ENABLED: %w", err)
		}
		c.API.Enabled = val
	}
	if host := os.Getenv("QUEST_INDEXER_API_HOST"); host != "" {
		c.API.Host = host
	}
	if port := os.Getenv("QUEST_INDEXER_API_PORT"); port != "" {
		val, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid QUEST_INDEXER_API_PORT: %w", err)
		}
		c.API.Port = val
	}
	if enableCORS := os.Getenv("QUEST_INDEXER_API_CORS_ENABLED"); enableCORS != "" {
		val, err := strconv.ParseBool(enableCORS)
		if err != nil {
			return fmt.Errorf("invalid QUEST_INDEXER_API_CORS_ENABLED: %w", err)
		}
		c.API.EnableCORS = val
	}
	if allowedOrigins := os.Getenv("QUEST_INDEXER_API_CORS_ALLOWED_ORIGINS"); allowedOrigins != "" {
		origins := make([]string, 0)
		for _, origin := range strings.Split(allowedOrigins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				origins = append(origins, origin)
			}
		}
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		c.API.AllowedOrigins = origins
	}
	if enableRateLimit := os.Getenv("QUEST_INDEXER_API_RATE_LIMIT_ENABLED"); enableRateLimit != "" {
		val, err := strconv.ParseBool(enableRateLimit)
		if err != nil {
			return fmt.Errorf("invalid QUEST_INDEXER_API_RATE_LIMIT_ENABLED: %w", err)
		}
		c.API.EnableRateLimit = val
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("RPC endpoint is required")
	}
	if c.RPC.Timeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	if c.Indexer.ContractAddress == "" {
		return fmt.Errorf("contract address is required")
	}
	if !common.IsHexAddress(c.Indexer.ContractAddress) {
		return fmt.Errorf("invalid contract address %q", c.Indexer.ContractAddress)
	}
	if c.Indexer.BatchSize == 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Indexer.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Indexer.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive")
	}
	if c.Indexer.Retry.BaseDelay <= 0 {
		return fmt.Errorf("retry base delay must be positive")
	}
	if c.Indexer.Retry.MaxDelay < c.Indexer.Retry.BaseDelay {
		return fmt.Errorf("retry max delay must be at least the base delay")
	}

	if c.API.Enabled {
		if c.API.Host == "" {
			return fmt.Errorf("API host is required")
		}
		if c.API.Port < 1 || c.API.Port > 65535 {
			return fmt.Errorf("API port must be between 1 and 65535")
		}
	}

	return nil
}

// Address returns the configured contract address parsed from hex.
func (c *IndexerConfig) Address() common.Address {
	return common.HexToAddress(c.ContractAddress)
}

// Load is a convenience method that loads configuration in the following order:
// 1. Set defaults
// 2. Load from file (if provided)
// 3. Load from environment variables (override file)
// 4. Validate
func Load(configFile string) (*Config, error) {
	cfg := NewConfig()

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
