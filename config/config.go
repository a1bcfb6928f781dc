// Package config loads runtime settings from an optional .env file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/blockberries/nftflow/payload"
	"github.com/blockberries/nftflow/types"
	"github.com/blockberries/nftflow/viewstate"
)

// Environment keys.
const (
	EnvModuleAddress = "NFTFLOW_MODULE_ADDRESS"
	EnvGatewayAddr   = "NFTFLOW_GATEWAY_ADDR"
	EnvHTTPAddr      = "NFTFLOW_HTTP_ADDR"
	EnvPollInterval  = "NFTFLOW_POLL_INTERVAL"
	EnvStatsdAddr    = "NFTFLOW_STATSD_ADDR"
	EnvRedisAddr     = "NFTFLOW_REDIS_ADDR"
	EnvRedisDB       = "NFTFLOW_REDIS_DB"
	EnvCacheTTL      = "NFTFLOW_CACHE_TTL"
	EnvAccount       = "NFTFLOW_ACCOUNT"
	EnvStartBalance  = "NFTFLOW_START_BALANCE"
)

// DefaultModuleAddress is used when NFTFLOW_MODULE_ADDRESS is unset.
const DefaultModuleAddress = "0xcafe"

type Config struct {
	// ModuleAddress is the deployed collection module address.
	ModuleAddress string
	// GatewayAddr is the remote gateway. Empty selects the in-process
	// ledger.
	GatewayAddr  string
	HTTPAddr     string
	PollInterval time.Duration
	StatsdAddr   string
	RedisAddr    string
	RedisDB      int
	CacheTTL     time.Duration
	// Account and StartBalance seed the in-process ledger.
	Account      string
	StartBalance uint64
}

// Load reads path (".env" if empty) when it exists, then builds the
// configuration from the environment. Variables already set in the
// environment take precedence over the file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	c := &Config{
		ModuleAddress: getEnv(EnvModuleAddress, DefaultModuleAddress),
		GatewayAddr:   getEnv(EnvGatewayAddr, ""),
		HTTPAddr:      getEnv(EnvHTTPAddr, ":8080"),
		PollInterval:  getEnvDuration(EnvPollInterval, viewstate.DefaultPollInterval),
		StatsdAddr:    getEnv(EnvStatsdAddr, ""),
		RedisAddr:     getEnv(EnvRedisAddr, ""),
		RedisDB:       getEnvInt(EnvRedisDB, 0),
		CacheTTL:      getEnvDuration(EnvCacheTTL, time.Hour),
		Account:       getEnv(EnvAccount, "0xa11ce"),
	}

	if !types.ValidAddress(c.ModuleAddress) {
		return nil, fmt.Errorf("config: %s: invalid address %q", EnvModuleAddress, c.ModuleAddress)
	}
	if !types.ValidAddress(c.Account) {
		return nil, fmt.Errorf("config: %s: invalid address %q", EnvAccount, c.Account)
	}
	amount, err := payload.ParseAmount(getEnv(EnvStartBalance, "1"))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", EnvStartBalance, err)
	}
	if c.StartBalance, err = payload.ToSmallestUnit(amount, types.CoinDecimals); err != nil {
		return nil, fmt.Errorf("config: %s: %w", EnvStartBalance, err)
	}
	return c, nil
}

// Targets returns the function targets for the configured module.
func (c *Config) Targets() payload.Targets {
	return payload.NewTargets(c.ModuleAddress)
}

// Stats returns a statsd client, or a no-op client when no statsd
// address is configured.
func (c *Config) Stats() (statsd.ClientInterface, error) {
	if c.StatsdAddr == "" {
		return &statsd.NoOpClient{}, nil
	}
	client, err := statsd.New(c.StatsdAddr)
	if err != nil {
		return nil, fmt.Errorf("config: statsd %s: %w", c.StatsdAddr, err)
	}
	return client, nil
}

// SnapshotCache returns the snapshot cache, backed by Redis when a
// Redis address is configured.
func (c *Config) SnapshotCache() *viewstate.SnapshotCache {
	var rdb *redis.Client
	if c.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: c.RedisAddr, DB: c.RedisDB})
	}
	return viewstate.NewSnapshotCache(rdb, c.CacheTTL)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
