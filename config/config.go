// Package config loads the settlement node configuration from a YAML file,
// optional dotenv files and NFTSPACE_* environment variables, in that order
// of precedence from lowest to highest.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/kaifufi/nftspace-settlement-go/registry"
)

// Supported registry drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

const (
	// bounds enforced again by market and renting at runtime
	maxCommissionPermille     = 500
	maxProtocolFeeBasisPoints = 5000

	defaultFeedListenAddr     = ":8090"
	defaultMetricsNamespace   = "nftspace"
	defaultChainID            = 1337
	defaultFeedHeartbeat      = 30 * time.Second
)

// Config is the full node configuration.
type Config struct {
	ChainID    int64  `yaml:"chain_id" env:"NFTSPACE_CHAIN_ID"`
	RPCURL     string `yaml:"rpc_url" env:"NFTSPACE_RPC_URL"`
	PrivateKey string `yaml:"-" env:"NFTSPACE_PRIVATE_KEY"`
	LogLevel   string `yaml:"log_level" env:"NFTSPACE_LOG_LEVEL"`
	LogFormat  string `yaml:"log_format" env:"NFTSPACE_LOG_FORMAT"`

	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Renting     RentingConfig     `yaml:"renting"`
	Registry    RegistryConfig    `yaml:"registry"`
	Feed        FeedConfig        `yaml:"feed"`
}

// MarketplaceConfig configures the settlement contract.
type MarketplaceConfig struct {
	Address            string   `yaml:"address" env:"NFTSPACE_MARKETPLACE_ADDRESS"`
	CommissionPermille uint64   `yaml:"commission_permille" env:"NFTSPACE_COMMISSION_PERMILLE"`
	Beneficiary        string   `yaml:"beneficiary" env:"NFTSPACE_BENEFICIARY"`
	SettlementTokens   []string `yaml:"settlement_tokens"`
}

// RentingConfig configures the renting protocol.
type RentingConfig struct {
	Address        string `yaml:"address" env:"NFTSPACE_RENTING_ADDRESS"`
	FeeBasisPoints uint64 `yaml:"fee_basis_points" env:"NFTSPACE_RENTING_FEE_BPS"`
	FeeReceiver    string `yaml:"fee_receiver" env:"NFTSPACE_RENTING_FEE_RECEIVER"`
}

// RegistryConfig selects the signature registry backend.
type RegistryConfig struct {
	Driver string `yaml:"driver" env:"NFTSPACE_REGISTRY_DRIVER"`
	DSN    string `yaml:"dsn" env:"NFTSPACE_REGISTRY_DSN"`
}

// FeedConfig configures the websocket event feed and metrics endpoint.
type FeedConfig struct {
	ListenAddr        string        `yaml:"listen_addr" env:"NFTSPACE_FEED_ADDR"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"NFTSPACE_FEED_HEARTBEAT"`
	MetricsNamespace  string        `yaml:"metrics_namespace" env:"NFTSPACE_METRICS_NAMESPACE"`
}

// Default returns a configuration for a single in-memory node.
func Default() *Config {
	return &Config{
		ChainID:   defaultChainID,
		LogLevel:  "info",
		LogFormat: "text",
		Registry: RegistryConfig{
			Driver: DriverMemory,
		},
		Feed: FeedConfig{
			ListenAddr:        defaultFeedListenAddr,
			HeartbeatInterval: defaultFeedHeartbeat,
			MetricsNamespace:  defaultMetricsNamespace,
		},
	}
}

// Load builds a configuration from path (skipped when empty), then the
// given dotenv files, then the process environment. The result is validated.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}
	if tokens := os.Getenv("NFTSPACE_SETTLEMENT_TOKENS"); tokens != "" {
		cfg.Marketplace.SettlementTokens = splitList(tokens)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the node cannot run with.
func (c *Config) Validate() error {
	if c.ChainID <= 0 {
		return fmt.Errorf("chain_id must be positive, got %d", c.ChainID)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q: must be text or json", c.LogFormat)
	}

	for name, addr := range map[string]string{
		"marketplace.address":     c.Marketplace.Address,
		"marketplace.beneficiary": c.Marketplace.Beneficiary,
		"renting.address":         c.Renting.Address,
		"renting.fee_receiver":    c.Renting.FeeReceiver,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid %s: %q is not a hex address", name, addr)
		}
	}
	for _, token := range c.Marketplace.SettlementTokens {
		if !common.IsHexAddress(token) || common.HexToAddress(token) == (common.Address{}) {
			return fmt.Errorf("invalid settlement token %q", token)
		}
	}

	if c.Marketplace.CommissionPermille > maxCommissionPermille {
		return fmt.Errorf("commission_permille cannot exceed %d", maxCommissionPermille)
	}
	if c.Marketplace.CommissionPermille > 0 && c.Marketplace.Beneficiary == "" {
		return errors.New("commission_permille requires a beneficiary")
	}
	if c.Renting.FeeBasisPoints > maxProtocolFeeBasisPoints {
		return fmt.Errorf("fee_basis_points cannot exceed %d", maxProtocolFeeBasisPoints)
	}

	switch c.Registry.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Registry.DSN == "" {
			return errors.New("registry.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported registry driver %q", c.Registry.Driver)
	}

	if c.Feed.HeartbeatInterval < 0 {
		return errors.New("feed.heartbeat_interval cannot be negative")
	}
	return nil
}

// SettlementTokenAddresses returns the configured settlement tokens.
func (c *Config) SettlementTokenAddresses() []common.Address {
	out := make([]common.Address, 0, len(c.Marketplace.SettlementTokens))
	for _, token := range c.Marketplace.SettlementTokens {
		out = append(out, common.HexToAddress(token))
	}
	return out
}

// NewLogger builds a logger with the configured level and format.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// OpenStore opens the configured registry backend. The returned close
// function releases it.
func (c *Config) OpenStore(ctx context.Context) (registry.Store, func() error, error) {
	switch c.Registry.Driver {
	case DriverPostgres:
		store, err := registry.OpenPostgres(ctx, c.Registry.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return registry.NewMemoryStore(), func() error { return nil }, nil
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
