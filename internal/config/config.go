// Package config provides configuration management for the neroshop server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the neroshop server configuration.
type Config struct {
	Network NetworkConfig `yaml:"network"`
	Storage StorageConfig `yaml:"storage"`
	Market  MarketConfig  `yaml:"market"`
	Orders  OrderConfig   `yaml:"orders"`
	API     APIConfig     `yaml:"api"`
	Logging LoggingConfig `yaml:"logging"`
}

// NetworkConfig contains network-related settings.
type NetworkConfig struct {
	Listen         []string `yaml:"listen"`
	Bootstrap      []string `yaml:"bootstrap"`
	MaxConns       int      `yaml:"max_connections"`
	ProtocolPrefix string   `yaml:"protocol_prefix"`
	Namespace      string   `yaml:"namespace"` // DHT record namespace, e.g. "neroshop"
	EnableMDNS     bool     `yaml:"enable_mdns"`
	Offline        bool     `yaml:"offline"` // in-memory DHT, no libp2p host
}

// StorageConfig contains storage-related settings.
type StorageConfig struct {
	Path     string `yaml:"path"`
	Database string `yaml:"database"`
}

// MarketConfig contains pricing settings.
type MarketConfig struct {
	CanonicalCoin     string             `yaml:"canonical_coin"`
	PreferredCurrency string             `yaml:"preferred_currency"`
	PriceSource       string             `yaml:"price_source"` // "cointelegraph" or "static"
	TickerURL         string             `yaml:"ticker_url"`
	StaticRates       map[string]float64 `yaml:"static_rates"` // "XMR/USD": 160.5
	RateCacheTTL      time.Duration      `yaml:"rate_cache_ttl"`
	RequestTimeout    time.Duration      `yaml:"request_timeout"`
}

// OrderConfig contains cart and order settings.
type OrderConfig struct {
	CartMaxItems           int           `yaml:"cart_max_items"`
	CartMaxQuantity        int           `yaml:"cart_max_quantity"`
	CancelWindow           time.Duration `yaml:"cancel_window"`
	PublishMaxRetries      uint64        `yaml:"publish_max_retries"`
	PublishInitialInterval time.Duration `yaml:"publish_initial_interval"`
	PublishMaxElapsed      time.Duration `yaml:"publish_max_elapsed"`
	AnnounceTopic          string        `yaml:"announce_topic"`
}

// APIConfig contains HTTP API settings.
type APIConfig struct {
	Enabled       bool    `yaml:"enabled"`
	ListenAddr    string  `yaml:"listen_addr"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
	EnableMetrics bool    `yaml:"enable_metrics"`
}

// LoggingConfig contains log settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataPath := filepath.Join(homeDir, ".config", "neroshop")

	return &Config{
		Network: NetworkConfig{
			Listen: []string{
				"/ip4/0.0.0.0/tcp/50881",
				"/ip4/0.0.0.0/tcp/50882/ws",
			},
			Bootstrap:      []string{},
			MaxConns:       400,
			ProtocolPrefix: "/neroshop",
			Namespace:      "neroshop",
			EnableMDNS:     true,
		},
		Storage: StorageConfig{
			Path:     dataPath,
			Database: "data.sqlite3",
		},
		Market: MarketConfig{
			CanonicalCoin:     "XMR",
			PreferredCurrency: "USD",
			PriceSource:       "cointelegraph",
			TickerURL:         "https://ticker-api.cointelegraph.com/rates/?full=true",
			RateCacheTTL:      5 * time.Minute,
			RequestTimeout:    10 * time.Second,
		},
		Orders: OrderConfig{
			CartMaxItems:           10,
			CartMaxQuantity:        100,
			CancelWindow:           12 * time.Hour,
			PublishMaxRetries:      3,
			PublishInitialInterval: 500 * time.Millisecond,
			PublishMaxElapsed:      15 * time.Second,
			AnnounceTopic:          "/neroshop/orders",
		},
		API: APIConfig{
			Enabled:       true,
			ListenAddr:    "127.0.0.1:50880",
			RatePerSecond: 20,
			Burst:         40,
			EnableMetrics: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "neroshop", "config.yaml")
}

// DatabasePath returns the full path of the SQLite database file.
func (c *Config) DatabasePath() string {
	name := c.Storage.Database
	if name == "" {
		name = "data.sqlite3"
	}
	return filepath.Join(c.Storage.Path, name)
}

// Validate checks settings that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Market.CanonicalCoin) == "" {
		return fmt.Errorf("market.canonical_coin must be set")
	}
	if c.Orders.CartMaxItems <= 0 || c.Orders.CartMaxQuantity <= 0 {
		return fmt.Errorf("orders.cart_max_items and orders.cart_max_quantity must be positive")
	}
	switch c.Market.PriceSource {
	case "cointelegraph", "static":
	default:
		return fmt.Errorf("unknown market.price_source %q", c.Market.PriceSource)
	}
	if c.Market.PriceSource == "static" && len(c.Market.StaticRates) == 0 {
		return fmt.Errorf("market.static_rates is empty but price_source is static")
	}
	if !c.Network.Offline && c.Network.Namespace == "" {
		return fmt.Errorf("network.namespace must be set")
	}
	return nil
}

// Load loads the configuration from a file.
// Fields absent from the file keep their default values.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default config if file doesn't exist
			return Default(), nil
		}
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Save saves the configuration to a file.
func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath()
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
