// Package config loads tendril settings from defaults, an optional YAML or
// TOML file and TENDRIL_* environment variables, in that order.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level" toml:"log_level"`
	AgentsDir string          `yaml:"agents_dir" toml:"agents_dir"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Hub       HubConfig       `yaml:"hub" toml:"hub"`
	HTTP      HTTPConfig      `yaml:"http" toml:"http"`
	Runtime   RuntimeConfig   `yaml:"runtime" toml:"runtime"`
	Anthropic AnthropicConfig `yaml:"anthropic" toml:"anthropic"`
}

// StoreConfig selects the row store.
type StoreConfig struct {
	Driver      string `yaml:"driver" toml:"driver"` // memory, sqlite or redis
	SQLitePath  string `yaml:"sqlite_path" toml:"sqlite_path"`
	RedisAddr   string `yaml:"redis_addr" toml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix" toml:"redis_prefix"`
}

// HubConfig selects the work notification transport.
type HubConfig struct {
	Driver    string `yaml:"driver" toml:"driver"` // memory, redis or nats
	RedisAddr string `yaml:"redis_addr" toml:"redis_addr"`
	NATSURL   string `yaml:"nats_url" toml:"nats_url"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

type RuntimeConfig struct {
	MaxStackIterations int `yaml:"max_stack_iterations" toml:"max_stack_iterations"`
}

type AnthropicConfig struct {
	APIKey    string `yaml:"api_key" toml:"api_key"`
	MaxTokens int    `yaml:"max_tokens" toml:"max_tokens"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Store: StoreConfig{
			Driver:      "sqlite",
			SQLitePath:  "./data/tendril.db",
			RedisPrefix: "tendril:",
		},
		Hub: HubConfig{
			Driver: "memory",
		},
		HTTP:    HTTPConfig{Addr: ":8080"},
		Runtime: RuntimeConfig{MaxStackIterations: 10},
		Anthropic: AnthropicConfig{
			MaxTokens: 1024,
		},
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format '%s'", filepath.Ext(path))
	}
	return nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("TENDRIL_LOG_LEVEL", c.LogLevel)
	c.AgentsDir = getEnv("TENDRIL_AGENTS_DIR", c.AgentsDir)

	c.Store.Driver = getEnv("TENDRIL_STORE_DRIVER", c.Store.Driver)
	c.Store.SQLitePath = getEnv("TENDRIL_STORE_SQLITE_PATH", c.Store.SQLitePath)
	c.Store.RedisAddr = getEnv("TENDRIL_STORE_REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPrefix = getEnv("TENDRIL_STORE_REDIS_PREFIX", c.Store.RedisPrefix)

	c.Hub.Driver = getEnv("TENDRIL_HUB_DRIVER", c.Hub.Driver)
	c.Hub.RedisAddr = getEnv("TENDRIL_HUB_REDIS_ADDR", c.Hub.RedisAddr)
	c.Hub.NATSURL = getEnv("TENDRIL_HUB_NATS_URL", c.Hub.NATSURL)

	c.HTTP.Addr = getEnv("TENDRIL_HTTP_ADDR", c.HTTP.Addr)
	c.Runtime.MaxStackIterations = getEnvInt("TENDRIL_RUNTIME_MAX_STACK_ITERATIONS", c.Runtime.MaxStackIterations)

	c.Anthropic.APIKey = getEnv("ANTHROPIC_API_KEY", c.Anthropic.APIKey)
	c.Anthropic.APIKey = getEnv("TENDRIL_ANTHROPIC_API_KEY", c.Anthropic.APIKey)
	c.Anthropic.MaxTokens = getEnvInt("TENDRIL_ANTHROPIC_MAX_TOKENS", c.Anthropic.MaxTokens)
}

// Validate checks drivers and the addresses they need.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path cannot be empty")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("store.redis_addr cannot be empty")
		}
	default:
		return fmt.Errorf("unknown store driver '%s'", c.Store.Driver)
	}

	switch c.Hub.Driver {
	case "memory":
	case "redis":
		if c.Hub.RedisAddr == "" && c.Store.RedisAddr == "" {
			return fmt.Errorf("hub.redis_addr cannot be empty")
		}
	case "nats":
		if c.Hub.NATSURL == "" {
			return fmt.Errorf("hub.nats_url cannot be empty")
		}
	default:
		return fmt.Errorf("unknown hub driver '%s'", c.Hub.Driver)
	}

	if c.Runtime.MaxStackIterations <= 0 {
		return fmt.Errorf("runtime.max_stack_iterations must be > 0")
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level '%s'", c.LogLevel)
	}
	return l, nil
}

// HubRedisAddr is the hub address, falling back to the store address.
func (c *Config) HubRedisAddr() string {
	if c.Hub.RedisAddr != "" {
		return c.Hub.RedisAddr
	}
	return c.Store.RedisAddr
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
