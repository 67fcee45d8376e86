// Package config loads the node configuration from a YAML file and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"zoldnode/internal/debuglog"
)

const (
	EnvHome       = "ZOLD_HOME"
	EnvPassphrase = "ZOLD_KEY_PASSPHRASE"
	FileName      = "config.yaml"
)

const (
	DefaultNetwork    = "zold"
	DefaultListen     = "127.0.0.1:4096"
	DefaultTimeout    = 10 * time.Second
	DefaultWorkers    = 8
	DefaultRatePerSec = 20
	DefaultRateBurst  = 40
)

var ErrInvalid = errors.New("invalid config")

// RemoteConfig is a statically configured peer. Score suffixes seed the
// remote's score until it is refreshed.
type RemoteConfig struct {
	Name  string   `yaml:"name"`
	Addr  string   `yaml:"addr"`
	Score []string `yaml:"score,omitempty"`
}

type Config struct {
	Home       string `yaml:"-"`
	Passphrase string `yaml:"-"`

	Network    string `yaml:"network"`
	WalletsDir string `yaml:"wallets_dir"`
	WalletExt  string `yaml:"wallet_ext"`

	Remotes  []RemoteConfig `yaml:"remotes"`
	Timeout  time.Duration  `yaml:"timeout"`
	Workers  int            `yaml:"workers"`
	BookPath string         `yaml:"book_path"`

	Listen          string  `yaml:"listen"`
	RatePerSec      float64 `yaml:"rate_per_sec"`
	RateBurst       int     `yaml:"rate_burst"`
	MaxConnsPerIP   int     `yaml:"max_conns_per_ip"`
	MaxStreamsPerIP int     `yaml:"max_streams_per_ip"`
	Insecure        bool    `yaml:"insecure"`
	CAPath          string  `yaml:"ca_path"`

	RedisAddr string        `yaml:"redis_addr"`
	RedisTTL  time.Duration `yaml:"redis_ttl"`

	MetricsPath string `yaml:"metrics_path"`
	Debug       bool   `yaml:"debug"`
}

// DefaultHome is $ZOLD_HOME, or ~/.zold.
func DefaultHome() string {
	if h := strings.TrimSpace(os.Getenv(EnvHome)); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".zold"
	}
	return filepath.Join(home, ".zold")
}

// Load reads path, or <home>/config.yaml when path is empty. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{Home: DefaultHome()}
	if path == "" {
		path = filepath.Join(cfg.Home, FileName)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		debuglog.Debugf("config: %s missing, using defaults", path)
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvHome)); v != "" {
		c.Home = v
	}
	if os.Getenv(debuglog.EnvDebug) == "1" {
		c.Debug = true
	}
	if v := os.Getenv(EnvPassphrase); v != "" {
		c.Passphrase = v
	}
}

func (c *Config) applyDefaults() {
	if c.Network == "" {
		c.Network = DefaultNetwork
	}
	if c.WalletsDir == "" {
		c.WalletsDir = filepath.Join(c.Home, "wallets")
	}
	if c.BookPath == "" {
		c.BookPath = filepath.Join(c.Home, "remotes.db")
	}
	if c.MetricsPath == "" {
		c.MetricsPath = filepath.Join(c.Home, "metrics.json")
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.RatePerSec == 0 {
		c.RatePerSec = DefaultRatePerSec
	}
	if c.RateBurst == 0 {
		c.RateBurst = DefaultRateBurst
	}
}

func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %s", ErrInvalid, c.Timeout)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: negative workers %d", ErrInvalid, c.Workers)
	}
	if c.RatePerSec < 0 || c.RateBurst < 0 {
		return fmt.Errorf("%w: negative rate limit", ErrInvalid)
	}
	if strings.ContainsAny(c.WalletExt, "./") {
		return fmt.Errorf("%w: wallet_ext %q must be a bare extension", ErrInvalid, c.WalletExt)
	}
	seen := make(map[string]bool, len(c.Remotes))
	for i, r := range c.Remotes {
		if strings.TrimSpace(r.Addr) == "" {
			return fmt.Errorf("%w: remote #%d has no addr", ErrInvalid, i+1)
		}
		if seen[r.Addr] {
			return fmt.Errorf("%w: remote %s listed twice", ErrInvalid, r.Addr)
		}
		seen[r.Addr] = true
	}
	return nil
}

// Save writes c as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
