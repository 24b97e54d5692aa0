package seedfetch

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultServerURL   = "https://clientservices.googleapis.com/chrome-variations/seed"
	DefaultStoragePath = "./data/prefs"
	DefaultTimeout     = 4 * time.Second
	DefaultMaxSeedSize = 4 * mib
)

type Config struct {
	Server struct {
		URL           string `yaml:"url"`
		Platform      string `yaml:"platform"`
		RestrictGroup string `yaml:"restrictGroup"`
		Timeout       string `yaml:"timeout"`
	} `yaml:"server"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Fetch struct {
		MaxSeedSize string `yaml:"maxSeedSize"`
	} `yaml:"fetch"`

	Metrics struct {
		// Textfile, when set, receives the metrics in prometheus text format
		// after each run.
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	// compiled
	platform    Platform
	timeout     time.Duration
	maxSeedSize int64
}

func (c Config) Platform() Platform {
	return c.platform
}

func (c Config) Timeout() time.Duration {
	return c.timeout
}

func (c Config) MaxSeedSize() int64 {
	return c.maxSeedSize
}

func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(b)
}

func ParseConfig(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.compile(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) compile() error {
	if cfg.Server.URL == "" {
		cfg.Server.URL = DefaultServerURL
	}
	u, err := url.Parse(cfg.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server.url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("server.url: missing host")
	}

	p, err := ParsePlatform(cfg.Server.Platform)
	if err != nil {
		return fmt.Errorf("server.platform: %w", err)
	}
	cfg.platform = p

	cfg.timeout = DefaultTimeout
	if cfg.Server.Timeout != "" {
		d, err := time.ParseDuration(cfg.Server.Timeout)
		if err != nil {
			return fmt.Errorf("server.timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("server.timeout: must be positive")
		}
		cfg.timeout = d
	}

	if strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = DefaultStoragePath
	}

	cfg.maxSeedSize = DefaultMaxSeedSize
	if cfg.Fetch.MaxSeedSize != "" {
		n, err := parseBytes(cfg.Fetch.MaxSeedSize)
		if err != nil {
			return fmt.Errorf("fetch.maxSeedSize: %w", err)
		}
		if n <= 0 {
			return fmt.Errorf("fetch.maxSeedSize: must be positive")
		}
		cfg.maxSeedSize = n
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	return nil
}
