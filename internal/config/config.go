package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.chatdesk/config.toml plus environment
// overrides for credentials.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
	APIBaseURL     string `toml:"api_base_url"`
	SocketURL      string `toml:"socket_url"`
	ListenAddr     string `toml:"listen_addr"`
	PageSize       int    `toml:"page_size"`

	// Token is never written to the config file; it comes from the
	// CHATDESK_TOKEN environment variable (optionally via .env).
	Token string `toml:"-"`
}

const (
	defaultAPIBaseURL = "http://localhost:5003/api/v1"
	defaultSocketURL  = "ws://localhost:3001/socket"
	defaultListenAddr = ":8090"
	defaultPageSize   = 50
)

// Load reads config from the given path and applies env overrides.
// Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

// LoadOrDefault is Load, but a missing file yields the defaults instead
// of an error. Environment overrides still apply.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		cfg = &Config{}
		cfg.applyDefaults()
		cfg.applyEnv()
	}
	return cfg
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) applyDefaults() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
	if c.SocketURL == "" {
		c.SocketURL = defaultSocketURL
	}
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
}

func (c *Config) applyEnv() {
	// Pick up a .env file if one exists; real env vars win either way.
	_ = godotenv.Load()

	if v := os.Getenv("CHATDESK_TOKEN"); v != "" {
		c.Token = v
	}
	if v := os.Getenv("CHATDESK_API_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv("CHATDESK_SOCKET_URL"); v != "" {
		c.SocketURL = v
	}
	if v := os.Getenv("CHATDESK_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("CHATDESK_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.PageSize = n
		}
	}
}
