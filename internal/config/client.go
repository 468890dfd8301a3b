package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ClientConfig holds runtime settings for the medcabinet terminal client.
//
// ServerURL doubles as the origin under which credentials are persisted, so
// switching servers never leaks a token from one backend to another.
type ClientConfig struct {
	ServerURL           string        `mapstructure:"SERVER_URL"`
	Env                 string        `mapstructure:"ENV"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	CredentialsDir      string        `mapstructure:"CREDENTIALS_DIR"`
	OnlineCheckInterval time.Duration `mapstructure:"ONLINE_CHECK_INTERVAL"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

func LoadClient() (*ClientConfig, error) {
	v := newViper()

	v.SetDefault("SERVER_URL", "http://localhost:8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "warn")
	v.SetDefault("ONLINE_CHECK_INTERVAL", "5s")
	v.SetDefault("REQUEST_TIMEOUT", "0s")

	for _, key := range []string{
		"SERVER_URL", "ENV", "LOG_LEVEL", "CREDENTIALS_DIR",
		"ONLINE_CHECK_INTERVAL", "REQUEST_TIMEOUT",
	} {
		_ = v.BindEnv(key)
	}
	_ = v.ReadInConfig()

	cfg := &ClientConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal client config: %w", err)
	}

	if cfg.CredentialsDir == "" {
		dir, err := defaultCredentialsDir()
		if err != nil {
			return nil, err
		}
		cfg.CredentialsDir = dir
	}

	return cfg, nil
}

// defaultCredentialsDir follows XDG_CONFIG_HOME, falling back to ~/.config.
func defaultCredentialsDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "medcabinet"), nil
}

// Origin returns the normalized scheme://host[:port] of ServerURL.
func (c *ClientConfig) Origin() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Host == "" {
		return strings.TrimRight(c.ServerURL, "/")
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

func (c *ClientConfig) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("SERVER_URL is invalid: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("SERVER_URL must use http or https, got %q", c.ServerURL)
	}
	if u.Host == "" {
		return fmt.Errorf("SERVER_URL must include a host, got %q", c.ServerURL)
	}
	if c.OnlineCheckInterval < 0 {
		return fmt.Errorf("ONLINE_CHECK_INTERVAL must not be negative")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative")
	}
	return nil
}
