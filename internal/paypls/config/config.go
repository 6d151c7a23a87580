// Package config provides paypls-mcp configuration management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RobinCoderZhao/paypls-mcp/internal/paypls/wallet"
	appconfig "github.com/RobinCoderZhao/paypls-mcp/pkg/config"
	"github.com/RobinCoderZhao/paypls-mcp/pkg/storage"
)

// FileName is the config file looked up in the working and home directories.
const FileName = ".paypls.yaml"

// TokenHint tells the operator where to obtain an API token.
const TokenHint = "Get your token at https://paypls.io or https://test.paypls.io"

// Config is the main configuration for paypls-mcp.
type Config struct {
	API     wallet.Config  `yaml:"api"`
	HTTP    HTTPConfig     `yaml:"http"`
	Journal storage.Config `yaml:"journal"`
	Log     LogConfig      `yaml:"log"`
}

// HTTPConfig holds settings for the optional HTTP transport.
type HTTPConfig struct {
	Addr      string `yaml:"addr" env:"PAYPLS_HTTP_ADDR"`
	AuthToken string `yaml:"auth_token" env:"PAYPLS_HTTP_TOKEN"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" env:"PAYPLS_LOG_LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"PAYPLS_LOG_FORMAT"` // text, json
}

// StartupConfigError is a configuration problem that prevents serving.
type StartupConfigError struct {
	Key  string
	Hint string
}

func (e *StartupConfigError) Error() string {
	return fmt.Sprintf("%s is required", e.Key)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		API: wallet.Config{
			BaseURL: wallet.DefaultBaseURL,
		},
		Journal: storage.Config{
			Driver: storage.SQLite,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from path if given, otherwise from ./.paypls.yaml
// or ~/.paypls.yaml, whichever exists first. Environment variables override
// file values in every case.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := appconfig.Load(path, &cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	if _, err := os.Stat(FileName); err == nil {
		if err := appconfig.Load(FileName, &cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	globalPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		globalPath = filepath.Join(home, FileName)
	}
	if err := appconfig.LoadOrDefault(globalPath, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks settings required before serving.
func (c *Config) Validate() error {
	c.API.BaseURL = strings.TrimSpace(c.API.BaseURL)
	if c.API.BaseURL == "" {
		c.API.BaseURL = wallet.DefaultBaseURL
	}
	if strings.TrimSpace(c.API.Token) == "" {
		return &StartupConfigError{Key: "PAYPLS_TOKEN", Hint: TokenHint}
	}
	if c.API.Timeout < 0 {
		return errors.New("api.timeout must not be negative")
	}
	if c.API.RequestsPerMinute < 0 {
		return errors.New("api.requests_per_minute must not be negative")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q: want text or json", c.Log.Format)
	}
	return nil
}
