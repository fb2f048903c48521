// Package config handles YAML configuration with defaults and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all bot configuration.
type Config struct {
	Telegram Telegram `yaml:"telegram"`
	Sources  Sources  `yaml:"sources"`
	Cache    Cache    `yaml:"cache"`
	Server   Server   `yaml:"server"`
	Log      Log      `yaml:"log"`
}

// Telegram holds Bot API settings.
type Telegram struct {
	Token       string `yaml:"token"`
	AdminChatID int64  `yaml:"admin_chat_id"`
}

// Sources holds upstream data source settings.
type Sources struct {
	DevicesURL    string `yaml:"devices_url"`
	DevicesFormat string `yaml:"devices_format"` // "structured" | "flat" | "markdown"
	OTABaseURL    string `yaml:"ota_base_url"`
}

// Cache holds memoization settings.
type Cache struct {
	TTL time.Duration `yaml:"ttl"`
}

// Server holds HTTP listener settings.
type Server struct {
	Address string `yaml:"address"`
}

// Log holds logging settings.
type Log struct {
	Level  string `yaml:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `yaml:"format"` // "text" | "json"
}

// Default returns a Config with sensible defaults. The Telegram token has
// no default and must be supplied.
func Default() Config {
	return Config{
		Sources: Sources{
			DevicesURL:    "https://raw.githubusercontent.com/AxionAOSP/official_devices/main/dinfo.json",
			DevicesFormat: "structured",
			OTABaseURL:    "https://raw.githubusercontent.com/AxionAOSP/official_devices/main/OTA",
		},
		Cache: Cache{
			TTL: 60 * time.Second,
		},
		Server: Server{
			Address: ":8080",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for completeness.
func (c Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if c.Sources.DevicesURL == "" {
		return fmt.Errorf("devices URL is required")
	}
	if c.Sources.OTABaseURL == "" {
		return fmt.Errorf("OTA base URL is required")
	}
	switch c.Sources.DevicesFormat {
	case "structured", "flat", "markdown":
	default:
		return fmt.Errorf("invalid devices format %q", c.Sources.DevicesFormat)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}
	return nil
}
