package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Bridge     BridgeConfig     `yaml:"bridge" toml:"bridge"`
	Remote     RemoteConfig     `yaml:"remote" toml:"remote"`
	TokenStore TokenStoreConfig `yaml:"token_store" toml:"token_store"`
	Log        LogConfig        `yaml:"log" toml:"log"`
}

// BridgeConfig contains bridge connection settings
type BridgeConfig struct {
	Mode          string   `yaml:"mode" toml:"mode"`       // local or remote
	Address       string   `yaml:"address" toml:"address"` // host[:port], local mode only
	Username      string   `yaml:"username" toml:"username"`
	Timeout       Duration `yaml:"timeout" toml:"timeout"` // HTTP timeout per request
	RateLimitRPS  float64  `yaml:"rate_limit_rps" toml:"rate_limit_rps"`
	MaxConcurrent int      `yaml:"max_concurrent" toml:"max_concurrent"`
	NamePolicy    string   `yaml:"name_policy" toml:"name_policy"` // first or strict
}

// RemoteConfig contains cloud relay and token endpoint settings
type RemoteConfig struct {
	BaseURL              string   `yaml:"base_url" toml:"base_url"`
	AuthBaseURL          string   `yaml:"auth_base_url" toml:"auth_base_url"`
	TokenPath            string   `yaml:"token_path" toml:"token_path"`
	ClientID             string   `yaml:"client_id" toml:"client_id"`
	ClientSecret         string   `yaml:"client_secret" toml:"client_secret"`
	AppID                string   `yaml:"app_id" toml:"app_id"`
	RefreshMargin        Duration `yaml:"refresh_margin" toml:"refresh_margin"`
	RefreshTokenLifetime Duration `yaml:"refresh_token_lifetime" toml:"refresh_token_lifetime"`
}

// TokenStoreConfig selects where the remote token record is kept
type TokenStoreConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // file, sqlite or postgres
	Path   string `yaml:"path" toml:"path"`     // file and sqlite
	DSN    string `yaml:"dsn" toml:"dsn"`       // postgres
	Slot   string `yaml:"slot" toml:"slot"`     // sqlite and postgres row key
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Colors bool   `yaml:"colors" toml:"colors"`
	JSON   bool   `yaml:"json" toml:"json"`
}

// Duration is a wrapper around time.Duration for YAML and TOML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML decoder
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load reads, parses and validates the configuration file.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read parses the configuration file and applies defaults without validating, so
// callers can override settings first. Files ending in .toml are read as TOML,
// anything else as YAML.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Bridge defaults
	if cfg.Bridge.Mode == "" {
		cfg.Bridge.Mode = "local"
	}
	if cfg.Bridge.Timeout == 0 {
		cfg.Bridge.Timeout = Duration(10 * time.Second)
	}
	if cfg.Bridge.RateLimitRPS == 0 {
		cfg.Bridge.RateLimitRPS = 10.0
	}
	if cfg.Bridge.MaxConcurrent == 0 {
		cfg.Bridge.MaxConcurrent = 10
	}
	if cfg.Bridge.NamePolicy == "" {
		cfg.Bridge.NamePolicy = "first"
	}

	// Remote defaults
	if cfg.Remote.BaseURL == "" {
		cfg.Remote.BaseURL = "https://api.meethue.com/route/api"
	}
	if cfg.Remote.AuthBaseURL == "" {
		cfg.Remote.AuthBaseURL = "https://api.meethue.com"
	}
	if cfg.Remote.TokenPath == "" {
		cfg.Remote.TokenPath = "/v2/oauth2/token"
	}
	if cfg.Remote.RefreshMargin == 0 {
		cfg.Remote.RefreshMargin = Duration(5 * time.Minute)
	}
	if cfg.Remote.RefreshTokenLifetime == 0 {
		cfg.Remote.RefreshTokenLifetime = Duration(112 * 24 * time.Hour)
	}

	// Token store defaults
	if cfg.TokenStore.Driver == "" {
		cfg.TokenStore.Driver = "file"
	}
	if cfg.TokenStore.Path == "" {
		switch cfg.TokenStore.Driver {
		case "sqlite":
			cfg.TokenStore.Path = "./huebridge.sqlite"
		default:
			cfg.TokenStore.Path = "./huebridge-token.json"
		}
	}
	if cfg.TokenStore.Slot == "" {
		cfg.TokenStore.Slot = "default"
	}
}

// Validate checks the settings that have no sensible default.
func (cfg *Config) Validate() error {
	switch cfg.Bridge.Mode {
	case "local":
		if cfg.Bridge.Address == "" {
			return fmt.Errorf("bridge.address is required in local mode")
		}
	case "remote":
	default:
		return fmt.Errorf("bridge.mode must be local or remote, got %q", cfg.Bridge.Mode)
	}

	switch strings.ToLower(cfg.Bridge.NamePolicy) {
	case "first", "strict":
	default:
		return fmt.Errorf("bridge.name_policy must be first or strict, got %q", cfg.Bridge.NamePolicy)
	}

	switch cfg.TokenStore.Driver {
	case "file", "sqlite":
	case "postgres":
		if cfg.TokenStore.DSN == "" {
			return fmt.Errorf("token_store.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("token_store.driver must be file, sqlite or postgres, got %q", cfg.TokenStore.Driver)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
