// Package config loads and validates the gateway configuration from a YAML
// file with ${VAR} environment substitution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for solgate.
type Config struct {
	General   GeneralConfig   `yaml:"general"`
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Chain     ChainConfig     `yaml:"chain"`
	Database  DatabaseConfig  `yaml:"database"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Transfer  TransferConfig  `yaml:"transfer"`
}

type GeneralConfig struct {
	LogLevel string `yaml:"logLevel"` // debug | info | warn | error
}

type ServerConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	AllowedOrigin string `yaml:"allowedOrigin"` // CORS origin, "*" by default
}

// ProvidersConfig holds credentials and endpoints for external collaborators.
type ProvidersConfig struct {
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Expand  ExpandConfig  `yaml:"expand"`
	Tracker TrackerConfig `yaml:"tracker"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	APIBase string `yaml:"apiBase"`
	Model   string `yaml:"model"`
}

type ExpandConfig struct {
	APIKey  string `yaml:"apiKey"`
	APIBase string `yaml:"apiBase"`
}

type TrackerConfig struct {
	APIKey  string `yaml:"apiKey"`
	APIBase string `yaml:"apiBase"`
}

type ChainConfig struct {
	RPCURL                string `yaml:"rpcUrl"`
	Cluster               string `yaml:"cluster"`    // devnet | testnet | mainnet-beta
	Commitment            string `yaml:"commitment"` // confirmed | finalized
	ConfirmTimeoutSeconds int    `yaml:"confirmTimeoutSeconds"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Token     string   `yaml:"token"`
	AllowFrom []string `yaml:"allowFrom"` // user IDs; empty = allow all
}

type TransferConfig struct {
	EstimatedFeeLamports int64 `yaml:"estimatedFeeLamports"`
}

// DefaultConfigDir returns the directory holding the default config file.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".solgate"
	}
	return filepath.Join(home, ".solgate")
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads, expands, and validates the config at path. Values not present
// in the file keep their defaults.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}.
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Database.Path = ExpandPath(cfg.Database.Path)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if v := os.Getenv(groups[1]); v != "" {
			return v
		}
		return groups[2]
	})
}

// Save writes the config as YAML, creating the directory if needed.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has usable values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.Chain.Commitment {
	case "", "processed", "confirmed", "finalized":
	default:
		errs = append(errs, "chain.commitment must be one of: processed, confirmed, finalized")
	}
	if cfg.Chain.ConfirmTimeoutSeconds < 1 {
		errs = append(errs, "chain.confirmTimeoutSeconds must be >= 1")
	}
	if cfg.Transfer.EstimatedFeeLamports < 0 {
		errs = append(errs, "transfer.estimatedFeeLamports must be >= 0")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// ExpandPath resolves a leading ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
