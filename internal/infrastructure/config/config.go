// Package config loads the persisted JSON configuration from the
// platform config dir and overlays provider API keys from the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// appDirName is the directory under the platform config root.
const appDirName = "steer"

// Config is the persisted application configuration.
type Config struct {
	Model         string              `mapstructure:"model" json:"model"`
	HistorySize   int                 `mapstructure:"history_size" json:"history_size"`
	SystemPrompt  string              `mapstructure:"system_prompt" json:"system_prompt"`
	Notifications NotificationConfig  `mapstructure:"notifications" json:"notifications"`
	Database      DatabaseConfig      `mapstructure:"database" json:"database"`
	Log           LogConfig           `mapstructure:"log" json:"log"`
	Providers     map[string]Provider `mapstructure:"providers" json:"providers,omitempty"`
}

// NotificationConfig toggles completion notifications.
type NotificationConfig struct {
	EnableSound   bool `mapstructure:"enable_sound" json:"enable_sound"`
	EnableDesktop bool `mapstructure:"enable_desktop" json:"enable_desktop"`
}

// DatabaseConfig selects the session store.
type DatabaseConfig struct {
	Type string `mapstructure:"type" json:"type"` // "sqlite" | "postgres" | "memory"
	DSN  string `mapstructure:"dsn" json:"dsn"`
}

// LogConfig selects logging output.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// Provider holds a per-provider base URL override and key.
type Provider struct {
	BaseURL string `mapstructure:"base_url" json:"base_url,omitempty"`
	APIKey  string `mapstructure:"api_key" json:"api_key,omitempty"`
}

// envKeys maps provider names to the environment variables consulted,
// in priority order.
var envKeys = map[string][]string{
	"anthropic": {"CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"gemini":    {"GEMINI_API_KEY"},
	"xai":       {"GROK_API_KEY"},
}

// Dir returns the platform config directory for the application.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// Path returns the config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// CredentialPath returns the credential store location.
func CredentialPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials.json"), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model:       "claude-sonnet-4-5",
		HistorySize: 200,
		Database:    DatabaseConfig{Type: "sqlite"},
		Log:         LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads the config file when present, applies defaults, and
// overlays API keys from the environment. A missing file is not an
// error: defaults apply.
func Load() (*Config, error) {
	cfg := Default()

	path, err := Path()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays provider API keys from the environment. Explicit
// config file values win.
func applyEnv(cfg *Config) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]Provider)
	}
	for provider, keys := range envKeys {
		p := cfg.Providers[provider]
		if p.APIKey != "" {
			continue
		}
		for _, env := range keys {
			if val := os.Getenv(env); val != "" {
				p.APIKey = val
				cfg.Providers[provider] = p
				break
			}
		}
	}
}

// Write persists the configuration as indented JSON. Used by init.
func Write(cfg *Config, force bool) (string, error) {
	path, err := Path()
	if err != nil {
		return "", err
	}
	if _, statErr := os.Stat(path); statErr == nil && !force {
		return path, fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.Set("model", cfg.Model)
	v.Set("history_size", cfg.HistorySize)
	v.Set("system_prompt", cfg.SystemPrompt)
	v.Set("notifications", cfg.Notifications)
	v.Set("database", cfg.Database)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}
