// Package config handles configuration loading for scripdesk.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
	Store     StoreConfig     `mapstructure:"store"     yaml:"store"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	LLM       LLMConfig       `mapstructure:"llm"       yaml:"llm"`
	Docs      DocsConfig      `mapstructure:"docs"      yaml:"docs"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// StoreConfig holds the embedded database settings.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ProvidersConfig holds per-site fetch settings.
type ProvidersConfig struct {
	SearchTimeoutSec   int `mapstructure:"search_timeout_sec"   yaml:"search_timeout_sec"`
	ListTimeoutSec     int `mapstructure:"list_timeout_sec"     yaml:"list_timeout_sec"`
	SessionTTLSec      int `mapstructure:"session_ttl_sec"      yaml:"session_ttl_sec"`
	AnnouncementsLimit int `mapstructure:"announcements_limit"  yaml:"announcements_limit"`
}

// LLMConfig holds the Gemini question-answering settings.
type LLMConfig struct {
	GeminiKey string `mapstructure:"gemini_key" yaml:"gemini_key"`
	Model     string `mapstructure:"model"      yaml:"model"`
}

// DocsConfig holds document fetch/extraction settings.
type DocsConfig struct {
	MaxPages        int `mapstructure:"max_pages"         yaml:"max_pages"`
	FetchTimeoutSec int `mapstructure:"fetch_timeout_sec" yaml:"fetch_timeout_sec"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.scripdesk/config.yaml (home directory)
//  3. /etc/scripdesk/config.yaml (system)
//
// Environment variables override config file values.
// Format: SCRIPDESK_<SECTION>_<KEY>, e.g., SCRIPDESK_LLM_GEMINI_KEY
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".scripdesk"))
	v.AddConfigPath("/etc/scripdesk")

	v.SetEnvPrefix("SCRIPDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)

	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("SCRIPDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Store defaults
	v.SetDefault("store.path", filepath.Join(homeDir(), ".scripdesk", "data"))

	// Provider defaults
	v.SetDefault("providers.search_timeout_sec", 10)
	v.SetDefault("providers.list_timeout_sec", 15)
	v.SetDefault("providers.session_ttl_sec", 300) // 5 minutes
	v.SetDefault("providers.announcements_limit", 60)

	// LLM defaults
	v.SetDefault("llm.model", "gemini-2.0-flash")

	// Docs defaults
	v.SetDefault("docs.max_pages", 15)
	v.SetDefault("docs.fetch_timeout_sec", 30)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("SCRIPDESK_LLM_GEMINI_KEY"); key != "" {
		cfg.LLM.GeminiKey = key
	}
	// Accept the bare key name too, matching what most Gemini tooling expects.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && cfg.LLM.GeminiKey == "" {
		cfg.LLM.GeminiKey = key
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
