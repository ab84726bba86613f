// Package config provides configuration management for the pkgkit CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/fluxbase-eu/pkgkit/cli/bundler"
)

// EnvPrefix prefixes every environment variable read by the CLI.
const EnvPrefix = "PKGKIT"

// Log formats
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Config holds the CLI settings
type Config struct {
	// NodePath is the JavaScript runtime used for script generators.
	// Empty means it is looked up on PATH.
	NodePath string `mapstructure:"node_path"`

	// GeneratorTimeout bounds a single script generator invocation
	GeneratorTimeout time.Duration `mapstructure:"generator_timeout"`

	// MonorepoRoot is used to rewrite repository.directory in publish manifests
	MonorepoRoot string `mapstructure:"monorepo_root"`

	// Target is the language level of emitted bundles
	Target string `mapstructure:"target"`

	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`
}

// DefaultConfigDir returns the per-user configuration directory
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pkgkit"
	}
	return filepath.Join(home, ".pkgkit")
}

// Load loads configuration from the config file, .env files and environment
// variables. An explicit path must exist; otherwise pkgkit.yaml is looked up in
// the working directory, ./config and the user configuration directory.
func Load(path string) (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("pkgkit")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(DefaultConfigDir())
	}

	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Debug().Str("file", viper.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads environment variables from the first .env file found
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Debug().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("node_path", "")
	viper.SetDefault("generator_timeout", "30s")
	viper.SetDefault("monorepo_root", "")
	viper.SetDefault("target", bundler.DefaultTarget)
	viper.SetDefault("debug", false)
	viper.SetDefault("log_format", LogFormatConsole)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.GeneratorTimeout <= 0 {
		return fmt.Errorf("generator_timeout must be positive")
	}

	if _, err := bundler.ParseTarget(c.Target); err != nil {
		return fmt.Errorf("target: %w", err)
	}

	if c.LogFormat != LogFormatConsole && c.LogFormat != LogFormatJSON {
		return fmt.Errorf("log_format must be '%s' or '%s'", LogFormatConsole, LogFormatJSON)
	}

	if c.NodePath != "" {
		if _, err := os.Stat(c.NodePath); err != nil {
			return fmt.Errorf("node_path %s: %w", c.NodePath, err)
		}
	}

	return nil
}
