// Copyright 2024 Video Portal Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads and validates the portal service configuration
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	// ErrMissingRequiredField is returned when a required configuration field is missing
	ErrMissingRequiredField = errors.New("missing required configuration field")
	// ErrInvalidConfigValue is returned when a configuration value is invalid
	ErrInvalidConfigValue = errors.New("invalid configuration value")
)

// Config represents the complete portal configuration
type Config struct {
	Vendor  VendorConfig  `mapstructure:"vendor"`
	Server  ServerConfig  `mapstructure:"server"`
	Ask     AskConfig     `mapstructure:"ask"`
	Tenants TenantsConfig `mapstructure:"tenants"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// VendorConfig contains the hosted video/AI platform connection settings.
// APIKey is the fallback key for tenants without their own.
type VendorConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"apikey"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AskConfig contains limits and timeouts for the ask capabilities
type AskConfig struct {
	DefaultLimit           int `mapstructure:"default_limit"`
	MaxLimit               int `mapstructure:"max_limit"`
	FallbackTimeoutSeconds int `mapstructure:"fallback_timeout_seconds"`
}

// TenantsConfig contains tenant store and resolver cache settings
type TenantsConfig struct {
	DBPath          string `mapstructure:"db_path"`
	CacheSize       int    `mapstructure:"cache_size"`
	CacheTTLMinutes int    `mapstructure:"cache_ttl_minutes"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// LoadOptions contains options for configuration loading
type LoadOptions struct {
	ConfigPath       string
	Environment      string
	ValidateRequired bool
}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over config file values.
func Load(configPath string) (*Config, error) {
	return LoadWithOptions(LoadOptions{
		ConfigPath:       configPath,
		Environment:      getEnvironment(),
		ValidateRequired: true,
	})
}

// LoadWithOptions loads configuration with additional options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := setConfigFile(v, opts.ConfigPath); err != nil {
		return nil, fmt.Errorf("failed to set config file: %w", err)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("VIDEO_PORTAL")

	if err := v.ReadInConfig(); err != nil {
		// Running on env vars alone is supported; only a broken file is fatal
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && v.ConfigFileUsed() != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setEnvironmentMappings(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if opts.ValidateRequired {
		if err := validateConfig(&config); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Vendor defaults
	v.SetDefault("vendor.endpoint", "https://api.videoplatform.example.com")

	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Ask defaults. The fallback timeout must stay below the platform
	// gateway's own 30s ceiling so clients get a clear timeout error.
	v.SetDefault("ask.default_limit", 5)
	v.SetDefault("ask.max_limit", 20)
	v.SetDefault("ask.fallback_timeout_seconds", 25)

	// Tenant defaults
	v.SetDefault("tenants.db_path", "./tenants.db")
	v.SetDefault("tenants.cache_size", 256)
	v.SetDefault("tenants.cache_ttl_minutes", 5)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// setConfigFile sets the configuration file path with fallback logic
func setConfigFile(v *viper.Viper, configPath string) error {
	// Check for CONFIG_PATH environment variable
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return fmt.Errorf("config file specified by CONFIG_PATH does not exist: %s", envPath)
		}
		v.SetConfigFile(envPath)
		return nil
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		return nil
	}

	// Default fallback locations; absence is fine, env vars may carry the rest
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	return nil
}

// setEnvironmentMappings sets explicit environment variable mappings
func setEnvironmentMappings(v *viper.Viper) {
	envMappings := map[string]string{
		"VENDOR_API_KEY":  "vendor.apikey",
		"VENDOR_ENDPOINT": "vendor.endpoint",
		"PORT":            "server.port",
		"TENANTS_DB_PATH": "tenants.db_path",
		"LOG_LEVEL":       "logging.level",
		"LOG_FORMAT":      "logging.format",
		"LOG_OUTPUT":      "logging.output",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}
}

// validateConfig validates the configuration for required fields and valid values
func validateConfig(config *Config) error {
	var errs []ValidationError

	if config.Vendor.Endpoint == "" {
		errs = append(errs, ValidationError{
			Field:   "vendor.endpoint",
			Message: "platform endpoint is required. Set via config file or VENDOR_ENDPOINT environment variable",
		})
	}

	if config.Ask.DefaultLimit <= 0 {
		errs = append(errs, ValidationError{
			Field:   "ask.default_limit",
			Message: "default_limit must be greater than 0",
		})
	}

	if config.Ask.MaxLimit < config.Ask.DefaultLimit {
		errs = append(errs, ValidationError{
			Field:   "ask.max_limit",
			Message: "max_limit must be greater than or equal to default_limit",
		})
	}

	if config.Ask.FallbackTimeoutSeconds <= 0 || config.Ask.FallbackTimeoutSeconds >= 30 {
		errs = append(errs, ValidationError{
			Field:   "ask.fallback_timeout_seconds",
			Message: "fallback_timeout_seconds must be between 1 and 29 to stay below the platform request ceiling",
		})
	}

	if config.Tenants.DBPath == "" {
		errs = append(errs, ValidationError{
			Field:   "tenants.db_path",
			Message: "tenant database path is required",
		})
	} else {
		if err := validateDirectoryExists(filepath.Dir(config.Tenants.DBPath)); err != nil {
			errs = append(errs, ValidationError{
				Field:   "tenants.db_path",
				Message: fmt.Sprintf("tenant database directory does not exist: %s", filepath.Dir(config.Tenants.DBPath)),
			})
		}
	}

	if config.Tenants.CacheSize <= 0 {
		errs = append(errs, ValidationError{
			Field:   "tenants.cache_size",
			Message: "cache_size must be greater than 0",
		})
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, config.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")),
		})
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, config.Logging.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")),
		})
	}

	if len(errs) > 0 {
		var errorMessages []string
		for _, err := range errs {
			errorMessages = append(errorMessages, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errorMessages, "\n"))
	}

	return nil
}

// MaskSensitiveValues returns a copy of the config with sensitive values masked
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c

	if masked.Vendor.APIKey != "" {
		masked.Vendor.APIKey = maskValue(masked.Vendor.APIKey)
	}

	return &masked
}

// maskValue masks sensitive values, showing only the first 8 characters
func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-8)
}

// contains checks if a slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateDirectoryExists checks if a directory exists
func validateDirectoryExists(path string) error {
	if path == "" || path == "." {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	return nil
}

// getEnvironment returns the current environment (development, production, etc.)
func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "development"
}

// WatchConfig enables configuration hot-reloading for development
func WatchConfig(configPath string, callback func(*Config)) error {
	v := viper.New()

	if err := setConfigFile(v, configPath); err != nil {
		return err
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		fmt.Printf("Config file changed: %s\n", e.Name)

		config, err := LoadWithOptions(LoadOptions{
			ConfigPath:       configPath,
			Environment:      getEnvironment(),
			ValidateRequired: true,
		})
		if err != nil {
			fmt.Printf("Failed to reload config: %v\n", err)
			return
		}

		callback(config)
	})

	return nil
}
