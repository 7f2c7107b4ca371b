// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/vulnbridge/api/schemas"
)

// ProviderConfig carries everything needed to talk to one backend instance.
// It is built once per run by the input-parsing layer (cmd); the core never
// reads flags or environment variables itself.
type ProviderConfig struct {
	// Kind selects the backend dialect. When empty it is inferred from the
	// populated credential fields.
	Kind schemas.ProviderKind `mapstructure:"kind" yaml:"kind"`

	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	AppName    string `mapstructure:"app_name" yaml:"app_name"`
	AppVersion string `mapstructure:"app_version" yaml:"app_version"`

	// Exactly one credential set may be populated: CIToken for SSC, or
	// APIKey+APISecret for FoD.
	CIToken   string `mapstructure:"ci_token" yaml:"-"`
	APIKey    string `mapstructure:"api_key" yaml:"-"`
	APISecret string `mapstructure:"api_secret" yaml:"-"`

	// MaxIssues caps how many findings a fetch accumulates.
	MaxIssues int `mapstructure:"max_issues" yaml:"max_issues"`

	// ResolvedVersionID is attached by the assembler after name resolution so
	// downstream link generation does not resolve again.
	ResolvedVersionID string `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// NetworkConfig tunes the outbound HTTP behavior.
type NetworkConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// IgnoreTLSErrors tolerates self-signed certificates. Installations
	// frequently run behind internal CAs; enabling this is an explicit
	// operator decision.
	IgnoreTLSErrors bool `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
}

// DatabaseConfig holds the optional run-history journal connection.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// Config is the whole application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Network  NetworkConfig  `mapstructure:"network" yaml:"network"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Provider ProviderConfig `mapstructure:"provider" yaml:"provider"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "vulnbridge")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.ignore_tls_errors", false)

	// -- Provider --
	v.SetDefault("provider.max_issues", 10000)
}

// NewFromViper creates a configuration instance from a viper object.
func NewFromViper(v *viper.Viper) (*Config, error) {
	// Credentials come from the environment in CI; never from the file.
	_ = v.BindEnv("provider.ci_token", "VULNBRIDGE_CI_TOKEN")
	_ = v.BindEnv("provider.api_key", "VULNBRIDGE_API_KEY")
	_ = v.BindEnv("provider.api_secret", "VULNBRIDGE_API_SECRET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Validate checks cross-cutting settings. Provider completeness is checked by
// the factory right before a run, because the validate/fetch commands supply
// some provider fields via flags.
func (c *Config) Validate() error {
	if c.Network.Timeout <= 0 {
		return fmt.Errorf("network.timeout must be a positive duration")
	}
	if c.Provider.MaxIssues <= 0 {
		return fmt.Errorf("provider.max_issues must be a positive integer")
	}
	return nil
}
