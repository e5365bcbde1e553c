package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the access-control service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Override OverrideConfig `mapstructure:"override"`
	Session  SessionConfig  `mapstructure:"session"`
	LogLevel string         `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// AuthConfig holds the auth backend endpoint configuration.
type AuthConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// AuditConfig holds the audit backend endpoint and delivery settings.
type AuditConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	QueueSize      int    `mapstructure:"queue_size"`
	MaxRetries     int    `mapstructure:"max_retries"`
	RetryBackoffMS int    `mapstructure:"retry_backoff_ms"`
}

// OverrideConfig holds emergency override settings.
type OverrideConfig struct {
	DurationSeconds int `mapstructure:"duration_seconds"`
	MinReasonLength int `mapstructure:"min_reason_length"`
}

// SessionConfig holds token persistence settings.
type SessionConfig struct {
	TokenFile string `mapstructure:"token_file"`
}

// Duration returns the configured override window.
func (o OverrideConfig) Duration() time.Duration {
	return time.Duration(o.DurationSeconds) * time.Second
}

// Timeout returns the auth backend request timeout.
func (a AuthConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// Timeout returns the audit backend request timeout.
func (a AuditConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// RetryBackoff returns the delay between audit delivery retries.
func (a AuditConfig) RetryBackoff() time.Duration {
	return time.Duration(a.RetryBackoffMS) * time.Millisecond
}

// Load loads configuration from config files and environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/hms-access")

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideWithEnv(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8084)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)

	viper.SetDefault("auth.base_url", "http://localhost:8081")
	viper.SetDefault("auth.timeout_seconds", 10)

	viper.SetDefault("audit.base_url", "http://localhost:8082")
	viper.SetDefault("audit.timeout_seconds", 5)
	viper.SetDefault("audit.queue_size", 256)
	viper.SetDefault("audit.max_retries", 3)
	viper.SetDefault("audit.retry_backoff_ms", 500)

	// 30 minute emergency window, reasons must carry real content.
	viper.SetDefault("override.duration_seconds", 1800)
	viper.SetDefault("override.min_reason_length", 10)

	viper.SetDefault("session.token_file", defaultTokenFile())

	viper.SetDefault("log_level", "info")
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hms-access-token"
	}
	return home + "/.hms-access/token"
}

// overrideWithEnv overrides configuration with well-known environment variables.
func overrideWithEnv(config *Config) {
	if url := os.Getenv("AUTH_BASE_URL"); url != "" {
		config.Auth.BaseURL = url
	}
	if url := os.Getenv("AUDIT_BASE_URL"); url != "" {
		config.Audit.BaseURL = url
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration.
func validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Auth.BaseURL == "" {
		return fmt.Errorf("auth backend base URL is required")
	}
	if config.Audit.BaseURL == "" {
		return fmt.Errorf("audit backend base URL is required")
	}
	if config.Override.DurationSeconds <= 0 {
		return fmt.Errorf("override duration must be positive: %d", config.Override.DurationSeconds)
	}
	if config.Override.MinReasonLength <= 0 {
		return fmt.Errorf("override minimum reason length must be positive: %d", config.Override.MinReasonLength)
	}
	return nil
}
