package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MEDVEX"

// defaults lists every configuration key. Keys without a meaningful default
// are present with their zero value so that environment variables can set them.
var defaults = map[string]any{
	"server.port":             8080,
	"server.log_level":        "info",
	"server.log_format":       "json",
	"server.shutdown_timeout": 10 * time.Second,
	"server.read_timeout":     15 * time.Second,
	"server.write_timeout":    30 * time.Second,

	"database.driver":            "postgres",
	"database.url":               "",
	"database.max_open_conns":    10,
	"database.max_idle_conns":    5,
	"database.conn_max_lifetime": 30 * time.Minute,
	"database.auto_migrate":      false,

	"cache.backend":     "memory",
	"cache.redis_url":   "",
	"cache.ttl":         24 * time.Hour,
	"cache.receipt_ttl": time.Hour,

	"resilience.max_attempts":              3,
	"resilience.initial_delay":             300 * time.Millisecond,
	"resilience.multiplier":                1.5,
	"resilience.max_delay":                 10 * time.Second,
	"resilience.jitter_percent":            0,
	"resilience.attempt_timeout":           60 * time.Second,
	"resilience.breaker.failure_threshold": 5,
	"resilience.breaker.failure_ratio":     0.5,
	"resilience.breaker.min_requests":      10,
	"resilience.breaker.window":            60 * time.Second,
	"resilience.breaker.cooldown":          60 * time.Second,

	"task.worker_count": 4,
	"task.queue_size":   100,

	"extraction.provider":             "gemini",
	"extraction.gemini_api_key":       "",
	"extraction.model_name":           "gemini-2.0-flash",
	"extraction.temperature":          0.2,
	"extraction.prompt_template_path": "prompts/extraction.tmpl",
	"extraction.http_url":             "",
	"extraction.http_timeout":         60 * time.Second,
	"extraction.http_auth_token":      "",
	"extraction.schema_path":          "",

	"fingerprint.algorithm": "blake2b",

	"auth.jwt_secret":     "",
	"auth.token_lifetime": 24 * time.Hour,
}

// Load reads configuration from defaults, an optional YAML file and
// MEDVEX_-prefixed environment variables, in increasing precedence.
//
// When path is empty, config.yaml is looked up in the working directory and
// its absence is not an error. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
