package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database" validate:"required"`
	Cache       CacheConfig       `mapstructure:"cache" validate:"required"`
	Resilience  ResilienceConfig  `mapstructure:"resilience" validate:"required"`
	Task        TaskConfig        `mapstructure:"task" validate:"required"`
	Extraction  ExtractionConfig  `mapstructure:"extraction" validate:"required"`
	Fingerprint FingerprintConfig `mapstructure:"fingerprint" validate:"required"`
	Auth        AuthConfig        `mapstructure:"auth"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"omitempty,oneof=json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
}

// DatabaseConfig contains the job store connection settings.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"required,oneof=postgres sqlite"`
	URL             string        `mapstructure:"url" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// CacheConfig selects and tunes the result cache backend.
type CacheConfig struct {
	Backend    string        `mapstructure:"backend" validate:"required,oneof=memory redis none"`
	RedisURL   string        `mapstructure:"redis_url" validate:"required_if=Backend redis"`
	TTL        time.Duration `mapstructure:"ttl" validate:"gt=0"`
	ReceiptTTL time.Duration `mapstructure:"receipt_ttl" validate:"gt=0"`
}

// ResilienceConfig holds the retry and circuit breaker settings shared by
// every protected call site.
type ResilienceConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"gte=1,lte=20"`
	InitialDelay   time.Duration `mapstructure:"initial_delay" validate:"gt=0"`
	Multiplier     float64       `mapstructure:"multiplier" validate:"gte=1"`
	MaxDelay       time.Duration `mapstructure:"max_delay" validate:"gtefield=InitialDelay"`
	JitterPercent  uint64        `mapstructure:"jitter_percent" validate:"lte=100"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" validate:"gte=0"`
	Breaker        BreakerConfig `mapstructure:"breaker" validate:"required"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold" validate:"gte=1"`
	FailureRatio     float64       `mapstructure:"failure_ratio" validate:"gte=0,lte=1"`
	MinRequests      uint32        `mapstructure:"min_requests"`
	Window           time.Duration `mapstructure:"window" validate:"gte=0"`
	Cooldown         time.Duration `mapstructure:"cooldown" validate:"gt=0"`
}

// TaskConfig sizes the background worker pool.
type TaskConfig struct {
	WorkerCount int `mapstructure:"worker_count" validate:"gte=1"`
	QueueSize   int `mapstructure:"queue_size" validate:"gte=1"`
}

// ExtractionConfig selects the extraction provider.
type ExtractionConfig struct {
	Provider           string        `mapstructure:"provider" validate:"required,oneof=gemini http"`
	GeminiAPIKey       string        `mapstructure:"gemini_api_key" validate:"required_if=Provider gemini"`
	ModelName          string        `mapstructure:"model_name"`
	Temperature        float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	PromptTemplatePath string        `mapstructure:"prompt_template_path" validate:"required_if=Provider gemini"`
	HTTPURL            string        `mapstructure:"http_url" validate:"required_if=Provider http"`
	HTTPTimeout        time.Duration `mapstructure:"http_timeout" validate:"gte=0"`
	HTTPAuthToken      string        `mapstructure:"http_auth_token"`
	SchemaPath         string        `mapstructure:"schema_path"`
}

// FingerprintConfig selects the request digest.
type FingerprintConfig struct {
	Algorithm string `mapstructure:"algorithm" validate:"required,oneof=blake2b xxhash"`
}

// AuthConfig contains the optional bearer-token settings. Authentication is
// disabled when JWTSecret is empty.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"gt=0"`
}

// Enabled reports whether bearer authentication is configured.
func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != ""
}
