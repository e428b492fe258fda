package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	Storage   StorageConfig   `mapstructure:"storage"   validate:"required"`
	Verify    VerifyConfig    `mapstructure:"verify"`
	Task      TaskConfig      `mapstructure:"task"`
	Recording RecordingConfig `mapstructure:"recording"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
	BCryptCost           int    `mapstructure:"bcrypt_cost"            validate:"omitempty,gte=4,lte=31"`
}

// StorageConfig contains object storage settings for recorded audio.
// Endpoint is optional and allows pointing at any S3-compatible service;
// PublicBaseURL, when set, overrides the derived public object URL prefix.
type StorageConfig struct {
	Bucket        string `mapstructure:"bucket"          validate:"required"`
	Region        string `mapstructure:"region"          validate:"required"`
	Endpoint      string `mapstructure:"endpoint"`
	PublicBaseURL string `mapstructure:"public_base_url" validate:"omitempty,url"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

// VerifyConfig contains settings for the post-upload recording verification
// worker. Verification is disabled when GeminiAPIKey is empty.
type VerifyConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key"`
	ModelName         string `mapstructure:"model_name"`
	MaxRetries        int    `mapstructure:"max_retries"         validate:"omitempty,gte=0"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"omitempty,gte=1"`
}

// TaskConfig contains settings for the background task runner.
type TaskConfig struct {
	QueueSize           int `mapstructure:"queue_size"             validate:"omitempty,gt=0"`
	WorkerCount         int `mapstructure:"worker_count"           validate:"omitempty,gt=0"`
	StuckTaskAgeMinutes int `mapstructure:"stuck_task_age_minutes" validate:"omitempty,gt=0"`
}

// RecordingConfig contains limits for capture sessions.
type RecordingConfig struct {
	// MaxTakeBytes caps the size of a single buffered take; chunks past the
	// limit abort the capture. Zero means the default (32 MiB).
	MaxTakeBytes int64 `mapstructure:"max_take_bytes" validate:"omitempty,gt=0"`
}
