package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional config
// file. Environment variables use the RECITAL_ prefix with underscores for
// nesting (e.g. RECITAL_DATABASE_URL) and take precedence over file values.
// Returns a populated Config or an error if loading or validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/recital")

	v.SetEnvPrefix("RECITAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; the environment can carry everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for every optional setting. Required settings
// get empty defaults so viper's AutomaticEnv can see them during Unmarshal;
// validation then rejects a deployment that left them empty.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("verify.gemini_api_key", "")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.key_prefix", "recordings")

	v.SetDefault("verify.model_name", "gemini-2.0-flash")
	v.SetDefault("verify.max_retries", 3)
	v.SetDefault("verify.retry_delay_seconds", 2)

	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.worker_count", 2)
	v.SetDefault("task.stuck_task_age_minutes", 30)

	v.SetDefault("recording.max_take_bytes", int64(32<<20))
}
