package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the service reads, e.g.
// MATRX_SERVER_PORT or MATRX_TASK_SHORT_WORKERS.
const EnvPrefix = "MATRX"

// Load configuration from environment variables and optionally a config.yaml
// in the working directory. Environment variables take precedence over values
// from the config file. Returns a populated Config struct or an error if
// loading or validation fails.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return LoadFrom(v)
}

// LoadFrom applies defaults and environment bindings to v, then unmarshals
// and validates the result.
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// keys without defaults must be bound explicitly so Unmarshal sees them
	for _, key := range []string{"auth.jwt_secret", "database.url"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.app_name", "matrx-dispatch")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout_seconds", 30)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("auth.admin_user_ids", []string{})

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime_minutes", 5)

	v.SetDefault("task.short_workers", 10)
	v.SetDefault("task.long_workers", 5)
	v.SetDefault("task.executor_workers", 4)
	v.SetDefault("task.default_user_limit", 5)
	v.SetDefault("task.poll_interval_millis", 1000)
	v.SetDefault("task.background_every", 8)
	v.SetDefault("task.max_requeues", 10000)
	v.SetDefault("task.requeue_backoff_millis", 100)
	v.SetDefault("task.long_running_services", []string{"transcription_service", "scrape_service"})
	v.SetDefault("task.user_submit_rate", 0)
	v.SetDefault("task.user_submit_burst", 10)

	v.SetDefault("session.inactivity_timeout_minutes", 30)
	v.SetDefault("session.janitor_interval_seconds", 60)

	v.SetDefault("logs.directory", "logs")
	v.SetDefault("logs.files", map[string]string{"application logs": "app.log"})
	v.SetDefault("logs.tail_interval_millis", 1000)
}
