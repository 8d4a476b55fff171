package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	Session  SessionConfig  `mapstructure:"session" validate:"required"`
	Logs     LogsConfig     `mapstructure:"logs"`
	Scrape   ScrapeConfig   `mapstructure:"scrape"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	AppName                string   `mapstructure:"app_name" validate:"required"`
	Port                   int      `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel               string   `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds" validate:"gt=0"`
	AllowedOrigins         []string `mapstructure:"allowed_origins"`
}

// ShutdownTimeout is the grace period for in-flight requests and tasks.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string   `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int      `mapstructure:"token_lifetime_minutes" validate:"gt=0"`
	AdminUserIDs         []string `mapstructure:"admin_user_ids"`
}

// IsAdmin reports whether userID may use the admin endpoints.
func (c AuthConfig) IsAdmin(userID string) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// DatabaseConfig configures the optional Postgres store. An empty URL runs
// the service without persistence.
type DatabaseConfig struct {
	URL                    string `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes" validate:"gte=0"`
}

// Enabled reports whether a database was configured.
func (c DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// TaskConfig tunes the dispatch engine.
type TaskConfig struct {
	ShortWorkers         int      `mapstructure:"short_workers" validate:"gte=0"`
	LongWorkers          int      `mapstructure:"long_workers" validate:"gte=0"`
	ExecutorWorkers      int      `mapstructure:"executor_workers" validate:"gt=0"`
	DefaultUserLimit     int      `mapstructure:"default_user_limit" validate:"gt=0"`
	PollIntervalMillis   int      `mapstructure:"poll_interval_millis" validate:"gte=0"`
	BackgroundEvery      int      `mapstructure:"background_every" validate:"gte=0"`
	MaxRequeues          int      `mapstructure:"max_requeues" validate:"gte=0"`
	RequeueBackoffMillis int      `mapstructure:"requeue_backoff_millis" validate:"gte=0"`
	LongRunningServices  []string `mapstructure:"long_running_services"`
	UserSubmitRate       float64  `mapstructure:"user_submit_rate" validate:"gte=0"`
	UserSubmitBurst      int      `mapstructure:"user_submit_burst" validate:"gte=0"`
}

// PollWait is how long workers wait on the interactive queue before taking
// background work.
func (c TaskConfig) PollWait() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// RequeueBackoff is the pause after a worker hands a task back.
func (c TaskConfig) RequeueBackoff() time.Duration {
	return time.Duration(c.RequeueBackoffMillis) * time.Millisecond
}

// SessionConfig controls user session expiry.
type SessionConfig struct {
	InactivityTimeoutMinutes int `mapstructure:"inactivity_timeout_minutes" validate:"gt=0"`
	JanitorIntervalSeconds   int `mapstructure:"janitor_interval_seconds" validate:"gt=0"`
}

// InactivityTimeout is how long a user may stay disconnected before their
// cached handlers are dropped.
func (c SessionConfig) InactivityTimeout() time.Duration {
	return time.Duration(c.InactivityTimeoutMinutes) * time.Minute
}

// JanitorInterval is how often expired sessions are swept.
func (c SessionConfig) JanitorInterval() time.Duration {
	return time.Duration(c.JanitorIntervalSeconds) * time.Second
}

// LogsConfig configures the log service. Files maps friendly names to log
// file paths; relative paths resolve against Directory.
type LogsConfig struct {
	Directory          string            `mapstructure:"directory"`
	Files              map[string]string `mapstructure:"files"`
	TailIntervalMillis int               `mapstructure:"tail_interval_millis" validate:"gte=0"`
}

// TailInterval is the default polling interval for log tails.
func (c LogsConfig) TailInterval() time.Duration {
	return time.Duration(c.TailIntervalMillis) * time.Millisecond
}

// ScrapeConfig seeds the scrape domain catalog at startup.
type ScrapeConfig struct {
	Domains []ScrapeDomainConfig `mapstructure:"domains" validate:"dive"`
}

// ScrapeDomainConfig is one seeded catalog entry.
type ScrapeDomainConfig struct {
	URL        string `mapstructure:"url" validate:"required,url"`
	CommonName string `mapstructure:"common_name"`
	Scrapable  bool   `mapstructure:"scrapable"`
}
