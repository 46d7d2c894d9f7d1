// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Queues   QueuesConfig   `mapstructure:"queues"`
	Channels ChannelsConfig `mapstructure:"channels"`
	Socket   SocketConfig   `mapstructure:"socket"`
	Bulk     BulkConfig     `mapstructure:"bulk"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address        string `mapstructure:"address"`         // websocket + health endpoints
	MetricsAddress string `mapstructure:"metrics_address"` // prometheus + pprof
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Queue Config ---

// QueueConfig holds the per-queue worker and retry settings. RateLimit of
// zero disables the rolling-window limiter for that queue.
type QueueConfig struct {
	Concurrency    int `mapstructure:"concurrency"`
	MaxAttempts    int `mapstructure:"max_attempts"`
	BackoffBaseMs  int `mapstructure:"backoff_base_ms"`
	RateLimit      int `mapstructure:"rate_limit"`     // jobs per window
	RateWindowMs   int `mapstructure:"rate_window_ms"` // rolling window size
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
}

type QueuesConfig struct {
	Coordination QueueConfig `mapstructure:"coordination"`
	Push         QueueConfig `mapstructure:"push"`
	Email        QueueConfig `mapstructure:"email"`
}

// --- Channel Config ---

type ChannelsConfig struct {
	FCM   FCMConfig   `mapstructure:"fcm"`
	Email EmailConfig `mapstructure:"email"`
}

type FCMConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CredentialsFile string `mapstructure:"credentials_file"`
	WebLink         string `mapstructure:"web_link"`
	WebIcon         string `mapstructure:"web_icon"`
}

type EmailConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	FromAddress string `mapstructure:"from_address"`
	AWSRegion   string `mapstructure:"aws_region"`
}

// --- Socket / Replay Config ---

type SocketConfig struct {
	ReconnectionWindowMinutes int `mapstructure:"reconnection_window_minutes"`
	ReadBufferSize            int `mapstructure:"read_buffer_size"`
	WriteBufferSize           int `mapstructure:"write_buffer_size"`
}

// --- Bulk Fan-out Config ---

type BulkConfig struct {
	BatchSize int `mapstructure:"batch_size"`
	StaggerMs int `mapstructure:"stagger_ms"`
}

// --- Cleanup Config ---

type CleanupConfig struct {
	Schedule  string `mapstructure:"schedule"` // cron expression
	LockTTLMs int    `mapstructure:"lock_ttl_ms"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
