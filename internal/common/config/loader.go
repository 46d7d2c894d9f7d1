// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from configs/config.yaml, an optional
// environment-specific overlay, and environment variables, then applies
// defaults and validates the result.
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DATABASE_REDIS_ADDRESS
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig() // overlay is optional

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile looks for a .env in the usual places so the loader works from
// the repo root, cmd/notifier, and test directories alike.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ezlab-notifier"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.MetricsAddress == "" {
		cfg.Server.MetricsAddress = ":9090"
	}
	if cfg.Database.Redis.Address == "" {
		cfg.Database.Redis.Address = "localhost:6379"
	}
	if cfg.Database.Postgres.Host == "" {
		cfg.Database.Postgres.Host = "localhost"
	}
	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 20
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}

	applyQueueDefaults(&cfg.Queues.Coordination, 2, 0, 0)
	applyQueueDefaults(&cfg.Queues.Push, 10, 10000, 60000)
	applyQueueDefaults(&cfg.Queues.Email, 5, 100, 60000)

	if cfg.Socket.ReconnectionWindowMinutes == 0 {
		cfg.Socket.ReconnectionWindowMinutes = 5
	}
	if cfg.Socket.ReadBufferSize == 0 {
		cfg.Socket.ReadBufferSize = 1024
	}
	if cfg.Socket.WriteBufferSize == 0 {
		cfg.Socket.WriteBufferSize = 1024
	}

	if cfg.Bulk.BatchSize == 0 {
		cfg.Bulk.BatchSize = 100
	}
	if cfg.Bulk.StaggerMs == 0 {
		cfg.Bulk.StaggerMs = 100
	}

	if cfg.Cleanup.Schedule == "" {
		cfg.Cleanup.Schedule = "0 2 * * *" // daily at 2 AM
	}
	if cfg.Cleanup.LockTTLMs == 0 {
		cfg.Cleanup.LockTTLMs = 300000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

func applyQueueDefaults(q *QueueConfig, concurrency, rateLimit, rateWindowMs int) {
	if q.Concurrency == 0 {
		q.Concurrency = concurrency
	}
	if q.MaxAttempts == 0 {
		q.MaxAttempts = 3
	}
	if q.BackoffBaseMs == 0 {
		q.BackoffBaseMs = 2000
	}
	if q.RateLimit == 0 {
		q.RateLimit = rateLimit
	}
	if q.RateWindowMs == 0 {
		q.RateWindowMs = rateWindowMs
	}
	if q.PollIntervalMs == 0 {
		q.PollIntervalMs = 250
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}
	if cfg.Channels.Email.Enabled && cfg.Channels.Email.FromAddress == "" {
		return fmt.Errorf("channels.email.from_address is required when email is enabled")
	}
	if cfg.Channels.FCM.Enabled && cfg.Channels.FCM.CredentialsFile == "" {
		return fmt.Errorf("channels.fcm.credentials_file is required when FCM is enabled")
	}
	return nil
}
