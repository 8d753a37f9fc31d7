package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. GROCERY_PORT.
const Prefix = "GROCERY"

// Config holds all application configuration loaded from the environment.
type Config struct {
	Port   string `envconfig:"PORT" default:"8080"`
	DBPath string `envconfig:"DB_PATH" default:"grocery_list.db"`

	Log       LogConfig       `envconfig:"LOG"`
	RateLimit RateLimitConfig `envconfig:"RATE_LIMIT"`
	Backup    BackupConfig    `envconfig:"BACKUP"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level      string `envconfig:"LEVEL" default:"info"`
	Format     string `envconfig:"FORMAT" default:"text"`
	File       string `envconfig:"FILE"`
	MaxSizeMB  int    `envconfig:"MAX_SIZE_MB" default:"10"`
	MaxBackups int    `envconfig:"MAX_BACKUPS" default:"5"`
}

// RateLimitConfig bounds mutation requests per client IP.
type RateLimitConfig struct {
	Requests int           `envconfig:"REQUESTS" default:"120"`
	Window   time.Duration `envconfig:"WINDOW" default:"1m"`
}

// BackupConfig points at S3-compatible storage for encrypted snapshots.
// Backups are disabled unless bucket and both keys are set.
type BackupConfig struct {
	Endpoint  string        `envconfig:"S3_ENDPOINT"`
	Bucket    string        `envconfig:"S3_BUCKET"`
	Region    string        `envconfig:"S3_REGION" default:"us-east-1"`
	AccessKey string        `envconfig:"S3_ACCESS_KEY"`
	SecretKey string        `envconfig:"S3_SECRET_KEY"`
	Prefix    string        `envconfig:"PREFIX" default:"grocerylist"`
	Retention time.Duration `envconfig:"RETENTION" default:"720h"`

	// Scheduled backups run only when both are set.
	Passphrase string        `envconfig:"PASSPHRASE"`
	Interval   time.Duration `envconfig:"INTERVAL"`
}

// Enabled reports whether enough is configured to reach the bucket.
func (b BackupConfig) Enabled() bool {
	return b.Bucket != "" && b.AccessKey != "" && b.SecretKey != ""
}

// Scheduled reports whether serve should run backups on a timer.
func (b BackupConfig) Scheduled() bool {
	return b.Enabled() && b.Passphrase != "" && b.Interval > 0
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Load reads a .env file if one exists, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}
