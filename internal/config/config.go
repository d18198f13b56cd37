package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// ----------------------------
	// SMTP pool
	// ----------------------------
	SMTPMaxConnections int `envconfig:"SMTP_MAX_CONNECTIONS" default:"3"`
	SMTPMaxMessages    int `envconfig:"SMTP_MAX_MESSAGES" default:"50"`
	SMTPRateLimit      int `envconfig:"SMTP_RATE_LIMIT" default:"3"`

	// ----------------------------
	// Send jobs
	// ----------------------------
	MaxRecipients     int           `envconfig:"MAX_RECIPIENTS" default:"500"`
	DefaultDelay      time.Duration `envconfig:"DEFAULT_DELAY" default:"2s"`
	RetryAttempts     int           `envconfig:"RETRY_ATTEMPTS" default:"2"`
	RetryDelay        time.Duration `envconfig:"RETRY_DELAY" default:"1s"`
	DefaultSenderName string        `envconfig:"DEFAULT_SENDER_NAME" default:"Email Marketing Tool"`
	UploadsDir        string        `envconfig:"UPLOADS_DIR" default:"./uploads/images"`

	// ----------------------------
	// Job registry
	// ----------------------------
	JobRetention  time.Duration `envconfig:"JOB_RETENTION" default:"1h"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`

	// ----------------------------
	// Scheduler
	// ----------------------------
	SchedulerTimezone string `envconfig:"SCHEDULER_TIMEZONE" default:"Asia/Kolkata"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort string `envconfig:"API_PORT" default:"8080"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Database
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var cfg Config
	err := envconfig.Process("", &cfg)
	return &cfg, err
}
