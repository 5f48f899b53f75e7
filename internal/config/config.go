// Package config loads process configuration from an optional .env file, an
// optional YAML file and the environment, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"variant-merger/internal/models"
)

// Config is the process configuration shared by the api and worker binaries
type Config struct {
	AppName    string `yaml:"app_name" env:"APP_NAME" env-default:"variant-merger"`
	Port       int    `yaml:"port" env:"PORT" env-default:"8080" validate:"gte=1,lte=65535"`
	LogLevel   string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
	PrettyLogs bool   `yaml:"pretty_logs" env:"PRETTY_LOGS" env-default:"false"`
	DBPath     string `yaml:"db_path" env:"DB_PATH" env-default:"variant-merger.db" validate:"required"`

	HTTP      HTTPConfig      `yaml:"http"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Queue     QueueConfig     `yaml:"queue"`
	Retention RetentionConfig `yaml:"retention"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Defaults  DefaultSettings `yaml:"defaults"`
}

// HTTPConfig tunes the API server
type HTTPConfig struct {
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
	AllowOrigins    []string      `yaml:"allow_origins" env:"HTTP_ALLOW_ORIGINS" env-separator:"," env-default:"*"`
}

// SchedulerConfig holds the tick intervals
type SchedulerConfig struct {
	DrainInterval   time.Duration `yaml:"drain_interval" env:"DRAIN_INTERVAL" env-default:"60s" validate:"gt=0"`
	SweepInterval   time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" env-default:"1h" validate:"gt=0"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL" env-default:"24h" validate:"gt=0"`
}

// QueueConfig sizes per-tick work and the operator log
type QueueConfig struct {
	CandidateBatchSize int `yaml:"candidate_batch_size" env:"CANDIDATE_BATCH_SIZE" env-default:"100" validate:"gte=1"`
	ClaimBatchSize     int `yaml:"claim_batch_size" env:"CLAIM_BATCH_SIZE" env-default:"5" validate:"gte=1"`
	MaxAttempts        int `yaml:"max_attempts" env:"MAX_ATTEMPTS" env-default:"3" validate:"gte=1"`
	LogCapacity        int `yaml:"log_capacity" env:"LOG_CAPACITY" env-default:"1000" validate:"gte=1"`
	StatusLogTail      int `yaml:"status_log_tail" env:"STATUS_LOG_TAIL" env-default:"50" validate:"gte=1"`
}

// RetentionConfig is the queue retention policy
type RetentionConfig struct {
	Completed time.Duration `yaml:"completed" env:"RETENTION_COMPLETED" env-default:"168h" validate:"gt=0"`
	Failed    time.Duration `yaml:"failed" env:"RETENTION_FAILED" env-default:"720h" validate:"gt=0"`
	Stuck     time.Duration `yaml:"stuck" env:"RETENTION_STUCK" env-default:"24h" validate:"gt=0"`
}

// OracleConfig bounds outbound text-generation calls
type OracleConfig struct {
	BaseURL   string        `yaml:"base_url" env:"ORACLE_BASE_URL"`
	Timeout   time.Duration `yaml:"timeout" env:"ORACLE_TIMEOUT" env-default:"30s" validate:"gt=0"`
	RateLimit float64       `yaml:"rate_limit" env:"ORACLE_RATE_LIMIT" env-default:"1" validate:"gt=0"`
	Burst     int           `yaml:"burst" env:"ORACLE_BURST" env-default:"2" validate:"gte=1"`
}

// DefaultSettings seed the operator settings store on first start
type DefaultSettings struct {
	TitleSimilarity float64 `yaml:"title_similarity" env:"DEFAULT_TITLE_SIMILARITY" env-default:"80" validate:"gte=0,lte=100"`
	Provider        string  `yaml:"provider" env:"DEFAULT_PROVIDER" env-default:"openai"`
	APIKey          string  `yaml:"api_key" env:"OPENAI_API_KEY"`
	Model           string  `yaml:"model" env:"OPENAI_MODEL" env-default:"gpt-4"`
}

// Settings converts the defaults into operator settings
func (d DefaultSettings) Settings() models.Settings {
	settings := models.Settings{
		TitleSimilarity: d.TitleSimilarity,
		Provider:        d.Provider,
	}
	if d.APIKey != "" || d.Model != "" {
		settings.Providers = map[string]models.ProviderCredentials{
			d.Provider: {APIKey: d.APIKey, Model: d.Model},
		}
	}
	return settings
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration. path may be empty, in which case only the
// environment (and a .env file in the working directory, if present) is used.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from environment: %w", err)
		}
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
