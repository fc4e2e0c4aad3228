// Package config loads the engine configuration from defaults, an optional
// YAML file, the environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jonathan/talent-match/internal/extraction"
	"github.com/jonathan/talent-match/internal/ranking"
	"github.com/jonathan/talent-match/internal/resilience"
	"github.com/jonathan/talent-match/internal/scoring"
	"github.com/jonathan/talent-match/internal/server/ratelimit"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. MATCH_SERVER_PORT.
	EnvPrefix = "MATCH"
	// DefaultFileName is looked up in the working directory when no file is given.
	DefaultFileName = "match-engine"
)

// Config is the complete engine configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Log        LogConfig        `mapstructure:"log"`
	Scoring    scoring.Config   `mapstructure:"scoring"`
	Ranking    RankingConfig    `mapstructure:"ranking"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	RateLimit  ratelimit.Config `mapstructure:"ratelimit"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Taxonomy   TaxonomyConfig   `mapstructure:"taxonomy"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig selects the store. An empty URL means the in-memory store.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int    `mapstructure:"max_conns" validate:"gte=1"`
}

// LogConfig selects the log encoder and level.
type LogConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}

// RankingConfig tunes recomputation.
type RankingConfig struct {
	Concurrency int         `mapstructure:"concurrency" validate:"gte=1"`
	Sweep       SweepConfig `mapstructure:"sweep"`
}

// SweepConfig schedules the background stale sweep.
type SweepConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule" validate:"required_if=Enabled true"`
	Batch    int           `mapstructure:"batch" validate:"gte=1"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// ExtractionConfig tunes the document pipeline, its job manager and the model client.
type ExtractionConfig struct {
	extraction.Config `mapstructure:",squash"`

	DocumentRoot  string            `mapstructure:"document_root"`
	AllowRemote   bool              `mapstructure:"allow_remote"`
	MaxConcurrent int64             `mapstructure:"max_concurrent" validate:"gte=1"`
	ResultTTL     time.Duration     `mapstructure:"result_ttl" validate:"gt=0"`
	GeminiAPIKey  string            `mapstructure:"gemini_api_key"`
	Model         string            `mapstructure:"model"`
	Resilience    resilience.Config `mapstructure:"resilience"`
}

// Manager returns the job manager settings.
func (c ExtractionConfig) Manager() extraction.ManagerConfig {
	return extraction.ManagerConfig{Concurrency: c.MaxConcurrent, ResultTTL: c.ResultTTL}
}

// TaxonomyConfig overrides the embedded seed vocabulary.
type TaxonomyConfig struct {
	SeedFile string `mapstructure:"seed_file"`
}

// New returns a viper instance with every default registered and the
// environment bound. Flags may be bound to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional names are honored as fallbacks.
	_ = v.BindEnv("database.url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("extraction.gemini_api_key", EnvPrefix+"_EXTRACTION_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("auth.secret", EnvPrefix+"_AUTH_SECRET", "JWT_SECRET")
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)

	sc := scoring.DefaultConfig()
	v.SetDefault("scoring.weights.skill", sc.Weights.Skill)
	v.SetDefault("scoring.weights.experience", sc.Weights.Experience)
	v.SetDefault("scoring.weights.education", sc.Weights.Education)
	v.SetDefault("scoring.weights.location", sc.Weights.Location)
	v.SetDefault("scoring.weights.job_type", sc.Weights.JobType)
	v.SetDefault("scoring.proficiency_credit", sc.ProficiencyCredit)
	v.SetDefault("scoring.proficiency_target", sc.ProficiencyTarget)

	v.SetDefault("ranking.concurrency", ranking.DefaultConcurrency)
	v.SetDefault("ranking.sweep.enabled", true)
	v.SetDefault("ranking.sweep.schedule", ranking.DefaultSweepSchedule)
	v.SetDefault("ranking.sweep.batch", 200)
	v.SetDefault("ranking.sweep.timeout", time.Minute)

	ec := extraction.DefaultConfig()
	v.SetDefault("extraction.mode", string(ec.Mode))
	v.SetDefault("extraction.max_bytes", ec.MaxBytes)
	v.SetDefault("extraction.timeout", ec.Timeout)
	v.SetDefault("extraction.cache_ttl", ec.CacheTTL)
	v.SetDefault("extraction.document_root", ".")
	v.SetDefault("extraction.allow_remote", false)
	v.SetDefault("extraction.max_concurrent", 4)
	v.SetDefault("extraction.result_ttl", 15*time.Minute)
	v.SetDefault("extraction.gemini_api_key", "")
	v.SetDefault("extraction.model", "")

	rc := resilience.DefaultConfig()
	v.SetDefault("extraction.resilience.retry_max_attempts", rc.RetryMaxAttempts)
	v.SetDefault("extraction.resilience.retry_initial_backoff", rc.RetryInitialBackoff)
	v.SetDefault("extraction.resilience.retry_max_backoff", rc.RetryMaxBackoff)
	v.SetDefault("extraction.resilience.retry_multiplier", rc.RetryMultiplier)
	v.SetDefault("extraction.resilience.breaker_enabled", rc.BreakerEnabled)
	v.SetDefault("extraction.resilience.breaker_min_requests", rc.BreakerMinRequests)
	v.SetDefault("extraction.resilience.breaker_failure_ratio", rc.BreakerFailureRatio)
	v.SetDefault("extraction.resilience.breaker_open_timeout", rc.BreakerOpenTimeout)
	v.SetDefault("extraction.resilience.breaker_half_open_max_calls", rc.BreakerHalfOpenMaxCalls)

	rl := ratelimit.DefaultConfig()
	v.SetDefault("ratelimit.enabled", rl.Enabled)
	v.SetDefault("ratelimit.default_limit", rl.DefaultLimit)
	v.SetDefault("ratelimit.default_window", rl.DefaultWindow)
	v.SetDefault("ratelimit.cleanup_interval", rl.CleanupInterval)
	v.SetDefault("ratelimit.idle_ttl", rl.IdleTTL)
	v.SetDefault("ratelimit.whitelist", []string{})
	v.SetDefault("ratelimit.blacklist", []string{})

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.leeway", 30*time.Second)

	v.SetDefault("taxonomy.seed_file", "")
}

// Load reads .env, the config file and the environment into a validated Config.
// An explicit path must exist; otherwise match-engine.yaml in the working
// directory is used when present.
func Load(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	// Endpoint overrides only replace the built-in table when a file sets them.
	if !v.IsSet("ratelimit.endpoints") {
		cfg.RateLimit.EndpointConfigs = ratelimit.DefaultEndpointConfigs()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := c.Scoring.Weights.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	mode, err := extraction.ParseMode(string(c.Extraction.Mode))
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	c.Extraction.Mode = mode
	if mode == extraction.ModeLLM && c.Extraction.GeminiAPIKey == "" {
		return fmt.Errorf("config error: extraction mode %q requires extraction.gemini_api_key", mode)
	}
	if c.Extraction.MaxBytes <= 0 {
		return fmt.Errorf("config error: extraction.max_bytes must be positive, got %d", c.Extraction.MaxBytes)
	}
	if err := c.Auth.normalize(); err != nil {
		return err
	}
	return nil
}
