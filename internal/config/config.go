// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	JWTSecret       string        `yaml:"jwt_secret"` // job status API
	JWTIssuer       string        `yaml:"jwt_issuer"`
	DebugEnabled    bool          `yaml:"debug_enabled"`
}

type StorageConfig struct {
	Driver        string `yaml:"driver"` // postgres|sqlite|memory
	DatabaseURL   string `yaml:"database_url"`
	SQLitePath    string `yaml:"sqlite_path"`
	EncryptionKey string `yaml:"encryption_key"` // optional, encrypts question/result at rest (postgres)
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type StepLogConfig struct {
	Driver string        `yaml:"driver"` // postgres|sqlite|redis|memory; defaults to storage.driver
	TTL    time.Duration `yaml:"ttl"`    // redis only
}

type PipelineConfig struct {
	Workers       int           `yaml:"workers"`
	QueueSize     int           `yaml:"queue_size"`
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	StepTimeout   time.Duration `yaml:"step_timeout"`
	LockTTL       time.Duration `yaml:"lock_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SweepMinAge   time.Duration `yaml:"sweep_min_age"`
	SweepBatch    int           `yaml:"sweep_batch"`
	MaxRounds     int           `yaml:"max_rounds"`
}

type AIConfig struct {
	Provider        string `yaml:"provider"` // openai|gemini|workers|noop
	OpenAIKey       string `yaml:"openai_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	GeminiKey       string `yaml:"gemini_key"`
	WorkersAccount  string `yaml:"workers_account_id"`
	WorkersToken    string `yaml:"workers_api_token"`
	WorkersBaseURL  string `yaml:"workers_base_url"`
	DefaultModel    string `yaml:"default_model"`
	ResponseFormat  string `yaml:"response_format"`  // text|choices|native; empty = engine default
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent AI calls
	MaxOutputTokens int    `yaml:"max_output_tokens"`
}

type DiscordConfig struct {
	ApplicationID string `yaml:"application_id"`
	PublicKey     string `yaml:"public_key"` // hex Ed25519 key used to verify interactions
	APIBaseURL    string `yaml:"api_base_url"`
}

type TelegramConfig struct {
	Token    string `yaml:"token"`
	Enabled  bool   `yaml:"enabled"`
	Workers  int    `yaml:"workers"` // polling workers
	Username string `yaml:"username"`
}

type ToolsConfig struct {
	Timezone     string        `yaml:"timezone"`
	WeatherLang  string        `yaml:"weather_language"`
	GeocodingURL string        `yaml:"geocoding_url"`
	ForecastURL  string        `yaml:"forecast_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

type PersonaConfig struct {
	File string `yaml:"file"`
}

type IntakeConfig struct {
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type IdentityConfig struct {
	Name      string `yaml:"name"`
	AvatarURL string `yaml:"avatar_url"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	StepLog  StepLogConfig  `yaml:"steplog"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	AI       AIConfig       `yaml:"ai"`
	Discord  DiscordConfig  `yaml:"discord"`
	Telegram TelegramConfig `yaml:"telegram"`
	Tools    ToolsConfig    `yaml:"tools"`
	Persona  PersonaConfig  `yaml:"persona"`
	Intake   IntakeConfig   `yaml:"intake"`
	Identity IdentityConfig `yaml:"identity"`

	Runtime RuntimeConfig `yaml:"-"`
}

// ParseFlags reads -config and -dev from the command line.
func ParseFlags() (path string, dev bool) {
	flag.StringVar(&path, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()
	return path, dev
}

// LoadConfig reads the YAML file at path, expands ${VAR} references from the
// environment (after loading .env and .dev.vars when present), applies defaults and
// validates the result.
func LoadConfig(path string, dev bool) (*Config, error) {
	LoadDotEnv()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(b))), dev)
}

// LoadDotEnv loads .env and .dev.vars into the environment. Existing variables win.
func LoadDotEnv() {
	for _, f := range []string{".env", ".dev.vars"} {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
}

// Parse decodes already-expanded YAML.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
		if cfg.Runtime.Dev {
			cfg.Log.Format = "console"
		}
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	cfg.HTTP.RequestTimeout = orDuration(cfg.HTTP.RequestTimeout, 10*time.Second)
	cfg.HTTP.ShutdownTimeout = orDuration(cfg.HTTP.ShutdownTimeout, 15*time.Second)
	if cfg.HTTP.JWTIssuer == "" {
		cfg.HTTP.JWTIssuer = "async-ask-bot"
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "postgres"
		if cfg.Runtime.Dev && cfg.Storage.DatabaseURL == "" {
			cfg.Storage.Driver = "memory"
		}
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "jobs.db"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.StepLog.Driver == "" {
		cfg.StepLog.Driver = cfg.Storage.Driver
	}
	cfg.StepLog.TTL = orDuration(cfg.StepLog.TTL, 7*24*time.Hour)

	p := &cfg.Pipeline
	if p.Workers <= 0 {
		p.Workers = 4
	}
	if p.QueueSize <= 0 {
		p.QueueSize = 64
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	p.BaseDelay = orDuration(p.BaseDelay, time.Second)
	p.MaxDelay = orDuration(p.MaxDelay, 30*time.Second)
	p.StepTimeout = orDuration(p.StepTimeout, 2*time.Minute)
	p.LockTTL = orDuration(p.LockTTL, 15*time.Minute)
	p.SweepInterval = orDuration(p.SweepInterval, time.Minute)
	p.SweepMinAge = orDuration(p.SweepMinAge, 2*time.Minute)
	if p.SweepBatch <= 0 {
		p.SweepBatch = 50
	}
	if p.MaxRounds <= 0 {
		p.MaxRounds = 5
	}

	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.DefaultModel == "" {
		switch cfg.AI.Provider {
		case "gemini":
			cfg.AI.DefaultModel = "gemini-2.5-flash"
		case "workers":
			cfg.AI.DefaultModel = "@hf/nousresearch/hermes-2-pro-mistral-7b"
		default:
			cfg.AI.DefaultModel = "gpt-4o-mini"
		}
	}
	if cfg.AI.WorkersBaseURL == "" {
		cfg.AI.WorkersBaseURL = "https://api.cloudflare.com/client/v4"
	}

	if cfg.Discord.APIBaseURL == "" {
		cfg.Discord.APIBaseURL = "https://discord.com/api/v10"
	}
	if cfg.Telegram.Workers <= 0 {
		cfg.Telegram.Workers = 8
	}

	if cfg.Tools.Timezone == "" {
		cfg.Tools.Timezone = "Asia/Tokyo"
	}
	if cfg.Tools.WeatherLang == "" {
		cfg.Tools.WeatherLang = "ja"
	}
	cfg.Tools.Timeout = orDuration(cfg.Tools.Timeout, 10*time.Second)

	cfg.Intake.RateWindow = orDuration(cfg.Intake.RateWindow, time.Minute)
	if cfg.Identity.Name == "" {
		cfg.Identity.Name = "Assistant"
	}
}

// Validate checks the settings the selected drivers depend on.
func (cfg *Config) Validate() error {
	var errs []error
	switch cfg.Storage.Driver {
	case "postgres":
		if cfg.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("storage.database_url is required for the postgres driver"))
		}
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver))
	}

	switch cfg.StepLog.Driver {
	case "redis":
		if cfg.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for the redis step log"))
		}
	case "postgres", "sqlite", "memory":
		if cfg.StepLog.Driver != cfg.Storage.Driver {
			errs = append(errs, fmt.Errorf("steplog.driver %q must match storage.driver %q or be redis", cfg.StepLog.Driver, cfg.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("steplog.driver %q is not supported", cfg.StepLog.Driver))
	}

	switch cfg.AI.Provider {
	case "openai":
		if cfg.AI.OpenAIKey == "" && !cfg.Runtime.Dev {
			errs = append(errs, errors.New("ai.openai_key is required"))
		}
	case "gemini":
		if cfg.AI.GeminiKey == "" {
			errs = append(errs, errors.New("ai.gemini_key is required"))
		}
	case "workers":
		if cfg.AI.WorkersAccount == "" || cfg.AI.WorkersToken == "" {
			errs = append(errs, errors.New("ai.workers_account_id and ai.workers_api_token are required"))
		}
	case "noop":
	default:
		errs = append(errs, fmt.Errorf("ai.provider %q is not supported", cfg.AI.Provider))
	}

	switch strings.ToLower(cfg.AI.ResponseFormat) {
	case "", "text", "choices", "native":
	default:
		errs = append(errs, fmt.Errorf("ai.response_format %q is not supported", cfg.AI.ResponseFormat))
	}

	if cfg.Telegram.Enabled && cfg.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required when telegram is enabled"))
	}
	if cfg.Discord.PublicKey == "" && !cfg.Runtime.Dev {
		errs = append(errs, errors.New("discord.public_key is required"))
	}
	if _, err := time.LoadLocation(cfg.Tools.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("tools.timezone: %w", err))
	}
	return errors.Join(errs...)
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}

func orDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
