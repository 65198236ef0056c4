package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/contacts-cli/internal/control"
	"github.com/sells-group/contacts-cli/internal/cost"
	"github.com/sells-group/contacts-cli/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Tables    control.Tables  `yaml:"tables" mapstructure:"tables"`
	Serper    SerperConfig    `yaml:"serper" mapstructure:"serper"`
	Apify     ApifyConfig     `yaml:"apify" mapstructure:"apify"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the warehouse backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres or sqlite
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DSN returns the connection string for the configured driver.
func (s StoreConfig) DSN() string {
	if s.Driver == "sqlite" {
		return s.SQLitePath
	}
	return s.DatabaseURL
}

// SerperConfig configures the search API.
type SerperConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Country  string `yaml:"country" mapstructure:"country"`
	Language string `yaml:"language" mapstructure:"language"`
	Num      int    `yaml:"num" mapstructure:"num"`
}

// ApifyConfig configures the profile scraper.
type ApifyConfig struct {
	Token           string `yaml:"token" mapstructure:"token"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	Actor           string `yaml:"actor" mapstructure:"actor"`
	PollTimeoutSecs int    `yaml:"poll_timeout_secs" mapstructure:"poll_timeout_secs"`
}

// AnthropicConfig configures candidate scoring.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PipelineConfig holds run defaults and pacing.
type PipelineConfig struct {
	BatchSize      int    `yaml:"batch_size" mapstructure:"batch_size"`
	MaxPerCompany  int    `yaml:"max_per_company" mapstructure:"max_per_company"`
	MinScore       int    `yaml:"min_score" mapstructure:"min_score"`
	CompanyDelayMs int    `yaml:"company_delay_ms" mapstructure:"company_delay_ms"`
	EvalDelayMs    int    `yaml:"eval_delay_ms" mapstructure:"eval_delay_ms"`
	QueriesFile    string `yaml:"queries_file" mapstructure:"queries_file"`
}

// CompanyDelay is the minimum spacing between companies.
func (p PipelineConfig) CompanyDelay() time.Duration {
	return time.Duration(p.CompanyDelayMs) * time.Millisecond
}

// EvalDelay is the minimum spacing between evaluations.
func (p PipelineConfig) EvalDelay() time.Duration {
	return time.Duration(p.EvalDelayMs) * time.Millisecond
}

// RetryConfig controls retries of external calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// Policy converts to a resilience.RetryConfig.
func (r RetryConfig) Policy() resilience.RetryConfig {
	return resilience.FromRetryConfig(r.MaxAttempts, r.InitialBackoffMs, r.MaxBackoffMs, r.Multiplier, r.JitterFraction)
}

// PricingConfig overrides list prices used for run cost estimates.
type PricingConfig struct {
	SerperPerQuery   float64                   `yaml:"serper_per_query" mapstructure:"serper_per_query"`
	ApifyPerThousand float64                   `yaml:"apify_per_thousand" mapstructure:"apify_per_thousand"`
	Anthropic        map[string]cost.ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
}

// Rates merges the overrides onto cost.DefaultRates.
func (p PricingConfig) Rates() cost.Rates {
	r := cost.DefaultRates()
	if p.SerperPerQuery > 0 {
		r.Serper.PerQuery = p.SerperPerQuery
	}
	if p.ApifyPerThousand > 0 {
		r.Apify.PerThousand = p.ApifyPerThousand
	}
	for model, rate := range p.Anthropic {
		r.Anthropic[model] = rate
	}
	return r
}

// ServerConfig configures the REST server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CONTACTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "contacts.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("tables.registry", "companies")
	v.SetDefault("tables.control", "linkedin_scraped_contacts")
	v.SetDefault("tables.contacts", "linkedin_contacts_info")
	v.SetDefault("serper.key", "")
	v.SetDefault("serper.base_url", "https://google.serper.dev")
	v.SetDefault("serper.country", "mx")
	v.SetDefault("serper.language", "es")
	v.SetDefault("serper.num", 10)
	v.SetDefault("apify.token", "")
	v.SetDefault("apify.base_url", "https://api.apify.com")
	v.SetDefault("apify.actor", "dev_fusion~linkedin-profile-scraper")
	v.SetDefault("apify.poll_timeout_secs", 900)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 500)
	v.SetDefault("pipeline.batch_size", 10)
	v.SetDefault("pipeline.max_per_company", 15)
	v.SetDefault("pipeline.min_score", 7)
	v.SetDefault("pipeline.company_delay_ms", 1000)
	v.SetDefault("pipeline.eval_delay_ms", 500)
	v.SetDefault("pipeline.queries_file", "")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("pricing.serper_per_query", 0.001)
	v.SetDefault("pricing.apify_per_thousand", 10.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validation modes.
const (
	ModeStore = "store" // warehouse access only
	ModeRun   = "run"   // warehouse plus every external API
	ModeServe = "serve" // run plus a listening port
)

// Validate checks the keys and bounds required by mode.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be postgres or sqlite", c.Store.Driver))
	}

	switch mode {
	case ModeStore:
	case ModeRun, ModeServe:
		if c.Serper.Key == "" {
			errs = append(errs, "serper.key is required")
		}
		if c.Apify.Token == "" {
			errs = append(errs, "apify.token is required")
		}
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		p := c.Pipeline
		if p.BatchSize < 1 || p.BatchSize > 500 {
			errs = append(errs, "pipeline.batch_size must be between 1 and 500")
		}
		if p.MaxPerCompany < 1 || p.MaxPerCompany > 50 {
			errs = append(errs, "pipeline.max_per_company must be between 1 and 50")
		}
		if p.MinScore < 0 || p.MinScore > 10 {
			errs = append(errs, "pipeline.min_score must be between 0 and 10")
		}
		if p.CompanyDelayMs < 0 || p.EvalDelayMs < 0 {
			errs = append(errs, "pipeline delays must be >= 0")
		}
		if mode == ModeServe && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
