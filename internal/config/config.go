package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"marketfuse/pkg/contracts/domain"
)

// Config represents the complete application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Cache   CacheConfig   `yaml:"cache" envconfig:"CACHE"`
	Engine  EngineConfig  `yaml:"engine" envconfig:"ENGINE"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/marketfuse.log"`
}

// CacheConfig contains result cache configuration.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	DefaultTTL time.Duration `yaml:"default_ttl" envconfig:"DEFAULT_TTL" default:"5m"`
	SweepEvery time.Duration `yaml:"sweep_every" envconfig:"SWEEP_EVERY" default:"1m"`
}

// EngineConfig is the full configuration of the normalization, validation,
// quality and fusion engine. Every numeric threshold the engine applies
// lives here; only domain-defined bounds (RSI 0-100, the balance-sheet
// identity) are fixed in code.
type EngineConfig struct {
	DefaultStrategy domain.FusionStrategy `json:"default_strategy" yaml:"default_strategy" envconfig:"DEFAULT_STRATEGY" default:"highest_quality"`
	Rules           []domain.FusionRule   `json:"rules" yaml:"rules" envconfig:"-"`
	Sources         []SourceConfig        `json:"sources" yaml:"sources" envconfig:"-"`
	Validation      ValidationConfig      `json:"validation" yaml:"validation" envconfig:"VALIDATION"`
	Quality         QualityConfig         `json:"quality" yaml:"quality" envconfig:"QUALITY"`
	Performance     PerformanceConfig     `json:"performance" yaml:"performance" envconfig:"PERFORMANCE"`
}

// SourceConfig carries per-provider trust and capability settings.
type SourceConfig struct {
	Name         string   `yaml:"name" json:"name"`
	Priority     int      `yaml:"priority" json:"priority"`
	Weight       float64  `yaml:"weight" json:"weight"`
	Reputation   float64  `yaml:"reputation" json:"reputation"` // clamped to [0,1] when scored
	Capabilities []string `yaml:"capabilities" json:"capabilities,omitempty"`
}

// ValidationConfig contains the tunable validation thresholds.
type ValidationConfig struct {
	PriceVariancePercent  float64       `json:"price_variance_percent" yaml:"price_variance_percent" envconfig:"PRICE_VARIANCE_PERCENT" default:"1.0"`
	StalenessTolerance    time.Duration `json:"staleness_tolerance" yaml:"staleness_tolerance" envconfig:"STALENESS_TOLERANCE" default:"15m"`
	BalanceSheetTolerance float64       `json:"balance_sheet_tolerance" yaml:"balance_sheet_tolerance" envconfig:"BALANCE_SHEET_TOLERANCE" default:"0.01"`
	// AllowWarnings lets warning-level discrepancies (staleness) pass
	// without invalidating the record.
	AllowWarnings bool `json:"allow_warnings" yaml:"allow_warnings" envconfig:"ALLOW_WARNINGS" default:"false"`
}

// QualityConfig contains the quality scoring parameters.
type QualityConfig struct {
	Weights          domain.QualityWeights `json:"weights" yaml:"weights" envconfig:"-"`
	MinAcceptable    float64               `json:"min_acceptable" yaml:"min_acceptable" envconfig:"MIN_ACCEPTABLE" default:"0.3"`
	FreshnessHorizon time.Duration         `json:"freshness_horizon" yaml:"freshness_horizon" envconfig:"FRESHNESS_HORIZON" default:"24h"`
}

// PerformanceConfig bounds batch fan-out.
type PerformanceConfig struct {
	ParallelRequests bool          `json:"parallel_requests" yaml:"parallel_requests" envconfig:"PARALLEL_REQUESTS" default:"true"`
	MaxConcurrent    int           `json:"max_concurrent" yaml:"max_concurrent" envconfig:"MAX_CONCURRENT" default:"8"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout" envconfig:"TIMEOUT" default:"30s"`
}

// Load loads configuration from environment variables and an optional YAML
// file (MARKETFUSE_CONFIG_FILE or ./marketfuse.yaml). Environment values
// take precedence over file values.
func Load() (*Config, error) {
	cfg := Default()

	configFile := os.Getenv("MARKETFUSE_CONFIG_FILE")
	if configFile == "" {
		configFile = "marketfuse.yaml"
	}
	if _, err := os.Stat(configFile); err == nil {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("MARKETFUSE", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit:       RateLimitConfig{Enabled: true, RPS: 100, Burst: 50},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/marketfuse.log",
		},
		Cache: CacheConfig{
			Enabled:    true,
			DefaultTTL: 5 * time.Minute,
			SweepEvery: time.Minute,
		},
		Engine: DefaultEngineConfig(),
	}
}

// DefaultEngineConfig returns the engine defaults: the known provider set
// with neutral trust settings and the recommended thresholds.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultStrategy: domain.StrategyHighestQuality,
		Rules: []domain.FusionRule{
			{Field: "close", Strategy: domain.StrategyHighestQuality, ThresholdPercent: 1.0},
			{Field: "volume", Strategy: domain.StrategyWeightedAverage, ThresholdPercent: 10.0},
			{Field: "market_cap", Strategy: domain.StrategyMostRecent, ThresholdPercent: 5.0},
		},
		Sources: []SourceConfig{
			{Name: "polygon", Priority: 1, Weight: 1.0, Reputation: 0.95, Capabilities: []string{"stock_price"}},
			{Name: "yahoo", Priority: 2, Weight: 0.9, Reputation: 0.85, Capabilities: []string{"stock_price"}},
			{Name: "fmp", Priority: 3, Weight: 0.9, Reputation: 0.85, Capabilities: []string{"company_info", "financial_statement"}},
			{Name: "alphavantage", Priority: 4, Weight: 0.8, Reputation: 0.80, Capabilities: []string{"technical_indicator", "news"}},
		},
		Validation: ValidationConfig{
			PriceVariancePercent:  1.0,
			StalenessTolerance:    15 * time.Minute,
			BalanceSheetTolerance: 0.01,
		},
		Quality: QualityConfig{
			Weights:          domain.DefaultQualityWeights(),
			MinAcceptable:    0.3,
			FreshnessHorizon: 24 * time.Hour,
		},
		Performance: PerformanceConfig{
			ParallelRequests: true,
			MaxConcurrent:    8,
			Timeout:          30 * time.Second,
		},
	}
}

// SourceByName returns the source configuration for the given provider id.
func (ec EngineConfig) SourceByName(name string) (SourceConfig, bool) {
	for _, s := range ec.Sources {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return SourceConfig{}, false
}

// RuleForField returns the fusion rule configured for the field, falling
// back to the default strategy and the price variance threshold.
func (ec EngineConfig) RuleForField(field string) domain.FusionRule {
	for _, r := range ec.Rules {
		if r.Field == field {
			return r
		}
	}
	return domain.FusionRule{
		Field:            field,
		Strategy:         ec.DefaultStrategy,
		ThresholdPercent: ec.Validation.PriceVariancePercent,
	}
}

// applyDefaults fills zero values that envconfig/yaml merging can leave behind.
func (c *Config) applyDefaults() {
	if c.Engine.DefaultStrategy == "" {
		c.Engine.DefaultStrategy = domain.StrategyHighestQuality
	}
	if c.Engine.Quality.Weights.Sum() == 0 {
		c.Engine.Quality.Weights = domain.DefaultQualityWeights()
	}
	if c.Engine.Quality.FreshnessHorizon <= 0 {
		c.Engine.Quality.FreshnessHorizon = 24 * time.Hour
	}
	if c.Engine.Performance.MaxConcurrent <= 0 {
		c.Engine.Performance.MaxConcurrent = 8
	}
	if len(c.Engine.Sources) == 0 {
		c.Engine.Sources = DefaultEngineConfig().Sources
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if !c.Engine.DefaultStrategy.IsValid() {
		return fmt.Errorf("invalid default fusion strategy: %q", c.Engine.DefaultStrategy)
	}
	if !c.Engine.Quality.Weights.IsValid() {
		return fmt.Errorf("quality weights must be non-negative and sum to 1, got %.4f",
			c.Engine.Quality.Weights.Sum())
	}
	if c.Engine.Quality.MinAcceptable < 0 || c.Engine.Quality.MinAcceptable > 1 {
		return fmt.Errorf("quality min_acceptable must be in [0,1]: %f", c.Engine.Quality.MinAcceptable)
	}
	if c.Engine.Validation.PriceVariancePercent < 0 {
		return fmt.Errorf("price variance percent must be >= 0: %f", c.Engine.Validation.PriceVariancePercent)
	}
	if c.Engine.Validation.BalanceSheetTolerance < 0 {
		return fmt.Errorf("balance sheet tolerance must be >= 0: %f", c.Engine.Validation.BalanceSheetTolerance)
	}
	for _, r := range c.Engine.Rules {
		if !r.Strategy.IsValid() {
			return fmt.Errorf("invalid fusion strategy %q for field %q", r.Strategy, r.Field)
		}
		if r.ThresholdPercent < 0 {
			return fmt.Errorf("fusion threshold for field %q must be >= 0", r.Field)
		}
	}
	seen := make(map[string]bool, len(c.Engine.Sources))
	for _, s := range c.Engine.Sources {
		name := strings.ToLower(s.Name)
		if name == "" {
			return fmt.Errorf("source with empty name")
		}
		if seen[name] {
			return fmt.Errorf("duplicate source: %s", s.Name)
		}
		seen[name] = true
		if s.Weight < 0 {
			return fmt.Errorf("source %s: weight must be >= 0", s.Name)
		}
	}
	return nil
}
