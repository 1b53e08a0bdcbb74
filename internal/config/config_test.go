package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfuse/pkg/contracts/domain"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, domain.StrategyHighestQuality, cfg.Engine.DefaultStrategy)
	assert.InDelta(t, 0.3, cfg.Engine.Quality.MinAcceptable, 1e-9)
	assert.Equal(t, 15*time.Minute, cfg.Engine.Validation.StalenessTolerance)
	assert.Len(t, cfg.Engine.Sources, 4)
	assert.True(t, cfg.Engine.Performance.ParallelRequests)
	assert.Equal(t, 8, cfg.Engine.Performance.MaxConcurrent)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "bad default strategy",
			mutate:  func(c *Config) { c.Engine.DefaultStrategy = "coin_flip" },
			wantErr: "invalid default fusion strategy",
		},
		{
			name: "weights do not sum to one",
			mutate: func(c *Config) {
				c.Engine.Quality.Weights = domain.QualityWeights{Freshness: 0.5, Accuracy: 0.2}
			},
			wantErr: "sum to 1",
		},
		{
			name:    "min acceptable out of range",
			mutate:  func(c *Config) { c.Engine.Quality.MinAcceptable = 1.5 },
			wantErr: "min_acceptable",
		},
		{
			name:    "negative price variance",
			mutate:  func(c *Config) { c.Engine.Validation.PriceVariancePercent = -1 },
			wantErr: "price variance",
		},
		{
			name: "bad rule strategy",
			mutate: func(c *Config) {
				c.Engine.Rules = append(c.Engine.Rules, domain.FusionRule{Field: "eps", Strategy: "guess"})
			},
			wantErr: "invalid fusion strategy",
		},
		{
			name: "duplicate source",
			mutate: func(c *Config) {
				c.Engine.Sources = append(c.Engine.Sources, SourceConfig{Name: "Polygon", Priority: 9})
			},
			wantErr: "duplicate source",
		},
		{
			name: "empty source name",
			mutate: func(c *Config) {
				c.Engine.Sources = append(c.Engine.Sources, SourceConfig{Priority: 9})
			},
			wantErr: "empty name",
		},
		{
			name: "negative source weight",
			mutate: func(c *Config) {
				c.Engine.Sources[0].Weight = -0.5
			},
			wantErr: "weight must be >= 0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRuleForField(t *testing.T) {
	ec := DefaultEngineConfig()

	t.Run("configured field", func(t *testing.T) {
		rule := ec.RuleForField("volume")
		assert.Equal(t, domain.StrategyWeightedAverage, rule.Strategy)
		assert.InDelta(t, 10.0, rule.ThresholdPercent, 1e-9)
	})

	t.Run("unconfigured field falls back to defaults", func(t *testing.T) {
		rule := ec.RuleForField("eps")
		assert.Equal(t, "eps", rule.Field)
		assert.Equal(t, domain.StrategyHighestQuality, rule.Strategy)
		assert.InDelta(t, ec.Validation.PriceVariancePercent, rule.ThresholdPercent, 1e-9)
	})
}

func TestSourceByName(t *testing.T) {
	ec := DefaultEngineConfig()

	src, ok := ec.SourceByName("POLYGON")
	require.True(t, ok)
	assert.Equal(t, "polygon", src.Name)
	assert.Equal(t, 1, src.Priority)

	_, ok = ec.SourceByName("bloomberg")
	assert.False(t, ok)
}

func TestApplyDefaultsFillsGaps(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: 9090}}
	cfg.applyDefaults()

	assert.Equal(t, domain.StrategyHighestQuality, cfg.Engine.DefaultStrategy)
	assert.True(t, cfg.Engine.Quality.Weights.IsValid())
	assert.Equal(t, 24*time.Hour, cfg.Engine.Quality.FreshnessHorizon)
	assert.Equal(t, 8, cfg.Engine.Performance.MaxConcurrent)
	assert.NotEmpty(t, cfg.Engine.Sources)
}

func TestLoadUsesEnvironment(t *testing.T) {
	t.Setenv("MARKETFUSE_CONFIG_FILE", "does-not-exist.yaml")
	t.Setenv("MARKETFUSE_SERVER_PORT", "9191")
	t.Setenv("MARKETFUSE_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
