// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Apollo       ProviderConfig     `yaml:"apollo" mapstructure:"apollo"`
	PDL          ProviderConfig     `yaml:"pdl" mapstructure:"pdl"`
	Hunter       ProviderConfig     `yaml:"hunter" mapstructure:"hunter"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" mapstructure:"orchestrator"`
	Discovery    DiscoveryConfig    `yaml:"discovery" mapstructure:"discovery"`
	Funnel       FunnelConfig       `yaml:"funnel" mapstructure:"funnel"`
	Signals      SignalsConfig      `yaml:"signals" mapstructure:"signals"`
	Jobs         JobsConfig         `yaml:"jobs" mapstructure:"jobs"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ProviderConfig holds credentials and rate ceilings for one data source.
type ProviderConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	PerSecond     float64 `yaml:"per_second" mapstructure:"per_second"`
	PerMinute     float64 `yaml:"per_minute" mapstructure:"per_minute"`
	WaitTimeoutMS int     `yaml:"wait_timeout_ms" mapstructure:"wait_timeout_ms"`
}

// OrchestratorConfig controls the waterfall search/enrich strategy defaults.
type OrchestratorConfig struct {
	QualityThreshold   float64  `yaml:"quality_threshold" mapstructure:"quality_threshold"`
	MaxProviders       int      `yaml:"max_providers" mapstructure:"max_providers"`
	CostBudgetUSD      float64  `yaml:"cost_budget_usd" mapstructure:"cost_budget_usd"`
	SourceOrder        []string `yaml:"source_order" mapstructure:"source_order"`
	OrderByPerformance bool     `yaml:"order_by_performance" mapstructure:"order_by_performance"`
}

// DiscoveryConfig controls the discovery pipeline policy constants.
type DiscoveryConfig struct {
	OverfetchMultiplier int      `yaml:"overfetch_multiplier" mapstructure:"overfetch_multiplier"`
	AcceptThreshold     float64  `yaml:"accept_threshold" mapstructure:"accept_threshold"`
	EnrichedThreshold   float64  `yaml:"enriched_threshold" mapstructure:"enriched_threshold"`
	BackfillBatch       int      `yaml:"backfill_batch" mapstructure:"backfill_batch"`
	DeepEnrichTop       int      `yaml:"deep_enrich_top" mapstructure:"deep_enrich_top"`
	SuggestionLimit     int      `yaml:"suggestion_limit" mapstructure:"suggestion_limit"`
	BlockedDomains      []string `yaml:"blocked_domains" mapstructure:"blocked_domains"`
}

// FunnelConfig controls funnel build thresholds.
type FunnelConfig struct {
	AcceptThreshold  float64 `yaml:"accept_threshold" mapstructure:"accept_threshold"`
	AdvanceStrength  float64 `yaml:"advance_strength" mapstructure:"advance_strength"`
	PersonaThreshold float64 `yaml:"persona_threshold" mapstructure:"persona_threshold"`
}

// SignalsConfig controls signal detection.
type SignalsConfig struct {
	MinStrength float64 `yaml:"min_strength" mapstructure:"min_strength"`
	MinTextLen  int     `yaml:"min_text_len" mapstructure:"min_text_len"`
}

// JobsConfig configures the background worker runner.
type JobsConfig struct {
	Workers          int `yaml:"workers" mapstructure:"workers"`
	ProgressInterval int `yaml:"progress_interval" mapstructure:"progress_interval"`
}

// ServerConfig configures the job HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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

	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("apollo.base_url", "https://api.apollo.io/v1")
	v.SetDefault("apollo.per_second", 2)
	v.SetDefault("apollo.per_minute", 50)
	v.SetDefault("apollo.wait_timeout_ms", 2000)
	v.SetDefault("pdl.base_url", "https://api.peopledatalabs.com/v5")
	v.SetDefault("pdl.per_second", 1)
	v.SetDefault("pdl.per_minute", 30)
	v.SetDefault("pdl.wait_timeout_ms", 2000)
	v.SetDefault("hunter.base_url", "https://api.hunter.io/v2")
	v.SetDefault("hunter.per_second", 1)
	v.SetDefault("hunter.per_minute", 20)
	v.SetDefault("hunter.wait_timeout_ms", 2000)
	v.SetDefault("orchestrator.quality_threshold", 0.7)
	v.SetDefault("orchestrator.max_providers", 3)
	v.SetDefault("orchestrator.cost_budget_usd", 1.0)
	v.SetDefault("orchestrator.source_order", []string{"apollo", "pdl", "hunter"})
	v.SetDefault("orchestrator.order_by_performance", false)
	v.SetDefault("discovery.overfetch_multiplier", 2)
	v.SetDefault("discovery.accept_threshold", 0.2)
	v.SetDefault("discovery.enriched_threshold", 0.3)
	v.SetDefault("discovery.backfill_batch", 10)
	v.SetDefault("discovery.deep_enrich_top", 20)
	v.SetDefault("discovery.suggestion_limit", 10)
	v.SetDefault("funnel.accept_threshold", 0.2)
	v.SetDefault("funnel.advance_strength", 0.5)
	v.SetDefault("funnel.persona_threshold", 0.5)
	v.SetDefault("signals.min_strength", 0.7)
	v.SetDefault("signals.min_text_len", 200)
	v.SetDefault("jobs.workers", 2)
	v.SetDefault("jobs.progress_interval", 10)

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
